package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/khotruyen/khotruyen/internal/auth"
	"github.com/khotruyen/khotruyen/internal/model"
)

type mockAuthService struct {
	registerFn       func(ctx context.Context, email, password, name string) (*auth.TokenPair, error)
	loginFn          func(ctx context.Context, email, password string) (*auth.TokenPair, error)
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*auth.TokenPair, error)
	refreshFn        func(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	logoutFn         func(ctx context.Context, refreshToken string) error
	currentUserFn    func(ctx context.Context, userID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, email, password, name string) (*auth.TokenPair, error) {
	return m.registerFn(ctx, email, password, name)
}
func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.TokenPair, error) {
	return m.loginFn(ctx, email, password)
}
func (m *mockAuthService) GetLoginURL(state string) string {
	return m.getLoginURLFn(state)
}
func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*auth.TokenPair, error) {
	return m.handleCallbackFn(ctx, code)
}
func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	return m.refreshFn(ctx, refreshToken)
}
func (m *mockAuthService) Logout(ctx context.Context, refreshToken string) error {
	return m.logoutFn(ctx, refreshToken)
}
func (m *mockAuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	return m.currentUserFn(ctx, userID)
}

type mockAccountService struct {
	withdrawFn func(ctx context.Context, viewer model.Viewer) error
}

func (m *mockAccountService) Withdraw(ctx context.Context, viewer model.Viewer) error {
	return m.withdrawFn(ctx, viewer)
}

func testTokenPair() *auth.TokenPair {
	return &auth.TokenPair{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresIn:    900,
	}
}

func newAuthTestRouter(svc AuthServiceInterface, account AccountServiceInterface) http.Handler {
	r := chi.NewRouter()
	h := NewAuthHandler(svc, account, AuthHandlerConfig{})
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh", h.Refresh)
	r.Post("/auth/logout", h.Logout)
	r.Get("/auth/google/login", h.GoogleLogin)
	r.Get("/auth/google/callback", h.GoogleCallback)
	r.Get("/auth/me", h.Me)
	r.Delete("/auth/me", h.Withdraw)
	return r
}

func TestAuthHandler_Register(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, email, password, name string) (*auth.TokenPair, error) {
			if email != "doc-gia@example.com" || name != "Độc Giả" {
				t.Errorf("email = %q, name = %q", email, name)
			}
			return testTokenPair(), nil
		},
	}

	reqBody := `{"email":"doc-gia@example.com","password":"mat-khau-123","name":"Độc Giả"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", jsonBody(reqBody))
	rec := httptest.NewRecorder()
	newAuthTestRouter(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var body tokenPairResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.AccessToken != "access-token" || body.TokenType != "Bearer" {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthHandler_Register_EmailTaken(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, email, password, name string) (*auth.TokenPair, error) {
			return nil, model.NewEmailTakenError()
		},
	}

	reqBody := `{"email":"taken@example.com","password":"mat-khau-123","name":"X"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", jsonBody(reqBody))
	rec := httptest.NewRecorder()
	newAuthTestRouter(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*auth.TokenPair, error) {
			return nil, model.NewInvalidCredentialsError()
		},
	}

	reqBody := `{"email":"doc-gia@example.com","password":"sai-mat-khau"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", jsonBody(reqBody))
	rec := httptest.NewRecorder()
	newAuthTestRouter(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	var body apiErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %q", body.Code)
	}
}

func TestAuthHandler_Login_InvalidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{invalid"))
	rec := httptest.NewRecorder()
	newAuthTestRouter(&mockAuthService{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// OAuth開始でstate Cookieが設定されリダイレクトされることを検証
func TestAuthHandler_GoogleLogin(t *testing.T) {
	svc := &mockAuthService{
		getLoginURLFn: func(state string) string {
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/google/login", nil)
	rec := httptest.NewRecorder()
	newAuthTestRouter(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}

	var stateCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == oauthStateCookie {
			stateCookie = c
		}
	}
	if stateCookie == nil || stateCookie.Value == "" {
		t.Fatal("oauth_state cookie not set")
	}
	if !strings.Contains(rec.Header().Get("Location"), "state="+stateCookie.Value) {
		t.Errorf("Location = %q does not carry state", rec.Header().Get("Location"))
	}
}

func TestAuthHandler_GoogleCallback(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*auth.TokenPair, error) {
			if code != "auth-code" {
				t.Errorf("code = %q", code)
			}
			return testTokenPair(), nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=auth-code&state=abc123", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "abc123"})
	rec := httptest.NewRecorder()
	newAuthTestRouter(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body tokenPairResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.AccessToken != "access-token" {
		t.Errorf("access_token = %q", body.AccessToken)
	}
}

// state不一致のコールバックが拒否されることを検証
func TestAuthHandler_GoogleCallback_StateMismatch(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*auth.TokenPair, error) {
			t.Error("callback must not be processed on state mismatch")
			return nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=auth-code&state=tampered", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "abc123"})
	rec := httptest.NewRecorder()
	newAuthTestRouter(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAuthHandler_Refresh_Invalid(t *testing.T) {
	svc := &mockAuthService{
		refreshFn: func(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
			return nil, model.NewInvalidRefreshError()
		},
	}

	reqBody := `{"refresh_token":"expired"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", jsonBody(reqBody))
	rec := httptest.NewRecorder()
	newAuthTestRouter(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	var revoked string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, refreshToken string) error {
			revoked = refreshToken
			return nil
		},
	}

	reqBody := `{"refresh_token":"refresh-token"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", jsonBody(reqBody))
	rec := httptest.NewRecorder()
	newAuthTestRouter(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if revoked != "refresh-token" {
		t.Errorf("revoked = %q", revoked)
	}
}

func TestAuthHandler_Me(t *testing.T) {
	svc := &mockAuthService{
		currentUserFn: func(ctx context.Context, userID string) (*model.User, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q", userID)
			}
			return &model.User{ID: "user-1", Email: "doc-gia@example.com", Name: "Độc Giả", Role: model.RoleUser}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req = withViewer(req, testUserViewer())
	rec := httptest.NewRecorder()
	newAuthTestRouter(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body userResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Email != "doc-gia@example.com" || body.Role != "user" {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthHandler_Withdraw(t *testing.T) {
	var withdrawnUserID string
	account := &mockAccountService{
		withdrawFn: func(ctx context.Context, viewer model.Viewer) error {
			withdrawnUserID = viewer.UserID
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/auth/me", nil)
	req = withViewer(req, testUserViewer())
	rec := httptest.NewRecorder()
	newAuthTestRouter(&mockAuthService{}, account).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if withdrawnUserID != "user-1" {
		t.Errorf("withdrawnUserID = %q", withdrawnUserID)
	}
}
