package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/khotruyen/khotruyen/internal/model"
)

// モックリポジトリ
type mockUserRepo struct {
	findByIDFn           func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn        func(ctx context.Context, email string) (*model.User, error)
	createFn             func(ctx context.Context, user *model.User) error
	createWithIdentityFn func(ctx context.Context, user *model.User, identity *model.Identity) error
	deleteByIDFn         func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.findByIDFn(ctx, id)
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return m.findByEmailFn(ctx, email)
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	return m.createFn(ctx, user)
}
func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	return m.createWithIdentityFn(ctx, user, identity)
}
func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFn(ctx, id)
}

type mockIdentityRepo struct {
	findFn func(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

func (m *mockIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	return m.findFn(ctx, provider, providerUserID)
}

type mockRefreshTokenRepo struct {
	createFn         func(ctx context.Context, token *model.RefreshToken) error
	findByTokenFn    func(ctx context.Context, token string) (*model.RefreshToken, error)
	deleteByTokenFn  func(ctx context.Context, token string) error
	deleteByUserIDFn func(ctx context.Context, userID string) error
	deleteExpiredFn  func(ctx context.Context) (int64, error)
}

func (m *mockRefreshTokenRepo) Create(ctx context.Context, token *model.RefreshToken) error {
	return m.createFn(ctx, token)
}
func (m *mockRefreshTokenRepo) FindByToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	return m.findByTokenFn(ctx, token)
}
func (m *mockRefreshTokenRepo) DeleteByToken(ctx context.Context, token string) error {
	return m.deleteByTokenFn(ctx, token)
}
func (m *mockRefreshTokenRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return m.deleteByUserIDFn(ctx, userID)
}
func (m *mockRefreshTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return m.deleteExpiredFn(ctx)
}

type mockOAuthProvider struct {
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	return m.getLoginURLFn(state)
}
func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	return m.exchangeCodeFn(ctx, code)
}

func newTestService(userRepo *mockUserRepo, identRepo *mockIdentityRepo, refreshRepo *mockRefreshTokenRepo, oauth *mockOAuthProvider) *Service {
	return NewService(
		oauth,
		NewTokenManager("test-secret", 15*time.Minute),
		userRepo,
		identRepo,
		refreshRepo,
		ServiceConfig{
			RefreshTokenTTL: 30 * 24 * time.Hour,
			AccessTokenTTL:  15 * time.Minute,
		},
	)
}

// 新規登録でトークンペアが発行されることを検証
func TestService_Register_Success(t *testing.T) {
	var createdUser *model.User
	var savedToken *model.RefreshToken

	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, nil
		},
		createFn: func(ctx context.Context, user *model.User) error {
			createdUser = user
			return nil
		},
	}
	refreshRepo := &mockRefreshTokenRepo{
		createFn: func(ctx context.Context, token *model.RefreshToken) error {
			savedToken = token
			return nil
		},
	}

	svc := newTestService(userRepo, &mockIdentityRepo{}, refreshRepo, &mockOAuthProvider{})

	pair, err := svc.Register(context.Background(), "Reader@Example.com", "password123", "Reader")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Error("expected non-empty token pair")
	}
	if createdUser == nil {
		t.Fatal("expected user to be created")
	}
	if createdUser.Email != "reader@example.com" {
		t.Errorf("email not normalized: %q", createdUser.Email)
	}
	if createdUser.Role != model.RoleUser {
		t.Errorf("new user role = %q, want %q", createdUser.Role, model.RoleUser)
	}
	if createdUser.PasswordHash == "" || createdUser.PasswordHash == "password123" {
		t.Error("password must be stored hashed")
	}
	if savedToken == nil || savedToken.UserID != createdUser.ID {
		t.Error("refresh token must reference the created user")
	}
}

// メール重複時にEMAIL_TAKENが返ることを検証
func TestService_Register_EmailTaken(t *testing.T) {
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "existing"}, nil
		},
	}

	svc := newTestService(userRepo, &mockIdentityRepo{}, &mockRefreshTokenRepo{}, &mockOAuthProvider{})

	_, err := svc.Register(context.Background(), "taken@example.com", "password123", "Reader")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmailTaken {
		t.Fatalf("expected EMAIL_TAKEN, got %v", err)
	}
}

// 短すぎるパスワードが拒否されることを検証
func TestService_Register_ShortPassword(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockIdentityRepo{}, &mockRefreshTokenRepo{}, &mockOAuthProvider{})

	_, err := svc.Register(context.Background(), "reader@example.com", "short", "Reader")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST, got %v", err)
	}
}

// 正しい認証情報でログインできることを検証
func TestService_Login_Success(t *testing.T) {
	hash, _ := HashPassword("password123")

	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email, PasswordHash: hash, Role: model.RoleUser}, nil
		},
	}
	refreshRepo := &mockRefreshTokenRepo{
		createFn: func(ctx context.Context, token *model.RefreshToken) error { return nil },
	}

	svc := newTestService(userRepo, &mockIdentityRepo{}, refreshRepo, &mockOAuthProvider{})

	pair, err := svc.Login(context.Background(), "reader@example.com", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if pair.AccessToken == "" {
		t.Error("expected non-empty access token")
	}
}

// パスワード不一致とメール未登録が同一エラーになることを検証
func TestService_Login_InvalidCredentials(t *testing.T) {
	hash, _ := HashPassword("password123")

	tests := []struct {
		name string
		user *model.User
	}{
		{"unknown email", nil},
		{"wrong password", &model.User{ID: "user-1", PasswordHash: hash}},
		{"oauth-only user", &model.User{ID: "user-2", PasswordHash: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userRepo := &mockUserRepo{
				findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
					return tt.user, nil
				},
			}
			svc := newTestService(userRepo, &mockIdentityRepo{}, &mockRefreshTokenRepo{}, &mockOAuthProvider{})

			_, err := svc.Login(context.Background(), "reader@example.com", "wrong-password")

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidCredentials {
				t.Fatalf("expected INVALID_CREDENTIALS, got %v", err)
			}
		})
	}
}

// OAuthコールバックで新規ユーザーがidentityと同時に作成されることを検証
func TestService_HandleCallback_NewUser(t *testing.T) {
	var createdUser *model.User
	var createdIdentity *model.Identity

	oauth := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{
				ProviderUserID: "google-123",
				Email:          "Reader@Example.com",
				Name:           "Reader",
				Provider:       "google",
			}, nil
		},
	}
	identRepo := &mockIdentityRepo{
		findFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			return nil, nil
		},
	}
	userRepo := &mockUserRepo{
		createWithIdentityFn: func(ctx context.Context, user *model.User, identity *model.Identity) error {
			createdUser = user
			createdIdentity = identity
			return nil
		},
	}
	refreshRepo := &mockRefreshTokenRepo{
		createFn: func(ctx context.Context, token *model.RefreshToken) error { return nil },
	}

	svc := newTestService(userRepo, identRepo, refreshRepo, oauth)

	pair, err := svc.HandleCallback(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if pair.AccessToken == "" {
		t.Error("expected non-empty access token")
	}
	if createdUser == nil || createdIdentity == nil {
		t.Fatal("expected user and identity to be created together")
	}
	if createdIdentity.UserID != createdUser.ID {
		t.Error("identity must reference the created user")
	}
	if createdIdentity.Provider != "google" || createdIdentity.ProviderUserID != "google-123" {
		t.Errorf("unexpected identity: %+v", createdIdentity)
	}
}

// OAuthコールバックで既存ユーザーがログインできることを検証
func TestService_HandleCallback_ExistingUser(t *testing.T) {
	oauth := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{ProviderUserID: "google-123", Provider: "google"}, nil
		},
	}
	identRepo := &mockIdentityRepo{
		findFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			return &model.Identity{ID: "ident-1", UserID: "user-1"}, nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Role: model.RoleUser}, nil
		},
	}
	refreshRepo := &mockRefreshTokenRepo{
		createFn: func(ctx context.Context, token *model.RefreshToken) error { return nil },
	}

	svc := newTestService(userRepo, identRepo, refreshRepo, oauth)

	if _, err := svc.HandleCallback(context.Background(), "auth-code"); err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
}

// リフレッシュで旧トークンが破棄され新ペアが発行されることを検証
func TestService_Refresh_Rotation(t *testing.T) {
	var deletedToken string

	refreshRepo := &mockRefreshTokenRepo{
		findByTokenFn: func(ctx context.Context, token string) (*model.RefreshToken, error) {
			return &model.RefreshToken{ID: "rt-1", UserID: "user-1", Token: token, ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
		deleteByTokenFn: func(ctx context.Context, token string) error {
			deletedToken = token
			return nil
		},
		createFn: func(ctx context.Context, token *model.RefreshToken) error { return nil },
	}
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Role: model.RoleUser}, nil
		},
	}

	svc := newTestService(userRepo, &mockIdentityRepo{}, refreshRepo, &mockOAuthProvider{})

	pair, err := svc.Refresh(context.Background(), "old-token")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if deletedToken != "old-token" {
		t.Errorf("rotated token = %q, want %q", deletedToken, "old-token")
	}
	if pair.RefreshToken == "old-token" {
		t.Error("expected a new refresh token after rotation")
	}
}

// 未登録リフレッシュトークンが拒否されることを検証
func TestService_Refresh_UnknownToken(t *testing.T) {
	refreshRepo := &mockRefreshTokenRepo{
		findByTokenFn: func(ctx context.Context, token string) (*model.RefreshToken, error) {
			return nil, nil
		},
	}

	svc := newTestService(&mockUserRepo{}, &mockIdentityRepo{}, refreshRepo, &mockOAuthProvider{})

	_, err := svc.Refresh(context.Background(), "unknown")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRefresh {
		t.Fatalf("expected INVALID_REFRESH_TOKEN, got %v", err)
	}
}
