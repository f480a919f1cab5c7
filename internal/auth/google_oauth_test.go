package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// GetLoginURLに必要なOAuthパラメータが含まれることを検証
func TestGoogleOAuthProvider_GetLoginURL(t *testing.T) {
	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:    "client-id",
		RedirectURL: "https://khotruyen.vn/api/auth/google/callback",
	})

	loginURL := provider.GetLoginURL("state-token")

	parsed, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("failed to parse login URL: %v", err)
	}

	query := parsed.Query()
	if query.Get("client_id") != "client-id" {
		t.Errorf("client_id = %q", query.Get("client_id"))
	}
	if query.Get("state") != "state-token" {
		t.Errorf("state = %q", query.Get("state"))
	}
	if !strings.Contains(query.Get("scope"), "email") {
		t.Errorf("scope = %q, want to contain email", query.Get("scope"))
	}
	if query.Get("response_type") != "code" {
		t.Errorf("response_type = %q", query.Get("response_type"))
	}
}

// 認可コード交換からユーザー情報取得までのフローを検証
func TestGoogleOAuthProvider_ExchangeCode(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("code") != "auth-code" {
			t.Errorf("code = %q", r.FormValue("code"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"access-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sub":"google-123","email":"reader@example.com","name":"Reader"}`))
	}))
	defer userInfoServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://khotruyen.vn/callback",
		TokenURL:     tokenServer.URL,
		UserInfoURL:  userInfoServer.URL,
	})

	info, err := provider.ExchangeCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	if info.ProviderUserID != "google-123" {
		t.Errorf("ProviderUserID = %q", info.ProviderUserID)
	}
	if info.Email != "reader@example.com" {
		t.Errorf("Email = %q", info.Email)
	}
	if info.Provider != "google" {
		t.Errorf("Provider = %q", info.Provider)
	}
}

// トークンエンドポイントのエラーが伝播することを検証
func TestGoogleOAuthProvider_ExchangeCode_TokenError(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer tokenServer.Close()

	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		TokenURL: tokenServer.URL,
	})

	if _, err := provider.ExchangeCode(context.Background(), "bad-code"); err == nil {
		t.Error("expected error for failed token exchange")
	}
}
