// Package auth はメール/パスワード認証、Google OAuth認証、トークン発行を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/khotruyen/khotruyen/internal/model"
	"github.com/khotruyen/khotruyen/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string // "google" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdPに対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// TokenPair はアクセストークンとリフレッシュトークンの組。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // アクセストークンの有効期間（秒）
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	RefreshTokenTTL time.Duration
	AccessTokenTTL  time.Duration
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	tokens      *TokenManager
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	refreshRepo repository.RefreshTokenRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	tokens *TokenManager,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	refreshRepo repository.RefreshTokenRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		tokens:      tokens,
		userRepo:    userRepo,
		identRepo:   identRepo,
		refreshRepo: refreshRepo,
		config:      config,
	}
}

// Register はメール/パスワードで新規ユーザーを登録し、トークンを発行する。
func (s *Service) Register(ctx context.Context, email, password, name string) (*TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, model.NewInvalidRequestError("email")
	}
	if len(password) < 8 {
		return nil, model.NewInvalidRequestError("password")
	}
	if strings.TrimSpace(name) == "" {
		return nil, model.NewInvalidRequestError("name")
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		Role:         model.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered", slog.String("user_id", user.ID))
	return s.issueTokens(ctx, user)
}

// Login はメール/パスワードでログインし、トークンを発行する。
// メール未登録とパスワード不一致は同一のエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	if !CheckPassword(user.PasswordHash, password) {
		return nil, model.NewInvalidCredentialsError()
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return s.issueTokens(ctx, user)
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、トークンを発行する。
// 未登録ユーザーの場合はusersレコードとidentitiesレコードを同時に自動作成する。
// 登録済みユーザーの場合はidentitiesテーブルで既存ユーザーを特定しログインする。
func (s *Service) HandleCallback(ctx context.Context, code string) (*TokenPair, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var user *model.User

	if identity != nil {
		user, err = s.userRepo.FindByID(ctx, identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, model.NewUserNotFoundError()
		}
		slog.Info("existing user logged in via oauth",
			slog.String("user_id", user.ID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		now := time.Now()
		user = &model.User{
			ID:        uuid.New().String(),
			Email:     strings.ToLower(userInfo.Email),
			Name:      userInfo.Name,
			Role:      model.RoleUser,
			CreatedAt: now,
			UpdatedAt: now,
		}
		newIdentity := &model.Identity{
			ID:             uuid.New().String(),
			UserID:         user.ID,
			Provider:       userInfo.Provider,
			ProviderUserID: userInfo.ProviderUserID,
			CreatedAt:      now,
		}

		if err := s.userRepo.CreateWithIdentity(ctx, user, newIdentity); err != nil {
			return nil, fmt.Errorf("failed to create user and identity: %w", err)
		}

		slog.Info("new user created via oauth",
			slog.String("user_id", user.ID),
			slog.String("provider", userInfo.Provider),
		)
	}

	return s.issueTokens(ctx, user)
}

// Refresh はリフレッシュトークンを検証し、新しいトークンペアを発行する。
// 使用済みトークンは削除される（ローテーション）。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, model.NewInvalidRefreshError()
	}

	stored, err := s.refreshRepo.FindByToken(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}
	if stored == nil {
		return nil, model.NewInvalidRefreshError()
	}

	user, err := s.userRepo.FindByID(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidRefreshError()
	}

	// 旧トークンを破棄してから新トークンを発行する
	if err := s.refreshRepo.DeleteByToken(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	return s.issueTokens(ctx, user)
}

// Logout はリフレッシュトークンを破棄する。
// アクセストークンは期限切れまで有効なままになる（短命のため許容）。
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.refreshRepo.DeleteByToken(ctx, refreshToken); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}

// CurrentUser はユーザーIDから現在のユーザーを取得する。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// issueTokens はアクセストークンとリフレッシュトークンを発行する。
func (s *Service) issueTokens(ctx context.Context, user *model.User) (*TokenPair, error) {
	accessToken, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	opaque, err := generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := time.Now()
	refresh := &model.RefreshToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Token:     opaque,
		ExpiresAt: now.Add(s.config.RefreshTokenTTL),
		CreatedAt: now,
	}
	if err := s.refreshRepo.Create(ctx, refresh); err != nil {
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: opaque,
		ExpiresIn:    int(s.config.AccessTokenTTL.Seconds()),
	}, nil
}

// generateRefreshToken は暗号的に安全な不透明トークンを生成する。
func generateRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
