package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/khotruyen/khotruyen/internal/model"
)

// Claims はアクセストークンに埋め込むクレーム。
type Claims struct {
	UserID string     `json:"uid"`
	Role   model.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager はJWTアクセストークンの発行と検証を行う。
// 署名はHS256の共有シークレット方式。
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager はTokenManagerを生成する。
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Issue はユーザーのアクセストークンを発行する。
func (m *TokenManager) Issue(user *model.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("アクセストークンの署名に失敗しました: %w", err)
	}
	return signed, nil
}

// Verify はアクセストークンを検証し、クレームを返す。
// 署名不正・期限切れ・アルゴリズム不一致はすべてエラーになる。
func (m *TokenManager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("アクセストークンの検証に失敗しました: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("アクセストークンが無効です")
	}

	return claims, nil
}
