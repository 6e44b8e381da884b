package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL は認証トークンの有効期間。Cookieの有効期間と揃える。
const TokenTTL = 7 * 24 * time.Hour

const tokenIssuer = "epiflipboard"

// Claims は認証トークンのペイロード。
type Claims struct {
	UserID int    `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenService はHS256による認証トークンの署名と検証を行う。
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService はTokenServiceを生成する。secretは16文字以上が必要。
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

// Sign はclaimsに発行日時と有効期限を設定して署名済みトークンを返す。
func (s *TokenService) Sign(claims Claims) (string, error) {
	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証してClaimsを返す。
// 期限切れ、改ざん、HS256以外のアルゴリズム、userIdなしのいずれでもnilを返す。
func (s *TokenService) Verify(token string) *Claims {
	if token == "" {
		return nil
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil
	}
	if claims.UserID <= 0 {
		return nil
	}
	return claims
}
