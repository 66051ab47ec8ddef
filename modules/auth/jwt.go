package auth

import (
	"errors"
	"fmt"
	"time"

	chatdomain "github.com/example/roomchat/domain/chat"
	"github.com/golang-jwt/jwt/v5"
)

const tokenTypeAccess = "access"

var (
	// ErrInvalidToken is returned when the token is malformed, forged or of the wrong type.
	ErrInvalidToken = fmt.Errorf("%w: invalid token", chatdomain.ErrUnauthorized)
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = fmt.Errorf("%w: token has expired", chatdomain.ErrUnauthorized)
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	SecretKey           string
	AccessTokenDuration time.Duration
	Issuer              string
}

// DefaultJWTConfig returns the development configuration.
// JWT_SECRET_KEY must override the secret outside of local runs.
func DefaultJWTConfig() JWTConfig {
	return JWTConfig{
		SecretKey:           "roomchat-dev-secret-change-me",
		AccessTokenDuration: 24 * time.Hour,
		Issuer:              "roomchat",
	}
}

// JWTClaims represents the custom claims carried by an access token.
type JWTClaims struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// JWTManager mints and verifies access tokens.
type JWTManager struct {
	config JWTConfig
}

// NewJWTManager creates a new JWTManager with the given configuration.
func NewJWTManager(config JWTConfig) *JWTManager {
	return &JWTManager{
		config: config,
	}
}

// GenerateAccessToken generates a new access token for the given user.
func (m *JWTManager) GenerateAccessToken(userID, username string) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		UserID:    userID,
		Username:  username,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.SecretKey))
}

// Verify validates an access token and returns the identity it was issued to.
func (m *JWTManager) Verify(tokenString string) (chatdomain.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(m.config.SecretKey), nil
	}, jwt.WithIssuer(m.config.Issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return chatdomain.Identity{}, ErrExpiredToken
		}
		return chatdomain.Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return chatdomain.Identity{}, ErrInvalidToken
	}
	if claims.TokenType != tokenTypeAccess || claims.UserID == "" || claims.Username == "" {
		return chatdomain.Identity{}, ErrInvalidToken
	}

	return chatdomain.Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

// AccessTokenDuration returns the access token duration in seconds.
func (m *JWTManager) AccessTokenDuration() int64 {
	return int64(m.config.AccessTokenDuration.Seconds())
}
