package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	chatdomain "github.com/example/roomchat/domain/chat"
	domain "github.com/example/roomchat/domain/user"
	"github.com/google/uuid"
)

var (
	// ErrInvalidCredentials is returned when login credentials are invalid.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", chatdomain.ErrUnauthorized)
	// ErrInvalidUsername is returned when the username format is invalid.
	ErrInvalidUsername = fmt.Errorf("%w: username must be 3-32 letters, digits, '.', '_' or '-'", chatdomain.ErrValidation)
	// ErrWeakPassword is returned when password is too weak.
	ErrWeakPassword = fmt.Errorf("%w: password must be at least 8 characters", chatdomain.ErrValidation)
	// ErrPasswordTooLong is returned when password exceeds bcrypt's 72-byte limit.
	ErrPasswordTooLong = fmt.Errorf("%w: password must be at most 72 characters", chatdomain.ErrValidation)
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{3,32}$`)

// AuthService registers accounts, issues access tokens and verifies them.
type AuthService struct {
	repo   *UserRepository
	hasher *PasswordHasher
	jwt    *JWTManager
}

// NewAuthService creates a new AuthService.
func NewAuthService(repo *UserRepository, hasher *PasswordHasher, jwt *JWTManager) *AuthService {
	return &AuthService{
		repo:   repo,
		hasher: hasher,
		jwt:    jwt,
	}
}

// Register creates a new user account.
func (s *AuthService) Register(ctx context.Context, username, password string) (*domain.User, error) {
	if !usernamePattern.MatchString(username) {
		return nil, ErrInvalidUsername
	}
	if len(password) < 8 {
		return nil, ErrWeakPassword
	}
	if len(password) > 72 {
		return nil, ErrPasswordTooLong
	}

	exists, err := s.repo.UsernameExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return nil, ErrUserExists
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// Login authenticates a user and returns an access token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.AccessToken, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	return &domain.AccessToken{
		Token:     token,
		ExpiresIn: s.jwt.AccessTokenDuration(),
		TokenType: "Bearer",
	}, nil
}

// ValidateToken verifies an access token and returns its identity.
func (s *AuthService) ValidateToken(_ context.Context, token string) (*chatdomain.Identity, error) {
	identity, err := s.jwt.Verify(token)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}
