package auth

import (
	"context"
	"encoding/json"
	"fmt"

	chatdomain "github.com/example/roomchat/domain/chat"
	domain "github.com/example/roomchat/domain/user"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// AuthPort defines the interface for authentication operations.
// This is the port that other modules use to access auth functionality.
type AuthPort interface {
	ValidateToken(ctx context.Context, token string) (*chatdomain.Identity, error)
	Register(ctx context.Context, username, password string) (*RegisterResponse, error)
	Login(ctx context.Context, username, password string) (*domain.AccessToken, error)
}

// AuthAdapter implements AuthPort using the service container.
type AuthAdapter struct {
	container mono.ServiceContainer
}

var _ AuthPort = (*AuthAdapter)(nil)

// NewAuthAdapter creates a new AuthAdapter.
func NewAuthAdapter(container mono.ServiceContainer) *AuthAdapter {
	return &AuthAdapter{
		container: container,
	}
}

// ValidateToken verifies an access token and returns the identity behind it.
// Every rejection wraps chatdomain.ErrUnauthorized.
func (a *AuthAdapter) ValidateToken(ctx context.Context, token string) (*chatdomain.Identity, error) {
	req := ValidateTokenRequest{Token: token}
	var resp ValidateTokenResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceValidateToken,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("validate-token request failed: %w", err)
	}

	if !resp.Valid {
		return nil, fmt.Errorf("%w: %s", chatdomain.ErrUnauthorized, resp.Error)
	}

	return &chatdomain.Identity{
		UserID:   resp.UserID,
		Username: resp.Username,
	}, nil
}

// Register creates an account.
func (a *AuthAdapter) Register(ctx context.Context, username, password string) (*RegisterResponse, error) {
	req := RegisterRequest{Username: username, Password: password}
	var resp RegisterResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceRegister,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login exchanges credentials for an access token.
func (a *AuthAdapter) Login(ctx context.Context, username, password string) (*domain.AccessToken, error) {
	req := LoginRequest{Username: username, Password: password}
	var resp LoginResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceLogin,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return &domain.AccessToken{
		Token:     resp.AccessToken,
		ExpiresIn: resp.ExpiresIn,
		TokenType: resp.TokenType,
	}, nil
}
