package auth

import (
	"errors"
	"time"

	chatdomain "github.com/example/roomchat/domain/chat"
)

// Service names registered in the auth module's service container.
const (
	ServiceRegister      = "register"
	ServiceLogin         = "login"
	ServiceValidateToken = "validate-token"
)

// CodeUserExists is the wire code for ErrUserExists.
const CodeUserExists = "user_exists"

// Failure carries an auth error across the service container.
type Failure struct {
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Err rebuilds the error, or nil on success.
func (f Failure) Err() error {
	if f.ErrorCode == CodeUserExists {
		return &chatdomain.CodedError{Kind: ErrUserExists, Message: f.Error}
	}
	return chatdomain.ErrorFromCode(f.ErrorCode, f.Error)
}

func failure(err error) Failure {
	switch {
	case err == nil:
		return Failure{}
	case errors.Is(err, ErrUserExists):
		return Failure{ErrorCode: CodeUserExists, Error: err.Error()}
	default:
		return Failure{ErrorCode: chatdomain.ErrorCode(err), Error: err.Error()}
	}
}

// RegisterRequest represents a user registration request.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterResponse represents a user registration response.
type RegisterResponse struct {
	ID        string    `json:"id,omitempty"`
	Username  string    `json:"username,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	Failure
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents a user login response with an access token.
type LoginResponse struct {
	AccessToken string `json:"access_token,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	Failure
}

// ValidateTokenRequest represents a token validation request.
type ValidateTokenRequest struct {
	Token string `json:"token"`
}

// ValidateTokenResponse represents a token validation response.
type ValidateTokenResponse struct {
	Valid    bool   `json:"valid"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Error    string `json:"error,omitempty"`
}
