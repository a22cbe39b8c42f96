package domain

import "errors"

var (
	// ErrEmailTaken indicates the email is already registered
	ErrEmailTaken = errors.New("email already registered")
	// ErrUsernameTaken indicates the username is already registered
	ErrUsernameTaken = errors.New("username already registered")
	// ErrInvalidCredentials indicates a failed login attempt
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidToken indicates a token that failed verification
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired indicates an expired token
	ErrTokenExpired = errors.New("token expired")
	// ErrRoleNotFound indicates the AI role does not exist
	ErrRoleNotFound = errors.New("ai role not found")
	// ErrSessionNotFound indicates the chat session does not exist
	ErrSessionNotFound = errors.New("chat session not found")
	// ErrSessionAccessDenied indicates the caller does not own the session
	ErrSessionAccessDenied = errors.New("session access denied")
	// ErrValidation indicates a request that failed validation
	ErrValidation = errors.New("validation failed")
	// ErrAIUnavailable indicates the upstream model provider failed
	ErrAIUnavailable = errors.New("ai service unavailable")
)
