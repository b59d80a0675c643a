package authsvc

import (
	"context"
	"errors"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is the caller decoded from a bearer token. It lives for one request.
type Identity struct {
	Subject string
	Email   string
	Role    Role
	Expiry  time.Time
}

func (a Identity) IsAdmin() bool { return a.Role == RoleAdmin }

func (a Identity) Authenticated() bool { return a.Subject != "" }

type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Role      Role       `json:"role,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// IdentityProvider is the hosted account service that owns passwords.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (User, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	DeleteUser(ctx context.Context, id string) error
}

type contextKey string

const (
	IdentityContextKey contextKey = "Identity"
	// HeaderContextKey holds the raw Authorization header of the inbound request.
	HeaderContextKey    contextKey = "AuthorizationHeader"
	RequestIDContextKey contextKey = "RequestID"
)

func NewContext(ctx context.Context, a Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, a)
}

func FromContext(ctx context.Context) (Identity, bool) {
	a, ok := ctx.Value(IdentityContextKey).(Identity)
	return a, ok
}

func NewRequestIDContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDContextKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(RequestIDContextKey).(string)
	return id, ok && id != ""
}

var (
	ErrMissingCredential   = errors.New("authorization header is missing")
	ErrMalformedCredential = errors.New("authorization header must be of the form Bearer <token>")
	ErrInvalidCredential   = errors.New("token is invalid")
	ErrExpiredCredential   = errors.New("token has expired")
	ErrAdminRequired       = errors.New("admin role required")
	ErrAccessDenied        = errors.New("access denied")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidLogin        = errors.New("invalid email or password")
	ErrUserExists          = errors.New("user already exists")
)
