package usersvc

import (
	"context"
	"errors"
	"time"
)

// Profile is the public account record kept next to the identity provider.
type Profile struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Role      string     `json:"role,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type UserRepository interface {
	Profiles(ctx context.Context) ([]Profile, error)
	Find(ctx context.Context, id string) (Profile, error)
	Delete(ctx context.Context, id string) error
}

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUserNotFound    = errors.New("user not found")
)
