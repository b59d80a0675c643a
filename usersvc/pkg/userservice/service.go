package userservice

import (
	"context"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskgate/usersvc"
)

// Service is the admin view of accounts. Callers are expected to be admins;
// the check happens at the endpoint layer.
type Service interface {
	Users(ctx context.Context) ([]usersvc.Profile, error)
	DeleteUser(ctx context.Context, id string) error
}

func New(u usersvc.UserRepository, logger log.Logger) Service {
	var svc Service
	{
		svc = NewBasicService(u)
		svc = LoggingMiddleware(logger)(svc)
	}
	return svc
}

func NewBasicService(u usersvc.UserRepository) Service {
	return basicService{users: u}
}

type basicService struct {
	users usersvc.UserRepository
}

func (s basicService) Users(ctx context.Context) ([]usersvc.Profile, error) {
	profiles, err := s.users.Profiles(ctx)
	if err != nil {
		return nil, err
	}
	if profiles == nil {
		profiles = []usersvc.Profile{}
	}
	return profiles, nil
}

// DeleteUser confirms the profile exists before removing the account.
func (s basicService) DeleteUser(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return usersvc.ErrInvalidArgument
	}
	if _, err := s.users.Find(ctx, id); err != nil {
		return err
	}
	return s.users.Delete(ctx, id)
}
