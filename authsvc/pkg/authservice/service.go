package authservice

import (
	"context"
	"net/mail"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskgate/authsvc"
)

const MinPasswordLength = 6

type Service interface {
	Register(ctx context.Context, email, password string) (authsvc.User, error)
	Login(ctx context.Context, email, password string) (authsvc.Session, error)
}

func New(p authsvc.IdentityProvider, v *Verifier, logger log.Logger) Service {
	var svc Service
	{
		svc = NewBasicService(p, v)
		svc = LoggingMiddleware(logger)(svc)
	}
	return svc
}

type basicService struct {
	provider authsvc.IdentityProvider
	verifier *Verifier
}

func NewBasicService(p authsvc.IdentityProvider, v *Verifier) Service {
	return &basicService{provider: p, verifier: v}
}

func (s *basicService) Register(ctx context.Context, email, password string) (authsvc.User, error) {
	email = strings.TrimSpace(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return authsvc.User{}, authsvc.ErrInvalidArgument
	}
	if len(password) < MinPasswordLength {
		return authsvc.User{}, authsvc.ErrInvalidArgument
	}
	return s.provider.SignUp(ctx, email, password)
}

func (s *basicService) Login(ctx context.Context, email, password string) (authsvc.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return authsvc.Session{}, authsvc.ErrInvalidLogin
	}

	session, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return authsvc.Session{}, err
	}
	session.User.Role = s.verifier.RoleOf(session.Token)
	return session, nil
}
