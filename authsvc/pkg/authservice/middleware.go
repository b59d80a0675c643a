package authservice

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskgate/authsvc"
)

type Middleware func(Service) Service

func LoggingMiddleware(logger log.Logger) Middleware {
	return func(next Service) Service {
		return loggingMiddleware{logger, next}
	}
}

type loggingMiddleware struct {
	logger log.Logger
	next   Service
}

func (mw loggingMiddleware) Register(ctx context.Context, email, password string) (u authsvc.User, err error) {
	defer func() {
		mw.logger.Log("method", "Register", "email", email, "user_id", u.ID, "err", err)
	}()
	return mw.next.Register(ctx, email, password)
}

func (mw loggingMiddleware) Login(ctx context.Context, email, password string) (s authsvc.Session, err error) {
	defer func() {
		mw.logger.Log("method", "Login", "email", email, "user_id", s.User.ID, "role", s.User.Role, "err", err)
	}()
	return mw.next.Login(ctx, email, password)
}

// RegistrationHook calls hook with every account created by Register. A hook
// failure fails the request; the account already exists upstream by then.
func RegistrationHook(hook func(context.Context, authsvc.User) error) Middleware {
	return func(next Service) Service {
		return registrationHook{hook, next}
	}
}

type registrationHook struct {
	hook func(context.Context, authsvc.User) error
	next Service
}

func (mw registrationHook) Register(ctx context.Context, email, password string) (authsvc.User, error) {
	u, err := mw.next.Register(ctx, email, password)
	if err != nil {
		return authsvc.User{}, err
	}
	if err := mw.hook(ctx, u); err != nil {
		return authsvc.User{}, err
	}
	return u, nil
}

func (mw registrationHook) Login(ctx context.Context, email, password string) (authsvc.Session, error) {
	return mw.next.Login(ctx, email, password)
}
