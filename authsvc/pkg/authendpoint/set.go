package authendpoint

import (
	"context"
	"net/http"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskgate/authsvc"
	"github.com/ichigozero/taskgate/authsvc/pkg/authservice"
)

type Set struct {
	RegisterEndpoint endpoint.Endpoint
	LoginEndpoint    endpoint.Endpoint
}

func New(svc authservice.Service, logger log.Logger) Set {
	var registerEndpoint endpoint.Endpoint
	{
		registerEndpoint = MakeRegisterEndpoint(svc)
		registerEndpoint = LoggingMiddleware(log.With(logger, "method", "Register"))(registerEndpoint)
	}

	var loginEndpoint endpoint.Endpoint
	{
		loginEndpoint = MakeLoginEndpoint(svc)
		loginEndpoint = LoggingMiddleware(log.With(logger, "method", "Login"))(loginEndpoint)
	}

	return Set{
		RegisterEndpoint: registerEndpoint,
		LoginEndpoint:    loginEndpoint,
	}
}

func (s Set) Register(ctx context.Context, email, password string) (authsvc.User, error) {
	response, err := s.RegisterEndpoint(ctx, RegisterRequest{Email: email, Password: password})
	if err != nil {
		return authsvc.User{}, err
	}

	resp := response.(RegisterResponse)
	return resp.User, resp.Err
}

func (s Set) Login(ctx context.Context, email, password string) (authsvc.Session, error) {
	response, err := s.LoginEndpoint(ctx, LoginRequest{Email: email, Password: password})
	if err != nil {
		return authsvc.Session{}, err
	}

	resp := response.(LoginResponse)
	return authsvc.Session{Token: resp.Token, User: resp.User}, resp.Err
}

func MakeRegisterEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(RegisterRequest)
		u, err := s.Register(ctx, req.Email, req.Password)
		if err == nil {
			u.Role = authsvc.RoleUser
		}

		return RegisterResponse{Message: "User created", User: u, Err: err}, nil
	}
}

func MakeLoginEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(LoginRequest)
		session, err := s.Login(ctx, req.Email, req.Password)

		return LoginResponse{Token: session.Token, User: session.User, Err: err}, nil
	}
}

var (
	_ endpoint.Failer = RegisterResponse{}
	_ endpoint.Failer = LoginResponse{}
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Message string       `json:"message"`
	User    authsvc.User `json:"user"`
	Err     error        `json:"-"`
}

func (r RegisterResponse) Failed() error { return r.Err }

func (r RegisterResponse) StatusCode() int { return http.StatusCreated }

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  authsvc.User `json:"user"`
	Err   error        `json:"-"`
}

func (r LoginResponse) Failed() error { return r.Err }
