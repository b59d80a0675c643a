package userendpoint

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskgate/usersvc"
	"github.com/ichigozero/taskgate/usersvc/pkg/userservice"
)

type Set struct {
	UsersEndpoint      endpoint.Endpoint
	DeleteUserEndpoint endpoint.Endpoint
}

func New(svc userservice.Service, logger log.Logger) Set {
	var usersEndpoint endpoint.Endpoint
	{
		usersEndpoint = MakeUsersEndpoint(svc)
		usersEndpoint = LoggingMiddleware(log.With(logger, "method", "Users"))(usersEndpoint)
	}

	var deleteUserEndpoint endpoint.Endpoint
	{
		deleteUserEndpoint = MakeDeleteUserEndpoint(svc)
		deleteUserEndpoint = LoggingMiddleware(log.With(logger, "method", "DeleteUser"))(deleteUserEndpoint)
	}

	return Set{
		UsersEndpoint:      usersEndpoint,
		DeleteUserEndpoint: deleteUserEndpoint,
	}
}

// Wrap applies mw to every endpoint of the set.
func (s Set) Wrap(mw endpoint.Middleware) Set {
	return Set{
		UsersEndpoint:      mw(s.UsersEndpoint),
		DeleteUserEndpoint: mw(s.DeleteUserEndpoint),
	}
}

func MakeUsersEndpoint(s userservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		_ = request.(UsersRequest)
		p, err := s.Users(ctx)
		return UsersResponse{Profiles: p, Err: err}, nil
	}
}

func MakeDeleteUserEndpoint(s userservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(DeleteUserRequest)
		err := s.DeleteUser(ctx, req.ID)
		return DeleteUserResponse{Err: err}, nil
	}
}

// LoggingMiddleware returns an endpoint middleware that logs the
// duration of each invocation, and the resulting error, if any.
func LoggingMiddleware(logger log.Logger) endpoint.Middleware {
	return func(next endpoint.Endpoint) endpoint.Endpoint {
		return func(ctx context.Context, request interface{}) (response interface{}, err error) {
			defer func(begin time.Time) {
				logger.Log("transport_error", err, "took", time.Since(begin))
			}(time.Now())
			return next(ctx, request)
		}
	}
}

var (
	_ endpoint.Failer = UsersResponse{}
	_ endpoint.Failer = DeleteUserResponse{}
)

type UsersRequest struct{}

// UsersResponse encodes as a bare JSON array of profiles.
type UsersResponse struct {
	Profiles []usersvc.Profile
	Err      error
}

func (r UsersResponse) Failed() error { return r.Err }

func (r UsersResponse) MarshalJSON() ([]byte, error) {
	if r.Profiles == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Profiles)
}

type DeleteUserRequest struct {
	ID string
}

type DeleteUserResponse struct {
	Err error
}

func (r DeleteUserResponse) Failed() error { return r.Err }

func (r DeleteUserResponse) StatusCode() int { return http.StatusNoContent }
