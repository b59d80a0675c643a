package usertransport

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/ichigozero/taskgate/authsvc/pkg/authtransport"
	"github.com/ichigozero/taskgate/usersvc"
	"github.com/ichigozero/taskgate/usersvc/pkg/userendpoint"
)

// NewHTTPHandler serves the admin user routes. guard runs in front of every
// endpoint and is expected to authenticate the caller and require the admin
// role.
func NewHTTPHandler(endpoints userendpoint.Set, guard endpoint.Middleware, logger log.Logger) http.Handler {
	endpoints = endpoints.Wrap(guard)

	options := authtransport.ServerOptions(errorEncoder, logger)
	encode := authtransport.EncodeHTTPGenericResponse(errorEncoder)

	usersHandler := httptransport.NewServer(
		endpoints.UsersEndpoint,
		decodeHTTPUsersRequest,
		encode,
		options...,
	)

	deleteUserHandler := httptransport.NewServer(
		endpoints.DeleteUserEndpoint,
		decodeHTTPDeleteUserRequest,
		encode,
		options...,
	)

	r := mux.NewRouter()

	r.Methods("GET").Path("/users").Handler(usersHandler)
	r.Methods("DELETE").Path("/users/{user_id}").Handler(deleteUserHandler)

	return r
}

func errorEncoder(ctx context.Context, err error, w http.ResponseWriter) {
	code, reason := err2code(err)
	authtransport.EncodeError(ctx, code, reason, err, w)
}

func err2code(err error) (int, string) {
	switch {
	case errors.Is(err, usersvc.ErrUserNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, usersvc.ErrInvalidArgument):
		return http.StatusUnprocessableEntity, "validation_error"
	}
	return authtransport.Err2code(err)
}

func decodeHTTPUsersRequest(_ context.Context, _ *http.Request) (interface{}, error) {
	return userendpoint.UsersRequest{}, nil
}

func decodeHTTPDeleteUserRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, ok := mux.Vars(r)["user_id"]
	if !ok {
		return nil, ErrBadRouting
	}
	return userendpoint.DeleteUserRequest{ID: id}, nil
}

// ErrBadRouting is returned when an expected path variable is missing.
// It always indicates programmer error.
var ErrBadRouting = errors.New("inconsistent mapping between route and handler (programmer error)")
