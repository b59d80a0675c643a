package authtransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/ratelimit"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/ichigozero/taskgate/authsvc"
	"github.com/ichigozero/taskgate/authsvc/pkg/authendpoint"
	"github.com/ichigozero/taskgate/supabase"
)

func NewHTTPHandler(endpoints authendpoint.Set, logger log.Logger) http.Handler {
	options := ServerOptions(errorEncoder, logger)

	registerHandler := httptransport.NewServer(
		endpoints.RegisterEndpoint,
		decodeHTTPRegisterRequest,
		EncodeHTTPGenericResponse(errorEncoder),
		options...,
	)

	loginHandler := httptransport.NewServer(
		endpoints.LoginEndpoint,
		decodeHTTPLoginRequest,
		EncodeHTTPGenericResponse(errorEncoder),
		options...,
	)

	r := mux.NewRouter()

	r.Methods("POST").Path("/register").Handler(registerHandler)
	r.Methods("POST").Path("/login").Handler(loginHandler)

	return r
}

func decodeHTTPRegisterRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req authendpoint.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, authsvc.ErrInvalidArgument
	}
	return req, nil
}

func decodeHTTPLoginRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req authendpoint.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, authsvc.ErrInvalidArgument
	}
	return req, nil
}

func errorEncoder(ctx context.Context, err error, w http.ResponseWriter) {
	code, reason := Err2code(err)
	EncodeError(ctx, code, reason, err, w)
}

// EncodeError writes the uniform error body and echoes the request id.
func EncodeError(ctx context.Context, code int, reason string, err error, w http.ResponseWriter) {
	setRequestID(ctx, w)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorWrapper{Error: reason, Message: err.Error()})
}

type errorWrapper struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Err2code maps the credential, account and upstream errors shared by every
// transport of the gateway.
func Err2code(err error) (int, string) {
	switch {
	case errors.Is(err, authsvc.ErrMissingCredential):
		return http.StatusUnauthorized, "missing_credential"
	case errors.Is(err, authsvc.ErrMalformedCredential):
		return http.StatusUnauthorized, "malformed_credential"
	case errors.Is(err, authsvc.ErrInvalidCredential):
		return http.StatusUnauthorized, "invalid_credential"
	case errors.Is(err, authsvc.ErrExpiredCredential):
		return http.StatusUnauthorized, "expired_credential"
	case errors.Is(err, authsvc.ErrInvalidLogin):
		return http.StatusUnauthorized, "invalid_login"
	case errors.Is(err, authsvc.ErrAdminRequired):
		return http.StatusForbidden, "admin_required"
	case errors.Is(err, authsvc.ErrAccessDenied):
		return http.StatusForbidden, "access_denied"
	case errors.Is(err, authsvc.ErrInvalidArgument):
		return http.StatusUnprocessableEntity, "validation_error"
	case errors.Is(err, authsvc.ErrUserExists):
		return http.StatusBadRequest, "user_exists"
	case errors.Is(err, ratelimit.ErrLimited):
		return http.StatusTooManyRequests, "rate_limited"
	}

	var ue *supabase.UpstreamError
	if errors.As(err, &ue) {
		switch {
		case ue.Timeout():
			return http.StatusGatewayTimeout, "upstream_failure"
		case ue.Unavailable():
			return http.StatusServiceUnavailable, "upstream_failure"
		}
		return http.StatusBadGateway, "upstream_failure"
	}
	return http.StatusInternalServerError, "internal_error"
}

// EncodeHTTPGenericResponse encodes failed responses with errorEncoder and
// everything else as JSON, honoring httptransport.StatusCoder.
func EncodeHTTPGenericResponse(errorEncoder httptransport.ErrorEncoder) httptransport.EncodeResponseFunc {
	return func(ctx context.Context, w http.ResponseWriter, response interface{}) error {
		if f, ok := response.(endpoint.Failer); ok && f.Failed() != nil {
			errorEncoder(ctx, f.Failed(), w)
			return nil
		}
		return httptransport.EncodeJSONResponse(ctx, w, response)
	}
}
