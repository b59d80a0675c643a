package authendpoint

import (
	"context"
	"time"

	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskgate/authsvc"
	"github.com/ichigozero/taskgate/authsvc/pkg/authservice"
)

// NewAuthenticater verifies the Authorization header captured by the
// transport and puts the resulting Identity in the context. The bare token is
// stored under kitjwt.JWTContextKey so outbound calls can forward it.
func NewAuthenticater(v *authservice.Verifier) endpoint.Middleware {
	return func(next endpoint.Endpoint) endpoint.Endpoint {
		return func(ctx context.Context, request interface{}) (interface{}, error) {
			header, _ := ctx.Value(authsvc.HeaderContextKey).(string)

			a, err := v.Verify(header)
			if err != nil {
				return nil, err
			}

			ctx = authsvc.NewContext(ctx, a)
			ctx = context.WithValue(ctx, kitjwt.JWTContextKey, authservice.Token(header))

			return next(ctx, request)
		}
	}
}

// AdminOnly must run after NewAuthenticater.
func AdminOnly() endpoint.Middleware {
	return func(next endpoint.Endpoint) endpoint.Endpoint {
		return func(ctx context.Context, request interface{}) (interface{}, error) {
			a, ok := authsvc.FromContext(ctx)
			if !ok {
				return nil, authsvc.ErrMissingCredential
			}
			if !a.IsAdmin() {
				return nil, authsvc.ErrAdminRequired
			}
			return next(ctx, request)
		}
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
