package authtransport

import (
	"context"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/transport"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/ichigozero/taskgate/authsvc"
	"github.com/twinj/uuid"
)

const RequestIDHeader = "X-Request-ID"

// HTTPToContext moves the raw Authorization header into the context, where
// authendpoint.NewAuthenticater expects it.
func HTTPToContext() httptransport.RequestFunc {
	return func(ctx context.Context, r *http.Request) context.Context {
		return context.WithValue(ctx, authsvc.HeaderContextKey, r.Header.Get("Authorization"))
	}
}

// RequestIDToContext keeps the inbound X-Request-ID or mints a new one.
func RequestIDToContext() httptransport.RequestFunc {
	return func(ctx context.Context, r *http.Request) context.Context {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewV4().String()
		}
		return authsvc.NewRequestIDContext(ctx, id)
	}
}

// RequestIDToHTTP echoes the request id on successful responses; the error
// encoders do the same on failures.
func RequestIDToHTTP() httptransport.ServerResponseFunc {
	return func(ctx context.Context, w http.ResponseWriter) context.Context {
		setRequestID(ctx, w)
		return ctx
	}
}

func setRequestID(ctx context.Context, w http.ResponseWriter) {
	if id, ok := authsvc.RequestIDFromContext(ctx); ok {
		w.Header().Set(RequestIDHeader, id)
	}
}

// ServerOptions are shared by every HTTP server of the gateway.
func ServerOptions(errorEncoder httptransport.ErrorEncoder, logger log.Logger) []httptransport.ServerOption {
	return []httptransport.ServerOption{
		httptransport.ServerErrorEncoder(errorEncoder),
		httptransport.ServerErrorHandler(transport.NewLogErrorHandler(logger)),
		httptransport.ServerBefore(RequestIDToContext(), HTTPToContext()),
		httptransport.ServerAfter(RequestIDToHTTP()),
	}
}
