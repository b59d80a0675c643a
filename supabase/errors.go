package supabase

import (
	"fmt"
	"net/http"
)

// UpstreamError reports a call to the hosted service that failed or
// answered with a non-2xx status.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
	Err    error

	timeout     bool
	unavailable bool
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("upstream %s: %d %s", e.Op, e.Status, http.StatusText(e.Status))
	case e.Err != nil:
		return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("upstream %s failed", e.Op)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Timeout reports whether the call ran out of time before an answer arrived.
func (e *UpstreamError) Timeout() bool { return e.timeout }

// Unavailable reports whether the call was refused locally by the open
// circuit breaker.
func (e *UpstreamError) Unavailable() bool { return e.unavailable }

// Temporary reports whether repeating the call may succeed.
func (e *UpstreamError) Temporary() bool {
	if e.timeout {
		return true
	}
	if e.unavailable {
		return false
	}
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}
