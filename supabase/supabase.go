// Package supabase carries the outbound plumbing shared by every component that
// talks to the hosted auth (GoTrue) and REST (PostgREST) endpoints: request
// encoding, credential headers, timeouts, rate limiting, circuit breaking and
// the translation of transport failures into *UpstreamError.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/circuitbreaker"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/ratelimit"
	"github.com/go-kit/kit/sd"
	"github.com/go-kit/kit/sd/lb"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

type Config struct {
	URL        string
	Key        string
	ServiceKey string
	Timeout    time.Duration

	// RateLimit is the sustained number of outbound calls per second.
	RateLimit    float64
	RateBurst    int
	RetryMax     int
	RetryTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 100
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 100
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 1
	}
	if c.RetryTimeout <= 0 {
		c.RetryTimeout = c.Timeout
	}
	if c.ServiceKey == "" {
		c.ServiceKey = c.Key
	}
	return c
}

type Client struct {
	base    *url.URL
	cfg     Config
	http    *http.Client
	limiter endpoint.Middleware
	logger  log.Logger
}

func New(cfg Config, logger log.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, ErrURLMissing
	}
	if !strings.HasPrefix(cfg.URL, "http") {
		cfg.URL = "https://" + cfg.URL
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	return &Client{
		base:    u,
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: ratelimit.NewErroringLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)),
		logger:  logger,
	}, nil
}

var ErrURLMissing = errors.New("supabase URL is not configured")

// Request describes one call. Path is appended to the configured base URL.
type Request struct {
	Path   string
	Query  url.Values
	Prefer string
	Body   interface{}
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Endpoint returns a guarded endpoint issuing method requests. Writes must use
// Endpoint; idempotent reads may use ReadEndpoint to get retries.
func (c *Client) Endpoint(name, method string) endpoint.Endpoint {
	var e endpoint.Endpoint
	{
		e = httptransport.NewClient(
			method,
			c.base,
			c.encodeRequest,
			decodeResponse,
			httptransport.SetClient(c.http),
			httptransport.ClientBefore(c.credentials),
		).Endpoint()
		e = c.limiter(e)
		e = circuitbreaker.Gobreaker(gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
		}))(e)
	}
	return upstream(name, e)
}

// ReadEndpoint is Endpoint with retries on temporary upstream failures.
func (c *Client) ReadEndpoint(name, method string) endpoint.Endpoint {
	var (
		e        = c.Endpoint(name, method)
		balancer = lb.NewRoundRobin(sd.FixedEndpointer{e})
		max      = c.cfg.RetryMax
	)
	retry := lb.RetryWithCallback(c.cfg.RetryTimeout, balancer, func(n int, err error) (bool, error) {
		var ue *UpstreamError
		if n < max && errors.As(err, &ue) && ue.Temporary() {
			c.logger.Log("op", name, "attempt", n, "retry", true, "err", err)
			return true, nil
		}
		return false, nil
	})

	return func(ctx context.Context, request interface{}) (interface{}, error) {
		response, err := retry(ctx, request)
		if err == nil {
			return response, nil
		}
		if re, ok := err.(lb.RetryError); ok && re.Final != nil {
			err = re.Final
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = &UpstreamError{Op: name, Err: err, timeout: true}
		}
		return nil, err
	}
}

// ServiceContext makes calls issued with ctx carry the service-role key
// instead of the caller's token.
func (c *Client) ServiceContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, kitjwt.JWTContextKey, c.cfg.ServiceKey)
}

// AnonContext makes calls issued with ctx carry the anonymous API key.
func (c *Client) AnonContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, kitjwt.JWTContextKey, c.cfg.Key)
}

// credentials always sends the API key and forwards the bearer token found
// under kitjwt.JWTContextKey, falling back to the API key.
func (c *Client) credentials(ctx context.Context, r *http.Request) context.Context {
	r.Header.Set("apikey", c.cfg.Key)
	token, ok := ctx.Value(kitjwt.JWTContextKey).(string)
	if !ok || token == "" {
		token = c.cfg.Key
	}
	r.Header.Set("Authorization", "Bearer "+token)
	return ctx
}

func (c *Client) encodeRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(Request)

	r.URL.Path = strings.TrimRight(c.base.Path, "/") + req.Path
	if req.Query != nil {
		r.URL.RawQuery = req.Query.Encode()
	}
	if req.Prefer != "" {
		r.Header.Set("Prefer", req.Prefer)
	}
	r.Header.Set("Accept", "application/json")

	if req.Body == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req.Body); err != nil {
		return err
	}
	r.Header.Set("Content-Type", "application/json")
	r.ContentLength = int64(buf.Len())
	r.Body = ioutil.NopCloser(&buf)
	return nil
}

const maxErrorBody = 512

// decodeResponse fails only on replies that speak for the upstream's health.
// Client faults come back as a Response so the breaker does not count them;
// upstream turns them into *UpstreamError.
func decodeResponse(_ context.Context, r *http.Response) (interface{}, error) {
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	resp := Response{StatusCode: r.StatusCode, Header: r.Header, Body: body}
	if resp.ok() || resp.clientFault() {
		return resp, nil
	}
	return nil, resp.err("")
}

func (r Response) ok() bool { return r.StatusCode >= 200 && r.StatusCode <= 299 }

func (r Response) clientFault() bool {
	return r.StatusCode >= 400 && r.StatusCode <= 499 && r.StatusCode != http.StatusTooManyRequests
}

func (r Response) err(op string) *UpstreamError {
	msg := r.Body
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	return &UpstreamError{Op: op, Status: r.StatusCode, Body: string(msg)}
}

// upstream normalizes every failure of e into *UpstreamError, except the
// local limiter rejection which callers map on their own.
func upstream(name string, e endpoint.Endpoint) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		response, err := e(ctx, request)
		if err == nil {
			if r, ok := response.(Response); ok && !r.ok() {
				return nil, r.err(name)
			}
			return response, nil
		}

		var ue *UpstreamError
		switch {
		case errors.Is(err, ratelimit.ErrLimited):
			return nil, err
		case errors.As(err, &ue):
			if ue.Op == "" {
				ue.Op = name
			}
			return nil, ue
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, &UpstreamError{Op: name, Err: err, unavailable: true}
		case isTimeout(err):
			return nil, &UpstreamError{Op: name, Err: err, timeout: true}
		}
		return nil, &UpstreamError{Op: name, Err: err}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
