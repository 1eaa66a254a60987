package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/hupe1980/prospectmesh/logging"
	"golang.org/x/time/rate"
)

// Options configure a Client.
type Options struct {
	// Timeout bounds every call. Zero disables the per-call timeout.
	Timeout time.Duration

	// Limiter throttles outbound calls. Clients may share one limiter.
	Limiter *rate.Limiter

	HTTPClient *http.Client
	Logger     logging.Logger

	// Observer is notified after each call, e.g. for metrics.
	Observer func(service, method string, d time.Duration, err error)
}

// Client calls one collaborator service.
type Client struct {
	service string
	baseURL string
	opts    Options
	http    *http.Client
}

// NewLimiter returns a limiter allowing rps calls per second; rps <= 0 means
// unlimited.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// New creates a client for service at baseURL.
func New(service, baseURL string, optFns ...func(o *Options)) *Client {
	opts := Options{Timeout: 10 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	return &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts,
		http:    hc,
	}
}

// Service returns the collaborator name.
func (c *Client) Service() string { return c.service }

type request struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Call invokes method and decodes the result into out (which may be nil).
// It returns found=false when the collaborator answered with a null result.
func (c *Client) Call(ctx context.Context, method string, params, out any) (found bool, err error) {
	start := time.Now()
	defer func() {
		if c.opts.Observer != nil {
			c.opts.Observer(c.service, method, time.Since(start), err)
		}
		if rl, ok := c.opts.Logger.(interface {
			LogRPCCall(service, method string, dur time.Duration, err error)
		}); ok {
			rl.LogRPCCall(c.service, method, time.Since(start), err)
		}
	}()

	if c.opts.Limiter != nil {
		if err := c.opts.Limiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("%s.%s: rate limiter: %w", c.service, method, err)
		}
	}

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(request{Method: method, Params: params})
	if err != nil {
		return false, fmt.Errorf("%s.%s: failed to marshal params: %w", c.service, method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("%s.%s: failed to create request: %w", c.service, method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return false, &core.TransientError{Err: fmt.Errorf("%s.%s: %w", c.service, method, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return false, &core.TransientError{Err: fmt.Errorf("%s.%s: read response: %w", c.service, method, err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return false, &core.TransientError{Err: fmt.Errorf("%s.%s: status %d: %s", c.service, method, resp.StatusCode, strings.TrimSpace(string(raw)))}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return false, &core.RemoteError{Service: c.service, Code: fmt.Sprintf("http_%d", resp.StatusCode), Message: strings.TrimSpace(string(raw))}
		}
		return false, fmt.Errorf("%s.%s: malformed response: %w", c.service, method, err)
	}

	if len(env.Error) > 0 && string(env.Error) != "null" {
		return false, c.remoteError(env.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return false, &core.RemoteError{Service: c.service, Code: fmt.Sprintf("http_%d", resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
	}

	if len(env.Result) == 0 || string(env.Result) == "null" {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return true, fmt.Errorf("%s.%s: failed to decode result: %w", c.service, method, err)
		}
	}

	return true, nil
}

// remoteError decodes a string or {code, message} error body.
func (c *Client) remoteError(raw json.RawMessage) error {
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return &core.RemoteError{Service: c.service, Message: msg}
	}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		return &core.RemoteError{Service: c.service, Code: body.Code, Message: body.Message}
	}
	return &core.RemoteError{Service: c.service, Message: string(raw)}
}

// Health calls the health method.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.Call(ctx, "health", nil, nil); err != nil {
		return err
	}
	return nil
}

// IsUnknownMethod reports whether err is a collaborator rejecting the method.
func IsUnknownMethod(err error) bool {
	var re *core.RemoteError
	if !errors.As(err, &re) {
		return false
	}
	return re.Code == "unknown_method" || strings.EqualFold(re.Message, "unknown method")
}

var _ core.HealthChecker = (*Client)(nil)
