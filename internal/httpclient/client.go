// Package httpclient issues outbound HTTP requests through whichever
// transport the host family provides.
//
// Every call funnels through Client.Do: the request is merged over the client
// defaults, a relative URL is prefixed with the base URL, the OnRequest hook
// fires, and the call is dispatched to exactly one transport. When a timeout
// is set the transport races a timer. The losing side is not cancelled: host
// transports offer no cancellation primitive, so a timed-out request keeps
// running in the background and its eventual result is discarded (OnResponse
// never sees it).
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"caiyun/internal/apperrors"
	"caiyun/internal/capability"
	"caiyun/internal/host"
	logx "caiyun/pkg/logx"
)

var (
	ErrNoTransport    = errors.New("no http transport available on this host")
	ErrInvalidTimeout = errors.New("timeout must be >= 0")
)

// absoluteURL decides whether BaseURL applies.
var absoluteURL = regexp.MustCompile(`https?://(www\.)?[-a-zA-Z0-9@:%._\+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b([-a-zA-Z0-9()@:%_\+.~#?&//=]*)`)

// Hooks observe a request. Nil members are no-ops (OnResponse defaults to
// identity).
type Hooks struct {
	OnRequest  func(method string, req Request)
	OnResponse func(resp Response) Response
	OnTimeout  func()
}

// Request describes one outbound call. The method is passed separately.
type Request struct {
	URL     string
	BaseURL string
	Headers map[string]string
	Body    string
	// Timeout of 0 waits for the transport indefinitely.
	Timeout time.Duration
	Hooks   *Hooks
}

// Response is produced at most once per request.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// TimeoutError is returned when the timer wins the race.
type TimeoutError struct {
	Method  string
	URL     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s URL: %s exceeds the timeout %d ms", e.Method, e.URL, e.Timeout.Milliseconds())
}

// IsTimeout reports whether err's chain holds a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

type transport interface {
	roundTrip(ctx context.Context, method string, req Request) (Response, error)
}

type Option func(*Client)

// WithDefaults sets the client-level request every call is merged over.
func WithDefaults(r Request) Option {
	return func(c *Client) { c.defaults = r }
}

func WithLogger(log logx.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client is bound to one host transport for its lifetime.
type Client struct {
	defaults Request
	tr       transport
	log      logx.Logger
}

// New selects the transport for desc once.
func New(desc capability.Descriptor, g host.Globals, opts ...Option) *Client {
	c := &Client{log: logx.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	c.tr = selectTransport(desc, g)
	return c
}

func selectTransport(desc capability.Descriptor, g host.Globals) transport {
	switch desc.Family() {
	case capability.FamilyFetch:
		if g.Fetch != nil {
			return fetchTransport{f: g.Fetch}
		}
	case capability.FamilyCallback, capability.FamilyCallbackAlt:
		if g.HTTPClient != nil {
			return callbackTransport{c: g.HTTPClient}
		}
	case capability.FamilyGeneral:
		if g.Require != nil && g.Require.HTTP != nil {
			return callbackTransport{c: g.Require.HTTP}
		}
	case capability.FamilySandbox:
		if g.NewRequest != nil {
			return sandboxTransport{newRequest: g.NewRequest}
		}
	}
	return nil
}

func (c *Client) Get(ctx context.Context, req Request) (Response, error) {
	return c.Do(ctx, "GET", req)
}

func (c *Client) Post(ctx context.Context, req Request) (Response, error) {
	return c.Do(ctx, "POST", req)
}

func (c *Client) Put(ctx context.Context, req Request) (Response, error) {
	return c.Do(ctx, "PUT", req)
}

func (c *Client) Delete(ctx context.Context, req Request) (Response, error) {
	return c.Do(ctx, "DELETE", req)
}

func (c *Client) Head(ctx context.Context, req Request) (Response, error) {
	return c.Do(ctx, "HEAD", req)
}

func (c *Client) Options(ctx context.Context, req Request) (Response, error) {
	return c.Do(ctx, "OPTIONS", req)
}

func (c *Client) Patch(ctx context.Context, req Request) (Response, error) {
	return c.Do(ctx, "PATCH", req)
}

type result struct {
	resp Response
	err  error
}

// Do sends one request.
func (c *Client) Do(ctx context.Context, method string, req Request) (Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	r := merge(c.defaults, req)
	if r.BaseURL != "" && !absoluteURL.MatchString(r.URL) {
		r.URL = r.BaseURL + r.URL
	}
	if r.Timeout < 0 {
		return Response{}, fmt.Errorf("%s %s: %w", method, r.URL, ErrInvalidTimeout)
	}
	hooks := resolveHooks(r.Hooks)

	hooks.OnRequest(method, r)
	if c.tr == nil {
		return Response{}, apperrors.Network(method+" "+r.URL, ErrNoTransport)
	}
	c.log.Debug("http dispatch", logx.String("method", method), logx.String("host", origin(r.URL)), logx.Duration("timeout", r.Timeout))

	done := make(chan result, 1)
	tr := c.tr
	go func() {
		resp, err := tr.roundTrip(ctx, method, r)
		done <- result{resp: resp, err: err}
	}()

	var timeout <-chan time.Time
	if r.Timeout > 0 {
		t := time.NewTimer(r.Timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case res := <-done:
		if res.err != nil {
			return Response{}, apperrors.Network(method+" "+stripQuery(r.URL), res.err)
		}
		return hooks.OnResponse(res.resp), nil
	case <-timeout:
		hooks.OnTimeout()
		return Response{}, &apperrors.NetworkError{Err: &TimeoutError{Method: method, URL: r.URL, Timeout: r.Timeout}}
	case <-ctx.Done():
		return Response{}, apperrors.Network(method+" "+stripQuery(r.URL), ctx.Err())
	}
}

// merge lays req over def. Non-zero request fields win; maps and hooks are
// replaced, never merged key by key.
func merge(def, req Request) Request {
	out := def
	if req.URL != "" {
		out.URL = req.URL
	}
	if req.BaseURL != "" {
		out.BaseURL = req.BaseURL
	}
	if req.Headers != nil {
		out.Headers = req.Headers
	}
	if req.Body != "" {
		out.Body = req.Body
	}
	if req.Timeout != 0 {
		out.Timeout = req.Timeout
	}
	if req.Hooks != nil {
		out.Hooks = req.Hooks
	}
	return out
}

func resolveHooks(h *Hooks) Hooks {
	out := Hooks{
		OnRequest:  func(string, Request) {},
		OnResponse: func(r Response) Response { return r },
		OnTimeout:  func() {},
	}
	if h == nil {
		return out
	}
	if h.OnRequest != nil {
		out.OnRequest = h.OnRequest
	}
	if h.OnResponse != nil {
		out.OnResponse = h.OnResponse
	}
	if h.OnTimeout != nil {
		out.OnTimeout = h.OnTimeout
	}
	return out
}

// origin reduces u to scheme and host for logging. Paths may carry
// credentials.
func origin(u string) string {
	p, err := url.Parse(u)
	if err != nil || p.Host == "" {
		return "-"
	}
	return p.Scheme + "://" + p.Host
}

// stripQuery keeps tokens in query strings out of error text.
func stripQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}
