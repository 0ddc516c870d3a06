package bindings

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"caiyun/internal/host"
)

// maxBody caps how much of a response body is read.
const maxBody = 8 << 20

// NetHTTP backs every HTTP primitive shape with one net/http client: the
// async fetch call, the callback client and sandbox request objects.
type NetHTTP struct {
	Client *http.Client
}

// NewNetHTTP returns a client whose transport-level timeout is timeout.
// Zero leaves requests bounded only by their context.
func NewNetHTTP(timeout time.Duration) *NetHTTP {
	return &NetHTTP{Client: &http.Client{Timeout: timeout}}
}

func (h *NetHTTP) client() *http.Client {
	if h.Client == nil {
		return http.DefaultClient
	}
	return h.Client
}

func (h *NetHTTP) Fetch(ctx context.Context, req host.FetchRequest) (host.FetchResponse, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	hr, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return host.FetchResponse{}, err
	}
	for k, v := range req.Headers {
		hr.Header.Set(k, v)
	}

	resp, err := h.client().Do(hr)
	if err != nil {
		return host.FetchResponse{}, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return host.FetchResponse{}, fmt.Errorf("read body: %w", err)
	}
	return host.FetchResponse{Status: resp.StatusCode, Headers: flatten(resp.Header), Body: string(b)}, nil
}

// Do runs the request on its own goroutine and reports through cb.
func (h *NetHTTP) Do(method string, req host.FetchRequest, cb host.Callback) {
	req.Method = method
	go func() {
		resp, err := h.Fetch(context.Background(), req)
		if err != nil {
			cb(err, host.ResponseMeta{}, "")
			return
		}
		cb(nil, host.ResponseMeta{StatusCode: resp.Status, Headers: resp.Headers}, resp.Body)
	}()
}

// NewRequest is a host.RequestFactory.
func (h *NetHTTP) NewRequest(url string) host.SandboxRequest {
	return &sandboxRequest{h: h, url: url, method: http.MethodGet}
}

type sandboxRequest struct {
	h       *NetHTTP
	url     string
	method  string
	headers map[string]string
	body    string

	status      int
	respHeaders map[string]string
}

func (r *sandboxRequest) SetMethod(method string)             { r.method = method }
func (r *sandboxRequest) SetHeaders(headers map[string]string) { r.headers = headers }
func (r *sandboxRequest) SetBody(body string)                  { r.body = body }

func (r *sandboxRequest) LoadString(ctx context.Context) (string, error) {
	resp, err := r.h.Fetch(ctx, host.FetchRequest{Method: r.method, URL: r.url, Headers: r.headers, Body: r.body})
	if err != nil {
		return "", err
	}
	r.status, r.respHeaders = resp.Status, resp.Headers
	return resp.Body, nil
}

func (r *sandboxRequest) Response() (int, map[string]string) { return r.status, r.respHeaders }

// flatten keeps the first value of each header.
func flatten(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
