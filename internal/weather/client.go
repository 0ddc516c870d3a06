// Package weather queries the Caiyun weather API and renders the result as
// notification text.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"caiyun/internal/apperrors"
	"caiyun/internal/httpclient"
	logx "caiyun/pkg/logx"
)

const (
	DefaultHost      = "api.caiyunapp.com"
	DefaultUserAgent = "ColorfulCloudsPro/5.0.10 (iPhone; iOS 14.0; Scale/3.00)"
	DefaultTimeout   = 15 * time.Second

	service = "caiyun"
)

// Client is bound to one HTTP client and token.
type Client struct {
	http      *httpclient.Client
	host      string
	userAgent string
	timeout   time.Duration
	extended  bool
	log       logx.Logger
}

type Option func(*Client)

func WithHost(h string) Option { return func(c *Client) { c.host = h } }

func WithUserAgent(ua string) Option { return func(c *Client) { c.userAgent = ua } }

func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithExtended asks for the full daily/hourly range and alerts.
func WithExtended(on bool) Option { return func(c *Client) { c.extended = on } }

func WithLogger(log logx.Logger) Option { return func(c *Client) { c.log = log } }

func NewClient(hc *httpclient.Client, opts ...Option) *Client {
	c := &Client{
		http:      hc,
		host:      DefaultHost,
		userAgent: DefaultUserAgent,
		timeout:   DefaultTimeout,
		extended:  true,
		log:       logx.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL builds the query URL. The API takes longitude first.
func (c *Client) URL(token string, lat, lng float64) string {
	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(c.host)
	b.WriteString("/v2.5/")
	b.WriteString(token)
	b.WriteByte('/')
	b.WriteString(strconv.FormatFloat(lng, 'f', -1, 64))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(lat, 'f', -1, 64))
	b.WriteString("/weather?lang=zh_CN")
	if c.extended {
		b.WriteString("&dailystart=0&hourlysteps=384&dailysteps=16&alert=true")
	}
	return b.String()
}

// Query fetches the weather at lat/lng.
//
// Transport failures and undecodable bodies come back as
// *apperrors.NetworkError; a "failed" status as *apperrors.UpstreamError
// carrying the API's error text. The token never appears in error text.
func (c *Client) Query(ctx context.Context, token string, lat, lng float64) (*Response, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperrors.Configuration("token", apperrors.ErrMissingToken)
	}
	url := c.URL(token, lat, lng)
	c.log.Debug("query weather", logx.String("url", redact(url, token)))

	resp, err := c.http.Get(ctx, httpclient.Request{
		URL:     url,
		Headers: map[string]string{"User-Agent": c.userAgent},
		Timeout: c.timeout,
	})
	if err != nil {
		return nil, &apperrors.NetworkError{Op: "query weather", Err: redactedError{err: err, secret: token}}
	}

	var out Response
	if err := json.Unmarshal([]byte(resp.Body), &out); err != nil {
		perr := &apperrors.ParseError{Source: "weather response", Err: err}
		if resp.StatusCode >= 400 {
			return nil, apperrors.Network("query weather", fmt.Errorf("status %d: %w", resp.StatusCode, perr))
		}
		return nil, apperrors.Network("query weather", perr)
	}
	if out.Status == "failed" {
		msg := out.Error
		if msg == "" {
			msg = "unknown error"
		}
		return nil, apperrors.Upstream(service, msg)
	}
	return &out, nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}

type redactedError struct {
	err    error
	secret string
}

func (e redactedError) Error() string { return redact(e.err.Error(), e.secret) }
func (e redactedError) Unwrap() error { return e.err }
