package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"caiyun/internal/apperrors"
	"caiyun/internal/httpclient"
	logx "caiyun/pkg/logx"
)

var ErrNoProvider = errors.New("no ip geolocation provider answered")

// Provider is one IP geolocation endpoint.
type Provider struct {
	Name   string
	URL    string
	Source string
	// CountryField names the JSON field holding the country.
	CountryField string
}

// DefaultProviders are tried in order.
func DefaultProviders() []Provider {
	return []Provider{
		{Name: "ip.sb", URL: "https://api.ip.sb/geoip", Source: SourceIP, CountryField: "country"},
		{Name: "ipapi.co", URL: "https://ipapi.co/json/", Source: SourceIPBackup, CountryField: "country_name"},
	}
}

const DefaultTimeout = 5 * time.Second

type Locator struct {
	http      *httpclient.Client
	providers []Provider
	timeout   time.Duration
	log       logx.Logger
}

type LocatorOption func(*Locator)

func WithProviders(p ...Provider) LocatorOption {
	return func(l *Locator) { l.providers = p }
}

func WithTimeout(d time.Duration) LocatorOption {
	return func(l *Locator) { l.timeout = d }
}

func WithLogger(log logx.Logger) LocatorOption {
	return func(l *Locator) { l.log = log }
}

func NewLocator(hc *httpclient.Client, opts ...LocatorOption) *Locator {
	l := &Locator{http: hc, providers: DefaultProviders(), timeout: DefaultTimeout, log: logx.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lookup asks each provider in turn and returns the first usable answer.
func (l *Locator) Lookup(ctx context.Context) (Location, error) {
	var errs []error
	for _, p := range l.providers {
		loc, err := l.ask(ctx, p)
		if err == nil {
			return loc, nil
		}
		l.log.Warn("ip geolocation failed", logx.String("provider", p.Name), logx.Err(err))
		errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
		if ctx.Err() != nil {
			break
		}
	}
	return Location{}, errors.Join(append([]error{ErrNoProvider}, errs...)...)
}

func (l *Locator) ask(ctx context.Context, p Provider) (Location, error) {
	resp, err := l.http.Get(ctx, httpclient.Request{URL: p.URL, Timeout: l.timeout})
	if err != nil {
		return Location{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(resp.Body), &fields); err != nil {
		return Location{}, &apperrors.ParseError{Source: p.Name, Err: err}
	}
	var loc Location
	if err := json.Unmarshal([]byte(resp.Body), &loc); err != nil {
		return Location{}, &apperrors.ParseError{Source: p.Name, Err: err}
	}
	if !loc.Valid() {
		return Location{}, apperrors.ErrNoLocation
	}
	loc.Country = ""
	if raw, ok := fields[p.CountryField]; ok {
		_ = json.Unmarshal(raw, &loc.Country)
	}
	loc.Source = p.Source
	return loc, nil
}
