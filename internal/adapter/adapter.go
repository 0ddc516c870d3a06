// Package adapter is the single surface task code uses to reach the host:
// storage, outbound HTTP, notifications, logging and completion.
package adapter

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"caiyun/internal/capability"
	"caiyun/internal/host"
	"caiyun/internal/httpclient"
	"caiyun/internal/kvstore"
	"caiyun/internal/notify"
	logx "caiyun/pkg/logx"
)

// Result is the completion payload handed back to the host.
type Result struct {
	StatusCode int               `json:"statusCode,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
}

// Unserializable is what Stringify returns when a value cannot be encoded.
const Unserializable = "[unserializable]"

type Option func(*options)

type options struct {
	debug    bool
	log      logx.Logger
	defaults httpclient.Request
}

func WithDebug(on bool) Option { return func(o *options) { o.debug = on } }

func WithLogger(log logx.Logger) Option { return func(o *options) { o.log = log } }

// WithHTTPDefaults sets the request every HTTP call is merged over.
func WithHTTPDefaults(r httpclient.Request) Option {
	return func(o *options) { o.defaults = r }
}

// API composes the host-facing components for one named task.
type API struct {
	name  string
	debug bool
	desc  capability.Descriptor
	g     host.Globals
	log   logx.Logger

	store    *kvstore.Store
	http     *httpclient.Client
	notifier *notify.Notifier

	doneOnce sync.Once
}

// New detects the host family and opens the store named name.
func New(name string, g host.Globals, opts ...Option) (*API, error) {
	o := options{log: logx.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log.IsZero() {
		o.log = logx.Nop()
	}
	log := o.log.With(logx.String("task", name))
	desc := capability.Detect(g)

	store, err := kvstore.Open(name, desc, g, log)
	if err != nil {
		return nil, err
	}
	a := &API{
		name:     name,
		debug:    o.debug,
		desc:     desc,
		g:        g,
		log:      log,
		store:    store,
		http:     httpclient.New(desc, g, httpclient.WithDefaults(o.defaults), httpclient.WithLogger(log)),
		notifier: notify.New(desc, g, log),
	}
	a.Log("adapter ready", logx.String("env", desc.String()))
	return a, nil
}

func (a *API) Name() string { return a.name }

// Env is the detected host descriptor.
func (a *API) Env() capability.Descriptor { return a.desc }

func (a *API) Debug() bool { return a.debug }

// Globals exposes the raw host primitives for the few callers that need one
// directly (the inbound request, speech).
func (a *API) Globals() host.Globals { return a.g }

// Logger is the task-scoped logger, independent of the debug flag.
func (a *API) Logger() logx.Logger { return a.log }

func (a *API) Store() *kvstore.Store { return a.store }

func (a *API) HTTP() *httpclient.Client { return a.http }

// Read accepts raw keys; a key containing the sentinel is direct.
func (a *API) Read(key string) (any, bool) { return a.store.Read(kvstore.ParseKey(key)) }

func (a *API) Write(key string, value any) error {
	return a.store.Write(kvstore.ParseKey(key), value)
}

func (a *API) Delete(key string) error { return a.store.Delete(kvstore.ParseKey(key)) }

func (a *API) ReadInto(key string, out any) (bool, error) {
	return a.store.ReadInto(kvstore.ParseKey(key), out)
}

func (a *API) Notify(title, subtitle, body string, opts notify.Options) {
	a.Log("notify", logx.String("text", notify.String(title, subtitle, body)))
	a.notifier.Notify(title, subtitle, body, opts)
}

// Log emits only when the debug flag is set.
func (a *API) Log(msg string, fields ...logx.Field) {
	if !a.debug {
		return
	}
	a.log.Info(msg, fields...)
}

func (a *API) Info(msg string, fields ...logx.Field) { a.log.Info(msg, fields...) }

func (a *API) Error(msg string, fields ...logx.Field) { a.log.Error(msg, fields...) }

// Wait blocks for d or until ctx is done.
func (a *API) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done delivers r through the host's completion channel. Only the first
// call has any effect.
func (a *API) Done(r Result) {
	a.doneOnce.Do(func() {
		a.Log("done", logx.Int("status", r.StatusCode))
		switch {
		case a.desc.IsFetch() || a.desc.CallbackStyle():
			if a.g.Done != nil {
				a.g.Done(host.Completion(r))
			}
		case a.desc.IsGeneral() && !a.desc.HasPush():
			if c := a.g.Context; c != nil {
				c.StatusCode = r.StatusCode
				c.Headers = r.Headers
				c.Body = r.Body
			}
		}
	})
}

func (a *API) Stringify(v any) string { return Stringify(v) }

// Stringify renders v for logs and notification bodies.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case error:
		return t.Error()
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Unserializable
	}
	return string(b)
}
