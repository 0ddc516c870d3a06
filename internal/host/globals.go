// Package host describes the primitives a scripting host can expose to the
// weather task.
//
// Every supported host family offers a different, incompatible subset:
// an async fetch call, a callback-style HTTP client, a preference store,
// a persistent store, a filesystem, one of several notification calls and a
// completion channel. Globals bundles whatever the running host provides;
// fields the host does not offer stay nil. Nothing in this package decides
// which family is active: see package capability.
package host

import (
	"context"
	"io"
)

// Globals is the set of primitives visible to the task.
//
// The zero value is a host with no primitives at all.
type Globals struct {
	// Fetch-style host: unified async HTTP, preference store, positional notify.
	Fetch  Fetcher
	Prefs  Prefs
	Notify NotifyFunc

	// Callback-style hosts: callback HTTP client, persistent store, posted
	// notifications. AltMarker distinguishes the second callback variant,
	// which differs only in how notification options are passed.
	HTTPClient   CallbackHTTP
	Store        PersistentStore
	Notification NotificationPoster
	AltMarker    bool

	// General-purpose host: modules loaded through require().
	Require *Modules

	// Sandboxed host: native request objects.
	NewRequest RequestFactory

	// Request is set when the task runs as an interceptor of an inbound request.
	Request *InboundRequest

	// Done delivers the completion payload on hosts with an explicit
	// completion call.
	Done Completer

	// Context is the ambient response object a general-purpose host reads
	// after the task returns.
	Context *TaskContext

	// Speech is an optional text-to-speech primitive.
	Speech Speaker

	// Console receives fallback output. Nil means stdout.
	Console io.Writer
}

// Modules are the require()-able libraries of a general-purpose host.
type Modules struct {
	HTTP CallbackHTTP
	FS   FS
	// Push is only present on hosts that can schedule local push
	// notifications.
	Push PushScheduler
}

// FetchRequest is the request shape accepted by a fetch-style host.
type FetchRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// FetchResponse is what a fetch-style host resolves with.
type FetchResponse struct {
	Status  int
	Headers map[string]string
	Body    string
}

// Fetcher is the unified async HTTP primitive of a fetch-style host.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// ResponseMeta is the metadata a callback HTTP client hands to its callback.
// Hosts disagree on the status field name, so both are carried; callers
// normalize with StatusCodeOrStatus.
type ResponseMeta struct {
	Status     int
	StatusCode int
	Headers    map[string]string
}

// StatusCodeOrStatus returns whichever status field the host populated.
func (m ResponseMeta) StatusCodeOrStatus() int {
	if m.Status != 0 {
		return m.Status
	}
	return m.StatusCode
}

// Callback receives the outcome of a callback-style HTTP call.
type Callback func(err error, meta ResponseMeta, body string)

// CallbackHTTP is a callback-style HTTP client. Implementations must invoke
// cb exactly once, from any goroutine.
type CallbackHTTP interface {
	Do(method string, req FetchRequest, cb Callback)
}

// Prefs is the key/value preference store of a fetch-style host.
type Prefs interface {
	ValueForKey(key string) (string, bool)
	SetValueForKey(value, key string) bool
	RemoveValueForKey(key string) bool
}

// PersistentStore is the read/write pair of a callback-style host.
// Delete is the equivalent of writing a null value.
type PersistentStore interface {
	Read(key string) (string, bool)
	Write(value, key string) bool
	Delete(key string) bool
}

// FS is the filesystem module of a general-purpose host.
type FS interface {
	Exists(path string) bool
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	// CreateExclusive creates path with data and fails if it already exists.
	CreateExclusive(path string, data []byte) error
}

// NotifyFunc is the positional notify call of a fetch-style host.
type NotifyFunc func(title, subtitle, body string, opts map[string]string)

// NotificationPoster is the object-style notification primitive of the
// callback-style hosts. opts may be nil.
type NotificationPoster interface {
	Post(title, subtitle, body string, opts map[string]string)
}

// PushScheduler schedules a local push notification.
type PushScheduler interface {
	Schedule(title, body string) error
}

// SandboxRequest is a native request object of a sandboxed host.
type SandboxRequest interface {
	SetMethod(method string)
	SetHeaders(headers map[string]string)
	SetBody(body string)
	LoadString(ctx context.Context) (string, error)
	// Response is only meaningful after LoadString returned.
	Response() (statusCode int, headers map[string]string)
}

// RequestFactory creates sandbox request objects.
type RequestFactory func(url string) SandboxRequest

// InboundRequest is the request a host hands to an interceptor script.
type InboundRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
}

// Completion is the payload delivered when the task finishes.
type Completion struct {
	StatusCode int               `json:"statusCode,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
}

// Completer signals task completion to the host.
type Completer func(c Completion)

// TaskContext is the ambient response object of a general-purpose host.
type TaskContext struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// Speaker reads text aloud.
type Speaker interface {
	Speak(text string, rate float64) error
}
