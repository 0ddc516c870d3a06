package adapter

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caiyun/internal/host"
	"caiyun/internal/httpclient"
	"caiyun/internal/notify"
	logx "caiyun/pkg/logx"
)

type memPrefs struct {
	mu     sync.Mutex
	values map[string]string
}

func (p *memPrefs) ValueForKey(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[key]
	return v, ok
}

func (p *memPrefs) SetValueForKey(value, key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
	return true
}

func (p *memPrefs) RemoveValueForKey(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.values, key)
	return true
}

type echoFetch struct{ last host.FetchRequest }

func (f *echoFetch) Fetch(_ context.Context, req host.FetchRequest) (host.FetchResponse, error) {
	f.last = req
	return host.FetchResponse{Status: 200, Body: req.URL}, nil
}

type noCallback struct{}

func (noCallback) Do(string, host.FetchRequest, host.Callback) {}

type pushStub struct{}

func (pushStub) Schedule(string, string) error { return nil }

func fetchGlobals(prefs *memPrefs, done host.Completer, notifyFn host.NotifyFunc) host.Globals {
	return host.Globals{Fetch: &echoFetch{}, Prefs: prefs, Done: done, Notify: notifyFn}
}

func TestFacadeForwardsStorage(t *testing.T) {
	prefs := &memPrefs{values: map[string]string{}}
	api, err := New("caiyun", fetchGlobals(prefs, nil, nil))
	require.NoError(t, err)

	require.NoError(t, api.Write("#token", "abc"))
	require.NoError(t, api.Write("location", map[string]any{"latitude": 1.0}))

	v, ok := api.Read("#token")
	require.True(t, ok)
	assert.Equal(t, "abc", v)
	assert.Equal(t, "abc", prefs.values["token"])
	assert.JSONEq(t, `{"location":{"latitude":1}}`, prefs.values["caiyun"])

	require.NoError(t, api.Delete("location"))
	_, ok = api.Read("location")
	assert.False(t, ok)
}

func TestFacadeHTTPUsesDefaults(t *testing.T) {
	f := &echoFetch{}
	g := host.Globals{Fetch: f, Prefs: &memPrefs{values: map[string]string{}}}
	api, err := New("caiyun", g, WithHTTPDefaults(httpclient.Request{BaseURL: "https://api.example.com/"}))
	require.NoError(t, err)

	resp, err := api.HTTP().Get(context.Background(), httpclient.Request{URL: "v1"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1", resp.Body)
}

func TestFacadeNotifyForwards(t *testing.T) {
	var got []string
	g := fetchGlobals(&memPrefs{values: map[string]string{}}, nil, func(title, subtitle, body string, _ map[string]string) {
		got = append(got, title, subtitle, body)
	})
	api, err := New("caiyun", g)
	require.NoError(t, err)

	api.Notify("T", "S", "B", notify.Options{})
	assert.Equal(t, []string{"T", "S", "B"}, got)
}

func TestDoneIsDeliveredOnce(t *testing.T) {
	var calls []host.Completion
	g := fetchGlobals(&memPrefs{values: map[string]string{}}, func(c host.Completion) { calls = append(calls, c) }, nil)
	api, err := New("caiyun", g)
	require.NoError(t, err)

	api.Done(Result{Body: "first"})
	api.Done(Result{Body: "second"})
	require.Len(t, calls, 1)
	assert.Equal(t, "first", calls[0].Body)
}

func TestDoneWritesTaskContextOnGeneralHost(t *testing.T) {
	ctx := &host.TaskContext{}
	g := host.Globals{Require: &host.Modules{HTTP: noCallback{}, FS: newMemFS()}, Context: ctx}
	api, err := New("caiyun", g)
	require.NoError(t, err)

	api.Done(Result{StatusCode: 200, Headers: map[string]string{"A": "b"}, Body: "ok"})
	assert.Equal(t, host.TaskContext{StatusCode: 200, Headers: map[string]string{"A": "b"}, Body: "ok"}, *ctx)
}

func TestDoneIsNoopWithPush(t *testing.T) {
	ctx := &host.TaskContext{}
	g := host.Globals{Require: &host.Modules{HTTP: noCallback{}, FS: newMemFS(), Push: pushStub{}}, Context: ctx}
	api, err := New("caiyun", g)
	require.NoError(t, err)

	api.Done(Result{Body: "ok"})
	assert.Empty(t, ctx.Body)
}

func TestLogOnlyWhenDebug(t *testing.T) {
	for _, debug := range []bool{false, true} {
		var buf bytes.Buffer
		api, err := New("caiyun", host.Globals{}, WithDebug(debug), WithLogger(logx.NewJSON(&buf, "debug")))
		require.NoError(t, err)
		buf.Reset()

		api.Log("trace line")
		api.Info("info line")
		api.Error("error line")

		out := buf.String()
		assert.Contains(t, out, "info line")
		assert.Contains(t, out, "error line")
		assert.Contains(t, out, `"task":"caiyun"`)
		if debug {
			assert.Contains(t, out, "trace line")
		} else {
			assert.NotContains(t, out, "trace line")
		}
	}
}

func TestWait(t *testing.T) {
	api, err := New("caiyun", host.Globals{})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, api.Wait(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, api.Wait(ctx, time.Hour), context.Canceled)
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "string unchanged", in: "plain", want: "plain"},
		{name: "error", in: errors.New("boom"), want: "boom"},
		{name: "map", in: map[string]int{"a": 1}, want: "{\n  \"a\": 1\n}"},
		{name: "nil", in: nil, want: "null"},
		{name: "unserializable", in: math.Inf(1), want: Unserializable},
		{name: "channel", in: make(chan int), want: Unserializable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Stringify(tt.in))
		})
	}
}

func TestEnvReportsFamily(t *testing.T) {
	api, err := New("caiyun", host.Globals{HTTPClient: noCallback{}, AltMarker: true, Request: &host.InboundRequest{URL: "u"}})
	require.NoError(t, err)
	assert.True(t, api.Env().IsCallbackAlt())
	assert.True(t, api.Env().IsIntercept())
	assert.Equal(t, "callback-alt+intercept", api.Env().String())
}
