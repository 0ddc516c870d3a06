package bindings

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"caiyun/internal/capability"
	"caiyun/internal/config"
	"caiyun/internal/host"
	logx "caiyun/pkg/logx"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Method", r.Method)
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, r.Header.Get("X-Token")+"|"+string(b))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNetHTTPFetch(t *testing.T) {
	srv := echoServer(t)
	resp, err := NewNetHTTP(time.Second).Fetch(context.Background(), host.FetchRequest{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Headers: map[string]string{"X-Token": "t"},
		Body:    "payload",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.Status)
	assert.Equal(t, "POST", resp.Headers["X-Method"])
	assert.Equal(t, "t|payload", resp.Body)
}

func TestNetHTTPCallback(t *testing.T) {
	srv := echoServer(t)
	done := make(chan host.ResponseMeta, 1)
	NewNetHTTP(time.Second).Do(http.MethodPut, host.FetchRequest{URL: srv.URL, Body: "x"},
		func(err error, meta host.ResponseMeta, body string) {
			assert.NoError(t, err)
			assert.Equal(t, "|x", body)
			done <- meta
		})
	select {
	case meta := <-done:
		assert.Equal(t, http.StatusAccepted, meta.StatusCodeOrStatus())
		assert.Equal(t, "PUT", meta.Headers["X-Method"])
	case <-time.After(5 * time.Second):
		t.Fatal("callback never ran")
	}
}

func TestNetHTTPCallbackError(t *testing.T) {
	done := make(chan error, 1)
	NewNetHTTP(time.Second).Do(http.MethodGet, host.FetchRequest{URL: "http://127.0.0.1:0/"},
		func(err error, _ host.ResponseMeta, _ string) { done <- err })
	assert.Error(t, <-done)
}

func TestSandboxRequest(t *testing.T) {
	srv := echoServer(t)
	r := NewNetHTTP(time.Second).NewRequest(srv.URL)
	r.SetMethod(http.MethodPost)
	r.SetHeaders(map[string]string{"X-Token": "k"})
	r.SetBody("b")
	body, err := r.LoadString(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k|b", body)
	status, headers := r.Response()
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "POST", headers["X-Method"])
}

func TestSQLitePrefs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.db")
	p, err := OpenSQLitePrefs(path, time.Second, logx.Nop())
	require.NoError(t, err)

	_, ok := p.ValueForKey("caiyun")
	assert.False(t, ok)
	require.True(t, p.SetValueForKey(`{"a":1}`, "caiyun"))
	require.True(t, p.SetValueForKey(`{"a":2}`, "caiyun"))
	v, ok := p.ValueForKey("caiyun")
	require.True(t, ok)
	assert.Equal(t, `{"a":2}`, v)
	require.NoError(t, p.Close())

	p, err = OpenSQLitePrefs(path, 0, logx.Nop())
	require.NoError(t, err)
	defer p.Close()
	v, ok = p.ValueForKey("caiyun")
	require.True(t, ok)
	assert.Equal(t, `{"a":2}`, v)

	require.True(t, p.RemoveValueForKey("caiyun"))
	_, ok = p.ValueForKey("caiyun")
	assert.False(t, ok)
}

func TestFileStorePersistsSnapshots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := OpenFileStore(path, logx.Nop())
	require.NoError(t, err)

	require.True(t, s.Write("v1", "k"))
	require.True(t, s.Write("x", "other"))
	require.True(t, s.Delete("other"))
	require.True(t, s.Delete("missing"))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"v1"}`, string(b))
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	again, err := OpenFileStore(path, logx.Nop())
	require.NoError(t, err)
	v, ok := again.Read("k")
	assert.True(t, ok)
	assert.Equal(t, "v1", v)
}

func TestFileStoreCorruptSnapshotStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o600))
	s, err := OpenFileStore(path, logx.Nop())
	require.NoError(t, err)
	_, ok := s.Read("k")
	assert.False(t, ok)
}

func TestOSFS(t *testing.T) {
	fs := OSFS{Dir: t.TempDir()}
	assert.False(t, fs.Exists("root.json"))
	require.NoError(t, fs.CreateExclusive("root.json", []byte("{}")))
	assert.Error(t, fs.CreateExclusive("root.json", []byte("[]")))
	assert.True(t, fs.Exists("root.json"))

	require.NoError(t, fs.WriteFile("root.json", []byte(`{"a":"b"}`)))
	b, err := fs.ReadFile("root.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":"b"}`, string(b))
	_, err = fs.ReadFile("missing.json")
	assert.Error(t, err)
}

type fakeSender struct {
	mu    sync.Mutex
	chats []int64
	texts []string
	opts  []*tele.SendOptions
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, to.(*tele.Chat).ID)
	f.texts = append(f.texts, what.(string))
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok {
			f.opts = append(f.opts, so)
		}
	}
	return &tele.Message{ID: len(f.texts)}, nil
}

func TestTelegramNotifyRendersLinks(t *testing.T) {
	fs := &fakeSender{}
	tg := newTelegram(fs, config.TelegramConfig{ChatID: 42, ThreadID: 7, RatePerSec: 30}, logx.Nop())

	tg.Notify("Title", "Sub", "Body", map[string]string{"media-url": "https://img", "open-url": "https://open"})
	tg.Post("T2", "", "B2", map[string]string{"mediaUrl": "https://m"})
	require.NoError(t, tg.Schedule("T3", "B3"))

	require.Len(t, fs.texts, 3)
	assert.Equal(t, "Title\nSub\n\nBody\n🔗 https://open\n🖼 https://img", fs.texts[0])
	assert.Equal(t, "T2\n\nB2\n🖼 https://m", fs.texts[1])
	assert.Equal(t, "T3\n\nB3", fs.texts[2])
	assert.Equal(t, []int64{42, 42, 42}, fs.chats)
	assert.Equal(t, 7, fs.opts[0].ThreadID)
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitText("short", 10))

	long := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	assert.Equal(t, []string{"aaaaaa", "bbbbbb"}, splitText(long, 10))

	parts := splitText(strings.Repeat("字", 25), 10)
	assert.Len(t, parts, 3)
	for _, p := range parts {
		assert.LessOrEqual(t, len([]rune(p)), 10)
	}
}

func TestCommandSpeaker(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	out := filepath.Join(t.TempDir(), "spoken.txt")

	s := CommandSpeaker{Command: []string{"sh", "-c", `printf '%s@%s' "$1" "$2" > "$0"`, out, "{text}", "{rate}"}}
	require.NoError(t, s.Speak("晴", 0.6))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "晴@0.6", string(b))

	stdin := CommandSpeaker{Command: []string{"sh", "-c", `cat > "$0"`, out}}
	require.NoError(t, stdin.Speak("from stdin", 1))
	b, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", string(b))

	assert.Error(t, CommandSpeaker{}.Speak("x", 1))
	assert.Error(t, CommandSpeaker{Command: []string{"sh", "-c", "exit 3"}}.Speak("x", 1))
}

func TestEmitResult(t *testing.T) {
	var buf bytes.Buffer
	EmitResult(&buf, logx.Nop())(host.Completion{StatusCode: 200, Body: "ok"})
	assert.JSONEq(t, `{"statusCode":200,"body":"ok"}`, buf.String())
}

func TestAssembleFamilies(t *testing.T) {
	tests := []struct {
		family string
		want   capability.Family
	}{
		{"", capability.FamilyGeneral},
		{"auto", capability.FamilyGeneral},
		{"fetch", capability.FamilyFetch},
		{"callback", capability.FamilyCallback},
		{"callback-alt", capability.FamilyCallbackAlt},
		{"general", capability.FamilyGeneral},
		{"sandbox", capability.FamilySandbox},
	}
	for _, tt := range tests {
		t.Run(tt.family, func(t *testing.T) {
			cfg := &config.Config{Host: config.HostConfig{Family: tt.family, DataDir: t.TempDir()}}
			h, err := Assemble(cfg, Options{Result: io.Discard})
			require.NoError(t, err)
			defer h.Close()

			assert.Equal(t, tt.want, h.Family)
			assert.Equal(t, tt.want, capability.Detect(h.Globals).Family())
		})
	}
}

func TestAssembleGeneralPushNeedsTelegram(t *testing.T) {
	cfg := &config.Config{
		Host:     config.HostConfig{Family: "general", DataDir: t.TempDir(), Push: true},
		Telegram: &config.TelegramConfig{Token: "123:abc", ChatID: 1},
	}
	h, err := Assemble(cfg, Options{})
	require.NoError(t, err)
	defer h.Close()
	assert.True(t, capability.Detect(h.Globals).HasPush())
}

func TestAssembleIntercept(t *testing.T) {
	cfg := &config.Config{Host: config.HostConfig{Family: "sandbox"}}
	h, err := Assemble(cfg, Options{Request: &host.InboundRequest{URL: "https://x/geocode/1/2/"}})
	require.NoError(t, err)
	assert.True(t, capability.Detect(h.Globals).IsIntercept())
}

func TestAssembleRejectsUnknownFamily(t *testing.T) {
	_, err := Assemble(&config.Config{Host: config.HostConfig{Family: "browser"}}, Options{})
	assert.Error(t, err)
}

func TestFlushEmitsGeneralContext(t *testing.T) {
	var out bytes.Buffer
	cfg := &config.Config{Host: config.HostConfig{Family: "general", DataDir: t.TempDir()}}
	h, err := Assemble(cfg, Options{Result: &out})
	require.NoError(t, err)
	defer h.Close()

	h.Globals.Context.StatusCode = 200
	h.Globals.Context.Body = "ok"
	h.Flush()
	assert.JSONEq(t, `{"statusCode":200,"body":"ok"}`, out.String())
}

func TestFlushWithoutResultIsSilent(t *testing.T) {
	cfg := &config.Config{Host: config.HostConfig{Family: "general", DataDir: t.TempDir()}}
	h, err := Assemble(cfg, Options{})
	require.NoError(t, err)
	defer h.Close()
	h.Flush()
}
