package task

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caiyun/internal/adapter"
	"caiyun/internal/config"
	"caiyun/internal/geo"
	"caiyun/internal/host"
)

const okWeather = `{
  "status": "ok",
  "result": {
    "forecast_keypoint": "今天晴朗",
    "realtime": {
      "status": "ok",
      "temperature": 20.4,
      "apparent_temperature": 19.2,
      "humidity": 0.5,
      "skycon": "CLEAR_DAY",
      "wind": {"speed": 5, "direction": 90},
      "life_index": {"ultraviolet": {"desc": "弱"}, "comfort": {"desc": "舒适"}}
    }
  }
}`

type memPrefs struct {
	mu       sync.Mutex
	values   map[string]string
	readOnly bool
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
	if p.readOnly {
		return false
	}
	p.values[key] = value
	return true
}

func (p *memPrefs) RemoveValueForKey(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.values, key)
	return true
}

// routeFetch answers by URL substring; unknown URLs fail.
type routeFetch struct {
	mu     sync.Mutex
	routes map[string]string
	urls   []string
}

func (f *routeFetch) Fetch(_ context.Context, req host.FetchRequest) (host.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, req.URL)
	for frag, body := range f.routes {
		if strings.Contains(req.URL, frag) {
			return host.FetchResponse{Status: 200, Body: body}, nil
		}
	}
	return host.FetchResponse{}, errors.New("connection refused")
}

func (f *routeFetch) called(frag string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.urls {
		if strings.Contains(u, frag) {
			return true
		}
	}
	return false
}

type sent struct {
	title, subtitle, body string
	opts                  map[string]string
}

type speakerFunc func(text string, rate float64) error

func (f speakerFunc) Speak(text string, rate float64) error { return f(text, rate) }

type harness struct {
	prefs   *memPrefs
	fetch   *routeFetch
	notes   []sent
	dones   int
	spoken  []string
	globals host.Globals
}

func newHarness(routes map[string]string) *harness {
	h := &harness{
		prefs: &memPrefs{values: map[string]string{}},
		fetch: &routeFetch{routes: routes},
	}
	h.globals = host.Globals{
		Fetch: h.fetch,
		Prefs: h.prefs,
		Notify: func(title, subtitle, body string, opts map[string]string) {
			h.notes = append(h.notes, sent{title, subtitle, body, opts})
		},
		Done: func(host.Completion) { h.dones++ },
		Speech: speakerFunc(func(text string, _ float64) error {
			h.spoken = append(h.spoken, text)
			return nil
		}),
	}
	return h
}

func (h *harness) task(t *testing.T, cfg *config.Config, at time.Time) *Task {
	t.Helper()
	api, err := adapter.New("caiyun", h.globals)
	require.NoError(t, err)
	return New(api, cfg, WithClock(func() time.Time { return at }))
}

func noon() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func withToken(tok string) *config.Config {
	return &config.Config{Weather: config.WeatherConfig{Token: tok}}
}

func TestMissingTokenNotifiesConfigurationHint(t *testing.T) {
	h := newHarness(nil)
	err := h.task(t, &config.Config{}, noon()).Run(context.Background())
	require.Error(t, err)

	require.Len(t, h.notes, 1)
	assert.Equal(t, "⚠️ 配置错误", h.notes[0].subtitle)
	assert.Equal(t, HelpURL, h.notes[0].opts["open-url"])
	assert.Equal(t, 1, h.dones)
	assert.Empty(t, h.fetch.urls)
}

func TestStoredLocationIsUsed(t *testing.T) {
	h := newHarness(map[string]string{"api.caiyunapp.com": okWeather})
	h.prefs.values["caiyun"] = `{"location":{"latitude":31.23,"longitude":121.47,"city":"上海","source":"系统定位"}}`

	require.NoError(t, h.task(t, withToken("tok"), noon()).Run(context.Background()))

	assert.True(t, h.fetch.called("/121.47,31.23/weather"))
	assert.False(t, h.fetch.called("ip.sb"))
	require.Len(t, h.notes, 1)
	n := h.notes[0]
	assert.Equal(t, "[彩云天气] 上海", n.title)
	assert.Contains(t, n.subtitle, "20°C")
	assert.Contains(t, n.body, "今天晴朗")
	assert.Contains(t, n.body, "📍 位置来源: 系统定位 (上海)")
	assert.NotEmpty(t, n.opts["media-url"])
	assert.Equal(t, 1, h.dones)
	assert.Len(t, h.spoken, 1)
}

func TestIPLocationIsPersistedAndAnnounced(t *testing.T) {
	h := newHarness(map[string]string{
		"api.ip.sb":         `{"latitude": 22.54, "longitude": 114.06, "city": "深圳", "country": "China"}`,
		"api.caiyunapp.com": okWeather,
	})

	require.NoError(t, h.task(t, withToken("tok"), noon()).Run(context.Background()))

	require.Len(t, h.notes, 2)
	assert.Equal(t, "[彩云天气] 自动定位", h.notes[0].title)
	assert.Equal(t, "📍 定位成功", h.notes[0].subtitle)
	assert.Contains(t, h.notes[0].body, "深圳")
	assert.True(t, h.fetch.called("/114.06,22.54/weather"))

	var stored geo.Location
	api, err := adapter.New("caiyun", h.globals)
	require.NoError(t, err)
	ok, err := api.ReadInto(KeyLocation, &stored)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "深圳", stored.City)
	assert.Equal(t, geo.SourceIP, stored.Source)
}

func TestDefaultLocationWhenGeolocationFails(t *testing.T) {
	h := newHarness(map[string]string{"api.caiyunapp.com": okWeather})

	require.NoError(t, h.task(t, withToken("tok"), noon()).Run(context.Background()))

	assert.True(t, h.fetch.called("/116.4074,39.9042/weather"))
	require.Len(t, h.notes, 1)
	assert.Contains(t, h.notes[0].body, "📍 位置来源: 默认 (北京)")
	_, stored := h.prefs.values["caiyun"]
	assert.False(t, stored, "default location must not be persisted")
}

func TestUpstreamFailureNotifiesOnce(t *testing.T) {
	h := newHarness(map[string]string{"api.caiyunapp.com": `{"status":"failed","error":"Invalid token"}`})
	h.prefs.values["caiyun"] = `{"location":{"latitude":31.23,"longitude":121.47}}`

	err := h.task(t, withToken("bad"), noon()).Run(context.Background())
	require.Error(t, err)

	require.Len(t, h.notes, 1)
	assert.Equal(t, "[彩云天气]", h.notes[0].title)
	assert.Equal(t, "❌ 错误", h.notes[0].subtitle)
	assert.Equal(t, "Invalid token", h.notes[0].body)
	assert.Equal(t, 1, h.dones)
}

func TestNetworkFailureHidesToken(t *testing.T) {
	h := newHarness(nil)
	h.prefs.values["caiyun"] = `{"location":{"latitude":31.23,"longitude":121.47}}`

	err := h.task(t, withToken("supersecret"), noon()).Run(context.Background())
	require.Error(t, err)
	require.Len(t, h.notes, 1)
	assert.NotContains(t, h.notes[0].body, "supersecret")
}

func TestStoreSettingsOverrideFile(t *testing.T) {
	h := newHarness(nil)
	h.prefs.values["caiyun"] = `{"token":{"caiyun":"from-store"},"tts":{"enabled":"false","speed":"1.2","start_hour":6,"schedule_end":"21"},"minutely":{"enabled":false},"display_location":true}`

	api, err := adapter.New("caiyun", h.globals)
	require.NoError(t, err)
	s := ResolveSettings(api, withToken("from-file"))

	assert.Equal(t, "from-store", s.Token)
	assert.False(t, s.TTSEnabled)
	assert.Equal(t, 1.2, s.TTSSpeed)
	assert.Equal(t, 6, s.TTSStart)
	assert.Equal(t, 21, s.TTSEnd)
	assert.False(t, s.Minutely)
	assert.True(t, s.DisplayLocation)
}

func TestStoreWindowKeys(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		start, end int
	}{
		{"schedule keys", `{"tts":{"schedule_start":"7","schedule_end":"21"}}`, 7, 21},
		{"hour aliases", `{"tts":{"start_hour":9,"end_hour":20}}`, 9, 20},
		{"schedule keys win", `{"tts":{"schedule_start":6,"start_hour":9}}`, 6, config.DefaultTTSEnd},
		{"out of range ignored", `{"tts":{"schedule_start":30}}`, config.DefaultTTSStart, config.DefaultTTSEnd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(nil)
			h.prefs.values["caiyun"] = tt.doc
			api, err := adapter.New("caiyun", h.globals)
			require.NoError(t, err)

			s := ResolveSettings(api, &config.Config{})
			assert.Equal(t, tt.start, s.TTSStart)
			assert.Equal(t, tt.end, s.TTSEnd)
		})
	}
}

func TestInWindow(t *testing.T) {
	day := Settings{TTSStart: 8, TTSEnd: 22}
	assert.True(t, day.InWindow(8))
	assert.True(t, day.InWindow(22))
	assert.False(t, day.InWindow(23))

	night := Settings{TTSStart: 22, TTSEnd: 6}
	assert.True(t, night.InWindow(23))
	assert.True(t, night.InWindow(0))
	assert.True(t, night.InWindow(6))
	assert.False(t, night.InWindow(12))
}

func TestSettingsFallBackOnMalformedDocument(t *testing.T) {
	h := newHarness(nil)
	h.prefs.values["caiyun"] = `{not json`
	h.prefs.values["caiyun_token"] = "legacy"

	api, err := adapter.New("caiyun", h.globals)
	require.NoError(t, err)
	s := ResolveSettings(api, &config.Config{})

	assert.Equal(t, "legacy", s.Token)
	assert.True(t, s.TTSEnabled)
	assert.True(t, s.Minutely)
}

func TestSpeechOnlyInsideWindow(t *testing.T) {
	h := newHarness(map[string]string{"api.caiyunapp.com": okWeather})
	h.prefs.values["caiyun"] = `{"location":{"latitude":31.23,"longitude":121.47}}`

	late := time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)
	require.NoError(t, h.task(t, withToken("tok"), late).Run(context.Background()))
	assert.Empty(t, h.spoken)
	assert.Len(t, h.notes, 1)
}

func TestInterceptStoresLocationAndNotifiesOnce(t *testing.T) {
	h := newHarness(nil)
	h.globals.Request = &host.InboundRequest{URL: "https://weather-data.apple.com/v2/weather/zh-CN/30.5/114.3?include=current"}

	require.NoError(t, h.task(t, &config.Config{}, noon()).Main(context.Background()))
	require.Len(t, h.notes, 1)
	assert.Equal(t, "🎉 获取定位成功", h.notes[0].subtitle)
	assert.Equal(t, 1, h.dones)

	h.globals.Request = &host.InboundRequest{URL: "https://weather-data.apple.com/v2/weather/zh-CN/30.6/114.4?include=current"}
	require.NoError(t, h.task(t, &config.Config{}, noon()).Main(context.Background()))
	assert.Len(t, h.notes, 1, "second location must not notify")

	api, err := adapter.New("caiyun", h.globals)
	require.NoError(t, err)
	var stored geo.Location
	ok, err := api.ReadInto(KeyLocation, &stored)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 30.6, stored.Latitude)
	assert.Equal(t, 114.4, stored.Longitude)
}

func TestInterceptPersistFailureNotifies(t *testing.T) {
	h := newHarness(nil)
	h.prefs.readOnly = true
	h.globals.Request = &host.InboundRequest{URL: "https://weather-data.apple.com/v2/weather/zh-CN/30.5/114.3?include=current"}

	err := h.task(t, &config.Config{}, noon()).Main(context.Background())
	require.Error(t, err)
	require.NotEmpty(t, h.notes)
	last := h.notes[len(h.notes)-1]
	assert.Equal(t, "❌ 错误", last.subtitle)
	assert.Contains(t, last.body, "persist location")
	assert.Equal(t, 1, h.dones)
}

func TestInterceptIgnoresUnrelatedURL(t *testing.T) {
	h := newHarness(nil)
	h.globals.Request = &host.InboundRequest{URL: "https://example.com/"}

	require.NoError(t, h.task(t, &config.Config{}, noon()).Main(context.Background()))
	assert.Empty(t, h.notes)
	assert.Equal(t, 1, h.dones)
}
