package task

import (
	"encoding/json"
	"strconv"
	"strings"

	"caiyun/internal/adapter"
	"caiyun/internal/config"
	logx "caiyun/pkg/logx"
)

// Store keys. "@root.a.b" names a path inside the JSON document kept
// under the direct key "root". When root is the store's own name that
// document is the bulk mapping itself.
const (
	KeyToken           = "@caiyun.token.caiyun"
	KeyLegacyToken     = "caiyun_token#"
	KeyTTSEnabled      = "@caiyun.tts.enabled"
	KeyTTSSpeed        = "@caiyun.tts.speed"
	KeyTTSStart        = "@caiyun.tts.schedule_start"
	KeyTTSEnd          = "@caiyun.tts.schedule_end"
	KeyTTSStartAlias   = "@caiyun.tts.start_hour"
	KeyTTSEndAlias     = "@caiyun.tts.end_hour"
	KeyMinutely        = "@caiyun.minutely.enabled"
	KeyDisplayLocation = "@caiyun.display_location"
	KeyLocation        = "location"
)

// Settings is the effective configuration of one run.
type Settings struct {
	Token           string
	Minutely        bool
	DisplayLocation bool
	HourlySteps     int

	TTSEnabled bool
	TTSSpeed   float64
	TTSStart   int
	TTSEnd     int
}

// ResolveSettings starts from the file config and overlays every value
// the host store holds. A malformed settings document is ignored.
func ResolveSettings(api *adapter.API, cfg *config.Config) Settings {
	if cfg == nil {
		cfg = &config.Config{}
	}
	start, end := cfg.TTS.Window()
	s := Settings{
		Token:           strings.TrimSpace(cfg.Weather.Token),
		Minutely:        cfg.Weather.MinutelyOrDefault(),
		DisplayLocation: cfg.Weather.DisplayLocation,
		HourlySteps:     cfg.Weather.HourlySteps,
		TTSEnabled:      cfg.TTS.EnabledOrDefault(),
		TTSSpeed:        cfg.TTS.SpeedOrDefault(),
		TTSStart:        start,
		TTSEnd:          end,
	}

	r := newPathReader(api)
	if v, ok := r.string(KeyToken); ok && v != "" {
		s.Token = v
	} else if s.Token == "" {
		if v, ok := api.Read(KeyLegacyToken); ok {
			s.Token = strings.TrimSpace(adapter.Stringify(v))
		}
	}
	if v, ok := r.bool(KeyTTSEnabled); ok {
		s.TTSEnabled = v
	}
	if v, ok := r.float(KeyTTSSpeed); ok && v > 0 {
		s.TTSSpeed = v
	}
	if v, ok := r.hour(KeyTTSStart, KeyTTSStartAlias); ok {
		s.TTSStart = v
	}
	if v, ok := r.hour(KeyTTSEnd, KeyTTSEndAlias); ok {
		s.TTSEnd = v
	}
	if v, ok := r.bool(KeyMinutely); ok {
		s.Minutely = v
	}
	if v, ok := r.bool(KeyDisplayLocation); ok {
		s.DisplayLocation = v
	}
	return s
}

// InWindow reports whether hour falls inside the speaking window. A start
// after the end wraps past midnight.
func (s Settings) InWindow(hour int) bool {
	if s.TTSStart <= s.TTSEnd {
		return hour >= s.TTSStart && hour <= s.TTSEnd
	}
	return hour >= s.TTSStart || hour <= s.TTSEnd
}

// pathReader caches the decoded settings documents of one run.
type pathReader struct {
	api  *adapter.API
	docs map[string]map[string]any
}

func newPathReader(api *adapter.API) *pathReader {
	return &pathReader{api: api, docs: map[string]map[string]any{}}
}

func (r *pathReader) lookup(key string) (any, bool) {
	if !strings.HasPrefix(key, "@") {
		return r.api.Read(key)
	}
	root, path, _ := strings.Cut(key[1:], ".")
	doc, ok := r.docs[root]
	if !ok {
		doc = r.load(root)
		r.docs[root] = doc
	}
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

func (r *pathReader) load(root string) map[string]any {
	if root == r.api.Store().Name() {
		return r.api.Store().Snapshot()
	}
	raw, ok := r.api.Store().ReadDirect(root)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		r.api.Log("settings document ignored", logx.String("key", root), logx.Err(err))
		return nil
	}
	return doc
}

func (r *pathReader) string(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s), true
	}
	return "", false
}

// bool accepts JSON booleans and the "true"/"false" strings BoxJS writes.
func (r *pathReader) bool(key string) (bool, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, err == nil
	}
	return false, false
}

// hour returns the first key holding an hour of the day.
func (r *pathReader) hour(keys ...string) (int, bool) {
	for _, k := range keys {
		if v, ok := r.float(k); ok && v >= 0 && v <= 23 {
			return int(v), true
		}
	}
	return 0, false
}

func (r *pathReader) float(key string) (float64, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
