// Package task is the weather task itself: it resolves settings and a
// location, queries the forecast and notifies. Every failure ends as exactly
// one notification and the host is always told the run is done.
package task

import (
	"context"
	"fmt"
	"time"

	"caiyun/internal/adapter"
	"caiyun/internal/apperrors"
	"caiyun/internal/config"
	"caiyun/internal/geo"
	"caiyun/internal/notify"
	"caiyun/internal/weather"
	logx "caiyun/pkg/logx"
)

// HelpURL is attached to configuration failures.
const HelpURL = "https://t.me/cool_scripts"

type Option func(*Task)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(t *Task) { t.now = now } }

func WithWeatherClient(c *weather.Client) Option { return func(t *Task) { t.weather = c } }

func WithLocator(l *geo.Locator) Option { return func(t *Task) { t.locator = l } }

type Task struct {
	api     *adapter.API
	cfg     *config.Config
	weather *weather.Client
	locator *geo.Locator
	now     func() time.Time
}

// New wires the weather and geolocation clients to api's HTTP client.
func New(api *adapter.API, cfg *config.Config, opts ...Option) *Task {
	if cfg == nil {
		cfg = &config.Config{}
	}
	t := &Task{api: api, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	log := api.Logger()
	if t.weather == nil {
		wopts := []weather.Option{
			weather.WithExtended(cfg.Weather.ExtendedOrDefault()),
			weather.WithTimeout(cfg.Weather.TimeoutOr(weather.DefaultTimeout)),
			weather.WithLogger(log),
		}
		if cfg.Weather.APIHost != "" {
			wopts = append(wopts, weather.WithHost(cfg.Weather.APIHost))
		}
		if cfg.Weather.UserAgent != "" {
			wopts = append(wopts, weather.WithUserAgent(cfg.Weather.UserAgent))
		}
		t.weather = weather.NewClient(api.HTTP(), wopts...)
	}
	if t.locator == nil && !cfg.Geo.Disabled {
		t.locator = geo.NewLocator(api.HTTP(),
			geo.WithTimeout(cfg.Geo.TimeoutOr(geo.DefaultTimeout)),
			geo.WithLogger(log),
		)
	}
	return t
}

// Main runs intercept mode when the host handed over a request, run mode
// otherwise.
func (t *Task) Main(ctx context.Context) error {
	if t.api.Env().IsIntercept() {
		return t.Intercept(ctx)
	}
	return t.Run(ctx)
}

// Run queries the weather for the resolved location and notifies.
func (t *Task) Run(ctx context.Context) (err error) {
	defer t.api.Done(adapter.Result{})
	defer func() {
		if err != nil {
			t.report(err)
		}
	}()

	s := ResolveSettings(t.api, t.cfg)
	if s.Token == "" {
		return apperrors.Configuration("token", apperrors.ErrMissingToken)
	}
	t.api.Log("settings resolved",
		logx.String("token", maskToken(s.Token)),
		logx.Bool("minutely", s.Minutely),
		logx.Bool("tts", s.TTSEnabled),
	)

	loc := t.location(ctx)
	resp, err := t.weather.Query(ctx, s.Token, loc.Latitude, loc.Longitude)
	if err != nil {
		return err
	}

	now := t.now()
	sum := weather.Format(resp, now, weather.FormatOptions{
		Minutely:    s.Minutely,
		Location:    loc,
		HourlySteps: s.HourlySteps,
	})
	if s.DisplayLocation {
		sum.Body += fmt.Sprintf("\n📌 %.4f, %.4f", loc.Latitude, loc.Longitude)
	}
	t.api.Notify(sum.Title, sum.Subtitle, sum.Body, notify.Options{MediaURL: sum.MediaURL})
	t.speak(s, now, sum.Speech)
	return nil
}

// location prefers the stored location, then IP geolocation, then the
// default. It never fails.
func (t *Task) location(ctx context.Context) geo.Location {
	var stored geo.Location
	if ok, err := t.api.ReadInto(KeyLocation, &stored); err != nil {
		t.api.Log("stored location ignored", logx.Err(err))
	} else if ok && stored.Valid() {
		t.api.Log("using stored location", logx.String("location", stored.String()))
		return stored
	}

	if t.locator != nil {
		loc, err := t.locator.Lookup(ctx)
		if err == nil {
			if err := t.api.Write(KeyLocation, loc); err != nil {
				t.api.Error("persist location failed", logx.Err(err))
			}
			t.api.Notify(weather.TitlePrefix+" 自动定位", "📍 定位成功",
				fmt.Sprintf("位置: %s\n经纬度: %v, %v", cityOr(loc.City, "未知地区"), loc.Latitude, loc.Longitude),
				notify.Options{})
			return loc
		}
		t.api.Log("ip geolocation unavailable", logx.Err(err))
	}

	loc := geo.Default()
	t.api.Log("using default location", logx.String("city", loc.City))
	return loc
}

func (t *Task) speak(s Settings, now time.Time, text string) {
	speaker := t.api.Globals().Speech
	if !s.TTSEnabled || speaker == nil || text == "" {
		return
	}
	if !s.InWindow(now.Hour()) {
		t.api.Log("speech skipped outside window", logx.Int("hour", now.Hour()))
		return
	}
	if err := speaker.Speak(text, s.TTSSpeed); err != nil {
		t.api.Error("speech failed", logx.Err(err))
	}
}

// Intercept extracts a location from the intercepted request URL and
// stores it for later runs. The request always passes through untouched.
func (t *Task) Intercept(_ context.Context) (err error) {
	defer t.api.Done(adapter.Result{})
	defer func() {
		if err != nil {
			t.report(err)
		}
	}()

	req := t.api.Globals().Request
	if req == nil {
		return nil
	}
	loc, ok := geo.FromURL(req.URL)
	if !ok {
		t.api.Log("no location in request", logx.String("url", req.URL))
		return nil
	}

	var prev geo.Location
	had, _ := t.api.ReadInto(KeyLocation, &prev)
	if !had || !prev.Valid() {
		t.api.Notify(weather.TitlePrefix, "🎉 获取定位成功",
			fmt.Sprintf("经纬度: %v, %v", loc.Latitude, loc.Longitude), notify.Options{})
	}
	if err := t.api.Write(KeyLocation, loc); err != nil {
		return fmt.Errorf("persist location: %w", err)
	}
	if t.cfg.Task.Debug {
		t.api.Info("location updated", logx.Float64("latitude", loc.Latitude), logx.Float64("longitude", loc.Longitude))
	}
	return nil
}

// report turns err into the single failure notification of a run.
func (t *Task) report(err error) {
	t.api.Error("run failed", logx.Err(err))

	if apperrors.IsConfiguration(err) {
		t.api.Notify(weather.TitlePrefix, "⚠️ 配置错误",
			"未配置彩云天气 API Token，请在配置文件 weather.token 或 BoxJS 中填写后重试",
			notify.Options{OpenURL: HelpURL})
		return
	}
	msg := err.Error()
	if up, ok := apperrors.AsUpstream(err); ok {
		msg = up.Message
	}
	t.api.Notify(weather.TitlePrefix, "❌ 错误", msg, notify.Options{})
}

func maskToken(tok string) string {
	if len(tok) <= 5 {
		return "***"
	}
	return tok[:5] + "..."
}

func cityOr(city, def string) string {
	if city == "" {
		return def
	}
	return city
}
