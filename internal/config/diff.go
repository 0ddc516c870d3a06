package config

import (
	"reflect"
	"strings"

	logx "caiyun/pkg/logx"
)

// Changes lists the sections that differ between two configs plus log
// fields describing the new values. Tokens are never included.
func Changes(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var (
		changed []string
		attrs   []logx.Field
	)
	mark := func(section string, fields ...logx.Field) {
		changed = append(changed, section)
		attrs = append(attrs, fields...)
	}

	if oldCfg.Task != newCfg.Task {
		mark("task", logx.String("task.name", newCfg.TaskName()), logx.Bool("task.debug", newCfg.Task.Debug))
	}
	if oldCfg.Host != newCfg.Host {
		mark("host", logx.String("host.family", newCfg.Host.Family), logx.Bool("host.push", newCfg.Host.Push))
	}
	if !reflect.DeepEqual(oldCfg.Weather, newCfg.Weather) {
		mark("weather",
			logx.Bool("weather.token_set", strings.TrimSpace(newCfg.Weather.Token) != ""),
			logx.Bool("weather.token_changed", oldCfg.Weather.Token != newCfg.Weather.Token),
			logx.Bool("weather.extended", newCfg.Weather.ExtendedOrDefault()),
			logx.Bool("weather.minutely", newCfg.Weather.MinutelyOrDefault()),
		)
	}
	if !reflect.DeepEqual(oldCfg.TTS, newCfg.TTS) {
		start, end := newCfg.TTS.Window()
		mark("tts",
			logx.Bool("tts.enabled", newCfg.TTS.EnabledOrDefault()),
			logx.Int("tts.start_hour", start),
			logx.Int("tts.end_hour", end),
		)
	}
	if oldCfg.Geo != newCfg.Geo {
		mark("geo", logx.Bool("geo.disabled", newCfg.Geo.Disabled))
	}
	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		fields := []logx.Field{logx.Bool("telegram.enabled", newCfg.Telegram != nil)}
		if newCfg.Telegram != nil {
			fields = append(fields, logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID))
		}
		mark("telegram", fields...)
	}
	if oldCfg.Logging != newCfg.Logging {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		mark("scheduler",
			logx.String("scheduler.schedule", newCfg.Scheduler.Schedule),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}
	return changed, attrs
}
