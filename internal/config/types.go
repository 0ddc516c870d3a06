package config

// Config is the file configuration of the weather task. Settings stored by
// the host (see package task) are overlaid on top of it at run time.
type Config struct {
	Task      TaskConfig      `json:"task"`
	Host      HostConfig      `json:"host"`
	Weather   WeatherConfig   `json:"weather"`
	TTS       TTSConfig       `json:"tts"`
	Geo       GeoConfig       `json:"geo"`
	Telegram  *TelegramConfig `json:"telegram,omitempty"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

// TaskConfig names the task. The name doubles as the storage namespace.
type TaskConfig struct {
	Name  string `json:"name,omitempty" validate:"omitempty,max=64,excludesall=#/"`
	Debug bool   `json:"debug,omitempty"`
}

// HostConfig selects which host primitives the CLI assembles.
//
// Family "auto" (or empty) assembles the general-purpose host.
//
// Example:
//
//	"host": { "family": "fetch", "data_dir": "./data" }
type HostConfig struct {
	Family  string `json:"family,omitempty" validate:"omitempty,oneof=auto fetch callback callback-alt general sandbox"`
	DataDir string `json:"data_dir,omitempty"`
	// Push enables local push on the general-purpose host (needs telegram).
	Push bool `json:"push,omitempty"`
	// BusyTimeout is a Go duration string (sqlite preference store).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type WeatherConfig struct {
	// Token is the Caiyun API token (do not log).
	Token     string `json:"token,omitempty"`
	APIHost   string `json:"api_host,omitempty" validate:"omitempty,hostname_port|hostname"`
	UserAgent string `json:"user_agent,omitempty"`
	// Timeout is a Go duration string. Default "15s".
	Timeout string `json:"timeout,omitempty"`
	// Extended requests the full hourly/daily range and alerts. Default true.
	Extended *bool `json:"extended,omitempty"`
	// Minutely adds the minute-level precipitation line. Default true.
	Minutely        *bool `json:"minutely,omitempty"`
	DisplayLocation bool  `json:"display_location,omitempty"`
	HourlySteps     int   `json:"hourly_steps,omitempty" validate:"gte=0,lte=24"`
}

// TTSConfig controls the spoken summary. It is only spoken between
// StartHour and EndHour inclusive; a StartHour after EndHour spans midnight.
type TTSConfig struct {
	Enabled   *bool    `json:"enabled,omitempty"`
	Speed     float64  `json:"speed,omitempty" validate:"gte=0,lte=4"`
	StartHour *int     `json:"start_hour,omitempty" validate:"omitempty,gte=0,lte=23"`
	EndHour   *int     `json:"end_hour,omitempty" validate:"omitempty,gte=0,lte=23"`
	Command   []string `json:"command,omitempty"`
}

// GeoConfig controls IP geolocation when no location is stored.
type GeoConfig struct {
	Disabled bool `json:"disabled,omitempty"`
	// Timeout per provider, Go duration string. Default "5s".
	Timeout string `json:"timeout,omitempty"`
}

// TelegramConfig backs the notification primitives with a Telegram chat.
type TelegramConfig struct {
	Token      string `json:"token" validate:"required"`
	ChatID     int64  `json:"chat_id" validate:"required"`
	ThreadID   int    `json:"thread_id,omitempty" validate:"gte=0"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"gte=0,lte=30"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty" validate:"omitempty,oneof=debug info warn warning error"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// SchedulerConfig drives `serve`.
//
// Schedule accepts a 5/6-field cron expression, a descriptor such as
// "@hourly", or "every <duration>".
type SchedulerConfig struct {
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	// RunOnStart runs the task once before the first tick.
	RunOnStart bool `json:"run_on_start,omitempty"`
	// Timeout bounds one run, Go duration string. "0s" disables it.
	Timeout string `json:"timeout,omitempty"`
}

const (
	DefaultTaskName   = "caiyun"
	DefaultTTSSpeed   = 0.6
	DefaultTTSStart   = 8
	DefaultTTSEnd     = 22
	DefaultRatePerSec = 1
)

func (c *Config) TaskName() string {
	if c.Task.Name == "" {
		return DefaultTaskName
	}
	return c.Task.Name
}

func (w WeatherConfig) ExtendedOrDefault() bool { return boolOr(w.Extended, true) }

func (w WeatherConfig) MinutelyOrDefault() bool { return boolOr(w.Minutely, true) }

func (t TTSConfig) EnabledOrDefault() bool { return boolOr(t.Enabled, true) }

func (t TTSConfig) SpeedOrDefault() float64 {
	if t.Speed <= 0 {
		return DefaultTTSSpeed
	}
	return t.Speed
}

// Window returns the inclusive speaking hours.
func (t TTSConfig) Window() (start, end int) {
	start, end = DefaultTTSStart, DefaultTTSEnd
	if t.StartHour != nil {
		start = *t.StartHour
	}
	if t.EndHour != nil {
		end = *t.EndHour
	}
	return start, end
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
