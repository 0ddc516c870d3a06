package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"caiyun/internal/scheduler"
)

// validate is shared; validator instances cache struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags, then the fields tags cannot express:
// duration strings, the schedule expression and the timezone.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config validation failed: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}

	for path, raw := range map[string]string{
		"host.busy_timeout": cfg.Host.BusyTimeout,
		"weather.timeout":   cfg.Weather.Timeout,
		"geo.timeout":       cfg.Geo.Timeout,
		"scheduler.timeout": cfg.Scheduler.Timeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}

	if cfg.Host.Push && cfg.Telegram == nil {
		return errors.New("host.push requires a telegram section")
	}

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
		loc = l
	}
	if s := strings.TrimSpace(cfg.Scheduler.Schedule); s != "" {
		if _, err := scheduler.ParseSchedule(s, loc); err != nil {
			return fmt.Errorf("scheduler.schedule: %w", err)
		}
	}
	return nil
}
