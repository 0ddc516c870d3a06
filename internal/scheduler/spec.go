package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind is the normalized kind of a schedule string.
type Kind int

const (
	KindCron Kind = iota
	KindInterval
)

// Spec is a parsed schedule string.
//
// Supported forms:
//   - Cron: "*/30 * * * *", "0 7 * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//
// Optional prefixes: "cron:" forces cron parsing, "every " / "every:" /
// "interval:" force interval parsing.
type Spec struct {
	Kind     Kind
	Cron     string
	Every    time.Duration
	Schedule cron.Schedule
}

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule turns raw into a schedule evaluated in loc.
func ParseSchedule(raw string, loc *time.Location) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("schedule required")
	}
	if loc == nil {
		loc = time.Local
	}

	low := strings.ToLower(s)
	for _, prefix := range []string{"interval:", "every:", "every "} {
		if strings.HasPrefix(low, prefix) {
			return parseInterval(s[len(prefix):])
		}
	}
	if strings.HasPrefix(low, "cron:") {
		return parseCron(strings.TrimSpace(s[len("cron:"):]), loc)
	}

	// Whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return parseCron(s, loc)
	}
	if sp, err := parseInterval(s); err == nil {
		return sp, nil
	}
	return Spec{}, fmt.Errorf("invalid schedule %q (use cron like '0 7 * * *', HH:MM like '02:30', or duration like '55m')", raw)
}

func parseCron(expr string, loc *time.Location) (Spec, error) {
	if expr == "" {
		return Spec{}, fmt.Errorf("cron expression required")
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return Spec{}, fmt.Errorf("cron %q: %w", expr, err)
	}
	// An explicit CRON_TZ= prefix wins over loc.
	if ss, ok := sched.(*cron.SpecSchedule); ok && !strings.HasPrefix(expr, "CRON_TZ=") && !strings.HasPrefix(expr, "TZ=") {
		ss.Location = loc
	}
	return Spec{Kind: KindCron, Cron: expr, Schedule: sched}, nil
}

func parseInterval(v string) (Spec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Spec{}, fmt.Errorf("interval required")
	}
	var (
		d   time.Duration
		err error
	)
	if reHHMM.MatchString(v) {
		d, err = parseHHMM(v)
	} else {
		d, err = time.ParseDuration(v)
	}
	if err != nil {
		return Spec{}, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m')", v)
	}
	if d <= 0 {
		return Spec{}, fmt.Errorf("interval must be > 0")
	}
	return Spec{Kind: KindInterval, Every: d, Schedule: cron.Every(d)}, nil
}

func parseHHMM(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}

func (s Spec) String() string {
	if s.Kind == KindInterval {
		return "every " + s.Every.String()
	}
	return s.Cron
}
