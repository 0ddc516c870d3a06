package bindings

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"caiyun/internal/config"
	logx "caiyun/pkg/logx"
)

const (
	telegramTextLimit = 4000
	sendTimeout       = 15 * time.Second
)

// sender is the subset of *tele.Bot used here.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram delivers notifications to one chat. It serves as the fetch
// host's notify call, the callback hosts' notification poster and the
// general host's push scheduler.
type Telegram struct {
	bot     sender
	chat    *tele.Chat
	thread  int
	limiter *rate.Limiter
	log     logx.Logger
}

func NewTelegram(cfg config.TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	// Offline skips the getMe round trip; this bot only sends.
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: sendTimeout},
	})
	if err != nil {
		return nil, err
	}
	return newTelegram(b, cfg, log), nil
}

func newTelegram(s sender, cfg config.TelegramConfig, log logx.Logger) *Telegram {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = config.DefaultRatePerSec
	}
	return &Telegram{
		bot:    s,
		chat:   &tele.Chat{ID: cfg.ChatID},
		thread: cfg.ThreadID,
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log.With(logx.String("comp", "telegram")),
	}
}

// Notify matches host.NotifyFunc.
func (t *Telegram) Notify(title, subtitle, body string, opts map[string]string) {
	if err := t.send(render(title, subtitle, body, opts)); err != nil {
		t.log.Warn("telegram notify failed", logx.Err(err))
	}
}

// Post matches host.NotificationPoster.
func (t *Telegram) Post(title, subtitle, body string, opts map[string]string) {
	t.Notify(title, subtitle, body, opts)
}

// Schedule matches host.PushScheduler. Delivery is immediate.
func (t *Telegram) Schedule(title, body string) error {
	return t.send(render(title, "", body, nil))
}

func (t *Telegram) send(text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	opts := &tele.SendOptions{ThreadID: t.thread, DisableWebPagePreview: true}
	for _, chunk := range splitText(text, telegramTextLimit) {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := t.bot.Send(t.chat, chunk, opts); err != nil {
			return err
		}
	}
	return nil
}

// linkKeys are the option names of every host family, in display order.
var linkKeys = []struct{ key, label string }{
	{"open-url", "🔗"}, {"openUrl", "🔗"}, {"url", "🔗"},
	{"media-url", "🖼"}, {"mediaUrl", "🖼"},
}

func render(title, subtitle, body string, opts map[string]string) string {
	var b strings.Builder
	b.WriteString(title)
	if subtitle != "" {
		b.WriteByte('\n')
		b.WriteString(subtitle)
	}
	if body != "" {
		b.WriteString("\n\n")
		b.WriteString(body)
	}
	for _, lk := range linkKeys {
		if u := opts[lk.key]; u != "" {
			b.WriteString("\n")
			b.WriteString(lk.label)
			b.WriteByte(' ')
			b.WriteString(u)
		}
	}
	return b.String()
}

// splitText splits long messages into chunks of at most limit runes,
// preferring newline boundaries.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid extremely small chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
