// Package notify delivers a structured notification through whichever
// primitive the host family exposes.
package notify

import (
	"fmt"
	"io"
	"strings"

	"caiyun/internal/capability"
	"caiyun/internal/host"
	logx "caiyun/pkg/logx"
)

// Options carry the optional links attached to a notification.
type Options struct {
	OpenURL  string `json:"open-url,omitempty"`
	MediaURL string `json:"media-url,omitempty"`
}

func (o Options) IsZero() bool { return o.OpenURL == "" && o.MediaURL == "" }

// Notifier picks one delivery path per call from the descriptor it was
// built with.
type Notifier struct {
	desc    capability.Descriptor
	g       host.Globals
	console io.Writer
	log     logx.Logger
}

func New(desc capability.Descriptor, g host.Globals, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	console := g.Console
	if console == nil {
		console = logx.Stdout()
	}
	return &Notifier{desc: desc, g: g, console: console, log: log}
}

// Notify never fails: primitive errors are logged.
func (n *Notifier) Notify(title, subtitle, body string, opts Options) {
	switch {
	case n.desc.IsFetch() && n.g.Notify != nil:
		n.g.Notify(title, subtitle, body, fetchOptions(opts))
	case n.desc.IsCallback() && n.g.Notification != nil:
		if opts.MediaURL != "" {
			body += "\nmedia: " + opts.MediaURL
		}
		var m map[string]string
		if opts.OpenURL != "" {
			m = map[string]string{"url": opts.OpenURL}
		}
		n.g.Notification.Post(title, subtitle, body, m)
	case n.desc.IsCallbackAlt() && n.g.Notification != nil:
		n.g.Notification.Post(title, subtitle, body, altOptions(opts))
	default:
		n.fallback(title, subtitle, body, opts)
	}
}

func (n *Notifier) fallback(title, subtitle, body string, opts Options) {
	if opts.OpenURL != "" {
		body += "\nopen: " + opts.OpenURL
	}
	if opts.MediaURL != "" {
		body += "\nmedia: " + opts.MediaURL
	}

	if n.desc.HasPush() && n.g.Require != nil && n.g.Require.Push != nil {
		text := body
		if subtitle != "" {
			text = subtitle + "\n" + body
		}
		if err := n.g.Require.Push.Schedule(title, text); err != nil {
			n.log.Warn("push schedule failed", logx.String("title", title), logx.Err(err))
		}
		return
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteByte('\n')
	b.WriteString(subtitle)
	b.WriteByte('\n')
	b.WriteString(body)
	b.WriteString("\n\n")
	if _, err := io.WriteString(n.console, b.String()); err != nil {
		n.log.Warn("console notification failed", logx.Err(err))
	}
}

func fetchOptions(o Options) map[string]string {
	if o.IsZero() {
		return nil
	}
	m := make(map[string]string, 2)
	if o.OpenURL != "" {
		m["open-url"] = o.OpenURL
	}
	if o.MediaURL != "" {
		m["media-url"] = o.MediaURL
	}
	return m
}

func altOptions(o Options) map[string]string {
	if o.IsZero() {
		return nil
	}
	m := make(map[string]string, 2)
	if o.OpenURL != "" {
		m["openUrl"] = o.OpenURL
	}
	if o.MediaURL != "" {
		m["mediaUrl"] = o.MediaURL
	}
	return m
}

// String renders a notification for logs.
func String(title, subtitle, body string) string {
	return fmt.Sprintf("%s | %s | %s", title, subtitle, strings.ReplaceAll(body, "\n", " "))
}
