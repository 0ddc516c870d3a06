// Package bindings implements the host primitives on top of the local
// machine so the task can run outside a scripting host.
package bindings

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"caiyun/internal/capability"
	"caiyun/internal/config"
	"caiyun/internal/host"
	logx "caiyun/pkg/logx"
)

const (
	DefaultDataDir     = "./data"
	DefaultBusyTimeout = 5 * time.Second

	prefsFile = "prefs.db"
	storeFile = "store.json"
)

// Options carries the per-invocation inputs of Assemble.
type Options struct {
	// Request makes the host an interceptor of this request.
	Request *host.InboundRequest
	// Result, when set, receives completion payloads as JSON lines.
	Result io.Writer
	// Console receives fallback notifications. Nil means stdout.
	Console io.Writer
	Log     logx.Logger
}

// Host is an assembled set of primitives plus the resources behind them.
type Host struct {
	Globals host.Globals
	Family  capability.Family

	emit    host.Completer
	closers []io.Closer
}

// Flush emits the response object a general-purpose host was handed, once
// the task has filled it in. Other families deliver through Done.
func (h *Host) Flush() {
	if h.emit == nil || h.Globals.Context == nil {
		return
	}
	h.emit(host.Completion(*h.Globals.Context))
}

func (h *Host) Close() error {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		errs = append(errs, h.closers[i].Close())
	}
	h.closers = nil
	return errors.Join(errs...)
}

// Family resolves the configured host family. Empty and "auto" select the
// general-purpose host.
func Family(cfg *config.Config) (capability.Family, error) {
	name := strings.TrimSpace(cfg.Host.Family)
	if name == "" || name == "auto" {
		return capability.FamilyGeneral, nil
	}
	f, ok := capability.ParseFamily(name)
	if !ok {
		return capability.FamilyNone, errors.New("unknown host family " + name)
	}
	return f, nil
}

// Assemble builds the primitives of the configured family.
func Assemble(cfg *config.Config, opts Options) (*Host, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	family, err := Family(cfg)
	if err != nil {
		return nil, err
	}
	dataDir := strings.TrimSpace(cfg.Host.DataDir)
	if dataDir == "" {
		dataDir = DefaultDataDir
	}

	var tg *Telegram
	if cfg.Telegram != nil {
		if tg, err = NewTelegram(*cfg.Telegram, log); err != nil {
			return nil, err
		}
	}

	h := &Host{Family: family}
	g := host.Globals{Request: opts.Request, Console: opts.Console}
	if opts.Result != nil {
		g.Done = EmitResult(opts.Result, log)
	}
	if len(cfg.TTS.Command) > 0 {
		g.Speech = CommandSpeaker{Command: cfg.TTS.Command}
	}
	nh := NewNetHTTP(0)

	switch family {
	case capability.FamilyFetch:
		prefs, err := OpenSQLitePrefs(filepath.Join(dataDir, prefsFile), cfg.Host.BusyTimeoutOr(DefaultBusyTimeout), log)
		if err != nil {
			return nil, err
		}
		h.closers = append(h.closers, prefs)
		g.Fetch = nh
		g.Prefs = prefs
		if tg != nil {
			g.Notify = tg.Notify
		}
	case capability.FamilyCallback, capability.FamilyCallbackAlt:
		store, err := OpenFileStore(filepath.Join(dataDir, storeFile), log)
		if err != nil {
			return nil, err
		}
		g.HTTPClient = nh
		g.Store = store
		g.AltMarker = family == capability.FamilyCallbackAlt
		if tg != nil {
			g.Notification = tg
		}
	case capability.FamilyGeneral:
		mods := &host.Modules{HTTP: nh, FS: OSFS{Dir: dataDir}}
		if cfg.Host.Push && tg != nil {
			mods.Push = tg
		}
		g.Require = mods
		g.Context = &host.TaskContext{}
		if opts.Result != nil {
			h.emit = EmitResult(opts.Result, log)
		}
	case capability.FamilySandbox:
		g.NewRequest = nh.NewRequest
	}

	h.Globals = g
	log.Debug("host assembled", logx.String("family", family.String()), logx.String("data_dir", dataDir))
	return h, nil
}
