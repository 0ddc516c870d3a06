package bindings

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "caiyun/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// opTimeout bounds a single preference query; the host interface has no
// context of its own.
const opTimeout = 5 * time.Second

// SQLitePrefs is the preference store of the fetch-style host, one row per
// key.
type SQLitePrefs struct {
	db  *sql.DB
	log logx.Logger
}

func OpenSQLitePrefs(path string, busyTimeout time.Duration, log logx.Logger) (*SQLitePrefs, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if busyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	p := &SQLitePrefs{db: db, log: log}
	if err := p.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func (p *SQLitePrefs) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, string(b))
	return err
}

func (p *SQLitePrefs) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *SQLitePrefs) ValueForKey(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	var v string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		p.log.Warn("prefs read failed", logx.String("key", key), logx.Err(err))
		return "", false
	}
	return v, true
}

func (p *SQLitePrefs) SetValueForKey(value, key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO prefs(key, value, updated_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		p.log.Warn("prefs write failed", logx.String("key", key), logx.Err(err))
		return false
	}
	return true
}

func (p *SQLitePrefs) RemoveValueForKey(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if _, err := p.db.ExecContext(ctx, `DELETE FROM prefs WHERE key = ?`, key); err != nil {
		p.log.Warn("prefs delete failed", logx.String("key", key), logx.Err(err))
		return false
	}
	return true
}
