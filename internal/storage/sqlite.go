package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	logx "pennylane/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) AddCounters(ctx context.Context, day string, c Counters) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_counters(day, registrations, announcements, suppressed, delivered, failed, pruned)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(day) DO UPDATE SET
			registrations = registrations + excluded.registrations,
			announcements = announcements + excluded.announcements,
			suppressed    = suppressed + excluded.suppressed,
			delivered     = delivered + excluded.delivered,
			failed        = failed + excluded.failed,
			pruned        = pruned + excluded.pruned`,
		day, c.Registrations, c.Announcements, c.Suppressed, c.Delivered, c.Failed, c.Pruned,
	)
	return err
}

func (s *sqliteStore) Totals(ctx context.Context) (Counters, error) {
	if s == nil || s.db == nil {
		return Counters{}, ErrDisabled
	}
	var c Counters
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(registrations),0), COALESCE(SUM(announcements),0), COALESCE(SUM(suppressed),0),
		        COALESCE(SUM(delivered),0), COALESCE(SUM(failed),0), COALESCE(SUM(pruned),0)
		 FROM daily_counters`,
	).Scan(&c.Registrations, &c.Announcements, &c.Suppressed, &c.Delivered, &c.Failed, &c.Pruned)
	return c, err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
