package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "pennylane/pkg/logx"
)

// fileStore keeps all days in memory and rewrites a single JSON snapshot
// (tmp + rename) on every AddCounters.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	days   map[string]Counters
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	days := map[string]Counters{}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &days); err != nil {
			log.Warn("stats snapshot unreadable; starting empty", logx.String("path", path), logx.Err(err))
			days = map[string]Counters{}
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}
	return &fileStore{log: log, path: path, days: days}, nil
}

func (s *fileStore) AddCounters(_ context.Context, day string, c Counters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("stats store closed")
	}
	cur := s.days[day]
	cur.Add(c)
	s.days[day] = cur
	return s.writeLocked()
}

func (s *fileStore) Totals(_ context.Context) (Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total Counters
	for _, c := range s.days {
		total.Add(c)
	}
	return total, nil
}

func (s *fileStore) writeLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.days); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
