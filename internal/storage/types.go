package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON snapshot rewritten atomically on every flush
//   - "sqlite": SQLite database file
//
// Empty or "none" disables storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 keeps the driver default
}

// Counters are identifier-free relay totals.
type Counters struct {
	Registrations int64 `json:"registrations"`
	Announcements int64 `json:"announcements"`
	Suppressed    int64 `json:"suppressed"`
	Delivered     int64 `json:"delivered"`
	Failed        int64 `json:"failed"`
	Pruned        int64 `json:"pruned"`
}

func (c *Counters) Add(o Counters) {
	c.Registrations += o.Registrations
	c.Announcements += o.Announcements
	c.Suppressed += o.Suppressed
	c.Delivered += o.Delivered
	c.Failed += o.Failed
	c.Pruned += o.Pruned
}

func (c Counters) IsZero() bool { return c == Counters{} }

// Store is the persistence API used by the stats collector.
type Store interface {
	// AddCounters adds c to the totals recorded for day (YYYY-MM-DD, UTC).
	AddCounters(ctx context.Context, day string, c Counters) error
	// Totals sums every recorded day.
	Totals(ctx context.Context) (Counters, error)
	Close() error
}

// Day formats t as the storage day key.
func Day(t time.Time) string { return t.UTC().Format("2006-01-02") }
