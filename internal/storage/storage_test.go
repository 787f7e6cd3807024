package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	logx "pennylane/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		require.Nil(t, st)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop())
	require.ErrorContains(t, err, "unknown storage driver")
}

func TestDay(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+7", 7*3600)
	require.Equal(t, "2026-01-01", Day(time.Date(2026, 1, 2, 5, 0, 0, 0, loc)))
}

func TestDriversAccumulateAndReopen(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			req := require.New(t)
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "stats", "pennylane."+driver)

			st, err := Open(Config{Driver: driver, Path: path, BusyTimeout: time.Second}, logx.Nop())
			req.NoError(err)
			req.NoError(st.AddCounters(ctx, "2026-10-16", Counters{Announcements: 2, Delivered: 3, Failed: 1}))
			req.NoError(st.AddCounters(ctx, "2026-10-16", Counters{Announcements: 1, Suppressed: 4}))
			req.NoError(st.AddCounters(ctx, "2026-10-17", Counters{Registrations: 5, Pruned: 2}))
			req.NoError(st.Close())

			st, err = Open(Config{Driver: driver, Path: path}, logx.Nop())
			req.NoError(err)
			defer st.Close()

			got, err := st.Totals(ctx)
			req.NoError(err)
			req.Equal(Counters{Registrations: 5, Announcements: 3, Suppressed: 4, Delivered: 3, Failed: 1, Pruned: 2}, got)
		})
	}
}
