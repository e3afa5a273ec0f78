package storage

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestBadger(t *testing.T, dir string) *BadgerStore {
	t.Helper()
	cfg := DefaultBadgerConfig()
	cfg.GCInterval = 0 // no background GC in tests

	s, err := NewBadgerStore(dir, cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestBadgerStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		s := newTestBadger(t, t.TempDir())
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestBadgerStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := newTestBadger(t, dir)
	if err := s.Set(ctx, "save.primary", []byte("blob")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	reopened := newTestBadger(t, dir)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "save.primary")
	if err != nil || string(got) != "blob" {
		t.Errorf("Get() = %q, %v", got, err)
	}
}

func TestBadgerStore_ClosedReturnsErrClosed(t *testing.T) {
	s := newTestBadger(t, t.TempDir())
	s.Close()

	if _, err := s.Get(context.Background(), "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() error = %v, want ErrClosed", err)
	}
}

func TestBadgerStore_GC(t *testing.T) {
	s := newTestBadger(t, t.TempDir())
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		_ = s.Set(ctx, "save.primary", make([]byte, 1024))
	}

	if _, err := s.GC(ctx); err != nil {
		t.Fatalf("GC() error = %v", err)
	}
	stats := s.Stats()
	if stats.LastGCTime == 0 || stats.GCRuns != 1 {
		t.Errorf("Stats() = %+v, want one recorded GC run", stats)
	}
}

func TestBadgerStore_Metrics(t *testing.T) {
	s := newTestBadger(t, t.TempDir())
	defer s.Close()

	reg := prometheus.NewRegistry()
	if err := s.RegisterMetrics(reg, time.Hour); err != nil {
		t.Fatalf("RegisterMetrics() error = %v", err)
	}

	if _, err := s.GC(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.refreshMetrics()

	if got := testutil.ToFloat64(s.metricsGCRuns); got != 1 {
		t.Errorf("gc_runs_total = %v, want 1", got)
	}
	if testutil.ToFloat64(s.metricsLastGCTime) == 0 {
		t.Error("last_gc_timestamp_seconds should be set")
	}

	if err := s.RegisterMetrics(reg, 0); err == nil {
		t.Error("registering twice should fail")
	}
}
