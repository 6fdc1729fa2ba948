package sweeper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fentz26/shiftwatch/internal/audit"
	"github.com/fentz26/shiftwatch/internal/clock"
	"github.com/fentz26/shiftwatch/internal/models"
	"github.com/fentz26/shiftwatch/internal/store"
)

func setup(t *testing.T) (*Sweeper, *store.Store, *clock.Fixed) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "sweeper.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	clk := clock.NewFixed(time.Date(2024, 1, 2, 20, 30, 0, 0, time.Local))
	sw, err := New(s, audit.NewRecorder(s, zerolog.Nop()), clk, zerolog.Nop(), "30 20 * * 1-5")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return sw, s, clk
}

func TestSweep(t *testing.T) {
	sw, s, clk := setup(t)
	ctx := context.Background()

	m, err := s.CreateMember(ctx, models.Member{Rol: 1, Mail: "a@example.com", Name: "A", Schedule: "l0"})
	if err != nil {
		t.Fatalf("CreateMember failed: %v", err)
	}
	stale, _ := s.CreateShift(ctx, m.ID, time.Date(2024, 1, 1, 8, 15, 0, 0, time.Local))
	closed, _ := s.CreateShift(ctx, m.ID, time.Date(2024, 1, 1, 9, 35, 0, 0, time.Local))
	if _, err := s.CloseShift(ctx, closed.ID, time.Date(2024, 1, 1, 10, 50, 0, 0, time.Local)); err != nil {
		t.Fatalf("CloseShift failed: %v", err)
	}
	today, _ := s.CreateShift(ctx, m.ID, time.Date(2024, 1, 2, 8, 15, 0, 0, time.Local))

	n, err := sw.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 flagged shift, got %d", n)
	}
	if seen, _ := s.HasAudit(ctx, audit.ActionShiftUnclosed, stale.ID); !seen {
		t.Error("Expected stale shift to be audited")
	}

	// A second sweep on the same day does not flag again.
	n, err = sw.Sweep(ctx)
	if err != nil || n != 0 {
		t.Errorf("Expected no new flags, got %d (%v)", n, err)
	}

	// Next day, today's shift has become stale too.
	clk.Advance(24 * time.Hour)
	n, err = sw.Sweep(ctx)
	if err != nil || n != 1 {
		t.Errorf("Expected 1 new flag, got %d (%v)", n, err)
	}
	if seen, _ := s.HasAudit(ctx, audit.ActionShiftUnclosed, today.ID); !seen {
		t.Error("Expected yesterday's open shift to be audited")
	}

	got, err := s.GetShift(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetShift failed: %v", err)
	}
	if got.Checkout != nil {
		t.Error("Sweeper must not close shifts")
	}

	stats := sw.Stats()
	if stats["flagged_total"] != 2 {
		t.Errorf("Expected flagged_total 2, got %v", stats["flagged_total"])
	}
}

func TestSweep_Cancelled(t *testing.T) {
	sw, s, _ := setup(t)
	ctx := context.Background()

	m, _ := s.CreateMember(ctx, models.Member{Rol: 1, Mail: "a@example.com", Name: "A", Schedule: "l0"})
	s.CreateShift(ctx, m.ID, time.Date(2024, 1, 1, 8, 15, 0, 0, time.Local))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := sw.Sweep(cctx); err == nil {
		t.Error("Expected error from cancelled context")
	}
	if _, ok := sw.Stats()["last_error"]; !ok {
		t.Error("Expected last_error in stats")
	}
}

func TestNew_BadSpec(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "sweeper.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := New(s, audit.NewRecorder(s, zerolog.Nop()), clock.System{}, zerolog.Nop(), "every night"); err == nil {
		t.Error("Expected error for invalid cron spec")
	}
}

func TestStartStop(t *testing.T) {
	sw, _, _ := setup(t)
	sw.Start()
	sw.Stop()
}
