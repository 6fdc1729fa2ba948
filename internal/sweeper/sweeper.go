// Package sweeper flags shifts that were never checked out.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/fentz26/shiftwatch/internal/audit"
	"github.com/fentz26/shiftwatch/internal/clock"
	"github.com/fentz26/shiftwatch/internal/models"
	"github.com/fentz26/shiftwatch/internal/schedule"
	"github.com/fentz26/shiftwatch/internal/store"
)

// Sweeper periodically looks for open shifts whose check-in day is over,
// logs them and records one audit entry per shift. It never modifies shifts.
type Sweeper struct {
	store *store.Store
	audit *audit.Recorder
	clock clock.Clock
	log   zerolog.Logger

	cron *cron.Cron

	mu       sync.Mutex
	lastRun  time.Time
	lastErr  error
	flagged  int
	sweeping sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a sweeper that runs on the five-field cron spec.
func New(s *store.Store, rec *audit.Recorder, clk clock.Clock, log zerolog.Logger, spec string) (*Sweeper, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	ctx, cancel := context.WithCancel(context.Background())
	sw := &Sweeper{
		store:  s,
		audit:  rec,
		clock:  clk,
		log:    log,
		cron:   cron.New(cron.WithParser(parser), cron.WithLocation(time.Local)),
		ctx:    ctx,
		cancel: cancel,
	}
	if _, err := sw.cron.AddFunc(spec, sw.run); err != nil {
		cancel()
		return nil, fmt.Errorf("parse sweeper spec %q: %w", spec, err)
	}
	return sw, nil
}

// Start begins the cron loop.
func (sw *Sweeper) Start() {
	sw.cron.Start()
	sw.log.Info().Msg("sweeper started")
}

// Stop cancels a running sweep and waits for it to return.
func (sw *Sweeper) Stop() {
	sw.cancel()
	<-sw.cron.Stop().Done()
	sw.log.Info().Msg("sweeper stopped")
}

func (sw *Sweeper) run() {
	n, err := sw.Sweep(sw.ctx)
	if err != nil {
		sw.log.Error().Err(err).Msg("sweep failed")
		return
	}
	sw.log.Debug().Int("flagged", n).Msg("sweep done")
}

// Sweep flags every open shift checked in before today and not flagged yet.
// It returns how many shifts were newly flagged.
func (sw *Sweeper) Sweep(ctx context.Context) (int, error) {
	sw.sweeping.Lock()
	defer sw.sweeping.Unlock()

	now := sw.clock.Now()
	stale, err := sw.store.ListStaleOpenShifts(ctx, schedule.DayStart(now))
	if err != nil {
		sw.finish(now, 0, err)
		return 0, err
	}

	n := 0
	for _, sh := range stale {
		if err := ctx.Err(); err != nil {
			sw.finish(now, n, err)
			return n, err
		}
		seen, err := sw.audit.Seen(ctx, audit.ActionShiftUnclosed, sh.ID)
		if err != nil {
			sw.finish(now, n, err)
			return n, err
		}
		if seen {
			continue
		}
		if err := sw.flag(ctx, sh); err != nil {
			sw.finish(now, n, err)
			return n, err
		}
		n++
	}
	sw.finish(now, n, nil)
	return n, nil
}

func (sw *Sweeper) flag(ctx context.Context, sh models.Shift) error {
	sw.log.Warn().
		Str("shift", sh.ID).
		Str("member", sh.MemberID).
		Time("checkin", sh.Checkin).
		Msg("shift never closed")
	_, err := sw.audit.Record(ctx, audit.ActionShiftUnclosed, map[string]any{
		"shift_id":  sh.ID,
		"member_id": sh.MemberID,
		"checkin":   sh.Checkin,
	}, "never_closed", sh.ID, "checked in "+sh.Checkin.Format("2006-01-02 15:04"))
	return err
}

func (sw *Sweeper) finish(at time.Time, n int, err error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.lastRun = at
	sw.lastErr = err
	sw.flagged += n
}

// Stats returns sweeper statistics.
func (sw *Sweeper) Stats() map[string]interface{} {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	stats := map[string]interface{}{
		"flagged_total": sw.flagged,
	}
	if !sw.lastRun.IsZero() {
		stats["last_run"] = sw.lastRun
	}
	if sw.lastErr != nil {
		stats["last_error"] = sw.lastErr.Error()
	}
	return stats
}
