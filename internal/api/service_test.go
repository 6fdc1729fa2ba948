package api

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/shiftwatch/internal/audit"
	"github.com/fentz26/shiftwatch/internal/clock"
	"github.com/fentz26/shiftwatch/internal/models"
	"github.com/fentz26/shiftwatch/internal/schedule"
	"github.com/fentz26/shiftwatch/internal/store"
)

// 2024-01-01 is a Monday.
func at(d, h, m int) time.Time { return time.Date(2024, 1, d, h, m, 0, 0, time.Local) }

type fixture struct {
	store   *store.Store
	clock   *clock.Fixed
	service *Service
	server  *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cat, _, err := schedule.NewCatalog(schedule.DefaultBlocks(), schedule.DefaultTolerances())
	require.NoError(t, err)
	codec := schedule.NewCodec(cat, schedule.DefaultAlphabet())

	clk := clock.NewFixed(at(1, 8, 10))
	log := zerolog.Nop()
	svc := NewService(st, codec, clk, audit.NewRecorder(st, log), log)
	return &fixture{
		store:   st,
		clock:   clk,
		service: svc,
		server:  NewServer(svc, "127.0.0.1:0", RateLimit{}, log),
	}
}

func (f *fixture) member(t *testing.T, rol int64, mail, sched string) *models.Member {
	t.Helper()
	m, err := f.service.CreateMember(context.Background(), models.Member{Rol: rol, Mail: mail, Name: "Member " + mail, Schedule: sched})
	require.NoError(t, err)
	return m
}

func (f *fixture) shift(t *testing.T, m *models.Member, in, out time.Time) *models.Shift {
	t.Helper()
	ctx := context.Background()
	sh, err := f.store.CreateShift(ctx, m.ID, in)
	require.NoError(t, err)
	if !out.IsZero() {
		sh, err = f.store.CloseShift(ctx, sh.ID, out)
		require.NoError(t, err)
	}
	return sh
}

func TestCreateMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.member(t, 1, "Ana@Example.com", "l0,2x1")
	assert.Equal(t, "ana@example.com", m.Mail)

	_, err := f.service.CreateMember(ctx, models.Member{Rol: 2, Mail: "bob@example.com", Name: "Bob", Schedule: "l9"})
	var vErr *schedule.ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = f.service.CreateMember(ctx, models.Member{Rol: 3, Mail: "ana@example.com", Name: "Ana", Schedule: "l0"})
	assert.ErrorIs(t, err, ErrMemberExists)

	_, err = f.service.CreateMember(ctx, models.Member{Rol: 4, Mail: "x@example.com", Schedule: "l0"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	seen, err := f.store.HasAudit(ctx, audit.ActionMemberCreate, m.ID)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestNow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.member(t, 1, "ana@example.com", "l0")
	f.member(t, 2, "bob@example.com", "l0,3")
	f.member(t, 3, "eve@example.com", "m0")

	now, err := f.service.Now(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, now.Weekday)
	assert.Equal(t, "08:10", now.Time)
	assert.Equal(t, "1-2", now.Upcoming.Name)
	assert.Equal(t, "lun 1-2", now.Upcoming.Label)
	assert.True(t, now.Active)
	require.Len(t, now.Pair, 2)
	assert.Equal(t, "ana@example.com", now.Pair[0].Mail)

	// Lunch break: the next block is upcoming and its window is open.
	f.clock.Set(at(1, 12, 10))
	now, err = f.service.Now(ctx)
	require.NoError(t, err)
	assert.Equal(t, "7-8", now.Upcoming.Name)
	assert.True(t, now.Active)
	require.Len(t, now.Pair, 1)
	assert.Equal(t, "bob@example.com", now.Pair[0].Mail)

	f.clock.Set(at(1, 13, 0))
	now, err = f.service.Now(ctx)
	require.NoError(t, err)
	assert.Equal(t, "7-8", now.Upcoming.Name)
	assert.False(t, now.Active)

	// Saturday resolves to Monday's first block.
	f.clock.Set(at(6, 10, 0))
	now, err = f.service.Now(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-08", now.Upcoming.Date)
	assert.Equal(t, 0, now.Upcoming.Block)
	assert.False(t, now.Active)
	assert.Len(t, now.Pair, 2)
}

func TestCheckInCheckOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.member(t, 1, "ana@example.com", "l0")

	sh, err := f.service.CheckIn(ctx, "ANA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "1-2", sh.Block)
	assert.True(t, sh.Checkin.Equal(at(1, 8, 10)))
	assert.Nil(t, sh.Checkout)

	_, err = f.service.CheckIn(ctx, "ana@example.com")
	assert.ErrorIs(t, err, ErrShiftAlreadyOpen)

	st, err := f.service.MemberStatus(ctx, "ana@example.com")
	require.NoError(t, err)
	require.NotNil(t, st.Running)
	assert.Equal(t, sh.ID, st.Running.ID)
	assert.Equal(t, "1-2", st.Next.Name)

	f.clock.Set(at(1, 9, 30))
	closed, err := f.service.CheckOut(ctx, sh.ID)
	require.NoError(t, err)
	require.NotNil(t, closed.Checkout)
	assert.True(t, closed.Checkout.Equal(at(1, 9, 30)))
	assert.Equal(t, "ana@example.com", closed.Member.Mail)

	_, err = f.service.CheckOut(ctx, sh.ID)
	assert.ErrorIs(t, err, ErrShiftAlreadyClosed)

	_, err = f.service.CheckOut(ctx, "missing")
	assert.ErrorIs(t, err, ErrShiftNotFound)
}

func TestCheckIn_Window(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.member(t, 1, "ana@example.com", "l0,2")

	tests := []struct {
		name string
		now  time.Time
		ok   bool
	}{
		{"window opens exclusive", at(1, 8, 5), false},
		{"early", at(1, 8, 6), true},
		{"late within tolerance", time.Date(2024, 1, 1, 8, 25, 58, 0, time.Local), true},
		{"too late", at(1, 8, 26), false},
		{"later block", at(1, 10, 50), true},
		{"unscheduled block", at(1, 9, 35), false},
		{"unscheduled day", at(2, 8, 15), false},
		{"weekend", at(6, 8, 15), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.clock.Set(tt.now)
			occ, ok, err := f.service.checkinWindow(mustDecode(t, f.service, "l0,2"), tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.True(t, schedule.SameDay(occ.Date, tt.now))
			}
		})
	}

	f.clock.Set(at(1, 9, 0))
	_, err := f.service.CheckIn(ctx, "ana@example.com")
	assert.ErrorIs(t, err, ErrNotOnShift)

	_, err = f.service.CheckIn(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func mustDecode(t *testing.T, s *Service, enc string) schedule.Schedule {
	t.Helper()
	sched, err := s.codec.Decode(enc)
	require.NoError(t, err)
	return sched
}

func TestCheckOut_DayOver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.member(t, 1, "ana@example.com", "l0")

	sh, err := f.service.CheckIn(ctx, "ana@example.com")
	require.NoError(t, err)

	f.clock.Set(at(2, 8, 0))
	_, err = f.service.CheckOut(ctx, sh.ID)
	assert.ErrorIs(t, err, ErrCheckinDayOver)

	// A stale open shift does not block the next day's check-in.
	f.clock.Set(at(8, 8, 14))
	_, err = f.service.CheckIn(ctx, "ana@example.com")
	assert.NoError(t, err)
}

func TestReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, 1, "ana@example.com", "l0m1")

	f.shift(t, m, at(1, 8, 10), at(1, 9, 30))  // in schedule, 5 early
	f.shift(t, m, at(2, 9, 38), at(2, 10, 40)) // closed early
	f.shift(t, m, at(3, 8, 15), at(3, 9, 30))  // not in the schedule but in a block
	f.shift(t, m, at(8, 8, 12), at(8, 9, 30))  // after the interval

	f.clock.Set(at(3, 12, 0))
	rep, err := f.service.Report(ctx, "ana@example.com", at(1, 0, 0), time.Time{})
	require.NoError(t, err)

	assert.Equal(t, "2024-01-01", rep.Start)
	assert.Equal(t, "2024-01-03", rep.End)
	assert.Equal(t, 2, rep.Ideal)
	assert.Equal(t, 1, rep.Attended)
	assert.Equal(t, []string{"lun 1-2", "mar 3-4"}, rep.Labels)
	require.Len(t, rep.Datapoints, 2)
	require.NotNil(t, rep.Datapoints[0])
	assert.Equal(t, 5, *rep.Datapoints[0])
	assert.Nil(t, rep.Datapoints[1])
	require.NotNil(t, rep.MeanOffset)
	assert.Equal(t, 5.0, *rep.MeanOffset)

	require.Len(t, rep.InSchedule, 2)
	require.Len(t, rep.Suspicious, 1)
	assert.Equal(t, "closed_early", rep.Suspicious[0].Reason)

	require.Len(t, rep.Shifts, 2)
	require.NotNil(t, rep.Shifts[0].Shift)
	assert.Nil(t, rep.Shifts[1].Shift)
	assert.Equal(t, "3-4", rep.Shifts[1].Occurrence.Name)

	_, err = f.service.Report(ctx, "ana@example.com", at(3, 0, 0), at(1, 0, 0))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestReport_Excused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.member(t, 1, "ana@example.com", "l0m1")

	_, err := f.service.Excuse(ctx, at(2, 0, 0), 1, "holiday")
	require.NoError(t, err)

	rep, err := f.service.Report(ctx, "ana@example.com", at(1, 0, 0), at(2, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Ideal)
	assert.Equal(t, []string{"lun 1-2"}, rep.Labels)
	assert.Nil(t, rep.MeanOffset)
}

func TestExcuse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	occ, err := f.service.Excuse(ctx, at(2, 15, 0), 4, "")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", occ.Date)
	assert.Equal(t, "9-10", occ.Name)
	assert.True(t, occ.Checkin.Equal(at(2, 14, 30)))

	_, err = f.service.Excuse(ctx, at(2, 0, 0), 4, "")
	assert.ErrorIs(t, err, ErrAlreadyExcused)

	_, err = f.service.Excuse(ctx, at(2, 0, 0), 8, "")
	assert.ErrorIs(t, err, ErrBlockOutOfRange)
	assert.Contains(t, err.Error(), "block (8) out of the range (0..7)")

	_, err = f.service.Excuse(ctx, at(2, 0, 0), -1, "")
	assert.ErrorIs(t, err, ErrBlockOutOfRange)

	list, err := f.service.ListExcused(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestWeek(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.member(t, 1, "ana@example.com", "l0,1")
	bob := f.member(t, 2, "bob@example.com", "l0")

	f.shift(t, ana, time.Date(2023, 12, 29, 8, 15, 0, 0, time.Local), at(1, 0, 0).Add(-time.Hour))
	f.shift(t, ana, at(1, 8, 10), at(1, 9, 25))
	f.shift(t, bob, at(1, 8, 12), at(1, 9, 25))
	f.shift(t, ana, at(1, 9, 26), at(1, 10, 45))
	f.shift(t, bob, at(3, 8, 15), time.Time{})

	f.clock.Set(at(3, 9, 0))
	week, err := f.service.Week(ctx)
	require.NoError(t, err)
	require.Len(t, week, schedule.WorkingDays)

	require.Len(t, week[0], 2)
	assert.Equal(t, "ana@example.com", week[0][0].Member.Mail)
	require.NotNil(t, week[0][0].Checkout)
	assert.True(t, week[0][0].Checkout.Equal(at(1, 10, 45)))
	assert.Equal(t, "bob@example.com", week[0][1].Member.Mail)

	assert.Empty(t, week[1])
	require.Len(t, week[2], 1)
	assert.Nil(t, week[2][0].Checkout)
	assert.Empty(t, week[4])
}

func TestMemberSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.member(t, 1, "ana@example.com", "v7l0")

	f.clock.Set(at(3, 12, 0))
	list, err := f.service.MemberSchedule(ctx, "ana@example.com")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2024-01-05", list[0].Date)
	assert.Equal(t, "vie 15-16", list[0].Label)
	assert.Equal(t, "2024-01-08", list[1].Date)

	st, err := f.service.MemberStatus(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Nil(t, st.Running)
	assert.Equal(t, "2024-01-05", st.Next.Date)
	assert.Equal(t, "15-16", st.Next.Name)

	_, err = f.service.UpdateSchedule(ctx, "ana@example.com", "l0x")
	var vErr *schedule.ValidationError
	assert.ErrorAs(t, err, &vErr)

	m, err := f.service.UpdateSchedule(ctx, "ana@example.com", "x3")
	require.NoError(t, err)
	assert.Equal(t, "x3", m.Schedule)

	list, err = f.service.MemberSchedule(ctx, "ana@example.com")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "2024-01-03", list[0].Date, "the running block of today is still current")
}

func TestCalendar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.member(t, 1, "ana@example.com", "l0")

	feed, err := f.service.Calendar(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Contains(t, feed, "BEGIN:VCALENDAR")
	assert.Contains(t, feed, "RRULE:FREQ=WEEKLY")

	_, err = f.service.Calendar(ctx, "nobody@example.com")
	assert.True(t, errors.Is(err, ErrMemberNotFound))
}

func TestBlocks(t *testing.T) {
	f := newFixture(t)
	v := f.service.Blocks()
	require.Len(t, v.Blocks, 8)
	assert.Equal(t, BlockView{Index: 7, Name: "15-16", Start: "18:30", End: "19:40"}, v.Blocks[7])
	assert.Equal(t, "10m0s", v.Tolerances.BeforeStart)
	assert.Equal(t, "10m59s", v.Tolerances.AfterStart)
	assert.Equal(t, "lmxjv", v.Weekdays.Letters)
}

func TestDeleteMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, 1, "ana@example.com", "l0")
	f.shift(t, m, at(1, 8, 10), at(1, 9, 30))

	require.NoError(t, f.service.DeleteMember(ctx, "ana@example.com"))
	assert.ErrorIs(t, f.service.DeleteMember(ctx, "ana@example.com"), ErrMemberNotFound)

	seen, err := f.store.HasAudit(ctx, audit.ActionMemberDelete, m.ID)
	require.NoError(t, err)
	assert.True(t, seen)

	shifts, err := f.store.ListShifts(ctx, m.ID, at(1, 0, 0), at(2, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, shifts)
}
