// Package api provides the HTTP API and service layer for shiftwatch.
package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fentz26/shiftwatch/internal/audit"
	"github.com/fentz26/shiftwatch/internal/calendar"
	"github.com/fentz26/shiftwatch/internal/clock"
	"github.com/fentz26/shiftwatch/internal/models"
	"github.com/fentz26/shiftwatch/internal/reconcile"
	"github.com/fentz26/shiftwatch/internal/schedule"
	"github.com/fentz26/shiftwatch/internal/store"
)

// DefaultCalendarHorizon bounds the EXDATE window of exported feeds.
const DefaultCalendarHorizon = 12 * 7 * 24 * time.Hour

// Service provides the roster business logic.
type Service struct {
	store  *store.Store
	codec  *schedule.Codec
	engine *reconcile.Engine
	clock  clock.Clock
	audit  *audit.Recorder
	log    zerolog.Logger

	// checkin serializes the open-shift check with the insert.
	checkin sync.Mutex
}

// NewService creates a new service.
func NewService(st *store.Store, codec *schedule.Codec, clk clock.Clock, rec *audit.Recorder, log zerolog.Logger) *Service {
	return &Service{
		store:  st,
		codec:  codec,
		engine: reconcile.New(codec),
		clock:  clk,
		audit:  rec,
		log:    log,
	}
}

// Ping checks the database.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Now returns the current or next block, whether its check-in window is
// open, and the members scheduled for it.
func (s *Service) Now(ctx context.Context) (*NowView, error) {
	now := s.clock.Now()
	occ, err := s.codec.Catalog().Locate(now, false)
	if err != nil {
		return nil, err
	}
	tol := s.codec.Catalog().Tolerances()

	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	pair := []MemberRef{}
	for _, m := range members {
		sched, err := s.codec.Decode(m.Schedule)
		if err != nil {
			s.log.Warn().Err(err).Str("mail", m.Mail).Msg("skipping member with unreadable schedule")
			continue
		}
		if sched.Contains(occ.Weekday(), occ.Index) {
			pair = append(pair, refOf(m))
		}
	}

	return &NowView{
		Weekday:  schedule.WorkdayIndex(now),
		Time:     now.Format("15:04"),
		Datetime: now,
		Upcoming: s.occurrenceView(occ),
		Active:   occ.Checkin().Add(-tol.BeforeStart).Before(now) && now.Before(occ.Checkin().Add(tol.AfterStart)),
		Pair:     pair,
	}, nil
}

// Blocks describes the block catalog, tolerances and weekday alphabet.
func (s *Service) Blocks() BlocksView {
	var v BlocksView
	for i, b := range s.codec.Catalog().Blocks() {
		v.Blocks = append(v.Blocks, BlockView{Index: i, Name: b.Name, Start: b.Start.String(), End: b.End.String()})
	}
	tol := s.codec.Catalog().Tolerances()
	v.Tolerances.BeforeStart = tol.BeforeStart.String()
	v.Tolerances.AfterStart = tol.AfterStart.String()
	v.Tolerances.AfterEnd = tol.AfterEnd.String()
	v.Weekdays.Letters = s.codec.Alphabet().Letters()
	v.Weekdays.Labels = s.codec.Alphabet().Labels()
	return v
}

// --- Member Operations ---

func (s *Service) member(ctx context.Context, mail string) (*models.Member, error) {
	m, err := s.store.GetMemberByMail(ctx, mail)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, mail)
	}
	return m, err
}

func (s *Service) memberSchedule(m *models.Member) (schedule.Schedule, error) {
	sched, err := s.codec.Decode(m.Schedule)
	if err != nil {
		return nil, fmt.Errorf("decode schedule of %s: %w", m.Mail, err)
	}
	return sched, nil
}

// ListMembers returns every member ordered by rol.
func (s *Service) ListMembers(ctx context.Context) ([]models.Member, error) {
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []models.Member{}
	}
	return members, nil
}

// CreateMember registers a member after verifying the schedule encoding.
func (s *Service) CreateMember(ctx context.Context, m models.Member) (*models.Member, error) {
	if strings.TrimSpace(m.Mail) == "" || strings.TrimSpace(m.Name) == "" {
		return nil, fmt.Errorf("%w: mail and name are required", ErrInvalidRequest)
	}
	if _, err := s.codec.Decode(m.Schedule); err != nil {
		return nil, err
	}

	created, err := s.store.CreateMember(ctx, m)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, fmt.Errorf("%w: %s", ErrMemberExists, m.Mail)
	}
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.ActionMemberCreate, map[string]interface{}{"mail": created.Mail, "rol": created.Rol, "schedule": created.Schedule}, "success", created.ID, "")
	return created, nil
}

// MemberStatus returns the member's running shift, if any, and the
// occurrence it belongs to or the next scheduled one.
func (s *Service) MemberStatus(ctx context.Context, mail string) (*MemberStatus, error) {
	m, err := s.member(ctx, mail)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	st := &MemberStatus{MemberRef: refOf(*m), Rol: m.Rol, Name: m.Name, Schedule: m.Schedule}

	running, err := s.store.OpenShift(ctx, m.ID, now)
	switch {
	case err == nil:
		v := s.shiftView(*running, m)
		st.Running = &v
		occ, err := s.codec.Catalog().Locate(running.Checkin, false)
		if err != nil {
			return nil, err
		}
		st.Next = s.occurrenceView(occ)
	case errors.Is(err, store.ErrNotFound):
		sched, err := s.memberSchedule(m)
		if err != nil {
			return nil, err
		}
		cur, err := schedule.NewCursor(sched, now)
		if err != nil {
			return nil, err
		}
		st.Next = s.occurrenceView(cur.Next())
	default:
		return nil, err
	}
	return st, nil
}

// UpdateSchedule replaces the member's schedule encoding.
func (s *Service) UpdateSchedule(ctx context.Context, mail, encoding string) (*models.Member, error) {
	m, err := s.member(ctx, mail)
	if err != nil {
		return nil, err
	}
	if _, err := s.codec.Decode(encoding); err != nil {
		return nil, err
	}
	if err := s.store.UpdateMemberSchedule(ctx, m.ID, encoding); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.ActionMemberSchedule, map[string]string{"from": m.Schedule, "to": encoding}, "success", m.ID, "")
	m.Schedule = encoding
	return m, nil
}

// DeleteMember removes a member together with their shifts.
func (s *Service) DeleteMember(ctx context.Context, mail string) error {
	m, err := s.member(ctx, mail)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMember(ctx, m.ID); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.ActionMemberDelete, map[string]string{"mail": m.Mail}, "success", m.ID, "")
	return nil
}

// MemberSchedule returns one full cycle of the member's upcoming
// occurrences.
func (s *Service) MemberSchedule(ctx context.Context, mail string) ([]OccurrenceView, error) {
	m, err := s.member(ctx, mail)
	if err != nil {
		return nil, err
	}
	sched, err := s.memberSchedule(m)
	if err != nil {
		return nil, err
	}
	list, err := schedule.ScheduleList(sched, s.clock.Now())
	if err != nil {
		return nil, err
	}
	out := make([]OccurrenceView, 0, len(list))
	for _, occ := range list {
		out = append(out, s.occurrenceView(occ))
	}
	return out, nil
}

// Calendar renders the member's schedule as an iCalendar feed.
func (s *Service) Calendar(ctx context.Context, mail string) (string, error) {
	m, err := s.member(ctx, mail)
	if err != nil {
		return "", err
	}
	sched, err := s.memberSchedule(m)
	if err != nil {
		return "", err
	}
	excused, err := s.store.ListExcused(ctx)
	if err != nil {
		return "", err
	}
	return calendar.Render(*m, sched, excused, calendar.Options{
		Now:      s.clock.Now(),
		Horizon:  DefaultCalendarHorizon,
		Alphabet: s.codec.Alphabet(),
	})
}

// --- Shift Operations ---

// Report reconciles the member's shifts between the dates of from and to,
// both inclusive. A zero to means today.
func (s *Service) Report(ctx context.Context, mail string, from, to time.Time) (*ReportView, error) {
	m, err := s.member(ctx, mail)
	if err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = s.clock.Now()
	}
	from, to = schedule.DayStart(from), schedule.DayStart(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end %s is before start %s", ErrInvalidRequest, to.Format(dayLayout), from.Format(dayLayout))
	}

	sched, err := s.memberSchedule(m)
	if err != nil {
		return nil, err
	}
	shifts, err := s.store.ListShifts(ctx, m.ID, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	excused, err := s.store.ListExcused(ctx)
	if err != nil {
		return nil, err
	}

	rep, err := s.engine.Reconcile(sched, shifts, reconcile.Interval{From: from, To: to}, excused)
	if err != nil {
		return nil, err
	}

	v := &ReportView{
		Member:     refOf(*m),
		Start:      from.Format(dayLayout),
		End:        to.Format(dayLayout),
		Ideal:      rep.IdealCount,
		Attended:   rep.Attended(),
		Shifts:     []TimelineEntry{},
		InSchedule: []ShiftView{},
		Suspicious: []ShiftView{},
		Datapoints: rep.Datapoints,
		Labels:     rep.Labels,
	}
	if mean, ok := rep.MeanOffset(); ok {
		v.MeanOffset = &mean
	}
	if v.Datapoints == nil {
		v.Datapoints = []*int{}
	}
	if v.Labels == nil {
		v.Labels = []string{}
	}
	for _, c := range rep.InSchedule {
		v.InSchedule = append(v.InSchedule, s.shiftView(c.Shift, m))
	}
	for _, c := range rep.Suspicious {
		sv := s.shiftView(c.Shift, m)
		sv.Reason = string(c.Reason)
		v.Suspicious = append(v.Suspicious, sv)
	}
	for _, e := range rep.Timeline {
		entry := TimelineEntry{Occurrence: s.occurrenceView(e.Occurrence)}
		if e.Shift != nil {
			sv := s.shiftView(*e.Shift, m)
			entry.Shift = &sv
		}
		v.Shifts = append(v.Shifts, entry)
	}
	return v, nil
}

// CheckIn opens a shift for the member. It is only allowed while one of the
// member's occurrences is within its check-in window, and at most one shift
// may be open per member per day.
func (s *Service) CheckIn(ctx context.Context, mail string) (*ShiftView, error) {
	m, err := s.member(ctx, mail)
	if err != nil {
		return nil, err
	}
	sched, err := s.memberSchedule(m)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	occ, ok, err := s.checkinWindow(sched, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.audit.Record(ctx, audit.ActionShiftCheckin, map[string]string{"mail": m.Mail}, "refused", m.ID, ErrNotOnShift.Error())
		return nil, ErrNotOnShift
	}

	s.checkin.Lock()
	defer s.checkin.Unlock()

	open, err := s.store.OpenShift(ctx, m.ID, now)
	if err == nil {
		return nil, fmt.Errorf("%w: %s", ErrShiftAlreadyOpen, open.ID)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	sh, err := s.store.CreateShift(ctx, m.ID, now)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.ActionShiftCheckin, map[string]string{"mail": m.Mail, "block": occ.Block.Name}, "success", sh.ID, "")
	s.log.Info().Str("mail", m.Mail).Str("block", s.engine.Label(occ)).Msg("checked in")
	v := s.shiftView(*sh, m)
	return &v, nil
}

// checkinWindow finds the occurrence of sched whose open window
// (checkin - beforeStart, checkin + afterStart) contains now.
func (s *Service) checkinWindow(sched schedule.Schedule, now time.Time) (schedule.Occurrence, bool, error) {
	tol := s.codec.Catalog().Tolerances()
	cur, err := schedule.NewCursor(sched, schedule.DayStart(now))
	if err != nil {
		return schedule.Occurrence{}, false, err
	}
	for {
		occ := cur.Next()
		opens := occ.Checkin().Add(-tol.BeforeStart)
		if !opens.Before(now) {
			return schedule.Occurrence{}, false, nil
		}
		if now.Before(occ.Checkin().Add(tol.AfterStart)) {
			return occ, true, nil
		}
	}
}

// CheckOut closes the shift with the given id. The check-out must happen on
// the day of the check-in.
func (s *Service) CheckOut(ctx context.Context, id string) (*ShiftView, error) {
	sh, err := s.store.GetShift(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrShiftNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if !schedule.SameDay(sh.Checkin, now) {
		return nil, ErrCheckinDayOver
	}
	if sh.Checkout != nil {
		return nil, ErrShiftAlreadyClosed
	}

	closed, err := s.store.CloseShift(ctx, id, now)
	if errors.Is(err, store.ErrShiftClosed) {
		return nil, ErrShiftAlreadyClosed
	}
	if err != nil {
		return nil, err
	}

	m, err := s.store.GetMember(ctx, closed.MemberID)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, audit.ActionShiftCheckout, map[string]string{"id": id}, "success", id, "")
	v := s.shiftView(*closed, m)
	return &v, nil
}

// Week returns this week's shifts bucketed by working day, Monday first,
// with consecutive shifts of one member merged.
func (s *Service) Week(ctx context.Context) ([][]ShiftView, error) {
	shifts, err := s.store.ListShiftsSince(ctx, schedule.WeekStart(s.clock.Now()))
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Member, len(members))
	for i := range members {
		byID[members[i].ID] = &members[i]
	}

	merged := reconcile.MergeWeek(shifts)
	week := make([][]ShiftView, len(merged))
	for wd, day := range merged {
		week[wd] = []ShiftView{}
		for _, sh := range day {
			week[wd] = append(week[wd], s.shiftView(sh, byID[sh.MemberID]))
		}
	}
	return week, nil
}

// Excuse marks block on date as excused for every member.
func (s *Service) Excuse(ctx context.Context, date time.Time, block int, reason string) (*OccurrenceView, error) {
	n := s.codec.Catalog().Len()
	if block < 0 || block >= n {
		return nil, fmt.Errorf("%w: block (%d) out of the range (0..%d)", ErrBlockOutOfRange, block, n-1)
	}

	ex, err := s.store.CreateExcused(ctx, date, block, reason)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, ErrAlreadyExcused
	}
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.ActionShiftExcuse, map[string]interface{}{"date": ex.Date.Format(dayLayout), "block": block}, "success", ex.ID, reason)
	v := s.occurrenceView(schedule.Occurrence{Date: ex.Date, Index: block, Block: s.codec.Catalog().Block(block)})
	return &v, nil
}

// ListExcused returns every excused occurrence.
func (s *Service) ListExcused(ctx context.Context) ([]models.ExcusedOccurrence, error) {
	out, err := s.store.ListExcused(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.ExcusedOccurrence{}
	}
	return out, nil
}

// ListAudit returns the most recent audit records.
func (s *Service) ListAudit(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	out, err := s.store.ListAudit(ctx, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.AuditRecord{}
	}
	return out, nil
}
