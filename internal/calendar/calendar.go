// Package calendar exports member schedules as iCalendar feeds.
package calendar

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/fentz26/shiftwatch/internal/models"
	"github.com/fentz26/shiftwatch/internal/schedule"
)

const (
	productID   = "-//shiftwatch//Roster Feed//EN"
	icsUTCStamp = "20060102T150405Z"
)

// Options control feed generation.
type Options struct {
	// Now stamps the feed and anchors the first occurrence of each slot.
	Now time.Time
	// Horizon bounds the window in which excused occurrences are written as
	// EXDATEs. The weekly rules themselves are open-ended.
	Horizon time.Duration
	// Alphabet names weekdays in event descriptions.
	Alphabet schedule.Alphabet
}

// Build returns a calendar with one weekly recurring event per distinct slot
// of s. Excused occurrences inside the horizon are excluded from the rules.
func Build(m models.Member, s schedule.Schedule, excused []models.ExcusedOccurrence, opts Options) (*ics.Calendar, error) {
	list, err := schedule.ScheduleList(s, opts.Now)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]bool, len(excused))
	for _, ex := range excused {
		skip[excuseKey(ex.Date, ex.Block)] = true
	}

	cal := ics.NewCalendarFor("shiftwatch")
	cal.SetProductId(productID)
	cal.SetMethod(ics.MethodPublish)
	cal.SetXWRCalName("Shifts: " + m.DisplayName())

	horizonEnd := opts.Now.Add(opts.Horizon)
	seen := make(map[string]bool, len(list))
	for _, occ := range list {
		slot := fmt.Sprintf("%d-%d", occ.Weekday(), occ.Index)
		if seen[slot] {
			continue
		}
		seen[slot] = true

		opt := rrule.ROption{Freq: rrule.WEEKLY, Dtstart: occ.Checkin()}
		rule, err := rrule.NewRRule(opt)
		if err != nil {
			return nil, fmt.Errorf("weekly rule for %s: %w", slot, err)
		}

		ev := cal.AddEvent(fmt.Sprintf("%s-%s@shiftwatch", m.ID, slot))
		ev.SetDtStampTime(opts.Now)
		ev.SetStartAt(occ.Checkin())
		ev.SetEndAt(occ.Checkout())
		ev.SetSummary("Shift " + occ.Block.Name)
		ev.SetDescription(fmt.Sprintf("%s %s, %s-%s", opts.Alphabet.Label(occ.Weekday()), occ.Block.Name, occ.Block.Start, occ.Block.End))
		ev.AddRrule(opt.RRuleString())

		for _, t := range rule.Between(occ.Checkin(), horizonEnd, true) {
			if skip[excuseKey(t.In(occ.Date.Location()), occ.Index)] {
				ev.AddExdate(t.UTC().Format(icsUTCStamp))
			}
		}
	}
	return cal, nil
}

// Render serializes the feed built by Build.
func Render(m models.Member, s schedule.Schedule, excused []models.ExcusedOccurrence, opts Options) (string, error) {
	cal, err := Build(m, s, excused, opts)
	if err != nil {
		return "", err
	}
	return cal.Serialize(), nil
}

func excuseKey(day time.Time, block int) string {
	return fmt.Sprintf("%s/%d", day.Format("2006-01-02"), block)
}
