// Package reconcile classifies recorded shifts against a member's ideal
// weekly schedule and builds punctuality reports from the result.
package reconcile

import (
	"sort"
	"time"

	"github.com/fentz26/shiftwatch/internal/models"
	"github.com/fentz26/shiftwatch/internal/schedule"
)

// Reason explains why a shift was classified as suspicious.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonMismatched         Reason = "mismatched"
	ReasonCheckinOutOfWindow Reason = "checkin_out_of_window"
	ReasonNeverClosed        Reason = "never_closed"
	ReasonClosedEarly        Reason = "closed_early"
	ReasonClosedLate         Reason = "closed_late"
)

// Classified is a shift tagged with the occurrence it was meant for.
type Classified struct {
	Shift models.Shift
	// Occurrence is nil when no block is close enough to the check-in.
	Occurrence *schedule.Occurrence
	Reason     Reason
}

// InSchedule reports whether the shift matched its occurrence within tolerance.
func (c Classified) InSchedule() bool { return c.Reason == ReasonNone }

// Interval is an inclusive range of days; only the dates of From and To matter.
type Interval struct {
	From time.Time
	To   time.Time
}

// Entry pairs an expected occurrence with the shift that fulfilled it, if any.
type Entry struct {
	Occurrence schedule.Occurrence
	Shift      *models.Shift
}

// Report is the outcome of reconciling one member over an interval.
type Report struct {
	Interval   Interval
	InSchedule []Classified
	Suspicious []Classified
	// IdealCount is the number of non-excused occurrences in the interval.
	IdealCount int
	// Datapoints holds, per ideal occurrence, the block start minute minus
	// the check-in minute, or nil when the occurrence was missed.
	Datapoints []*int
	Labels     []string
	Timeline   []Entry
}

// Attended returns how many ideal occurrences were fulfilled.
func (r *Report) Attended() int {
	n := 0
	for _, d := range r.Datapoints {
		if d != nil {
			n++
		}
	}
	return n
}

// MeanOffset returns the average datapoint in minutes. ok is false when no
// occurrence was attended.
func (r *Report) MeanOffset() (mean float64, ok bool) {
	sum, n := 0, 0
	for _, d := range r.Datapoints {
		if d != nil {
			sum += *d
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return float64(sum) / float64(n), true
}

// Engine reconciles shifts against schedules decoded by one codec.
// It keeps no mutable state and is safe for concurrent use.
type Engine struct {
	catalog  *schedule.Catalog
	alphabet schedule.Alphabet
}

// New returns an engine over the codec's catalog and alphabet.
func New(codec *schedule.Codec) *Engine {
	return &Engine{catalog: codec.Catalog(), alphabet: codec.Alphabet()}
}

// Classify locates the occurrence a shift was meant for and checks it
// against the tolerance windows. Checks run in a fixed order and the first
// failing one names the reason.
func (e *Engine) Classify(s models.Shift) Classified {
	c := Classified{Shift: s.Clone()}
	occ, err := e.catalog.Locate(s.Checkin, true)
	if err != nil {
		c.Reason = ReasonMismatched
		return c
	}
	c.Occurrence = &occ

	tol := e.catalog.Tolerances()
	checkin, checkout := occ.Checkin(), occ.Checkout()
	switch {
	case s.Checkin.Before(checkin.Add(-tol.BeforeStart)) || s.Checkin.After(checkin.Add(tol.AfterStart)):
		c.Reason = ReasonCheckinOutOfWindow
	case s.Checkout == nil:
		c.Reason = ReasonNeverClosed
	case !s.Checkout.After(checkout):
		c.Reason = ReasonClosedEarly
	case s.Checkout.After(checkout.Add(tol.AfterEnd)):
		c.Reason = ReasonClosedLate
	}
	return c
}

// Label returns the display label of an occurrence, e.g. "mié 5-6".
func (e *Engine) Label(occ schedule.Occurrence) string {
	return e.alphabet.Label(occ.Weekday()) + " " + occ.Block.Name
}

// Reconcile classifies shifts and walks the ideal schedule over iv.
//
// Every shift lands in exactly one of InSchedule or Suspicious. Occurrences
// matching an excused entry are skipped entirely. Each remaining occurrence
// adds one label, one timeline entry and one datapoint; it is fulfilled by
// the earliest unconsumed in-schedule shift of the same date and block.
func (e *Engine) Reconcile(s schedule.Schedule, shifts []models.Shift, iv Interval, excused []models.ExcusedOccurrence) (*Report, error) {
	cur, err := schedule.NewCursor(s, schedule.DayStart(iv.From))
	if err != nil {
		return nil, err
	}

	sorted := append([]models.Shift(nil), shifts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Checkin.Before(sorted[j].Checkin) })

	report := &Report{Interval: iv}
	for _, sh := range sorted {
		c := e.Classify(sh)
		if c.InSchedule() {
			report.InSchedule = append(report.InSchedule, c)
		} else {
			report.Suspicious = append(report.Suspicious, c)
		}
	}

	ex := append([]models.ExcusedOccurrence(nil), excused...)
	sort.SliceStable(ex, func(i, j int) bool {
		return schedule.CompareDayBlock(ex[i].Date, ex[i].Block, ex[j].Date, ex[j].Block) < 0
	})

	last := schedule.DayStart(iv.To)
	j, k := 0, 0
	for {
		occ := cur.Next()
		if occ.Date.After(last) {
			break
		}

		for k < len(ex) && schedule.CompareDayBlock(ex[k].Date, ex[k].Block, occ.Date, occ.Index) < 0 {
			k++
		}
		if k < len(ex) && schedule.CompareDayBlock(ex[k].Date, ex[k].Block, occ.Date, occ.Index) == 0 {
			continue
		}

		report.IdealCount++
		report.Labels = append(report.Labels, e.Label(occ))
		entry := Entry{Occurrence: occ}

		for j < len(report.InSchedule) && report.InSchedule[j].Occurrence.Before(occ) {
			j++
		}
		if j < len(report.InSchedule) && report.InSchedule[j].Occurrence.Same(occ) {
			matched := report.InSchedule[j].Shift
			d := occ.Block.Start.Minutes() - minuteOfDay(matched.Checkin)
			report.Datapoints = append(report.Datapoints, &d)
			entry.Shift = &matched
			j++
		} else {
			report.Datapoints = append(report.Datapoints, nil)
		}
		report.Timeline = append(report.Timeline, entry)
	}
	return report, nil
}

func minuteOfDay(t time.Time) int { return t.Hour()*60 + t.Minute() }
