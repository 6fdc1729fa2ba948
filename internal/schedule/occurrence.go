package schedule

import (
	"sort"
	"time"
)

// Occurrence is a block on a concrete calendar date.
type Occurrence struct {
	// Date is local midnight of the occurrence day.
	Date  time.Time
	Index int
	Block Block
}

// Checkin returns the nominal start instant.
func (o Occurrence) Checkin() time.Time { return o.Block.Start.On(o.Date) }

// Checkout returns the nominal end instant.
func (o Occurrence) Checkout() time.Time { return o.Block.End.On(o.Date) }

// Weekday returns the working-day index of the occurrence.
func (o Occurrence) Weekday() int { return WorkdayIndex(o.Date) }

// Same reports whether o and other are the same block on the same day.
func (o Occurrence) Same(other Occurrence) bool {
	return o.Index == other.Index && SameDay(o.Date, other.Date)
}

// Before orders occurrences by date, then by block.
func (o Occurrence) Before(other Occurrence) bool {
	return CompareDayBlock(o.Date, o.Index, other.Date, other.Index) < 0
}

// CompareDayBlock orders (day, block index) pairs; it returns -1, 0 or +1.
func CompareDayBlock(dayA time.Time, blockA int, dayB time.Time, blockB int) int {
	ya, ma, da := dayA.Date()
	yb, mb, db := dayB.Date()
	switch {
	case ya != yb:
		return sign(ya - yb)
	case ma != mb:
		return sign(int(ma) - int(mb))
	case da != db:
		return sign(da - db)
	default:
		return sign(blockA - blockB)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// WorkdayIndex returns 0 for Monday through 6 for Sunday.
func WorkdayIndex(t time.Time) int { return (int(t.Weekday()) + 6) % 7 }

// DayStart returns local midnight of t's day.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WeekStart returns local midnight of the Monday of t's week.
func WeekStart(t time.Time) time.Time {
	return DayStart(t).AddDate(0, 0, -WorkdayIndex(t))
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ya, ma, da := a.Date()
	yb, mb, db := b.Date()
	return ya == yb && ma == mb && da == db
}

func (s Slot) in(weekStart time.Time) Occurrence {
	return Occurrence{Date: weekStart.AddDate(0, 0, s.Weekday), Index: s.Index, Block: s.Block}
}

// Cursor walks the infinite sequence of a schedule's upcoming occurrences.
// It is owned by its caller; use Clone to branch a walk.
type Cursor struct {
	weekStart time.Time
	index     int
	slots     []Slot
}

// NewCursor positions a cursor at the first occurrence of s whose checkout is
// not before reference. Slots are walked by weekday and then block order, so
// the sequence never goes back in time whatever the encoding order was.
func NewCursor(s Schedule, reference time.Time) (*Cursor, error) {
	if len(s) == 0 {
		return nil, &ValidationError{Reason: "schedule has no slots"}
	}
	slots := append([]Slot(nil), s...)
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Weekday != slots[j].Weekday {
			return slots[i].Weekday < slots[j].Weekday
		}
		return slots[i].Index < slots[j].Index
	})

	week := WeekStart(reference)
	for i, slot := range slots {
		if !slot.in(week).Checkout().Before(reference) {
			return &Cursor{weekStart: week, index: i, slots: slots}, nil
		}
	}
	return &Cursor{weekStart: week.AddDate(0, 0, 7), slots: slots}, nil
}

// Peek returns the occurrence Next would return, without advancing.
func (c *Cursor) Peek() Occurrence { return c.slots[c.index].in(c.weekStart) }

// Next returns the current occurrence and advances the cursor.
func (c *Cursor) Next() Occurrence {
	occ := c.Peek()
	c.index++
	if c.index == len(c.slots) {
		c.index = 0
		c.weekStart = c.weekStart.AddDate(0, 0, 7)
	}
	return occ
}

// Clone returns an independent cursor at the same position.
func (c *Cursor) Clone() *Cursor {
	cp := *c
	return &cp
}

// ScheduleList returns one full cycle of s, one occurrence per slot, starting
// from the slot current at reference and sorted by checkin.
func ScheduleList(s Schedule, reference time.Time) ([]Occurrence, error) {
	cur, err := NewCursor(s, reference)
	if err != nil {
		return nil, err
	}
	out := make([]Occurrence, len(s))
	for i := range out {
		out[i] = cur.Next()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Checkin().Before(out[j].Checkin())
	})
	return out, nil
}
