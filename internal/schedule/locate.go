package schedule

import (
	"fmt"
	"time"
)

const stampLayout = "2006-01-02 15:04:05"

// Locate maps instant to the block it belongs to, or the nearest block ahead
// of it on the same day.
//
// In strict mode the instant must fall inside a block, or inside the
// before-start window of the next one; otherwise ErrNotCloseEnough is
// returned, and weekends fail with ErrOutOfRange. In loose mode Locate never
// fails: weekends search the following Monday, and instants after the last
// block resolve to the first block of the same weekday one week later.
func (c *Catalog) Locate(instant time.Time, strict bool) (Occurrence, error) {
	day := DayStart(instant)
	if wd := WorkdayIndex(instant); wd >= WorkingDays {
		if strict {
			return Occurrence{}, fmt.Errorf("locate %s: %w", instant.Format(stampLayout), ErrOutOfRange)
		}
		day = day.AddDate(0, 0, 7-wd)
	}

	for i, b := range c.blocks {
		occ := Occurrence{Date: day, Index: i, Block: b}
		checkin, checkout := occ.Checkin(), occ.Checkout()

		var upcoming bool
		if strict {
			upcoming = checkin.Add(-c.tol.BeforeStart).Before(instant) && instant.Before(checkin)
		} else {
			upcoming = instant.Before(checkin)
		}
		inside := !instant.Before(checkin) && !instant.After(checkout)
		if inside || upcoming {
			return occ, nil
		}
	}

	if strict {
		return Occurrence{}, fmt.Errorf("locate %s: %w", instant.Format(stampLayout), ErrNotCloseEnough)
	}
	return Occurrence{Date: day.AddDate(0, 0, 7), Index: 0, Block: c.blocks[0]}, nil
}
