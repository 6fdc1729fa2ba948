package reconcile

import (
	"sort"
	"time"

	"github.com/fentz26/shiftwatch/internal/models"
	"github.com/fentz26/shiftwatch/internal/schedule"
)

// MergeGap is the largest pause between two shifts of the same member that
// still fuses them into one.
const MergeGap = time.Minute

// Merge fuses consecutive shifts of the same member on one day. day must be
// sorted by check-in; the scan for shift i stops at the first later shift
// that starts more than MergeGap after i closed, or as soon as i is open.
//
// The input is left untouched.
func Merge(day []models.Shift) []models.Shift {
	out := make([]models.Shift, len(day))
	for i := range day {
		out[i] = day[i].Clone()
	}

	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); {
			if out[i].Checkout == nil || out[j].Checkin.Sub(*out[i].Checkout) > MergeGap {
				break
			}
			if out[i].MemberID == out[j].MemberID {
				out[i].Checkout = out[j].Checkout
				out = append(out[:j], out[j+1:]...)
				continue
			}
			j++
		}
	}
	return out
}

// MergeWeek buckets shifts by working weekday, Monday first, sorts each day
// by check-in and merges it. Weekend shifts are dropped.
func MergeWeek(shifts []models.Shift) [schedule.WorkingDays][]models.Shift {
	var week [schedule.WorkingDays][]models.Shift
	for _, s := range shifts {
		if wd := schedule.WorkdayIndex(s.Checkin); wd < schedule.WorkingDays {
			week[wd] = append(week[wd], s)
		}
	}
	for wd, day := range week {
		sort.SliceStable(day, func(i, j int) bool { return day[i].Checkin.Before(day[j].Checkin) })
		week[wd] = Merge(day)
	}
	return week
}
