// Package schedule implements the weekly shift model: the block catalog, the
// compact schedule encoding, the occurrence cursor and the nearest-block locator.
//
// Every value in this package is immutable once built, so a Catalog or Codec can
// be shared between goroutines without locking.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WorkingDays is the number of schedulable weekdays, Monday (0) to Friday (4).
const WorkingDays = 5

// TimeOfDay is an offset from local midnight.
type TimeOfDay time.Duration

// At returns the time of day hh:mm.
func At(hour, minute int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	limits := []int{23, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] || len(p) != 2 {
			return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
		}
		d += time.Duration(n) * units[i]
	}
	return TimeOfDay(d), nil
}

// On combines the calendar date of day with t, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	rem := time.Duration(t)
	h := rem / time.Hour
	rem -= h * time.Hour
	mi := rem / time.Minute
	rem -= mi * time.Minute
	return time.Date(y, m, d, int(h), int(mi), int(rem/time.Second), 0, day.Location())
}

// Minutes returns the minute of day.
func (t TimeOfDay) Minutes() int { return int(time.Duration(t) / time.Minute) }

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	s := fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
	if sec := d % time.Minute; sec != 0 {
		s += fmt.Sprintf(":%02d", int(sec/time.Second))
	}
	return s
}

// Block is a named daily time window.
type Block struct {
	Name  string
	Start TimeOfDay
	End   TimeOfDay
}

// Duration returns the length of the block.
func (b Block) Duration() time.Duration { return time.Duration(b.End - b.Start) }

func (b Block) String() string {
	return fmt.Sprintf("%s (%s-%s)", b.Name, b.Start, b.End)
}

// Tolerances are the grace windows around a block's nominal start and end.
type Tolerances struct {
	// BeforeStart is how early a check-in may precede the nominal start.
	BeforeStart time.Duration
	// AfterStart is how late a check-in may follow the nominal start.
	// It always covers the whole last minute of the window.
	AfterStart time.Duration
	// AfterEnd is how long after the nominal end a check-out is still valid.
	AfterEnd time.Duration
}

// NewTolerances derives AfterStart from beforeStart.
func NewTolerances(beforeStart, afterEnd time.Duration) Tolerances {
	return Tolerances{
		BeforeStart: beforeStart,
		AfterStart:  beforeStart + 59*time.Second,
		AfterEnd:    afterEnd,
	}
}

// DefaultTolerances returns a ten minute window on both ends.
func DefaultTolerances() Tolerances {
	return NewTolerances(10*time.Minute, 10*time.Minute)
}

// DefaultBlocks is the stock catalog of eight teaching-period blocks.
func DefaultBlocks() []Block {
	return []Block{
		{Name: "1-2", Start: At(8, 15), End: At(9, 25)},
		{Name: "3-4", Start: At(9, 35), End: At(10, 45)},
		{Name: "5-6", Start: At(10, 55), End: At(12, 5)},
		{Name: "7-8", Start: At(12, 15), End: At(13, 25)},
		{Name: "9-10", Start: At(14, 30), End: At(15, 40)},
		{Name: "11-12", Start: At(15, 50), End: At(17, 0)},
		{Name: "13-14", Start: At(17, 10), End: At(18, 20)},
		{Name: "15-16", Start: At(18, 30), End: At(19, 40)},
	}
}

// Catalog is the validated, ordered set of blocks plus the tolerances
// used against it.
type Catalog struct {
	blocks []Block
	tol    Tolerances
}

// NewCatalog validates blocks and tol and builds a catalog.
//
// Hard inconsistencies are reported together in a *ConfigurationError. Softer
// problems, such as a tolerance longer than the shortest rest between two
// blocks, come back as warnings alongside a usable catalog.
func NewCatalog(blocks []Block, tol Tolerances) (*Catalog, []string, error) {
	var problems []string
	if len(blocks) == 0 {
		problems = append(problems, "catalog has no blocks")
	}
	if tol.BeforeStart < 0 || tol.AfterStart < 0 || tol.AfterEnd < 0 {
		problems = append(problems, "tolerances must not be negative")
	}

	byName := make(map[string]int, len(blocks))
	for i, b := range blocks {
		if strings.TrimSpace(b.Name) == "" {
			problems = append(problems, fmt.Sprintf("block %d has no name", i))
		} else if _, dup := byName[b.Name]; dup {
			problems = append(problems, fmt.Sprintf("block name %q is used twice", b.Name))
		}
		byName[b.Name] = i
		if b.End <= b.Start {
			problems = append(problems, fmt.Sprintf("block %s ends before it starts", b))
		}
	}
	for i := 0; i+1 < len(blocks); i++ {
		if blocks[i].End >= blocks[i+1].Start {
			problems = append(problems, fmt.Sprintf("block %s starts before block %s ends", blocks[i+1], blocks[i]))
		}
	}
	if len(problems) > 0 {
		return nil, nil, &ConfigurationError{Problems: problems}
	}

	shortest := blocks[0].Duration()
	for _, b := range blocks[1:] {
		if d := b.Duration(); d < shortest {
			shortest = d
		}
	}
	// A start window as long as a block would let a check-in for the next
	// block open before the previous window has closed.
	if tol.BeforeStart >= shortest {
		problems = append(problems, fmt.Sprintf("before-start tolerance %s is not shorter than the shortest block (%s)", tol.BeforeStart, shortest))
	}
	if tol.AfterStart >= shortest {
		problems = append(problems, fmt.Sprintf("after-start tolerance %s is not shorter than the shortest block (%s)", tol.AfterStart, shortest))
	}
	if len(problems) > 0 {
		return nil, nil, &ConfigurationError{Problems: problems}
	}

	var warnings []string
	if len(blocks) > 1 {
		rest := time.Duration(blocks[1].Start - blocks[0].End)
		for i := 1; i+1 < len(blocks); i++ {
			if r := time.Duration(blocks[i+1].Start - blocks[i].End); r < rest {
				rest = r
			}
		}
		if tol.BeforeStart > rest {
			warnings = append(warnings, fmt.Sprintf("before-start tolerance %s is longer than the shortest rest between blocks (%s)", tol.BeforeStart, rest))
		}
		if tol.AfterEnd > rest {
			warnings = append(warnings, fmt.Sprintf("after-end tolerance %s is longer than the shortest rest between blocks (%s)", tol.AfterEnd, rest))
		}
	}

	return &Catalog{
		blocks: append([]Block(nil), blocks...),
		tol:    tol,
	}, warnings, nil
}

// Len returns the number of blocks.
func (c *Catalog) Len() int { return len(c.blocks) }

// Block returns the i-th block. It panics if i is out of range.
func (c *Catalog) Block(i int) Block { return c.blocks[i] }

// Blocks returns a copy of the blocks in order.
func (c *Catalog) Blocks() []Block { return append([]Block(nil), c.blocks...) }

// Tolerances returns the catalog's tolerance windows.
func (c *Catalog) Tolerances() Tolerances { return c.tol }
