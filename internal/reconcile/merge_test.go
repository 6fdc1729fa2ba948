package reconcile

import (
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/shiftwatch/internal/models"
	"github.com/fentz26/shiftwatch/internal/schedule"
)

func member(id, m string, in time.Time, out *time.Time) models.Shift {
	return models.Shift{ID: id, MemberID: m, Checkin: in, Checkout: out}
}

func TestMerge_ScenarioC(t *testing.T) {
	day := []models.Shift{
		member("1", "A", at(1, 9, 0), ptr(at(1, 9, 25))),
		member("2", "A", at(1, 9, 25), ptr(at(1, 9, 50))),
	}

	got := Merge(day)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, at(1, 9, 0), got[0].Checkin)
	assert.Equal(t, at(1, 9, 50), *got[0].Checkout)

	// Input is left untouched.
	assert.Len(t, day, 2)
	assert.Equal(t, at(1, 9, 25), *day[0].Checkout)
}

func TestMerge_Boundaries(t *testing.T) {
	tests := []struct {
		name string
		day  []models.Shift
		want int
	}{
		{
			name: "gap of exactly one minute",
			day: []models.Shift{
				member("1", "A", at(1, 9, 0), ptr(at(1, 9, 25))),
				member("2", "A", at(1, 9, 26), ptr(at(1, 9, 50))),
			},
			want: 1,
		},
		{
			name: "gap just over one minute",
			day: []models.Shift{
				member("1", "A", at(1, 9, 0), ptr(at(1, 9, 25))),
				member("2", "A", at(1, 9, 26).Add(time.Second), ptr(at(1, 9, 50))),
			},
			want: 2,
		},
		{
			name: "open shift never merges forward",
			day: []models.Shift{
				member("1", "A", at(1, 9, 0), nil),
				member("2", "A", at(1, 9, 0), ptr(at(1, 9, 50))),
			},
			want: 2,
		},
		{
			name: "different members",
			day: []models.Shift{
				member("1", "A", at(1, 9, 0), ptr(at(1, 9, 25))),
				member("2", "B", at(1, 9, 25), ptr(at(1, 9, 50))),
			},
			want: 2,
		},
		{
			name: "chain of three",
			day: []models.Shift{
				member("1", "A", at(1, 9, 0), ptr(at(1, 9, 25))),
				member("2", "A", at(1, 9, 25), ptr(at(1, 9, 50))),
				member("3", "A", at(1, 9, 51), ptr(at(1, 10, 30))),
			},
			want: 1,
		},
		{
			name: "other member in between",
			day: []models.Shift{
				member("1", "A", at(1, 9, 0), ptr(at(1, 9, 25))),
				member("2", "B", at(1, 9, 25), ptr(at(1, 9, 40))),
				member("3", "A", at(1, 9, 25), ptr(at(1, 9, 50))),
			},
			want: 2,
		},
		{
			name: "unsorted input stops at the first far shift",
			day: []models.Shift{
				member("1", "A", at(1, 9, 0), ptr(at(1, 9, 25))),
				member("2", "B", at(1, 12, 0), ptr(at(1, 13, 0))),
				member("3", "A", at(1, 9, 25), ptr(at(1, 9, 50))),
			},
			want: 3,
		},
		{name: "empty", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, Merge(tt.day), tt.want)
		})
	}
}

func TestMerge_AbsorbsOpenTail(t *testing.T) {
	got := Merge([]models.Shift{
		member("1", "A", at(1, 9, 0), ptr(at(1, 9, 25))),
		member("2", "A", at(1, 9, 25), nil),
		member("3", "A", at(1, 9, 26), ptr(at(1, 9, 50))),
	})
	require.Len(t, got, 2)
	assert.Nil(t, got[0].Checkout)
	assert.Equal(t, "3", got[1].ID)
}

func TestMergeWeek(t *testing.T) {
	shifts := []models.Shift{
		member("wed", "A", at(3, 9, 35), ptr(at(3, 10, 45))),
		member("mon2", "A", at(1, 9, 25), ptr(at(1, 9, 50))),
		member("mon1", "A", at(1, 9, 0), ptr(at(1, 9, 25))),
		member("sat", "A", at(6, 10, 0), ptr(at(6, 11, 0))),
	}

	week := MergeWeek(shifts)
	require.Len(t, week[0], 1)
	assert.Equal(t, "mon1", week[0][0].ID)
	assert.Equal(t, at(1, 9, 50), *week[0][0].Checkout)
	assert.Empty(t, week[1])
	require.Len(t, week[2], 1)
	assert.Equal(t, "wed", week[2][0].ID)
	assert.Empty(t, week[4])
}

// genDay builds a sorted day of shifts from (start offset, length, gap
// member) triples drawn by gopter.
func genDay(offsets []int, lengths []int, members []bool) []models.Shift {
	n := len(offsets)
	if len(lengths) < n {
		n = len(lengths)
	}
	if len(members) < n {
		n = len(members)
	}
	sort.Ints(offsets[:n])
	day := make([]models.Shift, n)
	for i := 0; i < n; i++ {
		in := at(1, 7, 0).Add(time.Duration(offsets[i]) * time.Second)
		m := "A"
		if members[i] {
			m = "B"
		}
		var out *time.Time
		if lengths[i] > 0 {
			out = ptr(in.Add(time.Duration(lengths[i]) * time.Second))
		}
		day[i] = member(string(rune('a'+i%26)), m, in, out)
	}
	return day
}

func TestMergeProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	offsets := gen.SliceOf(gen.IntRange(0, 12*3600))
	lengths := gen.SliceOf(gen.IntRange(0, 3600))
	members := gen.SliceOf(gen.Bool())

	properties.Property("merge is idempotent", prop.ForAll(
		func(o, l []int, m []bool) bool {
			once := Merge(genDay(o, l, m))
			twice := Merge(once)
			if len(once) != len(twice) {
				return false
			}
			for i := range once {
				if once[i].ID != twice[i].ID || !sameCheckout(once[i].Checkout, twice[i].Checkout) {
					return false
				}
			}
			return true
		},
		offsets, lengths, members,
	))

	properties.Property("merge never grows the day", prop.ForAll(
		func(o, l []int, m []bool) bool {
			day := genDay(o, l, m)
			return len(Merge(day)) <= len(day)
		},
		offsets, lengths, members,
	))

	properties.TestingRun(t)
}

func TestReconcilePartitions(t *testing.T) {
	cat, _, err := schedule.NewCatalog(schedule.DefaultBlocks(), schedule.DefaultTolerances())
	require.NoError(t, err)
	codec := schedule.NewCodec(cat, schedule.DefaultAlphabet())
	engine := New(codec)
	s, err := codec.Decode("l0,4x1,2v7")
	require.NoError(t, err)

	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("every shift is classified exactly once", prop.ForAll(
		func(o, l []int, m []bool) bool {
			day := genDay(o, l, m)
			report, err := engine.Reconcile(s, day, Interval{From: at(1, 0, 0), To: at(14, 0, 0)}, nil)
			if err != nil {
				return false
			}
			if len(report.InSchedule)+len(report.Suspicious) != len(day) {
				return false
			}
			seen := make(map[string]int)
			for _, c := range append(append([]Classified(nil), report.InSchedule...), report.Suspicious...) {
				seen[c.Shift.ID+c.Shift.Checkin.String()]++
			}
			for _, sh := range day {
				if seen[sh.ID+sh.Checkin.String()] == 0 {
					return false
				}
			}
			return report.IdealCount == len(report.Datapoints) &&
				report.IdealCount == len(report.Labels) &&
				report.IdealCount == len(report.Timeline)
		},
		gen.SliceOf(gen.IntRange(0, 12*3600)),
		gen.SliceOf(gen.IntRange(0, 3*3600)),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func sameCheckout(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
