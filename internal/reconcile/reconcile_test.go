package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/shiftwatch/internal/models"
	"github.com/fentz26/shiftwatch/internal/schedule"
)

// 2024-01-01 is a Monday.
func at(d, h, m int) time.Time { return time.Date(2024, 1, d, h, m, 0, 0, time.Local) }

func ptr(t time.Time) *time.Time { return &t }

func shift(id string, in time.Time, out *time.Time) models.Shift {
	return models.Shift{ID: id, MemberID: "m1", Checkin: in, Checkout: out}
}

func newEngine(t *testing.T, blocks []schedule.Block) (*Engine, *schedule.Codec) {
	t.Helper()
	cat, _, err := schedule.NewCatalog(blocks, schedule.NewTolerances(10*time.Minute, 10*time.Minute))
	require.NoError(t, err)
	codec := schedule.NewCodec(cat, schedule.DefaultAlphabet())
	return New(codec), codec
}

func singleBlock() []schedule.Block {
	return []schedule.Block{{Name: "1-2", Start: schedule.At(8, 15), End: schedule.At(9, 25)}}
}

func decode(t *testing.T, codec *schedule.Codec, enc string) schedule.Schedule {
	t.Helper()
	s, err := codec.Decode(enc)
	require.NoError(t, err)
	return s
}

func TestClassify_ScenarioA(t *testing.T) {
	engine, _ := newEngine(t, singleBlock())

	c := engine.Classify(shift("a", at(1, 8, 20), ptr(at(1, 9, 30))))
	assert.True(t, c.InSchedule())
	require.NotNil(t, c.Occurrence)
	assert.Equal(t, at(1, 8, 15), c.Occurrence.Checkin())
}

func TestClassify_ScenarioB(t *testing.T) {
	engine, _ := newEngine(t, singleBlock())

	c := engine.Classify(shift("b", at(1, 8, 40), ptr(at(1, 9, 30))))
	assert.False(t, c.InSchedule())
	assert.Equal(t, ReasonCheckinOutOfWindow, c.Reason)
}

func TestClassify_Reasons(t *testing.T) {
	engine, _ := newEngine(t, singleBlock())

	tests := []struct {
		name   string
		shift  models.Shift
		reason Reason
	}{
		{name: "on time", shift: shift("1", at(1, 8, 15), ptr(at(1, 9, 26))), reason: ReasonNone},
		{name: "last second of the start window", shift: shift("2", at(1, 8, 25).Add(59*time.Second), ptr(at(1, 9, 30))), reason: ReasonNone},
		{name: "one minute past the start window", shift: shift("3", at(1, 8, 26), ptr(at(1, 9, 30))), reason: ReasonCheckinOutOfWindow},
		{name: "closed at grace end", shift: shift("4", at(1, 8, 10), ptr(at(1, 9, 35))), reason: ReasonNone},
		{name: "weekend", shift: shift("5", at(6, 8, 15), ptr(at(6, 9, 30))), reason: ReasonMismatched},
		{name: "afternoon", shift: shift("6", at(1, 15, 0), ptr(at(1, 16, 0))), reason: ReasonMismatched},
		{name: "never closed", shift: shift("7", at(1, 8, 15), nil), reason: ReasonNeverClosed},
		{name: "closed at nominal end", shift: shift("8", at(1, 8, 15), ptr(at(1, 9, 25))), reason: ReasonClosedEarly},
		{name: "closed early", shift: shift("9", at(1, 8, 15), ptr(at(1, 9, 0))), reason: ReasonClosedEarly},
		{name: "closed late", shift: shift("10", at(1, 8, 15), ptr(at(1, 9, 36))), reason: ReasonClosedLate},
		{name: "late checkin wins over missing checkout", shift: shift("11", at(1, 9, 0), nil), reason: ReasonCheckinOutOfWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := engine.Classify(tt.shift)
			assert.Equal(t, tt.reason, c.Reason)
			assert.Equal(t, tt.reason == ReasonNone, c.InSchedule())
			if tt.reason == ReasonMismatched {
				assert.Nil(t, c.Occurrence)
			}
		})
	}
}

func TestReconcile_Datapoints(t *testing.T) {
	engine, codec := newEngine(t, schedule.DefaultBlocks())
	s := decode(t, codec, "l0x1")

	shifts := []models.Shift{
		// Wednesday, three minutes early.
		shift("w", at(3, 9, 32), ptr(at(3, 10, 50))),
		// Monday, five minutes late.
		shift("m", at(1, 8, 20), ptr(at(1, 9, 30))),
		// Next Monday, never closed.
		shift("n", at(8, 8, 15), nil),
	}

	report, err := engine.Reconcile(s, shifts, Interval{From: at(1, 0, 0), To: at(10, 23, 0)}, nil)
	require.NoError(t, err)

	assert.Len(t, report.InSchedule, 2)
	assert.Len(t, report.Suspicious, 1)
	assert.Equal(t, "n", report.Suspicious[0].Shift.ID)

	assert.Equal(t, 4, report.IdealCount)
	assert.Equal(t, []string{"lun 1-2", "mié 3-4", "lun 1-2", "mié 3-4"}, report.Labels)
	require.Len(t, report.Datapoints, 4)
	require.NotNil(t, report.Datapoints[0])
	assert.Equal(t, -5, *report.Datapoints[0])
	require.NotNil(t, report.Datapoints[1])
	assert.Equal(t, 3, *report.Datapoints[1])
	assert.Nil(t, report.Datapoints[2])
	assert.Nil(t, report.Datapoints[3])

	require.Len(t, report.Timeline, 4)
	require.NotNil(t, report.Timeline[0].Shift)
	assert.Equal(t, "m", report.Timeline[0].Shift.ID)
	assert.Nil(t, report.Timeline[2].Shift)

	assert.Equal(t, 2, report.Attended())
	mean, ok := report.MeanOffset()
	assert.True(t, ok)
	assert.InDelta(t, -1.0, mean, 1e-9)
}

func TestReconcile_Excused(t *testing.T) {
	engine, codec := newEngine(t, schedule.DefaultBlocks())
	s := decode(t, codec, "l0x1")

	excused := []models.ExcusedOccurrence{
		{Date: at(3, 0, 0), Block: 1},
		{Date: at(2, 0, 0), Block: 4}, // not in the schedule
	}
	report, err := engine.Reconcile(s, nil, Interval{From: at(1, 0, 0), To: at(5, 0, 0)}, excused)
	require.NoError(t, err)

	assert.Equal(t, 1, report.IdealCount)
	assert.Equal(t, []string{"lun 1-2"}, report.Labels)
	assert.Equal(t, []*int{nil}, report.Datapoints)
}

func TestReconcile_SkipsShiftsOutsideSchedule(t *testing.T) {
	engine, codec := newEngine(t, schedule.DefaultBlocks())
	s := decode(t, codec, "x1")

	shifts := []models.Shift{
		// Covers a Monday block the member is not scheduled for.
		shift("cover", at(1, 12, 15), ptr(at(1, 13, 30))),
		shift("own", at(3, 9, 35), ptr(at(3, 10, 50))),
	}
	report, err := engine.Reconcile(s, shifts, Interval{From: at(1, 0, 0), To: at(3, 0, 0)}, nil)
	require.NoError(t, err)

	assert.Len(t, report.InSchedule, 2)
	assert.Equal(t, 1, report.IdealCount)
	require.NotNil(t, report.Datapoints[0])
	assert.Equal(t, 0, *report.Datapoints[0])
	assert.Equal(t, "own", report.Timeline[0].Shift.ID)
}

func TestReconcile_EmptyInterval(t *testing.T) {
	engine, codec := newEngine(t, schedule.DefaultBlocks())
	s := decode(t, codec, "v7")

	report, err := engine.Reconcile(s, nil, Interval{From: at(1, 0, 0), To: at(4, 0, 0)}, nil)
	require.NoError(t, err)
	assert.Zero(t, report.IdealCount)
	assert.Empty(t, report.Datapoints)
	_, ok := report.MeanOffset()
	assert.False(t, ok)
}

func TestReconcile_EmptySchedule(t *testing.T) {
	engine, _ := newEngine(t, schedule.DefaultBlocks())

	_, err := engine.Reconcile(nil, nil, Interval{From: at(1, 0, 0), To: at(5, 0, 0)}, nil)
	var vErr *schedule.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestReconcile_DuplicateSlots(t *testing.T) {
	engine, codec := newEngine(t, schedule.DefaultBlocks())
	s := decode(t, codec, "l0l0")

	shifts := []models.Shift{shift("m", at(1, 8, 15), ptr(at(1, 9, 30)))}
	report, err := engine.Reconcile(s, shifts, Interval{From: at(1, 0, 0), To: at(1, 0, 0)}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, report.IdealCount)
	require.NotNil(t, report.Datapoints[0])
	assert.Nil(t, report.Datapoints[1])
}

func TestEngineLabel(t *testing.T) {
	engine, codec := newEngine(t, schedule.DefaultBlocks())
	occ := schedule.Occurrence{Date: at(5, 0, 0), Index: 7, Block: codec.Catalog().Block(7)}
	assert.Equal(t, "vie 15-16", engine.Label(occ))
}
