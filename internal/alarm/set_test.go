package alarm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepalarm/internal/model"
)

func wt(h, m, s int, p model.Period) model.WallTime {
	return model.MustWallTime(h, m, s, p)
}

func TestAddFirstEntryAlwaysSucceeds(t *testing.T) {
	s := NewSet()
	e, err := s.Add(wt(8, 0, 0, model.AM))
	require.NoError(t, err)
	assert.Equal(t, 1, e.ID)
	assert.Equal(t, model.Primary, e.Role)
	assert.Equal(t, 1, s.Len())
}

func TestAddSpacingBoundaries(t *testing.T) {
	cases := []struct {
		name string
		next model.WallTime
		ok   bool
	}{
		{"30s too close", wt(8, 0, 30, model.AM), false},
		{"60s inclusive", wt(8, 1, 0, model.AM), true},
		{"600s inclusive", wt(8, 10, 0, model.AM), true},
		{"601s too far", wt(8, 10, 1, model.AM), false},
		{"earlier time", wt(7, 59, 0, model.AM), false},
		{"same time", wt(8, 0, 0, model.AM), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSet()
			_, err := s.Add(wt(8, 0, 0, model.AM))
			require.NoError(t, err)

			e, err := s.Add(tc.next)
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, 2, e.ID)
				assert.Equal(t, model.Secondary, e.Role)
				assert.Equal(t, 2, s.Len())
				return
			}
			assert.ErrorIs(t, err, ErrSpacingViolation)
			assert.Equal(t, 1, s.Len(), "rejected entry must not be retained")
		})
	}
}

func TestAddCrossingMidnight(t *testing.T) {
	s := NewSet()
	_, err := s.Add(wt(11, 59, 30, model.PM))
	require.NoError(t, err)

	// prev: hour24=23 min=59 sec=30; next: 12 AM, raw hour 24.
	// (24-23)*3600 + (0-59)*60 + (30-30) = 3600 - 3540 = 60
	next := wt(12, 0, 30, model.AM)
	assert.Equal(t, 24, next.RawHour24())
	assert.Equal(t, 60, Spacing(wt(11, 59, 30, model.PM), next))

	_, err = s.Add(next)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 60}, s.Diffs())
}

func TestAddAfterMidnightEntry(t *testing.T) {
	s := NewSet()
	_, err := s.Add(wt(12, 0, 0, model.AM))
	require.NoError(t, err)
	_, err = s.Add(wt(12, 5, 0, model.AM))
	require.NoError(t, err)
	_, err = s.Add(wt(12, 14, 0, model.AM))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 300, 540}, s.Diffs())
}

func TestSpacingErrorCarriesDiff(t *testing.T) {
	s := NewSet()
	_, _ = s.Add(wt(8, 0, 0, model.AM))
	_, err := s.Add(wt(8, 0, 30, model.AM))
	var se *SpacingError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 30, se.Diff)
	assert.Contains(t, se.Error(), "08:00:30 AM")
}

func TestAddRejectsInvalidTime(t *testing.T) {
	s := NewSet()
	_, err := s.Add(model.WallTime{Hour12: 13, Period: model.AM})
	assert.ErrorIs(t, err, ErrInvalidTime)
	assert.Equal(t, 0, s.Len())
}

func TestRemoveLastAndClear(t *testing.T) {
	s := NewSet()
	assert.ErrorIs(t, s.RemoveLast(), ErrEmptyCollection)

	_, _ = s.Add(wt(8, 0, 0, model.AM))
	_, _ = s.Add(wt(8, 5, 0, model.AM))
	require.NoError(t, s.RemoveLast())
	assert.Equal(t, 1, s.Len())

	// IDs are positional, so a re-added entry takes id 2 again.
	e, err := s.Add(wt(8, 3, 0, model.AM))
	require.NoError(t, err)
	assert.Equal(t, 2, e.ID)

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Entries())
}

func TestDerivedViews(t *testing.T) {
	s := NewSet()
	for _, x := range []model.WallTime{
		wt(5, 58, 0, model.PM),
		wt(6, 0, 0, model.PM),
		wt(6, 10, 0, model.PM),
	} {
		_, err := s.Add(x)
		require.NoError(t, err)
	}

	assert.Equal(t, []model.Role{model.Primary, model.Secondary, model.Secondary}, s.Labels())
	assert.Equal(t, []int{17, 18, 18}, s.Hours24())
	assert.Equal(t, []model.DayPeriod{model.Morning, model.Night, model.Night}, s.DayPeriods())
	assert.Equal(t, []int{0, 120, 600}, s.Diffs())
	assert.Equal(t, []string{
		"05:58:00 PM Primary #1",
		"06:00:00 PM Secondary #2",
		"06:10:00 PM Secondary #3",
	}, s.FormattedLabels())
}

func TestRawHours24KeepsSentinel(t *testing.T) {
	s := NewSet()
	_, _ = s.Add(wt(11, 59, 0, model.PM))
	_, _ = s.Add(wt(12, 1, 0, model.AM))
	assert.Equal(t, []int{23, 24}, s.RawHours24())
	assert.Equal(t, []int{23, 0}, s.Hours24())
}

func TestFromTimesSkipsInvalid(t *testing.T) {
	s, err := FromTimes([]model.WallTime{
		wt(8, 0, 0, model.AM),
		wt(8, 0, 10, model.AM),
		wt(8, 2, 0, model.AM),
	})
	assert.ErrorIs(t, err, ErrSpacingViolation)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []int{0, 120}, s.Diffs())

	s, err = FromTimes(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestTimesIsACopy(t *testing.T) {
	s := NewSet()
	_, _ = s.Add(wt(8, 0, 0, model.AM))
	times := s.Times()
	times[0] = wt(9, 0, 0, model.AM)
	assert.Equal(t, wt(8, 0, 0, model.AM), s.Entries()[0].Time)
}
