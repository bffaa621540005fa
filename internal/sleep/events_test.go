package sleep

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sleepalarm/internal/model"
)

func TestParseEvent(t *testing.T) {
	ev, ok := ParseEvent("2025-01-01", "07:15:00 AM", model.GotUp)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 1, 7, 15, 0, 0, time.Local), ev.Timestamp)
	assert.Equal(t, model.GotUp, ev.Kind)

	ev, ok = ParseEvent("2025-01-01", "12:05:09 AM", model.WentBackToSleep)
	require.True(t, ok)
	assert.Equal(t, 0, ev.Timestamp.Hour())

	ev, ok = ParseEvent("2025-01-01", "12:05:09 PM", model.WentBackToSleep)
	require.True(t, ok)
	assert.Equal(t, 12, ev.Timestamp.Hour())
}

func TestParseEventDropsGarbage(t *testing.T) {
	for _, c := range [][2]string{
		{"2025-13-01", "07:15:00 AM"},
		{"2025-01-01", "19:15:00 PM"},
		{"2025/01/01", "07:15:00 AM"},
		{"2025-01-01", ""},
		{"", "07:15:00 AM"},
	} {
		_, ok := ParseEvent(c[0], c[1], model.GotUp)
		assert.False(t, ok, c)
	}
}

func TestBuildEventsEmpty(t *testing.T) {
	events, dropped := BuildEvents(nil, nil, nil, nil)
	assert.Empty(t, events)
	assert.Zero(t, dropped)
}

func TestBuildEventsTruncatesAndOrders(t *testing.T) {
	events, dropped := BuildEvents(
		[]string{"2025-01-01", "2025-01-02", "2025-01-03"},
		[]string{"07:00:00 AM", "07:30:00 AM"},
		[]string{"2025-01-01"},
		[]string{"07:05:00 AM", "07:10:00 AM"},
	)
	assert.Zero(t, dropped)
	require.Len(t, events, 3)
	assert.Equal(t, model.GotUp, events[0].Kind)
	assert.Equal(t, 1, events[0].Timestamp.Day())
	assert.Equal(t, model.GotUp, events[1].Kind)
	assert.Equal(t, 2, events[1].Timestamp.Day())
	assert.Equal(t, model.WentBackToSleep, events[2].Kind)
}

func TestBuildEventsCountsDropped(t *testing.T) {
	events, dropped := BuildEvents(
		[]string{"2025-01-01", "nope"},
		[]string{"07:00:00 AM", "07:30:00 AM"},
		[]string{"2025-01-01"},
		[]string{"bad"},
	)
	assert.Len(t, events, 1)
	assert.Equal(t, 2, dropped)
}

func TestRecordsAppendRoundTrip(t *testing.T) {
	var r Records
	ts := time.Date(2025, 1, 1, 19, 4, 5, 0, time.Local)
	r.Append(model.GotUp, ts)
	r.Append(model.WentBackToSleep, ts.Add(time.Minute))
	r.Append(model.EventKind("nap"), ts)

	assert.Equal(t, []string{"2025-01-01"}, r.WakeDates)
	assert.Equal(t, []string{"07:04:05 PM"}, r.WakeTimes)
	assert.Equal(t, []string{"07:05:05 PM"}, r.SleepTimes)

	events, dropped := r.Events()
	assert.Zero(t, dropped)
	require.Len(t, events, 2)
	assert.True(t, events[0].Timestamp.Equal(ts))
}

func TestAggregateSameHour(t *testing.T) {
	events := []model.SleepEvent{
		{Timestamp: time.Date(2025, 1, 1, 7, 15, 0, 0, time.Local), Kind: model.GotUp},
		{Timestamp: time.Date(2025, 1, 1, 7, 45, 0, 0, time.Local), Kind: model.WentBackToSleep},
	}
	cells := AggregateToHeatmap(events)
	require.Len(t, cells, 1)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local), cells[0].Day)
	assert.Equal(t, 7, cells[0].Hour)
	assert.Equal(t, 2, cells[0].Count)
}

func TestAggregateSeparatesBuckets(t *testing.T) {
	events := []model.SleepEvent{
		{Timestamp: time.Date(2025, 1, 2, 7, 0, 0, 0, time.Local)},
		{Timestamp: time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local)},
		{Timestamp: time.Date(2025, 1, 1, 7, 59, 59, 0, time.Local)},
		{Timestamp: time.Date(2025, 1, 1, 7, 0, 0, 0, time.Local)},
	}
	cells := AggregateToHeatmap(events)
	require.Len(t, cells, 3)
	assert.Equal(t, 7, cells[0].Hour)
	assert.Equal(t, 2, cells[0].Count)
	assert.Equal(t, 8, cells[1].Hour)
	assert.Equal(t, 2, cells[2].Day.Day())

	assert.Empty(t, AggregateToHeatmap(nil))
}

func TestAggregateMergesSameInstantAcrossZones(t *testing.T) {
	local := time.Date(2025, 1, 1, 7, 15, 0, 0, time.Local)
	events := []model.SleepEvent{
		{Timestamp: local},
		{Timestamp: local.UTC()},
		{Timestamp: local.In(time.FixedZone("X", 5*3600+1800))},
	}
	cells := AggregateToHeatmap(events)
	require.Len(t, cells, 1)
	assert.Equal(t, 3, cells[0].Count)
	assert.Equal(t, BinOf(local).Day, cells[0].Day)
	assert.Equal(t, 7, cells[0].Hour)
}

func TestBinOf(t *testing.T) {
	b := BinOf(time.Date(2025, 1, 1, 23, 59, 0, 0, time.Local))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local), b.Day)
	assert.Equal(t, 23, b.Hour)
}

func TestWriteHeatmapXLSX(t *testing.T) {
	cells := []model.HeatMapCell{
		{Day: time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local), Hour: 7, Count: 2},
		{Day: time.Date(2025, 1, 2, 0, 0, 0, 0, time.Local), Hour: 6, Count: 1},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteHeatmapXLSX(&buf, cells))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue(cellsSheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", v)
	v, err = f.GetCellValue(cellsSheet, "C2")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	// hour 7 -> column 9 (I), second day -> row 3, hour 6 -> column H
	v, err = f.GetCellValue(pivotSheet, "I2")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
	v, err = f.GetCellValue(pivotSheet, "H3")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}
