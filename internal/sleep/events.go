// Package sleep turns the stored wake/sleep string records into typed events
// and hourly heat-map cells.
package sleep

import (
	"sort"
	"time"

	"sleepalarm/internal/model"
)

const (
	DateLayout = model.DayLayout
	TimeLayout = "03:04:05 PM"

	combinedLayout = DateLayout + " " + TimeLayout
)

// Records is the persisted shape: parallel date/time string arrays per kind.
type Records struct {
	WakeDates  []string `yaml:"wake_dates" json:"wake_dates"`
	WakeTimes  []string `yaml:"wake_times" json:"wake_times"`
	SleepDates []string `yaml:"sleep_dates" json:"sleep_dates"`
	SleepTimes []string `yaml:"sleep_times" json:"sleep_times"`
}

// Append stores ts under kind. Unknown kinds are ignored.
func (r *Records) Append(kind model.EventKind, ts time.Time) {
	d, t := FormatDate(ts), FormatTime(ts)
	switch kind {
	case model.GotUp:
		r.WakeDates = append(r.WakeDates, d)
		r.WakeTimes = append(r.WakeTimes, t)
	case model.WentBackToSleep:
		r.SleepDates = append(r.SleepDates, d)
		r.SleepTimes = append(r.SleepTimes, t)
	}
}

// Events is BuildEvents over the stored arrays.
func (r Records) Events() ([]model.SleepEvent, int) {
	return BuildEvents(r.WakeDates, r.WakeTimes, r.SleepDates, r.SleepTimes)
}

func FormatDate(ts time.Time) string { return ts.Format(DateLayout) }

func FormatTime(ts time.Time) string { return ts.Format(TimeLayout) }

// ParseEvent combines a "yyyy-MM-dd" date and an "hh:mm:ss AM" time in the
// local zone. It reports false instead of failing.
func ParseEvent(date, clock string, kind model.EventKind) (model.SleepEvent, bool) {
	ts, err := time.ParseInLocation(combinedLayout, date+" "+clock, time.Local)
	if err != nil {
		return model.SleepEvent{}, false
	}
	return model.SleepEvent{Timestamp: ts, Kind: kind}, true
}

// BuildEvents zips each date/time pair (truncating to the shorter array),
// returns all GotUp events followed by all WentBackToSleep events, and the
// number of pairs that failed to parse.
func BuildEvents(wakeDates, wakeTimes, sleepDates, sleepTimes []string) ([]model.SleepEvent, int) {
	out := make([]model.SleepEvent, 0, min(len(wakeDates), len(wakeTimes))+min(len(sleepDates), len(sleepTimes)))
	dropped := 0
	zip := func(dates, times []string, kind model.EventKind) {
		n := min(len(dates), len(times))
		for i := 0; i < n; i++ {
			ev, ok := ParseEvent(dates[i], times[i], kind)
			if !ok {
				dropped++
				continue
			}
			out = append(out, ev)
		}
	}
	zip(wakeDates, wakeTimes, model.GotUp)
	zip(sleepDates, sleepTimes, model.WentBackToSleep)
	return out, dropped
}

// BinOf returns the (local midnight, hour) bucket of ts.
func BinOf(ts time.Time) model.DayHourBin {
	l := ts.In(time.Local)
	return model.DayHourBin{
		Day:  time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.Local),
		Hour: l.Hour(),
	}
}

// AggregateToHeatmap counts events per (day, hour). Only non-empty buckets
// are returned, ordered by day then hour.
func AggregateToHeatmap(events []model.SleepEvent) []model.HeatMapCell {
	// every bin day is built in time.Local, so bins compare by value
	counts := make(map[model.DayHourBin]int)
	for _, ev := range events {
		counts[BinOf(ev.Timestamp)]++
	}

	cells := make([]model.HeatMapCell, 0, len(counts))
	for b, n := range counts {
		cells = append(cells, model.HeatMapCell{Day: b.Day, Hour: b.Hour, Count: n})
	}
	sort.Slice(cells, func(i, j int) bool {
		if !cells[i].Day.Equal(cells[j].Day) {
			return cells[i].Day.Before(cells[j].Day)
		}
		return cells[i].Hour < cells[j].Hour
	})
	return cells
}
