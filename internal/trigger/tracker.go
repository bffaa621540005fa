// Package trigger decides which alarm fires at a given clock reading and
// remembers what already fired today.
package trigger

import (
	"sort"
	"time"

	"sleepalarm/internal/model"
)

// Log is the set of trigger moments that already fired on LastResetDay.
// It is not safe for concurrent use.
type Log struct {
	fired        map[model.ScheduledKey]struct{}
	lastResetDay string
}

// NewLog returns an empty log stamped with today's date.
func NewLog(today time.Time) *Log {
	return &Log{
		fired:        make(map[model.ScheduledKey]struct{}),
		lastResetDay: today.Format(model.DayLayout),
	}
}

// LogFromState restores a persisted log. Keys that do not parse are
// skipped and counted.
func LogFromState(st model.TriggerLogState) (*Log, int) {
	l := &Log{
		fired:        make(map[model.ScheduledKey]struct{}, len(st.Keys)),
		lastResetDay: st.LastResetDay,
	}
	skipped := 0
	for _, s := range st.Keys {
		k, err := model.ParseScheduledKey(s)
		if err != nil {
			skipped++
			continue
		}
		l.fired[k] = struct{}{}
	}
	return l, skipped
}

// State returns the persisted shape, keys in the unpadded "H:M:S" form.
func (l *Log) State() model.TriggerLogState {
	keys := l.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return model.TriggerLogState{Keys: out, LastResetDay: l.lastResetDay}
}

func (l *Log) Has(k model.ScheduledKey) bool {
	_, ok := l.fired[k]
	return ok
}

func (l *Log) Record(k model.ScheduledKey) {
	l.fired[k] = struct{}{}
}

func (l *Log) Len() int { return len(l.fired) }

// LastResetDay is the yyyy-MM-dd stamp of the last reset.
func (l *Log) LastResetDay() string { return l.lastResetDay }

// Keys returns the fired keys in clock order.
func (l *Log) Keys() []model.ScheduledKey {
	out := make([]model.ScheduledKey, 0, len(l.fired))
	for k := range l.fired {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NotAfter(out[j]) && out[i] != out[j]
	})
	return out
}

// ResetIfNewDay clears the log when today differs from the stored day and
// reports whether it did. Call it before the first check of a session and
// whenever the local date changes.
func (l *Log) ResetIfNewDay(today time.Time) bool {
	day := today.Format(model.DayLayout)
	if day == l.lastResetDay {
		return false
	}
	l.fired = make(map[model.ScheduledKey]struct{})
	l.lastResetDay = day
	return true
}

// EntrySource is anything that can list alarm entries in order.
type EntrySource interface {
	Entries() []model.AlarmEntry
}

// KeyFor is the normalized trigger moment of an entry.
func KeyFor(e model.AlarmEntry) model.ScheduledKey {
	return model.KeyOf(e.Time)
}

// CheckNow returns the first entry scheduled exactly at now that has not
// fired yet, and records it. Meant to run once per second.
func CheckNow(set EntrySource, now time.Time, log *Log) (model.AlarmEntry, bool) {
	cur := model.ClockKey(now)
	for _, e := range set.Entries() {
		k := KeyFor(e)
		if k != cur || log.Has(k) {
			continue
		}
		log.Record(k)
		return e, true
	}
	return model.AlarmEntry{}, false
}

// CheckMissed returns the first entry whose moment already passed today
// (scheduled <= now) without being logged, and records it. Meant to run at
// startup to catch alarms missed while the process was down.
func CheckMissed(set EntrySource, now time.Time, log *Log) (model.AlarmEntry, bool) {
	cur := model.ClockKey(now)
	for _, e := range set.Entries() {
		k := KeyFor(e)
		if log.Has(k) || !k.NotAfter(cur) {
			continue
		}
		log.Record(k)
		return e, true
	}
	return model.AlarmEntry{}, false
}

// CheckAllMissed drains CheckMissed, returning every missed entry in set
// order.
func CheckAllMissed(set EntrySource, now time.Time, log *Log) []model.AlarmEntry {
	var out []model.AlarmEntry
	for {
		e, ok := CheckMissed(set, now, log)
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

// CheckSince returns every unlogged entry scheduled after since and at or
// before now, in set order, and records them. It covers ticks that never
// ran (host suspend, clock step, a slow job). When since falls on an
// earlier day the window starts at midnight; a since after now selects
// nothing.
func CheckSince(set EntrySource, since, now time.Time, log *Log) []model.AlarmEntry {
	cur := model.ClockKey(now)
	from := model.ClockKey(since)
	sameDay := since.Format(model.DayLayout) == now.Format(model.DayLayout)
	var out []model.AlarmEntry
	for _, e := range set.Entries() {
		k := KeyFor(e)
		if log.Has(k) || !k.NotAfter(cur) {
			continue
		}
		if sameDay && k.NotAfter(from) {
			continue
		}
		log.Record(k)
		out = append(out, e)
	}
	return out
}
