// Package alarm holds the ordered primary/secondary alarm list and its
// spacing rule.
package alarm

import (
	"errors"
	"fmt"

	"sleepalarm/internal/model"
)

const (
	// MinSpacing and MaxSpacing bound the gap, in seconds, between an alarm
	// and the one added right before it.
	MinSpacing = 60
	MaxSpacing = 600

	secondsPerDay = 24 * 3600
)

var (
	ErrSpacingViolation = errors.New("alarm: secondary alarm must be 1 to 10 minutes after the previous one")
	ErrEmptyCollection  = errors.New("alarm: set is empty")
	ErrInvalidTime      = errors.New("alarm: invalid wall time")
)

// SpacingError carries the rejected gap. It matches ErrSpacingViolation
// under errors.Is.
type SpacingError struct {
	Previous model.WallTime
	Next     model.WallTime
	Diff     int
}

func (e *SpacingError) Error() string {
	return fmt.Sprintf("%s: %s after %s is %ds", ErrSpacingViolation, e.Next.Format(), e.Previous.Format(), e.Diff)
}

func (e *SpacingError) Unwrap() error { return ErrSpacingViolation }

// Set is an append-only alarm list. Insertion order is the order the user
// entered the alarms, not clock order. A Set is not safe for concurrent use.
type Set struct {
	times []model.WallTime
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{}
}

// FromTimes rebuilds a set from a persisted list. Entries that break the
// spacing rule are skipped and returned in the error (joined), the rest are
// kept.
func FromTimes(times []model.WallTime) (*Set, error) {
	s := NewSet()
	var errs []error
	for _, t := range times {
		if _, err := s.Add(t); err != nil {
			errs = append(errs, err)
		}
	}
	return s, errors.Join(errs...)
}

// Len returns the number of entries.
func (s *Set) Len() int { return len(s.times) }

// Add appends t. The first entry is always accepted; later ones must land
// MinSpacing..MaxSpacing seconds after the previous entry.
func (s *Set) Add(t model.WallTime) (model.AlarmEntry, error) {
	if err := t.Validate(); err != nil {
		return model.AlarmEntry{}, fmt.Errorf("%w: %v", ErrInvalidTime, err)
	}
	if n := len(s.times); n > 0 {
		prev := s.times[n-1]
		d := Spacing(prev, t)
		if d < MinSpacing || d > MaxSpacing {
			return model.AlarmEntry{}, &SpacingError{Previous: prev, Next: t, Diff: d}
		}
	}
	s.times = append(s.times, t)
	return s.entry(len(s.times) - 1), nil
}

// RemoveLast drops the most recently added entry.
func (s *Set) RemoveLast() error {
	if len(s.times) == 0 {
		return ErrEmptyCollection
	}
	s.times = s.times[:len(s.times)-1]
	return nil
}

// Clear empties the set.
func (s *Set) Clear() {
	s.times = nil
}

// Spacing returns how many seconds next is after prev.
//
// The arithmetic runs on the 24-hour value with 12 AM taken as hour 0 and
// wraps at midnight, so 11:59:30 PM followed by 12:00:30 AM is 60 seconds.
// An earlier clock time reads as almost a full day later and is therefore
// always out of range.
func Spacing(prev, next model.WallTime) int {
	d := next.SecondsFromMidnight() - prev.SecondsFromMidnight()
	return ((d % secondsPerDay) + secondsPerDay) % secondsPerDay
}

func (s *Set) entry(i int) model.AlarmEntry {
	return model.AlarmEntry{ID: i + 1, Time: s.times[i], Role: model.RoleAt(i)}
}

// Entries returns a copy of the entries in insertion order.
func (s *Set) Entries() []model.AlarmEntry {
	out := make([]model.AlarmEntry, len(s.times))
	for i := range s.times {
		out[i] = s.entry(i)
	}
	return out
}

// Times returns a copy of the raw wall times, for persistence.
func (s *Set) Times() []model.WallTime {
	return append([]model.WallTime(nil), s.times...)
}

func (s *Set) Labels() []model.Role {
	out := make([]model.Role, len(s.times))
	for i := range s.times {
		out[i] = model.RoleAt(i)
	}
	return out
}

func (s *Set) Hours24() []int {
	out := make([]int, len(s.times))
	for i, t := range s.times {
		out[i] = t.Hour24()
	}
	return out
}

// RawHours24 keeps the 24 sentinel for 12 AM entries.
func (s *Set) RawHours24() []int {
	out := make([]int, len(s.times))
	for i, t := range s.times {
		out[i] = t.RawHour24()
	}
	return out
}

func (s *Set) DayPeriods() []model.DayPeriod {
	out := make([]model.DayPeriod, len(s.times))
	for i, t := range s.times {
		out[i] = t.DayPeriod()
	}
	return out
}

// Diffs is the gap to the previous entry; the first entry's gap is 0.
func (s *Set) Diffs() []int {
	out := make([]int, len(s.times))
	for i := 1; i < len(s.times); i++ {
		out[i] = Spacing(s.times[i-1], s.times[i])
	}
	return out
}

func (s *Set) FormattedLabels() []string {
	out := make([]string, len(s.times))
	for i := range s.times {
		out[i] = s.entry(i).Label()
	}
	return out
}
