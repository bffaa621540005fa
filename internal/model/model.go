package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is the 12-hour clock half.
type Period string

const (
	AM Period = "AM"
	PM Period = "PM"
)

// WallTime is a wall-clock time of day as the user enters it on a 12-hour
// dial.
type WallTime struct {
	Hour12 int    `yaml:"hour" json:"hour"`
	Minute int    `yaml:"minute" json:"minute"`
	Second int    `yaml:"second" json:"second"`
	Period Period `yaml:"period" json:"period"`
}

// NewWallTime builds and validates a WallTime.
func NewWallTime(hour12, minute, second int, period Period) (WallTime, error) {
	t := WallTime{Hour12: hour12, Minute: minute, Second: second, Period: period}
	if err := t.Validate(); err != nil {
		return WallTime{}, err
	}
	return t, nil
}

// MustWallTime is NewWallTime for literals known to be valid.
func MustWallTime(hour12, minute, second int, period Period) WallTime {
	t, err := NewWallTime(hour12, minute, second, period)
	if err != nil {
		panic(err)
	}
	return t
}

// Validate checks hour12 ∈ [1,12], minute/second ∈ [0,59] and the period.
func (t WallTime) Validate() error {
	if t.Hour12 < 1 || t.Hour12 > 12 {
		return fmt.Errorf("hour %d out of range 1-12", t.Hour12)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("minute %d out of range 0-59", t.Minute)
	}
	if t.Second < 0 || t.Second > 59 {
		return fmt.Errorf("second %d out of range 0-59", t.Second)
	}
	if t.Period != AM && t.Period != PM {
		return fmt.Errorf("period %q is not AM or PM", t.Period)
	}
	return nil
}

// RawHour24 is the un-normalized 24-hour value where 12 AM is reported as
// 24. Persisted alarm lists were built on this value, so spacing arithmetic
// still needs it.
func (t WallTime) RawHour24() int {
	switch {
	case t.Period == AM && t.Hour12 == 12:
		return 24
	case t.Period == AM:
		return t.Hour12
	case t.Hour12 == 12:
		return 12
	default:
		return t.Hour12 + 12
	}
}

// Hour24 is the real clock hour in [0,23].
func (t WallTime) Hour24() int {
	return NormalizeHour(t.RawHour24())
}

// NormalizeHour maps the 24 sentinel to 0.
func NormalizeHour(h int) int {
	if h == 24 {
		return 0
	}
	return h
}

// SecondsFromMidnight is the linear position of t within a day.
func (t WallTime) SecondsFromMidnight() int {
	return t.Hour24()*3600 + t.Minute*60 + t.Second
}

// IsMorning reports whether t falls in [06:00:00, 18:00:00).
func (t WallTime) IsMorning() bool {
	h := t.Hour24()
	return h >= 6 && h < 18
}

// DayPeriod classifies t as Morning or Night.
func (t WallTime) DayPeriod() DayPeriod {
	if t.IsMorning() {
		return Morning
	}
	return Night
}

// Format renders "HH:MM:SS AM".
func (t WallTime) Format() string {
	return fmt.Sprintf("%02d:%02d:%02d %s", t.Hour12, t.Minute, t.Second, t.Period)
}

func (t WallTime) String() string { return t.Format() }

// ParseWallTime is the inverse of Format. Unpadded fields ("9:5:3 pm") are
// accepted.
func ParseWallTime(s string) (WallTime, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) != 2 {
		return WallTime{}, fmt.Errorf("wall time %q: want \"hh:mm:ss AM|PM\"", s)
	}
	parts := strings.Split(fields[0], ":")
	if len(parts) != 3 {
		return WallTime{}, fmt.Errorf("wall time %q: want three clock fields", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return WallTime{}, fmt.Errorf("wall time %q: %w", s, err)
		}
		nums[i] = n
	}
	return NewWallTime(nums[0], nums[1], nums[2], Period(strings.ToUpper(fields[1])))
}

// WallTimeOf converts a clock reading to its 12-hour form.
func WallTimeOf(ts time.Time) WallTime {
	h := ts.Hour()
	p := AM
	if h >= 12 {
		p = PM
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return WallTime{Hour12: h12, Minute: ts.Minute(), Second: ts.Second(), Period: p}
}

// DayPeriod is the coarse morning/night bucket of an alarm.
type DayPeriod string

const (
	Morning DayPeriod = "Morning"
	Night   DayPeriod = "Night"
)

// Role is derived from position inside an alarm set.
type Role string

const (
	Primary   Role = "Primary"
	Secondary Role = "Secondary"
)

// RoleAt returns the role of the entry at index i.
func RoleAt(i int) Role {
	if i == 0 {
		return Primary
	}
	return Secondary
}

// AlarmEntry is one alarm inside a set. ID is 1-based and sequential.
type AlarmEntry struct {
	ID   int      `json:"id"`
	Time WallTime `json:"time"`
	Role Role     `json:"role"`
}

// Label is the display string used by the alarm list.
func (e AlarmEntry) Label() string {
	return fmt.Sprintf("%s %s #%d", e.Time.Format(), e.Role, e.ID)
}

// ScheduledKey identifies one trigger moment of the day. Two entries with
// the same key fire at most once between them per day.
type ScheduledKey struct {
	Hour   int
	Minute int
	Second int
}

// KeyOf returns the normalized trigger moment of t.
func KeyOf(t WallTime) ScheduledKey {
	return ScheduledKey{Hour: t.Hour24(), Minute: t.Minute, Second: t.Second}
}

// ClockKey is the ScheduledKey of a clock reading.
func ClockKey(ts time.Time) ScheduledKey {
	return ScheduledKey{Hour: ts.Hour(), Minute: ts.Minute(), Second: ts.Second()}
}

// String renders the unpadded "H:M:S" form, e.g. "9:5:3". Trigger logs
// written before the typed key existed use this exact shape.
func (k ScheduledKey) String() string {
	return fmt.Sprintf("%d:%d:%d", k.Hour, k.Minute, k.Second)
}

// NotAfter reports whether k is at or before o on the same day.
func (k ScheduledKey) NotAfter(o ScheduledKey) bool {
	if k.Hour != o.Hour {
		return k.Hour < o.Hour
	}
	if k.Minute != o.Minute {
		return k.Minute < o.Minute
	}
	return k.Second <= o.Second
}

var errBadKey = errors.New("malformed scheduled key")

// ParseScheduledKey reads both unpadded and zero-padded "H:M:S" strings.
// An hour of 24 is normalized to 0.
func ParseScheduledKey(s string) (ScheduledKey, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return ScheduledKey{}, fmt.Errorf("%w: %q", errBadKey, s)
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return ScheduledKey{}, fmt.Errorf("%w: %q", errBadKey, s)
		}
		v[i] = n
	}
	k := ScheduledKey{Hour: NormalizeHour(v[0]), Minute: v[1], Second: v[2]}
	if k.Hour < 0 || k.Hour > 23 || k.Minute < 0 || k.Minute > 59 || k.Second < 0 || k.Second > 59 {
		return ScheduledKey{}, fmt.Errorf("%w: %q", errBadKey, s)
	}
	return k, nil
}

// EventKind tags a recorded wake/sleep timestamp.
type EventKind string

const (
	GotUp           EventKind = "got_up"
	WentBackToSleep EventKind = "went_back_to_sleep"
)

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	return k == GotUp || k == WentBackToSleep
}

// SleepEvent is a typed wake/sleep record.
type SleepEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`
}

// SecondsFromMidnight of the local time component.
func (e SleepEvent) SecondsFromMidnight() int {
	return e.Timestamp.Hour()*3600 + e.Timestamp.Minute()*60 + e.Timestamp.Second()
}

// DayHourBin groups events by local calendar day and hour.
type DayHourBin struct {
	Day  time.Time
	Hour int
}

// HeatMapCell is the event count of one (day, hour) bucket.
type HeatMapCell struct {
	Day   time.Time `json:"day"`
	Hour  int       `json:"hour"`
	Count int       `json:"count"`
}

// TriggerLogState is the persisted shape of the fired-today log.
type TriggerLogState struct {
	Keys         []string `yaml:"keys" json:"keys"`
	LastResetDay string   `yaml:"last_reset_day" json:"last_reset_day"`
}

// DayLayout is the calendar date layout shared by trigger logs and sleep
// records.
const DayLayout = "2006-01-02"
