package session

import (
	"strconv"

	"sleepalarm/internal/model"
)

// AlarmView is one row of the alarm list as clients display it.
type AlarmView struct {
	ID        int             `json:"id"`
	Time      string          `json:"time"`
	Role      model.Role      `json:"role"`
	Hour24    int             `json:"hour24"`
	RawHour24 int             `json:"raw_hour24"`
	DayPeriod model.DayPeriod `json:"day_period"`
	// Diff is the gap in seconds to the previous alarm, 0 for the first.
	Diff  int    `json:"diff"`
	Label string `json:"label"`
	Sound string `json:"sound"`
	Fired bool   `json:"fired_today"`
}

// Alarms returns the current set in insertion order.
func (s *Session) Alarms() []AlarmView {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.set.Entries()
	hours := s.set.Hours24()
	raw := s.set.RawHours24()
	periods := s.set.DayPeriods()
	diffs := s.set.Diffs()
	labels := s.set.FormattedLabels()

	out := make([]AlarmView, len(entries))
	for i, e := range entries {
		out[i] = AlarmView{
			ID:        e.ID,
			Time:      e.Time.Format(),
			Role:      e.Role,
			Hour24:    hours[i],
			RawHour24: raw[i],
			DayPeriod: periods[i],
			Diff:      diffs[i],
			Label:     labels[i],
			Sound:     s.soundFor(e.ID),
			Fired:     s.log.Has(model.KeyOf(e.Time)),
		}
	}
	return out
}

// Status summarizes the session for the one-shot CLI mode.
type Status struct {
	Alarms       []AlarmView       `json:"alarms"`
	FiredToday   []string          `json:"fired_today"`
	LastResetDay string            `json:"last_reset_day"`
	Sounds       map[string]string `json:"sounds"`
}

func (s *Session) Status() Status {
	views := s.Alarms()

	s.mu.Lock()
	defer s.mu.Unlock()
	sounds := make(map[string]string, len(s.sounds))
	for k, v := range s.sounds {
		sounds[k] = v
	}
	keys := s.log.Keys()
	fired := make([]string, len(keys))
	for i, k := range keys {
		fired[i] = k.String()
	}
	return Status{
		Alarms:       views,
		FiredToday:   fired,
		LastResetDay: s.log.LastResetDay(),
		Sounds:       sounds,
	}
}

// soundKey is the map key used for alarm id in the persisted sound map.
func soundKey(id int) string { return strconv.Itoa(id) }
