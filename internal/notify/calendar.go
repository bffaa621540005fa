package notify

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"sleepalarm/internal/model"
)

// Calendar keeps reminders in memory as daily recurrences and can publish
// them as an iCalendar feed for phones to subscribe to.
type Calendar struct {
	mu        sync.RWMutex
	reminders []calendarReminder
	now       func() time.Time

	// Location is the zone alarm clock times are read in. Nil means
	// time.Local. Set it before scheduling.
	Location *time.Location
}

type calendarReminder struct {
	Reminder
	rule *rrule.RRule
}

// Upcoming is the next fire time of one reminder.
type Upcoming struct {
	Reminder
	At time.Time
}

// NewCalendar returns an empty calendar. now defaults to time.Now.
func NewCalendar(now func() time.Time) *Calendar {
	if now == nil {
		now = time.Now
	}
	return &Calendar{now: now}
}

func (c *Calendar) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// dailyRule anchors a FREQ=DAILY rule at the entry's clock time on now's
// date in loc. Occurrences keep that wall-clock time across DST changes.
func dailyRule(entry model.AlarmEntry, now time.Time, loc *time.Location) (*rrule.RRule, error) {
	l := now.In(loc)
	k := model.KeyOf(entry.Time)
	start := time.Date(l.Year(), l.Month(), l.Day(), k.Hour, k.Minute, k.Second, 0, loc)
	return rrule.NewRRule(rrule.ROption{Freq: rrule.DAILY, Dtstart: start})
}

func (c *Calendar) Schedule(_ context.Context, r Reminder) error {
	rule, err := dailyRule(r.Entry, c.now(), c.location())
	if err != nil {
		return fmt.Errorf("notify: rule for alarm %d: %w", r.Entry.ID, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reminders = append(c.reminders, calendarReminder{Reminder: r, rule: rule})
	return nil
}

func (c *Calendar) CancelAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reminders = nil
	return nil
}

func (c *Calendar) Pending(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, len(c.reminders))
	for i, r := range c.reminders {
		ids[i] = r.ID
	}
	return ids, nil
}

// Next returns every reminder's first occurrence strictly after now,
// soonest first.
func (c *Calendar) Next(now time.Time) []Upcoming {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Upcoming, 0, len(c.reminders))
	for _, r := range c.reminders {
		at := r.rule.After(now, false)
		if at.IsZero() {
			continue
		}
		out = append(out, Upcoming{Reminder: r.Reminder, At: at})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// WriteICS renders the reminders as VEVENTs with a daily RRULE and an
// audio VALARM at the start time.
func (c *Calendar) WriteICS(w io.Writer) error {
	now := c.now()
	loc := c.location()
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//sleepalarm//alarms//EN")
	cal.SetName("Alarms")

	for _, u := range c.Next(now) {
		ev := cal.AddEvent(u.ID + "@sleepalarm")
		ev.SetDtStampTime(now)
		setWallTime(ev, ical.ComponentPropertyDtStart, u.At, loc)
		setWallTime(ev, ical.ComponentPropertyDtEnd, u.At.Add(time.Minute), loc)
		ev.SetSummary(fmt.Sprintf("%s alarm #%d", u.Entry.Role, u.Entry.ID))
		ev.SetDescription(u.Entry.Label())
		ev.AddRrule("FREQ=DAILY")

		alarm := ev.AddAlarm()
		alarm.SetAction(ical.ActionAudio)
		alarm.SetTrigger("PT0M")
		if u.Sound != "" {
			alarm.SetProperty(ical.ComponentPropertyAttach, u.Sound)
		}
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}

const icsWallLayout = "20060102T150405"

// setWallTime writes t as a wall-clock time in loc. A UTC instant would pin
// every RRULE occurrence to the same UTC time and shift the alarm by an hour
// across DST. Zones without an IANA name are written floating, which
// subscribers read in their own zone.
func setWallTime(ev *ical.VEvent, prop ical.ComponentProperty, t time.Time, loc *time.Location) {
	switch name := loc.String(); name {
	case "UTC":
		ev.SetProperty(prop, t.UTC().Format(icsWallLayout+"Z"))
	case "", "Local":
		ev.SetProperty(prop, t.In(loc).Format(icsWallLayout))
	default:
		ev.SetProperty(prop, t.In(loc).Format(icsWallLayout),
			&ical.KeyValues{Key: string(ical.ParameterTzid), Value: []string{name}})
	}
}
