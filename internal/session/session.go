// Package session owns the live alarm set, the fired-today log and the
// wake/sleep records for one running daemon. It serializes access from the
// cron ticks and the HTTP handlers, persists after each change and keeps the
// notifier in step with the alarm set.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sleepalarm/internal/alarm"
	appLog "sleepalarm/internal/log"
	"sleepalarm/internal/metrics"
	"sleepalarm/internal/model"
	"sleepalarm/internal/notify"
	"sleepalarm/internal/sleep"
	"sleepalarm/internal/store"
	"sleepalarm/internal/trigger"
)

var (
	ErrUnknownAlarm = errors.New("session: no alarm with that id")
	ErrUnknownKind  = errors.New("session: unknown sleep event kind")
)

// Options wires a Session's collaborators. Store is required.
type Options struct {
	Store      store.Store
	Notifier   notify.Notifier
	Announcers []notify.Announcer
	// DefaultSound is used for alarms without an entry in the sound map.
	DefaultSound string
	Now          func() time.Time
}

type Session struct {
	mu       sync.Mutex
	set      *alarm.Set
	log      *trigger.Log
	sounds   map[string]string
	records  sleep.Records
	// lastTick is the clock reading of the previous check; zero before the
	// first one.
	lastTick time.Time

	// notifyMu orders notifier pushes; it is taken before mu is released
	// so reschedules reach the backend in mutation order.
	notifyMu sync.Mutex

	store        store.Store
	notifier     notify.Notifier
	announcers   []notify.Announcer
	defaultSound string
	now          func() time.Time
}

func New(opts Options) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		set:          alarm.NewSet(),
		log:          trigger.NewLog(now()),
		sounds:       make(map[string]string),
		store:        opts.Store,
		notifier:     opts.Notifier,
		announcers:   opts.Announcers,
		defaultSound: opts.DefaultSound,
		now:          now,
	}
}

// Start loads the latest snapshot and trigger log, resets the log if the
// day changed, catches up alarms missed while the process was down and
// pushes the set to the notifier. The missed firings are returned after
// being announced.
func (s *Session) Start(ctx context.Context) ([]notify.Firing, error) {
	snap, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: load snapshot: %w", err)
	}
	st, err := s.store.LoadTriggerLog(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: load trigger log: %w", err)
	}

	if snap.Empty() {
		appLog.Info("no stored alarms or records, starting fresh")
	}

	s.mu.Lock()
	now := s.now()

	times, err := snap.AlarmTimes()
	if err != nil {
		appLog.Warn("skipping unreadable stored alarms", "err", err)
	}
	set, err := alarm.FromTimes(times)
	if err != nil {
		appLog.Warn("skipping stored alarms that break spacing", "err", err)
	}
	s.set = set
	s.sounds = make(map[string]string, len(snap.Sounds))
	for k, v := range snap.Sounds {
		s.sounds[k] = v
	}
	s.records = snap.Records
	metrics.SetAlarmsConfigured(s.set.Len())

	l, skipped := trigger.LogFromState(st)
	if skipped > 0 {
		appLog.Warn("skipping unreadable trigger log keys", "count", skipped)
	}
	s.log = l
	if s.log.ResetIfNewDay(now) {
		metrics.IncTriggerLogReset()
	}

	missed := trigger.CheckAllMissed(s.set, now, s.log)
	s.lastTick = now
	firings := make([]notify.Firing, len(missed))
	for i, e := range missed {
		firings[i] = notify.Firing{Entry: e, Sound: s.soundFor(e.ID), At: now, Missed: true}
		metrics.IncAlarmFired(metrics.TriggerMissed)
	}
	s.saveLogLocked(ctx)

	appLog.Info("session started",
		"alarms", s.set.Len(),
		"fired_today", s.log.Len(),
		"missed", len(missed),
		"last_reset_day", s.log.LastResetDay(),
	)

	s.rescheduleAndUnlock(ctx)
	s.announce(ctx, firings)
	return firings, nil
}

// Tick runs one clock check. It resets the log on a date change, fires an
// alarm scheduled exactly now, and then fires as missed every alarm whose
// second fell between the previous tick and now without a check. The
// returned firings are already announced. Collaborator failures are logged
// and never returned so the clock loop keeps going.
func (s *Session) Tick(ctx context.Context) []notify.Firing {
	s.mu.Lock()
	now := s.now()
	if s.log.ResetIfNewDay(now) {
		metrics.IncTriggerLogReset()
		appLog.Info("trigger log reset", "day", s.log.LastResetDay())
		s.saveLogLocked(ctx)
	}

	var firings []notify.Firing
	if e, ok := trigger.CheckNow(s.set, now, s.log); ok {
		firings = append(firings, notify.Firing{Entry: e, Sound: s.soundFor(e.ID), At: now})
		metrics.IncAlarmFired(metrics.TriggerExact)
	}
	if !s.lastTick.IsZero() {
		for _, e := range trigger.CheckSince(s.set, s.lastTick, now, s.log) {
			firings = append(firings, notify.Firing{Entry: e, Sound: s.soundFor(e.ID), At: now, Missed: true})
			metrics.IncAlarmFired(metrics.TriggerMissed)
		}
	}
	s.lastTick = now
	if len(firings) > 0 {
		s.saveLogLocked(ctx)
	}
	s.mu.Unlock()

	for _, f := range firings {
		appLog.Info("alarm fired", "alarm", f.Entry.Label(), "sound", f.Sound, "missed", f.Missed)
	}
	s.announce(ctx, firings)
	return firings
}

// ResetDay forces a day-boundary check and reports whether the log was
// cleared.
func (s *Session) ResetDay(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.log.ResetIfNewDay(s.now()) {
		return false
	}
	metrics.IncTriggerLogReset()
	appLog.Info("trigger log reset", "day", s.log.LastResetDay())
	s.saveLogLocked(ctx)
	return true
}

// AddAlarm appends t to the set. Spacing and validation errors come from
// package alarm unchanged.
func (s *Session) AddAlarm(ctx context.Context, t model.WallTime) (model.AlarmEntry, error) {
	s.mu.Lock()
	e, err := s.set.Add(t)
	if err != nil {
		s.mu.Unlock()
		metrics.IncAlarmAdd(metrics.ResultRejected)
		return model.AlarmEntry{}, err
	}
	metrics.IncAlarmAdd(metrics.ResultAdded)
	metrics.SetAlarmsConfigured(s.set.Len())
	s.saveSnapshotLocked(ctx)
	s.rescheduleAndUnlock(ctx)
	appLog.Info("alarm added", "alarm", e.Label())
	return e, nil
}

// RemoveLast drops the most recent alarm and its sound.
func (s *Session) RemoveLast(ctx context.Context) error {
	s.mu.Lock()
	id := s.set.Len()
	if err := s.set.RemoveLast(); err != nil {
		s.mu.Unlock()
		return err
	}
	delete(s.sounds, soundKey(id))
	metrics.SetAlarmsConfigured(s.set.Len())
	s.saveSnapshotLocked(ctx)
	s.rescheduleAndUnlock(ctx)
	appLog.Info("alarm removed", "id", id)
	return nil
}

// ClearAlarms empties the set and the sound map.
func (s *Session) ClearAlarms(ctx context.Context) {
	s.mu.Lock()
	s.set.Clear()
	s.sounds = make(map[string]string)
	metrics.SetAlarmsConfigured(0)
	s.saveSnapshotLocked(ctx)
	s.rescheduleAndUnlock(ctx)
	appLog.Info("alarms cleared")
}

// SetSound assigns a sound to alarm id. An empty name restores the default.
func (s *Session) SetSound(ctx context.Context, id int, sound string) error {
	s.mu.Lock()
	if id < 1 || id > s.set.Len() {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownAlarm, id)
	}
	if sound == "" {
		delete(s.sounds, soundKey(id))
	} else {
		s.sounds[soundKey(id)] = sound
	}
	s.saveSnapshotLocked(ctx)
	s.rescheduleAndUnlock(ctx)
	return nil
}

// RecordEvent stores a wake or back-to-sleep moment. A zero ts means now.
func (s *Session) RecordEvent(ctx context.Context, kind model.EventKind, ts time.Time) (model.SleepEvent, error) {
	if !kind.Valid() {
		return model.SleepEvent{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts.IsZero() {
		ts = s.now()
	}
	// stored at second precision in local time, as the string records are
	ts = ts.In(time.Local).Truncate(time.Second)
	s.records.Append(kind, ts)
	metrics.IncSleepEvent(string(kind))
	s.saveSnapshotLocked(ctx)
	return model.SleepEvent{Timestamp: ts, Kind: kind}, nil
}

// Heatmap aggregates every stored record and reports how many records
// could not be parsed.
func (s *Session) Heatmap() ([]model.HeatMapCell, int) {
	s.mu.Lock()
	events, dropped := s.records.Events()
	s.mu.Unlock()
	metrics.SetSleepEventsDropped(dropped)
	if dropped > 0 {
		appLog.Debug("skipped unparseable sleep records", "count", dropped)
	}
	return sleep.AggregateToHeatmap(events), dropped
}

// Reminders lists the identifiers the notifier still has pending.
func (s *Session) Reminders(ctx context.Context) ([]string, error) {
	if s.notifier == nil {
		return nil, nil
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	return s.notifier.Pending(ctx)
}

func (s *Session) soundFor(id int) string {
	if v, ok := s.sounds[soundKey(id)]; ok && v != "" {
		return v
	}
	return s.defaultSound
}

func (s *Session) snapshotLocked() *store.Snapshot {
	snap := &store.Snapshot{Sounds: make(map[string]string, len(s.sounds))}
	snap.SetAlarmTimes(s.set.Times())
	for k, v := range s.sounds {
		snap.Sounds[k] = v
	}
	snap.Records = s.records
	return snap.Clone()
}

func (s *Session) saveSnapshotLocked(ctx context.Context) {
	if err := s.store.SaveSnapshot(ctx, s.snapshotLocked()); err != nil {
		metrics.IncPersistError("snapshot")
		appLog.Error("failed to save snapshot", err)
	}
}

func (s *Session) saveLogLocked(ctx context.Context) {
	if err := s.store.SaveTriggerLog(ctx, s.log.State()); err != nil {
		metrics.IncPersistError("trigger_log")
		appLog.Error("failed to save trigger log", err)
	}
}

// rescheduleAndUnlock snapshots the reminders under mu, releases it and
// replaces everything the notifier holds. Callers must hold mu.
func (s *Session) rescheduleAndUnlock(ctx context.Context) {
	if s.notifier == nil {
		s.mu.Unlock()
		return
	}
	entries := s.set.Entries()
	reminders := make([]notify.Reminder, len(entries))
	for i, e := range entries {
		reminders[i] = notify.NewReminder(e, s.soundFor(e.ID))
	}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	if err := s.notifier.CancelAll(ctx); err != nil {
		metrics.IncNotifyError("cancel")
		appLog.Error("failed to cancel reminders", err)
	}
	for _, r := range reminders {
		if err := s.notifier.Schedule(ctx, r); err != nil {
			metrics.IncNotifyError("schedule")
			appLog.Error("failed to schedule reminder", err, "alarm", r.Entry.Label())
		}
	}
}

func (s *Session) announce(ctx context.Context, firings []notify.Firing) {
	for _, f := range firings {
		for _, a := range s.announcers {
			if err := a.Announce(ctx, f); err != nil {
				metrics.IncNotifyError("announce")
				appLog.Error("failed to announce alarm", err, "alarm", f.Entry.Label())
			}
		}
	}
}
