// Package store persists the latest alarm snapshot and the fired-today log.
// Only the most recent snapshot is kept; there is no history.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"sleepalarm/internal/config"
	"sleepalarm/internal/model"
	"sleepalarm/internal/sleep"
)

// ErrNotFound is returned by backends when nothing has been saved yet.
// Load methods translate it into an empty value.
var ErrNotFound = errors.New("store: not found")

// Snapshot is the single "latest" record.
type Snapshot struct {
	// Alarms holds WallTime values in "hh:mm:ss AM" form, insertion order.
	Alarms []string `yaml:"alarms" json:"alarms"`
	// Sounds maps an alarm id (as string) to a sound file name. Opaque to
	// the scheduling core.
	Sounds map[string]string `yaml:"sounds" json:"sounds"`

	sleep.Records `yaml:",inline"`
}

// Empty reports whether nothing has been recorded.
func (s *Snapshot) Empty() bool {
	return s == nil || (len(s.Alarms) == 0 && len(s.Sounds) == 0 &&
		len(s.WakeDates) == 0 && len(s.SleepDates) == 0)
}

// AlarmTimes parses Alarms. Unparseable entries are skipped and joined into
// the returned error.
func (s *Snapshot) AlarmTimes() ([]model.WallTime, error) {
	out := make([]model.WallTime, 0, len(s.Alarms))
	var errs []error
	for _, a := range s.Alarms {
		t, err := model.ParseWallTime(a)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, t)
	}
	return out, errors.Join(errs...)
}

// SetAlarmTimes replaces Alarms with the formatted times.
func (s *Snapshot) SetAlarmTimes(times []model.WallTime) {
	s.Alarms = make([]string, len(times))
	for i, t := range times {
		s.Alarms[i] = t.Format()
	}
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return &Snapshot{}
	}
	out := &Snapshot{
		Alarms: append([]string(nil), s.Alarms...),
		Records: sleep.Records{
			WakeDates:  append([]string(nil), s.WakeDates...),
			WakeTimes:  append([]string(nil), s.WakeTimes...),
			SleepDates: append([]string(nil), s.SleepDates...),
			SleepTimes: append([]string(nil), s.SleepTimes...),
		},
	}
	if s.Sounds != nil {
		out.Sounds = make(map[string]string, len(s.Sounds))
		for k, v := range s.Sounds {
			out.Sounds[k] = v
		}
	}
	return out
}

// Store is the persistence collaborator.
type Store interface {
	// LoadSnapshot returns the last saved snapshot, or an empty one.
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, s *Snapshot) error
	// LoadTriggerLog returns the persisted fired-today log, or a zero value.
	LoadTriggerLog(ctx context.Context) (model.TriggerLogState, error)
	SaveTriggerLog(ctx context.Context, st model.TriggerLogState) error
	Close() error
}

// New builds the backend selected in cfg.
func New(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case config.BackendFile, "":
		return NewFileStore(cfg.Dir, logger)
	case config.BackendRedis:
		return NewRedisStore(ctx, cfg.Redis, logger)
	case config.BackendPostgres:
		return NewPostgresStore(ctx, cfg.Postgres.DSN, logger)
	case config.BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
