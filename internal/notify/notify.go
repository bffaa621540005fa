// Package notify hands alarm schedules to delivery backends. The scheduling
// core decides what and when; these types only carry it out.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"sleepalarm/internal/model"
)

// Reminder is one alarm handed to a delivery backend.
type Reminder struct {
	ID    string
	Entry model.AlarmEntry
	Sound string
}

// NewReminder assigns a fresh identifier.
func NewReminder(entry model.AlarmEntry, sound string) Reminder {
	return Reminder{ID: uuid.NewString(), Entry: entry, Sound: sound}
}

// Firing reports that an alarm went off.
type Firing struct {
	Entry model.AlarmEntry
	Sound string
	At    time.Time
	// Missed is set when the alarm was caught up after downtime rather than
	// fired on its exact second.
	Missed bool
}

// Notifier schedules reminders with an external delivery service.
type Notifier interface {
	Schedule(ctx context.Context, r Reminder) error
	CancelAll(ctx context.Context) error
	// Pending lists identifiers of reminders still scheduled.
	Pending(ctx context.Context) ([]string, error)
}

// Announcer is told about every firing.
type Announcer interface {
	Announce(ctx context.Context, f Firing) error
}

// Multi fans calls out to every notifier. Errors are joined; a failing
// backend does not stop the others.
type Multi []Notifier

func (m Multi) Schedule(ctx context.Context, r Reminder) error {
	var errs []error
	for _, n := range m {
		if err := n.Schedule(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) CancelAll(ctx context.Context) error {
	var errs []error
	for _, n := range m {
		if err := n.CancelAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pending returns the union of pending identifiers in first-seen order.
func (m Multi) Pending(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	var errs []error
	for _, n := range m {
		ids, err := n.Pending(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, errors.Join(errs...)
}
