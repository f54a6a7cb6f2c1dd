// Package reminder implements the periodic nudge counter: every
// externally defined "message" bumps a persisted count, and every
// interval-th message produces a reminder to review delegation habits.
package reminder

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/delegatewatch/delegatewatch/internal/store"
	"github.com/delegatewatch/delegatewatch/pkg/models"
)

// DefaultInterval is the reminder cadence when none has been persisted.
const DefaultInterval = 5

const reminderTemplate = "🔔 Delegation check-in #%d: consider whether recent work should have been handed to a sub-agent."

// Service is the reminder counter. Independent lifecycle from the
// delegation tracker: ResetTracking never touches reminder state.
type Service struct {
	store store.Store
}

// NewService creates a reminder Service backed by the given store.
func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// Check bumps the message counter and reports whether a reminder is
// due (count divisible by interval). Rejects interval <= 0 with a
// ValidationError.
//
// Reminders are best-effort: when the store is unreachable the zero
// result comes back with a nil error, so the caller's main flow is
// never interrupted.
func (s *Service) Check(ctx context.Context, interval int64) (models.ReminderResult, error) {
	if interval <= 0 {
		return models.ReminderResult{}, &models.ValidationError{Field: "interval", Reason: "must be a positive integer"}
	}

	count, err := s.store.Incr(ctx, store.KeyReminderCount)
	if err != nil {
		log.Warn().Err(err).Msg("Reminder counter unavailable, skipping check")
		return models.ReminderResult{}, nil
	}

	result := models.ReminderResult{Count: count}
	if count%interval == 0 {
		result.ShouldShow = true
		result.Text = fmt.Sprintf(reminderTemplate, count)
	}
	return result, nil
}

// Interval returns the persisted reminder interval, defaulting to 5.
func (s *Service) Interval(ctx context.Context) (int64, error) {
	raw, ok, err := s.store.Get(ctx, store.KeyReminderInterval)
	if err != nil {
		return 0, err
	}
	if !ok {
		return DefaultInterval, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		log.Warn().Str("value", raw).Msg("Unparseable persisted reminder interval, using default")
		return DefaultInterval, nil
	}
	return n, nil
}

// SetInterval persists a new reminder interval. Must be positive.
func (s *Service) SetInterval(ctx context.Context, n int64) error {
	if n <= 0 {
		return &models.ValidationError{Field: "interval", Reason: "must be a positive integer"}
	}
	return s.store.Set(ctx, store.KeyReminderInterval, strconv.FormatInt(n, 10))
}

// ResetCounter deletes the persisted message count only; the interval
// setting survives.
func (s *Service) ResetCounter(ctx context.Context) error {
	return s.store.Del(ctx, store.KeyReminderCount)
}
