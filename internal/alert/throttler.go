// Package alert decides when a degraded delegation ratio becomes an
// operator alert. Alerts are rate limited by a persisted last-alert
// timestamp and appended to a local append-only log file.
//
// Everything here is best-effort: a failed store read, file write, or
// webhook dispatch is logged and swallowed. An alert must never block
// the calling agent's main flow.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/delegatewatch/delegatewatch/internal/config"
	"github.com/delegatewatch/delegatewatch/internal/store"
	"github.com/delegatewatch/delegatewatch/pkg/models"
)

// Notifier forwards a fired alert to the operator channel. Implemented
// by the webhook notify service; may be nil.
type Notifier interface {
	NotifyAlert(ctx context.Context, message string, stats *models.Stats)
}

// Throttler evaluates fresh stats against the alert rules.
//
// The rule set, applied on every evaluation:
//  1. fewer than MinSampleSize total actions: quiet (cold start)
//  2. ratio meets the threshold: quiet
//  3. otherwise fire, unless the last alert is younger than
//     ThrottleWindow.
//
// Only the last-alert timestamp is persisted. The read-then-set
// sequence is not atomic across processes: concurrent callers can race
// and fire more than one alert within the window. That relaxed
// consistency is intentional.
type Throttler struct {
	store     store.Store
	notifier  Notifier
	logPath   string
	window    time.Duration
	minSample int64

	// now is swappable for tests.
	now func() time.Time

	// fileMu serializes log appends within this process.
	fileMu sync.Mutex
}

// NewThrottler creates a Throttler. notifier may be nil.
func NewThrottler(s store.Store, cfg config.AlertConfig, notifier Notifier) *Throttler {
	return &Throttler{
		store:     s,
		notifier:  notifier,
		logPath:   cfg.LogPath,
		window:    cfg.ThrottleWindow,
		minSample: cfg.MinSampleSize,
		now:       time.Now,
	}
}

// Evaluate applies the alert rules to fresh stats and reports whether
// an alert fired.
func (t *Throttler) Evaluate(ctx context.Context, stats *models.Stats) bool {
	if stats.TotalActions < t.minSample {
		return false
	}
	if stats.MeetsThreshold {
		return false
	}

	now := t.now()
	if last, ok := t.lastAlert(ctx); ok && now.Sub(last) < t.window {
		log.Debug().
			Time("last_alert", last).
			Msg("Delegation alert suppressed by throttle window")
		return false
	}

	message := fmt.Sprintf(
		"Delegation ratio %.2f%% fell below threshold %d%% (%d of %d actions delegated)",
		stats.DelegationPercentage, stats.ThresholdPercentage,
		stats.TotalDelegations, stats.TotalActions,
	)

	t.appendLog(now, message, stats)

	log.Warn().
		Float64("ratio", stats.DelegationRatio).
		Float64("threshold", stats.Threshold).
		Int64("total_actions", stats.TotalActions).
		Msg("⚠️ " + message)

	if t.notifier != nil {
		t.notifier.NotifyAlert(ctx, message, stats)
	}

	millis := strconv.FormatInt(now.UnixMilli(), 10)
	if err := t.store.Set(ctx, store.KeyLastAlert, millis); err != nil {
		log.Warn().Err(err).Msg("Failed to persist last-alert timestamp")
	}

	return true
}

// lastAlert reads the persisted last-alert timestamp. Missing,
// unreadable, or unparseable values all count as "never alerted".
func (t *Throttler) lastAlert(ctx context.Context) (time.Time, bool) {
	raw, ok, err := t.store.Get(ctx, store.KeyLastAlert)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read last-alert timestamp")
		return time.Time{}, false
	}
	if !ok {
		return time.Time{}, false
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}

// appendLog writes one alert entry to the append-only log file:
// a timestamp header, the human message, the pretty-printed stats
// payload, and a blank separator line.
func (t *Throttler) appendLog(now time.Time, message string, stats *models.Stats) {
	payload, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to serialize alert payload")
		return
	}

	entry := fmt.Sprintf("=== %s [%s] ===\n%s\n%s\n\n",
		now.UTC().Format(time.RFC3339), uuid.NewString(), message, payload)

	t.fileMu.Lock()
	defer t.fileMu.Unlock()

	f, err := os.OpenFile(t.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn().Err(err).Str("path", t.logPath).Msg("Failed to open alert log")
		return
	}
	defer f.Close()

	if _, err := f.WriteString(entry); err != nil {
		log.Warn().Err(err).Str("path", t.logPath).Msg("Failed to append alert log entry")
	}
}
