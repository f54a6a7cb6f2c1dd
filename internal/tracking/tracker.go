// Package tracking implements the delegation monitor core: it records
// delegation and direct-action events into the shared counter store,
// keeps a bounded event log, and computes delegation-ratio stats
// against the configured alert threshold.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/delegatewatch/delegatewatch/internal/store"
	"github.com/delegatewatch/delegatewatch/pkg/models"
)

var tracer = otel.Tracer("delegatewatch-tracking")

const (
	// DefaultThreshold is the minimum acceptable delegation ratio when
	// none has been persisted.
	DefaultThreshold = 0.95

	// maxEventLog caps the store-side event list. Older entries are
	// silently dropped — bounded memory, not a ledger.
	maxEventLog = 1000

	defaultEventLimit = 50
)

// Alerter is notified with fresh stats after every recorded event.
// Implemented by the alert throttler.
type Alerter interface {
	Evaluate(ctx context.Context, stats *models.Stats) bool
}

// Tracker is the event recorder and ratio analyzer. It owns no state of
// its own; everything lives in the injected store.
type Tracker struct {
	store   store.Store
	alerter Alerter // nil disables alerting

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Tracker backed by the given store. alerter may be nil.
func New(s store.Store, alerter Alerter) *Tracker {
	return &Tracker{
		store:   s,
		alerter: alerter,
		now:     time.Now,
	}
}

// ── Event Recorder ───────────────────────────────────────────

// RecordDelegation records that work was handed to the named sub-agent,
// returning the freshly recomputed stats.
func (t *Tracker) RecordDelegation(ctx context.Context, agent, task string, metadata map[string]any) (*models.Stats, error) {
	if agent == "" {
		return nil, &models.ValidationError{Field: "agent", Reason: "must not be empty"}
	}
	ev := models.Event{
		ID:          uuid.NewString(),
		Type:        models.EventDelegation,
		Agent:       agent,
		Description: task,
		Timestamp:   t.now().UTC(),
		Metadata:    metadata,
	}
	return t.record(ctx, ev, store.KeyDelegationCounts, "agent:"+agent)
}

// RecordDirectAction records that the orchestrator acted itself instead
// of delegating, returning the freshly recomputed stats.
func (t *Tracker) RecordDirectAction(ctx context.Context, actionType, description string, metadata map[string]any) (*models.Stats, error) {
	if actionType == "" {
		return nil, &models.ValidationError{Field: "action_type", Reason: "must not be empty"}
	}
	ev := models.Event{
		ID:          uuid.NewString(),
		Type:        models.EventDirectAction,
		ActionType:  actionType,
		Description: description,
		Timestamp:   t.now().UTC(),
		Metadata:    metadata,
	}
	return t.record(ctx, ev, store.KeyDirectActionCounts, "type:"+actionType)
}

// record runs the shared recording sequence: two independent atomic
// hash increments (total, then the per-subject breakdown — a crash in
// between leaves the breakdown behind the total, an accepted
// weak-consistency trade-off), event log push and trim, stats refresh,
// and a synchronous throttler evaluation.
func (t *Tracker) record(ctx context.Context, ev models.Event, countsKey, field string) (*models.Stats, error) {
	ctx, span := tracer.Start(ctx, "tracking.record")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.type", string(ev.Type)),
		attribute.String("event.subject", ev.Subject()),
	)

	if _, err := t.store.HIncrBy(ctx, countsKey, "total", 1); err != nil {
		return nil, err
	}
	if _, err := t.store.HIncrBy(ctx, countsKey, field, 1); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("serialize event: %w", err)
	}
	if err := t.store.LPush(ctx, store.KeyEventLog, string(raw)); err != nil {
		return nil, err
	}
	if err := t.store.LTrim(ctx, store.KeyEventLog, 0, maxEventLog-1); err != nil {
		return nil, err
	}

	stats, err := t.ComputeStats(ctx)
	if err != nil {
		return nil, err
	}

	if t.alerter != nil {
		t.alerter.Evaluate(ctx, stats)
	}

	log.Debug().
		Str("type", string(ev.Type)).
		Str("subject", ev.Subject()).
		Float64("ratio", stats.DelegationRatio).
		Msg("Event recorded")

	return stats, nil
}

// RecentEvents returns the newest events from the bounded log, newest
// first. limit <= 0 means the default of 50. Entries that fail to
// deserialize are skipped — the log is best-effort history.
func (t *Tracker) RecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	raw, err := t.store.LRange(ctx, store.KeyEventLog, 0, int64(limit)-1)
	if err != nil {
		return nil, err
	}
	events := make([]models.Event, 0, len(raw))
	for _, entry := range raw {
		var ev models.Event
		if err := json.Unmarshal([]byte(entry), &ev); err != nil {
			log.Warn().Err(err).Msg("Skipping malformed event log entry")
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// ── Ratio Analyzer ───────────────────────────────────────────

// ComputeStats reads both counter hashes and the persisted threshold
// and returns the aggregate delegation stats. The ratio is defined as 0
// when no actions have been recorded.
func (t *Tracker) ComputeStats(ctx context.Context) (*models.Stats, error) {
	delegations, err := t.store.HGetAll(ctx, store.KeyDelegationCounts)
	if err != nil {
		return nil, err
	}
	directs, err := t.store.HGetAll(ctx, store.KeyDirectActionCounts)
	if err != nil {
		return nil, err
	}
	threshold, err := t.AlertThreshold(ctx)
	if err != nil {
		return nil, err
	}

	totalDelegations, agentBreakdown := splitCounts(delegations, "agent:")
	totalDirect, directBreakdown := splitCounts(directs, "type:")
	totalActions := totalDelegations + totalDirect

	ratio := 0.0
	if totalActions > 0 {
		ratio = float64(totalDelegations) / float64(totalActions)
	}

	return &models.Stats{
		TotalDelegations:      totalDelegations,
		TotalDirectActions:    totalDirect,
		TotalActions:          totalActions,
		DelegationRatio:       ratio,
		DelegationPercentage:  math.Round(ratio*10000) / 100,
		Threshold:             threshold,
		ThresholdPercentage:   int(math.Round(threshold * 100)),
		MeetsThreshold:        ratio >= threshold,
		AgentBreakdown:        agentBreakdown,
		DirectActionBreakdown: directBreakdown,
	}, nil
}

// GenerateReport combines aggregate stats with 24-hour and 7-day
// windowed ratios over the most recent eventLimit events (default 50),
// plus the 10 newest events. Event timestamps are taken as-is; skewed
// or future timestamps are not validated or reordered.
func (t *Tracker) GenerateReport(ctx context.Context, eventLimit int) (*models.Report, error) {
	stats, err := t.ComputeStats(ctx)
	if err != nil {
		return nil, err
	}
	events, err := t.RecentEvents(ctx, eventLimit)
	if err != nil {
		return nil, err
	}

	now := t.now().UTC()
	recent := events
	if len(recent) > 10 {
		recent = recent[:10]
	}

	return &models.Report{
		Stats:        stats,
		Last24Hours:  windowStats("24h", events, now.Add(-24*time.Hour)),
		Last7Days:    windowStats("7d", events, now.Add(-7*24*time.Hour)),
		RecentEvents: recent,
		GeneratedAt:  now,
	}, nil
}

// windowStats computes the delegation ratio over events strictly after
// the cutoff instant.
func windowStats(window string, events []models.Event, cutoff time.Time) models.WindowStats {
	ws := models.WindowStats{Window: window}
	for _, ev := range events {
		if !ev.Timestamp.After(cutoff) {
			continue
		}
		switch ev.Type {
		case models.EventDelegation:
			ws.Delegations++
		case models.EventDirectAction:
			ws.DirectActions++
		}
	}
	ws.Total = ws.Delegations + ws.DirectActions
	if ws.Total > 0 {
		ws.Ratio = float64(ws.Delegations) / float64(ws.Total)
	}
	return ws
}

// splitCounts separates the "total" field of a counter hash from the
// prefixed per-subject breakdown fields.
func splitCounts(counts map[string]string, prefix string) (int64, map[string]int64) {
	total := int64(0)
	breakdown := make(map[string]int64)
	for field, raw := range counts {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Warn().Str("field", field).Str("value", raw).Msg("Skipping non-integer counter field")
			continue
		}
		if field == "total" {
			total = n
			continue
		}
		if name := strings.TrimPrefix(field, prefix); name != field {
			breakdown[name] = n
		}
	}
	return total, breakdown
}

// ── Threshold & reset ────────────────────────────────────────

// AlertThreshold returns the persisted alert threshold, or
// DefaultThreshold when none is set.
func (t *Tracker) AlertThreshold(ctx context.Context) (float64, error) {
	raw, ok, err := t.store.Get(ctx, store.KeyAlertThreshold)
	if err != nil {
		return 0, err
	}
	if !ok {
		return DefaultThreshold, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Warn().Str("value", raw).Msg("Unparseable persisted threshold, using default")
		return DefaultThreshold, nil
	}
	return v, nil
}

// SetAlertThreshold persists a new alert threshold. Values outside
// [0, 1] are rejected, never clamped.
func (t *Tracker) SetAlertThreshold(ctx context.Context, v float64) error {
	if v < 0 || v > 1 {
		return &models.ValidationError{Field: "threshold", Reason: "must be between 0 and 1"}
	}
	return t.store.Set(ctx, store.KeyAlertThreshold, strconv.FormatFloat(v, 'f', -1, 64))
}

// ResetTracking clears both counter hashes, the event log, and the
// last-alert marker. Four independent deletes, no cross-key atomicity.
// The reminder counter and the threshold are deliberately untouched.
func (t *Tracker) ResetTracking(ctx context.Context) error {
	for _, key := range []string{
		store.KeyDelegationCounts,
		store.KeyDirectActionCounts,
		store.KeyEventLog,
		store.KeyLastAlert,
	} {
		if err := t.store.Del(ctx, key); err != nil {
			return err
		}
	}
	log.Info().Msg("Delegation tracking state reset")
	return nil
}
