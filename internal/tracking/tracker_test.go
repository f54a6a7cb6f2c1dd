package tracking_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/delegatewatch/delegatewatch/internal/store"
	"github.com/delegatewatch/delegatewatch/internal/tracking"
	"github.com/delegatewatch/delegatewatch/pkg/models"
)

// spyAlerter records every stats snapshot the tracker hands it.
type spyAlerter struct {
	calls []*models.Stats
}

func (a *spyAlerter) Evaluate(ctx context.Context, stats *models.Stats) bool {
	a.calls = append(a.calls, stats)
	return false
}

func newTestTracker(t *testing.T) (*tracking.Tracker, *store.MemoryStore, *spyAlerter) {
	t.Helper()
	s := store.NewMemoryStore()
	alerter := &spyAlerter{}
	return tracking.New(s, alerter), s, alerter
}

// ─── Event Recorder ──────────────────────────────────────────

func TestRecordDelegation(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	stats, err := tr.RecordDelegation(ctx, "code-reviewer", "review PR #42", map[string]any{"pr": float64(42)})
	if err != nil {
		t.Fatalf("RecordDelegation() error = %v", err)
	}
	if stats.TotalDelegations != 1 || stats.TotalActions != 1 {
		t.Errorf("stats = %d delegations / %d actions, want 1/1", stats.TotalDelegations, stats.TotalActions)
	}
	if stats.AgentBreakdown["code-reviewer"] != 1 {
		t.Errorf("AgentBreakdown[code-reviewer] = %d, want 1", stats.AgentBreakdown["code-reviewer"])
	}

	events, err := tr.RecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("RecentEvents() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("RecentEvents() returned %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Type != models.EventDelegation {
		t.Errorf("event type = %q, want %q", ev.Type, models.EventDelegation)
	}
	if ev.Agent != "code-reviewer" || ev.Description != "review PR #42" {
		t.Errorf("event = %+v, want agent/description preserved", ev)
	}
	if ev.ID == "" {
		t.Error("event ID is empty")
	}
	if ev.Metadata["pr"] != float64(42) {
		t.Errorf("event metadata = %v, want pr=42", ev.Metadata)
	}
}

func TestRecordDelegationEmptyAgent(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	_, err := tr.RecordDelegation(context.Background(), "", "task", nil)
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("RecordDelegation(\"\") error = %v, want *models.ValidationError", err)
	}
}

func TestRecordDirectActionEmptyType(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	_, err := tr.RecordDirectAction(context.Background(), "", "desc", nil)
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("RecordDirectAction(\"\") error = %v, want *models.ValidationError", err)
	}
}

func TestCounterConservation(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if _, err := tr.RecordDelegation(ctx, "worker", "task", nil); err != nil {
			t.Fatalf("RecordDelegation() error = %v", err)
		}
	}
	for i := 0; i < 4; i++ {
		if _, err := tr.RecordDirectAction(ctx, "file_edit", "edit", nil); err != nil {
			t.Fatalf("RecordDirectAction() error = %v", err)
		}
	}

	stats, err := tr.ComputeStats(ctx)
	if err != nil {
		t.Fatalf("ComputeStats() error = %v", err)
	}
	if stats.TotalActions != 11 {
		t.Errorf("TotalActions = %d, want 11", stats.TotalActions)
	}
	if stats.TotalDelegations+stats.TotalDirectActions != stats.TotalActions {
		t.Errorf("conservation violated: %d + %d != %d",
			stats.TotalDelegations, stats.TotalDirectActions, stats.TotalActions)
	}
	if stats.DelegationRatio < 0 || stats.DelegationRatio > 1 {
		t.Errorf("DelegationRatio = %v, want within [0,1]", stats.DelegationRatio)
	}
}

func TestEventLogCapped(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 1500; i++ {
		if _, err := tr.RecordDelegation(ctx, "worker", fmt.Sprintf("task %d", i), nil); err != nil {
			t.Fatalf("RecordDelegation() #%d error = %v", i, err)
		}
	}

	events, err := tr.RecentEvents(ctx, 1500)
	if err != nil {
		t.Fatalf("RecentEvents() error = %v", err)
	}
	if len(events) != 1000 {
		t.Fatalf("event log length = %d, want 1000", len(events))
	}
	// Newest first: the last recorded event leads the list.
	if events[0].Description != "task 1499" {
		t.Errorf("newest event = %q, want %q", events[0].Description, "task 1499")
	}
	if events[999].Description != "task 500" {
		t.Errorf("oldest kept event = %q, want %q", events[999].Description, "task 500")
	}
}

func TestRecentEventsSkipsMalformed(t *testing.T) {
	tr, s, _ := newTestTracker(t)
	ctx := context.Background()

	if _, err := tr.RecordDelegation(ctx, "worker", "good", nil); err != nil {
		t.Fatalf("RecordDelegation() error = %v", err)
	}
	s.LPush(ctx, store.KeyEventLog, "{not json")

	events, err := tr.RecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("RecentEvents() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("RecentEvents() returned %d events, want 1 (malformed skipped)", len(events))
	}
	if events[0].Description != "good" {
		t.Errorf("surviving event = %q, want %q", events[0].Description, "good")
	}
}

func TestRecordPropagatesStoreErrors(t *testing.T) {
	tr, s, _ := newTestTracker(t)
	s.Fail(errors.New("connection refused"))

	_, err := tr.RecordDelegation(context.Background(), "worker", "task", nil)
	var unavail *store.UnavailableError
	if !errors.As(err, &unavail) {
		t.Fatalf("RecordDelegation() during outage error = %v, want *store.UnavailableError", err)
	}
}

func TestAlerterReceivesFreshStats(t *testing.T) {
	tr, _, alerter := newTestTracker(t)
	ctx := context.Background()

	tr.RecordDelegation(ctx, "worker", "one", nil)
	tr.RecordDirectAction(ctx, "file_edit", "two", nil)

	if len(alerter.calls) != 2 {
		t.Fatalf("alerter invoked %d times, want 2", len(alerter.calls))
	}
	if alerter.calls[1].TotalActions != 2 {
		t.Errorf("second evaluation saw %d actions, want 2", alerter.calls[1].TotalActions)
	}
}

// ─── Ratio Analyzer ──────────────────────────────────────────

func TestComputeStatsEmpty(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	stats, err := tr.ComputeStats(context.Background())
	if err != nil {
		t.Fatalf("ComputeStats() error = %v", err)
	}
	if stats.TotalActions != 0 || stats.DelegationRatio != 0 {
		t.Errorf("empty stats = %d actions / ratio %v, want 0/0", stats.TotalActions, stats.DelegationRatio)
	}
	if stats.Threshold != tracking.DefaultThreshold {
		t.Errorf("Threshold = %v, want default %v", stats.Threshold, tracking.DefaultThreshold)
	}
	// 0 >= 0.95 is false: an idle tracker does not meet the threshold.
	if stats.MeetsThreshold {
		t.Error("MeetsThreshold = true on empty stats with non-zero threshold")
	}
}

func TestComputeStatsZeroThreshold(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	if err := tr.SetAlertThreshold(ctx, 0); err != nil {
		t.Fatalf("SetAlertThreshold(0) error = %v", err)
	}
	stats, err := tr.ComputeStats(ctx)
	if err != nil {
		t.Fatalf("ComputeStats() error = %v", err)
	}
	if !stats.MeetsThreshold {
		t.Error("MeetsThreshold = false with zero threshold and zero actions, want true")
	}
}

func TestComputeStatsPercentages(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	tr.RecordDelegation(ctx, "a", "t", nil)
	tr.RecordDelegation(ctx, "b", "t", nil)
	tr.RecordDirectAction(ctx, "edit", "d", nil)

	stats, err := tr.ComputeStats(ctx)
	if err != nil {
		t.Fatalf("ComputeStats() error = %v", err)
	}
	if stats.DelegationPercentage != 66.67 {
		t.Errorf("DelegationPercentage = %v, want 66.67", stats.DelegationPercentage)
	}
	if stats.ThresholdPercentage != 95 {
		t.Errorf("ThresholdPercentage = %d, want 95", stats.ThresholdPercentage)
	}
	if stats.MeetsThreshold {
		t.Error("MeetsThreshold = true at 66.67 against threshold 95")
	}
}

func TestGenerateReportCapsRecentEventsAtTen(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		tr.RecordDelegation(ctx, "worker", fmt.Sprintf("task %d", i), nil)
	}

	report, err := tr.GenerateReport(ctx, 50)
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	if len(report.RecentEvents) != 10 {
		t.Errorf("RecentEvents = %d, want 10", len(report.RecentEvents))
	}
	if report.RecentEvents[0].Description != "task 14" {
		t.Errorf("newest report event = %q, want %q", report.RecentEvents[0].Description, "task 14")
	}
}

// ─── Threshold & Reset ───────────────────────────────────────

func TestSetAlertThresholdValidation(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()

	for _, bad := range []float64{1.5, -0.1} {
		err := tr.SetAlertThreshold(ctx, bad)
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("SetAlertThreshold(%v) error = %v, want *models.ValidationError", bad, err)
		}
	}

	if err := tr.SetAlertThreshold(ctx, 0.8); err != nil {
		t.Fatalf("SetAlertThreshold(0.8) error = %v", err)
	}
	got, err := tr.AlertThreshold(ctx)
	if err != nil {
		t.Fatalf("AlertThreshold() error = %v", err)
	}
	if got != 0.8 {
		t.Errorf("AlertThreshold() = %v, want 0.8", got)
	}
}

func TestResetTracking(t *testing.T) {
	tr, s, _ := newTestTracker(t)
	ctx := context.Background()

	tr.SetAlertThreshold(ctx, 0.5)
	tr.RecordDelegation(ctx, "worker", "task", nil)
	tr.RecordDirectAction(ctx, "edit", "desc", nil)
	s.Set(ctx, store.KeyLastAlert, "123456789")
	s.Incr(ctx, store.KeyReminderCount)

	if err := tr.ResetTracking(ctx); err != nil {
		t.Fatalf("ResetTracking() error = %v", err)
	}

	stats, err := tr.ComputeStats(ctx)
	if err != nil {
		t.Fatalf("ComputeStats() after reset error = %v", err)
	}
	if stats.TotalActions != 0 || stats.TotalDelegations != 0 || stats.TotalDirectActions != 0 {
		t.Errorf("stats after reset = %+v, want all zero", stats)
	}
	events, _ := tr.RecentEvents(ctx, 50)
	if len(events) != 0 {
		t.Errorf("events after reset = %d, want 0", len(events))
	}
	if _, ok, _ := s.Get(ctx, store.KeyLastAlert); ok {
		t.Error("last-alert marker survived reset")
	}

	// Reset is scoped: threshold and reminder state survive.
	if threshold, _ := tr.AlertThreshold(ctx); threshold != 0.5 {
		t.Errorf("threshold after reset = %v, want 0.5", threshold)
	}
	if _, ok, _ := s.Get(ctx, store.KeyReminderCount); !ok {
		t.Error("reminder counter was cleared by tracking reset")
	}
}
