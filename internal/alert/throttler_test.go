package alert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/delegatewatch/delegatewatch/internal/config"
	"github.com/delegatewatch/delegatewatch/internal/notify"
	"github.com/delegatewatch/delegatewatch/internal/store"
	"github.com/delegatewatch/delegatewatch/pkg/models"
)

type spyNotifier struct {
	messages []string
}

func (n *spyNotifier) NotifyAlert(ctx context.Context, message string, stats *models.Stats) {
	n.messages = append(n.messages, message)
}

// degradedStats builds stats well below a 95% threshold.
func degradedStats(delegations, total int64) *models.Stats {
	ratio := 0.0
	if total > 0 {
		ratio = float64(delegations) / float64(total)
	}
	return &models.Stats{
		TotalDelegations:     delegations,
		TotalDirectActions:   total - delegations,
		TotalActions:         total,
		DelegationRatio:      ratio,
		DelegationPercentage: ratio * 100,
		Threshold:            0.95,
		ThresholdPercentage:  95,
		MeetsThreshold:       ratio >= 0.95,
	}
}

func newTestThrottler(t *testing.T) (*Throttler, *store.MemoryStore, *spyNotifier) {
	t.Helper()
	s := store.NewMemoryStore()
	n := &spyNotifier{}
	th := NewThrottler(s, config.AlertConfig{
		LogPath:        filepath.Join(t.TempDir(), "alerts.log"),
		ThrottleWindow: time.Hour,
		MinSampleSize:  10,
	}, n)
	return th, s, n
}

func TestColdStartSuppression(t *testing.T) {
	th, _, n := newTestThrottler(t)

	// Ratio 0 but only 2 actions: below the sample floor, no alert.
	if fired := th.Evaluate(context.Background(), degradedStats(0, 2)); fired {
		t.Error("Evaluate() fired below the 10-action floor")
	}
	if len(n.messages) != 0 {
		t.Errorf("notifier called %d times, want 0", len(n.messages))
	}
}

func TestQuietWhenThresholdMet(t *testing.T) {
	th, _, _ := newTestThrottler(t)

	stats := degradedStats(19, 20)
	stats.MeetsThreshold = true
	if fired := th.Evaluate(context.Background(), stats); fired {
		t.Error("Evaluate() fired although stats meet the threshold")
	}
}

func TestFireBelowThreshold(t *testing.T) {
	th, s, n := newTestThrottler(t)
	ctx := context.Background()

	// Threshold 0.95, 10 actions with 5 delegations: must fire.
	if fired := th.Evaluate(ctx, degradedStats(5, 10)); !fired {
		t.Fatal("Evaluate() did not fire on degraded ratio with sufficient sample")
	}

	if len(n.messages) != 1 {
		t.Fatalf("notifier called %d times, want 1", len(n.messages))
	}
	if !strings.Contains(n.messages[0], "below threshold") {
		t.Errorf("notifier message = %q, want mention of threshold", n.messages[0])
	}

	if _, ok, _ := s.Get(ctx, store.KeyLastAlert); !ok {
		t.Error("last-alert timestamp not persisted after firing")
	}
}

func TestThrottleWindow(t *testing.T) {
	th, _, _ := newTestThrottler(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return base }

	if !th.Evaluate(ctx, degradedStats(5, 10)) {
		t.Fatal("first Evaluate() did not fire")
	}

	// 30 simulated minutes later: throttled.
	th.now = func() time.Time { return base.Add(30 * time.Minute) }
	if th.Evaluate(ctx, degradedStats(5, 11)) {
		t.Error("Evaluate() fired inside the throttle window")
	}

	// 61 simulated minutes later: window elapsed, fires again.
	th.now = func() time.Time { return base.Add(61 * time.Minute) }
	if !th.Evaluate(ctx, degradedStats(5, 12)) {
		t.Error("Evaluate() did not fire after the throttle window elapsed")
	}
}

func TestAlertLogFormat(t *testing.T) {
	th, _, _ := newTestThrottler(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return base }
	th.Evaluate(ctx, degradedStats(5, 10))

	th.now = func() time.Time { return base.Add(2 * time.Hour) }
	th.Evaluate(ctx, degradedStats(6, 12))

	raw, err := os.ReadFile(th.logPath)
	if err != nil {
		t.Fatalf("reading alert log: %v", err)
	}
	content := string(raw)

	if got := strings.Count(content, "=== "); got != 2 {
		t.Errorf("alert log has %d entries, want 2", got)
	}
	if !strings.Contains(content, "2026-08-30T12:00:00Z") {
		t.Error("alert log missing timestamp header")
	}
	if !strings.Contains(content, "Delegation ratio 50.00% fell below threshold 95%") {
		t.Error("alert log missing human message")
	}
	if !strings.Contains(content, `"total_delegations": 5`) {
		t.Error("alert log missing pretty-printed stats payload")
	}
	if !strings.HasSuffix(content, "\n\n") {
		t.Error("alert log entry missing blank separator line")
	}
}

func TestThrottleCountsOnlyFiredAlerts(t *testing.T) {
	th, _, n := newTestThrottler(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return base }
	th.Evaluate(ctx, degradedStats(5, 10))

	th.now = func() time.Time { return base.Add(10 * time.Minute) }
	th.Evaluate(ctx, degradedStats(5, 11))

	raw, _ := os.ReadFile(th.logPath)
	if got := strings.Count(string(raw), "=== "); got != 1 {
		t.Errorf("alert log has %d entries after suppressed attempt, want 1", got)
	}
	if len(n.messages) != 1 {
		t.Errorf("notifier called %d times, want 1", len(n.messages))
	}
}

func TestEvaluateNotBlockedByUnreachableWebhook(t *testing.T) {
	s := store.NewMemoryStore()
	// Nothing listens on port 1: every dispatch attempt fails.
	notifier := notify.NewService(config.WebhookConfig{URL: "http://127.0.0.1:1/hook"})
	th := NewThrottler(s, config.AlertConfig{
		LogPath:        filepath.Join(t.TempDir(), "alerts.log"),
		ThrottleWindow: time.Hour,
		MinSampleSize:  10,
	}, notifier)

	start := time.Now()
	fired := th.Evaluate(context.Background(), degradedStats(5, 10))
	elapsed := time.Since(start)

	if !fired {
		t.Error("Evaluate() did not fire with an unreachable webhook")
	}
	// Webhook delivery happens in the background; the recording path
	// must come back in well under the notifier's retry cycle.
	if elapsed > time.Second {
		t.Errorf("Evaluate() took %v, want a prompt return", elapsed)
	}
}

func TestEvaluateDegradesOnStoreFailure(t *testing.T) {
	th, s, _ := newTestThrottler(t)
	s.Fail(errors.New("connection refused"))

	// The throttle marker is unreadable and unpersistable; the alert
	// still fires and nothing panics or errors out to the caller.
	if fired := th.Evaluate(context.Background(), degradedStats(5, 10)); !fired {
		t.Error("Evaluate() did not fire during store outage")
	}
}
