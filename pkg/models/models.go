// Package models defines the shared data types for the DelegateWatch
// delegation monitor: events, aggregate stats, windowed reports, and
// reminder results. These types cross the API boundary, so every field
// carries a json tag.
package models

import (
	"fmt"
	"time"
)

// ValidationError reports a rejected input value (bad threshold or
// reminder interval). Values are never silently clamped.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ── Events ───────────────────────────────────────────────────

// EventType distinguishes the two kinds of recorded actions.
type EventType string

const (
	// EventDelegation records work handed to a named sub-agent.
	EventDelegation EventType = "delegation"
	// EventDirectAction records work the orchestrator did itself.
	EventDirectAction EventType = "direct_action"
)

// Event is one recorded delegation or direct action. Events live in a
// bounded store-side log (newest first, capped at 1000 entries).
type Event struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Agent       string         `json:"agent,omitempty"`       // set for delegation events
	ActionType  string         `json:"action_type,omitempty"` // set for direct-action events
	Description string         `json:"description"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Subject returns the agent name or action type, whichever the event carries.
func (e Event) Subject() string {
	if e.Type == EventDelegation {
		return e.Agent
	}
	return e.ActionType
}

// ── Stats ────────────────────────────────────────────────────

// Stats is the aggregate view over all recorded events.
type Stats struct {
	TotalDelegations      int64            `json:"total_delegations"`
	TotalDirectActions    int64            `json:"total_direct_actions"`
	TotalActions          int64            `json:"total_actions"`
	DelegationRatio       float64          `json:"delegation_ratio"`      // 0..1, 0 when no actions
	DelegationPercentage  float64          `json:"delegation_percentage"` // ratio*100, 2 decimals
	Threshold             float64          `json:"threshold"`             // 0..1
	ThresholdPercentage   int              `json:"threshold_percentage"`  // rounded whole percent
	MeetsThreshold        bool             `json:"meets_threshold"`
	AgentBreakdown        map[string]int64 `json:"agent_breakdown"`
	DirectActionBreakdown map[string]int64 `json:"direct_action_breakdown"`
}

// WindowStats is the delegation ratio restricted to a trailing time window.
type WindowStats struct {
	Window        string  `json:"window"` // "24h" or "7d"
	Delegations   int64   `json:"delegations"`
	DirectActions int64   `json:"direct_actions"`
	Total         int64   `json:"total"`
	Ratio         float64 `json:"ratio"` // 0 when the window is empty
}

// Report combines aggregate stats with trailing-window breakdowns and
// the most recent events.
type Report struct {
	Stats        *Stats      `json:"stats"`
	Last24Hours  WindowStats `json:"last_24_hours"`
	Last7Days    WindowStats `json:"last_7_days"`
	RecentEvents []Event     `json:"recent_events"` // 10 newest
	GeneratedAt  time.Time   `json:"generated_at"`
}

// ── Reminders ────────────────────────────────────────────────

// ReminderResult is the outcome of one reminder check. Zero value means
// "nothing to show" and is what callers get when the store is down.
type ReminderResult struct {
	ShouldShow bool   `json:"should_show"`
	Count      int64  `json:"count"`
	Text       string `json:"text,omitempty"`
}
