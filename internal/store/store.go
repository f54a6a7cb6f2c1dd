// Package store provides the key-value storage interface and
// implementations for DelegateWatch. All tracking code depends on this
// interface, making it easy to swap between in-memory (tests, local
// dev) and Redis (production) implementations.
package store

import (
	"context"
	"fmt"
)

// ── Key namespace ────────────────────────────────────────────
//
// These key names are a compatibility contract with existing
// deployments; do not rename them.
const (
	KeyDelegationCounts   = "delegation:counts"          // hash: total, agent:<name>
	KeyDirectActionCounts = "delegation:direct_counts"   // hash: total, type:<actionType>
	KeyEventLog           = "delegation:events"          // list, newest first, max 1000
	KeyAlertThreshold     = "delegation:alert_threshold" // float string
	KeyLastAlert          = "delegation:last_alert"      // epoch millis string
	KeyReminderCount      = "reminder:message_count"     // integer string
	KeyReminderInterval   = "reminder:interval"          // integer string
)

// Store is the key-value contract the core depends on. Individual
// commands are atomic at the store level; multi-command sequences are
// not transactional.
type Store interface {
	// Incr atomically increments a scalar integer key, creating it at 0.
	Incr(ctx context.Context, key string) (int64, error)

	// HIncrBy atomically increments an integer field within a hash,
	// creating the hash and field as needed.
	HIncrBy(ctx context.Context, key, field string, n int64) (int64, error)

	// HGetAll returns every field of a hash. A missing key yields an
	// empty map, not an error.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// LPush prepends a value to a list, creating the list as needed.
	LPush(ctx context.Context, key, value string) error

	// LTrim truncates a list to the inclusive index range [start, stop].
	LTrim(ctx context.Context, key string, start, stop int64) error

	// LRange returns list entries in the inclusive index range
	// [start, stop], front (newest) first. Stop may be -1 for "to end".
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Get returns a scalar string value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes a scalar string value.
	Set(ctx context.Context, key, value string) error

	// Del removes the given keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Errors ──────────────────────────────────────────────────

// UnavailableError wraps a failed round trip to the backing store.
type UnavailableError struct {
	Op  string // store command, e.g. "HINCRBY"
	Key string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// unavailable builds an UnavailableError unless err is nil.
func unavailable(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Key: key, Err: err}
}
