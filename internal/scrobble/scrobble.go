// Package scrobble decides what to report for a playback snapshot and reports
// it.
package scrobble

import (
	"errors"
	"fmt"
	"time"

	"github.com/mpvtrakt/mpvtrakt/internal/playback"
)

var (
	ErrNotConfigured = errors.New("scrobbling not configured")
	// ErrIneligible and ErrNoID are skips, not failures.
	ErrIneligible = fmt.Errorf("path not monitored: %w", playback.ErrSkipped)
	ErrNoID       = fmt.Errorf("no trakt id: %w", playback.ErrSkipped)
)

// Action is the scrobble endpoint to call.
type Action string

const (
	ActionStart Action = "start"
	ActionPause Action = "pause"
	ActionStop  Action = "stop"
)

// Thresholds decide when a playback counts as finished.
type Thresholds struct {
	// MinPercent is the playback position (0-100) that must be reached.
	MinPercent float64
	// MinWatchFraction of the duration must have elapsed since playback started.
	MinWatchFraction float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{MinPercent: 90, MinWatchFraction: 0.1}
}

// Progress is the part of a snapshot the decision depends on.
type Progress struct {
	Paused     bool
	PercentPos float64
	// Duration in seconds.
	Duration  float64
	FileStart *time.Time
}

// IsFinished reports whether playback reached the end and ran long enough.
// elapsed is wall-clock time since FileStart; seeking does not change it.
func IsFinished(p Progress, elapsed time.Duration, th Thresholds) bool {
	if p.FileStart == nil {
		return false
	}
	return p.PercentPos >= th.MinPercent &&
		elapsed.Seconds() >= p.Duration*th.MinWatchFraction
}

// Decide maps the playback state to an action:
//
//	closed and finished      -> stop
//	open and playing         -> start
//	anything else            -> pause
func Decide(p Progress, closed bool, elapsed time.Duration, th Thresholds) Action {
	switch {
	case closed && IsFinished(p, elapsed, th):
		return ActionStop
	case !closed && !p.Paused:
		return ActionStart
	default:
		return ActionPause
	}
}
