package scrobble

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

var started = time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)

func finishedProgress(paused bool) Progress {
	return Progress{Paused: paused, PercentPos: 95, Duration: 100, FileStart: &started}
}

func unfinishedProgress(paused bool) Progress {
	return Progress{Paused: paused, PercentPos: 40, Duration: 100, FileStart: &started}
}

func TestDecideTable(t *testing.T) {
	th := DefaultThresholds()
	elapsed := 20 * time.Second

	tests := []struct {
		closed, finished, paused bool
		want                     Action
	}{
		{false, false, false, ActionStart},
		{false, false, true, ActionPause},
		{false, true, false, ActionStart},
		{false, true, true, ActionPause},
		{true, false, false, ActionPause},
		{true, false, true, ActionPause},
		{true, true, false, ActionStop},
		{true, true, true, ActionStop},
	}
	for _, tt := range tests {
		name := fmt.Sprintf("closed=%v finished=%v paused=%v", tt.closed, tt.finished, tt.paused)
		t.Run(name, func(t *testing.T) {
			p := unfinishedProgress(tt.paused)
			if tt.finished {
				p = finishedProgress(tt.paused)
			}
			assert.Equal(t, tt.finished, IsFinished(p, elapsed, th))
			assert.Equal(t, tt.want, Decide(p, tt.closed, elapsed, th))
		})
	}
}

func TestDecideFinishedWhileOpenStillStarts(t *testing.T) {
	p := Progress{Paused: false, PercentPos: 95, Duration: 100, FileStart: &started}
	th := Thresholds{MinPercent: 90, MinWatchFraction: 0.1}
	assert.True(t, IsFinished(p, 20*time.Second, th))
	assert.Equal(t, ActionStart, Decide(p, false, 20*time.Second, th))
}

func TestIsFinished(t *testing.T) {
	th := DefaultThresholds()
	assert.False(t, IsFinished(Progress{PercentPos: 99, Duration: 100}, time.Hour, th), "never unpaused")
	assert.False(t, IsFinished(finishedProgress(false), 5*time.Second, th), "watched too briefly")
	assert.True(t, IsFinished(finishedProgress(false), 10*time.Second, th), "boundary is inclusive")
	assert.True(t, IsFinished(Progress{PercentPos: 90, Duration: 100, FileStart: &started}, time.Minute, th))
}

func TestDecideProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)
	th := DefaultThresholds()

	properties.Property("stop only when closed and finished", prop.ForAll(
		func(closed, paused, hasStart bool, pct, dur float64, secs int64) bool {
			p := Progress{Paused: paused, PercentPos: pct, Duration: dur}
			if hasStart {
				p.FileStart = &started
			}
			elapsed := time.Duration(secs) * time.Second
			finished := IsFinished(p, elapsed, th)

			switch got := Decide(p, closed, elapsed, th); {
			case closed && finished:
				return got == ActionStop
			case !closed && !paused:
				return got == ActionStart
			default:
				return got == ActionPause
			}
		},
		gen.Bool(), gen.Bool(), gen.Bool(),
		gen.Float64Range(0, 100), gen.Float64Range(1, 10800), gen.Int64Range(0, 20000),
	))

	properties.TestingRun(t)
}
