package app

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mpvtrakt/mpvtrakt/internal/status"
	"github.com/mpvtrakt/mpvtrakt/internal/ui"
)

// Diagnostics accumulates counters from the status stream for the debug view.
type Diagnostics struct {
	StartTime time.Time

	// Player connection
	Connected  bool
	Reconnects int

	// Sync attempts
	Syncs           int
	SyncFailures    int
	LastSyncError   string
	LastSyncErrorAt time.Time

	// Runtime
	MemoryUsage    uint64
	GoroutineCount int

	everConnected bool
	lastSyncAt    time.Time
}

func NewDiagnostics(start time.Time) *Diagnostics {
	return &Diagnostics{StartTime: start}
}

// Observe folds one status update into the counters. Repeated updates for the
// same sync result are counted once.
func (d *Diagnostics) Observe(s status.Status) {
	connected := s.Connection == "connected"
	if connected && !d.Connected {
		if d.everConnected {
			d.Reconnects++
		}
		d.everConnected = true
	}
	d.Connected = connected

	if r := s.LastSync; r != nil && !r.At.Equal(d.lastSyncAt) {
		d.lastSyncAt = r.At
		d.Syncs++
		if r.Error != "" {
			d.SyncFailures++
			d.LastSyncError = r.Error
			d.LastSyncErrorAt = r.At
		}
	}
}

// Update refreshes runtime stats.
func (d *Diagnostics) Update() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	d.MemoryUsage = m.Alloc
	d.GoroutineCount = runtime.NumGoroutine()
}

func (d *Diagnostics) Render(theme ui.Theme, now time.Time) string {
	d.Update()

	var b strings.Builder
	b.WriteString(theme.Title.Render(" ═══ Diagnostics ═══ "))
	b.WriteString("\n\n")

	b.WriteString(theme.Dim.Render("Uptime: "))
	b.WriteString(theme.Text.Render(now.Sub(d.StartTime).Round(time.Second).String()))
	b.WriteString("\n\n")

	b.WriteString(theme.Accent.Render("Runtime"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  Memory: %s\n", humanize.IBytes(d.MemoryUsage))
	fmt.Fprintf(&b, "  Goroutines: %d\n\n", d.GoroutineCount)

	b.WriteString(theme.Accent.Render("mpv"))
	b.WriteString("\n")
	if d.Connected {
		b.WriteString(theme.Success.Render("  ● Connected"))
	} else {
		b.WriteString(theme.Error.Render("  ○ Disconnected"))
	}
	b.WriteString("\n")
	if d.Reconnects > 0 {
		fmt.Fprintf(&b, "  Reconnects: %d\n", d.Reconnects)
	}
	b.WriteString("\n")

	b.WriteString(theme.Accent.Render("Scrobbles"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  Attempts: %d / Failed: %d\n", d.Syncs, d.SyncFailures)
	if d.LastSyncError != "" && now.Sub(d.LastSyncErrorAt) < 5*time.Minute {
		b.WriteString(theme.Error.Render("  Last error: " + d.LastSyncError))
		b.WriteString("\n")
	}
	return b.String()
}
