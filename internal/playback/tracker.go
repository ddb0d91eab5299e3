package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mpvtrakt/mpvtrakt/internal/player"
)

// ErrSkipped is wrapped by SyncFuncs that decided not to contact the service.
// The tracker treats it like a failure but logs it quietly.
var ErrSkipped = errors.New("sync skipped")

// SyncFunc evaluates a snapshot and reports it downstream. closed is true when
// the file or player went away. A nil error means the service accepted it.
type SyncFunc func(ctx context.Context, snap Snapshot, closed bool) error

const pauseObserverID = "1"

var queriedProperties = []string{"working-directory", "path", "percent-pos", "pause", "duration"}

// Options configures a Tracker.
type Options struct {
	Sync     SyncFunc
	Logger   *slog.Logger
	Debounce time.Duration
	Refresh  time.Duration
	// OnChange observes every snapshot update. Called with the tracker lock held;
	// it must not call back into the Tracker.
	OnChange     func(snap Snapshot, stale bool)
	Now          func() time.Time
	NewSessionID func() string
}

// Tracker turns mpv property responses into snapshots and schedules syncs. It
// implements player.Handler.
type Tracker struct {
	opts Options
	ctx  context.Context

	mu          sync.Mutex
	snap        Snapshot
	stale       bool
	closed      bool
	conn        player.Commander
	debounce    *time.Timer
	debounceGen uint64
	refresh     *time.Timer
	refreshGen  uint64
	syncs       sync.WaitGroup

	// changeGen counts events that invalidate earlier syncs: a sync only
	// clears stale if none happened while it ran. ending is non-zero while a
	// closing sync runs; responses for the file being finalized are dropped.
	changeGen uint64
	ending    int
}

// NewTracker returns a Tracker whose syncs run under ctx.
func NewTracker(ctx context.Context, opts Options) *Tracker {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	if opts.Refresh <= 0 {
		opts.Refresh = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewSessionID == nil {
		opts.NewSessionID = uuid.NewString
	}
	return &Tracker{opts: opts, ctx: ctx, stale: true}
}

// Snapshot returns a copy of the current snapshot and the staleness flag.
func (t *Tracker) Snapshot() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap, t.stale
}

func (t *Tracker) Connected(c player.Commander) {
	t.mu.Lock()
	t.conn = c
	t.mu.Unlock()

	t.begin(c)
	if _, err := c.Send("observe_property", pauseObserverID, "pause"); err != nil {
		t.opts.Logger.Debug("observe pause failed", slog.Any("err", err))
	}
}

func (t *Tracker) Disconnected() {
	t.end()
	t.mu.Lock()
	t.conn = nil
	t.mu.Unlock()
}

func (t *Tracker) Event(c player.Commander, ev player.Event) {
	switch ev.Name {
	case "start-file":
		// a new file behaves like a fresh connection
		t.end()
		t.begin(c)
	case "pause", "unpause", "seek", "playback-restart":
		t.markStale()
		t.query(c)
	case "property-change":
		var name string
		if ev.Field("name", &name) && name == "pause" {
			t.markStale()
			t.query(c)
		}
	}
}

func (t *Tracker) Response(_ player.Commander, cmd player.Command, resp player.Response) {
	if cmd.Name() != "get_property" {
		return
	}
	prop := cmd.Arg(0)
	if !resp.OK() {
		t.opts.Logger.Warn("command failed", slog.Any("command", cmd.Elements), slog.String("error", resp.Status))
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.ending > 0 {
		return
	}
	if err := t.applyLocked(prop, resp); err != nil {
		t.opts.Logger.Warn("unexpected property value", slog.String("property", prop), slog.String("data", string(resp.Data)), slog.Any("err", err))
		return
	}
	t.notifyLocked()
	if t.stale && t.snap.Complete() {
		t.armDebounceLocked()
	}
}

func (t *Tracker) applyLocked(prop string, resp player.Response) error {
	switch prop {
	case "pause":
		var v bool
		if err := resp.Decode(&v); err != nil {
			return err
		}
		t.snap.Paused = &v
		if !v && t.snap.FileStart == nil {
			now := t.opts.Now()
			t.snap.FileStart = &now
		}
	case "percent-pos", "duration":
		var v float64
		if err := resp.Decode(&v); err != nil {
			return err
		}
		if prop == "duration" {
			t.snap.Duration = &v
		} else {
			t.snap.PercentPos = &v
		}
	case "path", "working-directory":
		var v string
		if err := resp.Decode(&v); err != nil {
			return err
		}
		if prop == "path" {
			t.snap.Path = &v
		} else {
			t.snap.WorkingDirectory = &v
		}
	}
	return nil
}

// Close cancels both timers and waits for in-flight syncs. No timer fires
// after Close returns.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.cancelTimersLocked()
	t.mu.Unlock()
	t.syncs.Wait()
}

func (t *Tracker) begin(c player.Commander) {
	t.mu.Lock()
	t.stale = true
	t.changeGen++
	t.snap.SessionID = t.opts.NewSessionID()
	t.notifyLocked()
	t.mu.Unlock()
	t.query(c)
}

// end cancels timers, runs the closing sync for a complete snapshot and resets
// state for the next file. Nothing can re-arm a timer until the reset is done.
func (t *Tracker) end() {
	t.mu.Lock()
	t.cancelTimersLocked()
	t.ending++
	t.changeGen++
	snap := t.snap
	gen := t.changeGen
	shuttingDown := t.closed || t.ctx.Err() != nil
	t.mu.Unlock()

	if snap.Complete() && !shuttingDown {
		t.runSync(snap, true, gen)
	}

	t.mu.Lock()
	t.cancelTimersLocked()
	t.snap = Snapshot{}
	t.stale = true
	t.changeGen++
	t.ending--
	t.notifyLocked()
	t.mu.Unlock()
}

func (t *Tracker) markStale() {
	t.mu.Lock()
	t.stale = true
	t.changeGen++
	t.notifyLocked()
	t.mu.Unlock()
}

func (t *Tracker) query(c player.Commander) {
	for _, prop := range queriedProperties {
		if _, err := c.Send("get_property", prop); err != nil {
			return
		}
	}
	t.scheduleRefresh(c)
}

func (t *Tracker) scheduleRefresh(c player.Commander) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.ending > 0 || t.conn != c {
		return
	}
	stopTimer(t.refresh)
	t.refreshGen++
	gen := t.refreshGen
	t.refresh = time.AfterFunc(t.opts.Refresh, func() {
		t.mu.Lock()
		current := gen == t.refreshGen && !t.closed
		t.mu.Unlock()
		if current {
			t.query(c)
		}
	})
}

func (t *Tracker) armDebounceLocked() {
	stopTimer(t.debounce)
	t.debounceGen++
	gen := t.debounceGen
	snap, changeGen := t.snap, t.changeGen
	t.debounce = time.AfterFunc(t.opts.Debounce, func() {
		t.mu.Lock()
		if gen != t.debounceGen || t.closed || t.ending > 0 {
			t.mu.Unlock()
			return
		}
		t.debounce = nil
		t.syncs.Add(1)
		t.mu.Unlock()
		defer t.syncs.Done()
		t.runSync(snap, false, changeGen)
	})
}

func (t *Tracker) cancelTimersLocked() {
	stopTimer(t.debounce)
	stopTimer(t.refresh)
	t.debounce, t.refresh = nil, nil
	t.debounceGen++
	t.refreshGen++
}

// runSync reports snap downstream. changeGen is the generation snap was taken
// at; a later event keeps the state stale even if this sync succeeds.
func (t *Tracker) runSync(snap Snapshot, closed bool, changeGen uint64) {
	log := t.opts.Logger.With(slog.String("session", snap.SessionID), slog.Bool("mpv_closed", closed))
	err := t.opts.Sync(t.ctx, snap, closed)
	switch {
	case err == nil:
		t.mu.Lock()
		if changeGen == t.changeGen && t.ending == 0 {
			t.stale = false
			t.notifyLocked()
		}
		t.mu.Unlock()
	case errors.Is(err, ErrSkipped):
		log.Debug("sync skipped", slog.Any("reason", err))
	default:
		log.Warn("sync failed, will retry on next change", slog.Any("err", err))
	}
}

func (t *Tracker) notifyLocked() {
	if t.opts.OnChange != nil {
		t.opts.OnChange(t.snap, t.stale)
	}
}

func stopTimer(tm *time.Timer) {
	if tm != nil {
		tm.Stop()
	}
}
