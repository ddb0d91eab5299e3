package playback

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpvtrakt/mpvtrakt/internal/player"
)

type fakeCommander struct {
	mu   sync.Mutex
	sent [][]string
	next int64
}

func (f *fakeCommander) Send(elements ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.sent = append(f.sent, elements)
	return f.next, nil
}

func (f *fakeCommander) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s[0] == name {
			n++
		}
	}
	return n
}

type syncCall struct {
	snap   Snapshot
	closed bool
}

type syncRecorder struct {
	calls chan syncCall
	err   func(closed bool) error
}

func newSyncRecorder() *syncRecorder {
	return &syncRecorder{calls: make(chan syncCall, 32)}
}

func (r *syncRecorder) sync(_ context.Context, snap Snapshot, closed bool) error {
	r.calls <- syncCall{snap: snap, closed: closed}
	if r.err != nil {
		return r.err(closed)
	}
	return nil
}

func (r *syncRecorder) expectNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case c := <-r.calls:
		t.Fatalf("unexpected sync: closed=%v", c.closed)
	case <-time.After(within):
	}
}

func (r *syncRecorder) wait(t *testing.T) syncCall {
	t.Helper()
	select {
	case c := <-r.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for sync")
		return syncCall{}
	}
}

func respond(tr *Tracker, c player.Commander, prop string, value any) {
	raw, _ := json.Marshal(value)
	tr.Response(c,
		player.Command{Elements: []string{"get_property", prop}},
		player.Response{Status: "success", Data: raw})
}

func fill(tr *Tracker, c player.Commander, paused bool, percent float64) {
	respond(tr, c, "working-directory", "/home/viewer")
	respond(tr, c, "path", "Show.S01E02.mkv")
	respond(tr, c, "percent-pos", percent)
	respond(tr, c, "pause", paused)
	respond(tr, c, "duration", 1500.0)
}

func newTestTracker(t *testing.T, rec *syncRecorder, debounce time.Duration) *Tracker {
	t.Helper()
	tr := NewTracker(context.Background(), Options{
		Sync:     rec.sync,
		Debounce: debounce,
		Refresh:  time.Hour,
	})
	t.Cleanup(tr.Close)
	return tr
}

func TestTrackerConnectedQueriesProperties(t *testing.T) {
	c := &fakeCommander{}
	tr := newTestTracker(t, newSyncRecorder(), time.Hour)
	tr.Connected(c)

	assert.Equal(t, 5, c.count("get_property"))
	assert.Equal(t, 1, c.count("observe_property"))
	_, stale := tr.Snapshot()
	assert.True(t, stale)
}

func TestTrackerDebounceCoalescesBursts(t *testing.T) {
	c := &fakeCommander{}
	rec := newSyncRecorder()
	tr := newTestTracker(t, rec, 60*time.Millisecond)
	tr.Connected(c)

	fill(tr, c, false, 10)
	for _, pct := range []float64{11, 12, 42} {
		respond(tr, c, "percent-pos", pct)
	}

	call := rec.wait(t)
	assert.False(t, call.closed)
	require.NotNil(t, call.snap.PercentPos)
	assert.Equal(t, 42.0, *call.snap.PercentPos)
	rec.expectNone(t, 150*time.Millisecond)
}

func TestTrackerSuccessfulSyncClearsStale(t *testing.T) {
	c := &fakeCommander{}
	rec := newSyncRecorder()
	tr := newTestTracker(t, rec, 10*time.Millisecond)
	tr.Connected(c)
	fill(tr, c, false, 10)
	rec.wait(t)

	require.Eventually(t, func() bool {
		_, stale := tr.Snapshot()
		return !stale
	}, time.Second, 5*time.Millisecond)

	// not stale: new values alone do not schedule a sync
	respond(tr, c, "percent-pos", 11.0)
	rec.expectNone(t, 60*time.Millisecond)

	// an event marks stale again
	tr.Event(c, player.Event{Name: "seek"})
	respond(tr, c, "percent-pos", 30.0)
	call := rec.wait(t)
	assert.Equal(t, 30.0, *call.snap.PercentPos)
}

func TestTrackerFailedSyncKeepsStale(t *testing.T) {
	c := &fakeCommander{}
	rec := newSyncRecorder()
	rec.err = func(bool) error { return errors.New("503") }
	tr := newTestTracker(t, rec, 10*time.Millisecond)
	tr.Connected(c)
	fill(tr, c, false, 10)
	rec.wait(t)

	_, stale := tr.Snapshot()
	assert.True(t, stale)

	respond(tr, c, "percent-pos", 12.0)
	call := rec.wait(t)
	assert.Equal(t, 12.0, *call.snap.PercentPos)
}

func TestTrackerDisconnectRunsClosingSync(t *testing.T) {
	c := &fakeCommander{}
	rec := newSyncRecorder()
	var tr *Tracker
	rec.err = func(closed bool) error {
		if closed {
			tr.mu.Lock()
			defer tr.mu.Unlock()
			assert.Nil(t, tr.debounce, "debounce cancelled before closing sync")
			assert.Nil(t, tr.refresh, "refresh cancelled before closing sync")
			assert.True(t, tr.snap.Complete(), "snapshot cleared only after closing sync")
		}
		return nil
	}
	tr = NewTracker(context.Background(), Options{Sync: rec.sync, Debounce: 30 * time.Millisecond, Refresh: 30 * time.Millisecond})
	defer tr.Close()

	tr.Connected(c)
	fill(tr, c, false, 95)
	tr.Disconnected()

	call := rec.wait(t)
	assert.True(t, call.closed)
	assert.Equal(t, 95.0, *call.snap.PercentPos)
	rec.expectNone(t, 100*time.Millisecond)

	snap, stale := tr.Snapshot()
	assert.False(t, snap.Complete())
	assert.True(t, stale)
	sentAfter := c.count("get_property")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, sentAfter, c.count("get_property"), "refresh must not fire after disconnect")
}

func TestTrackerDisconnectIncompleteSnapshot(t *testing.T) {
	c := &fakeCommander{}
	rec := newSyncRecorder()
	tr := newTestTracker(t, rec, time.Hour)
	tr.Connected(c)
	respond(tr, c, "path", "movie.mkv")
	tr.Disconnected()
	rec.expectNone(t, 30*time.Millisecond)
}

func TestTrackerStartFileFinalizesPrevious(t *testing.T) {
	c := &fakeCommander{}
	rec := newSyncRecorder()
	tr := newTestTracker(t, rec, time.Hour)
	tr.Connected(c)
	fill(tr, c, false, 50)
	first, _ := tr.Snapshot()

	tr.Event(c, player.Event{Name: "start-file"})
	call := rec.wait(t)
	assert.True(t, call.closed)
	assert.Equal(t, first.SessionID, call.snap.SessionID)

	snap, stale := tr.Snapshot()
	assert.True(t, stale)
	assert.Nil(t, snap.Path)
	assert.NotEqual(t, first.SessionID, snap.SessionID)
	assert.Equal(t, 10, c.count("get_property"))
	assert.Equal(t, 1, c.count("observe_property"))
}

func TestTrackerFileStartSetOnFirstUnpause(t *testing.T) {
	c := &fakeCommander{}
	clock := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	tr := NewTracker(context.Background(), Options{
		Sync:     newSyncRecorder().sync,
		Debounce: time.Hour,
		Refresh:  time.Hour,
		Now:      func() time.Time { return clock },
	})
	defer tr.Close()
	tr.Connected(c)

	respond(tr, c, "pause", true)
	snap, _ := tr.Snapshot()
	assert.Nil(t, snap.FileStart)

	respond(tr, c, "pause", false)
	clock = clock.Add(time.Hour)
	respond(tr, c, "pause", true)
	respond(tr, c, "pause", false)

	snap, _ = tr.Snapshot()
	require.NotNil(t, snap.FileStart)
	assert.Equal(t, time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC), *snap.FileStart)
}

func TestTrackerPausePropertyChangeRequeries(t *testing.T) {
	c := &fakeCommander{}
	tr := newTestTracker(t, newSyncRecorder(), time.Hour)
	tr.Connected(c)

	raw := map[string]json.RawMessage{"name": json.RawMessage(`"pause"`), "data": json.RawMessage(`true`)}
	tr.Event(c, player.Event{Name: "property-change", Fields: raw})
	assert.Equal(t, 10, c.count("get_property"))

	other := map[string]json.RawMessage{"name": json.RawMessage(`"volume"`)}
	tr.Event(c, player.Event{Name: "property-change", Fields: other})
	assert.Equal(t, 10, c.count("get_property"))
}

func TestTrackerIgnoresFailedResponses(t *testing.T) {
	c := &fakeCommander{}
	tr := newTestTracker(t, newSyncRecorder(), time.Hour)
	tr.Connected(c)
	tr.Response(c,
		player.Command{Elements: []string{"get_property", "path"}},
		player.Response{Status: "property unavailable"})
	snap, _ := tr.Snapshot()
	assert.Nil(t, snap.Path)
}

func TestTrackerCloseCancelsTimers(t *testing.T) {
	c := &fakeCommander{}
	rec := newSyncRecorder()
	tr := NewTracker(context.Background(), Options{Sync: rec.sync, Debounce: 20 * time.Millisecond, Refresh: 20 * time.Millisecond})
	tr.Connected(c)
	fill(tr, c, false, 10)
	tr.Close()

	sent := c.count("get_property")
	rec.expectNone(t, 80*time.Millisecond)
	assert.Equal(t, sent, c.count("get_property"))
}

func TestTrackerRefreshRequeries(t *testing.T) {
	c := &fakeCommander{}
	tr := NewTracker(context.Background(), Options{Sync: newSyncRecorder().sync, Debounce: time.Hour, Refresh: 10 * time.Millisecond})
	defer tr.Close()
	tr.Connected(c)
	assert.Eventually(t, func() bool { return c.count("get_property") >= 15 }, time.Second, 5*time.Millisecond)
}

// blockingSync holds every sync until the test releases it with a result.
type blockingSync struct {
	calls   chan syncCall
	results chan error
}

func newBlockingSync() *blockingSync {
	return &blockingSync{calls: make(chan syncCall, 8), results: make(chan error)}
}

func (b *blockingSync) sync(_ context.Context, snap Snapshot, closed bool) error {
	b.calls <- syncCall{snap: snap, closed: closed}
	return <-b.results
}

func (b *blockingSync) wait(t *testing.T) syncCall {
	t.Helper()
	select {
	case c := <-b.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for sync")
		return syncCall{}
	}
}

func (b *blockingSync) expectNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case c := <-b.calls:
		t.Fatalf("unexpected sync: closed=%v", c.closed)
	case <-time.After(within):
	}
}

func TestTrackerEventDuringInFlightSyncKeepsStale(t *testing.T) {
	c := &fakeCommander{}
	bs := newBlockingSync()
	tr := NewTracker(context.Background(), Options{Sync: bs.sync, Debounce: 10 * time.Millisecond, Refresh: time.Hour})
	defer tr.Close()
	tr.Connected(c)

	fill(tr, c, false, 10)
	inFlight := bs.wait(t)
	assert.Equal(t, 10.0, *inFlight.snap.PercentPos)

	// the user seeks while the sync of the 10% snapshot is still out
	tr.Event(c, player.Event{Name: "seek"})
	bs.results <- nil
	time.Sleep(20 * time.Millisecond)

	_, stale := tr.Snapshot()
	assert.True(t, stale, "a sync of an older snapshot must not clear stale")

	respond(tr, c, "percent-pos", 50.0)
	call := bs.wait(t)
	assert.False(t, call.closed)
	assert.Equal(t, 50.0, *call.snap.PercentPos)
	bs.results <- nil

	require.Eventually(t, func() bool {
		_, stale := tr.Snapshot()
		return !stale
	}, time.Second, 5*time.Millisecond)
}

func TestTrackerResponseDuringClosingSyncIsDropped(t *testing.T) {
	c := &fakeCommander{}
	bs := newBlockingSync()
	tr := NewTracker(context.Background(), Options{Sync: bs.sync, Debounce: 10 * time.Millisecond, Refresh: time.Hour})
	defer tr.Close()
	tr.Connected(c)

	// first sync fails so the snapshot stays stale
	fill(tr, c, false, 40)
	bs.wait(t)
	bs.results <- errors.New("503")

	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.Event(c, player.Event{Name: "start-file"})
	}()
	closing := bs.wait(t)
	assert.True(t, closing.closed)
	assert.Equal(t, "Show.S01E02.mkv", *closing.snap.Path)

	// a late answer for the old file arrives on another handler
	respond(tr, c, "percent-pos", 41.0)
	bs.results <- nil
	<-done

	bs.expectNone(t, 80*time.Millisecond)
	snap, stale := tr.Snapshot()
	assert.Nil(t, snap.PercentPos)
	assert.Nil(t, snap.Path)
	assert.True(t, stale)
}

func TestTrackerConcurrentHandlersDuringSync(t *testing.T) {
	c := &fakeCommander{}
	bs := newBlockingSync()
	tr := NewTracker(context.Background(), Options{Sync: bs.sync, Debounce: 10 * time.Millisecond, Refresh: time.Hour})
	defer func() {
		// unblock whatever is still waiting before Close joins it
		close(bs.results)
		tr.Close()
	}()
	tr.Connected(c)

	fill(tr, c, false, 20)
	bs.wait(t)

	// events and responses race with each other and with the in-flight sync
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr.Event(c, player.Event{Name: "pause"})
		}()
		go func(pct float64) {
			defer wg.Done()
			respond(tr, c, "percent-pos", pct)
		}(float64(30 + i))
	}
	wg.Wait()
	respond(tr, c, "percent-pos", 60.0)

	seen := false
	deadline := time.After(2 * time.Second)
	for {
		select {
		case call := <-bs.calls:
			if *call.snap.PercentPos == 60.0 {
				seen = true
			}
		case bs.results <- nil:
		case <-deadline:
			t.Fatalf("latest position never synced (seen=%v)", seen)
		case <-time.After(5 * time.Millisecond):
			if _, stale := tr.Snapshot(); seen && !stale {
				return
			}
		}
	}
}
