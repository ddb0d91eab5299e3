// Package status merges connection, playback and sync state into one view
// and publishes it to subscribers.
package status

import (
	"sync"
	"time"

	"github.com/mpvtrakt/mpvtrakt/internal/playback"
	"github.com/mpvtrakt/mpvtrakt/internal/scrobble"
)

type Status struct {
	Connection string      `json:"connection"`
	IPCPath    string      `json:"ipc_path"`
	Session    string      `json:"session,omitempty"`
	Path       string      `json:"path,omitempty"`
	Paused     *bool       `json:"paused,omitempty"`
	PercentPos *float64    `json:"percent_pos,omitempty"`
	Duration   *float64    `json:"duration,omitempty"`
	Stale      bool        `json:"stale"`
	LastSync   *SyncResult `json:"last_sync,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

type SyncResult struct {
	Action     string    `json:"action"`
	Title      string    `json:"title"`
	Progress   float64   `json:"progress"`
	StatusCode int       `json:"status_code"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Hub holds the latest Status. Subscribers always see the newest value;
// intermediate updates may be skipped for slow readers.
type Hub struct {
	mu   sync.Mutex
	cur  Status
	subs map[int]chan Status
	next int
	now  func() time.Time
}

func NewHub(ipcPath string) *Hub {
	return &Hub{
		cur:  Status{Connection: "disconnected", IPCPath: ipcPath, Stale: true},
		subs: make(map[int]chan Status),
		now:  time.Now,
	}
}

func (h *Hub) Current() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur
}

// Subscribe returns a channel receiving every new Status and a cancel func.
func (h *Hub) Subscribe() (<-chan Status, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan Status, 1)
	h.subs[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

func (h *Hub) SetConnection(state string) {
	h.update(func(s *Status) { s.Connection = state })
}

func (h *Hub) SetPlayback(snap playback.Snapshot, stale bool) {
	h.update(func(s *Status) {
		s.Session = snap.SessionID
		s.Path = snap.ResolvedPath()
		s.Paused = snap.Paused
		s.PercentPos = snap.PercentPos
		s.Duration = snap.Duration
		s.Stale = stale
	})
}

func (h *Hub) SetSync(r scrobble.Result) {
	res := &SyncResult{
		Action:     string(r.Action),
		Title:      r.Title,
		Progress:   r.Progress,
		StatusCode: r.StatusCode,
		At:         r.At,
	}
	if r.Err != nil {
		res.Error = r.Err.Error()
	}
	h.update(func(s *Status) { s.LastSync = res })
}

func (h *Hub) update(fn func(*Status)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.cur)
	h.cur.UpdatedAt = h.now()
	for _, ch := range h.subs {
		// replace an unread value so the newest always wins
		select {
		case <-ch:
		default:
		}
		ch <- h.cur
	}
}
