package player

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Command is a request awaiting its response.
type Command struct {
	ID       int64
	Elements []string
	IssuedAt time.Time
}

// Name returns the command verb, e.g. "get_property".
func (c Command) Name() string {
	if len(c.Elements) == 0 {
		return ""
	}
	return c.Elements[0]
}

// Arg returns the i-th argument after the verb, or "".
func (c Command) Arg(i int) string {
	if i+1 >= len(c.Elements) {
		return ""
	}
	return c.Elements[i+1]
}

type wireCommand struct {
	Command   []string `json:"command"`
	RequestID int64    `json:"request_id"`
}

// Correlator numbers outgoing commands and matches responses to them. One
// Correlator lives for one connection; ids start at 1.
type Correlator struct {
	mu      sync.Mutex
	w       io.Writer
	next    int64
	pending map[int64]Command
	now     func() time.Time
}

func NewCorrelator(w io.Writer) *Correlator {
	return &Correlator{
		w:       w,
		next:    1,
		pending: make(map[int64]Command),
		now:     time.Now,
	}
}

// Send allocates the next id, records the command as pending and writes it.
// Allocation, bookkeeping and the write happen under one lock so ids reach the
// wire in order.
func (c *Correlator) Send(elements ...string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.next
	b, err := json.Marshal(wireCommand{Command: elements, RequestID: id})
	if err != nil {
		return 0, fmt.Errorf("encode command: %w", err)
	}
	c.next++
	c.pending[id] = Command{
		ID:       id,
		Elements: append([]string(nil), elements...),
		IssuedAt: c.now(),
	}
	if _, err := c.w.Write(append(b, '\n')); err != nil {
		delete(c.pending, id)
		return id, err
	}
	return id, nil
}

// Resolve removes and returns the pending command for resp. ok is false for
// orphan responses, in which case nothing changes.
func (c *Correlator) Resolve(resp Response) (Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd, ok := c.pending[resp.RequestID]
	if ok {
		delete(c.pending, resp.RequestID)
	}
	return cmd, ok
}

// Pending returns the number of commands awaiting a response.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Discard drops every pending command and returns how many were dropped.
func (c *Correlator) Discard() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.pending)
	clear(c.pending)
	return n
}
