package player

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

const readBufferSize = 4096

// State is the connection lifecycle state of a Monitor.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Commander sends commands on the current connection.
type Commander interface {
	Send(elements ...string) (int64, error)
}

// Handler receives lifecycle callbacks, events and correlated responses.
// Connected and Disconnected run on the supervising goroutine; Event and
// Response run on the dispatcher pool in arrival order.
type Handler interface {
	Connected(c Commander)
	Event(c Commander, ev Event)
	Response(c Commander, cmd Command, resp Response)
	Disconnected()
}

// Options configures the Monitor.
type Options struct {
	Transport Transport
	Handler   Handler
	Logger    *slog.Logger
	// PollInterval is the wait between failed availability probes.
	PollInterval time.Duration
	// SettleDelay is the pause after a connection closes before probing again.
	// Some IPC servers misbehave when reopened immediately.
	SettleDelay time.Duration
	// MaxConcurrentHandlers caps handler jobs running at once.
	MaxConcurrentHandlers int
	OnStateChange         func(State)
}

// Monitor keeps a connection to the mpv IPC endpoint, reconnecting whenever
// the player goes away.
type Monitor struct {
	opts  Options
	state atomic.Int32
}

func New(opts Options) *Monitor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = time.Second
	}
	if opts.MaxConcurrentHandlers <= 0 {
		opts.MaxConcurrentHandlers = 4
	}
	return &Monitor{opts: opts}
}

// State returns the current lifecycle state.
func (m *Monitor) State() State { return State(m.state.Load()) }

func (m *Monitor) setState(s State) {
	if State(m.state.Swap(int32(s))) == s {
		return
	}
	m.opts.Logger.Debug("mpv ipc state", slog.String("state", s.String()))
	if m.opts.OnStateChange != nil {
		m.opts.OnStateChange(s)
	}
}

// Run probes, connects and serves until ctx is cancelled. It returns nil on
// cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	log := m.opts.Logger.With(slog.String("ipc_path", m.opts.Transport.Path()))
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !m.opts.Transport.Probe() {
			if !sleepCtx(ctx, m.opts.PollInterval) {
				return nil
			}
			continue
		}

		m.setState(StateConnecting)
		stream, err := m.opts.Transport.Open(ctx)
		if err != nil {
			m.setState(StateDisconnected)
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("mpv ipc open failed", slog.Any("err", err))
			if !sleepCtx(ctx, m.opts.SettleDelay) {
				return nil
			}
			continue
		}

		m.setState(StateConnected)
		log.Info("mpv ipc connected")
		m.serve(ctx, stream, log)
		m.setState(StateDisconnected)
		log.Info("mpv ipc closed")

		if !sleepCtx(ctx, m.opts.SettleDelay) {
			return nil
		}
	}
}

func (m *Monitor) serve(ctx context.Context, s Stream, log *slog.Logger) {
	c := &conn{stream: s, corr: NewCorrelator(s), logger: log}
	d := newDispatcher(m.opts.MaxConcurrentHandlers, log)
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	m.opts.Handler.Connected(c)

	err := m.readLoop(s, c, d)
	switch {
	case errors.Is(err, io.EOF):
		log.Debug("mpv ipc eof")
	case ctx.Err() != nil:
		log.Debug("mpv ipc read stopped", slog.Any("err", ctx.Err()))
	default:
		log.Warn("mpv ipc read failed", slog.Any("err", err))
	}

	_ = s.Close()
	if n := c.corr.Discard(); n > 0 {
		log.Debug("discarded pending commands", slog.Int("count", n))
	}
	d.close()
	m.opts.Handler.Disconnected()
}

func (m *Monitor) readLoop(s Stream, c *conn, d *dispatcher) error {
	var framer Framer
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.Read(buf)
		if n > 0 {
			for line := range framer.Feed(buf[:n]) {
				m.handleLine(line, c, d)
			}
		}
		if err != nil {
			return err
		}
	}
}

func (m *Monitor) handleLine(line string, c *conn, d *dispatcher) {
	h := m.opts.Handler
	switch rec := Decode(line).(type) {
	case Event:
		c.logger.Debug("mpv event", slog.String("event", rec.Name))
		d.dispatch(func() { h.Event(c, rec) })
	case Response:
		cmd, ok := c.corr.Resolve(rec)
		if !ok {
			c.logger.Warn("response for unsent command", slog.Int64("request_id", rec.RequestID), slog.String("line", line))
			return
		}
		c.logger.Debug("mpv response", slog.Int64("request_id", rec.RequestID), slog.Any("command", cmd.Elements), slog.String("status", rec.Status))
		d.dispatch(func() { h.Response(c, cmd, rec) })
	case Malformed:
		c.logger.Warn("invalid mpv output, skipping", slog.String("line", rec.Raw), slog.Any("err", rec.Err))
	}
}

type conn struct {
	stream Stream
	corr   *Correlator
	logger *slog.Logger
}

// Send writes a command. A failed write closes the stream so the read loop
// ends and the disconnect sequence runs.
func (c *conn) Send(elements ...string) (int64, error) {
	id, err := c.corr.Send(elements...)
	if err != nil {
		c.logger.Warn("mpv ipc write failed, assuming closed", slog.Any("command", elements), slog.Any("err", err))
		if errors.Is(err, ErrWrite) {
			_ = c.stream.Close()
		}
		return id, err
	}
	return id, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
