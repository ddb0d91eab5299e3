package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrConnect wraps failures to open the IPC endpoint.
	ErrConnect = errors.New("connect mpv ipc")
	// ErrWrite wraps failures to write to an open (or already closed) stream.
	ErrWrite = errors.New("write mpv ipc")
)

const (
	probeTimeout   = 100 * time.Millisecond
	pipeRetryDelay = 100 * time.Millisecond
	pipePrefix     = `\\.\pipe\`
)

// Transport opens byte streams to the mpv IPC endpoint.
type Transport interface {
	// Probe reports whether the endpoint can currently be opened. It does not block
	// for longer than a short connect attempt.
	Probe() bool
	// Open connects to the endpoint. Errors wrap ErrConnect.
	Open(ctx context.Context) (Stream, error)
	// Path returns the endpoint path.
	Path() string
}

// Stream is an open IPC connection. Read returns io.EOF once the player closes
// its end; Write after Close fails with ErrWrite.
type Stream interface {
	io.ReadWriteCloser
}

// NewTransport selects the transport variant for path: named pipes on Windows
// (or any \\.\pipe\ path), unix domain sockets everywhere else.
func NewTransport(path string) Transport {
	if IsPipePath(path) {
		return NewPipeTransport(path)
	}
	return NewSocketTransport(path)
}

// IsPipePath reports whether path should be opened as a byte pipe.
func IsPipePath(path string) bool {
	return runtime.GOOS == "windows" || strings.HasPrefix(path, pipePrefix)
}

// SocketTransport connects to a unix domain socket.
type SocketTransport struct {
	path string
	// Dial is a test seam; defaults to net.Dialer.DialContext.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewSocketTransport(path string) *SocketTransport {
	return &SocketTransport{
		path: path,
		Dial: (&net.Dialer{}).DialContext,
	}
}

func (t *SocketTransport) Path() string { return t.path }

func (t *SocketTransport) Probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	conn, err := t.Dial(ctx, "unix", t.path)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func (t *SocketTransport) Open(ctx context.Context) (Stream, error) {
	conn, err := t.Dial(ctx, "unix", t.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	return newStream(conn), nil
}

// PipeTransport opens a named pipe (or any file-like byte channel) with
// os.OpenFile. The first open right after the pipe appears can fail, so Open
// keeps retrying until it succeeds or ctx is cancelled.
type PipeTransport struct {
	path       string
	RetryDelay time.Duration
	openFile   func(name string) (io.ReadWriteCloser, error)
}

func NewPipeTransport(path string) *PipeTransport {
	return &PipeTransport{
		path:       path,
		RetryDelay: pipeRetryDelay,
		openFile: func(name string) (io.ReadWriteCloser, error) {
			return os.OpenFile(name, os.O_RDWR, 0)
		},
	}
}

func (t *PipeTransport) Path() string { return t.path }

func (t *PipeTransport) Probe() bool {
	_, err := os.Stat(t.path)
	return err == nil
}

func (t *PipeTransport) Open(ctx context.Context) (Stream, error) {
	for {
		f, err := t.openFile(t.path)
		if err == nil {
			return newStream(f), nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrConnect, ctx.Err())
		case <-time.After(t.RetryDelay):
		}
	}
}

type stream struct {
	rwc       io.ReadWriteCloser
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newStream(rwc io.ReadWriteCloser) *stream {
	return &stream{rwc: rwc}
}

func (s *stream) Read(p []byte) (int, error) {
	return s.rwc.Read(p)
}

func (s *stream) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, fmt.Errorf("%w: stream closed", ErrWrite)
	}
	n, err := s.rwc.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return n, nil
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.rwc.Close()
	})
	return s.closeErr
}
