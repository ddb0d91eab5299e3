package player

import (
	"log/slog"

	"golang.org/x/sync/errgroup"
)

const dispatchQueueDepth = 256

// dispatcher starts handler jobs in submission order on a bounded pool so the
// read loop does not wait for handler logic. Completion order is not
// guaranteed. Once dispatchQueueDepth jobs are queued behind busy handlers,
// dispatch blocks the read loop until a slot frees up.
type dispatcher struct {
	queue  chan func()
	done   chan struct{}
	logger *slog.Logger
}

func newDispatcher(limit int, logger *slog.Logger) *dispatcher {
	if limit <= 0 {
		limit = 1
	}
	d := &dispatcher{
		queue:  make(chan func(), dispatchQueueDepth),
		done:   make(chan struct{}),
		logger: logger,
	}
	go d.run(limit)
	return d
}

func (d *dispatcher) run(limit int) {
	defer close(d.done)
	var g errgroup.Group
	g.SetLimit(limit)
	for job := range d.queue {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("handler panic", slog.Any("panic", r))
				}
			}()
			job()
			return nil
		})
	}
	_ = g.Wait()
}

func (d *dispatcher) dispatch(job func()) {
	select {
	case d.queue <- job:
	default:
		d.logger.Warn("handler queue full, read loop waiting", slog.Int("depth", dispatchQueueDepth))
		d.queue <- job
	}
}

// close stops accepting jobs and waits for queued and running ones to finish.
func (d *dispatcher) close() {
	close(d.queue)
	<-d.done
}
