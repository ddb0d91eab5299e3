package scrobble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mpvtrakt/mpvtrakt/internal/playback"
	"github.com/mpvtrakt/mpvtrakt/internal/scrobble/trakt"
	"github.com/mpvtrakt/mpvtrakt/internal/store"
	"github.com/mpvtrakt/mpvtrakt/internal/title"
)

// Poster sends a scrobble and returns the HTTP status.
type Poster interface {
	Scrobble(ctx context.Context, action string, req trakt.ScrobbleRequest) (int, error)
}

type TitleResolver interface {
	Resolve(path string) (title.Info, error)
}

type IDLookup interface {
	Lookup(ctx context.Context, kind, title string) (int64, error)
}

type History interface {
	AddHistory(ctx context.Context, e store.HistoryEntry) error
}

// Result describes one scrobble attempt.
type Result struct {
	SessionID  string
	Action     Action
	Path       string
	Title      string
	Progress   float64
	StatusCode int
	Err        error
	At         time.Time
}

type PipelineOptions struct {
	Filter     playback.DirFilter
	Thresholds Thresholds
	Titles     TitleResolver
	IDs        IDLookup
	Poster     Poster
	History    History
	OnResult   func(Result)
	Logger     *slog.Logger
	Now        func() time.Time
}

// Pipeline turns a snapshot into a scrobble: resolve the path, filter it,
// identify the title, decide the action and post it.
type Pipeline struct {
	opts PipelineOptions
	log  *slog.Logger
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	if opts.Titles == nil {
		opts.Titles = title.Resolver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{opts: opts, log: log}
}

// Sync has the playback.SyncFunc signature.
func (p *Pipeline) Sync(ctx context.Context, snap playback.Snapshot, closed bool) error {
	if p.opts.Poster == nil || p.opts.IDs == nil {
		return ErrNotConfigured
	}
	if !snap.Complete() {
		return fmt.Errorf("incomplete snapshot: %w", playback.ErrSkipped)
	}

	path := snap.ResolvedPath()
	log := p.log.With(slog.String("session", snap.SessionID), slog.String("path", path))
	if !p.opts.Filter.Eligible(path) {
		return ErrIneligible
	}

	info, err := p.opts.Titles.Resolve(path)
	if errors.Is(err, title.ErrUnknownType) {
		log.Warn("cannot identify title", slog.Any("err", err))
		return fmt.Errorf("%w: %w", playback.ErrSkipped, err)
	}
	if err != nil {
		return err
	}

	kind := "movie"
	if info.Kind == title.Episode {
		kind = "show"
	}
	id, err := p.opts.IDs.Lookup(ctx, kind, info.Title)
	if err != nil {
		return err
	}

	prog := Progress{
		Paused:     *snap.Paused,
		PercentPos: *snap.PercentPos,
		Duration:   *snap.Duration,
		FileStart:  snap.FileStart,
	}
	now := p.opts.Now()
	var elapsed time.Duration
	if snap.FileStart != nil {
		elapsed = now.Sub(*snap.FileStart)
	}
	action := Decide(prog, closed, elapsed, p.opts.Thresholds)

	status, err := p.opts.Poster.Scrobble(ctx, string(action), buildRequest(info, id, prog.PercentPos))
	log.Info("scrobble",
		slog.String("action", string(action)),
		slog.String("title", info.String()),
		slog.Float64("progress", prog.PercentPos),
		slog.Int("status", status),
		slog.Any("err", err))

	p.record(ctx, Result{
		SessionID:  snap.SessionID,
		Action:     action,
		Path:       path,
		Title:      info.String(),
		Progress:   prog.PercentPos,
		StatusCode: status,
		Err:        err,
		At:         now,
	})
	return err
}

func (p *Pipeline) record(ctx context.Context, r Result) {
	if p.opts.OnResult != nil {
		p.opts.OnResult(r)
	}
	if p.opts.History == nil || r.StatusCode == 0 {
		return
	}
	entry := store.HistoryEntry{
		SessionID:  r.SessionID,
		Action:     string(r.Action),
		Path:       r.Path,
		Title:      r.Title,
		Progress:   r.Progress,
		StatusCode: r.StatusCode,
		At:         r.At,
	}
	if r.Err != nil {
		entry.Error = r.Err.Error()
	}
	if err := p.opts.History.AddHistory(ctx, entry); err != nil {
		p.log.Warn("record history", slog.Any("err", err))
	}
}

func buildRequest(info title.Info, id int64, progress float64) trakt.ScrobbleRequest {
	req := trakt.ScrobbleRequest{Progress: progress}
	media := &trakt.Media{IDs: trakt.IDs{Trakt: id}}
	if info.Kind == title.Episode {
		req.Show = media
		req.Episode = &trakt.Episode{Season: info.Season, Number: info.Episode}
	} else {
		req.Movie = media
	}
	return req
}
