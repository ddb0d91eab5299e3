package scrobble

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/mpvtrakt/mpvtrakt/internal/store"
)

// IDStore caches title ids; keys are compared case-insensitively.
type IDStore interface {
	LookupID(ctx context.Context, kind, title string) (string, bool, error)
	SaveID(ctx context.Context, kind, title, id string) error
}

// Searcher finds the id of a title.
type Searcher interface {
	SearchID(ctx context.Context, kind, title string) (int64, bool, error)
}

// IDCache resolves titles to trakt ids, remembering misses as "n/a" so each
// unknown title is searched once.
type IDCache struct {
	store  IDStore
	search Searcher
	log    *slog.Logger
}

func NewIDCache(st IDStore, search Searcher, logger *slog.Logger) *IDCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &IDCache{store: st, search: search, log: logger}
}

// Lookup returns the id for title. kind is "movie" or "show". Unresolvable
// titles return ErrNoID.
func (c *IDCache) Lookup(ctx context.Context, kind, title string) (int64, error) {
	cached, ok, err := c.store.LookupID(ctx, kind, title)
	if err != nil {
		return 0, err
	}
	if !ok {
		c.log.Info("requesting trakt id", slog.String("kind", kind), slog.String("title", title))
		cached = store.NotAvailable
		id, found, err := c.search.SearchID(ctx, kind, title)
		switch {
		case err != nil && ctx.Err() != nil:
			return 0, ctx.Err()
		case err != nil:
			c.log.Warn("trakt search failed", slog.String("title", title), slog.Any("err", err))
		case !found:
			c.log.Warn("unknown title", slog.String("kind", kind), slog.String("title", title))
		default:
			cached = strconv.FormatInt(id, 10)
		}
		if err := c.store.SaveID(ctx, kind, title, cached); err != nil {
			return 0, err
		}
	}

	if cached == store.NotAvailable {
		return 0, ErrNoID
	}
	id, err := strconv.ParseInt(cached, 10, 64)
	if err != nil {
		return 0, ErrNoID
	}
	return id, nil
}
