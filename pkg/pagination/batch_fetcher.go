package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of pages in flight
	MaxConcurrency int

	// MaxPages bounds the number of pages fetched
	MaxPages int
}

// DefaultConfig returns a configuration suited to the shared rate limiter
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		MaxPages:       100,
	}
}

// Page is one page of a paged response. Pages are numbered from 1.
type Page[T any] struct {
	Items        []T
	TotalResults int
	HasMore      bool
}

// PageFetcher fetches a single page.
type PageFetcher[T any] func(ctx context.Context, page int) (Page[T], error)

// FetchAll fetches every page and returns the items in page order. Any
// failed page fails the whole fetch.
func FetchAll[T any](ctx context.Context, cfg Config, fetch PageFetcher[T]) ([]T, error) {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultConfig().MaxPages
	}

	start := time.Now()

	first, err := fetch(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}
	if !first.HasMore || len(first.Items) == 0 {
		return first.Items, nil
	}

	totalPages := pageCount(first.TotalResults, len(first.Items))
	if totalPages <= 1 {
		return fetchSequential(ctx, cfg, fetch, first)
	}
	if totalPages > cfg.MaxPages {
		log.Warn().
			Int("total_pages", totalPages).
			Int("max_pages", cfg.MaxPages).
			Msg("Truncating paged fetch")
		totalPages = cfg.MaxPages
	}

	log.Debug().
		Int("total_pages", totalPages).
		Int("concurrency", cfg.MaxConcurrency).
		Msg("Starting parallel page fetch")

	pages := make([][]T, totalPages)
	pages[0] = first.Items

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrency)
	for n := 2; n <= totalPages; n++ {
		g.Go(func() error {
			page, err := fetch(gctx, n)
			if err != nil {
				return fmt.Errorf("fetch page %d: %w", n, err)
			}
			pages[n-1] = page.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := concat(pages)
	log.Debug().
		Int("pages", totalPages).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")
	return items, nil
}

// fetchSequential walks pages one by one while HasMore is set.
func fetchSequential[T any](ctx context.Context, cfg Config, fetch PageFetcher[T], first Page[T]) ([]T, error) {
	pages := [][]T{first.Items}
	more := first.HasMore
	for n := 2; more && n <= cfg.MaxPages; n++ {
		page, err := fetch(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", n, err)
		}
		pages = append(pages, page.Items)
		more = page.HasMore && len(page.Items) > 0
	}
	return concat(pages), nil
}

func pageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

func concat[T any](pages [][]T) []T {
	n := 0
	for _, p := range pages {
		n += len(p)
	}
	out := make([]T, 0, n)
	for _, p := range pages {
		out = append(out, p...)
	}
	return out
}
