// Package feed assembles the marketplace listing feed from batched
// contract reads and serves filtered views of it.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/neuron-labs/marketd/marketplace"
)

// ListingReader is the contract read surface the aggregator consumes
type ListingReader interface {
	TotalTokenIds(ctx context.Context) (uint64, error)
	ReadListingBatch(ctx context.Context, first, last uint64) ([]marketplace.PairResult, error)
}

// Aggregator loads the full listing set once and serves it from
// memory. Concurrent loads coalesce into a single chain round trip.
type Aggregator struct {
	reader  ListingReader
	logger  *zap.Logger
	metrics *Metrics

	mu       sync.Mutex
	loaded   bool
	loading  chan struct{}
	gen      uint64
	listings []marketplace.Listing
	loadedAt time.Time
}

// NewAggregator creates a feed aggregator over the given reader
func NewAggregator(reader ListingReader, metrics *Metrics, logger *zap.Logger) (*Aggregator, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		reader:  reader,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Listings returns every listing in ascending token ID order, loading
// from the chain on first use. Tokens whose detail or URI read failed
// are excluded. Subsequent calls serve the cached set.
func (a *Aggregator) Listings(ctx context.Context) ([]marketplace.Listing, error) {
	for {
		a.mu.Lock()
		if a.loaded {
			listings := a.listings
			a.mu.Unlock()
			return listings, nil
		}
		if a.loading == nil {
			done := make(chan struct{})
			a.loading = done
			gen := a.gen
			a.mu.Unlock()

			listings, err := a.load(ctx)

			a.mu.Lock()
			a.loading = nil
			// a Refresh during the load bumps the generation; this
			// snapshot predates it, so leave the cache unset and let
			// the next caller reload
			if err == nil && a.gen == gen {
				a.loaded = true
				a.listings = listings
				a.loadedAt = time.Now()
			}
			a.mu.Unlock()
			close(done)

			return listings, err
		}

		// another caller is loading, wait for it and retry
		wait := a.loading
		a.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// Search returns listings whose tags match the query. An empty query
// returns every listing.
func (a *Aggregator) Search(ctx context.Context, query string) ([]marketplace.Listing, error) {
	listings, err := a.Listings(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(listings, func(l marketplace.Listing, _ int) bool {
		return MatchesTags(l.Tags, query)
	}), nil
}

// Listing returns a single listing by token ID
func (a *Aggregator) Listing(ctx context.Context, tokenID uint64) (marketplace.Listing, error) {
	listings, err := a.Listings(ctx)
	if err != nil {
		return marketplace.Listing{}, err
	}
	for _, l := range listings {
		if l.TokenID == tokenID {
			return l, nil
		}
	}
	return marketplace.Listing{}, fmt.Errorf("listing %d not found", tokenID)
}

// Refresh drops the cached set and reloads it from the chain. A load
// already in flight when Refresh is called cannot satisfy it; the
// generation bump forces a fresh one.
func (a *Aggregator) Refresh(ctx context.Context) error {
	a.mu.Lock()
	a.loaded = false
	a.gen++
	a.mu.Unlock()

	_, err := a.Listings(ctx)
	return err
}

// LoadedAt reports when the cached set was last loaded. Zero time
// means no load has succeeded yet.
func (a *Aggregator) LoadedAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loadedAt
}

func (a *Aggregator) load(ctx context.Context) ([]marketplace.Listing, error) {
	start := time.Now()

	total, err := a.reader.TotalTokenIds(ctx)
	if err != nil {
		a.observeLoad(start, err)
		return nil, fmt.Errorf("failed to get total token count: %w", err)
	}
	if total == 0 {
		a.observeLoad(start, nil)
		return []marketplace.Listing{}, nil
	}

	pairs, err := a.reader.ReadListingBatch(ctx, 1, total)
	if err != nil {
		a.observeLoad(start, err)
		return nil, fmt.Errorf("failed to read listing batch: %w", err)
	}

	listings := make([]marketplace.Listing, 0, len(pairs))
	dropped := 0
	for _, pair := range pairs {
		if !pair.Ok() {
			dropped++
			continue
		}
		listings = append(listings, marketplace.Listing{
			TokenID:  pair.TokenID,
			Creator:  pair.Creator,
			Tags:     pair.Tags,
			UsageFee: pair.UsageFee,
			URI:      pair.URI,
		})
	}

	a.logger.Info("listing feed loaded",
		zap.Uint64("total_tokens", total),
		zap.Int("listings", len(listings)),
		zap.Int("dropped", dropped),
		zap.Duration("elapsed", time.Since(start)))

	if a.metrics != nil {
		a.metrics.ListingsLoaded.Set(float64(len(listings)))
		a.metrics.ListingsDropped.Add(float64(dropped))
	}
	a.observeLoad(start, nil)

	return listings, nil
}

func (a *Aggregator) observeLoad(start time.Time, err error) {
	if a.metrics == nil {
		return
	}
	a.metrics.LoadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		a.metrics.LoadFailures.Inc()
	}
}
