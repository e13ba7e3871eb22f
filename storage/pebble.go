package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

// Config holds storage configuration
type Config struct {
	Path     string
	ReadOnly bool
	// Cache is the block cache size in MB
	Cache int
}

// Validate checks the config
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	return nil
}

// PebbleStore implements ReceiptStore using PebbleDB
type PebbleStore struct {
	db     *pebble.DB
	config *Config
	logger *zap.Logger
	closed atomic.Bool
}

// NewPebbleStore opens a pebble-backed receipt store
func NewPebbleStore(cfg *Config, logger *zap.Logger) (*PebbleStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := &pebble.Options{
		ReadOnly: cfg.ReadOnly,
	}
	if cfg.Cache > 0 {
		opts.Cache = pebble.NewCache(int64(cfg.Cache) << 20)
	}

	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &PebbleStore{
		db:     db,
		config: cfg,
		logger: logger,
	}, nil
}

// Close closes the store
func (s *PebbleStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *PebbleStore) ensureWritable() error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.config.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

// PutReceipt stores a receipt and maintains the token and pending
// indexes atomically.
func (s *PebbleStore) PutReceipt(_ context.Context, receipt *PurchaseReceipt) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	if receipt == nil {
		return fmt.Errorf("receipt cannot be nil")
	}
	if receipt.TxHash == "" {
		return fmt.Errorf("receipt tx hash cannot be empty")
	}

	data, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("failed to encode receipt: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(ReceiptKey(receipt.TxHash), data, nil); err != nil {
		return fmt.Errorf("failed to write receipt: %w", err)
	}
	if err := batch.Set(TokenIndexKey(receipt.TokenID, receipt.TxHash), nil, nil); err != nil {
		return fmt.Errorf("failed to write token index: %w", err)
	}

	if receipt.Status == StatusPaidPendingDownload {
		err = batch.Set(PendingIndexKey(receipt.TxHash), nil, nil)
	} else {
		err = batch.Delete(PendingIndexKey(receipt.TxHash), nil)
	}
	if err != nil {
		return fmt.Errorf("failed to update pending index: %w", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit receipt: %w", err)
	}

	s.logger.Debug("receipt stored",
		zap.String("tx_hash", receipt.TxHash),
		zap.Uint64("token_id", receipt.TokenID),
		zap.String("status", receipt.Status))

	return nil
}

// GetReceipt returns a receipt by transaction hash
func (s *PebbleStore) GetReceipt(_ context.Context, txHash string) (*PurchaseReceipt, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	data, closer, err := s.db.Get(ReceiptKey(txHash))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read receipt: %w", err)
	}
	defer closer.Close()

	var receipt PurchaseReceipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}
	return &receipt, nil
}

// ListReceipts returns every receipt, newest first
func (s *PebbleStore) ListReceipts(ctx context.Context) ([]*PurchaseReceipt, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefixReceipts),
		UpperBound: upperBound([]byte(prefixReceipts)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var receipts []*PurchaseReceipt
	for iter.First(); iter.Valid(); iter.Next() {
		var receipt PurchaseReceipt
		if err := json.Unmarshal(iter.Value(), &receipt); err != nil {
			return nil, fmt.Errorf("failed to decode receipt at %s: %w", iter.Key(), err)
		}
		receipts = append(receipts, &receipt)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration failed: %w", err)
	}

	sortNewestFirst(receipts)
	return receipts, nil
}

// ListReceiptsByToken returns one token's receipts, newest first
func (s *PebbleStore) ListReceiptsByToken(ctx context.Context, tokenID uint64) ([]*PurchaseReceipt, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	prefix := TokenIndexPrefix(tokenID)
	hashes, err := s.scanIndex(prefix)
	if err != nil {
		return nil, err
	}
	return s.resolveReceipts(ctx, hashes)
}

// PendingReceipts returns receipts still awaiting download
func (s *PebbleStore) PendingReceipts(ctx context.Context) ([]*PurchaseReceipt, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	hashes, err := s.scanIndex([]byte(prefixPendingIx))
	if err != nil {
		return nil, err
	}
	return s.resolveReceipts(ctx, hashes)
}

func (s *PebbleStore) scanIndex(prefix []byte) ([]string, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var hashes []string
	for iter.First(); iter.Valid(); iter.Next() {
		hashes = append(hashes, txHashFromIndexKey(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration failed: %w", err)
	}
	return hashes, nil
}

func (s *PebbleStore) resolveReceipts(ctx context.Context, hashes []string) ([]*PurchaseReceipt, error) {
	receipts := make([]*PurchaseReceipt, 0, len(hashes))
	for _, hash := range hashes {
		receipt, err := s.GetReceipt(ctx, hash)
		if err != nil {
			// index entries without a record are skipped
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		receipts = append(receipts, receipt)
	}
	sortNewestFirst(receipts)
	return receipts, nil
}

func sortNewestFirst(receipts []*PurchaseReceipt) {
	sort.Slice(receipts, func(i, j int) bool {
		return receipts[i].CreatedAt.After(receipts[j].CreatedAt)
	})
}

// upperBound returns the smallest key greater than every key with the
// given prefix.
func upperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
