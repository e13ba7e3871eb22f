// Package purchase runs the buy-and-download sequence for a
// marketplace listing: pay on chain, persist the receipt, then fetch
// the contract file.
package purchase

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neuron-labs/marketd/marketplace"
	"github.com/neuron-labs/marketd/notify"
	"github.com/neuron-labs/marketd/storage"
)

// Fixed user-facing status messages
const (
	msgProcessing = "Processing your purchase..."
	msgSuccess    = "Purchase successful! Downloading contract..."
	msgFailure    = "Transaction failed. Please try again."
)

// Purchaser settles the access payment on chain
type Purchaser interface {
	Purchase(ctx context.Context, tokenID uint64, usageFee *big.Int) (*types.Receipt, error)
}

// Downloader fetches the contract file behind a metadata URI and
// returns the written file path.
type Downloader interface {
	Download(ctx context.Context, uri string) (string, error)
}

// Result describes a completed purchase
type Result struct {
	Receipt  *storage.PurchaseReceipt
	FilePath string
}

// Sequencer orders the purchase steps: an info notification, the
// chain transaction, a success notification, receipt persistence,
// then the download.
type Sequencer struct {
	purchaser  Purchaser
	downloader Downloader
	store      storage.ReceiptStore
	notifier   notify.Notifier
	logger     *zap.Logger
}

// NewSequencer creates a purchase sequencer
func NewSequencer(purchaser Purchaser, downloader Downloader, store storage.ReceiptStore, notifier notify.Notifier, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &Sequencer{
		purchaser:  purchaser,
		downloader: downloader,
		store:      store,
		notifier:   notifier,
		logger:     logger,
	}
}

// Run purchases a listing and downloads its contract file. Every
// failure path emits the same fixed failure notification. The receipt
// is persisted as paid_pending_download before any download work, so
// a paid purchase is never lost to a download failure; if persisting
// fails the download is not attempted.
func (s *Sequencer) Run(ctx context.Context, listing marketplace.Listing) (*Result, error) {
	s.notify(ctx, notify.SeverityInfo, msgProcessing, listing.TokenID)

	txReceipt, err := s.purchaser.Purchase(ctx, listing.TokenID, listing.UsageFee)
	if err != nil {
		return nil, s.fail(ctx, listing.TokenID, "chain purchase failed", err)
	}

	s.notify(ctx, notify.SeveritySuccess, msgSuccess, listing.TokenID)

	now := time.Now().UTC()
	receipt := &storage.PurchaseReceipt{
		ID:          uuid.New().String(),
		TokenID:     listing.TokenID,
		TxHash:      txReceipt.TxHash.Hex(),
		MetadataURI: listing.URI,
		UsageFee:    listing.UsageFee.String(),
		Status:      storage.StatusPaidPendingDownload,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.PutReceipt(ctx, receipt); err != nil {
		return nil, s.fail(ctx, listing.TokenID, "failed to persist receipt", err)
	}

	filePath, err := s.downloader.Download(ctx, listing.URI)
	if err != nil {
		// paid state survives in the store for a later retry
		return nil, s.fail(ctx, listing.TokenID, "contract download failed", err)
	}

	receipt.Status = storage.StatusCompleted
	receipt.FilePath = filePath
	receipt.UpdatedAt = time.Now().UTC()
	if err := s.store.PutReceipt(ctx, receipt); err != nil {
		return nil, s.fail(ctx, listing.TokenID, "failed to mark receipt completed", err)
	}

	s.logger.Info("purchase completed",
		zap.Uint64("token_id", listing.TokenID),
		zap.String("tx_hash", receipt.TxHash),
		zap.String("file", filePath))

	return &Result{Receipt: receipt, FilePath: filePath}, nil
}

func (s *Sequencer) notify(ctx context.Context, severity notify.Severity, message string, tokenID uint64) {
	if err := s.notifier.Notify(ctx, notify.New(severity, message, tokenID)); err != nil {
		s.logger.Warn("notification failed", zap.Error(err))
	}
}

func (s *Sequencer) fail(ctx context.Context, tokenID uint64, stage string, err error) error {
	s.logger.Error(stage,
		zap.Uint64("token_id", tokenID),
		zap.Error(err))
	s.notify(ctx, notify.SeverityError, msgFailure, tokenID)
	return err
}
