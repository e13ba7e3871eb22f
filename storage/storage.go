// Package storage persists purchase receipts so paid-but-undownloaded
// purchases survive restarts.
package storage

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	// ErrNotFound is returned when a key is not found
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned when operating on a closed storage
	ErrClosed = errors.New("storage closed")

	// ErrReadOnly is returned when attempting to write to a read-only storage
	ErrReadOnly = errors.New("storage is read-only")
)

// Receipt status values. A receipt is written as paid_pending_download
// the moment the chain transaction settles, before any download work.
const (
	StatusPaidPendingDownload = "paid_pending_download"
	StatusCompleted           = "completed"
)

// PurchaseReceipt records a settled access purchase and its download state
type PurchaseReceipt struct {
	ID          string    `json:"id"`
	TokenID     uint64    `json:"tokenId"`
	TxHash      string    `json:"txHash"`
	MetadataURI string    `json:"metadataUri"`
	UsageFee    string    `json:"usageFee"`
	Status      string    `json:"status"`
	FilePath    string    `json:"filePath,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ReceiptStore persists purchase receipts
type ReceiptStore interface {
	// PutReceipt stores a receipt, overwriting any previous state
	PutReceipt(ctx context.Context, receipt *PurchaseReceipt) error

	// GetReceipt returns a receipt by transaction hash
	GetReceipt(ctx context.Context, txHash string) (*PurchaseReceipt, error)

	// ListReceipts returns every stored receipt, newest first
	ListReceipts(ctx context.Context) ([]*PurchaseReceipt, error)

	// ListReceiptsByToken returns receipts for one token, newest first
	ListReceiptsByToken(ctx context.Context, tokenID uint64) ([]*PurchaseReceipt, error)

	// PendingReceipts returns receipts still awaiting download
	PendingReceipts(ctx context.Context) ([]*PurchaseReceipt, error)

	// Close releases underlying resources
	Close() error
}
