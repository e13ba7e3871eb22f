package storage

import (
	"fmt"
	"strings"
)

// Key prefixes
const (
	prefixReceipts  = "/data/receipts/"
	prefixTokenIdx  = "/index/token/"
	prefixPendingIx = "/index/pending/"
)

// ReceiptKey returns the key for a purchase receipt.
// Format: /data/receipts/{txhash}
func ReceiptKey(txHash string) []byte {
	return []byte(prefixReceipts + strings.ToLower(txHash))
}

// TokenIndexKey returns the token index entry for a receipt.
// Format: /index/token/{tokenID}/{txhash}
func TokenIndexKey(tokenID uint64, txHash string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", prefixTokenIdx, tokenID, strings.ToLower(txHash)))
}

// TokenIndexPrefix returns the scan prefix for one token's receipts
func TokenIndexPrefix(tokenID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d/", prefixTokenIdx, tokenID))
}

// PendingIndexKey returns the pending-download index entry.
// Format: /index/pending/{txhash}
func PendingIndexKey(txHash string) []byte {
	return []byte(prefixPendingIx + strings.ToLower(txHash))
}

// txHashFromIndexKey extracts the trailing txhash segment from an
// index key.
func txHashFromIndexKey(key []byte) string {
	s := string(key)
	if idx := strings.LastIndexByte(s, '/'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}
