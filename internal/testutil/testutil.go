// Package testutil provides shared helpers for marketd tests.
package testutil

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// NewTestLogger creates a logger suitable for tests
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	log, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}
	return log
}

// Addr builds a deterministic test address from a single byte
func Addr(b byte) common.Address {
	var a common.Address
	a[common.AddressLength-1] = b
	return a
}

// Wei is shorthand for big.NewInt in fee fixtures
func Wei(v int64) *big.Int {
	return big.NewInt(v)
}
