package graphql

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/neuron-labs/marketd/catalog"
	"github.com/neuron-labs/marketd/feed"
	"github.com/neuron-labs/marketd/marketplace"
	"github.com/neuron-labs/marketd/storage"
)

type stubReader struct{}

func (stubReader) TotalTokenIds(context.Context) (uint64, error) { return 2, nil }

func (stubReader) ReadListingBatch(_ context.Context, first, last uint64) ([]marketplace.PairResult, error) {
	return []marketplace.PairResult{
		{
			TokenID:  1,
			Creator:  common.HexToAddress("0x0000000000000000000000000000000000000001"),
			Tags:     []string{"defi", "staking"},
			UsageFee: big.NewInt(1000),
			URI:      "ipfs://QmOne",
		},
		{
			TokenID:  2,
			Creator:  common.HexToAddress("0x0000000000000000000000000000000000000002"),
			Tags:     []string{"nft"},
			UsageFee: big.NewInt(2000),
			URI:      "ipfs://QmTwo",
		},
	}, nil
}

type stubReceipts struct {
	storage.ReceiptStore
	receipts []*storage.PurchaseReceipt
}

func (s *stubReceipts) ListReceipts(context.Context) ([]*storage.PurchaseReceipt, error) {
	return s.receipts, nil
}

func (s *stubReceipts) PendingReceipts(context.Context) ([]*storage.PurchaseReceipt, error) {
	var pending []*storage.PurchaseReceipt
	for _, r := range s.receipts {
		if r.Status == storage.StatusPaidPendingDownload {
			pending = append(pending, r)
		}
	}
	return pending, nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	aggregator, err := feed.NewAggregator(stubReader{}, nil, zap.NewNop())
	require.NoError(t, err)

	store, err := catalog.NewStore([]catalog.Record{
		{
			Author:      "openzeppelin",
			Slug:        "erc20-vault",
			Version:     "1.2.0",
			Name:        "ERC20 Vault",
			Description: "Token vault",
			Path:        "contracts/erc20-vault.sol",
			Content: []catalog.ContentBlock{
				{Tag: "h1", Body: "ERC20 Vault"},
			},
			WriteFunctions: []catalog.FunctionRef{
				{Name: "deposit", Signature: "deposit(uint256)", Description: "Deposit"},
			},
		},
	})
	require.NoError(t, err)

	receipts := &stubReceipts{receipts: []*storage.PurchaseReceipt{
		{
			ID:        "r1",
			TokenID:   1,
			TxHash:    "0xabc",
			Status:    storage.StatusCompleted,
			FilePath:  "/downloads/contract-QmOne.sol",
			CreatedAt: time.Now().UTC(),
		},
		{
			ID:        "r2",
			TokenID:   2,
			TxHash:    "0xdef",
			Status:    storage.StatusPaidPendingDownload,
			CreatedAt: time.Now().UTC(),
		},
	}}

	h, err := NewHandler(aggregator, store, receipts, zap.NewNop())
	require.NoError(t, err)
	return h
}

func TestQueryListings(t *testing.T) {
	h := newTestHandler(t)

	result := h.ExecuteQuery(`{ listings { tokenId creator creatorShort tags usageFee usageFeeEther uri } }`, nil)
	require.Empty(t, result.Errors)

	listings := result.Data.(map[string]interface{})["listings"].([]interface{})
	require.Len(t, listings, 2)

	first := listings[0].(map[string]interface{})
	assert.Equal(t, 1, first["tokenId"])
	assert.Equal(t, "1000", first["usageFee"])
	assert.Equal(t, "0.000000000000001", first["usageFeeEther"])
	assert.Equal(t, "0x0000...0001", first["creatorShort"])
	assert.Equal(t, "ipfs://QmOne", first["uri"])
}

func TestQueryListings_Filtered(t *testing.T) {
	h := newTestHandler(t)

	result := h.ExecuteQuery(`{ listings(query: "DEFI") { tokenId } }`, nil)
	require.Empty(t, result.Errors)

	listings := result.Data.(map[string]interface{})["listings"].([]interface{})
	require.Len(t, listings, 1)
	assert.Equal(t, 1, listings[0].(map[string]interface{})["tokenId"])
}

func TestQueryListing(t *testing.T) {
	h := newTestHandler(t)

	result := h.ExecuteQuery(`{ listing(tokenId: 2) { tokenId tags } }`, nil)
	require.Empty(t, result.Errors)

	listing := result.Data.(map[string]interface{})["listing"].(map[string]interface{})
	assert.Equal(t, 2, listing["tokenId"])

	// unknown token surfaces as a resolver error
	result = h.ExecuteQuery(`{ listing(tokenId: 99) { tokenId } }`, nil)
	assert.NotEmpty(t, result.Errors)
}

func TestQueryContract(t *testing.T) {
	h := newTestHandler(t)

	result := h.ExecuteQuery(`{ contract(identifier: "openzeppelin/erc20-vault") { name version path content { tag content } writeFunctions { name signature } } }`, nil)
	require.Empty(t, result.Errors)

	contract := result.Data.(map[string]interface{})["contract"].(map[string]interface{})
	assert.Equal(t, "ERC20 Vault", contract["name"])
	assert.Equal(t, "1.2.0", contract["version"])
	assert.Equal(t, "contracts/erc20-vault.sol", contract["path"])

	content := contract["content"].([]interface{})
	require.Len(t, content, 1)
	assert.Equal(t, "h1", content[0].(map[string]interface{})["tag"])

	writeFns := contract["writeFunctions"].([]interface{})
	require.Len(t, writeFns, 1)
	assert.Equal(t, "deposit", writeFns[0].(map[string]interface{})["name"])

	result = h.ExecuteQuery(`{ contract(identifier: "nobody/none") { name } }`, nil)
	assert.NotEmpty(t, result.Errors)
}

func TestQueryReceipts(t *testing.T) {
	h := newTestHandler(t)

	result := h.ExecuteQuery(`{ receipts { id status } pendingReceipts { id } }`, nil)
	require.Empty(t, result.Errors)

	data := result.Data.(map[string]interface{})
	assert.Len(t, data["receipts"].([]interface{}), 2)

	pending := data["pendingReceipts"].([]interface{})
	require.Len(t, pending, 1)
	assert.Equal(t, "r2", pending[0].(map[string]interface{})["id"])
}
