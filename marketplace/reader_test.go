package marketplace

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/neuron-labs/marketd/internal/testutil"
)

var testContract = common.HexToAddress("0x00000000000000000000000000000000000000AA")

// mockCaller routes calls by 4-byte selector. Responses and failures
// are keyed by "selector" or "selector:tokenID".
type mockCaller struct {
	abi       abi.ABI
	responses map[string][]byte
	failures  map[string]error
	batches   int
}

func newMockCaller(t *testing.T) *mockCaller {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(MarketplaceABI))
	require.NoError(t, err)
	return &mockCaller{
		abi:       parsed,
		responses: make(map[string][]byte),
		failures:  make(map[string]error),
	}
}

func (m *mockCaller) key(data []byte) string {
	selector := hex.EncodeToString(data[:4])
	if len(data) > 4 {
		arg := new(big.Int).SetBytes(data[4:])
		return fmt.Sprintf("%s:%d", selector, arg.Uint64())
	}
	return selector
}

func (m *mockCaller) stub(t *testing.T, method string, tokenID uint64, outputs ...interface{}) {
	t.Helper()
	encoded, err := m.abi.Methods[method].Outputs.Pack(outputs...)
	require.NoError(t, err)
	key := hex.EncodeToString(m.abi.Methods[method].ID)
	if tokenID > 0 {
		key = fmt.Sprintf("%s:%d", key, tokenID)
	}
	m.responses[key] = encoded
}

func (m *mockCaller) fail(method string, tokenID uint64, err error) {
	key := hex.EncodeToString(m.abi.Methods[method].ID)
	if tokenID > 0 {
		key = fmt.Sprintf("%s:%d", key, tokenID)
	}
	m.failures[key] = err
}

func (m *mockCaller) lookup(data []byte) ([]byte, error) {
	key := m.key(data)
	if err, ok := m.failures[key]; ok {
		return nil, err
	}
	resp, ok := m.responses[key]
	if !ok {
		return nil, fmt.Errorf("no stub for %s", key)
	}
	return resp, nil
}

func (m *mockCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return m.lookup(msg.Data)
}

func (m *mockCaller) BatchCall(_ context.Context, batch []rpc.BatchElem) error {
	m.batches++
	for i := range batch {
		params := batch[i].Args[0].(map[string]interface{})
		data := params["data"].(hexutil.Bytes)
		resp, err := m.lookup(data)
		if err != nil {
			batch[i].Error = err
			continue
		}
		*batch[i].Result.(*hexutil.Bytes) = resp
	}
	return nil
}

func newTestReader(t *testing.T, caller EthCaller) *Reader {
	t.Helper()
	r, err := NewReader(caller, testContract, zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestTotalTokenIds(t *testing.T) {
	mock := newMockCaller(t)
	mock.stub(t, "getTotalTokenIds", 0, big.NewInt(42))

	r := newTestReader(t, mock)
	total, err := r.TotalTokenIds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), total)
}

func TestTotalTokenIds_CallError(t *testing.T) {
	mock := newMockCaller(t)
	mock.fail("getTotalTokenIds", 0, fmt.Errorf("execution reverted"))

	r := newTestReader(t, mock)
	_, err := r.TotalTokenIds(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "getTotalTokenIds call failed")
}

func TestReadListingBatch(t *testing.T) {
	creator1 := testutil.Addr(1)
	creator2 := testutil.Addr(2)

	mock := newMockCaller(t)
	mock.stub(t, "getContractDetails", 1, creator1, []string{"defi", "staking"}, testutil.Wei(1000))
	mock.stub(t, "tokenURI", 1, "ipfs://QmOne")
	mock.stub(t, "getContractDetails", 2, creator2, []string{"nft"}, testutil.Wei(2000))
	mock.stub(t, "tokenURI", 2, "ipfs://QmTwo")

	r := newTestReader(t, mock)
	pairs, err := r.ReadListingBatch(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	// one round trip for the whole range
	assert.Equal(t, 1, mock.batches)

	assert.True(t, pairs[0].Ok())
	assert.Equal(t, uint64(1), pairs[0].TokenID)
	assert.Equal(t, creator1, pairs[0].Creator)
	assert.Equal(t, []string{"defi", "staking"}, pairs[0].Tags)
	assert.Equal(t, big.NewInt(1000), pairs[0].UsageFee)
	assert.Equal(t, "ipfs://QmOne", pairs[0].URI)

	assert.True(t, pairs[1].Ok())
	assert.Equal(t, uint64(2), pairs[1].TokenID)
	assert.Equal(t, "ipfs://QmTwo", pairs[1].URI)
}

func TestReadListingBatch_PartialFailure(t *testing.T) {
	creator := testutil.Addr(1)

	mock := newMockCaller(t)
	mock.stub(t, "getContractDetails", 1, creator, []string{"dao"}, testutil.Wei(500))
	mock.fail("tokenURI", 1, fmt.Errorf("execution reverted"))
	mock.fail("getContractDetails", 2, fmt.Errorf("execution reverted"))
	mock.stub(t, "tokenURI", 2, "ipfs://QmTwo")
	mock.stub(t, "getContractDetails", 3, creator, []string{"oracle"}, testutil.Wei(700))
	mock.stub(t, "tokenURI", 3, "ipfs://QmThree")

	r := newTestReader(t, mock)
	pairs, err := r.ReadListingBatch(context.Background(), 1, 3)
	require.NoError(t, err)
	require.Len(t, pairs, 3)

	assert.False(t, pairs[0].Ok())
	assert.Error(t, pairs[0].URIErr)
	assert.NoError(t, pairs[0].DetailsErr)

	assert.False(t, pairs[1].Ok())
	assert.Error(t, pairs[1].DetailsErr)

	assert.True(t, pairs[2].Ok())
	assert.Equal(t, uint64(3), pairs[2].TokenID)
}

func TestReadListingBatch_InvalidRange(t *testing.T) {
	r := newTestReader(t, newMockCaller(t))

	_, err := r.ReadListingBatch(context.Background(), 0, 5)
	assert.Error(t, err)

	_, err = r.ReadListingBatch(context.Background(), 3, 2)
	assert.Error(t, err)
}
