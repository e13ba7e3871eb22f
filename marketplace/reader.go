package marketplace

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// EthCaller is the chain access the reader needs
type EthCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BatchCall(ctx context.Context, batch []rpc.BatchElem) error
}

// Listing is one marketplace token read from the contract
type Listing struct {
	TokenID  uint64         `json:"tokenId"`
	Creator  common.Address `json:"creator"`
	Tags     []string       `json:"tags"`
	UsageFee *big.Int       `json:"usageFee"`
	URI      string         `json:"uri"`
}

// PairResult holds the raw outcome of one details/tokenURI call pair.
// Either half can fail independently.
type PairResult struct {
	TokenID    uint64
	Creator    common.Address
	Tags       []string
	UsageFee   *big.Int
	URI        string
	DetailsErr error
	URIErr     error
}

// Ok reports whether both halves of the pair decoded successfully
func (p PairResult) Ok() bool {
	return p.DetailsErr == nil && p.URIErr == nil
}

// Reader performs read-only calls against the marketplace contract
type Reader struct {
	caller   EthCaller
	contract common.Address
	abi      abi.ABI
	logger   *zap.Logger
}

// NewReader creates a reader bound to the marketplace contract address
func NewReader(caller EthCaller, contract common.Address, logger *zap.Logger) (*Reader, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	parsed, err := abi.JSON(strings.NewReader(MarketplaceABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse marketplace ABI: %w", err)
	}

	return &Reader{
		caller:   caller,
		contract: contract,
		abi:      parsed,
		logger:   logger,
	}, nil
}

// Contract returns the bound contract address
func (r *Reader) Contract() common.Address {
	return r.contract
}

// TotalTokenIds returns the number of tokens ever minted on the contract.
// Token IDs run 1..N.
func (r *Reader) TotalTokenIds(ctx context.Context) (uint64, error) {
	data, err := r.abi.Pack("getTotalTokenIds")
	if err != nil {
		return 0, fmt.Errorf("failed to pack getTotalTokenIds: %w", err)
	}

	result, err := r.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &r.contract,
		Data: data,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("getTotalTokenIds call failed: %w", err)
	}

	var total *big.Int
	if err := r.abi.UnpackIntoInterface(&total, "getTotalTokenIds", result); err != nil {
		return 0, fmt.Errorf("failed to unpack getTotalTokenIds: %w", err)
	}
	if total == nil || !total.IsUint64() {
		return 0, fmt.Errorf("getTotalTokenIds returned out-of-range value")
	}

	return total.Uint64(), nil
}

// listingCall is one half of a token's call pair in a batch
type listingCall struct {
	tokenID uint64
	method  string
	result  hexutil.Bytes
	elem    rpc.BatchElem
}

// ReadListingBatch fetches details and tokenURI for every token in
// [first, last] as a single JSON-RPC batch. Results come back in
// ascending token ID order; each pair carries its own call errors so
// callers can drop partial tokens without losing the rest.
func (r *Reader) ReadListingBatch(ctx context.Context, first, last uint64) ([]PairResult, error) {
	if first == 0 || last < first {
		return nil, fmt.Errorf("invalid token range [%d, %d]", first, last)
	}

	count := last - first + 1
	calls := make([]*listingCall, 0, 2*count)
	batch := make([]rpc.BatchElem, 0, 2*count)

	for tokenID := first; tokenID <= last; tokenID++ {
		for _, method := range []string{"getContractDetails", "tokenURI"} {
			data, err := r.abi.Pack(method, new(big.Int).SetUint64(tokenID))
			if err != nil {
				return nil, fmt.Errorf("failed to pack %s(%d): %w", method, tokenID, err)
			}

			call := &listingCall{tokenID: tokenID, method: method}
			call.elem = rpc.BatchElem{
				Method: "eth_call",
				Args: []interface{}{
					map[string]interface{}{
						"to":   r.contract,
						"data": hexutil.Bytes(data),
					},
					"latest",
				},
				Result: &call.result,
			}
			calls = append(calls, call)
			batch = append(batch, call.elem)
		}
	}

	if err := r.caller.BatchCall(ctx, batch); err != nil {
		return nil, fmt.Errorf("listing batch [%d, %d] failed: %w", first, last, err)
	}

	// BatchCall fills errors on the copied elems, not the originals
	for i := range calls {
		calls[i].elem = batch[i]
	}

	results := make([]PairResult, 0, count)
	for i := 0; i < len(calls); i += 2 {
		details, uri := calls[i], calls[i+1]
		pair := PairResult{TokenID: details.tokenID}

		pair.Creator, pair.Tags, pair.UsageFee, pair.DetailsErr = r.decodeDetails(details)
		pair.URI, pair.URIErr = r.decodeURI(uri)

		if !pair.Ok() {
			r.logger.Warn("dropping partially failed listing pair",
				zap.Uint64("token_id", pair.TokenID),
				zap.Error(pair.DetailsErr),
				zap.Error(pair.URIErr))
		}
		results = append(results, pair)
	}

	return results, nil
}

func (r *Reader) decodeDetails(call *listingCall) (common.Address, []string, *big.Int, error) {
	if call.elem.Error != nil {
		return common.Address{}, nil, nil, fmt.Errorf("getContractDetails(%d) call failed: %w", call.tokenID, call.elem.Error)
	}

	out := struct {
		Creator  common.Address
		Tags     []string
		UsageFee *big.Int
	}{}
	if err := r.abi.UnpackIntoInterface(&out, "getContractDetails", call.result); err != nil {
		return common.Address{}, nil, nil, fmt.Errorf("failed to unpack getContractDetails(%d): %w", call.tokenID, err)
	}

	return out.Creator, out.Tags, out.UsageFee, nil
}

func (r *Reader) decodeURI(call *listingCall) (string, error) {
	if call.elem.Error != nil {
		return "", fmt.Errorf("tokenURI(%d) call failed: %w", call.tokenID, call.elem.Error)
	}

	var uri string
	if err := r.abi.UnpackIntoInterface(&uri, "tokenURI", call.result); err != nil {
		return "", fmt.Errorf("failed to unpack tokenURI(%d): %w", call.tokenID, err)
	}

	return uri, nil
}
