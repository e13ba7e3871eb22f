package marketplace

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// ErrTxReverted is returned when the access transaction mines with a
// failed status.
var ErrTxReverted = errors.New("transaction reverted")

// EthSender is the chain access the purchaser needs
type EthSender interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// PurchaserConfig holds purchaser configuration
type PurchaserConfig struct {
	Contract            common.Address
	PrivateKey          string
	ReceiptPollInterval time.Duration
	SettlementTimeout   time.Duration
}

// Purchaser signs and submits accessContract transactions and waits
// for them to settle.
type Purchaser struct {
	sender   EthSender
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	abi      abi.ABI

	pollInterval time.Duration
	timeout      time.Duration

	logger *zap.Logger
}

// NewPurchaser creates a purchaser from a hex-encoded private key
func NewPurchaser(sender EthSender, cfg *PurchaserConfig, logger *zap.Logger) (*Purchaser, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(MarketplaceABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse marketplace ABI: %w", err)
	}

	pollInterval := cfg.ReceiptPollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	timeout := cfg.SettlementTimeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}

	return &Purchaser{
		sender:       sender,
		contract:     cfg.Contract,
		key:          key,
		from:         crypto.PubkeyToAddress(key.PublicKey),
		abi:          parsed,
		pollInterval: pollInterval,
		timeout:      timeout,
		logger:       logger,
	}, nil
}

// From returns the purchasing account address
func (p *Purchaser) From() common.Address {
	return p.from
}

// Purchase submits accessContract(tokenID) with the usage fee attached
// and blocks until the transaction mines. A mined-but-reverted
// transaction returns ErrTxReverted.
func (p *Purchaser) Purchase(ctx context.Context, tokenID uint64, usageFee *big.Int) (*types.Receipt, error) {
	tx, err := p.buildAndSend(ctx, tokenID, usageFee)
	if err != nil {
		return nil, err
	}

	p.logger.Info("access transaction submitted",
		zap.Uint64("token_id", tokenID),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.String("usage_fee", usageFee.String()))

	return p.waitForReceipt(ctx, tx.Hash())
}

func (p *Purchaser) buildAndSend(ctx context.Context, tokenID uint64, usageFee *big.Int) (*types.Transaction, error) {
	if usageFee == nil {
		return nil, fmt.Errorf("usage fee cannot be nil")
	}

	data, err := p.abi.Pack("accessContract", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, fmt.Errorf("failed to pack accessContract: %w", err)
	}

	chainID, err := p.sender.GetChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	nonce, err := p.sender.PendingNonceAt(ctx, p.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := p.sender.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit, err := p.sender.EstimateGas(ctx, ethereum.CallMsg{
		From:  p.from,
		To:    &p.contract,
		Value: usageFee,
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx := types.NewTransaction(nonce, p.contract, usageFee, gasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), p.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := p.sender.SendTransaction(ctx, signedTx); err != nil {
		return nil, err
	}

	return signedTx, nil
}

func (p *Purchaser) waitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := p.sender.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, fmt.Errorf("tx %s: %w", hash.Hex(), ErrTxReverted)
			}
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to fetch receipt for %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
