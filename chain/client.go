// Package chain wraps an EVM JSON-RPC endpoint with the handful of read and
// write operations the facilitator needs: balance reads, simulated (static)
// calls, and signed transaction broadcast with receipt confirmation.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Receipt is the subset of a transaction receipt the facilitator cares about.
type Receipt struct {
	TxHash      string
	Success     bool
	BlockNumber uint64
}

// Client is a relayer-keyed wrapper over an ethclient.Client. One Client
// serves every request the facilitator handles; it holds no per-request
// mutable state.
type Client struct {
	rpc        *ethclient.Client
	relayerKey *ecdsa.PrivateKey
	relayer    common.Address
	chainID    *big.Int
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithLogger sets the logger a Client reports transaction broadcast and
// receipt-wait outcomes to. Unset defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.log = logger
		return nil
	}
}

// Dial connects to rpcURL and derives the relayer address from relayerKeyHex.
func Dial(ctx context.Context, rpcURL string, relayerKeyHex string, chainID *big.Int, opts ...Option) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}

	relayerKeyHex = strings.TrimPrefix(relayerKeyHex, "0x")
	relayerKey, err := crypto.HexToECDSA(relayerKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid relayer key: %w", err)
	}

	c := &Client{
		rpc:        rpc,
		relayerKey: relayerKey,
		relayer:    crypto.PubkeyToAddress(relayerKey.PublicKey),
		chainID:    chainID,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c, nil
}

// RelayerAddress returns the address the relayer key signs transactions from.
func (c *Client) RelayerAddress() common.Address {
	return c.relayer
}

// ChainID returns the configured chain id.
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// NativeBalance returns the native-asset balance of address.
func (c *Client) NativeBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	balance, err := c.rpc.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read native balance: %w", err)
	}
	return balance, nil
}

// BalanceOf returns an ERC-20 asset's balanceOf(account).
func (c *Client) BalanceOf(ctx context.Context, asset, account common.Address) (*big.Int, error) {
	result, err := c.call(ctx, asset, balanceOfABI, FunctionBalanceOf, nil, account)
	if err != nil {
		return nil, err
	}
	balance, ok := result[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf return type %T", result[0])
	}
	return balance, nil
}

// StaticCallSettlePayment simulates settlePayment from the relayer address
// without broadcasting, surfacing any revert reason. Used by escrow-mode
// verify to catch an authorization that would fail on-chain before the nonce
// is ever spent.
func (c *Client) StaticCallSettlePayment(ctx context.Context, escrowAdapter, asset common.Address, orderID string, from common.Address, value, validAfter, validBefore *big.Int, nonce common.Hash, v uint8, r, s [32]byte) error {
	_, err := c.call(ctx, escrowAdapter, settlePaymentABI, FunctionSettlePayment, &c.relayer, asset, orderID, from, value, validAfter, validBefore, nonce, v, r, s)
	return err
}

// call performs an eth_call against contractAddress, optionally overriding
// the caller (msg.From) with from.
func (c *Client) call(ctx context.Context, contractAddress common.Address, abiJSON []byte, method string, from *common.Address, args ...interface{}) ([]interface{}, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiJSON)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse abi: %w", err)
	}

	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &contractAddress, Data: data}
	if from != nil {
		msg.From = *from
	}

	result, err := c.rpc.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, decodeRevert(method, err)
	}

	outputs, err := contractABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return outputs, nil
}

// SendTransferWithAuthorization broadcasts transferWithAuthorization on the
// asset contract using the relayer key and waits for one confirmation.
func (c *Client) SendTransferWithAuthorization(ctx context.Context, asset common.Address, from, to common.Address, value, validAfter, validBefore *big.Int, nonce common.Hash, v uint8, r, s [32]byte) (*Receipt, error) {
	return c.sendAndWait(ctx, asset, transferWithAuthorizationABI, FunctionTransferWithAuthorization, 200_000,
		from, to, value, validAfter, validBefore, nonce, v, r, s)
}

// SendSettlePayment broadcasts settlePayment on the escrow adapter using the
// relayer key and waits for one confirmation.
func (c *Client) SendSettlePayment(ctx context.Context, escrowAdapter, asset common.Address, orderID string, from common.Address, value, validAfter, validBefore *big.Int, nonce common.Hash, v uint8, r, s [32]byte) (*Receipt, error) {
	return c.sendAndWait(ctx, escrowAdapter, settlePaymentABI, FunctionSettlePayment, 500_000,
		asset, orderID, from, value, validAfter, validBefore, nonce, v, r, s)
}

func (c *Client) sendAndWait(ctx context.Context, contractAddress common.Address, abiJSON []byte, method string, gasLimit uint64, args ...interface{}) (*Receipt, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiJSON)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse abi: %w", err)
	}

	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	nonce, err := c.rpc.PendingNonceAt(ctx, c.relayer)
	if err != nil {
		return nil, fmt.Errorf("failed to read relayer nonce: %w", err)
	}
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &contractAddress,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.relayerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.rpc.SendTransaction(ctx, signedTx); err != nil {
		return nil, decodeRevert(method, err)
	}
	c.log.Info("chain: transaction broadcast", "method", method, "hash", signedTx.Hash().Hex())

	receipt, err := c.waitForReceipt(ctx, signedTx.Hash())
	if err != nil {
		return nil, err
	}
	if !receipt.Success {
		c.log.Warn("chain: transaction reverted", "method", method, "hash", receipt.TxHash)
	}
	return receipt, nil
}

// waitForReceipt polls for a transaction receipt until ctx is done.
func (c *Client) waitForReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return &Receipt{
				TxHash:      hash.Hex(),
				Success:     receipt.Status == types.ReceiptStatusSuccessful,
				BlockNumber: receipt.BlockNumber.Uint64(),
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// decodeRevert wraps err with the method name; go-ethereum's JSON-RPC client
// already surfaces the node's revert reason string in err.Error() when the
// backend supports it.
func decodeRevert(method string, err error) error {
	return fmt.Errorf("%s reverted: %w", method, err)
}
