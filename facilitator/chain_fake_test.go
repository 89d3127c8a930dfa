package facilitator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/x402gate/seller/chain"
)

// fakeChain satisfies both chainReader and chainWriter so verify_test.go and
// settle_test.go can drive Verifier/Settler without a live RPC endpoint.
type fakeChain struct {
	balance    *big.Int
	balanceErr error
	staticErr  error

	transferReceipt *chain.Receipt
	transferErr     error
	settleReceipt   *chain.Receipt
	settleErr       error
}

func (f *fakeChain) BalanceOf(ctx context.Context, asset, account common.Address) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	if f.balance != nil {
		return f.balance, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) StaticCallSettlePayment(ctx context.Context, escrowAdapter, asset common.Address, orderID string, from common.Address, value, validAfter, validBefore *big.Int, nonce common.Hash, v uint8, r, s [32]byte) error {
	return f.staticErr
}

func (f *fakeChain) SendTransferWithAuthorization(ctx context.Context, asset common.Address, from, to common.Address, value, validAfter, validBefore *big.Int, nonce common.Hash, v uint8, r, s [32]byte) (*chain.Receipt, error) {
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	return f.transferReceipt, nil
}

func (f *fakeChain) SendSettlePayment(ctx context.Context, escrowAdapter, asset common.Address, orderID string, from common.Address, value, validAfter, validBefore *big.Int, nonce common.Hash, v uint8, r, s [32]byte) (*chain.Receipt, error) {
	if f.settleErr != nil {
		return nil, f.settleErr
	}
	return f.settleReceipt, nil
}
