package txState

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// ReceiptFetcher is satisfied by ethclient.Client.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// SubmitFunc hands a transaction to the wallet and returns its hash.
type SubmitFunc func(ctx context.Context) (common.Hash, error)

var ErrReverted = errors.New("transaction reverted")

// Track drives m through a full transaction: pending while submit runs,
// confirming until a receipt appears, then success or error. The receipt is
// polled every interval. Cancelling ctx moves m to error.
func Track(ctx context.Context, m *Machine, submit SubmitFunc, receipts ReceiptFetcher, interval time.Duration) (*types.Receipt, error) {
	if err := m.SetPending(); err != nil {
		return nil, err
	}

	hash, err := submit(ctx)
	if err != nil {
		_ = m.SetError(err)
		return nil, errors.Wrap(err, "submit transaction")
	}
	if err := m.SetConfirming(hash); err != nil {
		return nil, err
	}

	receipt, err := waitForReceipt(ctx, receipts, hash, interval)
	if err != nil {
		_ = m.SetError(err)
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		_ = m.SetError(ErrReverted)
		return receipt, ErrReverted
	}
	if err := m.SetSuccess(); err != nil {
		return receipt, err
	}
	return receipt, nil
}

func waitForReceipt(ctx context.Context, receipts ReceiptFetcher, hash common.Hash, interval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		receipt, err := receipts.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return nil, errors.Wrapf(err, "fetch receipt %s", hash.Hex())
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
