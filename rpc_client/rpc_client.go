package rpcClient

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// HTTPClient is the shared read-only client created by Initialize.
var HTTPClient *ethclient.Client

// ContractCaller is the read capability the adapter needs from a provider.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var _ ContractCaller = (*ethclient.Client)(nil)

// Dial connects to a JSON-RPC endpoint.
func Dial(ctx context.Context, httpUrl string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, httpUrl)
	if err != nil {
		return nil, errors.Wrap(err, "dial rpc endpoint")
	}
	return client, nil
}

// Call packs a single read, executes it against the latest block and
// unpacks the result.
func Call(ctx context.Context, caller ContractCaller, ABI *abi.ABI, to *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	callData, err := ABI.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}

	msg := ethereum.CallMsg{To: to, Data: callData}
	result, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s on %s", method, to.Hex())
	}

	values, err := ABI.Unpack(method, result)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", method)
	}

	return values, nil
}
