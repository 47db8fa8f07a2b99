package rpcClient

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	contractAbis "slipguard/contract_abis"
)

var testMulticall = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

type elementHandler func(callData []byte) (returnData []byte, success bool)

// fakeMulticall answers aggregate3 calls by dispatching each element to a
// per-target handler.
type fakeMulticall struct {
	mu        sync.Mutex
	handlers  map[common.Address]elementHandler
	calls     int
	failFirst int
	failAll   bool
}

func newFakeMulticall() *fakeMulticall {
	contractAbis.Initialize()
	return &fakeMulticall{handlers: make(map[common.Address]elementHandler)}
}

func (f *fakeMulticall) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.failAll || call <= f.failFirst {
		return nil, errors.New("connection reset")
	}
	if msg.To == nil || *msg.To != testMulticall {
		return nil, errors.New("unexpected target")
	}

	method := contractAbis.Multicall3ABI.Methods["aggregate3"]
	values, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	calls := *abi.ConvertType(values[0], new([]contractAbis.Multicall3Call)).(*[]contractAbis.Multicall3Call)

	results := make([]contractAbis.Multicall3Result, 0, len(calls))
	for _, c := range calls {
		f.mu.Lock()
		handler, ok := f.handlers[c.Target]
		f.mu.Unlock()
		if !ok {
			results = append(results, contractAbis.Multicall3Result{Success: false})
			continue
		}
		data, success := handler(c.CallData)
		results = append(results, contractAbis.Multicall3Result{Success: success, ReturnData: data})
	}
	return method.Outputs.Pack(results)
}

func (f *fakeMulticall) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeMulticall) handle(target common.Address, handler elementHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[target] = handler
}

func balanceHandler(amount int64) elementHandler {
	return func(callData []byte) ([]byte, bool) {
		out, err := contractAbis.ERC20ABI.Methods["balanceOf"].Outputs.Pack(big.NewInt(amount))
		return out, err == nil
	}
}

func ethBalanceHandler(amount int64) elementHandler {
	return func(callData []byte) ([]byte, bool) {
		out, err := contractAbis.Multicall3ABI.Methods["getEthBalance"].Outputs.Pack(big.NewInt(amount))
		return out, err == nil
	}
}

func reservesHandler(reserve0, reserve1 int64) elementHandler {
	return func(callData []byte) ([]byte, bool) {
		out, err := contractAbis.UniswapV2PairABI.Methods["getReserves"].Outputs.Pack(big.NewInt(reserve0), big.NewInt(reserve1), uint32(1))
		return out, err == nil
	}
}

func revertHandler() elementHandler {
	return func(callData []byte) ([]byte, bool) { return nil, false }
}

func metadataHandler(symbol, name string, decimals uint8) elementHandler {
	return func(callData []byte) ([]byte, bool) {
		method, err := contractAbis.ERC20ABI.MethodById(callData[:4])
		if err != nil {
			return nil, false
		}
		var out []byte
		switch method.Name {
		case "symbol":
			out, err = method.Outputs.Pack(symbol)
		case "name":
			out, err = method.Outputs.Pack(name)
		case "decimals":
			out, err = method.Outputs.Pack(decimals)
		}
		return out, err == nil
	}
}
