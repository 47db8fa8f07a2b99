package contractAbis

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var ERC20ABI *abi.ABI
var UniswapV2PairABI *abi.ABI
var Multicall3ABI *abi.ABI

// Multicall3Call mirrors the Call3 tuple accepted by aggregate3.
type Multicall3Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Multicall3Result mirrors the Result tuple returned by aggregate3.
type Multicall3Result struct {
	Success    bool
	ReturnData []byte
}

const erc20JSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

const uniswapV2PairJSON = `[
	{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const multicall3JSON = `[
	{"inputs":[{"components":[{"name":"target","type":"address"},{"name":"allowFailure","type":"bool"},{"name":"callData","type":"bytes"}],"name":"calls","type":"tuple[]"}],"name":"aggregate3","outputs":[{"components":[{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}],"name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"},
	{"inputs":[{"name":"addr","type":"address"}],"name":"getEthBalance","outputs":[{"name":"balance","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// DecodeAggregate3 unpacks the return data of an aggregate3 call.
func DecodeAggregate3(returnData []byte) (results []Multicall3Result, err error) {
	values, err := Multicall3ABI.Unpack("aggregate3", returnData)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("aggregate3 returned %d values", len(values))
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("convert aggregate3 results: %v", r)
		}
	}()
	results = *abi.ConvertType(values[0], new([]Multicall3Result)).(*[]Multicall3Result)
	return results, nil
}
