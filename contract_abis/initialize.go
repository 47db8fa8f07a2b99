package contractAbis

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var initOnce sync.Once

// Initialize parses the embedded ABIs. It is safe to call more than once.
func Initialize() {
	initOnce.Do(func() {
		ERC20ABI = mustParse("erc20", erc20JSON)
		UniswapV2PairABI = mustParse("uniswap v2 pair", uniswapV2PairJSON)
		Multicall3ABI = mustParse("multicall3", multicall3JSON)
	})
}

// The ABIs are compiled into the binary, a parse failure is a programming error.
func mustParse(name string, definition string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic("invalid " + name + " abi: " + err.Error())
	}
	return &parsed
}
