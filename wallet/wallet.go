package wallet

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/crypto/sha3"

	rpcClient "slipguard/rpc_client"
)

// Signer authorizes transactions on behalf of the connected account. It is
// always supplied by the wallet; nothing in this module creates one.
type Signer interface {
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// ChainIDReader reports the chain id of the connected network.
type ChainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// Context is the view of the user's wallet consumed by the core.
type Context interface {
	Address() common.Address
	IsConnected() bool
	IsCorrectNetwork(ctx context.Context) bool
	Signer() Signer
	Provider() rpcClient.ContractCaller
}

// Session is a Context backed by an RPC client.
type Session struct {
	mu        sync.RWMutex
	address   common.Address
	connected bool
	signer    Signer

	expectedChainID *big.Int
	chain           ChainIDReader
	provider        rpcClient.ContractCaller
}

var _ Context = (*Session)(nil)

func NewSession(provider rpcClient.ContractCaller, chain ChainIDReader, expectedChainID uint64) *Session {
	return &Session{
		provider:        provider,
		chain:           chain,
		expectedChainID: new(big.Int).SetUint64(expectedChainID),
	}
}

// Connect attaches an account and its signer. signer may be nil for
// read-only sessions.
func (s *Session) Connect(address common.Address, signer Signer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = address
	s.signer = signer
	s.connected = true
}

func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = common.Address{}
	s.signer = nil
	s.connected = false
}

func (s *Session) Address() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// IsCorrectNetwork asks the node for its chain id. Any error counts as the
// wrong network.
func (s *Session) IsCorrectNetwork(ctx context.Context) bool {
	if s.chain == nil {
		return false
	}
	chainID, err := s.chain.ChainID(ctx)
	if err != nil || chainID == nil {
		return false
	}
	return chainID.Cmp(s.expectedChainID) == 0
}

func (s *Session) Signer() Signer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signer
}

func (s *Session) Provider() rpcClient.ContractCaller {
	return s.provider
}

var hexAddressPattern = regexp.MustCompile("^0x[0-9a-fA-F]{40}$")

// ChecksumAddress converts a hex address to its EIP-55 mixed-case form.
func ChecksumAddress(address string) (string, error) {
	if !hexAddressPattern.MatchString(address) {
		return "", fmt.Errorf("given address '%s' is not a valid Ethereum Address", address)
	}
	address = strings.ToLower(strings.TrimPrefix(address, "0x"))

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(address))
	addressHash := fmt.Sprintf("%x", hasher.Sum(nil))

	var checksumAddress strings.Builder
	checksumAddress.WriteString("0x")
	for i := 0; i < len(address); i++ {
		nibble, err := strconv.ParseInt(string(addressHash[i]), 16, 32)
		if err != nil {
			return "", err
		}
		if nibble > 7 {
			checksumAddress.WriteString(strings.ToUpper(string(address[i])))
		} else {
			checksumAddress.WriteByte(address[i])
		}
	}
	return checksumAddress.String(), nil
}
