package limitOrders

import (
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"slipguard/storage"
)

// Book keeps one connected Store per wallet so that concurrent callers for
// the same wallet share a single in-memory view.
type Book struct {
	mu     sync.Mutex
	kv     storage.KeyValueStore
	opts   []Option
	stores map[common.Address]*Store
}

func NewBook(kv storage.KeyValueStore, opts ...Option) *Book {
	return &Book{
		kv:     kv,
		opts:   opts,
		stores: make(map[common.Address]*Store),
	}
}

// ForWallet returns the store for wallet, loading and tracking it on first
// use.
func (b *Book) ForWallet(wallet common.Address) *Store {
	b.mu.Lock()
	defer b.mu.Unlock()

	if store, ok := b.stores[wallet]; ok {
		return store
	}
	store := NewStore(b.kv, b.opts...)
	store.Connect(wallet)
	b.stores[wallet] = store
	return store
}

// Lookup returns the store for wallet without tracking a new wallet unless it
// already has persisted orders. Read paths use it so that unknown addresses
// never reach the poller.
func (b *Book) Lookup(wallet common.Address) (*Store, bool) {
	b.mu.Lock()
	store, ok := b.stores[wallet]
	b.mu.Unlock()
	if ok {
		return store, true
	}

	if _, found, err := b.kv.Get(StorageKey(wallet)); err != nil || !found {
		return nil, false
	}
	return b.ForWallet(wallet), true
}

// Wallets lists the loaded wallets in address order.
func (b *Book) Wallets() []common.Address {
	b.mu.Lock()
	defer b.mu.Unlock()

	wallets := make([]common.Address, 0, len(b.stores))
	for wallet := range b.stores {
		wallets = append(wallets, wallet)
	}
	sort.Slice(wallets, func(i, j int) bool {
		return strings.ToLower(wallets[i].Hex()) < strings.ToLower(wallets[j].Hex())
	})
	return wallets
}

// UpdateOrderPrices applies prices to every loaded wallet and returns how
// many of them changed.
func (b *Book) UpdateOrderPrices(prices map[string]float64) int {
	changed := 0
	for _, wallet := range b.Wallets() {
		if b.ForWallet(wallet).UpdateOrderPrices(prices) {
			changed++
		}
	}
	return changed
}
