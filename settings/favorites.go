package settings

import (
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"slipguard/logging"
	"slipguard/storage"
)

const FavoritesKey = "favorites"

// Favorites is the user's ordered list of starred tokens.
type Favorites struct {
	mu     sync.Mutex
	kv     storage.KeyValueStore
	tokens []common.Address
	logger *zap.Logger
}

// LoadFavorites reads the stored list. Corrupt data yields an empty list.
func LoadFavorites(kv storage.KeyValueStore, logger *zap.Logger) *Favorites {
	f := &Favorites{kv: kv, tokens: []common.Address{}, logger: logging.OrDefault(logger)}
	raw, ok, err := kv.Get(FavoritesKey)
	if err != nil {
		f.logger.Warn("failed to read favorites", zap.Error(err))
		return f
	}
	if !ok {
		return f
	}
	var stored []string
	if err := json.Unmarshal(raw, &stored); err != nil {
		f.logger.Warn("discarding corrupt favorites", zap.Error(err))
		return f
	}
	seen := make(map[common.Address]bool, len(stored))
	for _, entry := range stored {
		if !common.IsHexAddress(entry) {
			continue
		}
		address := common.HexToAddress(entry)
		if !seen[address] {
			seen[address] = true
			f.tokens = append(f.tokens, address)
		}
	}
	return f
}

func (f *Favorites) List() []common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]common.Address(nil), f.tokens...)
}

func (f *Favorites) Contains(token common.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indexOf(token) >= 0
}

// Add appends token unless it is already present.
func (f *Favorites) Add(token common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.indexOf(token) >= 0 {
		return false, nil
	}
	f.tokens = append(f.tokens, token)
	return true, f.save()
}

func (f *Favorites) Remove(token common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.indexOf(token)
	if i < 0 {
		return false, nil
	}
	f.tokens = append(f.tokens[:i], f.tokens[i+1:]...)
	return true, f.save()
}

// Toggle adds or removes token and reports whether it is now a favorite.
func (f *Favorites) Toggle(token common.Address) (bool, error) {
	if f.Contains(token) {
		_, err := f.Remove(token)
		return false, err
	}
	_, err := f.Add(token)
	return true, err
}

func (f *Favorites) indexOf(token common.Address) int {
	for i, existing := range f.tokens {
		if existing == token {
			return i
		}
	}
	return -1
}

func (f *Favorites) save() error {
	entries := make([]string, len(f.tokens))
	for i, token := range f.tokens {
		entries[i] = token.Hex()
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return errors.Wrap(err, "encode favorites")
	}
	return errors.Wrap(f.kv.Set(FavoritesKey, raw), "save favorites")
}
