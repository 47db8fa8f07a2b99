package rpcClient

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"slipguard/config"
	contractAbis "slipguard/contract_abis"
	"slipguard/logging"
	"slipguard/metrics"
)

// NativeTokenAddress is the placeholder address for the chain's native coin.
// Its balance is read through Multicall3.getEthBalance.
var NativeTokenAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// ErrAllReadsFailed is returned when no element of a batch could be read.
var ErrAllReadsFailed = errors.New("all batched reads failed")

type PairReserves struct {
	Pair     common.Address `json:"pairAddress"`
	Reserve0 *uint256.Int   `json:"reserve0"`
	Reserve1 *uint256.Int   `json:"reserve1"`
}

// Clone returns a copy whose reserves do not alias p's.
func (p PairReserves) Clone() PairReserves {
	return PairReserves{Pair: p.Pair, Reserve0: cloneAmount(p.Reserve0), Reserve1: cloneAmount(p.Reserve1)}
}

// Total returns reserve0 + reserve1, saturating at the maximum uint256.
func (p PairReserves) Total() *uint256.Int {
	total, overflow := new(uint256.Int).AddOverflow(p.Reserve0, p.Reserve1)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return total
}

// Reader is the batched, cached read adapter over a JSON-RPC provider.
type Reader struct {
	caller      ContractCaller
	multicall   common.Address
	retry       RetryPolicy
	batchSize   int
	concurrency int
	ttl         time.Duration
	now         func() time.Time
	logger      *zap.Logger
	metrics     *metrics.CoreMetrics

	balances *Cache[map[string]*uint256.Int]
	reserves *Cache[map[string]PairReserves]
	metadata *Cache[map[string]config.TokenInfo]

	generation atomic.Uint64
}

type Option func(*Reader)

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(r *Reader) { r.retry = policy }
}

func WithBatchSize(size int) Option {
	return func(r *Reader) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

func WithConcurrency(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Reader) { r.ttl = ttl }
}

// WithClock replaces time.Now for cache freshness checks.
func WithClock(now func() time.Time) Option {
	return func(r *Reader) { r.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) { r.logger = l }
}

func WithMetrics(m *metrics.CoreMetrics) Option {
	return func(r *Reader) { r.metrics = m }
}

// NewReader builds a reader that batches through the Multicall3 contract at
// multicall.
func NewReader(caller ContractCaller, multicall common.Address, opts ...Option) (*Reader, error) {
	if caller == nil {
		return nil, errors.New("contract caller required")
	}
	contractAbis.Initialize()

	r := &Reader{
		caller:      caller,
		multicall:   multicall,
		retry:       DefaultRetryPolicy(),
		batchSize:   100,
		concurrency: 4,
		ttl:         DefaultCacheTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.logger = logging.OrDefault(r.logger)

	r.balances = NewCache[map[string]*uint256.Int](r.ttl, r.now)
	r.reserves = NewCache[map[string]PairReserves](r.ttl, r.now)
	r.metadata = NewCache[map[string]config.TokenInfo](r.ttl, r.now)
	return r, nil
}

// BalancesKey is the cache signature of a GetBalances request.
func BalancesKey(tokens []common.Address, owner common.Address) string {
	return signature("balances", owner.Hex(), tokens)
}

// ReservesKey is the cache signature of a GetReserves request.
func ReservesKey(pairs []common.Address) string {
	return signature("reserves", "", pairs)
}

// MetadataKey is the cache signature of a GetTokenMetadata request.
func MetadataKey(tokens []common.Address) string {
	return signature("metadata", "", tokens)
}

// Invalidate drops a cached result by its request signature.
func (r *Reader) Invalidate(key string) {
	r.balances.Delete(key)
	r.reserves.Delete(key)
	r.metadata.Delete(key)
}

// ClearCache drops every cached result.
func (r *Reader) ClearCache() {
	r.balances.Clear()
	r.reserves.Clear()
	r.metadata.Clear()
}

// GetBalances returns raw balances of owner keyed by lowercase token address.
// Tokens whose read fails are omitted.
func (r *Reader) GetBalances(ctx context.Context, tokens []common.Address, owner common.Address) (map[string]*uint256.Int, error) {
	key := BalancesKey(tokens, owner)
	if cached, ok := r.balances.Get(key); ok {
		r.metrics.ObserveCacheLookup("balances", true)
		return copyMap(cached, cloneAmount), nil
	}
	r.metrics.ObserveCacheLookup("balances", false)
	generation := r.generation.Add(1)

	calls := make([]readCall, 0, len(tokens))
	for _, token := range uniqueAddresses(tokens) {
		if token == NativeTokenAddress {
			data, err := contractAbis.Multicall3ABI.Pack("getEthBalance", owner)
			if err != nil {
				return nil, errors.Wrap(err, "pack getEthBalance")
			}
			calls = append(calls, readCall{key: lower(token), target: r.multicall, data: data, abiMethod: "getEthBalance", native: true})
			continue
		}
		data, err := contractAbis.ERC20ABI.Pack("balanceOf", owner)
		if err != nil {
			return nil, errors.Wrap(err, "pack balanceOf")
		}
		calls = append(calls, readCall{key: lower(token), target: token, data: data, abiMethod: "balanceOf"})
	}

	raw, err := r.aggregate(ctx, "balances", calls)
	if err != nil {
		return nil, err
	}

	balances := make(map[string]*uint256.Int, len(raw))
	for _, call := range calls {
		data, ok := raw[call.key]
		if !ok {
			continue
		}
		var values []interface{}
		var unpackErr error
		if call.native {
			values, unpackErr = contractAbis.Multicall3ABI.Unpack(call.abiMethod, data)
		} else {
			values, unpackErr = contractAbis.ERC20ABI.Unpack(call.abiMethod, data)
		}
		balance, convErr := firstUint256(values, unpackErr)
		if convErr != nil {
			r.warnElement("balances", call.key, convErr)
			continue
		}
		balances[call.key] = balance
	}

	if len(balances) == len(calls) {
		r.balances.SetGeneration(key, balances, generation)
	}
	return copyMap(balances, cloneAmount), nil
}

// GetReserves returns the reserves of each pair keyed by lowercase pair
// address. Pairs whose read fails are omitted.
func (r *Reader) GetReserves(ctx context.Context, pairs []common.Address) (map[string]PairReserves, error) {
	key := ReservesKey(pairs)
	if cached, ok := r.reserves.Get(key); ok {
		r.metrics.ObserveCacheLookup("reserves", true)
		return copyMap(cached, PairReserves.Clone), nil
	}
	r.metrics.ObserveCacheLookup("reserves", false)
	generation := r.generation.Add(1)

	data, err := contractAbis.UniswapV2PairABI.Pack("getReserves")
	if err != nil {
		return nil, errors.Wrap(err, "pack getReserves")
	}
	unique := uniqueAddresses(pairs)
	calls := make([]readCall, 0, len(unique))
	for _, pair := range unique {
		calls = append(calls, readCall{key: lower(pair), target: pair, data: data, abiMethod: "getReserves"})
	}

	raw, err := r.aggregate(ctx, "reserves", calls)
	if err != nil {
		return nil, err
	}

	reserves := make(map[string]PairReserves, len(raw))
	for _, call := range calls {
		returned, ok := raw[call.key]
		if !ok {
			continue
		}
		values, err := contractAbis.UniswapV2PairABI.Unpack("getReserves", returned)
		if err != nil || len(values) < 2 {
			r.warnElement("reserves", call.key, errors.Errorf("malformed getReserves result: %v", err))
			continue
		}
		reserve0, err0 := toUint256(values[0])
		reserve1, err1 := toUint256(values[1])
		if err0 != nil || err1 != nil {
			r.warnElement("reserves", call.key, errors.New("reserve is not an unsigned integer"))
			continue
		}
		reserves[call.key] = PairReserves{Pair: call.target, Reserve0: reserve0, Reserve1: reserve1}
	}

	if len(reserves) == len(calls) {
		r.reserves.SetGeneration(key, reserves, generation)
	}
	return copyMap(reserves, PairReserves.Clone), nil
}

// GetTokenMetadata reads symbol, name and decimals for each token keyed by
// lowercase token address. A token is omitted if any of its reads fail.
func (r *Reader) GetTokenMetadata(ctx context.Context, tokens []common.Address) (map[string]config.TokenInfo, error) {
	key := MetadataKey(tokens)
	if cached, ok := r.metadata.Get(key); ok {
		r.metrics.ObserveCacheLookup("metadata", true)
		return copyMap(cached, cloneTokenInfo), nil
	}
	r.metrics.ObserveCacheLookup("metadata", false)
	generation := r.generation.Add(1)

	unique := uniqueAddresses(tokens)
	metadata := make(map[string]config.TokenInfo, len(unique))
	methods := []string{"symbol", "name", "decimals"}
	calls := make([]readCall, 0, len(unique)*len(methods))
	for _, token := range unique {
		if token == NativeTokenAddress {
			metadata[lower(token)] = config.TokenInfo{Address: token, Symbol: "ETH", Name: "Ether", Decimals: 18, IsNative: true}
			continue
		}
		for _, method := range methods {
			data, err := contractAbis.ERC20ABI.Pack(method)
			if err != nil {
				return nil, errors.Wrapf(err, "pack %s", method)
			}
			calls = append(calls, readCall{key: lower(token) + "|" + method, target: token, data: data, abiMethod: method})
		}
	}

	if len(calls) > 0 {
		raw, err := r.aggregate(ctx, "metadata", calls)
		if err != nil {
			return nil, err
		}
		for _, token := range unique {
			if token == NativeTokenAddress {
				continue
			}
			info, err := decodeMetadata(token, raw)
			if err != nil {
				r.warnElement("metadata", lower(token), err)
				continue
			}
			metadata[lower(token)] = info
		}
	}

	if len(metadata) == len(unique) {
		r.metadata.SetGeneration(key, metadata, generation)
	}
	return copyMap(metadata, cloneTokenInfo), nil
}

type readCall struct {
	key       string
	target    common.Address
	data      []byte
	abiMethod string
	native    bool
}

// aggregate executes calls through aggregate3 in concurrent chunks. Results
// are keyed by readCall.key; failed elements and failed chunks are omitted.
func (r *Reader) aggregate(ctx context.Context, method string, calls []readCall) (map[string][]byte, error) {
	results := make(map[string][]byte, len(calls))
	if len(calls) == 0 {
		return results, nil
	}

	chunks := chunkCalls(calls, r.batchSize)

	var (
		mu           sync.Mutex
		failedChunks int
		lastErr      error
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)
	for _, chunk := range chunks {
		chunk := chunk
		group.Go(func() error {
			chunkResults, err := r.aggregateChunk(groupCtx, chunk)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failedChunks++
				lastErr = err
				r.metrics.ObserveMulticallFailure(method, "batch")
				r.logger.Warn("multicall batch failed",
					zap.String("method", method),
					zap.Int("calls", len(chunk)),
					zap.Error(err))
				return nil
			}
			for i, result := range chunkResults {
				if !result.Success {
					r.warnElement(method, chunk[i].key, errors.New("call reverted"))
					continue
				}
				results[chunk[i].key] = result.ReturnData
			}
			return nil
		})
	}
	_ = group.Wait()

	if failedChunks == len(chunks) {
		return nil, errors.Wrap(ErrAllReadsFailed, lastErr.Error())
	}
	return results, nil
}

func (r *Reader) aggregateChunk(ctx context.Context, chunk []readCall) ([]contractAbis.Multicall3Result, error) {
	calls := make([]contractAbis.Multicall3Call, 0, len(chunk))
	for _, call := range chunk {
		calls = append(calls, contractAbis.Multicall3Call{Target: call.target, AllowFailure: true, CallData: call.data})
	}
	callData, err := contractAbis.Multicall3ABI.Pack("aggregate3", calls)
	if err != nil {
		return nil, errors.Wrap(err, "pack aggregate3")
	}

	var returned []byte
	err = Retry(ctx, r.retry, func(ctx context.Context) error {
		out, callErr := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.multicall, Data: callData}, nil)
		if callErr != nil {
			return callErr
		}
		returned = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	results, err := contractAbis.DecodeAggregate3(returned)
	if err != nil {
		return nil, errors.Wrap(err, "decode aggregate3")
	}
	if len(results) != len(chunk) {
		return nil, errors.Errorf("aggregate3 returned %d results for %d calls", len(results), len(chunk))
	}
	return results, nil
}

func (r *Reader) warnElement(method, key string, err error) {
	r.metrics.ObserveMulticallFailure(method, "element")
	r.logger.Warn("batched read failed, omitting element",
		zap.String("method", method),
		zap.String("target", key),
		zap.Error(err))
}

func decodeMetadata(token common.Address, raw map[string][]byte) (config.TokenInfo, error) {
	info := config.TokenInfo{Address: token}
	prefix := lower(token) + "|"

	symbolData, ok := raw[prefix+"symbol"]
	if !ok {
		return info, errors.New("symbol unavailable")
	}
	values, err := contractAbis.ERC20ABI.Unpack("symbol", symbolData)
	if err != nil || len(values) == 0 {
		return info, errors.Errorf("decode symbol: %v", err)
	}
	info.Symbol, _ = values[0].(string)

	nameData, ok := raw[prefix+"name"]
	if !ok {
		return info, errors.New("name unavailable")
	}
	values, err = contractAbis.ERC20ABI.Unpack("name", nameData)
	if err != nil || len(values) == 0 {
		return info, errors.Errorf("decode name: %v", err)
	}
	info.Name, _ = values[0].(string)

	decimalsData, ok := raw[prefix+"decimals"]
	if !ok {
		return info, errors.New("decimals unavailable")
	}
	values, err = contractAbis.ERC20ABI.Unpack("decimals", decimalsData)
	if err != nil || len(values) == 0 {
		return info, errors.Errorf("decode decimals: %v", err)
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return info, errors.New("decimals is not uint8")
	}
	info.Decimals = decimals
	return info, nil
}

func firstUint256(values []interface{}, err error) (*uint256.Int, error) {
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errors.New("empty result")
	}
	return toUint256(values[0])
}

func toUint256(value interface{}) (*uint256.Int, error) {
	asBig, ok := value.(*big.Int)
	if !ok || asBig == nil {
		return nil, errors.Errorf("unexpected value type %T", value)
	}
	converted, overflow := uint256.FromBig(asBig)
	if overflow || asBig.Sign() < 0 {
		return nil, errors.New("value does not fit in uint256")
	}
	return converted, nil
}

func chunkCalls(calls []readCall, size int) [][]readCall {
	if size <= 0 {
		size = len(calls)
	}
	chunks := make([][]readCall, 0, (len(calls)+size-1)/size)
	for start := 0; start < len(calls); start += size {
		end := start + size
		if end > len(calls) {
			end = len(calls)
		}
		chunks = append(chunks, calls[start:end])
	}
	return chunks
}

func signature(method, owner string, addresses []common.Address) string {
	parts := make([]string, 0, len(addresses))
	for _, address := range uniqueAddresses(addresses) {
		parts = append(parts, lower(address))
	}
	sort.Strings(parts)
	return method + "|" + strings.ToLower(owner) + "|" + strings.Join(parts, ",")
}

func uniqueAddresses(addresses []common.Address) []common.Address {
	seen := make(map[common.Address]bool, len(addresses))
	unique := make([]common.Address, 0, len(addresses))
	for _, address := range addresses {
		if seen[address] {
			continue
		}
		seen[address] = true
		unique = append(unique, address)
	}
	return unique
}

func lower(address common.Address) string {
	return strings.ToLower(address.Hex())
}

// copyMap hands callers values that share no memory with the cache.
func copyMap[V any](in map[string]V, clone func(V) V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = clone(v)
	}
	return out
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return new(uint256.Int).Set(v)
}

func cloneTokenInfo(v config.TokenInfo) config.TokenInfo { return v }
