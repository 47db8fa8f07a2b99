package limitOrders

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"slipguard/config"
	"slipguard/orders"
	rpcClient "slipguard/rpc_client"
	swapRouter "slipguard/swap_router"
)

// PriceFeed publishes prices keyed by orders.PairKey.
type PriceFeed interface {
	Prices(ctx context.Context) (map[string]float64, error)
}

type PriceFeedFunc func(ctx context.Context) (map[string]float64, error)

func (f PriceFeedFunc) Prices(ctx context.Context) (map[string]float64, error) { return f(ctx) }

type ReserveReader interface {
	GetReserves(ctx context.Context, pairs []common.Address) (map[string]rpcClient.PairReserves, error)
}

type pool struct {
	address common.Address
	token0  config.TokenInfo
	token1  config.TokenInfo
}

// market groups the pools that trade the same two tokens.
type market struct {
	symbolA string
	symbolB string
	pools   []pool
}

// ReservePriceFeed derives prices from the reserves of configured pairs. When
// several pools trade the same tokens the most liquid one sets the price.
type ReservePriceFeed struct {
	reader  ReserveReader
	markets []*market
	pairs   []common.Address
}

var _ PriceFeed = (*ReservePriceFeed)(nil)

func NewReservePriceFeed(reader ReserveReader, tokens []config.TokenInfo, pairs []config.PairConfig) (*ReservePriceFeed, error) {
	if reader == nil {
		return nil, errors.New("reserve reader required")
	}
	bySymbol := make(map[string]config.TokenInfo, len(tokens))
	for _, token := range tokens {
		bySymbol[strings.ToUpper(token.Symbol)] = token
	}

	feed := &ReservePriceFeed{reader: reader}
	index := make(map[string]*market)
	for _, pair := range pairs {
		token0, ok0 := bySymbol[strings.ToUpper(pair.Token0)]
		token1, ok1 := bySymbol[strings.ToUpper(pair.Token1)]
		if !ok0 || !ok1 {
			return nil, errors.Errorf("pair %s references an unknown token", pair.Address.Hex())
		}
		key := marketKey(token0.Symbol, token1.Symbol)
		m, ok := index[key]
		if !ok {
			m = &market{symbolA: token0.Symbol, symbolB: token1.Symbol}
			index[key] = m
			feed.markets = append(feed.markets, m)
		}
		m.pools = append(m.pools, pool{address: pair.Address, token0: token0, token1: token1})
		feed.pairs = append(feed.pairs, pair.Address)
	}
	return feed, nil
}

// Prices returns both directions of every market whose reserves could be read.
func (f *ReservePriceFeed) Prices(ctx context.Context) (map[string]float64, error) {
	prices := make(map[string]float64)
	if len(f.pairs) == 0 {
		return prices, nil
	}
	reserves, err := f.reader.GetReserves(ctx, f.pairs)
	if err != nil {
		return nil, errors.Wrap(err, "read pool reserves")
	}

	for _, m := range f.markets {
		candidates := make([]rpcClient.PairReserves, 0, len(m.pools))
		pools := make(map[common.Address]pool, len(m.pools))
		for _, p := range m.pools {
			if r, ok := reserves[strings.ToLower(p.address.Hex())]; ok {
				candidates = append(candidates, r)
				pools[r.Pair] = p
			}
		}
		best, ok := swapRouter.MostLiquid(candidates)
		if !ok {
			continue
		}
		p := pools[best.Pair]
		priceOf0In1 := swapRouter.PriceOfAPerB(best.Reserve0, p.token0.Decimals, best.Reserve1, p.token1.Decimals)
		priceOf1In0 := swapRouter.PriceOfAPerB(best.Reserve1, p.token1.Decimals, best.Reserve0, p.token0.Decimals)
		if priceOf0In1 == 0 || priceOf1In0 == 0 {
			continue
		}
		prices[orders.PairKey(p.token0.Symbol, p.token1.Symbol)] = priceOf0In1
		prices[orders.PairKey(p.token1.Symbol, p.token0.Symbol)] = priceOf1In0
	}
	return prices, nil
}

func marketKey(a, b string) string {
	a, b = strings.ToUpper(a), strings.ToUpper(b)
	if a > b {
		a, b = b, a
	}
	return a + "/" + b
}
