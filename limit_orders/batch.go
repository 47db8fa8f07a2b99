package limitOrders

import (
	"sort"

	"github.com/cockroachdb/apd/v3"

	"slipguard/orders"
)

// Route is a group of orders swapping the same tokenIn for the same tokenOut.
type Route struct {
	Key    string              `json:"key"`
	Orders []orders.LimitOrder `json:"orders"`
}

// GroupByRoute groups orders by tokenIn/tokenOut so that each group can be
// executed as one batch. Routes are sorted by key and the orders of a route
// by ascending amountIn.
func GroupByRoute(in []orders.LimitOrder) []Route {
	grouped := make(map[string][]orders.LimitOrder)
	for _, order := range in {
		key := order.PairKey()
		grouped[key] = append(grouped[key], order)
	}

	routes := make([]Route, 0, len(grouped))
	for key, group := range grouped {
		sort.SliceStable(group, func(i, j int) bool {
			return compareAmounts(group[i].AmountIn, group[j].AmountIn) < 0
		})
		routes = append(routes, Route{Key: key, Orders: group})
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Key < routes[j].Key })
	return routes
}

// compareAmounts orders decimal strings numerically. Unparsable amounts sort
// after every valid one.
func compareAmounts(a, b string) int {
	da, _, errA := apd.NewFromString(a)
	db, _, errB := apd.NewFromString(b)
	switch {
	case errA != nil && errB != nil:
		return 0
	case errA != nil:
		return 1
	case errB != nil:
		return -1
	}
	return da.Cmp(db)
}
