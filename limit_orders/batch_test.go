package limitOrders

import (
	"testing"

	"github.com/stretchr/testify/require"

	"slipguard/orders"
)

func TestGroupByRoute(t *testing.T) {
	in := []orders.LimitOrder{
		{ID: "a", TokenIn: "WETH", TokenOut: "USDC", AmountIn: "10"},
		{ID: "b", TokenIn: "USDC", TokenOut: "WETH", AmountIn: "5"},
		{ID: "c", TokenIn: "WETH", TokenOut: "USDC", AmountIn: "2.5"},
		{ID: "d", TokenIn: "WETH", TokenOut: "USDC", AmountIn: "bad"},
		{ID: "e", TokenIn: "WETH", TokenOut: "USDC", AmountIn: "9.75"},
	}

	routes := GroupByRoute(in)
	require.Len(t, routes, 2)

	require.Equal(t, "USDC_WETH", routes[0].Key)
	require.Len(t, routes[0].Orders, 1)

	require.Equal(t, "WETH_USDC", routes[1].Key)
	ids := []string{}
	for _, o := range routes[1].Orders {
		ids = append(ids, o.ID)
	}
	require.Equal(t, []string{"c", "e", "a", "d"}, ids)
}

func TestGroupByRouteEmpty(t *testing.T) {
	require.Empty(t, GroupByRoute(nil))
}
