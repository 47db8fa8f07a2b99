package rpcClient

import (
	"context"

	contractAbis "slipguard/contract_abis"
)

// Initialize parses the contract ABIs and dials the shared HTTP client.
func Initialize(ctx context.Context, httpUrl string) error {
	contractAbis.Initialize()

	client, err := Dial(ctx, httpUrl)
	if err != nil {
		return err
	}
	HTTPClient = client
	return nil
}
