package settings

import (
	"context"
	"encoding/json"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"slipguard/validation"
)

// DefaultProbeTimeout bounds a single liveness probe.
const DefaultProbeTimeout = 5 * time.Second

// ProbeChainID sends eth_chainId to rawURL and returns the reported chain id.
func ProbeChainID(ctx context.Context, rawURL string) (*big.Int, error) {
	raw, err := probe(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	var chainID hexutil.Big
	if err := json.Unmarshal(raw, &chainID); err != nil {
		return nil, errors.Wrap(err, "decode chain id")
	}
	return chainID.ToInt(), nil
}

// ValidateRpcURL accepts an endpoint only if it answers eth_chainId with a
// 2xx response carrying a non-null result. The result is not interpreted.
// Every failure is reported the same way.
func ValidateRpcURL(ctx context.Context, rawURL string) validation.Result {
	if strings.TrimSpace(rawURL) == "" {
		return validation.Invalid("RPC URL is required")
	}
	if _, err := probe(ctx, rawURL); err != nil {
		return validation.Invalid("RPC endpoint is not reachable")
	}
	return validation.Valid()
}

// probe calls eth_chainId and returns the raw result.
func probe(ctx context.Context, rawURL string) (json.RawMessage, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, errors.Wrap(err, "parse rpc url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.Errorf("unsupported rpc url scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("rpc url has no host")
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultProbeTimeout)
		defer cancel()
	}

	client, err := rpc.DialContext(ctx, parsed.String())
	if err != nil {
		return nil, errors.Wrap(err, "dial rpc")
	}
	defer client.Close()

	var result json.RawMessage
	if err := client.CallContext(ctx, &result, "eth_chainId"); err != nil {
		return nil, errors.Wrap(err, "eth_chainId")
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, errors.New("eth_chainId returned no result")
	}
	return result, nil
}
