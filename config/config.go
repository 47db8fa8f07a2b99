package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Configuration holds the values loaded by Initialize.
var Configuration Config

// Multicall3 is deployed at the same address on every major EVM chain.
var DefaultMulticallAddress = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// Duration wraps time.Duration to support TOML strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "parse duration %q", raw)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	RPCURL           string          `toml:"rpc_url" validate:"required,url"`
	ChainID          uint64          `toml:"chain_id" validate:"gt=0"`
	MulticallAddress common.Address  `toml:"multicall_address"`
	ListenAddress    string          `toml:"listen" validate:"required"`
	Env              string          `toml:"env"`
	Debug            bool            `toml:"debug"`
	StoragePath      string          `toml:"storage_path"`
	CacheTTL         Duration        `toml:"cache_ttl"`
	Retry            RetryConfig     `toml:"retry"`
	Multicall        MulticallConfig `toml:"multicall"`
	Risk             RiskConfig      `toml:"risk"`
	Orders           OrdersConfig    `toml:"orders"`
	Tokens           []TokenInfo     `toml:"tokens" validate:"dive"`
	Pairs            []PairConfig    `toml:"pairs" validate:"dive"`
}

type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts" validate:"gte=1"`
	Backoff     Duration `toml:"backoff"`
}

type MulticallConfig struct {
	BatchSize   int `toml:"batch_size" validate:"gte=1"`
	Concurrency int `toml:"concurrency" validate:"gte=1"`
}

// RiskConfig tunes the liquidity heuristic of the risk engine.
type RiskConfig struct {
	UsdPerUnit        float64 `toml:"usd_per_unit" validate:"gt=0"`
	LiquidityDecimals uint8   `toml:"liquidity_decimals"`
}

type OrdersConfig struct {
	PollInterval Duration `toml:"poll_interval"`
	WatchWallets []string `toml:"watch_wallets"`
}

// TokenInfo is the static description of a tradable token.
type TokenInfo struct {
	Address  common.Address `toml:"address" json:"address"`
	Symbol   string         `toml:"symbol" json:"symbol" validate:"required"`
	Name     string         `toml:"name" json:"name"`
	Decimals uint8          `toml:"decimals" json:"decimals"`
	LogoRef  string         `toml:"logo" json:"logoRef,omitempty"`
	IsNative bool           `toml:"native" json:"isNative"`
}

// PairConfig describes a pool whose reserves back a price for a token pair.
type PairConfig struct {
	Address common.Address `toml:"address"`
	Token0  string         `toml:"token0" validate:"required"`
	Token1  string         `toml:"token1" validate:"required"`
}

// Initialize loads the configuration file into Configuration.
func Initialize(path string) error {
	conf, err := Load(path)
	if err != nil {
		return err
	}
	Configuration = conf
	return nil
}

// Load reads, defaults and validates a TOML configuration file.
func Load(path string) (Config, error) {
	var conf Config

	tomlBytes, err := os.ReadFile(path)
	if err != nil {
		return conf, errors.Wrap(err, "read config")
	}

	conf, err = Parse(string(tomlBytes))
	if err != nil {
		return conf, err
	}
	return conf, nil
}

// Parse decodes a TOML document, then applies defaults and validation.
func Parse(tomlString string) (Config, error) {
	var conf Config
	if _, err := toml.Decode(tomlString, &conf); err != nil {
		return conf, errors.Wrap(err, "decode config toml")
	}
	applyDefaults(&conf)
	if err := validate(conf); err != nil {
		return conf, err
	}
	return conf, nil
}

func applyDefaults(conf *Config) {
	if conf.ListenAddress == "" {
		conf.ListenAddress = ":7080"
	}
	if conf.MulticallAddress == (common.Address{}) {
		conf.MulticallAddress = DefaultMulticallAddress
	}
	if conf.CacheTTL.Duration == 0 {
		conf.CacheTTL.Duration = 30 * time.Second
	}
	if conf.Retry.MaxAttempts == 0 {
		conf.Retry.MaxAttempts = 3
	}
	if conf.Retry.Backoff.Duration == 0 {
		conf.Retry.Backoff.Duration = time.Second
	}
	if conf.Multicall.BatchSize == 0 {
		conf.Multicall.BatchSize = 100
	}
	if conf.Multicall.Concurrency == 0 {
		conf.Multicall.Concurrency = 4
	}
	if conf.Risk.UsdPerUnit == 0 {
		conf.Risk.UsdPerUnit = 2000
	}
	if conf.Risk.LiquidityDecimals == 0 {
		conf.Risk.LiquidityDecimals = 18
	}
	if conf.Orders.PollInterval.Duration == 0 {
		conf.Orders.PollInterval.Duration = 15 * time.Second
	}
}

func validate(conf Config) error {
	if err := validator.New().Struct(conf); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	seen := make(map[string]bool, len(conf.Tokens))
	for _, token := range conf.Tokens {
		symbol := strings.ToUpper(token.Symbol)
		if seen[symbol] {
			return errors.Errorf("duplicate token symbol %s", token.Symbol)
		}
		seen[symbol] = true
	}
	for _, pair := range conf.Pairs {
		if pair.Address == (common.Address{}) {
			return errors.Errorf("pair %s/%s is missing an address", pair.Token0, pair.Token1)
		}
		if !seen[strings.ToUpper(pair.Token0)] || !seen[strings.ToUpper(pair.Token1)] {
			return errors.Errorf("pair %s/%s references an unknown token", pair.Token0, pair.Token1)
		}
	}
	for _, wallet := range conf.Orders.WatchWallets {
		if !common.IsHexAddress(wallet) {
			return errors.Errorf("watch wallet %q is not a valid address", wallet)
		}
	}
	return nil
}

// TokenBySymbol looks up a configured token, ignoring case.
func (c Config) TokenBySymbol(symbol string) (TokenInfo, bool) {
	for _, token := range c.Tokens {
		if strings.EqualFold(token.Symbol, symbol) {
			return token, true
		}
	}
	return TokenInfo{}, false
}
