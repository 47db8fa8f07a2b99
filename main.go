package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"golang.org/x/term"

	"slipguard/config"
	contractAbis "slipguard/contract_abis"
	limitOrders "slipguard/limit_orders"
	"slipguard/logging"
	"slipguard/metrics"
	rateLimit "slipguard/rate_limit"
	riskEngine "slipguard/risk_engine"
	rpcClient "slipguard/rpc_client"
	"slipguard/server"
	"slipguard/settings"
	"slipguard/storage"
	txState "slipguard/tx_state"
	"slipguard/validation"
	"slipguard/wallet"
)

const usage = `usage:
  slipguard serve -config slipguard.toml
  slipguard quote -config slipguard.toml -pair 0x.. -amount <base units> [-slippage 0.5] [-reverse]`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = serve(os.Args[2:])
	case "quote":
		err = quote(os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

// bootstrap loads the configuration, sets up logging and dials the provider.
func bootstrap(ctx context.Context, configPath string) (*zap.Logger, *rpcClient.Reader, error) {
	if err := config.Initialize(configPath); err != nil {
		return nil, nil, err
	}
	conf := config.Configuration

	logger, err := logging.Setup("slipguard", conf.Env, conf.Debug)
	if err != nil {
		return nil, nil, err
	}

	//initialize connections/data structures
	if err := rpcClient.Initialize(ctx, conf.RPCURL); err != nil {
		return nil, nil, err
	}

	reader, err := rpcClient.NewReader(rpcClient.HTTPClient, conf.MulticallAddress,
		rpcClient.WithRetryPolicy(rpcClient.RetryPolicy{
			MaxAttempts: conf.Retry.MaxAttempts,
			Backoff:     rpcClient.LinearBackoff(conf.Retry.Backoff.Duration),
		}),
		rpcClient.WithBatchSize(conf.Multicall.BatchSize),
		rpcClient.WithConcurrency(conf.Multicall.Concurrency),
		rpcClient.WithCacheTTL(conf.CacheTTL.Duration),
		rpcClient.WithLogger(logger),
		rpcClient.WithMetrics(metrics.Core()),
	)
	if err != nil {
		return nil, nil, err
	}
	return logger, reader, nil
}

func newEngine(reader *rpcClient.Reader, logger *zap.Logger) (*riskEngine.Engine, error) {
	conf := config.Configuration
	return riskEngine.NewEngine(reader,
		riskEngine.WithLiquidityModel(riskEngine.LiquidityModel{
			UsdPerUnit: conf.Risk.UsdPerUnit,
			Decimals:   conf.Risk.LiquidityDecimals,
		}),
		riskEngine.WithLogger(logger),
		riskEngine.WithMetrics(metrics.Core()),
	)
}

func serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "slipguard.toml", "path to the TOML configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, reader, err := bootstrap(ctx, *configPath)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	conf := config.Configuration

	session := wallet.NewSession(rpcClient.HTTPClient, rpcClient.HTTPClient, conf.ChainID)
	if !session.IsCorrectNetwork(ctx) {
		logger.Warn("provider is not on the configured chain", zap.Uint64("chainId", conf.ChainID))
	}

	engine, err := newEngine(reader, logger)
	if err != nil {
		return err
	}

	var kv storage.KeyValueStore = storage.NewMemoryStore()
	if conf.StoragePath != "" {
		db, err := storage.OpenLevelDB(conf.StoragePath)
		if err != nil {
			return err
		}
		defer db.Close()
		kv = db
	}

	settingsStore := settings.NewStore(kv, settings.WithLogger(logger))
	settingsStore.Load()
	defer settingsStore.Close() //nolint:errcheck

	tracker, err := txState.NewTracker(rpcClient.HTTPClient, txState.WithLogger(logger))
	if err != nil {
		return err
	}
	defer tracker.Close()

	book := limitOrders.NewBook(kv,
		limitOrders.WithLogger(logger),
		limitOrders.WithMetrics(metrics.Core()),
	)
	for _, address := range conf.Orders.WatchWallets {
		book.ForWallet(common.HexToAddress(address))
	}

	feed, err := limitOrders.NewReservePriceFeed(reader, conf.Tokens, conf.Pairs)
	if err != nil {
		return err
	}
	poller, err := limitOrders.NewPoller(feed, book, conf.Orders.PollInterval.Duration, logger)
	if err != nil {
		return err
	}

	//start listening for price changes
	go func() {
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("order poller stopped", zap.Error(err))
		}
	}()

	api := server.New(server.Config{
		Reader:  reader,
		Engine:  engine,
		Orders:  book,
		Tokens:  conf.Tokens,
		Limiter: rateLimit.NewLimiter(rateLimit.WithMetrics(metrics.Core())),
		Logger:  logger,

		Settings:     settingsStore,
		Preferences:  kv,
		Transactions: tracker,
	})
	httpServer := &http.Server{
		Addr:              conf.ListenAddress,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("address", conf.ListenAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

func quote(args []string) error {
	fs := flag.NewFlagSet("quote", flag.ExitOnError)
	configPath := fs.String("config", "slipguard.toml", "path to the TOML configuration")
	pairFlag := fs.String("pair", "", "pair address")
	amountFlag := fs.String("amount", "", "input amount in base units")
	slippage := fs.Float64("slippage", 0.5, "slippage tolerance in percent")
	reverse := fs.Bool("reverse", false, "swap token1 for token0")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if res := validation.ValidateAddress(*pairFlag); !res.IsValid {
		return errors.New(res.Error)
	}
	if res := validation.ValidateSlippage(*slippage); !res.IsValid {
		return errors.New(res.Error)
	}
	amountIn, err := uint256.FromDecimal(strings.TrimSpace(*amountFlag))
	if err != nil || amountIn.IsZero() {
		return fmt.Errorf("amount must be a positive integer in base units")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, reader, err := bootstrap(ctx, *configPath)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	pair := common.HexToAddress(*pairFlag)
	tokenIn, tokenOut, err := pairTokens(ctx, pair)
	if err != nil {
		return err
	}
	if *reverse {
		tokenIn, tokenOut = tokenOut, tokenIn
	}
	symbols := map[string]string{}
	if meta, err := reader.GetTokenMetadata(ctx, []common.Address{tokenIn, tokenOut}); err == nil {
		for key, info := range meta {
			symbols[key] = info.Symbol
		}
	}

	engine, err := newEngine(reader, logger)
	if err != nil {
		return err
	}
	result, err := engine.Quote(ctx, riskEngine.QuoteRequest{
		Pair:       pair,
		AmountIn:   amountIn,
		ZeroForOne: !*reverse,
	}, *slippage)
	if err != nil {
		return err
	}

	printQuote(result, label(symbols, tokenIn), label(symbols, tokenOut))
	return nil
}

// pairTokens reads token0 and token1 of a pair.
func pairTokens(ctx context.Context, pair common.Address) (common.Address, common.Address, error) {
	token0, err := rpcClient.Call(ctx, rpcClient.HTTPClient, contractAbis.UniswapV2PairABI, &pair, "token0")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token1, err := rpcClient.Call(ctx, rpcClient.HTTPClient, contractAbis.UniswapV2PairABI, &pair, "token1")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return token0[0].(common.Address), token1[0].(common.Address), nil
}

func label(symbols map[string]string, token common.Address) string {
	if symbol, ok := symbols[strings.ToLower(token.Hex())]; ok && symbol != "" {
		return symbol
	}
	return token.Hex()
}

func printQuote(q riskEngine.Quote, tokenIn, tokenOut string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("%s %s %s -> %s %s\n", bold("swap"), q.AmountIn.Dec(), tokenIn, q.ExpectedOutput.Dec(), tokenOut)
	fmt.Printf("%s %s %s (tolerance %.2f%%)\n", bold("minimum received"), q.MinimumOutput.Dec(), tokenOut, q.Tolerance)

	analysis := q.Analysis
	fmt.Printf("%s %s\n", bold("risk"), levelColor(analysis.RiskLevel).Sprint(strings.ToUpper(string(analysis.RiskLevel))))
	fmt.Printf("%s %.2f%%\n", bold("price impact"), analysis.PriceImpact)
	fmt.Printf("%s %.2f%%, deadline %s\n", bold("recommended slippage"), analysis.RecommendedSlippage, analysis.RecommendedDeadline)
	if analysis.Degraded {
		color.Yellow("reserves could not be read; analysis is degraded")
	}
	for _, warning := range analysis.Warnings {
		color.Yellow("  ! %s", warning)
	}
	if q.Validation.Message != "" {
		color.Yellow("%s", q.Validation.Message)
	}
}

func levelColor(level riskEngine.RiskLevel) *color.Color {
	switch level {
	case riskEngine.RiskLow:
		return color.New(color.FgGreen)
	case riskEngine.RiskMedium:
		return color.New(color.FgYellow)
	case riskEngine.RiskHigh:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgHiRed, color.Bold)
	}
}
