package riskEngine

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"slipguard/logging"
	"slipguard/metrics"
	rpcClient "slipguard/rpc_client"
	swapRouter "slipguard/swap_router"
)

// ReserveReader is the slice of the read adapter the engine depends on.
type ReserveReader interface {
	GetReserves(ctx context.Context, pairs []common.Address) (map[string]rpcClient.PairReserves, error)
}

var _ ReserveReader = (*rpcClient.Reader)(nil)

// ErrPairUnavailable is returned by Quote when the pair's reserves could not be read.
var ErrPairUnavailable = errors.New("pair reserves unavailable")

type QuoteRequest struct {
	Pair     common.Address
	AmountIn *uint256.Int
	// AmountOut is the caller's expected output. When nil the engine derives it
	// from the reserves.
	AmountOut  *uint256.Int
	ZeroForOne bool
}

type Quote struct {
	AmountIn       *uint256.Int       `json:"-"`
	ExpectedOutput *uint256.Int       `json:"-"`
	MinimumOutput  *uint256.Int       `json:"-"`
	Tolerance      float64            `json:"tolerance"`
	Analysis       SlippageAnalysis   `json:"analysis"`
	Validation     SlippageValidation `json:"validation"`
}

type Engine struct {
	reader  ReserveReader
	model   LiquidityModel
	feeBps  uint64
	logger  *zap.Logger
	metrics *metrics.CoreMetrics
}

type Option func(*Engine)

func WithLiquidityModel(model LiquidityModel) Option {
	return func(e *Engine) { e.model = model }
}

func WithFeeBps(feeBps uint64) Option {
	return func(e *Engine) { e.feeBps = feeBps }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.CoreMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(reader ReserveReader, opts ...Option) (*Engine, error) {
	if reader == nil {
		return nil, errors.New("reserve reader required")
	}
	e := &Engine{
		reader: reader,
		model:  DefaultLiquidityModel(),
		feeBps: swapRouter.DefaultFeeBps,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.logger = logging.OrDefault(e.logger)
	return e, nil
}

// AnalyzeSlippageRisk reads the pair's reserves and classifies the trade.
// Read failures produce DegradedAnalysis instead of an error.
func (e *Engine) AnalyzeSlippageRisk(ctx context.Context, req QuoteRequest) SlippageAnalysis {
	reserves, err := e.fetchReserves(ctx, req.Pair)
	if err != nil {
		e.logger.Warn("risk analysis degraded", zap.String("pair", req.Pair.Hex()), zap.Error(err))
		analysis := DegradedAnalysis()
		e.metrics.ObserveRiskAnalysis(string(analysis.RiskLevel), true)
		return analysis
	}
	analysis := Analyze(reserves, req.AmountIn, e.model)
	e.metrics.ObserveRiskAnalysis(string(analysis.RiskLevel), analysis.Degraded)
	return analysis
}

// Quote prices an exact-in swap, analyses it, and derives the minimum output
// for the given tolerance.
func (e *Engine) Quote(ctx context.Context, req QuoteRequest, tolerance float64) (Quote, error) {
	if req.AmountIn == nil || req.AmountIn.IsZero() {
		return Quote{}, errors.New("amount in must be positive")
	}
	reserves, err := e.fetchReserves(ctx, req.Pair)
	if err != nil {
		return Quote{}, err
	}

	expected := req.AmountOut
	if expected == nil || expected.IsZero() {
		reserveIn, reserveOut := swapRouter.OrientReserves(reserves, req.ZeroForOne)
		expected = swapRouter.GetAmountOut(req.AmountIn, reserveIn, reserveOut, e.feeBps)
	}

	analysis := Analyze(reserves, req.AmountIn, e.model)
	e.metrics.ObserveRiskAnalysis(string(analysis.RiskLevel), analysis.Degraded)

	return Quote{
		AmountIn:       req.AmountIn,
		ExpectedOutput: expected,
		MinimumOutput:  CalculateSafeMinOutput(expected, tolerance, analysis.RiskLevel),
		Tolerance:      tolerance,
		Analysis:       analysis,
		Validation:     ValidateSlippage(tolerance, analysis),
	}, nil
}

func (e *Engine) fetchReserves(ctx context.Context, pair common.Address) (rpcClient.PairReserves, error) {
	all, err := e.reader.GetReserves(ctx, []common.Address{pair})
	if err != nil {
		return rpcClient.PairReserves{}, errors.Wrap(err, "read reserves")
	}
	reserves, ok := all[strings.ToLower(pair.Hex())]
	if !ok || reserves.Reserve0 == nil || reserves.Reserve1 == nil {
		return rpcClient.PairReserves{}, errors.Wrap(ErrPairUnavailable, pair.Hex())
	}
	return reserves, nil
}
