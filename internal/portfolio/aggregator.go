// Package portfolio aggregates a wallet's positions across strategies and
// chains into portfolio-level totals and per-asset allocation.
package portfolio

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/lifecycle"
	"github.com/orbit-yield/internal/logging"
	"github.com/orbit-yield/internal/ratemath"
	"github.com/orbit-yield/internal/types"
	"github.com/orbit-yield/internal/valuation"
	"github.com/shopspring/decimal"
)

// PositionSource is the external source of raw positions for a wallet
type PositionSource interface {
	Positions(ctx context.Context, wallet string) ([]types.Position, error)
}

// StrategyInfo is the metadata a strategy contract exposes
type StrategyInfo struct {
	StrategyType types.StrategyType
	ProtocolName string
	APY          int64 // basis points
	Risk         int
	Bridge       string // bridge provider for cross-chain strategies, empty otherwise
}

// TokenInfo is the metadata a token contract exposes
type TokenInfo struct {
	Symbol   string
	Decimals int
}

// StrategyReader reads strategy and token metadata from the external
// contract-call interface
type StrategyReader interface {
	StrategyInfo(ctx context.Context, chain types.ChainID, strategy string) (*StrategyInfo, error)
	TokenInfo(ctx context.Context, chain types.ChainID, token string) (*TokenInfo, error)
}

// Snapshot is one point of a wallet's value history
type Snapshot struct {
	Wallet           string    `json:"wallet"`
	TotalValue       string    `json:"totalValue"`
	TotalAnnualYield string    `json:"totalAnnualYield"`
	PositionCount    int       `json:"positionCount"`
	TakenAt          time.Time `json:"takenAt"`
}

// HistoryStore persists portfolio value snapshots
type HistoryStore interface {
	Append(ctx context.Context, snap *Snapshot) error
	Range(ctx context.Context, wallet string, from, to time.Time) ([]*Snapshot, error)
}

// EnrichedPosition is a raw position plus derived display fields. The raw
// on-chain amount stays authoritative; everything else is recomputed per load.
type EnrichedPosition struct {
	types.Position
	AssetSymbol      string              `json:"assetSymbol"`
	AssetDecimals    int                 `json:"assetDecimals"`
	ProtocolName     string              `json:"protocolName"`
	StrategyType     types.StrategyType  `json:"strategyType"`
	APY              int64               `json:"apy"`
	Risk             int                 `json:"risk"`
	AmountFormatted  string              `json:"amountFormatted"`
	ValueUSD         string              `json:"valueUsd"`
	RewardsFormatted string              `json:"rewardsFormatted"`
	Warning          *types.ServiceError `json:"warning,omitempty"`

	value decimal.Decimal
	ok    bool
}

// Allocation is the share of portfolio value held in one asset
type Allocation struct {
	Value      string  `json:"value"`
	Percentage float64 `json:"percentage"`
}

// Portfolio is the aggregated view of a wallet's positions
type Portfolio struct {
	Wallet           string                `json:"wallet"`
	Positions        []EnrichedPosition    `json:"positions"`
	TotalValue       string                `json:"totalValue"`
	TotalAnnualYield string                `json:"totalAnnualYield"`
	Allocation       map[string]Allocation `json:"allocation"`
}

// Aggregator loads and aggregates portfolios
type Aggregator struct {
	positions  PositionSource
	strategies StrategyReader
	normalizer *valuation.Normalizer
	lifecycle  *lifecycle.Manager
	history    HistoryStore
}

// NewAggregator creates a portfolio aggregator. history may be nil when no
// snapshot store is configured.
func NewAggregator(
	positions PositionSource,
	strategies StrategyReader,
	normalizer *valuation.Normalizer,
	lifecycleManager *lifecycle.Manager,
	history HistoryStore,
) *Aggregator {
	return &Aggregator{
		positions:  positions,
		strategies: strategies,
		normalizer: normalizer,
		lifecycle:  lifecycleManager,
		history:    history,
	}
}

// LoadPortfolio fetches the wallet's raw positions and enriches them
// concurrently. A failure enriching one position degrades that position to a
// flagged entry excluded from totals; it never fails the whole portfolio.
func (a *Aggregator) LoadPortfolio(ctx context.Context, wallet string) (*Portfolio, error) {
	wallet = strings.ToLower(wallet)

	raw, err := a.positions.Positions(ctx, wallet)
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError("position source", err)
	}

	enriched := make([]EnrichedPosition, len(raw))
	var wg sync.WaitGroup
	for i := range raw {
		wg.Add(1)
		// Each enrichment writes only to its own slot, so the join
		// preserves input order without locking.
		go func(i int) {
			defer wg.Done()
			enriched[i] = a.enrich(ctx, raw[i])
		}(i)
	}
	wg.Wait()

	p := &Portfolio{
		Wallet:     wallet,
		Positions:  enriched,
		Allocation: make(map[string]Allocation),
	}
	a.aggregate(p)

	a.recordSnapshot(ctx, p)

	return p, nil
}

// enrich resolves strategy and token metadata for one position and values it
func (a *Aggregator) enrich(ctx context.Context, pos types.Position) EnrichedPosition {
	out := EnrichedPosition{Position: pos}

	// Strategy and token metadata are independent reads
	var (
		wg        sync.WaitGroup
		stratInfo *StrategyInfo
		tokenInfo *TokenInfo
		stratErr  error
		tokenErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		stratInfo, stratErr = a.strategies.StrategyInfo(ctx, pos.Chain, pos.StrategyAddress)
	}()
	go func() {
		defer wg.Done()
		tokenInfo, tokenErr = a.strategies.TokenInfo(ctx, pos.Chain, pos.AssetAddress)
	}()
	wg.Wait()

	if stratErr != nil {
		out.Warning = errors.PartialEnrichmentWarning(pos.StrategyAddress, stratErr)
		return out
	}
	if tokenErr != nil {
		out.Warning = errors.PartialEnrichmentWarning(pos.StrategyAddress, tokenErr)
		return out
	}

	val, err := a.normalizer.Normalize(ctx, pos.Amount, tokenInfo.Decimals, tokenInfo.Symbol)
	if err != nil {
		out.Warning = errors.PartialEnrichmentWarning(pos.StrategyAddress, err)
		return out
	}
	rewards, err := a.normalizer.NormalizeAmount(pos.RewardsAccrued, tokenInfo.Decimals)
	if err != nil {
		out.Warning = errors.PartialEnrichmentWarning(pos.StrategyAddress, err)
		return out
	}

	out.AssetSymbol = tokenInfo.Symbol
	out.AssetDecimals = tokenInfo.Decimals
	out.ProtocolName = stratInfo.ProtocolName
	out.StrategyType = stratInfo.StrategyType
	out.APY = stratInfo.APY
	out.Risk = stratInfo.Risk
	out.AmountFormatted = val.Amount.String()
	out.ValueUSD = val.Value.String()
	out.RewardsFormatted = rewards.String()
	if val.Warning != nil {
		out.Warning = val.Warning
	}
	out.value = val.Value
	out.ok = true
	return out
}

// aggregate computes totals and per-asset allocation over the successfully
// enriched positions
func (a *Aggregator) aggregate(p *Portfolio) {
	total := decimal.Zero
	yield := decimal.Zero
	bySymbol := make(map[string]decimal.Decimal)

	for i := range p.Positions {
		pos := &p.Positions[i]
		if !pos.ok {
			continue
		}
		total = total.Add(pos.value)
		yield = yield.Add(pos.value.Mul(decimal.NewFromInt(pos.APY)).Div(decimal.NewFromInt(10000)))
		bySymbol[pos.AssetSymbol] = bySymbol[pos.AssetSymbol].Add(pos.value)
	}

	p.TotalValue = total.String()
	p.TotalAnnualYield = yield.String()

	for symbol, value := range bySymbol {
		pct := 0.0
		if total.Sign() > 0 {
			pct, _ = value.Div(total).Mul(decimal.NewFromInt(100)).Float64()
		}
		p.Allocation[symbol] = Allocation{Value: value.String(), Percentage: pct}
	}
}

// recordSnapshot appends a value snapshot to the history store, best-effort
func (a *Aggregator) recordSnapshot(ctx context.Context, p *Portfolio) {
	if a.history == nil {
		return
	}
	count := 0
	for i := range p.Positions {
		if p.Positions[i].ok {
			count++
		}
	}
	snap := &Snapshot{
		Wallet:           p.Wallet,
		TotalValue:       p.TotalValue,
		TotalAnnualYield: p.TotalAnnualYield,
		PositionCount:    count,
		TakenAt:          time.Now().UTC(),
	}
	if err := a.history.Append(ctx, snap); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("wallet", p.Wallet).Warn("failed to record portfolio snapshot")
	}
}

// History returns the wallet's recorded value snapshots in the given range
func (a *Aggregator) History(ctx context.Context, wallet string, from, to time.Time) ([]*Snapshot, error) {
	if a.history == nil {
		return nil, errors.NewNotFoundError("portfolio history", wallet)
	}
	return a.history.Range(ctx, strings.ToLower(wallet), from, to)
}

// Withdraw delegates to the lifecycle manager, passing the strategy's bridge
// capability through, then reloads the portfolio after confirmed success.
// Balances are never mutated speculatively.
func (a *Aggregator) Withdraw(ctx context.Context, pos *lifecycle.ManagedPosition, amount string) (*Portfolio, error) {
	info, err := a.strategies.StrategyInfo(ctx, pos.Chain, pos.StrategyAddress)
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError("strategy metadata", err)
	}

	opp := &types.Opportunity{Bridge: info.Bridge}
	if err := a.lifecycle.Withdraw(ctx, pos, amount, opp); err != nil {
		return nil, err
	}
	return a.LoadPortfolio(ctx, pos.Owner)
}

// ClaimRewards delegates to the lifecycle manager and reloads the portfolio
// after confirmed success
func (a *Aggregator) ClaimRewards(ctx context.Context, pos *lifecycle.ManagedPosition) (*Portfolio, error) {
	if err := a.lifecycle.Claim(ctx, pos); err != nil {
		return nil, err
	}
	return a.LoadPortfolio(ctx, pos.Owner)
}

// EstimateEarnings projects compounded USD earnings for the portfolio's
// current value at its blended APY over durationDays
func (p *Portfolio) EstimateEarnings(durationDays int) (decimal.Decimal, error) {
	total, err := decimal.NewFromString(p.TotalValue)
	if err != nil || total.Sign() == 0 {
		return decimal.Zero, err
	}
	annual, err := decimal.NewFromString(p.TotalAnnualYield)
	if err != nil {
		return decimal.Zero, err
	}

	// Blended APY in percent terms
	blended, _ := annual.Div(total).Mul(decimal.NewFromInt(100)).Float64()
	amount, _ := total.Float64()
	earnings, err := ratemath.EstimatedEarnings(amount, blended, durationDays)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(earnings), nil
}
