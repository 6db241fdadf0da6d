package portfolio

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/lifecycle"
	"github.com/orbit-yield/internal/types"
	"github.com/orbit-yield/internal/valuation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock collaborators

type mockPositionSource struct {
	positions map[string][]types.Position
	err       error
	calls     int
}

func (m *mockPositionSource) Positions(ctx context.Context, wallet string) ([]types.Position, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.positions[wallet], nil
}

type mockStrategyReader struct {
	mu         sync.Mutex
	strategies map[string]*StrategyInfo
	tokens     map[string]*TokenInfo
	failFor    string // strategy address whose reads fail
}

func (m *mockStrategyReader) StrategyInfo(ctx context.Context, chain types.ChainID, strategy string) (*StrategyInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strategy == m.failFor {
		return nil, errors.NewUpstreamTimeoutError("strategy read")
	}
	if info, ok := m.strategies[strategy]; ok {
		return info, nil
	}
	return nil, errors.NewNotFoundError("strategy", strategy)
}

func (m *mockStrategyReader) TokenInfo(ctx context.Context, chain types.ChainID, token string) (*TokenInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.tokens[token]; ok {
		return info, nil
	}
	return nil, errors.NewNotFoundError("token", token)
}

type mockHistoryStore struct {
	mu    sync.Mutex
	snaps []*Snapshot
}

func (m *mockHistoryStore) Append(ctx context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, snap)
	return nil
}

func (m *mockHistoryStore) Range(ctx context.Context, wallet string, from, to time.Time) ([]*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Snapshot
	for _, s := range m.snaps {
		if s.Wallet == wallet && !s.TakenAt.Before(from) && !s.TakenAt.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fixedPriceSource struct{ prices map[string]string }

func (f *fixedPriceSource) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if p, ok := f.prices[symbol]; ok {
		return decimal.RequireFromString(p), nil
	}
	return decimal.Zero, valuation.ErrPriceNotFound
}

type noopCaller struct{}

func (noopCaller) Deposit(ctx context.Context, chain types.ChainID, strategy, owner, amount string) error {
	return nil
}
func (noopCaller) Withdraw(ctx context.Context, chain types.ChainID, strategy, owner, amount, bridge string) error {
	return nil
}
func (noopCaller) Claim(ctx context.Context, chain types.ChainID, strategy, owner string) error {
	return nil
}

const wallet = "0xwallet"

func testPositions() []types.Position {
	return []types.Position{
		{StrategyAddress: "0xs1", AssetAddress: "0xa1", Owner: wallet, Amount: "1000000000", RewardsAccrued: "0", Chain: "c1"},
		{StrategyAddress: "0xs2", AssetAddress: "0xa2", Owner: wallet, Amount: "2000000000000000000", RewardsAccrued: "100000000000000000", Chain: "c1"},
	}
}

func newTestAggregator(source *mockPositionSource, reader *mockStrategyReader, history HistoryStore) *Aggregator {
	normalizer := valuation.NewNormalizer(&fixedPriceSource{prices: map[string]string{
		"USDC": "1",
		"ETH":  "2000",
	}})
	return NewAggregator(source, reader, normalizer, lifecycle.NewManager(noopCaller{}), history)
}

func defaultReader() *mockStrategyReader {
	return &mockStrategyReader{
		strategies: map[string]*StrategyInfo{
			"0xs1": {StrategyType: types.StrategyLending, ProtocolName: "Orbit Lend", APY: 950, Risk: 2},
			"0xs2": {StrategyType: types.StrategyStaking, ProtocolName: "Orbit Stake", APY: 1800, Risk: 4},
		},
		tokens: map[string]*TokenInfo{
			"0xa1": {Symbol: "USDC", Decimals: 6},
			"0xa2": {Symbol: "ETH", Decimals: 18},
		},
	}
}

func TestLoadPortfolio(t *testing.T) {
	source := &mockPositionSource{positions: map[string][]types.Position{wallet: testPositions()}}
	a := newTestAggregator(source, defaultReader(), nil)

	p, err := a.LoadPortfolio(context.Background(), wallet)
	require.NoError(t, err)
	require.Len(t, p.Positions, 2)

	// Input order preserved regardless of enrichment completion order
	usdc := p.Positions[0]
	eth := p.Positions[1]
	assert.Equal(t, "USDC", usdc.AssetSymbol)
	assert.Equal(t, "1000", usdc.AmountFormatted)
	assert.Equal(t, "1000", usdc.ValueUSD)
	assert.Equal(t, "ETH", eth.AssetSymbol)
	assert.Equal(t, "2", eth.AmountFormatted)
	assert.Equal(t, "4000", eth.ValueUSD)
	assert.Equal(t, "0.1", eth.RewardsFormatted)

	// totalValue = Σ value_i
	assert.Equal(t, "5000", p.TotalValue)
	// totalAnnualYield = Σ value_i * apy_i / 10000 = 1000*0.095 + 4000*0.18
	assert.Equal(t, "815", p.TotalAnnualYield)

	// Allocation percentages sum to 100
	require.Len(t, p.Allocation, 2)
	assert.Equal(t, "1000", p.Allocation["USDC"].Value)
	assert.InDelta(t, 20.0, p.Allocation["USDC"].Percentage, 1e-9)
	assert.InDelta(t, 80.0, p.Allocation["ETH"].Percentage, 1e-9)
	sum := p.Allocation["USDC"].Percentage + p.Allocation["ETH"].Percentage
	assert.InDelta(t, 100.0, sum, 1e-9)
}

func TestLoadPortfolio_Empty(t *testing.T) {
	source := &mockPositionSource{positions: map[string][]types.Position{}}
	a := newTestAggregator(source, defaultReader(), nil)

	p, err := a.LoadPortfolio(context.Background(), wallet)
	require.NoError(t, err)
	assert.Empty(t, p.Positions)
	assert.Equal(t, "0", p.TotalValue)
	assert.Empty(t, p.Allocation, "no divide-by-zero, allocation just empty")
}

func TestLoadPortfolio_PartialEnrichmentFailure(t *testing.T) {
	source := &mockPositionSource{positions: map[string][]types.Position{wallet: testPositions()}}
	reader := defaultReader()
	reader.failFor = "0xs2"
	a := newTestAggregator(source, reader, nil)

	p, err := a.LoadPortfolio(context.Background(), wallet)
	require.NoError(t, err, "a single failed enrichment must not fail the portfolio")
	require.Len(t, p.Positions, 2)

	failed := p.Positions[1]
	require.NotNil(t, failed.Warning)
	assert.Equal(t, errors.CodePartialEnrichmentFailure, failed.Warning.Code)

	// Failed position excluded from totals
	assert.Equal(t, "1000", p.TotalValue)
	assert.InDelta(t, 100.0, p.Allocation["USDC"].Percentage, 1e-9)
}

func TestLoadPortfolio_SourceFailure(t *testing.T) {
	source := &mockPositionSource{err: errors.NewUpstreamTimeoutError("positions")}
	a := newTestAggregator(source, defaultReader(), nil)

	_, err := a.LoadPortfolio(context.Background(), wallet)
	require.Error(t, err)
}

func TestLoadPortfolio_RecordsSnapshot(t *testing.T) {
	source := &mockPositionSource{positions: map[string][]types.Position{wallet: testPositions()}}
	history := &mockHistoryStore{}
	a := newTestAggregator(source, defaultReader(), history)

	_, err := a.LoadPortfolio(context.Background(), wallet)
	require.NoError(t, err)

	require.Len(t, history.snaps, 1)
	assert.Equal(t, wallet, history.snaps[0].Wallet)
	assert.Equal(t, "5000", history.snaps[0].TotalValue)
	assert.Equal(t, 2, history.snaps[0].PositionCount)

	snaps, err := a.History(context.Background(), wallet, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestWithdraw_ReloadsPortfolio(t *testing.T) {
	source := &mockPositionSource{positions: map[string][]types.Position{wallet: testPositions()}}
	a := newTestAggregator(source, defaultReader(), nil)

	pos := &lifecycle.ManagedPosition{
		Position: types.Position{
			StrategyAddress: "0xs1", AssetAddress: "0xa1",
			Owner: wallet, Amount: "1000000000", RewardsAccrued: "0", Chain: "c1",
		},
		State: types.PositionActive,
	}

	before := source.calls
	p, err := a.Withdraw(context.Background(), pos, "500000000")
	require.NoError(t, err)
	assert.Equal(t, "500000000", pos.Amount)
	assert.Equal(t, before+1, source.calls, "portfolio reloaded after confirmed withdraw")
	assert.NotNil(t, p)
}

func TestClaimRewards_ReloadsPortfolio(t *testing.T) {
	source := &mockPositionSource{positions: map[string][]types.Position{wallet: testPositions()}}
	a := newTestAggregator(source, defaultReader(), nil)

	pos := &lifecycle.ManagedPosition{
		Position: types.Position{
			StrategyAddress: "0xs1", AssetAddress: "0xa1",
			Owner: wallet, Amount: "1000000000", RewardsAccrued: "42", Chain: "c1",
		},
		State: types.PositionActive,
	}

	_, err := a.ClaimRewards(context.Background(), pos)
	require.NoError(t, err)
	assert.Equal(t, "0", pos.RewardsAccrued)
	assert.Equal(t, 1, source.calls)
}

func TestAllocation_SumsToFull(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("allocation percentages sum to 100 for any non-empty portfolio", prop.ForAll(
		func(amounts []int64) bool {
			positions := make([]types.Position, len(amounts))
			strategies := map[string]*StrategyInfo{}
			tokens := map[string]*TokenInfo{}
			prices := map[string]string{}
			for i, amt := range amounts {
				strategy := fmt.Sprintf("0xs%d", i)
				token := fmt.Sprintf("0xa%d", i)
				symbol := fmt.Sprintf("TKN%d", i)
				positions[i] = types.Position{
					StrategyAddress: strategy, AssetAddress: token,
					Owner: wallet, Amount: strconv.FormatInt(amt, 10),
					RewardsAccrued: "0", Chain: "c1",
				}
				strategies[strategy] = &StrategyInfo{StrategyType: types.StrategyLending, ProtocolName: "p", APY: 500, Risk: 1}
				tokens[token] = &TokenInfo{Symbol: symbol, Decimals: 6}
				prices[symbol] = "2"
			}

			source := &mockPositionSource{positions: map[string][]types.Position{wallet: positions}}
			reader := &mockStrategyReader{strategies: strategies, tokens: tokens}
			normalizer := valuation.NewNormalizer(&fixedPriceSource{prices: prices})
			a := NewAggregator(source, reader, normalizer, lifecycle.NewManager(noopCaller{}), nil)

			p, err := a.LoadPortfolio(context.Background(), wallet)
			if err != nil {
				return false
			}
			sum := 0.0
			for _, slice := range p.Allocation {
				sum += slice.Percentage
			}
			return math.Abs(sum-100.0) < 1e-6
		},
		gen.SliceOfN(5, gen.Int64Range(1, 1_000_000_000_000)),
	))

	properties.TestingRun(t)
}

func TestEstimateEarnings(t *testing.T) {
	p := &Portfolio{TotalValue: "1000", TotalAnnualYield: "180"}

	earnings, err := p.EstimateEarnings(365)
	require.NoError(t, err)
	got, _ := earnings.Float64()
	assert.InDelta(t, 180, got, 0.01)

	empty := &Portfolio{TotalValue: "0", TotalAnnualYield: "0"}
	earnings, err = empty.EstimateEarnings(365)
	require.NoError(t, err)
	assert.True(t, earnings.IsZero())
}
