package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingCaller records every external call and can be told to fail
type recordingCaller struct {
	deposits  []string
	withdraws []withdrawCall
	claims    int
	fail      error
}

type withdrawCall struct {
	amount string
	bridge string
}

func (c *recordingCaller) Deposit(ctx context.Context, chain types.ChainID, strategy, owner, amount string) error {
	if c.fail != nil {
		return c.fail
	}
	c.deposits = append(c.deposits, amount)
	return nil
}

func (c *recordingCaller) Withdraw(ctx context.Context, chain types.ChainID, strategy, owner, amount, bridge string) error {
	if c.fail != nil {
		return c.fail
	}
	c.withdraws = append(c.withdraws, withdrawCall{amount: amount, bridge: bridge})
	return nil
}

func (c *recordingCaller) Claim(ctx context.Context, chain types.ChainID, strategy, owner string) error {
	if c.fail != nil {
		return c.fail
	}
	c.claims++
	return nil
}

func activePosition(amount string) *ManagedPosition {
	return &ManagedPosition{
		Position: types.Position{
			StrategyAddress: "0xstrategy",
			AssetAddress:    "0xasset",
			Owner:           "0xowner",
			Amount:          amount,
			RewardsAccrued:  "120",
			Chain:           "c1",
			EnteredAt:       time.Now().Add(-24 * time.Hour),
			LastUpdate:      time.Now().Add(-24 * time.Hour),
		},
		State: types.PositionActive,
	}
}

func TestDeposit(t *testing.T) {
	caller := &recordingCaller{}
	m := NewManager(caller)

	pos, err := m.Deposit(context.Background(), DepositParams{
		Chain: "c1", StrategyAddress: "0xstrategy", Owner: "0xowner", Amount: "1000000",
	})
	require.NoError(t, err)
	assert.Equal(t, types.PositionActive, pos.State)
	assert.Equal(t, "0", pos.RewardsAccrued)
	assert.Equal(t, []string{"1000000"}, caller.deposits)
}

func TestDeposit_CallFailure(t *testing.T) {
	caller := &recordingCaller{fail: errors.NewUpstreamUnavailableError("rpc", nil)}
	m := NewManager(caller)

	_, err := m.Deposit(context.Background(), DepositParams{Amount: "100"})
	require.Error(t, err)
}

func TestWithdraw_Partial(t *testing.T) {
	caller := &recordingCaller{}
	m := NewManager(caller)
	pos := activePosition("1000")

	err := m.Withdraw(context.Background(), pos, "400", &types.Opportunity{})
	require.NoError(t, err)
	assert.Equal(t, "600", pos.Amount)
	assert.Equal(t, types.PositionActive, pos.State)
	// No bridge flag on the opportunity: bridge identifier omitted
	require.Len(t, caller.withdraws, 1)
	assert.Empty(t, caller.withdraws[0].bridge)
}

func TestWithdraw_FullCloses(t *testing.T) {
	m := NewManager(&recordingCaller{})
	pos := activePosition("1000")

	err := m.Withdraw(context.Background(), pos, "1000", nil)
	require.NoError(t, err)
	assert.Equal(t, "0", pos.Amount)
	assert.Equal(t, types.PositionClosed, pos.State)
}

func TestWithdraw_BridgePassThrough(t *testing.T) {
	caller := &recordingCaller{}
	m := NewManager(caller)
	pos := activePosition("1000")

	opp := &types.Opportunity{Bridge: "x"}
	err := m.Withdraw(context.Background(), pos, "500", opp)
	require.NoError(t, err)
	require.Len(t, caller.withdraws, 1)
	assert.Equal(t, "x", caller.withdraws[0].bridge)
}

func TestWithdraw_FailureRestoresActive(t *testing.T) {
	caller := &recordingCaller{fail: errors.NewUpstreamTimeoutError("rpc")}
	m := NewManager(caller)
	pos := activePosition("1000")

	err := m.Withdraw(context.Background(), pos, "400", nil)
	require.Error(t, err)
	assert.Equal(t, "1000", pos.Amount, "amount untouched on failure")
	assert.Equal(t, types.PositionActive, pos.State)
}

func TestWithdraw_Validation(t *testing.T) {
	m := NewManager(&recordingCaller{})

	t.Run("exceeds balance", func(t *testing.T) {
		pos := activePosition("100")
		err := m.Withdraw(context.Background(), pos, "101", nil)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument))
	})

	t.Run("zero amount", func(t *testing.T) {
		pos := activePosition("100")
		err := m.Withdraw(context.Background(), pos, "0", nil)
		require.Error(t, err)
	})

	t.Run("closed position", func(t *testing.T) {
		pos := activePosition("100")
		pos.State = types.PositionClosed
		err := m.Withdraw(context.Background(), pos, "50", nil)
		assert.Equal(t, ErrInvalidTransition, err)
	})
}

func TestClaim(t *testing.T) {
	caller := &recordingCaller{}
	m := NewManager(caller)
	pos := activePosition("1000")
	before := pos.LastUpdate

	err := m.Claim(context.Background(), pos)
	require.NoError(t, err)
	assert.Equal(t, "0", pos.RewardsAccrued)
	assert.True(t, pos.LastUpdate.After(before))
	assert.Equal(t, types.PositionActive, pos.State)
	assert.Equal(t, 1, caller.claims)
}

func TestClaim_FailureRestoresActive(t *testing.T) {
	caller := &recordingCaller{fail: errors.NewUpstreamTimeoutError("rpc")}
	m := NewManager(caller)
	pos := activePosition("1000")

	err := m.Claim(context.Background(), pos)
	require.Error(t, err)
	assert.Equal(t, "120", pos.RewardsAccrued, "rewards untouched on failure")
	assert.Equal(t, types.PositionActive, pos.State)
}
