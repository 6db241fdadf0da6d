// Package lifecycle models the state transitions of a position and emits the
// external contract calls required for each transition. Write operations
// return only after the external call reports confirmation or failure; no
// partial state is ever persisted.
package lifecycle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/logging"
	"github.com/orbit-yield/internal/types"
)

// StrategyCaller is the external contract-call interface funds movement is
// delegated to. Implementations confirm or fail; they never partially apply.
type StrategyCaller interface {
	// Deposit moves amount (raw integer string) into the strategy
	Deposit(ctx context.Context, chain types.ChainID, strategy, owner, amount string) error
	// Withdraw releases amount from the strategy. A non-empty bridge
	// routes the funds through that bridge provider instead of releasing
	// directly on the source chain.
	Withdraw(ctx context.Context, chain types.ChainID, strategy, owner, amount, bridge string) error
	// Claim collects accrued rewards
	Claim(ctx context.Context, chain types.ChainID, strategy, owner string) error
}

// ErrInvalidTransition is returned when an operation is attempted from a state
// that does not allow it
var ErrInvalidTransition = errors.NewConflictError("position state does not allow this transition")

// ManagedPosition pairs a raw position with its lifecycle state
type ManagedPosition struct {
	types.Position
	State types.PositionState `json:"state"`
}

// Manager drives position state transitions
type Manager struct {
	caller StrategyCaller
}

// NewManager creates a lifecycle manager over the given contract-call interface
func NewManager(caller StrategyCaller) *Manager {
	return &Manager{caller: caller}
}

// DepositParams describes a new deposit
type DepositParams struct {
	Chain           types.ChainID
	StrategyAddress string
	AssetAddress    string
	Owner           string
	Amount          string
}

// Deposit opens a position. The position is Pending between submitting the
// call and its confirmation, Active after.
func (m *Manager) Deposit(ctx context.Context, params DepositParams) (*ManagedPosition, error) {
	if _, err := parseRaw(params.Amount); err != nil {
		return nil, err
	}

	pos := &ManagedPosition{
		Position: types.Position{
			StrategyAddress: params.StrategyAddress,
			AssetAddress:    params.AssetAddress,
			Owner:           params.Owner,
			Amount:          params.Amount,
			RewardsAccrued:  "0",
			Chain:           params.Chain,
		},
		State: types.PositionPending,
	}

	if err := m.caller.Deposit(ctx, params.Chain, params.StrategyAddress, params.Owner, params.Amount); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	pos.EnteredAt = now
	pos.LastUpdate = now
	pos.State = types.PositionActive
	return pos, nil
}

// Withdraw reduces a position by amount. A full withdraw closes the position;
// on failure the position returns to Active unchanged. When opp carries a
// bridge capability flag the bridge provider id is passed through to the
// external call.
func (m *Manager) Withdraw(ctx context.Context, pos *ManagedPosition, amount string, opp *types.Opportunity) error {
	if pos.State != types.PositionActive {
		return ErrInvalidTransition
	}

	withdraw, err := parseRaw(amount)
	if err != nil {
		return err
	}
	held, err := parseRaw(pos.Amount)
	if err != nil {
		return errors.NewInternalError("position holds malformed amount", err)
	}
	if withdraw.Sign() == 0 {
		return errors.NewInvalidArgumentError("amount", "must be positive")
	}
	if withdraw.Cmp(held) > 0 {
		return errors.NewInvalidArgumentError("amount", "exceeds position balance")
	}

	bridge := ""
	if opp != nil {
		bridge = opp.Bridge
	}

	pos.State = types.PositionWithdrawing
	if err := m.caller.Withdraw(ctx, pos.Chain, pos.StrategyAddress, pos.Owner, amount, bridge); err != nil {
		pos.State = types.PositionActive
		return err
	}

	remaining := new(big.Int).Sub(held, withdraw)
	pos.Amount = remaining.String()
	pos.LastUpdate = time.Now().UTC()
	if remaining.Sign() == 0 {
		pos.State = types.PositionClosed
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"strategy": pos.StrategyAddress,
			"owner":    pos.Owner,
		}).Info("position closed")
	} else {
		pos.State = types.PositionActive
	}
	return nil
}

// Claim collects accrued rewards, resetting them to zero and advancing the
// last-update timestamp. On failure the position returns to Active unchanged.
func (m *Manager) Claim(ctx context.Context, pos *ManagedPosition) error {
	if pos.State != types.PositionActive {
		return ErrInvalidTransition
	}

	pos.State = types.PositionClaiming
	if err := m.caller.Claim(ctx, pos.Chain, pos.StrategyAddress, pos.Owner); err != nil {
		pos.State = types.PositionActive
		return err
	}

	pos.RewardsAccrued = "0"
	pos.LastUpdate = time.Now().UTC()
	pos.State = types.PositionActive
	return nil
}

// parseRaw validates a raw decimal-integer string
func parseRaw(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, errors.NewInvalidArgumentError("amount", fmt.Sprintf("%q is not a non-negative integer", raw))
	}
	return v, nil
}
