// Package types provides common type definitions for the yield aggregation engine.
package types

import "time"

// ChainID identifies a supported blockchain network
type ChainID string

const (
	// ChainEthereum represents the Ethereum mainnet
	ChainEthereum ChainID = "ethereum"
	// ChainPolygon represents the Polygon network
	ChainPolygon ChainID = "polygon"
	// ChainArbitrum represents the Arbitrum network
	ChainArbitrum ChainID = "arbitrum"
	// ChainOptimism represents the Optimism network
	ChainOptimism ChainID = "optimism"
	// ChainBase represents the Base network
	ChainBase ChainID = "base"
	// ChainAvalanche represents the Avalanche C-Chain
	ChainAvalanche ChainID = "avalanche"
	// ChainMoonbeam represents the Moonbeam network
	ChainMoonbeam ChainID = "moonbeam"
)

// StrategyType classifies a yield strategy
type StrategyType string

const (
	// StrategyStaking represents single-asset staking strategies
	StrategyStaking StrategyType = "staking"
	// StrategyLending represents money-market lending strategies
	StrategyLending StrategyType = "lending"
	// StrategyLiquidity represents liquidity provision strategies
	StrategyLiquidity StrategyType = "liquidity"
	// StrategyCrossChain represents strategies that route deposits through a bridge
	StrategyCrossChain StrategyType = "cross-chain"
)

// WalletKind distinguishes the two wallet authentication models
type WalletKind string

const (
	// WalletSimpleKey is an externally owned account controlled by a private key
	WalletSimpleKey WalletKind = "simple-key"
	// WalletSmartContract is an account whose signature validity is decided on-chain
	WalletSmartContract WalletKind = "smart-contract"
)

// ValidWalletKind reports whether k names a known wallet kind
func ValidWalletKind(k WalletKind) bool {
	return k == WalletSimpleKey || k == WalletSmartContract
}

// PositionState represents the lifecycle state of a position
type PositionState string

const (
	// PositionPending exists between submitting a deposit call and its confirmation
	PositionPending PositionState = "pending"
	// PositionActive is the steady state where rewards accrue
	PositionActive PositionState = "active"
	// PositionWithdrawing brackets an in-flight withdraw call
	PositionWithdrawing PositionState = "withdrawing"
	// PositionClaiming brackets an in-flight claim call
	PositionClaiming PositionState = "claiming"
	// PositionClosed is reached when the deposited amount goes to zero
	PositionClosed PositionState = "closed"
)

// SortOrder represents a sort direction
type SortOrder string

const (
	// SortAsc sorts ascending
	SortAsc SortOrder = "asc"
	// SortDesc sorts descending
	SortDesc SortOrder = "desc"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Opportunity is a yield opportunity discovered on a chain.
// Raw monetary fields (TVL, MinDeposit) are decimal-integer strings paired with
// TVLDecimals; APY is integer basis points (10000 = 100%). An Opportunity is
// immutable once returned for a discovery cycle.
type Opportunity struct {
	ID              string       `json:"id"`
	StrategyAddress string       `json:"strategyAddress"`
	AssetAddress    string       `json:"assetAddress"`
	AssetSymbol     string       `json:"assetSymbol"`
	ProtocolName    string       `json:"protocolName"`
	StrategyType    StrategyType `json:"strategyType"`
	APY             int64        `json:"apy"`
	Risk            int          `json:"risk"`
	TVL             string       `json:"tvl"`
	TVLDecimals     int          `json:"tvlDecimals"`
	MinDeposit      string       `json:"minDeposit"`
	LockupPeriod    int64        `json:"lockupPeriod"`
	Chain           ChainID      `json:"chain"`

	// Capability flags
	SponsoredGas bool   `json:"sponsoredGas,omitempty"`
	Oracle       string `json:"oracle,omitempty"`
	Bridge       string `json:"bridge,omitempty"`

	// Display values computed by the valuation normalizer; never authoritative
	TVLFormatted        string        `json:"tvlFormatted,omitempty"`
	TVLValueUSD         string        `json:"tvlValueUsd,omitempty"`
	MinDepositFormatted string        `json:"minDepositFormatted,omitempty"`
	Warning             *ServiceError `json:"warning,omitempty"`
}

// Position is a user's raw on-chain position in a strategy.
// Amount and RewardsAccrued are decimal-integer strings; the raw on-chain
// amount is the source of truth, enriched fields live on EnrichedPosition.
type Position struct {
	StrategyAddress string    `json:"strategyAddress"`
	AssetAddress    string    `json:"assetAddress"`
	Owner           string    `json:"owner"`
	Amount          string    `json:"amount"`
	RewardsAccrued  string    `json:"rewardsAccrued"`
	Chain           ChainID   `json:"chain"`
	EnteredAt       time.Time `json:"enteredAt"`
	LastUpdate      time.Time `json:"lastUpdate"`
}

// WalletConnection is a wallet linked to a user account.
// Only address, kind and usage time ever leave the server; signing material
// never passes through this system.
type WalletConnection struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Address   string     `json:"address"`
	Kind      WalletKind `json:"kind"`
	Active    bool       `json:"active"`
	LastUsed  time.Time  `json:"lastUsed"`
	CreatedAt time.Time  `json:"createdAt"`
}

// User is an authenticated wallet holder
type User struct {
	ID            string             `json:"id"`
	WalletAddress string             `json:"walletAddress"`
	Connections   []WalletConnection `json:"connectedWallets,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"-"`
}

// Session is an authenticated session bound to a wallet
type Session struct {
	Token         string    `json:"sessionToken"`
	UserID        string    `json:"userId"`
	WalletAddress string    `json:"walletAddress"`
	IssuedAt      time.Time `json:"issuedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Pagination describes a paginated result window.
// Total is the post-filter, pre-pagination count.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}
