package registry

import (
	"sort"
	"strings"

	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/types"
	"github.com/shopspring/decimal"
)

// Sortable opportunity fields
const (
	SortByAPY        = "apy"
	SortByRisk       = "risk"
	SortByTVL        = "tvl"
	SortByMinDeposit = "minDeposit"
	SortByLockup     = "lockup"
)

// DefaultLimit and MaxLimit bound pagination windows
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Criteria describes a discovery query. Unset filters are no-ops; all supplied
// filters are ANDed.
type Criteria struct {
	Chain        types.ChainID
	MinAPY       *int64 // basis points, inclusive
	MaxAPY       *int64 // basis points, inclusive
	MaxRisk      *int   // inclusive
	StrategyType types.StrategyType
	SponsoredGas *bool
	Oracle       string // oracle provider exact match
	Bridge       string // bridge provider exact match
	Search       string // case-insensitive substring

	SortBy    string
	SortOrder types.SortOrder
	Page      int
	Limit     int
}

// normalize validates the criteria and fills defaults. An unknown sort field
// is an InvalidQuery error; an unknown chain is not (it yields an empty
// result at discovery time).
func (c *Criteria) normalize() error {
	switch c.SortBy {
	case "", SortByAPY, SortByRisk, SortByTVL, SortByMinDeposit, SortByLockup:
	default:
		return errors.NewInvalidQueryError("sortBy", "unknown sort field")
	}
	switch c.SortOrder {
	case "", types.SortAsc, types.SortDesc:
	default:
		return errors.NewInvalidQueryError("sortOrder", "must be 'asc' or 'desc'")
	}
	if c.SortOrder == "" {
		c.SortOrder = types.SortAsc
	}
	if c.Page < 1 {
		c.Page = 1
	}
	if c.Limit < 1 {
		c.Limit = DefaultLimit
	}
	if c.Limit > MaxLimit {
		c.Limit = MaxLimit
	}
	if c.MinAPY != nil && *c.MinAPY < 0 {
		return errors.NewInvalidQueryError("minApy", "must be non-negative")
	}
	if c.MaxAPY != nil && *c.MaxAPY < 0 {
		return errors.NewInvalidQueryError("maxApy", "must be non-negative")
	}
	if c.MaxRisk != nil && *c.MaxRisk < 0 {
		return errors.NewInvalidQueryError("maxRisk", "must be non-negative")
	}
	return nil
}

// matches applies every supplied predicate. Predicates are pure and
// composition is commutative, so evaluation order carries no meaning.
func (c *Criteria) matches(op *types.Opportunity) bool {
	if c.Chain != "" && op.Chain != c.Chain {
		return false
	}
	if c.MinAPY != nil && op.APY < *c.MinAPY {
		return false
	}
	if c.MaxAPY != nil && op.APY > *c.MaxAPY {
		return false
	}
	if c.MaxRisk != nil && op.Risk > *c.MaxRisk {
		return false
	}
	if c.StrategyType != "" && op.StrategyType != c.StrategyType {
		return false
	}
	if c.SponsoredGas != nil && op.SponsoredGas != *c.SponsoredGas {
		return false
	}
	if c.Oracle != "" && op.Oracle != c.Oracle {
		return false
	}
	if c.Bridge != "" && op.Bridge != c.Bridge {
		return false
	}
	if c.Search != "" && !searchMatches(op, c.Search) {
		return false
	}
	return true
}

// searchMatches does a case-insensitive substring search over the textual
// fields of an opportunity
func searchMatches(op *types.Opportunity, search string) bool {
	needle := strings.ToLower(search)
	for _, field := range []string{
		op.ID,
		op.ProtocolName,
		op.AssetSymbol,
		string(op.StrategyType),
	} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// sortOpportunities sorts in place, stable with respect to input order for
// ties. TVL and minDeposit sort on the exact normalized quantity.
func sortOpportunities(ops []types.Opportunity, sortBy string, order types.SortOrder) {
	if sortBy == "" {
		return
	}

	less := func(a, b *types.Opportunity) bool {
		switch sortBy {
		case SortByAPY:
			return a.APY < b.APY
		case SortByRisk:
			return a.Risk < b.Risk
		case SortByTVL:
			return rawDecimal(a.TVL, a.TVLDecimals).LessThan(rawDecimal(b.TVL, b.TVLDecimals))
		case SortByMinDeposit:
			return rawDecimal(a.MinDeposit, a.TVLDecimals).LessThan(rawDecimal(b.MinDeposit, b.TVLDecimals))
		case SortByLockup:
			return a.LockupPeriod < b.LockupPeriod
		}
		return false
	}

	sort.SliceStable(ops, func(i, j int) bool {
		if order == types.SortDesc {
			return less(&ops[j], &ops[i])
		}
		return less(&ops[i], &ops[j])
	})
}

// rawDecimal shifts a raw integer string for comparison; malformed values
// sort as zero rather than failing the query
func rawDecimal(raw string, decimals int) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d.Shift(int32(-decimals))
}

// paginate truncates post-filter, post-sort. Pages are 1-indexed.
func paginate(ops []types.Opportunity, page, limit int) ([]types.Opportunity, types.Pagination) {
	total := len(ops)
	pages := (total + limit - 1) / limit

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return ops[start:end], types.Pagination{
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: pages,
	}
}
