// Package registry discovers yield opportunities across chains and exposes
// multi-criteria filtering, sorting and pagination over them.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/orbit-yield/internal/chains"
	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/logging"
	"github.com/orbit-yield/internal/retry"
	"github.com/orbit-yield/internal/types"
	"github.com/orbit-yield/internal/valuation"
)

// DiscoverySource returns the opportunities currently live on one chain.
// Results are immutable for a fetch cycle and replaced wholesale on the next.
type DiscoverySource interface {
	Opportunities(ctx context.Context, chain types.ChainID) ([]types.Opportunity, error)
}

// Registry aggregates opportunities from a discovery source and answers
// filtered queries. It holds no mutable state between calls; every Discover
// operates on what the source returns at call time.
type Registry struct {
	source      DiscoverySource
	chains      *chains.Registry
	normalizer  *valuation.Normalizer
	callTimeout time.Duration
	retryCfg    *retry.Config
}

// Options configures upstream call bounds for a Registry
type Options struct {
	CallTimeout time.Duration
	Retry       *retry.Config
}

// NewRegistry creates an opportunity registry
func NewRegistry(source DiscoverySource, chainRegistry *chains.Registry, normalizer *valuation.Normalizer, opts Options) *Registry {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.Retry == nil {
		opts.Retry = retry.DefaultConfig()
	}
	return &Registry{
		source:      source,
		chains:      chainRegistry,
		normalizer:  normalizer,
		callTimeout: opts.CallTimeout,
		retryCfg:    opts.Retry,
	}
}

// DiscoverResult is the response of one discovery query
type DiscoverResult struct {
	Opportunities []types.Opportunity `json:"data"`
	Pagination    types.Pagination    `json:"pagination"`
}

// Discover fetches opportunities, applies the criteria and returns one page.
// An unknown chain yields an empty result; an unknown sort field is an
// InvalidQuery error. Fetches fan out per chain and join in registry chain
// order, so output ordering is deterministic regardless of completion order.
func (r *Registry) Discover(ctx context.Context, criteria Criteria) (*DiscoverResult, error) {
	if err := criteria.normalize(); err != nil {
		return nil, err
	}

	targets := r.chains.IDs()
	if criteria.Chain != "" {
		if !r.chains.Has(criteria.Chain) {
			// Unknown chain is an empty result set, not an error
			return &DiscoverResult{
				Opportunities: []types.Opportunity{},
				Pagination:    types.Pagination{Page: criteria.Page, Limit: criteria.Limit},
			}, nil
		}
		targets = []types.ChainID{criteria.Chain}
	}

	all, err := r.fetchAll(ctx, targets)
	if err != nil {
		return nil, err
	}

	filtered := make([]types.Opportunity, 0, len(all))
	for i := range all {
		if criteria.matches(&all[i]) {
			filtered = append(filtered, all[i])
		}
	}

	sortOpportunities(filtered, criteria.SortBy, criteria.SortOrder)
	page, pagination := paginate(filtered, criteria.Page, criteria.Limit)

	r.enrich(ctx, page)

	return &DiscoverResult{Opportunities: page, Pagination: pagination}, nil
}

// fetchAll fans out one fetch per chain, each writing to its own slot, and
// joins the slots in chain order. Any chain failing after retries fails the
// whole call with a single aggregate error.
func (r *Registry) fetchAll(ctx context.Context, targets []types.ChainID) ([]types.Opportunity, error) {
	slots := make([][]types.Opportunity, len(targets))
	errs := make([]error, len(targets))

	var wg sync.WaitGroup
	for i, chain := range targets {
		wg.Add(1)
		go func(i int, chain types.ChainID) {
			defer wg.Done()
			errs[i] = retry.Do(ctx, r.retryCfg, func(ctx context.Context, _ int) error {
				callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
				defer cancel()
				ops, err := r.source.Opportunities(callCtx, chain)
				if err != nil {
					return err
				}
				slots[i] = ops
				return nil
			})
		}(i, chain)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, errors.NewUpstreamTimeoutError("opportunity discovery")
	}

	var failed []types.ChainID
	var cause error
	for i, err := range errs {
		if err != nil {
			failed = append(failed, targets[i])
			cause = err
		}
	}
	if len(failed) > 0 {
		return nil, errors.NewUpstreamUnavailableError(
			fmt.Sprintf("opportunity discovery on %v", failed), cause)
	}

	var all []types.Opportunity
	for _, ops := range slots {
		all = append(all, ops...)
	}
	return all, nil
}

// enrich attaches display values for TVL and minimum deposit. Price problems
// degrade to a per-opportunity warning, never a failure.
func (r *Registry) enrich(ctx context.Context, ops []types.Opportunity) {
	logger := logging.FromContext(ctx)
	for i := range ops {
		op := &ops[i]

		tvl, err := r.normalizer.Normalize(ctx, op.TVL, op.TVLDecimals, op.AssetSymbol)
		if err != nil {
			logger.WithError(err).WithField("opportunity", op.ID).Warn("skipping TVL enrichment")
			continue
		}
		op.TVLFormatted = tvl.Amount.String()
		op.TVLValueUSD = tvl.Value.String()
		op.Warning = tvl.Warning

		minDep, err := r.normalizer.NormalizeAmount(op.MinDeposit, op.TVLDecimals)
		if err != nil {
			logger.WithError(err).WithField("opportunity", op.ID).Warn("skipping minDeposit enrichment")
			continue
		}
		op.MinDepositFormatted = minDep.String()
	}
}
