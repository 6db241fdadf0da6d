package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/registry"
	"github.com/orbit-yield/internal/types"
)

// OpportunitiesResponse is the envelope for opportunity listings
type OpportunitiesResponse struct {
	Success    bool                `json:"success"`
	Data       []types.Opportunity `json:"data"`
	Pagination types.Pagination    `json:"pagination"`
}

// handleListOpportunities serves GET /api/opportunities
func (s *Server) handleListOpportunities(w http.ResponseWriter, r *http.Request) {
	criteria, err := parseCriteria(r.URL.Query())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	result, err := s.opportunities.Discover(r.Context(), *criteria)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, OpportunitiesResponse{
		Success:    true,
		Data:       result.Opportunities,
		Pagination: result.Pagination,
	})
}

// parseCriteria builds discovery criteria from query parameters. Unparsable
// numeric or boolean values fail with InvalidQuery rather than silently
// dropping the filter.
func parseCriteria(query url.Values) (*registry.Criteria, error) {
	criteria := &registry.Criteria{
		Chain:        types.ChainID(query.Get("chain")),
		StrategyType: types.StrategyType(query.Get("strategyType")),
		Oracle:       query.Get("hasOracle"),
		Bridge:       query.Get("bridge"),
		Search:       query.Get("search"),
		SortBy:       query.Get("sortBy"),
		SortOrder:    types.SortOrder(query.Get("sortOrder")),
	}

	var err error
	if criteria.MinAPY, err = queryInt64(query, "minApy"); err != nil {
		return nil, err
	}
	if criteria.MaxAPY, err = queryInt64(query, "maxApy"); err != nil {
		return nil, err
	}

	maxRisk, err := queryInt64(query, "maxRisk")
	if err != nil {
		return nil, err
	}
	if maxRisk != nil {
		risk := int(*maxRisk)
		criteria.MaxRisk = &risk
	}

	if criteria.SponsoredGas, err = queryBool(query, "sponsoredGas"); err != nil {
		return nil, err
	}

	if criteria.Page, err = queryIntDefault(query, "page", 0); err != nil {
		return nil, err
	}
	if criteria.Limit, err = queryIntDefault(query, "limit", 0); err != nil {
		return nil, err
	}

	return criteria, nil
}

func queryInt64(query url.Values, key string) (*int64, error) {
	raw := query.Get(key)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.NewInvalidQueryError(key, "must be an integer")
	}
	return &value, nil
}

func queryIntDefault(query url.Values, key string, fallback int) (int, error) {
	raw := query.Get(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewInvalidQueryError(key, "must be an integer")
	}
	return value, nil
}

func queryBool(query url.Values, key string) (*bool, error) {
	raw := query.Get(key)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.NewInvalidQueryError(key, "must be true or false")
	}
	return &value, nil
}
