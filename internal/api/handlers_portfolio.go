package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/lifecycle"
	"github.com/orbit-yield/internal/portfolio"
	"github.com/orbit-yield/internal/types"
)

// PortfolioResponse is the envelope for portfolio reads
type PortfolioResponse struct {
	Success bool                 `json:"success"`
	Data    *portfolio.Portfolio `json:"data"`
}

// handleGetPortfolio serves GET /api/portfolio/{address}
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	loaded, err := s.portfolios.LoadPortfolio(r.Context(), address)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PortfolioResponse{Success: true, Data: loaded})
}

// HistoryResponse is the envelope for portfolio history reads
type HistoryResponse struct {
	Success bool                  `json:"success"`
	Data    []*portfolio.Snapshot `json:"data"`
}

// handlePortfolioHistory serves GET /api/portfolio/{address}/history.
// The window defaults to the last 30 days.
func (s *Server) handlePortfolioHistory(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)

	var err error
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			respondServiceError(w, errors.NewInvalidQueryError("from", "must be RFC3339"))
			return
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			respondServiceError(w, errors.NewInvalidQueryError("to", "must be RFC3339"))
			return
		}
	}
	if to.Before(from) {
		respondServiceError(w, errors.NewInvalidQueryError("to", "must not precede from"))
		return
	}

	snapshots, err := s.portfolios.History(r.Context(), address, from, to)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, HistoryResponse{Success: true, Data: snapshots})
}

type withdrawRequest struct {
	StrategyAddress string `json:"strategyAddress"`
	Amount          string `json:"amount"`
}

// handleWithdraw serves POST /api/portfolio/{address}/withdraw
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	var req withdrawRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, err)
		return
	}
	if req.StrategyAddress == "" || req.Amount == "" {
		respondServiceError(w, errors.NewInvalidArgumentError("body", "strategyAddress and amount are required"))
		return
	}

	pos, err := s.findPosition(r, address, req.StrategyAddress)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	updated, err := s.portfolios.Withdraw(r.Context(), pos, req.Amount)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PortfolioResponse{Success: true, Data: updated})
}

type claimRequest struct {
	StrategyAddress string `json:"strategyAddress"`
}

// handleClaim serves POST /api/portfolio/{address}/claim
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	var req claimRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, err)
		return
	}
	if req.StrategyAddress == "" {
		respondServiceError(w, errors.NewInvalidArgumentError("strategyAddress", "is required"))
		return
	}

	pos, err := s.findPosition(r, address, req.StrategyAddress)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	updated, err := s.portfolios.ClaimRewards(r.Context(), pos)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PortfolioResponse{Success: true, Data: updated})
}

// findPosition resolves the wallet's current on-chain position for a
// strategy. Lifecycle operations always start from fresh chain state, never
// from client-supplied balances.
func (s *Server) findPosition(r *http.Request, wallet, strategy string) (*lifecycle.ManagedPosition, error) {
	loaded, err := s.portfolios.LoadPortfolio(r.Context(), wallet)
	if err != nil {
		return nil, err
	}

	strategy = strings.ToLower(strategy)
	for i := range loaded.Positions {
		if loaded.Positions[i].StrategyAddress == strategy {
			return &lifecycle.ManagedPosition{
				Position: loaded.Positions[i].Position,
				State:    types.PositionActive,
			}, nil
		}
	}
	return nil, errors.NewNotFoundError("position", strategy)
}
