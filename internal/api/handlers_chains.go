package api

import (
	"net/http"

	"github.com/orbit-yield/internal/chains"
)

// ChainsResponse is the envelope for the chain directory
type ChainsResponse struct {
	Success bool               `json:"success"`
	Data    []chains.ChainInfo `json:"data"`
}

// handleListChains serves GET /api/chains
func (s *Server) handleListChains(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ChainsResponse{
		Success: true,
		Data:    s.chainRegistry.List(),
	})
}
