package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/types"
)

// canonicalConnectionAddress validates and lower-cases a wallet address from
// a request body. Connection rows store the canonical form.
func canonicalConnectionAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !strings.HasPrefix(address, "0x") || !common.IsHexAddress(address) {
		return "", errors.NewInvalidArgumentError("address", "must be a 0x-prefixed 20-byte hex address")
	}
	return strings.ToLower(address), nil
}

// ConnectionsResponse is the envelope for wallet connection listings
type ConnectionsResponse struct {
	Success    bool                     `json:"success"`
	Data       []types.WalletConnection `json:"data"`
	Pagination types.Pagination         `json:"pagination"`
}

const connectionsPageSize = 20

// handleListConnections serves GET /api/wallet/connections with an optional
// kind filter and 1-indexed pagination.
func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())

	connections, err := s.connections.Connections(r.Context(), session.UserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if kind := r.URL.Query().Get("type"); kind != "" {
		filtered := connections[:0]
		for _, conn := range connections {
			if string(conn.Kind) == kind {
				filtered = append(filtered, conn)
			}
		}
		connections = filtered
	}

	page, err := queryIntDefault(r.URL.Query(), "page", 1)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if page < 1 {
		page = 1
	}

	total := len(connections)
	start := (page - 1) * connectionsPageSize
	if start > total {
		start = total
	}
	end := start + connectionsPageSize
	if end > total {
		end = total
	}

	respondJSON(w, http.StatusOK, ConnectionsResponse{
		Success: true,
		Data:    connections[start:end],
		Pagination: types.Pagination{
			Total: total,
			Page:  page,
			Limit: connectionsPageSize,
			Pages: (total + connectionsPageSize - 1) / connectionsPageSize,
		},
	})
}

type addConnectionRequest struct {
	Address    string `json:"address"`
	WalletType string `json:"walletType"`
}

// handleAddConnection serves POST /api/wallet/connections. Adding a wallet
// already connected to the account is a Conflict.
func (s *Server) handleAddConnection(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())

	var req addConnectionRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, err)
		return
	}
	address, err := canonicalConnectionAddress(req.Address)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	kind := types.WalletKind(req.WalletType)
	if !types.ValidWalletKind(kind) {
		respondServiceError(w, errors.NewInvalidArgumentError("walletType", "must be 'simple-key' or 'smart-contract'"))
		return
	}

	existing, err := s.connections.Connections(r.Context(), session.UserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	// Stored addresses are canonical lower-case, so compare canonical forms.
	for _, conn := range existing {
		if conn.Address == address {
			respondServiceError(w, errors.NewConflictError("wallet is already connected"))
			return
		}
	}

	if err := s.connections.TouchConnection(r.Context(), session.UserID, address, kind, time.Now().UTC()); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"success": true})
}

type removeConnectionRequest struct {
	Address string `json:"address"`
}

// handleRemoveConnection serves DELETE /api/wallet/connections
func (s *Server) handleRemoveConnection(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())

	var req removeConnectionRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, err)
		return
	}
	address, err := canonicalConnectionAddress(req.Address)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if err := s.connections.RemoveConnection(r.Context(), session.UserID, address); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
