package api

import (
	"net/http"
	"time"

	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/types"
)

// ChallengeResponse is the GET /api/wallet-auth envelope
type ChallengeResponse struct {
	Success    bool   `json:"success"`
	Nonce      string `json:"nonce"`
	Message    string `json:"message"`
	WalletType string `json:"walletType"`
}

// handleAuthChallenge serves GET /api/wallet-auth
func (s *Server) handleAuthChallenge(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("walletAddress")
	if wallet == "" {
		respondServiceError(w, errors.NewInvalidQueryError("walletAddress", "is required"))
		return
	}
	kind := types.WalletKind(r.URL.Query().Get("type"))
	if kind == "" {
		kind = types.WalletSimpleKey
	}

	challenge, err := s.authService.IssueNonce(r.Context(), wallet, kind)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ChallengeResponse{
		Success:    true,
		Nonce:      challenge.Nonce,
		Message:    challenge.Message,
		WalletType: string(challenge.WalletKind),
	})
}

type authenticateRequest struct {
	WalletAddress string `json:"walletAddress"`
	Signature     string `json:"signature"`
	Nonce         string `json:"nonce"`
	WalletType    string `json:"walletType"`
}

type connectedWallet struct {
	Address  string           `json:"address"`
	Kind     types.WalletKind `json:"kind"`
	LastUsed time.Time        `json:"lastUsed"`
}

type authenticatedUser struct {
	ID               string            `json:"id"`
	WalletAddress    string            `json:"walletAddress"`
	SessionToken     string            `json:"sessionToken"`
	ConnectedWallets []connectedWallet `json:"connectedWallets"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// AuthenticateResponse is the POST /api/wallet-auth envelope. The session
// token travels inside the user object, and connected wallets are reduced
// to address, kind and last use.
type AuthenticateResponse struct {
	Success bool              `json:"success"`
	User    authenticatedUser `json:"user"`
}

// handleAuthenticate serves POST /api/wallet-auth
func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, err)
		return
	}
	if req.WalletAddress == "" || req.Signature == "" || req.Nonce == "" {
		respondServiceError(w, errors.NewInvalidArgumentError("body", "walletAddress, signature and nonce are required"))
		return
	}
	kind := types.WalletKind(req.WalletType)
	if kind == "" {
		kind = types.WalletSimpleKey
	}

	result, err := s.authService.Authenticate(r.Context(), req.WalletAddress, req.Signature, req.Nonce, kind)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	wallets := make([]connectedWallet, 0, len(result.User.Connections))
	for _, c := range result.User.Connections {
		wallets = append(wallets, connectedWallet{Address: c.Address, Kind: c.Kind, LastUsed: c.LastUsed})
	}
	respondJSON(w, http.StatusOK, AuthenticateResponse{
		Success: true,
		User: authenticatedUser{
			ID:               result.User.ID,
			WalletAddress:    result.User.WalletAddress,
			SessionToken:     result.Session.Token,
			ConnectedWallets: wallets,
			CreatedAt:        result.User.CreatedAt,
		},
	})
}

// handleLogout serves POST /api/wallet/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())
	if session == nil {
		respondServiceError(w, errors.NewUnauthorizedError("no active session"))
		return
	}
	if err := s.authService.Logout(r.Context(), session.Token); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
