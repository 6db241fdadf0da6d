// Package api provides the HTTP API server.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/orbit-yield/internal/auth"
	"github.com/orbit-yield/internal/chains"
	"github.com/orbit-yield/internal/lifecycle"
	"github.com/orbit-yield/internal/logging"
	"github.com/orbit-yield/internal/portfolio"
	"github.com/orbit-yield/internal/registry"
	"github.com/orbit-yield/internal/types"
)

// Service interfaces for dependency injection and testing

// OpportunityService answers filtered opportunity queries
type OpportunityService interface {
	Discover(ctx context.Context, criteria registry.Criteria) (*registry.DiscoverResult, error)
}

// AuthService issues challenges and exchanges signatures for sessions
type AuthService interface {
	IssueNonce(ctx context.Context, wallet string, kind types.WalletKind) (*auth.Challenge, error)
	Authenticate(ctx context.Context, wallet, signature, nonce string, kind types.WalletKind) (*auth.AuthResult, error)
	ValidateSession(ctx context.Context, token string) (*types.Session, error)
	Logout(ctx context.Context, token string) error
}

// PortfolioService loads portfolios and drives position lifecycle operations
type PortfolioService interface {
	LoadPortfolio(ctx context.Context, wallet string) (*portfolio.Portfolio, error)
	History(ctx context.Context, wallet string, from, to time.Time) ([]*portfolio.Snapshot, error)
	Withdraw(ctx context.Context, pos *lifecycle.ManagedPosition, amount string) (*portfolio.Portfolio, error)
	ClaimRewards(ctx context.Context, pos *lifecycle.ManagedPosition) (*portfolio.Portfolio, error)
}

// ConnectionStore manages a user's wallet connections
type ConnectionStore interface {
	Connections(ctx context.Context, userID string) ([]types.WalletConnection, error)
	TouchConnection(ctx context.Context, userID, address string, kind types.WalletKind, lastUsed time.Time) error
	RemoveConnection(ctx context.Context, userID, address string) error
}

// Server is the HTTP API server
type Server struct {
	router        *mux.Router
	httpServer    *http.Server
	opportunities OpportunityService
	authService   AuthService
	portfolios    PortfolioService
	connections   ConnectionStore
	chainRegistry *chains.Registry
	config        *ServerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond int
	Burst             int
}

// NewServer creates an API server
func NewServer(
	config *ServerConfig,
	opportunities OpportunityService,
	authService AuthService,
	portfolios PortfolioService,
	connections ConnectionStore,
	chainRegistry *chains.Registry,
) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		opportunities: opportunities,
		authService:   authService,
		portfolios:    portfolios,
		connections:   connections,
		chainRegistry: chainRegistry,
		config:        config,
	}
	s.setupRouter()
	return s
}

// setupRouter configures middleware and routes. Middleware order matters:
// logging wraps everything, recovery catches handler panics, rate limiting
// runs after CORS so preflights are never throttled.
func (s *Server) setupRouter() {
	limiter := newIPRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(limiter))

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/opportunities", s.handleListOpportunities).Methods(http.MethodGet)
	api.HandleFunc("/chains", s.handleListChains).Methods(http.MethodGet)

	api.HandleFunc("/wallet-auth", s.handleAuthChallenge).Methods(http.MethodGet)
	api.HandleFunc("/wallet-auth", s.handleAuthenticate).Methods(http.MethodPost)

	// Connection management requires an authenticated session
	wallet := api.PathPrefix("/wallet").Subrouter()
	wallet.Use(SessionAuthMiddleware(s.authService))
	wallet.HandleFunc("/connections", s.handleListConnections).Methods(http.MethodGet)
	wallet.HandleFunc("/connections", s.handleAddConnection).Methods(http.MethodPost)
	wallet.HandleFunc("/connections", s.handleRemoveConnection).Methods(http.MethodDelete)
	wallet.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	api.HandleFunc("/portfolio/{address}", s.handleGetPortfolio).Methods(http.MethodGet)
	api.HandleFunc("/portfolio/{address}/history", s.handlePortfolioHistory).Methods(http.MethodGet)
	api.HandleFunc("/portfolio/{address}/withdraw", s.handleWithdraw).Methods(http.MethodPost)
	api.HandleFunc("/portfolio/{address}/claim", s.handleClaim).Methods(http.MethodPost)
}

// Router exposes the configured router for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until it fails or is shut down
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	logging.GetGlobalLogger().WithField("addr", addr).Info("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
