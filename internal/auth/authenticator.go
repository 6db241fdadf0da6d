// Package auth implements nonce-based wallet authentication for both
// simple-key and smart-contract wallets.
package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/logging"
	"github.com/orbit-yield/internal/types"
)

// messagePrefix is what wallets are asked to sign, with the nonce appended
const messagePrefix = "Sign this message to authenticate with OrbitYield: "

// NonceStore persists issued nonces and guarantees atomic
// check-unused-then-consume semantics so a nonce can never authenticate twice,
// even under concurrent attempts for the same wallet.
type NonceStore interface {
	Save(ctx context.Context, wallet, nonce string, ttl time.Duration) error
	// Consume atomically removes the stored nonce for the wallet and
	// returns Conflict when it is absent, expired or does not match.
	Consume(ctx context.Context, wallet, nonce string) error
}

// UserStore persists users keyed by their canonical wallet address
type UserStore interface {
	// GetOrCreate upserts the user record for a canonical wallet address
	GetOrCreate(ctx context.Context, walletAddress string) (*types.User, error)
	// TouchConnection appends the wallet to the user's connected-wallet
	// set if new and advances its last-used timestamp
	TouchConnection(ctx context.Context, userID, address string, kind types.WalletKind, lastUsed time.Time) error
	// Connections lists the user's connected wallets
	Connections(ctx context.Context, userID string) ([]types.WalletConnection, error)
}

// SessionStore persists opaque session tokens
type SessionStore interface {
	Save(ctx context.Context, session *types.Session) error
	Get(ctx context.Context, token string) (*types.Session, error)
	Delete(ctx context.Context, token string) error
}

// Challenge is an issued nonce plus the message the wallet must sign
type Challenge struct {
	Nonce      string           `json:"nonce"`
	Message    string           `json:"message"`
	WalletKind types.WalletKind `json:"walletType"`
}

// AuthResult is the outcome of a successful authentication
type AuthResult struct {
	Session *types.Session `json:"-"`
	User    *types.User    `json:"user"`
}

// Authenticator issues nonces and verifies wallet signatures, producing
// sessions. Verification dispatches on wallet kind via a strategy per kind.
type Authenticator struct {
	nonces     NonceStore
	users      UserStore
	sessions   SessionStore
	verifiers  map[types.WalletKind]signatureVerifier
	nonceTTL   time.Duration
	sessionTTL time.Duration
}

// NewAuthenticator creates a wallet authenticator. validator may be nil when
// no chain connection is available; smart-contract verification then fails
// with ContractValidationUnavailable.
func NewAuthenticator(
	nonces NonceStore,
	users UserStore,
	sessions SessionStore,
	validator ContractValidator,
	nonceTTL, sessionTTL time.Duration,
) *Authenticator {
	if nonceTTL <= 0 {
		nonceTTL = 5 * time.Minute
	}
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &Authenticator{
		nonces:     nonces,
		users:      users,
		sessions:   sessions,
		verifiers:  newVerifiers(validator),
		nonceTTL:   nonceTTL,
		sessionTTL: sessionTTL,
	}
}

// IssueNonce generates a single-use challenge for a wallet. The nonce binds
// random bytes, the issue time, the canonical address and the wallet kind.
func (a *Authenticator) IssueNonce(ctx context.Context, wallet string, kind types.WalletKind) (*Challenge, error) {
	if !types.ValidWalletKind(kind) {
		return nil, errors.NewInvalidArgumentError("walletType", "must be 'simple-key' or 'smart-contract'")
	}
	canonical, err := canonicalAddress(wallet)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, errors.NewInternalError("failed to generate nonce", err)
	}

	nonce := fmt.Sprintf("%s-%d-%s-%s", hexutil.Encode(buf), time.Now().UnixMilli(), canonical, kind)
	if err := a.nonces.Save(ctx, canonical, nonce, a.nonceTTL); err != nil {
		return nil, err
	}

	return &Challenge{
		Nonce:      nonce,
		Message:    messagePrefix + nonce,
		WalletKind: kind,
	}, nil
}

// Verify checks a signature over a message for the claimed wallet. It returns
// nil when valid, InvalidSignature when the signature does not match, and
// ContractValidationUnavailable when the smart-contract check could not run.
func (a *Authenticator) Verify(ctx context.Context, message, signature, wallet string, kind types.WalletKind) error {
	verifier, ok := a.verifiers[kind]
	if !ok {
		return errors.NewInvalidArgumentError("walletType", "unknown wallet kind")
	}
	canonical, err := canonicalAddress(wallet)
	if err != nil {
		return err
	}
	return verifier.verify(ctx, message, signature, canonical)
}

// Authenticate consumes the nonce, verifies the signature over it and mints a
// session. The nonce is consumed before any signature work, so a replayed
// nonce fails with Conflict regardless of signature validity.
func (a *Authenticator) Authenticate(ctx context.Context, wallet, signature, nonce string, kind types.WalletKind) (*AuthResult, error) {
	if !types.ValidWalletKind(kind) {
		return nil, errors.NewInvalidArgumentError("walletType", "must be 'simple-key' or 'smart-contract'")
	}
	canonical, err := canonicalAddress(wallet)
	if err != nil {
		return nil, err
	}

	if err := a.nonces.Consume(ctx, canonical, nonce); err != nil {
		return nil, err
	}

	if err := a.Verify(ctx, messagePrefix+nonce, signature, canonical, kind); err != nil {
		return nil, err
	}

	user, err := a.users.GetOrCreate(ctx, canonical)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := a.users.TouchConnection(ctx, user.ID, canonical, kind, now); err != nil {
		return nil, err
	}

	session := &types.Session{
		Token:         sessionToken(user.ID, canonical, now),
		UserID:        user.ID,
		WalletAddress: canonical,
		IssuedAt:      now,
		ExpiresAt:     now.Add(a.sessionTTL),
	}
	if err := a.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	connections, err := a.users.Connections(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Connections = connections

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"userId":     user.ID,
		"walletKind": string(kind),
	}).Info("wallet authenticated")

	return &AuthResult{Session: session, User: user}, nil
}

// ValidateSession resolves a bearer token to its session, rejecting unknown
// and expired tokens
func (a *Authenticator) ValidateSession(ctx context.Context, token string) (*types.Session, error) {
	if token == "" {
		return nil, errors.NewUnauthorizedError("missing session token")
	}
	session, err := a.sessions.Get(ctx, token)
	if err != nil {
		return nil, errors.NewUnauthorizedError("invalid session token")
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, errors.NewUnauthorizedError("session expired")
	}
	return session, nil
}

// Logout removes a session
func (a *Authenticator) Logout(ctx context.Context, token string) error {
	return a.sessions.Delete(ctx, token)
}

// sessionToken derives an opaque token from (user, time, wallet)
func sessionToken(userID, wallet string, issuedAt time.Time) string {
	payload := fmt.Sprintf("%s-%d-%s", userID, issuedAt.UnixMilli(), wallet)
	return crypto.Keccak256Hash([]byte(payload)).Hex()
}

// canonicalAddress lower-cases and sanity checks a wallet address
func canonicalAddress(wallet string) (string, error) {
	wallet = strings.TrimSpace(wallet)
	if !strings.HasPrefix(wallet, "0x") || len(wallet) != 42 {
		return "", errors.NewInvalidArgumentError("walletAddress", "must be a 0x-prefixed 20-byte hex address")
	}
	if _, err := hexutil.Decode(wallet); err != nil {
		return "", errors.NewInvalidArgumentError("walletAddress", "must be a 0x-prefixed 20-byte hex address")
	}
	return strings.ToLower(wallet), nil
}
