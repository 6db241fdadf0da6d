package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-memory stores

type memNonceStore struct {
	mu     sync.Mutex
	nonces map[string]string
}

func newMemNonceStore() *memNonceStore {
	return &memNonceStore{nonces: make(map[string]string)}
}

func (s *memNonceStore) Save(ctx context.Context, wallet, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[wallet] = nonce
	return nil
}

func (s *memNonceStore) Consume(ctx context.Context, wallet, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.nonces[wallet]
	if !ok || stored != nonce {
		return errors.NewConflictError("nonce already used or expired")
	}
	delete(s.nonces, wallet)
	return nil
}

type memUserStore struct {
	mu          sync.Mutex
	users       map[string]*types.User // by wallet address
	connections map[string][]types.WalletConnection
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		users:       make(map[string]*types.User),
		connections: make(map[string][]types.WalletConnection),
	}
}

func (s *memUserStore) GetOrCreate(ctx context.Context, walletAddress string) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[walletAddress]; ok {
		return u, nil
	}
	u := &types.User{ID: "user-" + walletAddress[:8], WalletAddress: walletAddress, CreatedAt: time.Now()}
	s.users[walletAddress] = u
	return u, nil
}

func (s *memUserStore) TouchConnection(ctx context.Context, userID, address string, kind types.WalletKind, lastUsed time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.connections[userID] {
		if c.Address == address {
			s.connections[userID][i].LastUsed = lastUsed
			return nil
		}
	}
	s.connections[userID] = append(s.connections[userID], types.WalletConnection{
		UserID: userID, Address: address, Kind: kind, Active: true, LastUsed: lastUsed,
	})
	return nil
}

func (s *memUserStore) Connections(ctx context.Context, userID string) ([]types.WalletConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections[userID], nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*types.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]*types.Session)}
}

func (s *memSessionStore) Save(ctx context.Context, session *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Token] = session
	return nil
}

func (s *memSessionStore) Get(ctx context.Context, token string) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[token]; ok {
		return sess, nil
	}
	return nil, errors.NewNotFoundError("session", token)
}

func (s *memSessionStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

// stubValidator accepts exactly the signatures in its allow set
type stubValidator struct {
	allow map[string]bool // signature hex -> valid
	err   error
}

func (v *stubValidator) IsValidSignature(ctx context.Context, wallet string, digest [32]byte, signature []byte) (bool, error) {
	if v.err != nil {
		return false, v.err
	}
	return v.allow[hexutil.Encode(signature)], nil
}

// testWallet generates a key pair and a signer over personal-sign messages
type testWallet struct {
	address string
	sign    func(message string) string
}

func newTestWallet(t *testing.T) *testWallet {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	address := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
	return &testWallet{
		address: address,
		sign: func(message string) string {
			sig, err := crypto.Sign(personalSignDigest(message), key)
			require.NoError(t, err)
			sig[64] += 27 // wallet-style V
			return hexutil.Encode(sig)
		},
	}
}

func newTestAuthenticator(validator ContractValidator) (*Authenticator, *memNonceStore, *memSessionStore) {
	nonces := newMemNonceStore()
	sessions := newMemSessionStore()
	a := NewAuthenticator(nonces, newMemUserStore(), sessions, validator, time.Minute, time.Hour)
	return a, nonces, sessions
}

func TestIssueNonce(t *testing.T) {
	a, _, _ := newTestAuthenticator(nil)
	wallet := newTestWallet(t)

	ch, err := a.IssueNonce(context.Background(), wallet.address, types.WalletSimpleKey)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ch.Message, messagePrefix))
	assert.Contains(t, ch.Nonce, wallet.address)
	assert.Contains(t, ch.Nonce, string(types.WalletSimpleKey))
	assert.Equal(t, types.WalletSimpleKey, ch.WalletKind)
}

func TestIssueNonce_Validation(t *testing.T) {
	a, _, _ := newTestAuthenticator(nil)

	_, err := a.IssueNonce(context.Background(), "0x1234", types.WalletSimpleKey)
	require.Error(t, err)

	_, err = a.IssueNonce(context.Background(), newTestWallet(t).address, "metamask")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument))
}

func TestAuthenticate_SimpleKey(t *testing.T) {
	a, _, _ := newTestAuthenticator(nil)
	wallet := newTestWallet(t)
	ctx := context.Background()

	ch, err := a.IssueNonce(ctx, wallet.address, types.WalletSimpleKey)
	require.NoError(t, err)

	result, err := a.Authenticate(ctx, wallet.address, wallet.sign(ch.Message), ch.Nonce, types.WalletSimpleKey)
	require.NoError(t, err)
	require.NotNil(t, result.Session)
	assert.NotEmpty(t, result.Session.Token)
	assert.Equal(t, wallet.address, result.Session.WalletAddress)
	require.Len(t, result.User.Connections, 1)
	assert.Equal(t, types.WalletSimpleKey, result.User.Connections[0].Kind)

	// The minted session validates
	session, err := a.ValidateSession(ctx, result.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, session.UserID)
}

func TestAuthenticate_WrongSigner(t *testing.T) {
	a, _, _ := newTestAuthenticator(nil)
	wallet := newTestWallet(t)
	imposter := newTestWallet(t)
	ctx := context.Background()

	ch, err := a.IssueNonce(ctx, wallet.address, types.WalletSimpleKey)
	require.NoError(t, err)

	// Imposter signs the real wallet's challenge
	_, err = a.Authenticate(ctx, wallet.address, imposter.sign(ch.Message), ch.Nonce, types.WalletSimpleKey)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidSignature))
}

func TestAuthenticate_MalformedSignature(t *testing.T) {
	a, _, _ := newTestAuthenticator(nil)
	wallet := newTestWallet(t)
	ctx := context.Background()

	ch, err := a.IssueNonce(ctx, wallet.address, types.WalletSimpleKey)
	require.NoError(t, err)

	_, err = a.Authenticate(ctx, wallet.address, "0xdeadbeef", ch.Nonce, types.WalletSimpleKey)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidSignature))
}

func TestAuthenticate_NonceSingleUse(t *testing.T) {
	a, _, _ := newTestAuthenticator(nil)
	wallet := newTestWallet(t)
	ctx := context.Background()

	ch, err := a.IssueNonce(ctx, wallet.address, types.WalletSimpleKey)
	require.NoError(t, err)
	signature := wallet.sign(ch.Message)

	_, err = a.Authenticate(ctx, wallet.address, signature, ch.Nonce, types.WalletSimpleKey)
	require.NoError(t, err)

	// Same nonce and a perfectly valid signature: rejected as Conflict
	_, err = a.Authenticate(ctx, wallet.address, signature, ch.Nonce, types.WalletSimpleKey)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeConflict))
}

func TestAuthenticate_SmartContract(t *testing.T) {
	wallet := newTestWallet(t)
	ctx := context.Background()

	t.Run("valid per contract", func(t *testing.T) {
		validator := &stubValidator{allow: map[string]bool{}}
		a, _, _ := newTestAuthenticator(validator)

		ch, err := a.IssueNonce(ctx, wallet.address, types.WalletSmartContract)
		require.NoError(t, err)
		signature := wallet.sign(ch.Message)
		validator.allow[signature] = true

		result, err := a.Authenticate(ctx, wallet.address, signature, ch.Nonce, types.WalletSmartContract)
		require.NoError(t, err)
		assert.Equal(t, types.WalletSmartContract, result.User.Connections[0].Kind)
	})

	t.Run("rejected per contract", func(t *testing.T) {
		a, _, _ := newTestAuthenticator(&stubValidator{allow: map[string]bool{}})

		ch, err := a.IssueNonce(ctx, wallet.address, types.WalletSmartContract)
		require.NoError(t, err)

		_, err = a.Authenticate(ctx, wallet.address, wallet.sign(ch.Message), ch.Nonce, types.WalletSmartContract)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeInvalidSignature))
	})

	t.Run("validator unreachable is distinct from invalid", func(t *testing.T) {
		a, _, _ := newTestAuthenticator(&stubValidator{err: errors.NewUpstreamTimeoutError("rpc")})

		ch, err := a.IssueNonce(ctx, wallet.address, types.WalletSmartContract)
		require.NoError(t, err)

		_, err = a.Authenticate(ctx, wallet.address, wallet.sign(ch.Message), ch.Nonce, types.WalletSmartContract)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeContractValidation))
	})
}

// Flipping walletKind with the same message/signature pair that was valid for
// one kind must not spuriously validate under the other.
func TestVerify_KindsAreIndependent(t *testing.T) {
	wallet := newTestWallet(t)
	ctx := context.Background()

	// Contract validator that knows nothing about EOA signatures
	a, _, _ := newTestAuthenticator(&stubValidator{allow: map[string]bool{}})

	message := messagePrefix + "some-nonce"
	eoaSignature := wallet.sign(message)

	// Valid under simple-key
	require.NoError(t, a.Verify(ctx, message, eoaSignature, wallet.address, types.WalletSimpleKey))

	// Same pair flipped to smart-contract: contract says no
	err := a.Verify(ctx, message, eoaSignature, wallet.address, types.WalletSmartContract)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidSignature))
}

func TestValidateSession(t *testing.T) {
	a, _, sessions := newTestAuthenticator(nil)
	ctx := context.Background()

	_, err := a.ValidateSession(ctx, "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnauthorized))

	_, err = a.ValidateSession(ctx, "0xunknown")
	require.Error(t, err)

	expired := &types.Session{
		Token:     "0xexpired",
		UserID:    "user-1",
		IssuedAt:  time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, sessions.Save(ctx, expired))
	_, err = a.ValidateSession(ctx, expired.Token)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnauthorized))
}

func TestSessionToken_Opaque(t *testing.T) {
	t1 := sessionToken("user-1", "0xabc", time.UnixMilli(1000))
	t2 := sessionToken("user-1", "0xabc", time.UnixMilli(2000))
	t3 := sessionToken("user-2", "0xabc", time.UnixMilli(1000))

	assert.NotEqual(t, t1, t2)
	assert.NotEqual(t, t1, t3)
	assert.Len(t, t1, 66, "0x-prefixed keccak256 digest")
}
