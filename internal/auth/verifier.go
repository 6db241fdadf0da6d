package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/types"
)

// ContractValidator performs the on-chain EIP-1271 signature check for
// smart-contract wallets. The wallet contract itself decides validity.
type ContractValidator interface {
	// IsValidSignature calls isValidSignature(bytes32,bytes) on the wallet
	// contract and reports whether the magic value was returned. An error
	// means the check could not be performed, not that the signature is
	// invalid.
	IsValidSignature(ctx context.Context, wallet string, digest [32]byte, signature []byte) (bool, error)
}

// signatureVerifier is the per-wallet-kind verification strategy. New wallet
// kinds are added as new strategies, never by string-matching inline.
type signatureVerifier interface {
	verify(ctx context.Context, message, signature, wallet string) error
}

// simpleKeyVerifier recovers the signer from an EIP-191 personal-sign
// signature and compares it to the claimed address
type simpleKeyVerifier struct{}

func (simpleKeyVerifier) verify(_ context.Context, message, signature, wallet string) error {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != 65 {
		return errors.NewInvalidSignatureError(wallet)
	}

	// Wallets emit V as 27/28, go-ethereum expects 0/1
	sig = append([]byte(nil), sig...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return errors.NewInvalidSignatureError(wallet)
	}

	pub, err := crypto.SigToPub(personalSignDigest(message), sig)
	if err != nil {
		return errors.NewInvalidSignatureError(wallet)
	}

	recovered := strings.ToLower(crypto.PubkeyToAddress(*pub).Hex())
	if recovered != strings.ToLower(wallet) {
		return errors.NewInvalidSignatureError(wallet)
	}
	return nil
}

// contractWalletVerifier delegates validity to the wallet contract. This path
// needs a live chain connection, so its failures are reported as
// ContractValidationUnavailable rather than folded into "invalid signature".
type contractWalletVerifier struct {
	validator ContractValidator
}

func (v contractWalletVerifier) verify(ctx context.Context, message, signature, wallet string) error {
	if v.validator == nil {
		return errors.NewContractValidationError(wallet, fmt.Errorf("no contract validator configured"))
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return errors.NewInvalidSignatureError(wallet)
	}

	var digest [32]byte
	copy(digest[:], personalSignDigest(message))

	valid, err := v.validator.IsValidSignature(ctx, wallet, digest, sig)
	if err != nil {
		return errors.NewContractValidationError(wallet, err)
	}
	if !valid {
		return errors.NewInvalidSignatureError(wallet)
	}
	return nil
}

// personalSignDigest hashes a message the way eth_personalSign does
func personalSignDigest(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}

// newVerifiers builds the strategy table keyed by wallet kind
func newVerifiers(validator ContractValidator) map[types.WalletKind]signatureVerifier {
	return map[types.WalletKind]signatureVerifier{
		types.WalletSimpleKey:     simpleKeyVerifier{},
		types.WalletSmartContract: contractWalletVerifier{validator: validator},
	}
}
