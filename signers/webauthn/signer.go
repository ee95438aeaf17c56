// Package webauthn adapts an external passkey authenticator into a
// SmartAccountSigner. The SDK never touches a private key or the WebAuthn
// ceremony itself — signing is delegated to a capability the caller supplies.
package webauthn

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartaccount-sso/sso4337-go/mechanisms/evm/erc4337"
)

// SignatureProvider is an opaque delegated signing capability: given a hash,
// it returns a pre-framed passkey envelope (the WebAuthn validator address
// already prepended by the caller's authenticator integration). The SDK
// treats the returned bytes as opaque and performs no ABI decoding of its
// own on them.
type SignatureProvider func(ctx context.Context, hash common.Hash) ([]byte, error)

// Signer authorizes UserOperations by delegating to an external
// authenticator through a SignatureProvider. Its stub signature is obtained
// once, at construction, by invoking the same provider against the zero
// hash — matching real submissions exactly in encoded length without
// assuming anything about the authenticator's internal envelope format.
type Signer struct {
	address  common.Address
	provider SignatureProvider
	stub     []byte
}

// NewSigner builds a Signer bound to address (the account-facing identity
// this signer authenticates as — typically the smart account or its
// WebAuthn validator, depending on how the caller's authenticator frames
// envelopes) and provider. The stub signature is fetched eagerly so later
// calls to StubSignature never fail or block.
func NewSigner(ctx context.Context, address common.Address, provider SignatureProvider) (*Signer, error) {
	stub, err := provider(ctx, common.Hash{})
	if err != nil {
		return nil, &erc4337.SigningFailedError{Validator: address.Hex(), Cause: fmt.Errorf("fetch stub signature: %w", err)}
	}

	return &Signer{
		address:  address,
		provider: provider,
		stub:     stub,
	}, nil
}

// Address returns the identity this signer authenticates as.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignUserOpHash delegates to the underlying authenticator, returning its
// response unmodified.
func (s *Signer) SignUserOpHash(ctx context.Context, userOpHash common.Hash, entryPoint common.Address, chainID int64) ([]byte, error) {
	sig, err := s.provider(ctx, userOpHash)
	if err != nil {
		return nil, &erc4337.SigningFailedError{Validator: s.address.Hex(), Cause: err}
	}
	return sig, nil
}

// StubSignature returns the placeholder envelope captured at construction.
func (s *Signer) StubSignature() []byte {
	return s.stub
}
