package evm

import (
	"context"
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/smartaccount-sso/sso4337-go/mechanisms/evm/erc4337"
)

// SessionSigner authorizes UserOperations on behalf of a session key. Its
// signature envelope is a "fat" one: the session validator address, followed
// by the ABI-encoded (signature, SessionSpec, periodIds) tuple the
// SessionKeyValidator contract needs to check the call against its granted
// policies. period_ids is always [periodID(spec.FeeLimit, now), 0] — the
// trailing zero mirrors the teacher's single-fee-limit session model, which
// has not grown a second allowance-typed limit to index.
type SessionSigner struct {
	privateKey    *ecdsa.PrivateKey
	address       common.Address
	validatorAddr common.Address
	spec          erc4337.SessionSpec
	now           func() uint64
}

// NewSessionSigner builds a SessionSigner from a hex-encoded session private
// key, the session-key validator's address, the SessionSpec the key was
// granted under, and a clock function used to compute allowance period IDs.
// A nil clock yields periodID 0 for every Allowance-typed limit, deferring
// period bookkeeping to the chain — the documented _no_validation behavior
// for restricted environments without a system clock.
func NewSessionSigner(privateKeyHex string, validatorAddr common.Address, spec erc4337.SessionSpec, now func() uint64) (*SessionSigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, &erc4337.InvalidPrivateKeyError{Cause: err}
	}
	if now == nil {
		now = func() uint64 { return 0 }
	}

	return &SessionSigner{
		privateKey:    privateKey,
		address:       crypto.PubkeyToAddress(privateKey.PublicKey),
		validatorAddr: validatorAddr,
		spec:          spec,
		now:           now,
	}, nil
}

// Address returns the session key's own address, not the smart account it
// authorizes for.
func (s *SessionSigner) Address() common.Address {
	return s.address
}

// SignUserOpHash signs hash with the session key and wraps it in the fat
// envelope the session-key validator expects.
func (s *SessionSigner) SignUserOpHash(ctx context.Context, userOpHash common.Hash, entryPoint common.Address, chainID int64) ([]byte, error) {
	signature, err := eoaSign(s.privateKey, userOpHash)
	if err != nil {
		return nil, err
	}
	return sessionSignature(s.validatorAddr, s.spec, signature, s.periodIDs())
}

// StubSignature returns a placeholder fat envelope the same length as a real
// one: a zero-filled 65-byte inner signature, the real SessionSpec, and the
// real period IDs — everything but the cryptographic material is authentic,
// which is what keeps the encoded length exact for gas estimation.
func (s *SessionSigner) StubSignature() []byte {
	stub := make([]byte, 65)
	sig, err := sessionSignature(s.validatorAddr, s.spec, stub, s.periodIDs())
	if err != nil {
		panic("evm: session stub signature generation failed: " + err.Error())
	}
	return sig
}

func (s *SessionSigner) periodIDs() []uint64 {
	return []uint64{erc4337.GetPeriodID(s.spec.FeeLimit, s.now()), 0}
}

// sessionSignature builds the fat envelope validatorAddr ‖
// abi.encode_params((bytes signature, SessionSpec spec, uint48[] periodIds)).
func sessionSignature(validatorAddr common.Address, spec erc4337.SessionSpec, signature []byte, periodIDs []uint64) ([]byte, error) {
	payload, err := erc4337.EncodeSessionSignaturePayload(signature, spec, periodIDs)
	if err != nil {
		return nil, err
	}
	result := make([]byte, 0, common.AddressLength+len(payload))
	result = append(result, validatorAddr.Bytes()...)
	result = append(result, payload...)
	return result, nil
}
