package evm

import (
	"context"
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/smartaccount-sso/sso4337-go/mechanisms/evm/erc4337"
)

// stubPrivateKeyHex is a fixed, publicly known private key used only to
// produce a stub signature of the correct byte length for gas estimation. It
// never signs anything that is actually submitted on chain.
const stubPrivateKeyHex = "2a871d0798f97d79848a013d4936a73bf4cc922c825d33c1cf7073dff6d409c6"

// EOASigner authorizes UserOperations with a plain secp256k1 key against the
// EOA validator module. Its signature envelope is
// validatorAddress(20) ‖ secp256k1Sign(key, hash)(65) — 85 bytes total.
type EOASigner struct {
	privateKey    *ecdsa.PrivateKey
	address       common.Address
	validatorAddr common.Address
}

// NewEOASigner builds an EOASigner from a hex-encoded private key and the
// address of the EOA validator module this signer authorizes against.
func NewEOASigner(privateKeyHex string, validatorAddr common.Address) (*EOASigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, &erc4337.InvalidPrivateKeyError{Cause: err}
	}

	return &EOASigner{
		privateKey:    privateKey,
		address:       crypto.PubkeyToAddress(privateKey.PublicKey),
		validatorAddr: validatorAddr,
	}, nil
}

// Address returns the owner address this signer authenticates as.
func (s *EOASigner) Address() common.Address {
	return s.address
}

// SignUserOpHash signs hash with the EOA's secp256k1 key and prepends the
// validator address, producing the 85-byte fat signature envelope
// installValidator/execute expect.
func (s *EOASigner) SignUserOpHash(ctx context.Context, userOpHash common.Hash, entryPoint common.Address, chainID int64) ([]byte, error) {
	return eoaSignature(s.privateKey, s.validatorAddr, userOpHash)
}

// StubSignature returns the 85-byte placeholder signature produced by
// signing the zero hash with a fixed, publicly known key — used only to size
// gas estimation requests before the real signature is available.
func (s *EOASigner) StubSignature() []byte {
	stubKey, err := crypto.HexToECDSA(stubPrivateKeyHex)
	if err != nil {
		panic("evm: stub private key is malformed: " + err.Error())
	}
	sig, err := eoaSignature(stubKey, s.validatorAddr, common.Hash{})
	if err != nil {
		panic("evm: stub signature generation failed: " + err.Error())
	}
	return sig
}

// eoaSign produces the raw 65-byte (r, s, v) secp256k1 signature over hash,
// with v normalized to Ethereum's 27/28 convention.
func eoaSign(privateKey *ecdsa.PrivateKey, hash common.Hash) ([]byte, error) {
	signature, err := crypto.Sign(hash.Bytes(), privateKey)
	if err != nil {
		return nil, err
	}
	signature[64] += 27
	return signature, nil
}

// eoaSignature builds the 85-byte envelope validatorAddr ‖ signature(65).
func eoaSignature(privateKey *ecdsa.PrivateKey, validatorAddr common.Address, hash common.Hash) ([]byte, error) {
	signature, err := eoaSign(privateKey, hash)
	if err != nil {
		return nil, err
	}
	result := make([]byte, 85)
	copy(result[0:20], validatorAddr.Bytes())
	copy(result[20:], signature)
	return result, nil
}
