package erc4337

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// NonceReader is the minimal chain-read surface GetNonce needs: a call to
// EntryPoint.getNonce(address sender, uint192 key).
type NonceReader interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

var getNonceSelector = mustSelector("getNonce(address,uint192)")

// SessionNonceKey derives the 192-bit nonce key ERC-4337 uses to give every
// session signer its own independent sequence space: the left-padded address
// of the session signer, read big-endian as a uint192.
func SessionNonceKey(sessionSigner common.Address) *big.Int {
	return new(big.Int).SetBytes(sessionSigner.Bytes())
}

// GetNonce reads the current nonce for (sender, key) from the EntryPoint.
// A zero key is the default sequence used by EOA/WebAuthn-authorized
// operations; session-authorized operations pass SessionNonceKey(signer).
func GetNonce(ctx context.Context, reader NonceReader, entryPoint, sender common.Address, key *big.Int) (*big.Int, error) {
	if key == nil {
		key = big.NewInt(0)
	}

	uint192Type, err := abi.NewType("uint192", "", nil)
	if err != nil {
		return nil, err
	}
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: addressType}, {Type: uint192Type}}
	packed, err := args.Pack(sender, key)
	if err != nil {
		return nil, fmt.Errorf("pack getNonce args: %w", err)
	}

	calldata := append(append([]byte{}, getNonceSelector...), packed...)
	result, err := reader.CallContract(ctx, entryPoint, calldata)
	if err != nil {
		return nil, fmt.Errorf("call EntryPoint.getNonce: %w", err)
	}
	if len(result) < 32 {
		return nil, fmt.Errorf("getNonce: short return data (%d bytes)", len(result))
	}
	return new(big.Int).SetBytes(result[:32]), nil
}

// PackNonce combines a 192-bit key and a 64-bit sequence into the full
// 256-bit nonce field carried on the UserOperation.
func PackNonce(key *big.Int, sequence uint64) *big.Int {
	full := new(big.Int).Lsh(key, 64)
	full.Or(full, new(big.Int).SetUint64(sequence))
	return full
}
