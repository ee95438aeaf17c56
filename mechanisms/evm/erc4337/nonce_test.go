package erc4337

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestSessionNonceKey(t *testing.T) {
	signer := common.HexToAddress("0xCEbb58e4082Af6FaC6Ea275740f10073d1610ad9")

	got := SessionNonceKey(signer)
	want := new(big.Int).SetBytes(signer.Bytes())

	if got.Cmp(want) != 0 {
		t.Errorf("SessionNonceKey(%s) = %s, want %s", signer.Hex(), got.String(), want.String())
	}
}

func TestPackNonce(t *testing.T) {
	key := big.NewInt(7)
	sequence := uint64(3)

	got := PackNonce(key, sequence)

	want := new(big.Int).Lsh(key, 64)
	want.Or(want, new(big.Int).SetUint64(sequence))

	if got.Cmp(want) != 0 {
		t.Errorf("PackNonce(%s, %d) = %s, want %s", key.String(), sequence, got.String(), want.String())
	}
}

func TestPackNonceZeroKeyIsEOADefault(t *testing.T) {
	got := PackNonce(big.NewInt(0), 0)
	if got.Sign() != 0 {
		t.Errorf("PackNonce(0, 0) = %s, want 0", got.String())
	}
}
