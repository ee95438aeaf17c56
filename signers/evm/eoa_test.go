package evm

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var testEOAValidator = common.HexToAddress("0x00427edf0c3c3bd42188ab4c907759942abebd93")

func TestEOASignature_KnownVector(t *testing.T) {
	signer, err := NewEOASigner("0x2a871d0798f97d79848a013d4936a73bf4cc922c825d33c1cf7073dff6d409c6", testEOAValidator)
	if err != nil {
		t.Fatalf("NewEOASigner() failed: %v", err)
	}

	hash := common.HexToHash("0xfdd7c53bee7cc01a96d3769509d15e568137b6a4b1a56b156bffabf7c510ad06")
	sig, err := signer.SignUserOpHash(context.Background(), hash, common.Address{}, 1)
	if err != nil {
		t.Fatalf("SignUserOpHash() failed: %v", err)
	}

	want := "00427edf0c3c3bd42188ab4c907759942abebd93eeb7fc6f331132b807e452477a34e4d4106d17e77d8d0a76da66941b2b2fcc7c05b06eeffc84785ba872502f698c2d3e90d1cbddea31c98013145dcf7ccbb22d1c"
	got := hex.EncodeToString(sig)
	if got != want {
		t.Errorf("SignUserOpHash() = %s, want %s", got, want)
	}
}

func TestEOAStubSignature_KnownVector(t *testing.T) {
	signer, err := NewEOASigner("0x2a871d0798f97d79848a013d4936a73bf4cc922c825d33c1cf7073dff6d409c6", testEOAValidator)
	if err != nil {
		t.Fatalf("NewEOASigner() failed: %v", err)
	}

	want := "00427edf0c3c3bd42188ab4c907759942abebd9345fc36e56c77a4ff2f9032d5346697bb6f71faccf6b2ce61f5511ad84db29ab20b72aec01a6bbc248622d6622855eb0561063f8ea99fca314bff4359697138d31c"
	got := hex.EncodeToString(signer.StubSignature())
	if got != want {
		t.Errorf("StubSignature() = %s, want %s", got, want)
	}
}

// TestEOAStubSignatureLength verifies Property I2: the stub signature and a
// real signature for the same signer must have identical byte length.
func TestEOAStubSignatureLength(t *testing.T) {
	signer, err := NewEOASigner("0x2a871d0798f97d79848a013d4936a73bf4cc922c825d33c1cf7073dff6d409c6", testEOAValidator)
	if err != nil {
		t.Fatalf("NewEOASigner() failed: %v", err)
	}

	hash := common.HexToHash("0xfdd7c53bee7cc01a96d3769509d15e568137b6a4b1a56b156bffabf7c510ad06")
	real, err := signer.SignUserOpHash(context.Background(), hash, common.Address{}, 1)
	if err != nil {
		t.Fatalf("SignUserOpHash() failed: %v", err)
	}
	stub := signer.StubSignature()

	if len(real) != len(stub) {
		t.Errorf("stub signature length %d does not match real signature length %d", len(stub), len(real))
	}
	if len(real) != 85 {
		t.Errorf("signature length = %d, want 85", len(real))
	}
}

func TestEOASigner_Address(t *testing.T) {
	signer, err := NewEOASigner("0x2a871d0798f97d79848a013d4936a73bf4cc922c825d33c1cf7073dff6d409c6", testEOAValidator)
	if err != nil {
		t.Fatalf("NewEOASigner() failed: %v", err)
	}
	if signer.Address() == (common.Address{}) {
		t.Error("Address() returned zero address")
	}
}

func TestNewEOASigner_InvalidKey(t *testing.T) {
	_, err := NewEOASigner("not-a-hex-key", testEOAValidator)
	if err == nil {
		t.Fatal("expected error for invalid private key")
	}
	if !strings.Contains(err.Error(), "invalid private key") {
		t.Errorf("error = %v, want it to mention invalid private key", err)
	}
}
