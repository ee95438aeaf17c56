package evm

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartaccount-sso/sso4337-go/mechanisms/evm/erc4337"
)

const testSessionPrivateKeyHex = "0xb1da23908ba44fb1c6147ac1b32a1dbc6e7704ba94ec495e588d1e3cdc7ca6f9"

func testSessionSpec() erc4337.SessionSpec {
	return erc4337.SessionSpec{
		Signer:    common.HexToAddress("0xCEbb58e4082Af6FaC6Ea275740f10073d1610ad9"),
		ExpiresAt: 2088558400,
		FeeLimit: erc4337.UsageLimit{
			LimitType: erc4337.UsageLimitLifetime,
			Limit:     big.NewInt(1_000_000_000_000_000_000),
		},
	}
}

// TestSessionStubSignatureLength verifies Property I2 for the session
// signer: the stub envelope must have the exact same byte length as a real
// one, since only the encoded structure (not the cryptographic payload)
// determines gas estimation accuracy.
func TestSessionStubSignatureLength(t *testing.T) {
	validator := common.HexToAddress("0x1234567890123456789012345678901234567890")
	spec := testSessionSpec()

	signer, err := NewSessionSigner(testSessionPrivateKeyHex, validator, spec, nil)
	if err != nil {
		t.Fatalf("NewSessionSigner() failed: %v", err)
	}

	real, err := signer.SignUserOpHash(context.Background(), common.Hash{}, common.Address{}, 1)
	if err != nil {
		t.Fatalf("SignUserOpHash() failed: %v", err)
	}
	stub := signer.StubSignature()

	if len(real) != len(stub) {
		t.Errorf("stub signature length %d does not match real signature length %d", len(stub), len(real))
	}
}

func TestSessionStubSignature_StartsWithValidator(t *testing.T) {
	validator := common.HexToAddress("0x1234567890123456789012345678901234567890")
	spec := testSessionSpec()

	signer, err := NewSessionSigner(testSessionPrivateKeyHex, validator, spec, nil)
	if err != nil {
		t.Fatalf("NewSessionSigner() failed: %v", err)
	}

	stub := signer.StubSignature()
	if len(stub) <= common.AddressLength {
		t.Fatalf("stub signature too short: %d bytes", len(stub))
	}
	if common.BytesToAddress(stub[:common.AddressLength]) != validator {
		t.Errorf("stub signature does not start with the session validator address")
	}
}

// TestSessionPeriodIDs_AllowanceWithClock exercises the Allowance branch of
// periodIDs: without a clock, period IDs default to zero; with one, the
// first element tracks floor(now/period).
func TestSessionPeriodIDs_AllowanceWithClock(t *testing.T) {
	validator := common.HexToAddress("0x1234567890123456789012345678901234567890")
	spec := testSessionSpec()
	spec.FeeLimit = erc4337.UsageLimit{
		LimitType: erc4337.UsageLimitAllowance,
		Limit:     big.NewInt(1_000_000_000_000_000_000),
		Period:    86400,
	}

	now := func() uint64 { return 1700000000 }
	signer, err := NewSessionSigner(testSessionPrivateKeyHex, validator, spec, now)
	if err != nil {
		t.Fatalf("NewSessionSigner() failed: %v", err)
	}

	ids := signer.periodIDs()
	want := uint64(1700000000 / 86400)
	if ids[0] != want {
		t.Errorf("periodIDs()[0] = %d, want %d", ids[0], want)
	}
	if ids[1] != 0 {
		t.Errorf("periodIDs()[1] = %d, want 0", ids[1])
	}
}

func TestNewSessionSigner_InvalidKey(t *testing.T) {
	_, err := NewSessionSigner("not-hex", common.Address{}, testSessionSpec(), nil)
	if err == nil {
		t.Fatal("expected error for invalid private key")
	}
}
