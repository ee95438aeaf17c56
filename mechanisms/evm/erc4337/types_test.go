package erc4337

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestPackAccountGasLimits(t *testing.T) {
	tests := []struct {
		name                 string
		verificationGasLimit *big.Int
		callGasLimit         *big.Int
	}{
		{"small values", big.NewInt(100000), big.NewInt(50000)},
		{"large values", big.NewInt(1000000), big.NewInt(500000)},
		{"default values", DefaultGasLimits.VerificationGasLimit, DefaultGasLimits.CallGasLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed := PackAccountGasLimits(tt.verificationGasLimit, tt.callGasLimit)
			gotVerification, gotCall := UnpackAccountGasLimits(packed)

			if gotVerification.Cmp(tt.verificationGasLimit) != 0 {
				t.Errorf("verificationGasLimit mismatch: got %v, want %v", gotVerification, tt.verificationGasLimit)
			}
			if gotCall.Cmp(tt.callGasLimit) != 0 {
				t.Errorf("callGasLimit mismatch: got %v, want %v", gotCall, tt.callGasLimit)
			}
		})
	}
}

func TestPackGasFees(t *testing.T) {
	tests := []struct {
		name                 string
		maxPriorityFeePerGas *big.Int
		maxFeePerGas         *big.Int
	}{
		{"small values", big.NewInt(1000000000), big.NewInt(10000000000)},
		{"large values", big.NewInt(100000000000), big.NewInt(500000000000)},
		{"spec defaults", DefaultMaxPriorityFeePerGas, DefaultMaxFeePerGas},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed := PackGasFees(tt.maxPriorityFeePerGas, tt.maxFeePerGas)
			gotPriority, gotMax := UnpackGasFees(packed)

			if gotPriority.Cmp(tt.maxPriorityFeePerGas) != 0 {
				t.Errorf("maxPriorityFeePerGas mismatch: got %v, want %v", gotPriority, tt.maxPriorityFeePerGas)
			}
			if gotMax.Cmp(tt.maxFeePerGas) != 0 {
				t.Errorf("maxFeePerGas mismatch: got %v, want %v", gotMax, tt.maxFeePerGas)
			}
		})
	}
}

func TestIsSupportedChain(t *testing.T) {
	tests := []struct {
		chainID int64
		want    bool
	}{
		{1, true},
		{11155111, true},
		{8453, true},
		{84532, true},
		{10, true},
		{42161, true},
		{137, true},
		{999999, false},
		{0, false},
	}

	for _, tt := range tests {
		if got := IsSupportedChain(tt.chainID); got != tt.want {
			t.Errorf("IsSupportedChain(%d) = %v, want %v", tt.chainID, got, tt.want)
		}
	}
}

func TestEntryPointAddresses(t *testing.T) {
	v07 := common.HexToAddress(EntryPointV07Address)
	v06 := common.HexToAddress(EntryPointV06Address)

	if v07 == (common.Address{}) {
		t.Error("EntryPointV07Address is zero address")
	}
	if v06 == (common.Address{}) {
		t.Error("EntryPointV06Address is zero address")
	}
	if v07 == v06 {
		t.Error("EntryPoint addresses should be different")
	}
}

func TestPaymasterType(t *testing.T) {
	tests := []struct {
		pt   PaymasterType
		want string
	}{
		{PaymasterTypeNone, "none"},
		{PaymasterTypeVerifying, "verifying"},
		{PaymasterTypeToken, "token"},
		{PaymasterTypeSponsoring, "sponsoring"},
	}

	for _, tt := range tests {
		if string(tt.pt) != tt.want {
			t.Errorf("PaymasterType = %q, want %q", tt.pt, tt.want)
		}
	}
}

func TestUserOperationStruct(t *testing.T) {
	userOp := &UserOperation{
		Sender:               common.HexToAddress("0x1234567890123456789012345678901234567890"),
		Nonce:                big.NewInt(0),
		CallData:             []byte{0x01, 0x02, 0x03},
		VerificationGasLimit: big.NewInt(150000),
		CallGasLimit:         big.NewInt(100000),
		PreVerificationGas:   big.NewInt(50000),
		MaxPriorityFeePerGas: big.NewInt(1000000000),
		MaxFeePerGas:         big.NewInt(10000000000),
		Signature:            []byte{0x04, 0x05, 0x06},
	}

	if userOp.Sender == (common.Address{}) {
		t.Error("UserOperation.Sender should not be zero")
	}
	if userOp.Nonce.Cmp(big.NewInt(0)) != 0 {
		t.Error("UserOperation.Nonce should be 0")
	}
	if len(userOp.CallData) != 3 {
		t.Error("UserOperation.CallData should have 3 bytes")
	}
	if userOp.Factory != nil {
		t.Error("UserOperation.Factory should default to nil (no deployment)")
	}
}

func TestPackOperationRoundTrip(t *testing.T) {
	factory := common.HexToAddress("0xababababababababababababababababababab")
	paymaster := common.HexToAddress("0xcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcdcd")

	op := &UserOperation{
		Sender:                        common.HexToAddress("0x1234567890123456789012345678901234567890"),
		Nonce:                         big.NewInt(42),
		Factory:                       &factory,
		FactoryData:                   []byte{0xaa},
		CallData:                      []byte{0x01, 0x02},
		VerificationGasLimit:          big.NewInt(150000),
		CallGasLimit:                  big.NewInt(100000),
		PreVerificationGas:            big.NewInt(50000),
		MaxPriorityFeePerGas:          DefaultMaxPriorityFeePerGas,
		MaxFeePerGas:                  DefaultMaxFeePerGas,
		Paymaster:                     &paymaster,
		PaymasterVerificationGasLimit: big.NewInt(30000),
		PaymasterPostOpGasLimit:       big.NewInt(20000),
		PaymasterData:                 []byte{0xbb},
		Signature:                     []byte{0x05, 0x06},
	}

	packed := PackOperation(op)

	gotVerification, gotCall := UnpackAccountGasLimits(packed.AccountGasLimits)
	if gotVerification.Cmp(op.VerificationGasLimit) != 0 || gotCall.Cmp(op.CallGasLimit) != 0 {
		t.Errorf("account gas limits did not round-trip: got (%v, %v)", gotVerification, gotCall)
	}

	if len(packed.InitCode) != 20+len(op.FactoryData) {
		t.Errorf("initCode length = %d, want %d", len(packed.InitCode), 20+len(op.FactoryData))
	}

	if len(packed.PaymasterAndData) != 20+16+16+len(op.PaymasterData) {
		t.Errorf("paymasterAndData length = %d, want %d", len(packed.PaymasterAndData), 20+16+16+len(op.PaymasterData))
	}
}

func TestDefaultGasLimits(t *testing.T) {
	if DefaultGasLimits.VerificationGasLimit.Cmp(big.NewInt(0)) <= 0 {
		t.Error("DefaultGasLimits.VerificationGasLimit should be positive")
	}
	if DefaultGasLimits.CallGasLimit.Cmp(big.NewInt(0)) <= 0 {
		t.Error("DefaultGasLimits.CallGasLimit should be positive")
	}
	if DefaultGasLimits.PreVerificationGas.Cmp(big.NewInt(0)) <= 0 {
		t.Error("DefaultGasLimits.PreVerificationGas should be positive")
	}
}
