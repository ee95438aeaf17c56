package erc4337

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// PackOperation converts the unpacked, bundler-wire UserOperation into the
// PackedUserOperation shape the EntryPoint contract understands: gas fields
// combined into bytes32 words, factory/paymaster fields concatenated.
func PackOperation(op *UserOperation) *PackedUserOperation {
	initCode := []byte{}
	if op.Factory != nil {
		initCode = append(append([]byte{}, op.Factory.Bytes()...), op.FactoryData...)
	}

	paymasterAndData := []byte{}
	if op.Paymaster != nil {
		pvgl := zeroIfNil(op.PaymasterVerificationGasLimit)
		ppogl := zeroIfNil(op.PaymasterPostOpGasLimit)
		pvglBytes := make([]byte, 16)
		pvgl.FillBytes(pvglBytes)
		ppoglBytes := make([]byte, 16)
		ppogl.FillBytes(ppoglBytes)

		paymasterAndData = append(paymasterAndData, op.Paymaster.Bytes()...)
		paymasterAndData = append(paymasterAndData, pvglBytes...)
		paymasterAndData = append(paymasterAndData, ppoglBytes...)
		paymasterAndData = append(paymasterAndData, op.PaymasterData...)
	}

	return &PackedUserOperation{
		Sender:             op.Sender,
		Nonce:              op.Nonce,
		InitCode:           initCode,
		CallData:           op.CallData,
		AccountGasLimits:   PackAccountGasLimits(op.VerificationGasLimit, op.CallGasLimit),
		PreVerificationGas: op.PreVerificationGas,
		GasFees:            PackGasFees(op.MaxPriorityFeePerGas, op.MaxFeePerGas),
		PaymasterAndData:   paymasterAndData,
		Signature:          op.Signature,
	}
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// ApplyInflatedVerificationGas multiplies a bundler-estimated verification
// gas limit by VerificationGasInflationNum/Denom, matching the safety margin
// the send pipeline applies before submission.
func ApplyInflatedVerificationGas(estimated *big.Int) *big.Int {
	inflated := new(big.Int).Mul(estimated, big.NewInt(VerificationGasInflationNum))
	return inflated.Div(inflated, big.NewInt(VerificationGasInflationDenom))
}

// HashReader is the chain-read surface needed to ask the EntryPoint for a
// UserOperation's canonical hash.
type HashReader interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

var getUserOpHashSelector = mustSelector("getUserOpHash((address,uint256,bytes,bytes,bytes32,uint256,bytes32,bytes,bytes))")

var packedUserOpTupleType = func() abi.Type {
	t, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "sender", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "initCode", Type: "bytes"},
		{Name: "callData", Type: "bytes"},
		{Name: "accountGasLimits", Type: "bytes32"},
		{Name: "preVerificationGas", Type: "uint256"},
		{Name: "gasFees", Type: "bytes32"},
		{Name: "paymasterAndData", Type: "bytes"},
		{Name: "signature", Type: "bytes"},
	})
	if err != nil {
		panic(err)
	}
	return t
}()

// GetUserOperationHash calls EntryPoint.getUserOpHash(packedUserOp) to obtain
// the canonical hash that every validator signs over.
func GetUserOperationHash(ctx context.Context, reader HashReader, entryPoint common.Address, packed *PackedUserOperation) (common.Hash, error) {
	args := abi.Arguments{{Type: packedUserOpTupleType}}
	packedArgs, err := args.Pack(*packed)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack getUserOpHash args: %w", err)
	}

	calldata := append(append([]byte{}, getUserOpHashSelector...), packedArgs...)
	result, err := reader.CallContract(ctx, entryPoint, calldata)
	if err != nil {
		return common.Hash{}, fmt.Errorf("call EntryPoint.getUserOpHash: %w", err)
	}
	if len(result) < 32 {
		return common.Hash{}, fmt.Errorf("getUserOpHash: short return data (%d bytes)", len(result))
	}
	return common.BytesToHash(result[:32]), nil
}
