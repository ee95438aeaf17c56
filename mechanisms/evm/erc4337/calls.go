package erc4337

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Execution is a single call within a smart account's execute(), matching
// the ERC-7579 Execution struct (target, value, callData).
type Execution struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

var executeSelector = mustSelector("execute(bytes32,bytes)")

// mustSelector computes the 4-byte ABI function selector for a method
// signature literal; used only for fixed, compile-time-known signatures.
func mustSelector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

var executionTupleType = func() abi.Type {
	t, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "target", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "callData", Type: "bytes"},
	})
	if err != nil {
		panic(err)
	}
	return t
}()

type executionTuple struct {
	Target   common.Address
	Value    *big.Int
	CallData []byte
}

// ModeCodeSingle is the 32-byte execution mode for a single call: all zero.
func ModeCodeSingle() [32]byte {
	return [32]byte{}
}

// ModeCodeBatch is the 32-byte execution mode for a batch call: the first
// byte is 0x01 (CALLTYPE_BATCH), the rest is reserved and left zero.
func ModeCodeBatch() [32]byte {
	var mode [32]byte
	mode[0] = 1
	return mode
}

// EncodeCalls builds the calldata for a smart account's
// execute(bytes32 mode, bytes execution) entry point. A single call is
// packed as target ‖ value(32) ‖ callData under ModeCodeSingle; two or more
// calls are ABI-encoded as an Execution[] tuple array under ModeCodeBatch.
func EncodeCalls(calls []Execution) ([]byte, error) {
	if len(calls) == 1 {
		return singleCall(calls[0])
	}
	return multiCall(calls)
}

func singleCall(call Execution) ([]byte, error) {
	value := call.Value
	if value == nil {
		value = big.NewInt(0)
	}
	valueBytes := make([]byte, 32)
	value.FillBytes(valueBytes)

	execution := make([]byte, 0, 20+32+len(call.Data))
	execution = append(execution, call.Target.Bytes()...)
	execution = append(execution, valueBytes...)
	execution = append(execution, call.Data...)

	mode := ModeCodeSingle()
	return encodeExecuteCall(mode, execution)
}

func multiCall(calls []Execution) ([]byte, error) {
	tuples := make([]executionTuple, len(calls))
	for i, c := range calls {
		value := c.Value
		if value == nil {
			value = big.NewInt(0)
		}
		data := c.Data
		if data == nil {
			data = []byte{}
		}
		tuples[i] = executionTuple{Target: c.Target, Value: value, CallData: data}
	}

	args := abi.Arguments{{Type: executionTupleType}}
	execution, err := args.Pack(tuples)
	if err != nil {
		return nil, err
	}

	mode := ModeCodeBatch()
	return encodeExecuteCall(mode, execution)
}

func encodeExecuteCall(mode [32]byte, execution []byte) ([]byte, error) {
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, err
	}
	bytes32Type, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{
		{Type: bytes32Type},
		{Type: bytesType},
	}
	packed, err := args.Pack(mode, execution)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(executeSelector)+len(packed))
	out = append(out, executeSelector...)
	out = append(out, packed...)
	return out, nil
}
