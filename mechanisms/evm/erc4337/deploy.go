package erc4337

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	deployAccountSelector     = mustSelector("deployAccount(bytes32,bytes)")
	initializeAccountSelector = mustSelector("initializeAccount(address[],bytes[])")
	getSenderAddressSelector  = mustSelector("getSenderAddress(bytes)")

	accountCreatedTopic = common.BytesToHash(crypto.Keccak256([]byte("AccountCreated(address,bytes32)")))
)

// EOASignersInit describes the EOA validator's slot in an account's initial
// module set: the set of owner addresses and the validator contract they
// register against.
type EOASignersInit struct {
	Addresses        []common.Address
	ValidatorAddress common.Address
}

// WebAuthnSignerInit describes the WebAuthn validator's slot.
type WebAuthnSignerInit struct {
	Passkey          PasskeyPayload
	ValidatorAddress common.Address
}

// SessionValidatorInit describes the session-key validator's slot.
type SessionValidatorInit struct {
	Spec             SessionSpec
	ValidatorAddress common.Address
}

// BuildInitData packs an account's initial module set into
// initializeAccount(address[] modules, bytes[] data), in the fixed order
// EOA, WebAuthn, Session — each slot optional, each paired with its own
// init bytes.
func BuildInitData(eoaSigners *EOASignersInit, webauthnSigner *WebAuthnSignerInit, sessionValidator *SessionValidatorInit) ([]byte, error) {
	var modules []common.Address
	var data [][]byte

	if eoaSigners != nil {
		encoded, err := EncodeEOAInitData(eoaSigners.Addresses)
		if err != nil {
			return nil, fmt.Errorf("encode EOA init data: %w", err)
		}
		modules = append(modules, eoaSigners.ValidatorAddress)
		data = append(data, encoded)
	}

	if webauthnSigner != nil {
		encoded, err := EncodeWebAuthnInitData(webauthnSigner.Passkey)
		if err != nil {
			return nil, fmt.Errorf("encode WebAuthn init data: %w", err)
		}
		modules = append(modules, webauthnSigner.ValidatorAddress)
		data = append(data, encoded)
	}

	if sessionValidator != nil {
		encoded, err := EncodeSessionInitData(sessionValidator.Spec)
		if err != nil {
			return nil, fmt.Errorf("encode session init data: %w", err)
		}
		modules = append(modules, sessionValidator.ValidatorAddress)
		data = append(data, encoded)
	}

	addressSliceType, err := abi.NewType("address[]", "", nil)
	if err != nil {
		return nil, err
	}
	bytesSliceType, err := abi.NewType("bytes[]", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: addressSliceType}, {Type: bytesSliceType}}
	packed, err := args.Pack(modules, data)
	if err != nil {
		return nil, err
	}

	return append(append([]byte{}, initializeAccountSelector...), packed...), nil
}

// deployAccountCallData ABI-encodes AAFactory.deployAccount(salt, initData).
func deployAccountCallData(accountID [32]byte, initData []byte) ([]byte, error) {
	bytes32Type, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		return nil, err
	}
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: bytes32Type}, {Type: bytesType}}
	packed, err := args.Pack(accountID, initData)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, deployAccountSelector...), packed...), nil
}

// ExtractAccountCreatedAddress pulls the deployed account address out of a
// deployment receipt's AccountCreated(address indexed account, bytes32
// indexed salt) event — the address lives right-aligned in the first
// indexed topic.
func ExtractAccountCreatedAddress(receipt *TransactionReceipt) (common.Address, error) {
	for _, log := range receipt.Logs {
		if len(log.Topics) < 2 || log.Topics[0] != accountCreatedTopic {
			continue
		}
		return common.BytesToAddress(log.Topics[1].Bytes()[12:]), nil
	}
	return common.Address{}, &AccountCreatedEventMissingError{TxHash: receipt.TransactionHash}
}

// DeployAccountDirect sends a direct EOA transaction to
// AAFactory.deployAccount(accountID, initData) and returns the deployed
// account address, extracted from the resulting AccountCreated event.
func DeployAccountDirect(ctx context.Context, deployer DirectTransactionSender, factory common.Address, accountID [32]byte, initData []byte) (common.Address, *TransactionReceipt, error) {
	callData, err := deployAccountCallData(accountID, initData)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("encode deployAccount call data: %w", err)
	}

	txHash, err := deployer.SendTransaction(ctx, factory, callData)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("send deployAccount transaction: %w", err)
	}

	receipt, err := deployer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("await deployAccount receipt: %w", err)
	}

	address, err := ExtractAccountCreatedAddress(receipt)
	if err != nil {
		return common.Address{}, receipt, err
	}

	return address, receipt, nil
}

// RevertDataError is the shape go-ethereum's JSON-RPC transport surfaces for
// a reverted eth_call: the error itself plus the raw revert payload the node
// attached to the JSON-RPC error's "data" field. go-ethereum's own rpc.Client
// returns errors satisfying this shape (rpc.DataError) for call reverts.
type RevertDataError interface {
	error
	ErrorData() interface{}
}

// SenderAddressReader is the chain-read surface GetSenderAddress needs: a
// call that is expected to revert, carrying the answer in the revert data
// rather than a normal return value.
type SenderAddressReader interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

var senderAddressResultSelector = mustSelector("SenderAddressResult(address)")

// GetSenderAddress predicts an account's counterfactual address before
// deployment by calling EntryPoint.getSenderAddress(initCode), a method that
// always reverts, encoding the answer as a SenderAddressResult(address)
// custom error. The predicted address is extracted from that revert payload,
// not from a normal call return.
func GetSenderAddress(ctx context.Context, reader SenderAddressReader, entryPoint, factory common.Address, factoryData []byte) (common.Address, error) {
	initCode := append(append([]byte{}, factory.Bytes()...), factoryData...)

	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return common.Address{}, err
	}
	args := abi.Arguments{{Type: bytesType}}
	packed, err := args.Pack(initCode)
	if err != nil {
		return common.Address{}, err
	}
	calldata := append(append([]byte{}, getSenderAddressSelector...), packed...)

	_, err = reader.CallContract(ctx, entryPoint, calldata)
	if err == nil {
		return common.Address{}, fmt.Errorf("getSenderAddress: expected a revert carrying the predicted address, call succeeded instead")
	}

	revertErr, ok := err.(RevertDataError)
	if !ok {
		return common.Address{}, fmt.Errorf("getSenderAddress: revert did not carry structured data: %w", err)
	}

	data, ok := revertDataBytes(revertErr.ErrorData())
	if !ok || len(data) < len(senderAddressResultSelector)+32 {
		return common.Address{}, &AbiDecodeError{What: "SenderAddressResult", Cause: fmt.Errorf("short or missing revert data")}
	}

	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		return common.Address{}, err
	}
	decodeArgs := abi.Arguments{{Type: addressType}}
	decoded, err := decodeArgs.Unpack(data[len(senderAddressResultSelector):])
	if err != nil || len(decoded) != 1 {
		return common.Address{}, &AbiDecodeError{What: "SenderAddressResult", Cause: err}
	}
	addr, ok := decoded[0].(common.Address)
	if !ok {
		return common.Address{}, &AbiDecodeError{What: "SenderAddressResult", Cause: fmt.Errorf("unexpected decoded type")}
	}

	return addr, nil
}

// revertDataBytes normalizes the several shapes a JSON-RPC client's
// ErrorData() may return (hex string, []byte, or json.RawMessage-wrapped hex
// string) into raw bytes.
func revertDataBytes(data interface{}) ([]byte, bool) {
	switch v := data.(type) {
	case []byte:
		return v, true
	case string:
		return hexToBytes(v), len(v) > 0
	default:
		return nil, false
	}
}

// PredictCounterfactualAddress computes an account's address off-chain,
// before any on-chain call, using zkSync's CREATE2 rule. zkSync contracts
// are addressed by a bytecode *hash* rather than raw init code, and the salt
// is itself a hash of the account ID and the deploying EOA, so the generic
// CREATE2 formula keccak(0xff ‖ deployer ‖ salt ‖ keccak(bytecodeHash ‖
// keccak(input)))[12:] is applied with those two substitutions.
func PredictCounterfactualAddress(factory, deployerEOA common.Address, accountIDHash, beaconProxyBytecodeHash common.Hash, beaconAddress common.Address) (common.Address, error) {
	salt := crypto.Keccak256(accountIDHash.Bytes(), deployerEOA.Bytes())

	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		return common.Address{}, err
	}
	input, err := (abi.Arguments{{Type: addressType}}).Pack(beaconAddress)
	if err != nil {
		return common.Address{}, err
	}
	inputHash := crypto.Keccak256(input)

	bytecodeAndInputHash := crypto.Keccak256(beaconProxyBytecodeHash.Bytes(), inputHash)

	preimage := make([]byte, 0, 1+common.AddressLength+len(salt)+len(bytecodeAndInputHash))
	preimage = append(preimage, 0xff)
	preimage = append(preimage, factory.Bytes()...)
	preimage = append(preimage, salt...)
	preimage = append(preimage, bytecodeAndInputHash...)

	return common.BytesToAddress(crypto.Keccak256(preimage)[12:]), nil
}

// DeploySender is the subset of the C10 pipeline DeployAccountWithUserOp
// needs.
type DeploySender interface {
	SendUserOperation(ctx context.Context, params SendUserOpParams) (*UserOperationReceipt, error)
}

// DeployAccountWithUserOpParams bundles the inputs for deploying an account
// via its first UserOperation rather than a direct factory transaction.
type DeployAccountWithUserOpParams struct {
	Factory    common.Address
	EntryPoint common.Address
	AccountID  [32]byte
	InitData   []byte
	Reader     SenderAddressReader
	Sender     DeploySender
	Signer     SmartAccountSigner
}

// DeployAccountWithUserOp deploys an account by submitting a UserOperation
// whose factory payload is the AAFactory.deployAccount(salt, initData) call
// and whose callData is empty. It predicts the sender address up front via
// GetSenderAddress, submits, and asserts the AccountCreated event in the
// resulting receipt matches the prediction.
func DeployAccountWithUserOp(ctx context.Context, p DeployAccountWithUserOpParams) (common.Address, *UserOperationReceipt, error) {
	factoryData, err := deployAccountCallData(p.AccountID, p.InitData)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("encode deployAccount call data: %w", err)
	}

	predicted, err := GetSenderAddress(ctx, p.Reader, p.EntryPoint, p.Factory, factoryData)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("predict sender address: %w", err)
	}

	receipt, err := p.Sender.SendUserOperation(ctx, SendUserOpParams{
		Account:    predicted,
		EntryPoint: p.EntryPoint,
		FactoryPayload: &FactoryPayload{
			Factory:     p.Factory,
			FactoryData: factoryData,
		},
		CallData: []byte{},
		Signer:   p.Signer,
	})
	if err != nil {
		return common.Address{}, nil, err
	}

	actual, err := ExtractAccountCreatedAddress(&receipt.Receipt)
	if err != nil {
		return common.Address{}, receipt, err
	}
	if actual != predicted {
		return common.Address{}, receipt, &PredictedAddressMismatchError{Predicted: predicted, Actual: actual}
	}

	return actual, receipt, nil
}
