package erc4337

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ModuleTypeID identifies an ERC-7579 module kind; validators and executors
// share the install/uninstall/isInstalled surface but register under
// different type IDs.
type ModuleTypeID uint8

const (
	ModuleTypeValidator ModuleTypeID = 1
	ModuleTypeExecutor  ModuleTypeID = 2
)

var (
	installModuleSelector     = mustSelector("installModule(uint256,address,bytes)")
	uninstallModuleSelector   = mustSelector("uninstallModule(uint256,address,bytes)")
	isModuleInstalledSelector = mustSelector("isModuleInstalled(uint256,address,bytes)")

	addValidationKeySelector = mustSelector("addValidationKey(bytes,bytes32[2],string)")
)

// PasskeyPayload is the WebAuthn validator's per-account init/update data: a
// credential ID, its raw public key as two 32-byte coordinates, and the
// relying-party origin the assertion must match.
type PasskeyPayload struct {
	CredentialID []byte
	RawPublicKey [2][32]byte
	OriginDomain string
}

// ModuleInstaller is the chain surface InstallModule/UninstallModule need:
// routing a call through the account's execute() and reading back
// isModuleInstalled.
type ModuleInstaller interface {
	SendUserOperation(ctx context.Context, params SendUserOpParams) (*UserOperationReceipt, error)
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// installModuleCallData ABI-encodes installModule(moduleTypeId, module, initData).
func installModuleCallData(moduleType ModuleTypeID, module common.Address, initData []byte) ([]byte, error) {
	if initData == nil {
		initData = []byte{}
	}
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return nil, err
	}
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, err
	}
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: uint256Type}, {Type: addressType}, {Type: bytesType}}
	packed, err := args.Pack(big.NewInt(int64(moduleType)), module, initData)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, installModuleSelector...), packed...), nil
}

// uninstallModuleCallData ABI-encodes uninstallModule(moduleTypeId, module, deinitData).
func uninstallModuleCallData(moduleType ModuleTypeID, module common.Address, deinitData []byte) ([]byte, error) {
	if deinitData == nil {
		deinitData = []byte{}
	}
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return nil, err
	}
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, err
	}
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: uint256Type}, {Type: addressType}, {Type: bytesType}}
	packed, err := args.Pack(big.NewInt(int64(moduleType)), module, deinitData)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, uninstallModuleSelector...), packed...), nil
}

// EncodeEOAInitData builds the EOA validator's init data: an ABI-encoded
// `address[] signers` parameter list.
func EncodeEOAInitData(signers []common.Address) ([]byte, error) {
	addressSliceType, err := abi.NewType("address[]", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: addressSliceType}}
	return args.Pack(signers)
}

// EncodeWebAuthnInitData builds the WebAuthn validator's init data: the
// ABI-encoded PasskeyPayload tuple fields (credentialId, rawPublicKey,
// originDomain), matching addValidationKey's argument layout.
func EncodeWebAuthnInitData(passkey PasskeyPayload) ([]byte, error) {
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, err
	}
	bytes32x2Type, err := abi.NewType("bytes32[2]", "", nil)
	if err != nil {
		return nil, err
	}
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: bytesType}, {Type: bytes32x2Type}, {Type: stringType}}
	return args.Pack(passkey.CredentialID, passkey.RawPublicKey, passkey.OriginDomain)
}

// EncodeSessionInitData builds the session-key validator's init data: the
// packed SessionSpec, the same encoding createSession's argument uses.
func EncodeSessionInitData(spec SessionSpec) ([]byte, error) {
	return EncodeSessionSpec(spec)
}

// addValidationKeyCallData ABI-encodes WebAuthnValidator.addValidationKey,
// the update path used once a WebAuthn validator is already installed.
func addValidationKeyCallData(passkey PasskeyPayload) ([]byte, error) {
	packed, err := EncodeWebAuthnInitData(passkey)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, addValidationKeySelector...), packed...), nil
}

// IsModuleInstalled reads IERC7579Account.isModuleInstalled(moduleTypeId,
// module, additionalContext) directly (no UserOperation involved).
func IsModuleInstalled(ctx context.Context, reader NonceReader, account, module common.Address, moduleType ModuleTypeID) (bool, error) {
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return false, err
	}
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		return false, err
	}
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return false, err
	}
	args := abi.Arguments{{Type: uint256Type}, {Type: addressType}, {Type: bytesType}}
	packed, err := args.Pack(big.NewInt(int64(moduleType)), module, []byte{})
	if err != nil {
		return false, err
	}

	calldata := append(append([]byte{}, isModuleInstalledSelector...), packed...)
	result, err := reader.CallContract(ctx, account, calldata)
	if err != nil {
		return false, fmt.Errorf("call isModuleInstalled: %w", err)
	}
	if len(result) < 32 {
		return false, fmt.Errorf("isModuleInstalled: short return data (%d bytes)", len(result))
	}
	return new(big.Int).SetBytes(result[:32]).Sign() != 0, nil
}

// InstallModule routes installModule(moduleType, module, initData) through
// the account's execute pipeline, then asserts isModuleInstalled reports
// true — if it still reports false after the UserOperation confirms, the
// install is considered to have failed even though the transaction landed.
func InstallModule(ctx context.Context, installer ModuleInstaller, account, entryPoint, module common.Address, moduleType ModuleTypeID, initData []byte, signer SmartAccountSigner) (*UserOperationReceipt, error) {
	// installModule is a method the account itself exposes (IERC7579Account),
	// so the UserOperation's callData invokes it directly — unlike a call
	// routed to an external module contract, this does not go through
	// execute()/Execution wrapping.
	callData, err := installModuleCallData(moduleType, module, initData)
	if err != nil {
		return nil, fmt.Errorf("encode installModule call data: %w", err)
	}

	receipt, err := installer.SendUserOperation(ctx, SendUserOpParams{
		Account:    account,
		EntryPoint: entryPoint,
		CallData:   callData,
		Signer:     signer,
	})
	if err != nil {
		return nil, err
	}

	installed, err := IsModuleInstalled(ctx, installer, account, module, moduleType)
	if err != nil {
		return nil, fmt.Errorf("verify module install: %w", err)
	}
	if !installed {
		return nil, &InstallVerificationFailedError{Account: account, Module: module}
	}

	return receipt, nil
}

// UninstallModule routes uninstallModule(moduleType, module, deinitData)
// through the account's execute pipeline.
func UninstallModule(ctx context.Context, installer ModuleInstaller, account, entryPoint, module common.Address, moduleType ModuleTypeID, deinitData []byte, signer SmartAccountSigner) (*UserOperationReceipt, error) {
	// Same direct-call shape as InstallModule: uninstallModule is a method of
	// the account itself.
	callData, err := uninstallModuleCallData(moduleType, module, deinitData)
	if err != nil {
		return nil, fmt.Errorf("encode uninstallModule call data: %w", err)
	}

	return installer.SendUserOperation(ctx, SendUserOpParams{
		Account:    account,
		EntryPoint: entryPoint,
		CallData:   callData,
		Signer:     signer,
	})
}

// AddPasskey updates an already-installed WebAuthn validator's key material
// via addValidationKey, routed through the account's execute pipeline.
func AddPasskey(ctx context.Context, installer ModuleInstaller, account, entryPoint, webauthnValidator common.Address, passkey PasskeyPayload, signer SmartAccountSigner) (*UserOperationReceipt, error) {
	innerCallData, err := addValidationKeyCallData(passkey)
	if err != nil {
		return nil, fmt.Errorf("encode addValidationKey call data: %w", err)
	}

	callData, err := EncodeCalls([]Execution{{Target: webauthnValidator, Value: big.NewInt(0), Data: innerCallData}})
	if err != nil {
		return nil, fmt.Errorf("encode execute call: %w", err)
	}

	return installer.SendUserOperation(ctx, SendUserOpParams{
		Account:    account,
		EntryPoint: entryPoint,
		CallData:   callData,
		Signer:     signer,
	})
}
