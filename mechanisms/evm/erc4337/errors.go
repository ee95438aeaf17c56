package erc4337

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// RPCTransportError wraps a transport-level failure talking to a bundler or
// paymaster endpoint (connection refused, timeout, non-200 status).
type RPCTransportError struct {
	Endpoint string
	Cause    error
}

func (e *RPCTransportError) Error() string {
	return fmt.Sprintf("rpc transport error calling %s: %s", e.Endpoint, e.Cause)
}

func (e *RPCTransportError) Unwrap() error { return e.Cause }

// BundlerRejectedError carries a JSON-RPC error response from a bundler,
// preserving its code/message/data so callers can inspect AA-prefixed
// EntryPoint revert reasons (e.g. AA23 validation failure).
type BundlerRejectedError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *BundlerRejectedError) Error() string {
	return fmt.Sprintf("bundler rejected user operation (%d): %s", e.Code, e.Message)
}

// EstimationFailedError wraps a failure from eth_estimateUserOperationGas.
type EstimationFailedError struct {
	Cause error
}

func (e *EstimationFailedError) Error() string {
	return fmt.Sprintf("gas estimation failed: %s", e.Cause)
}

func (e *EstimationFailedError) Unwrap() error { return e.Cause }

// ReceiptTimeoutError is returned when WaitForReceipt exhausts its backoff
// schedule without the bundler reporting inclusion.
type ReceiptTimeoutError struct {
	UserOpHash common.Hash
	Attempts   int
}

func (e *ReceiptTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %d attempts waiting for receipt of %s", e.Attempts, e.UserOpHash.Hex())
}

// SigningFailedError wraps a signer-side failure (key unavailable, WebAuthn
// assertion rejected, session envelope malformed).
type SigningFailedError struct {
	Validator string
	Cause     error
}

func (e *SigningFailedError) Error() string {
	return fmt.Sprintf("signing failed for validator %s: %s", e.Validator, e.Cause)
}

func (e *SigningFailedError) Unwrap() error { return e.Cause }

// ModuleNotInstalledError is returned when an operation requires a module
// that IsModuleInstalled reports as absent.
type ModuleNotInstalledError struct {
	Account common.Address
	Module  common.Address
}

func (e *ModuleNotInstalledError) Error() string {
	return fmt.Sprintf("module %s is not installed on account %s", e.Module.Hex(), e.Account.Hex())
}

// InstallVerificationFailedError is returned when installModule lands on
// chain but the subsequent isModuleInstalled check still reports false.
type InstallVerificationFailedError struct {
	Account common.Address
	Module  common.Address
}

func (e *InstallVerificationFailedError) Error() string {
	return fmt.Sprintf("module %s reported installed=false on account %s after install transaction landed", e.Module.Hex(), e.Account.Hex())
}

// PredictedAddressMismatchError is returned when the address computed via
// CREATE2/getSenderAddress before submission does not match the address the
// AccountCreated event reports after deployment.
type PredictedAddressMismatchError struct {
	Predicted common.Address
	Actual    common.Address
}

func (e *PredictedAddressMismatchError) Error() string {
	return fmt.Sprintf("predicted account address %s does not match deployed address %s", e.Predicted.Hex(), e.Actual.Hex())
}

// AccountCreatedEventMissingError is returned when a deployment receipt's
// logs do not contain the expected AccountCreated event.
type AccountCreatedEventMissingError struct {
	TxHash common.Hash
}

func (e *AccountCreatedEventMissingError) Error() string {
	return fmt.Sprintf("transaction %s did not emit an AccountCreated event", e.TxHash.Hex())
}

// InvalidPrivateKeyError is returned when a signer is constructed from a
// malformed hex-encoded private key.
type InvalidPrivateKeyError struct {
	Cause error
}

func (e *InvalidPrivateKeyError) Error() string {
	return fmt.Sprintf("invalid private key: %s", e.Cause)
}

func (e *InvalidPrivateKeyError) Unwrap() error { return e.Cause }

// InvalidAddressError is returned when a hex string does not decode to a
// well-formed 20-byte address.
type InvalidAddressError struct {
	Input string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address: %q", e.Input)
}

// InvalidHexError is returned when a string expected to be hex-encoded
// (signature bytes, call data, session hashes) fails to decode.
type InvalidHexError struct {
	Input string
	Cause error
}

func (e *InvalidHexError) Error() string {
	return fmt.Sprintf("invalid hex %q: %s", e.Input, e.Cause)
}

func (e *InvalidHexError) Unwrap() error { return e.Cause }

// AbiDecodeError wraps a failure decoding ABI-encoded call data or log data.
type AbiDecodeError struct {
	What  string
	Cause error
}

func (e *AbiDecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %s", e.What, e.Cause)
}

func (e *AbiDecodeError) Unwrap() error { return e.Cause }
