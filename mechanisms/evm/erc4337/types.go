// Package erc4337 implements the ERC-4337 account abstraction plumbing that
// the SDK's session-key and social-recovery flows build on: UserOperation
// construction, bundler/paymaster RPC clients, and the packed wire format
// consumed by the EntryPoint contract.
package erc4337

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EntryPoint addresses (canonical deployments).
const (
	// EntryPointV07Address is the v0.7 EntryPoint contract address. The SDK's
	// PackedUserOperation wire layout (separate accountGasLimits/gasFees words)
	// is the v0.7 struct; "v0.8" in the wild refers to client libraries that
	// target the same on-chain EntryPoint with a stricter unpacked JSON-RPC
	// wire, which is what UserOperation below represents.
	EntryPointV07Address = "0x0000000071727De22E5E9d8BAf0edAc6f37da032"
	// EntryPointV06Address is the v0.6 EntryPoint contract address (legacy).
	EntryPointV06Address = "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
)

// UserOperation is the unpacked, off-chain representation of an ERC-4337
// operation. This is the shape the bundler JSON-RPC methods
// (eth_estimateUserOperationGas, eth_sendUserOperation) speak: every gas and
// fee quantity is its own hex field rather than packed into a bytes32 word.
type UserOperation struct {
	Sender   common.Address  `json:"sender"`
	Nonce    *big.Int        `json:"nonce"`
	Factory  *common.Address `json:"factory,omitempty"`
	FactoryData []byte       `json:"factoryData,omitempty"`
	CallData []byte          `json:"callData"`

	CallGasLimit         *big.Int `json:"callGasLimit"`
	VerificationGasLimit *big.Int `json:"verificationGasLimit"`
	PreVerificationGas   *big.Int `json:"preVerificationGas"`
	MaxFeePerGas         *big.Int `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *big.Int `json:"maxPriorityFeePerGas"`

	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *big.Int        `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *big.Int        `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 []byte          `json:"paymasterData,omitempty"`

	Signature []byte `json:"signature"`
}

// PackedUserOperation is the on-chain struct the EntryPoint contract expects:
// gas fields are packed into bytes32 words, and the factory/paymaster fields
// are concatenated into initCode/paymasterAndData. This is the shape used for
// computing the UserOperation hash and for ABI-encoding EntryPoint calls.
type PackedUserOperation struct {
	Sender             common.Address `json:"sender"`
	Nonce              *big.Int       `json:"nonce"`
	InitCode           []byte         `json:"initCode"`
	CallData           []byte         `json:"callData"`
	AccountGasLimits   [32]byte       `json:"accountGasLimits"`
	PreVerificationGas *big.Int       `json:"preVerificationGas"`
	GasFees            [32]byte       `json:"gasFees"`
	PaymasterAndData   []byte         `json:"paymasterAndData"`
	Signature          []byte         `json:"signature"`
}

// GasEstimate contains gas estimation results from the bundler.
type GasEstimate struct {
	CallGasLimit                 *big.Int `json:"callGasLimit"`
	VerificationGasLimit          *big.Int `json:"verificationGasLimit"`
	PreVerificationGas            *big.Int `json:"preVerificationGas"`
	PaymasterVerificationGasLimit *big.Int `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *big.Int `json:"paymasterPostOpGasLimit,omitempty"`
}

// UserOperationReceipt contains the receipt after UserOperation execution.
type UserOperationReceipt struct {
	UserOpHash    common.Hash     `json:"userOpHash"`
	Sender        common.Address  `json:"sender"`
	Nonce         *big.Int        `json:"nonce"`
	Paymaster     *common.Address `json:"paymaster,omitempty"`
	ActualGasCost *big.Int        `json:"actualGasCost"`
	ActualGasUsed *big.Int        `json:"actualGasUsed"`
	Success       bool            `json:"success"`
	Reason        string          `json:"reason,omitempty"`
	Receipt       TransactionReceipt `json:"receipt"`
}

// TransactionReceipt contains transaction receipt information.
type TransactionReceipt struct {
	TransactionHash common.Hash `json:"transactionHash"`
	BlockNumber     *big.Int    `json:"blockNumber"`
	BlockHash       common.Hash `json:"blockHash"`
	Logs            []Log       `json:"logs"`
}

// Log is a minimal EVM log entry, enough to locate AccountCreated /
// ModuleInstalled / guardian and session events without pulling in a full
// ethclient.Client dependency at the interface boundary.
type Log struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    []byte         `json:"data"`
	BlockNumber uint64     `json:"blockNumber"`
	TxHash  common.Hash    `json:"transactionHash"`
}

// BundlerConfig contains configuration for the bundler client.
type BundlerConfig struct {
	BundlerURL string         `json:"bundlerUrl"`
	EntryPoint common.Address `json:"entryPoint,omitempty"`
	ChainID    int64          `json:"chainId"`
}

// PaymasterConfig contains configuration for paymaster integration.
type PaymasterConfig struct {
	Address common.Address `json:"address"`
	URL     string         `json:"url,omitempty"`
	Type    PaymasterType  `json:"type"`
}

// SmartAccountSigner is implemented by anything that can authorize a
// UserOperation and describe the smart account it authorizes on behalf of.
// EOA, WebAuthn, and session-key validators all implement this.
type SmartAccountSigner interface {
	Address() common.Address
	// SignUserOpHash produces the fat signature envelope (validator address
	// prefix plus validator-specific payload) for the given UserOperation
	// hash, scoped to entryPoint/chainID.
	SignUserOpHash(ctx context.Context, userOpHash common.Hash, entryPoint common.Address, chainID int64) ([]byte, error)
	// StubSignature returns a deterministic placeholder signature of the same
	// byte length as a real one, for gas estimation before signing.
	StubSignature() []byte
}

// BundlerClient is the interface for bundler clients.
type BundlerClient interface {
	SendUserOperation(ctx context.Context, userOp *UserOperation, entryPoint common.Address) (common.Hash, error)
	EstimateUserOperationGas(ctx context.Context, userOp *UserOperation, entryPoint common.Address) (*GasEstimate, error)
	GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*UserOperationReceipt, error)
	// GetUserOperationByHash looks up a previously submitted UserOperation by
	// its hash, returning nil if the bundler has not seen it.
	GetUserOperationByHash(ctx context.Context, hash common.Hash) (*UserOperation, error)
	GetSupportedEntryPoints(ctx context.Context) ([]common.Address, error)
	// WaitForReceipt polls until a receipt is available or the context is
	// cancelled, using bounded exponential backoff with jitter between polls.
	WaitForReceipt(ctx context.Context, hash common.Hash) (*UserOperationReceipt, error)
}

// PaymasterClient is the interface for paymaster clients.
type PaymasterClient interface {
	// SponsorUserOperation requests sponsorship data from the paymaster
	// service and returns a copy of userOp with the paymaster fields merged
	// in (paymaster address, paymaster gas limits, paymasterData, and any
	// gas-limit/fee fields the paymaster overrides).
	SponsorUserOperation(ctx context.Context, userOp *UserOperation, chainID int64, entryPoint common.Address) (*UserOperation, error)
}
