package erc4337

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// GuardianStatus is a (account, guardian) pair's state, reconstructed by
// replaying GuardianExecutor events.
type GuardianStatus uint8

const (
	GuardianDoesNotExist GuardianStatus = iota
	GuardianPresentNotActive
	GuardianActive
	GuardianRemoved
)

// RecoveryType selects which signer kind a recovery installs as the new
// owner.
type RecoveryType uint8

const (
	RecoveryTypeNone RecoveryType = iota
	RecoveryTypeEOA
	RecoveryTypePasskey
)

// RecoveryStatus is an account's current social-recovery sub-state,
// reconstructed by replaying GuardianExecutor recovery events. A nil pointer
// (no status) means no recovery has ever been initiated, or the last one was
// discarded.
type RecoveryStatus uint8

const (
	RecoveryInitialized RecoveryStatus = iota
	RecoveryFinalized
)

var (
	guardianProposedTopic = common.BytesToHash(crypto.Keccak256([]byte("GuardianProposed(address,address)")))
	guardianAcceptedTopic = common.BytesToHash(crypto.Keccak256([]byte("GuardianAccepted(address,address)")))
	guardianRemovedTopic  = common.BytesToHash(crypto.Keccak256([]byte("GuardianRemoved(address,address)")))

	recoveryInitiatedTopic = common.BytesToHash(crypto.Keccak256([]byte("RecoveryInitiated(address,address)")))
	recoveryFinishedTopic  = common.BytesToHash(crypto.Keccak256([]byte("RecoveryFinished(address)")))
	recoveryDiscardedTopic = common.BytesToHash(crypto.Keccak256([]byte("RecoveryDiscarded(address)")))

	proposeGuardianSelector    = mustSelector("proposeGuardian(address)")
	removeGuardianSelector     = mustSelector("removeGuardian(address)")
	acceptGuardianSelector     = mustSelector("acceptGuardian(address)")
	initializeRecoverySelector = mustSelector("initializeRecovery(address,uint8,bytes)")
	finalizeRecoverySelector   = mustSelector("finalizeRecovery(address,bytes)")
)

// GuardianSender is the subset of the C10 pipeline ProposeGuardian and
// RemoveGuardian need: owner-signed calls routed through the account's
// execute(), targeting the external GuardianExecutor contract.
type GuardianSender interface {
	SendUserOperation(ctx context.Context, params SendUserOpParams) (*UserOperationReceipt, error)
}

func proposeGuardianCallData(newGuardian common.Address) ([]byte, error) {
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: addressType}}
	packed, err := args.Pack(newGuardian)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, proposeGuardianSelector...), packed...), nil
}

func removeGuardianCallData(guardianToRemove common.Address) ([]byte, error) {
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: addressType}}
	packed, err := args.Pack(guardianToRemove)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, removeGuardianSelector...), packed...), nil
}

// ProposeGuardian proposes newGuardian for account, an owner-signed
// UserOperation routed through execute() to the GuardianExecutor contract.
func ProposeGuardian(ctx context.Context, sender GuardianSender, account, guardianExecutor, entryPoint, newGuardian common.Address, signer SmartAccountSigner) (*UserOperationReceipt, error) {
	innerCallData, err := proposeGuardianCallData(newGuardian)
	if err != nil {
		return nil, fmt.Errorf("encode proposeGuardian call data: %w", err)
	}

	callData, err := EncodeCalls([]Execution{{Target: guardianExecutor, Value: big.NewInt(0), Data: innerCallData}})
	if err != nil {
		return nil, fmt.Errorf("encode execute call: %w", err)
	}

	return sender.SendUserOperation(ctx, SendUserOpParams{
		Account:    account,
		EntryPoint: entryPoint,
		CallData:   callData,
		Signer:     signer,
	})
}

// RemoveGuardian removes guardianToRemove from account, symmetric to
// ProposeGuardian.
func RemoveGuardian(ctx context.Context, sender GuardianSender, account, guardianExecutor, entryPoint, guardianToRemove common.Address, signer SmartAccountSigner) (*UserOperationReceipt, error) {
	innerCallData, err := removeGuardianCallData(guardianToRemove)
	if err != nil {
		return nil, fmt.Errorf("encode removeGuardian call data: %w", err)
	}

	callData, err := EncodeCalls([]Execution{{Target: guardianExecutor, Value: big.NewInt(0), Data: innerCallData}})
	if err != nil {
		return nil, fmt.Errorf("encode execute call: %w", err)
	}

	return sender.SendUserOperation(ctx, SendUserOpParams{
		Account:    account,
		EntryPoint: entryPoint,
		CallData:   callData,
		Signer:     signer,
	})
}

// DirectTransactionSender is the plain-EOA transaction surface the guardian's
// own wallet uses for accept/initialize/finalize: these calls never go
// through a UserOperation or the account's execute() — the guardian may not
// hold a smart account at all.
type DirectTransactionSender interface {
	SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
	WaitForTransactionReceipt(ctx context.Context, txHash common.Hash) (*TransactionReceipt, error)
}

// AcceptGuardian sends a direct EOA transaction from the guardian's own
// wallet accepting a pending guardianship proposal for account.
func AcceptGuardian(ctx context.Context, guardianWallet DirectTransactionSender, guardianExecutor, account common.Address) (*TransactionReceipt, error) {
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: addressType}}
	packed, err := args.Pack(account)
	if err != nil {
		return nil, err
	}
	callData := append(append([]byte{}, acceptGuardianSelector...), packed...)

	txHash, err := guardianWallet.SendTransaction(ctx, guardianExecutor, callData)
	if err != nil {
		return nil, fmt.Errorf("send acceptGuardian transaction: %w", err)
	}
	return guardianWallet.WaitForTransactionReceipt(ctx, txHash)
}

// InitializeRecovery sends a direct EOA transaction from the guardian's own
// wallet starting social recovery for account. data is the recovery-type
// specific payload (e.g. ABI-encoded new-owner address for RecoveryTypeEOA).
func InitializeRecovery(ctx context.Context, guardianWallet DirectTransactionSender, guardianExecutor, account common.Address, recoveryType RecoveryType, data []byte) (*TransactionReceipt, error) {
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, err
	}
	uint8Type, err := abi.NewType("uint8", "", nil)
	if err != nil {
		return nil, err
	}
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: addressType}, {Type: uint8Type}, {Type: bytesType}}
	packed, err := args.Pack(account, uint8(recoveryType), data)
	if err != nil {
		return nil, err
	}
	callData := append(append([]byte{}, initializeRecoverySelector...), packed...)

	txHash, err := guardianWallet.SendTransaction(ctx, guardianExecutor, callData)
	if err != nil {
		return nil, fmt.Errorf("send initializeRecovery transaction: %w", err)
	}
	return guardianWallet.WaitForTransactionReceipt(ctx, txHash)
}

// FinalizeRecovery sends a direct EOA transaction from the guardian's own
// wallet completing a previously initialized recovery for account. The
// contract enforces the 24-hour REQUEST_DELAY_TIME; callers must wait for it
// to elapse before calling this.
func FinalizeRecovery(ctx context.Context, guardianWallet DirectTransactionSender, guardianExecutor, account common.Address, data []byte) (*TransactionReceipt, error) {
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, err
	}
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: addressType}, {Type: bytesType}}
	packed, err := args.Pack(account, data)
	if err != nil {
		return nil, err
	}
	callData := append(append([]byte{}, finalizeRecoverySelector...), packed...)

	txHash, err := guardianWallet.SendTransaction(ctx, guardianExecutor, callData)
	if err != nil {
		return nil, fmt.Errorf("send finalizeRecovery transaction: %w", err)
	}
	return guardianWallet.WaitForTransactionReceipt(ctx, txHash)
}

// GetGuardianStatus reconstructs a (account, guardian) pair's state by
// replaying GuardianProposed/GuardianAccepted/GuardianRemoved events over the
// last MaxBlockRange blocks at the GuardianExecutor's address. The most
// recent relevant event determines the current state.
func GetGuardianStatus(ctx context.Context, reader LogFilterer, account, guardian, guardianExecutor common.Address) (GuardianStatus, error) {
	logs, err := FetchBoundedLogs(ctx, reader, guardianExecutor)
	if err != nil {
		return GuardianDoesNotExist, fmt.Errorf("fetch guardian logs: %w", err)
	}

	status := GuardianDoesNotExist
	for _, log := range logs {
		if len(log.Topics) < 3 {
			continue
		}
		if log.Topics[1] != common.BytesToHash(account.Bytes()) || log.Topics[2] != common.BytesToHash(guardian.Bytes()) {
			continue
		}
		switch log.Topics[0] {
		case guardianProposedTopic:
			status = GuardianPresentNotActive
		case guardianAcceptedTopic:
			status = GuardianActive
		case guardianRemovedTopic:
			status = GuardianRemoved
		}
	}

	return status, nil
}

// GetRecoveryStatus reconstructs an account's current recovery sub-state by
// replaying RecoveryInitiated/RecoveryFinished/RecoveryDiscarded events. The
// last relevant event in the window determines the current status; a
// Discarded event (or no event at all) reports "no recovery in progress"
// (ok=false).
func GetRecoveryStatus(ctx context.Context, reader LogFilterer, account, guardian, guardianExecutor common.Address) (status RecoveryStatus, ok bool, err error) {
	logs, err := FetchBoundedLogs(ctx, reader, guardianExecutor)
	if err != nil {
		return 0, false, fmt.Errorf("fetch recovery logs: %w", err)
	}

	for _, log := range logs {
		if len(log.Topics) < 2 {
			continue
		}
		switch log.Topics[0] {
		case recoveryInitiatedTopic:
			if log.Topics[1] == common.BytesToHash(account.Bytes()) &&
				len(log.Topics) >= 3 && log.Topics[2] == common.BytesToHash(guardian.Bytes()) {
				status, ok = RecoveryInitialized, true
			}
		case recoveryFinishedTopic:
			if log.Topics[1] == common.BytesToHash(account.Bytes()) {
				status, ok = RecoveryFinalized, true
			}
		case recoveryDiscardedTopic:
			if log.Topics[1] == common.BytesToHash(account.Bytes()) {
				status, ok = 0, false
			}
		}
	}

	return status, ok, nil
}
