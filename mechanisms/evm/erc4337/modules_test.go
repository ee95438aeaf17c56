package erc4337

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// fakeModuleInstaller is a ModuleInstaller that records the UserOperation it
// was asked to send and answers isModuleInstalled reads from a toggle, so
// tests can exercise InstallModule's post-send verification without a chain.
type fakeModuleInstaller struct {
	sendCalls  []SendUserOpParams
	installed  bool
	sendErr    error
	receipt    *UserOperationReceipt
}

func (f *fakeModuleInstaller) SendUserOperation(ctx context.Context, params SendUserOpParams) (*UserOperationReceipt, error) {
	f.sendCalls = append(f.sendCalls, params)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if f.receipt != nil {
		return f.receipt, nil
	}
	return &UserOperationReceipt{Success: true}, nil
}

func (f *fakeModuleInstaller) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	word := make([]byte, 32)
	if f.installed {
		word[31] = 1
	}
	return word, nil
}

func TestInstallModule_SucceedsWhenIsModuleInstalledReportsTrue(t *testing.T) {
	installer := &fakeModuleInstaller{installed: true}
	account := common.HexToAddress("0x1111111111111111111111111111111111111111")
	entryPoint := common.HexToAddress("0x2222222222222222222222222222222222222222")
	module := common.HexToAddress("0x3333333333333333333333333333333333333333")
	signer := &stubSigner{addr: account}

	receipt, err := InstallModule(context.Background(), installer, account, entryPoint, module, ModuleTypeValidator, []byte("init"), signer)
	if err != nil {
		t.Fatalf("InstallModule() error = %v, want nil", err)
	}
	if receipt == nil {
		t.Fatal("InstallModule() returned nil receipt")
	}
	if len(installer.sendCalls) != 1 {
		t.Fatalf("SendUserOperation called %d times, want 1", len(installer.sendCalls))
	}
	if installer.sendCalls[0].Account != account {
		t.Errorf("sent UserOperation account = %s, want %s", installer.sendCalls[0].Account.Hex(), account.Hex())
	}
}

func TestInstallModule_FailsWhenIsModuleInstalledStillReportsFalse(t *testing.T) {
	installer := &fakeModuleInstaller{installed: false}
	account := common.HexToAddress("0x1111111111111111111111111111111111111111")
	entryPoint := common.HexToAddress("0x2222222222222222222222222222222222222222")
	module := common.HexToAddress("0x3333333333333333333333333333333333333333")
	signer := &stubSigner{addr: account}

	_, err := InstallModule(context.Background(), installer, account, entryPoint, module, ModuleTypeValidator, []byte("init"), signer)
	if err == nil {
		t.Fatal("InstallModule() error = nil, want InstallVerificationFailedError")
	}
	var verifyErr *InstallVerificationFailedError
	if !errors.As(err, &verifyErr) {
		t.Fatalf("InstallModule() error = %v, want *InstallVerificationFailedError", err)
	}
	if verifyErr.Account != account || verifyErr.Module != module {
		t.Errorf("InstallVerificationFailedError = %+v, want Account=%s Module=%s", verifyErr, account.Hex(), module.Hex())
	}
}

// stubSigner is a minimal SmartAccountSigner for tests that never actually
// sign anything — SendUserOperation is faked, so the signer is only ever
// threaded through, never invoked.
type stubSigner struct {
	addr common.Address
}

func (s *stubSigner) Address() common.Address { return s.addr }

func (s *stubSigner) SignUserOpHash(ctx context.Context, userOpHash common.Hash, entryPoint common.Address, chainID int64) ([]byte, error) {
	return []byte("stub-signature"), nil
}

func (s *stubSigner) StubSignature() []byte {
	return make([]byte, 65)
}
