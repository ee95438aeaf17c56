package erc4337

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// fakeLogFilterer is a LogFilterer backed by a canned log slice, letting
// GetActiveSessions/GetGuardianStatus/GetRecoveryStatus be exercised without a
// chain.
type fakeLogFilterer struct {
	blockNumber uint64
	logs        []Log
}

func (f *fakeLogFilterer) BlockNumber(ctx context.Context) (uint64, error) {
	return f.blockNumber, nil
}

func (f *fakeLogFilterer) FilterLogs(ctx context.Context, address common.Address, fromBlock *big.Int) ([]Log, error) {
	var matched []Log
	for _, l := range f.logs {
		if l.Address == address {
			matched = append(matched, l)
		}
	}
	return matched, nil
}

func testSessionSpec(signer common.Address) SessionSpec {
	return SessionSpec{
		Signer:    signer,
		ExpiresAt: 1893456000,
		FeeLimit:  UsageLimit{LimitType: UsageLimitUnlimited, Limit: big.NewInt(0)},
	}
}

func sessionCreatedLog(validator, account common.Address, sessionHash common.Hash, spec SessionSpec) Log {
	specBytes, err := EncodeSessionSpec(spec)
	if err != nil {
		panic(err)
	}
	data, err := sessionEventArgs.Pack(sessionHash, specBytes)
	if err != nil {
		panic(err)
	}
	return Log{
		Address: validator,
		Topics:  []common.Hash{sessionCreatedTopic, common.BytesToHash(account.Bytes())},
		Data:    data,
	}
}

func sessionRevokedLog(validator, account common.Address, sessionHash common.Hash) Log {
	return Log{
		Address: validator,
		Topics:  []common.Hash{sessionRevokedTopic, common.BytesToHash(account.Bytes()), sessionHash},
	}
}

// TestGetActiveSessions_CreateThreeRevokeOne exercises scenario S5: three
// sessions are created for an account, the second is revoked, and exactly the
// first and third remain active.
func TestGetActiveSessions_CreateThreeRevokeOne(t *testing.T) {
	validator := common.HexToAddress("0x1111111111111111111111111111111111111111")
	account := common.HexToAddress("0x2222222222222222222222222222222222222222")

	signer1 := common.HexToAddress("0xA1A1A1A1A1A1A1A1A1A1A1A1A1A1A1A1A1A1A1A1")
	signer2 := common.HexToAddress("0xA2A2A2A2A2A2A2A2A2A2A2A2A2A2A2A2A2A2A2A2")
	signer3 := common.HexToAddress("0xA3A3A3A3A3A3A3A3A3A3A3A3A3A3A3A3A3A3A3A3")

	spec1 := testSessionSpec(signer1)
	spec2 := testSessionSpec(signer2)
	spec3 := testSessionSpec(signer3)

	hash1, err := HashSession(spec1)
	if err != nil {
		t.Fatalf("HashSession(spec1) failed: %v", err)
	}
	hash2, err := HashSession(spec2)
	if err != nil {
		t.Fatalf("HashSession(spec2) failed: %v", err)
	}
	hash3, err := HashSession(spec3)
	if err != nil {
		t.Fatalf("HashSession(spec3) failed: %v", err)
	}

	reader := &fakeLogFilterer{
		blockNumber: 1000,
		logs: []Log{
			sessionCreatedLog(validator, account, hash1, spec1),
			sessionCreatedLog(validator, account, hash2, spec2),
			sessionCreatedLog(validator, account, hash3, spec3),
			sessionRevokedLog(validator, account, hash2),
		},
	}

	active, err := GetActiveSessions(context.Background(), reader, account, validator)
	if err != nil {
		t.Fatalf("GetActiveSessions() error = %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("GetActiveSessions() returned %d sessions, want 2: %+v", len(active), active)
	}

	gotHashes := map[common.Hash]bool{}
	for _, s := range active {
		gotHashes[s.SessionHash] = true
	}
	if !gotHashes[hash1] {
		t.Errorf("expected session %s (first) to remain active", hash1.Hex())
	}
	if !gotHashes[hash3] {
		t.Errorf("expected session %s (third) to remain active", hash3.Hex())
	}
	if gotHashes[hash2] {
		t.Errorf("expected session %s (second, revoked) to be excluded", hash2.Hex())
	}
}

func TestGetActiveSessions_NoEvents(t *testing.T) {
	validator := common.HexToAddress("0x1111111111111111111111111111111111111111")
	account := common.HexToAddress("0x2222222222222222222222222222222222222222")
	reader := &fakeLogFilterer{blockNumber: 500}

	active, err := GetActiveSessions(context.Background(), reader, account, validator)
	if err != nil {
		t.Fatalf("GetActiveSessions() error = %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("GetActiveSessions() returned %d sessions, want 0", len(active))
	}
}
