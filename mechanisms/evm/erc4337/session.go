package erc4337

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// UsageLimitType is the kind of budget a SessionSpec fee or transfer limit
// enforces.
type UsageLimitType uint8

const (
	UsageLimitUnlimited UsageLimitType = iota
	UsageLimitLifetime
	UsageLimitAllowance
)

// UsageLimit bounds how much value a session can move, either once over its
// whole lifetime or per rolling Period when LimitType is Allowance.
type UsageLimit struct {
	LimitType UsageLimitType
	Limit     *big.Int
	Period    uint64 // seconds; meaningful only when LimitType == UsageLimitAllowance
}

// TransferSpec authorizes a session to move ETH to a specific target under a
// UsageLimit.
type TransferSpec struct {
	Target         common.Address
	MaxValuePerUse *big.Int
	ValueLimit     UsageLimit
}

// CallSpec authorizes a session to call a specific target/selector pair,
// optionally under additional calldata constraints.
type CallSpec struct {
	Target         common.Address
	Selector       [4]byte
	MaxValuePerUse *big.Int
	ValueLimit     UsageLimit
	Constraints    [][]byte
}

// SessionSpec describes the capabilities granted to a session signer: what it
// may call, what it may transfer, and for how long. The session hash (see
// HashSession) is this value's content-addressed identity on chain.
type SessionSpec struct {
	Signer           common.Address
	ExpiresAt        uint64
	FeeLimit         UsageLimit
	CallPolicies     []CallSpec
	TransferPolicies []TransferSpec
}

// ActiveSession pairs a session's on-chain hash with the spec that created
// it, as returned by GetActiveSessions.
type ActiveSession struct {
	SessionHash common.Hash
	Spec        SessionSpec
}

var (
	sessionCreatedTopic = common.BytesToHash(crypto.Keccak256([]byte("SessionCreated(address,bytes32,bytes)")))
	sessionRevokedTopic = common.BytesToHash(crypto.Keccak256([]byte("SessionRevoked(address,bytes32)")))

	revokeKeySelector = mustSelector("revokeKey(bytes32)")
)

// sessionSpecABIType is the canonical ABI tuple signature for SessionSpec,
// matching sessionSpecTupleType's ArgumentMarshaling field-for-field. It is
// spelled out literally (rather than derived from abi.Type) so the selector
// below reads the same way every other mustSelector call in this package
// does: a plain signature string.
const sessionSpecABIType = "(address,uint48,(uint8,uint256,uint48),(address,bytes4,uint256,(uint8,uint256,uint48),bytes[])[],(address,uint256,(uint8,uint256,uint48))[])"

// createSessionSelector is SessionKeyValidator.createSession(SessionSpec,bytes)
// — the session spec tuple followed by the owner's attestation proof.
var createSessionSelector = mustSelector("createSession(" + sessionSpecABIType + ",bytes)")

var usageLimitTupleType = func() abi.Type {
	t, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "limitType", Type: "uint8"},
		{Name: "limit", Type: "uint256"},
		{Name: "period", Type: "uint48"},
	})
	if err != nil {
		panic(err)
	}
	return t
}()

var sessionSpecTupleType = func() abi.Type {
	t, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "signer", Type: "address"},
		{Name: "expiresAt", Type: "uint48"},
		{Name: "feeLimit", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "limitType", Type: "uint8"},
			{Name: "limit", Type: "uint256"},
			{Name: "period", Type: "uint48"},
		}},
		{Name: "callPolicies", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "target", Type: "address"},
			{Name: "selector", Type: "bytes4"},
			{Name: "maxValuePerUse", Type: "uint256"},
			{Name: "valueLimit", Type: "tuple", Components: []abi.ArgumentMarshaling{
				{Name: "limitType", Type: "uint8"},
				{Name: "limit", Type: "uint256"},
				{Name: "period", Type: "uint48"},
			}},
			{Name: "constraints", Type: "bytes[]"},
		}},
		{Name: "transferPolicies", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "target", Type: "address"},
			{Name: "maxValuePerUse", Type: "uint256"},
			{Name: "valueLimit", Type: "tuple", Components: []abi.ArgumentMarshaling{
				{Name: "limitType", Type: "uint8"},
				{Name: "limit", Type: "uint256"},
				{Name: "period", Type: "uint48"},
			}},
		}},
	})
	if err != nil {
		panic(err)
	}
	return t
}()

type usageLimitAbi struct {
	LimitType uint8
	Limit     *big.Int
	Period    *big.Int
}

type callSpecAbi struct {
	Target         common.Address
	Selector       [4]byte
	MaxValuePerUse *big.Int
	ValueLimit     usageLimitAbi
	Constraints    [][]byte
}

type transferSpecAbi struct {
	Target         common.Address
	MaxValuePerUse *big.Int
	ValueLimit     usageLimitAbi
}

type sessionSpecAbi struct {
	Signer           common.Address
	ExpiresAt        *big.Int
	FeeLimit         usageLimitAbi
	CallPolicies     []callSpecAbi
	TransferPolicies []transferSpecAbi
}

func toUsageLimitAbi(l UsageLimit) usageLimitAbi {
	limit := l.Limit
	if limit == nil {
		limit = big.NewInt(0)
	}
	return usageLimitAbi{LimitType: uint8(l.LimitType), Limit: limit, Period: new(big.Int).SetUint64(l.Period)}
}

func toSessionSpecAbi(spec SessionSpec) sessionSpecAbi {
	calls := make([]callSpecAbi, len(spec.CallPolicies))
	for i, c := range spec.CallPolicies {
		maxValue := c.MaxValuePerUse
		if maxValue == nil {
			maxValue = big.NewInt(0)
		}
		constraints := c.Constraints
		if constraints == nil {
			constraints = [][]byte{}
		}
		calls[i] = callSpecAbi{
			Target:         c.Target,
			Selector:       c.Selector,
			MaxValuePerUse: maxValue,
			ValueLimit:     toUsageLimitAbi(c.ValueLimit),
			Constraints:    constraints,
		}
	}

	transfers := make([]transferSpecAbi, len(spec.TransferPolicies))
	for i, t := range spec.TransferPolicies {
		maxValue := t.MaxValuePerUse
		if maxValue == nil {
			maxValue = big.NewInt(0)
		}
		transfers[i] = transferSpecAbi{
			Target:         t.Target,
			MaxValuePerUse: maxValue,
			ValueLimit:     toUsageLimitAbi(t.ValueLimit),
		}
	}

	return sessionSpecAbi{
		Signer:           spec.Signer,
		ExpiresAt:        new(big.Int).SetUint64(spec.ExpiresAt),
		FeeLimit:         toUsageLimitAbi(spec.FeeLimit),
		CallPolicies:     calls,
		TransferPolicies: transfers,
	}
}

// EncodeSessionSpec ABI-encodes a SessionSpec as the tuple the session-key
// validator contract and HashSession both operate on.
func EncodeSessionSpec(spec SessionSpec) ([]byte, error) {
	args := abi.Arguments{{Type: sessionSpecTupleType}}
	return args.Pack(toSessionSpecAbi(spec))
}

// HashSession computes the session hash: keccak-256 of the ABI encoding of
// SessionSpec. This is the on-chain identity of a session and the key used
// for revocation.
func HashSession(spec SessionSpec) (common.Hash, error) {
	encoded, err := EncodeSessionSpec(spec)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode session spec: %w", err)
	}
	return common.BytesToHash(crypto.Keccak256(encoded)), nil
}

// encodeSessionExecuteCall wraps a single session-management call (create or
// revoke) into the account's execute(mode, execution) calldata. Unlike
// calls.EncodeCalls, the mode byte here is ALWAYS the batch marker (0x01)
// even though there is exactly one call: session-management entry points are
// invoked through the same calldata shape the account uses for batched
// executions, and this must never be special-cased to single-call mode.
func encodeSessionExecuteCall(target common.Address, data []byte) ([]byte, error) {
	tuples := []executionTuple{{Target: target, Value: big.NewInt(0), CallData: data}}

	args := abi.Arguments{{Type: executionTupleType}}
	execution, err := args.Pack(tuples)
	if err != nil {
		return nil, err
	}

	return encodeExecuteCall(ModeCodeBatch(), execution)
}

// createSessionCallData ABI-encodes SessionKeyValidator.createSession(spec,
// proof). proof is the owner's EOA signature over keccak(sessionHash ‖
// accountAddr), attesting that the account owner authorized this session —
// the validator checks it against the account's EOA validator before
// registering the session.
func createSessionCallData(spec SessionSpec, proof []byte) ([]byte, error) {
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: sessionSpecTupleType}, {Type: bytesType}}
	packed, err := args.Pack(toSessionSpecAbi(spec), proof)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, createSessionSelector...), packed...), nil
}

// revokeKeyCallData ABI-encodes SessionKeyValidator.revokeKey(sessionHash).
func revokeKeyCallData(sessionHash common.Hash) ([]byte, error) {
	bytes32Type, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: bytes32Type}}
	packed, err := args.Pack(sessionHash)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, revokeKeySelector...), packed...), nil
}

// SessionSender is the subset of the C10 send pipeline CreateSession and
// RevokeSession need, kept narrow so session.go does not import send.go's
// full dependency surface.
type SessionSender interface {
	SendUserOperation(ctx context.Context, params SendUserOpParams) (*UserOperationReceipt, error)
}

// CreateSession installs a new session by calling the session-key
// validator's createSession(spec, proof) through the account's execute
// pipeline. proof is the owner's EOA signature over keccak(sessionHash ‖
// accountAddr) (see HashSession), computed by the caller and passed through
// unmodified — this function does not sign anything itself.
func CreateSession(ctx context.Context, sender SessionSender, account, sessionKeyValidator, entryPoint common.Address, spec SessionSpec, proof []byte, signer SmartAccountSigner) (*UserOperationReceipt, error) {
	innerCallData, err := createSessionCallData(spec, proof)
	if err != nil {
		return nil, fmt.Errorf("encode createSession call data: %w", err)
	}

	callData, err := encodeSessionExecuteCall(sessionKeyValidator, innerCallData)
	if err != nil {
		return nil, fmt.Errorf("encode session execute call: %w", err)
	}

	return sender.SendUserOperation(ctx, SendUserOpParams{
		Account:    account,
		EntryPoint: entryPoint,
		CallData:   callData,
		Signer:     signer,
	})
}

// RevokeSession revokes a session by calling the session-key validator's
// revokeKey(sessionHash) through the account's execute pipeline.
func RevokeSession(ctx context.Context, sender SessionSender, account, sessionKeyValidator, entryPoint common.Address, sessionHash common.Hash, signer SmartAccountSigner) (*UserOperationReceipt, error) {
	innerCallData, err := revokeKeyCallData(sessionHash)
	if err != nil {
		return nil, fmt.Errorf("encode revokeKey call data: %w", err)
	}

	callData, err := encodeSessionExecuteCall(sessionKeyValidator, innerCallData)
	if err != nil {
		return nil, fmt.Errorf("encode session execute call: %w", err)
	}

	return sender.SendUserOperation(ctx, SendUserOpParams{
		Account:    account,
		EntryPoint: entryPoint,
		CallData:   callData,
		Signer:     signer,
	})
}

// decodedSessionCreated/Revoked mirror the SessionCreated(address account,
// bytes32 sessionHash, bytes spec)/SessionRevoked(address account, bytes32
// sessionHash) event payloads.
var sessionEventArgs = abi.Arguments{
	{Type: mustType("bytes32")},
	{Type: mustType("bytes")},
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// GetActiveSessions reconstructs the set of currently active sessions for an
// account by replaying SessionCreated/SessionRevoked events over the last
// MaxBlockRange blocks at the session-key validator's address. The active set
// is created-minus-revoked-by-hash; the last relevant event wins per hash.
func GetActiveSessions(ctx context.Context, reader LogFilterer, account, sessionKeyValidator common.Address) ([]ActiveSession, error) {
	logs, err := FetchBoundedLogs(ctx, reader, sessionKeyValidator)
	if err != nil {
		return nil, fmt.Errorf("fetch session logs: %w", err)
	}

	created, revoked := ParseAddRemoveEvents[ActiveSession, common.Hash](
		logs,
		sessionCreatedTopic,
		sessionRevokedTopic,
		func(log Log) (ActiveSession, bool) {
			if len(log.Topics) < 2 || log.Topics[1] != common.BytesToHash(account.Bytes()) {
				return ActiveSession{}, false
			}
			decoded, err := sessionEventArgs.Unpack(log.Data)
			if err != nil || len(decoded) != 2 {
				return ActiveSession{}, false
			}
			sessionHash, ok := decoded[0].([32]byte)
			if !ok {
				return ActiveSession{}, false
			}
			specBytes, ok := decoded[1].([]byte)
			if !ok {
				return ActiveSession{}, false
			}
			spec, err := decodeSessionSpec(specBytes)
			if err != nil {
				return ActiveSession{}, false
			}
			return ActiveSession{SessionHash: sessionHash, Spec: spec}, true
		},
		func(log Log) (common.Hash, bool) {
			if len(log.Topics) < 3 || log.Topics[1] != common.BytesToHash(account.Bytes()) {
				return common.Hash{}, false
			}
			return log.Topics[2], true
		},
	)

	active := make([]ActiveSession, 0, len(created))
	for _, session := range created {
		if _, isRevoked := revoked[session.SessionHash]; isRevoked {
			continue
		}
		active = append(active, session)
	}
	return active, nil
}

func decodeSessionSpec(raw []byte) (SessionSpec, error) {
	args := abi.Arguments{{Type: sessionSpecTupleType}}
	decoded, err := args.Unpack(raw)
	if err != nil || len(decoded) != 1 {
		return SessionSpec{}, fmt.Errorf("unpack session spec: %w", err)
	}
	abiSpec, ok := decoded[0].(sessionSpecAbi)
	if !ok {
		return SessionSpec{}, fmt.Errorf("unexpected session spec shape")
	}
	return fromSessionSpecAbi(abiSpec), nil
}

func fromUsageLimitAbi(l usageLimitAbi) UsageLimit {
	return UsageLimit{LimitType: UsageLimitType(l.LimitType), Limit: l.Limit, Period: l.Period.Uint64()}
}

func fromSessionSpecAbi(a sessionSpecAbi) SessionSpec {
	calls := make([]CallSpec, len(a.CallPolicies))
	for i, c := range a.CallPolicies {
		calls[i] = CallSpec{
			Target:         c.Target,
			Selector:       c.Selector,
			MaxValuePerUse: c.MaxValuePerUse,
			ValueLimit:     fromUsageLimitAbi(c.ValueLimit),
			Constraints:    c.Constraints,
		}
	}
	transfers := make([]TransferSpec, len(a.TransferPolicies))
	for i, t := range a.TransferPolicies {
		transfers[i] = TransferSpec{
			Target:         t.Target,
			MaxValuePerUse: t.MaxValuePerUse,
			ValueLimit:     fromUsageLimitAbi(t.ValueLimit),
		}
	}
	return SessionSpec{
		Signer:           a.Signer,
		ExpiresAt:        a.ExpiresAt.Uint64(),
		FeeLimit:         fromUsageLimitAbi(a.FeeLimit),
		CallPolicies:     calls,
		TransferPolicies: transfers,
	}
}

var sessionSignaturePayloadArgs = abi.Arguments{
	{Type: mustType("bytes")},
	{Type: sessionSpecTupleType},
	{Type: mustType("uint48[]")},
}

// EncodeSessionSignaturePayload ABI-encodes the (signature, SessionSpec,
// periodIds) tuple fields as top-level parameters — the payload a session
// signer's fat envelope carries after its validator-address prefix.
func EncodeSessionSignaturePayload(signature []byte, spec SessionSpec, periodIDs []uint64) ([]byte, error) {
	ids := make([]*big.Int, len(periodIDs))
	for i, id := range periodIDs {
		ids[i] = new(big.Int).SetUint64(id)
	}
	return sessionSignaturePayloadArgs.Pack(signature, toSessionSpecAbi(spec), ids)
}

// GetPeriodID computes the allowance period index for a UsageLimit at
// timestamp `now`: floor(now / limit.Period) when LimitType is Allowance,
// else 0. This is the no-system-clock-dependent variant; callers pick `now`
// explicitly so estimation and real signing stay deterministic in
// restricted environments.
func GetPeriodID(limit UsageLimit, now uint64) uint64 {
	if limit.LimitType != UsageLimitAllowance || limit.Period == 0 {
		return 0
	}
	return now / limit.Period
}
