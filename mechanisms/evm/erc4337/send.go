package erc4337

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PipelineLogger receives one structured entry per send-pipeline step, so
// failures are attributable to a specific stage without re-deriving it from
// a generic error message. A nil logger is a valid no-op.
type PipelineLogger interface {
	LogStep(ctx context.Context, fields StepFields)
}

// StepFields is the structured payload every pipeline step reports.
type StepFields struct {
	Component string
	Op        string
	Account   common.Address
	ChainID   int64
	Duration  time.Duration
	Err       error
}

// noopLogger is used when SendUserOpParams.Logger is left nil.
type noopLogger struct{}

func (noopLogger) LogStep(context.Context, StepFields) {}

// FactoryPayload carries the init code for an account's first UserOperation,
// when the account has not yet been deployed.
type FactoryPayload struct {
	Factory     common.Address
	FactoryData []byte
}

// SendUserOpParams bundles everything the C10 send pipeline needs to build,
// estimate, optionally sponsor, sign, and submit one UserOperation.
type SendUserOpParams struct {
	Account        common.Address
	EntryPoint     common.Address
	FactoryPayload *FactoryPayload
	CallData       []byte
	NonceKey       *big.Int
	Paymaster      PaymasterClient
	Bundler        BundlerClient
	Chain          interface {
		NonceReader
		HashReader
	}
	ChainID int64
	Signer  SmartAccountSigner
	Logger  PipelineLogger
}

// Pipeline is a reusable send-pipeline configuration bound to one chain and
// set of backends. It implements SessionSender, DeploySender, and
// GuardianSender so the session/deploy/guardian call sites only need to
// supply the per-call account/callData/signer, not the whole backend wiring
// each time.
type Pipeline struct {
	Bundler   BundlerClient
	Paymaster PaymasterClient
	Chain     interface {
		NonceReader
		HashReader
	}
	ChainID int64
	Logger  PipelineLogger
}

// SendUserOperation fills in the Pipeline's backend wiring and runs the
// package-level SendUserOperation.
func (p *Pipeline) SendUserOperation(ctx context.Context, params SendUserOpParams) (*UserOperationReceipt, error) {
	params.Bundler = p.Bundler
	params.Paymaster = p.Paymaster
	params.Chain = p.Chain
	params.ChainID = p.ChainID
	params.Logger = p.Logger
	return SendUserOperation(ctx, params)
}

// SendUserOperation runs the nine-step C10 pipeline: resolve nonce, assemble
// an estimation-shaped op, estimate gas, apply fee/inflation defaults,
// optionally sponsor via a paymaster, pack, hash, sign, submit, and await
// the receipt. Each step is wrapped with a structured log entry.
func SendUserOperation(ctx context.Context, p SendUserOpParams) (*UserOperationReceipt, error) {
	logger := p.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	step := func(op string, fn func() error) error {
		start := time.Now()
		err := fn()
		logger.LogStep(ctx, StepFields{
			Component: "send_pipeline",
			Op:        op,
			Account:   p.Account,
			ChainID:   p.ChainID,
			Duration:  time.Since(start),
			Err:       err,
		})
		return err
	}

	// Step 1: resolve nonce.
	nonceKey := p.NonceKey
	if nonceKey == nil {
		nonceKey = big.NewInt(0)
	}
	var nonce *big.Int
	if err := step("resolve_nonce", func() error {
		n, err := GetNonce(ctx, p.Chain, p.EntryPoint, p.Account, nonceKey)
		if err != nil {
			return err
		}
		nonce = n
		return nil
	}); err != nil {
		return nil, fmt.Errorf("resolve nonce: %w", err)
	}

	// Step 2: assemble an estimation-shaped UserOperation.
	op := &UserOperation{
		Sender:               p.Account,
		Nonce:                nonce,
		CallData:             p.CallData,
		CallGasLimit:         big.NewInt(0),
		VerificationGasLimit: big.NewInt(0),
		PreVerificationGas:   big.NewInt(0),
		MaxFeePerGas:         big.NewInt(0),
		MaxPriorityFeePerGas: big.NewInt(0),
		Signature:            p.Signer.StubSignature(),
	}
	if p.FactoryPayload != nil {
		op.Factory = &p.FactoryPayload.Factory
		op.FactoryData = p.FactoryPayload.FactoryData
	}

	// Step 3: estimate gas.
	var estimate *GasEstimate
	if err := step("estimate_gas", func() error {
		e, err := p.Bundler.EstimateUserOperationGas(ctx, op, p.EntryPoint)
		if err != nil {
			return err
		}
		estimate = e
		return nil
	}); err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	// Step 4: inflate verification gas, apply default fees.
	op.VerificationGasLimit = ApplyInflatedVerificationGas(estimate.VerificationGasLimit)
	op.CallGasLimit = estimate.CallGasLimit
	op.PreVerificationGas = estimate.PreVerificationGas
	op.MaxPriorityFeePerGas = new(big.Int).Set(DefaultMaxPriorityFeePerGas)
	op.MaxFeePerGas = new(big.Int).Set(DefaultMaxFeePerGas)

	// Step 5: optional paymaster sponsorship.
	if p.Paymaster != nil {
		if err := step("sponsor", func() error {
			sponsored, err := p.Paymaster.SponsorUserOperation(ctx, op, p.ChainID, p.EntryPoint)
			if err != nil {
				return err
			}
			op = sponsored
			return nil
		}); err != nil {
			return nil, fmt.Errorf("sponsor user operation: %w", err)
		}
	}

	// Step 6: pack into the on-wire PackedUserOperation.
	packed := PackOperation(op)

	// Step 7: compute the canonical UserOp hash.
	var userOpHash common.Hash
	if err := step("hash", func() error {
		h, err := GetUserOperationHash(ctx, p.Chain, p.EntryPoint, packed)
		if err != nil {
			return err
		}
		userOpHash = h
		return nil
	}); err != nil {
		return nil, fmt.Errorf("compute user op hash: %w", err)
	}

	// Step 8: sign.
	if err := step("sign", func() error {
		sig, err := p.Signer.SignUserOpHash(ctx, userOpHash, p.EntryPoint, p.ChainID)
		if err != nil {
			return &SigningFailedError{Validator: p.Signer.Address().Hex(), Cause: err}
		}
		op.Signature = sig
		return nil
	}); err != nil {
		return nil, err
	}

	// Step 9: submit and await receipt.
	var userOpSentHash common.Hash
	if err := step("submit", func() error {
		h, err := p.Bundler.SendUserOperation(ctx, op, p.EntryPoint)
		if err != nil {
			return err
		}
		userOpSentHash = h
		return nil
	}); err != nil {
		return nil, fmt.Errorf("submit user operation: %w", err)
	}

	var receipt *UserOperationReceipt
	if err := step("await_receipt", func() error {
		r, err := p.Bundler.WaitForReceipt(ctx, userOpSentHash)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	}); err != nil {
		return nil, err
	}

	return receipt, nil
}
