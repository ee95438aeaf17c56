package sso4337

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/smartaccount-sso/sso4337-go/mechanisms/evm/erc4337"
)

// ZapLogger adapts a *zap.Logger into erc4337.PipelineLogger, logging one
// structured entry per send-pipeline step. Fields are emitted with the
// component/op/account/chain_id/duration_ms/err names the rest of the
// pipeline's callers expect, so log aggregation queries stay stable across
// signer and transport implementations.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger builds a ZapLogger at the given level, writing structured JSON
// to stdout. Pass zapcore.DebugLevel to additionally surface full JSON-RPC
// request/response bodies from the bundler and paymaster clients; any other
// level suppresses them.
func NewZapLogger(level zapcore.Level) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{logger: logger}, nil
}

// LogStep implements erc4337.PipelineLogger.
func (z *ZapLogger) LogStep(ctx context.Context, fields erc4337.StepFields) {
	ce := z.logger.Check(levelFor(fields.Err), "send_pipeline step")
	if ce == nil {
		return
	}
	zfields := []zap.Field{
		zap.String("component", fields.Component),
		zap.String("op", fields.Op),
		zap.Int64("chain_id", fields.ChainID),
		zap.Int64("duration_ms", fields.Duration.Milliseconds()),
	}
	if fields.Account != (common.Address{}) {
		zfields = append(zfields, zap.String("account", fields.Account.Hex()))
	}
	if fields.Err != nil {
		zfields = append(zfields, zap.Error(fields.Err))
	}
	ce.Write(zfields...)
}

// Sync flushes any buffered log entries. Call before process exit.
func (z *ZapLogger) Sync() error {
	return z.logger.Sync()
}

func levelFor(err error) zapcore.Level {
	if err != nil {
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// LevelFromString maps SDKConfig's LogLevel string to a zapcore.Level,
// defaulting to info for an empty or unrecognized value.
func LevelFromString(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
