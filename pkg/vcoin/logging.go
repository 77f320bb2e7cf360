package vcoin

import (
	"context"

	"go.uber.org/zap"
)

// OperationLogger records domain-level events emitted by service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing token-economy operation.
type OperationLog struct {
	Operation string
	UserID    UserID
	Action    ActionType
	StakeID   string
	Amount    AmountMicro
	Status    string
	Error     error
}

// ZapOperationLogger adapts a zap logger to the OperationLogger contract.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger wraps a zap logger.
func NewZapOperationLogger(logger *zap.Logger) ZapOperationLogger {
	return ZapOperationLogger{logger: logger}
}

// LogOperation emits one structured line per operation.
func (zapLogger ZapOperationLogger) LogOperation(_ context.Context, entry OperationLog) {
	if zapLogger.logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
		zap.Int64("amount_micro", entry.Amount.Int64()),
		zap.String("status", entry.Status),
	}
	if entry.Action != "" {
		fields = append(fields, zap.String("action", entry.Action.String()))
	}
	if entry.StakeID != "" {
		fields = append(fields, zap.String("stake_id", entry.StakeID))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		zapLogger.logger.Warn("vcoin operation failed", fields...)
		return
	}
	zapLogger.logger.Info("vcoin operation", fields...)
}
