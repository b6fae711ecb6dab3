// Package audit turns domain events into structured zap records.
package audit

import (
	"context"

	"github.com/MarkoPoloResearchLab/lumenbank/pkg/accrual"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"go.uber.org/zap"
)

// ZapLogger records operations, settlements and transfers through zap.
type ZapLogger struct {
	logger *zap.Logger
}

var (
	_ ledger.OperationLogger     = (*ZapLogger)(nil)
	_ ledger.TransferNotifier    = (*ZapLogger)(nil)
	_ accrual.SettlementListener = (*ZapLogger)(nil)
)

// NewZapLogger wraps logger; a nil logger discards everything.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Named("audit")}
}

// LogOperation writes failures at error level and everything else at info.
func (auditLogger *ZapLogger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.UserID.IsZero() {
		fields = append(fields, zap.String("user_id", entry.UserID.String()))
	}
	if !entry.CounterpartyID.IsZero() {
		fields = append(fields, zap.String("counterparty_id", entry.CounterpartyID.String()))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount", entry.Amount))
	}
	if entry.Type != "" {
		fields = append(fields, zap.String("type", entry.Type.String()))
	}
	if entry.BatchID != "" {
		fields = append(fields, zap.String("batch_id", entry.BatchID))
	}
	if entry.Detail != "" {
		fields = append(fields, zap.String("detail", entry.Detail))
	}
	if entry.Error != nil {
		auditLogger.logger.Error("operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	auditLogger.logger.Info("operation", fields...)
}

// SessionSettled records a closed presence session.
func (auditLogger *ZapLogger) SessionSettled(_ context.Context, settlement accrual.Settlement) error {
	auditLogger.logger.Info("session settled",
		zap.String("user_id", settlement.UserID.String()),
		zap.Duration("elapsed", settlement.Elapsed),
		zap.Int64("reward", settlement.Reward),
		zap.String("period", settlement.Period),
		zap.Int64("balance", settlement.Balance),
	)
	return nil
}

// TransferCommitted records a committed transfer.
func (auditLogger *ZapLogger) TransferCommitted(_ context.Context, receipt ledger.TransferReceipt) error {
	auditLogger.logger.Info("transfer committed",
		zap.String("user_id", receipt.SenderID.String()),
		zap.String("counterparty_id", receipt.ReceiverID.String()),
		zap.Int64("amount", receipt.Amount),
		zap.Int64("sender_balance", receipt.SenderBalance),
		zap.Int64("receiver_balance", receipt.ReceiverBalance),
	)
	return nil
}
