package ledger

const (
	operationBalance  = "balance"
	operationCredit   = "credit"
	operationDebit    = "debit"
	operationTransfer = "transfer"
	operationHistory  = "history"

	// OperationStatusOK marks a committed operation in an OperationLog.
	OperationStatusOK = "ok"
	// OperationStatusError marks a failed operation in an OperationLog.
	OperationStatusError = "error"

	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)
