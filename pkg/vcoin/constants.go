package vcoin

const (
	operationCredit          = "credit"
	operationSpend           = "spend"
	operationTransfer        = "transfer"
	operationRecordActivity  = "record_activity"
	operationStake           = "stake"
	operationUnstake         = "unstake"
	operationDistributeFee   = "distribute_fee"
	operationInvalidateCache = "invalidate_cache"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	defaultHistoryPageSize = 20
	maxHistoryPageSize     = 100

	daysPerYear = 365
)
