package audithook

// Action constants for audit events.
const (
	// Pool actions
	ActionPoolInitialized           = "pool.initialized"
	ActionAdministrationTransferred = "administration.transferred"
	ActionRevenueDeposited          = "revenue.deposited"

	// Payee actions
	ActionPayeeRegistered = "payee.registered"
	ActionPayeeVerified   = "payee.verified"

	// Usage actions
	ActionUsagePaymentProcessed = "usage_payment.processed"
	ActionBatchProcessed        = "usage_batch.processed"
	ActionUsageFlushed          = "usage.flushed"

	// Withdrawal actions
	ActionEarningsWithdrawn = "earnings.withdrawn"

	// Failure actions
	ActionOperationRejected = "operation.rejected"
	ActionAccessDenied      = "access.denied"
)

// Resource constants for audit events.
const (
	ResourcePool   = "pool"
	ResourcePayee  = "payee"
	ResourceUsage  = "usage"
	ResourceWallet = "wallet"
)

// Category constants for audit events.
const (
	CategoryAdministration = "administration"
	CategoryRevenue        = "revenue"
	CategoryDistribution   = "distribution"
	CategoryPayout         = "payout"
	CategoryAccess         = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
