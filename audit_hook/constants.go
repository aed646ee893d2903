package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionAccountCreated     = "account.created"
	ActionAccountDeleted     = "account.deleted"
	ActionTEESignerAcked     = "account.tee_signer.acknowledged"
	ActionTEESignerRevoked   = "account.tee_signer.revoked"
	ActionDepositReceived    = "balance.deposited"
	ActionRefundRequested    = "refund.requested"
	ActionRefundProcessed    = "refund.processed"
	ActionDeliverableAdded   = "deliverable.added"
	ActionDeliverableEvicted = "deliverable.evicted"
	ActionDeliverableAcked   = "deliverable.acknowledged"
	ActionDeliverableSettled = "deliverable.settled"
)

// Resource constants for audit events.
const (
	ResourceAccount     = "account"
	ResourceRefund      = "refund"
	ResourceDeliverable = "deliverable"
)

// Category constants for audit events.
const (
	CategoryAccount  = "account"
	CategoryAccess   = "access"
	CategoryBalance  = "balance"
	CategoryDelivery = "delivery"
	CategoryPayment  = "payment"
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
	OutcomePartial = "partial"
)
