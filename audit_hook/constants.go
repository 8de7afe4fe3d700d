package audithook

// Action constants for audit events.
const (
	// Record actions
	ActionFamilyEnrolled     = "family.enrolled"
	ActionPaymentRecorded    = "payment.recorded"
	ActionWithdrawalRecorded = "withdrawal.recorded"
	ActionChargeRecorded     = "lifecycle.charge_recorded"
	ActionTriggerApplied     = "lifecycle.trigger_applied"

	// Statement actions
	ActionStatementGenerated = "statement.generated"
	ActionStatementVoided    = "statement.voided"
	ActionStatementRun       = "statement.run_completed"

	// Automation actions
	ActionOverdueEscalated    = "overdue.escalated"
	ActionAutomationCompleted = "automation.completed"
	ActionAutomationFailed    = "automation.failed"
)

// Resource constants for audit events.
const (
	ResourceFamily     = "family"
	ResourcePayment    = "payment"
	ResourceWithdrawal = "withdrawal"
	ResourceCharge     = "lifecycle_charge"
	ResourceStatement  = "statement"
	ResourceTenant     = "tenant"
)

// Category constants for audit events.
const (
	CategoryMembership = "membership"
	CategoryPayment    = "payment"
	CategoryBilling    = "billing"
	CategoryCollection = "collection"
	CategoryAutomation = "automation"
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
