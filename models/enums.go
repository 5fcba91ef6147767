package models

type ClaimStatus string

const (
	ClaimStatusDraft         ClaimStatus = "Draft"
	ClaimStatusSubmitted     ClaimStatus = "Submitted"
	ClaimStatusInProcess     ClaimStatus = "InProcess"
	ClaimStatusPartiallyPaid ClaimStatus = "PartiallyPaid"
	ClaimStatusPaid          ClaimStatus = "Paid"
	ClaimStatusDenied        ClaimStatus = "Denied"
	ClaimStatusAppealed      ClaimStatus = "Appealed"
)

type MatchType string

const (
	MatchTypeExact   MatchType = "exact"
	MatchTypeFuzzy   MatchType = "fuzzy"
	MatchTypePartial MatchType = "partial"
	MatchTypeNone    MatchType = "none"
)

type RemittanceFormat string

const (
	RemittanceFormatX12835 RemittanceFormat = "X12_835"
	RemittanceFormatCSV    RemittanceFormat = "CSV"
	RemittanceFormatJSON   RemittanceFormat = "JSON"
)

type RemittanceFileStatus string

const (
	RemittanceFileStatusReceived  RemittanceFileStatus = "Received"
	RemittanceFileStatusProcessed RemittanceFileStatus = "Processed"
	RemittanceFileStatusRejected  RemittanceFileStatus = "Rejected"
)

type PaymentReversalState string

const (
	PaymentReversalStateActive   PaymentReversalState = "active"
	PaymentReversalStateReversed PaymentReversalState = "reversed"
)

// PaymentMethod is the source channel of a posted payment.
type PaymentMethod string

const (
	PaymentMethodERA    PaymentMethod = "ERA"
	PaymentMethodManual PaymentMethod = "Manual"
)

type PaymentEventType string

const (
	PaymentEventTypePosted   PaymentEventType = "PAYMENT_POSTED"
	PaymentEventTypeReversed PaymentEventType = "PAYMENT_REVERSED"
)

// OutboxPublishStatus tracks dispatcher-side publishing, not processing.
type OutboxPublishStatus string

const (
	OutboxPublishStatusPending    OutboxPublishStatus = "PENDING"
	OutboxPublishStatusProcessing OutboxPublishStatus = "PROCESSING"
	OutboxPublishStatusFailed     OutboxPublishStatus = "FAILED"
	OutboxPublishStatusDead       OutboxPublishStatus = "DEAD"
	OutboxPublishStatusSent       OutboxPublishStatus = "SENT"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)
