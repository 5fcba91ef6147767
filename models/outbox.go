package models

import (
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/remit_backend/config"
)

// PaymentEventRecord is the transactional outbox row for ledger events.
// Written in the same transaction as the Payment/Claim mutation; publishing
// happens after commit via the dispatcher.
type PaymentEventRecord struct {
	ID            int              `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	EventType     PaymentEventType `gorm:"type:enum('PAYMENT_POSTED','PAYMENT_REVERSED');not null" json:"event_type"`
	ClaimId       int              `gorm:"index;not null" json:"claim_id"`
	PaymentId     int              `gorm:"index;not null" json:"payment_id"`
	Amount        string           `gorm:"size:40;not null" json:"amount"`
	Source        string           `gorm:"size:255" json:"source"`
	Payload       []byte           `gorm:"type:blob" json:"payload"`
	PostedAt      time.Time        `gorm:"index;not null" json:"posted_at"`
	IsProcessed   bool             `gorm:"index;not null" json:"is_processed"`
	// Publish metadata (publish happens after commit via dispatcher).
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToPaymentEventMessage(record PaymentEventRecord) config.PaymentEventMessage {
	return config.PaymentEventMessage{
		ID:            record.ID,
		EventType:     string(record.EventType),
		ClaimId:       record.ClaimId,
		PaymentId:     record.PaymentId,
		Amount:        record.Amount,
		PostedAt:      record.PostedAt,
		Source:        record.Source,
		CorrelationId: record.CorrelationId,
		Payload:       json.RawMessage(record.Payload),
	}
}
