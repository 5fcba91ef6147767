package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is append-only. Reversal never deletes a row; it creates a
// PaymentReversal and flips ReversalState (see workflow/reversalWorkflow.go).
type Payment struct {
	ID            int                  `gorm:"primary_key" json:"id"`
	ClaimId       int                  `gorm:"index;not null" json:"claim_id"`
	Amount        decimal.Decimal      `gorm:"type:decimal(20,4);not null" json:"amount"`
	Method        PaymentMethod        `gorm:"type:enum('ERA', 'Manual');not null" json:"method"`
	Source        string               `gorm:"size:255" json:"source"`
	CheckNumber   string               `gorm:"size:50" json:"check_number"`
	ReversalState PaymentReversalState `gorm:"type:enum('active', 'reversed');not null;default:'active'" json:"reversal_state"`
	// PriorClaimStatus is the claim's status immediately before this payment
	// posted. A reversal that drains the claim back to zero paid restores it.
	PriorClaimStatus ClaimStatus `gorm:"type:enum('Draft', 'Submitted', 'InProcess', 'PartiallyPaid', 'Paid', 'Denied', 'Appealed')" json:"prior_claim_status"`
	CorrelationId    string      `gorm:"size:64;index" json:"correlation_id"`
	PostedAt         time.Time   `gorm:"not null" json:"posted_at"`
	CreatedAt        time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

type PaymentReversal struct {
	ID         int             `gorm:"primary_key" json:"id"`
	PaymentId  int             `gorm:"uniqueIndex;not null" json:"payment_id"`
	ClaimId    int             `gorm:"index;not null" json:"claim_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Reason     string          `gorm:"type:text" json:"reason"`
	ReversedAt time.Time       `gorm:"not null" json:"reversed_at"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
