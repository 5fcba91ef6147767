package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RemittanceFile is the one persisted record per ingested payer file.
type RemittanceFile struct {
	ID               int                  `gorm:"primary_key" json:"id"`
	FileName         string               `gorm:"size:255;not null" json:"file_name"`
	Format           RemittanceFormat     `gorm:"type:enum('X12_835', 'CSV', 'JSON');not null" json:"format"`
	CurrentStatus    RemittanceFileStatus `gorm:"type:enum('Received', 'Processed', 'Rejected');not null" json:"current_status"`
	RecordCount      int                  `gorm:"default:0" json:"record_count"`
	MatchedCount     int                  `gorm:"default:0" json:"matched_count"`
	UnmatchedCount   int                  `gorm:"default:0" json:"unmatched_count"`
	FailedCount      int                  `gorm:"default:0" json:"failed_count"`
	PostedAmount     decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"posted_amount"`
	PayerName        string               `gorm:"size:255" json:"payer_name"`
	CheckNumber      string               `gorm:"size:50" json:"check_number"`
	RejectReason     string               `gorm:"type:text" json:"reject_reason"`
	ClearinghouseRef string               `gorm:"size:100" json:"clearinghouse_ref"`
	ArchiveURL       string               `gorm:"size:512" json:"archive_url"`
	CorrelationId    string               `gorm:"size:64;uniqueIndex" json:"correlation_id"`
	CreatedAt        time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

// RemittanceLine persists one decoded payment record, in source-document
// order. Service lines and adjustments are stored as JSON snapshots; they are
// inputs to matching, not ledger state.
type RemittanceLine struct {
	ID                    int             `gorm:"primary_key" json:"id"`
	RemittanceFileId      int             `gorm:"index;not null" json:"remittance_file_id"`
	Ordinal               int             `gorm:"not null" json:"ordinal"`
	ClaimReference        string          `gorm:"size:50" json:"claim_reference"`
	PaidAmount            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"paid_amount"`
	TotalCharges          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_charges"`
	PatientResponsibility decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"patient_responsibility"`
	AdjustmentTotal       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"adjustment_total"`
	ServiceLines          string          `gorm:"type:text" json:"service_lines"`
	Adjustments           string          `gorm:"type:text" json:"adjustments"`
	CheckNumber           string          `gorm:"size:50" json:"check_number"`
	PaymentDate           *time.Time      `json:"payment_date"`
	PayerName             string          `gorm:"size:255" json:"payer_name"`
	PatientReference      string          `gorm:"size:50" json:"patient_reference"`
	DecodeWarnings        string          `gorm:"type:text" json:"decode_warnings"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
