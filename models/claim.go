package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Claim is owned by the billing subsystem; this engine reads it during
// matching and mutates balances only through the ledger workflows.
type Claim struct {
	ID                int             `gorm:"primary_key" json:"id"`
	ClaimNumber       string          `gorm:"size:50;uniqueIndex;not null" json:"claim_number" binding:"required"`
	NormalizedNumber  string          `gorm:"size:50;index" json:"normalized_number"`
	PatientId         int             `gorm:"index;not null" json:"patient_id"`
	PatientAccountId  int             `gorm:"index;not null" json:"patient_account_id"`
	PayerName         string          `gorm:"size:255" json:"payer_name"`
	ServiceDate       *time.Time      `json:"service_date"`
	TotalAmount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	PaidAmount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"paid_amount"`
	OutstandingAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"outstanding_amount"`
	CurrentStatus     ClaimStatus     `gorm:"type:enum('Draft', 'Submitted', 'InProcess', 'PartiallyPaid', 'Paid', 'Denied', 'Appealed');not null" json:"current_status"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ClaimBalanceSnapshot is the before/after payload recorded in History for
// every ledger mutation. Reversal restores these fields exactly.
type ClaimBalanceSnapshot struct {
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	CurrentStatus     ClaimStatus     `json:"current_status"`
}

func (c *Claim) Snapshot() ClaimBalanceSnapshot {
	return ClaimBalanceSnapshot{
		PaidAmount:        c.PaidAmount,
		OutstandingAmount: c.OutstandingAmount,
		CurrentStatus:     c.CurrentStatus,
	}
}

func (c *Claim) BeforeSave(tx *gorm.DB) error {
	c.NormalizedNumber = NormalizeClaimNumber(c.ClaimNumber)
	return nil
}

// NormalizeClaimNumber strips non-alphanumeric characters and uppercases, the
// form used by the partial matching tier.
func NormalizeClaimNumber(number string) string {
	var b strings.Builder
	for _, r := range number {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		}
	}
	return b.String()
}

// GetClaimForUpdate loads a claim under a row lock. Must run inside the
// posting transaction.
func GetClaimForUpdate(tx *gorm.DB, claimId int) (*Claim, error) {
	var claim Claim
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&claim, claimId).Error
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// FindClaimCandidates fetches every claim the matcher could resolve a record
// against: exact claim-number matches plus normalized-substring matches in
// either direction. Ordered by id so matching stays deterministic.
func FindClaimCandidates(tx *gorm.DB, claimReference string) ([]Claim, error) {
	normalized := NormalizeClaimNumber(claimReference)
	var claims []Claim
	q := tx.Where("claim_number = ?", claimReference)
	if normalized != "" {
		q = q.Or("normalized_number LIKE ?", "%"+normalized+"%").
			Or("? LIKE CONCAT('%', normalized_number, '%')", normalized)
	}
	err := tx.Where(q).Order("id ASC").Find(&claims).Error
	if err != nil {
		return nil, err
	}
	return claims, nil
}
