package models

import (
	"time"
)

// MatchRecord is the persisted outcome of matching one remittance line.
// Written once per line and never updated; re-running a file goes through the
// idempotency gate instead of mutating old matches.
type MatchRecord struct {
	ID               int       `gorm:"primary_key" json:"id"`
	RemittanceFileId int       `gorm:"index;not null" json:"remittance_file_id"`
	RemittanceLineId int       `gorm:"uniqueIndex;not null" json:"remittance_line_id"`
	MatchedClaimId   *int      `gorm:"index" json:"matched_claim_id"`
	MatchType        MatchType `gorm:"type:enum('exact', 'fuzzy', 'partial', 'none');not null" json:"match_type"`
	Confidence       int       `gorm:"not null;default:0" json:"confidence"`
	Criteria         string    `gorm:"type:text" json:"criteria"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}
