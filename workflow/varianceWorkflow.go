package workflow

import (
	"fmt"

	"bitbucket.org/mmdatafocus/remit_backend/config"
	"bitbucket.org/mmdatafocus/remit_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var varianceResidualTolerance = decimal.RequireFromString("0.01")

// VarianceEntry is one line needing manual follow-up.
type VarianceEntry struct {
	RemittanceLineId int              `json:"remittance_line_id"`
	Ordinal          int              `json:"ordinal"`
	ClaimReference   string           `json:"claim_reference"`
	MatchedClaimId   *int             `json:"matched_claim_id,omitempty"`
	MatchType        models.MatchType `json:"match_type"`
	Confidence       int              `json:"confidence"`
	PaidAmount       decimal.Decimal  `json:"paid_amount"`
	ClaimTotal       *decimal.Decimal `json:"claim_total,omitempty"`
	Residual         *decimal.Decimal `json:"residual,omitempty"`
	Reason           string           `json:"reason"`
}

type VarianceReport struct {
	RemittanceFileId int             `json:"remittance_file_id"`
	Entries          []VarianceEntry `json:"entries"`
	TotalVariance    decimal.Decimal `json:"total_variance"`
}

// EvaluateLineVariance decides whether one matched line belongs on the
// report. claim is nil for unmatched lines. Read-only; returns nil when the
// line needs no follow-up.
func EvaluateLineVariance(line models.RemittanceLine, match models.MatchRecord, claim *models.Claim, minConfidence int) *VarianceEntry {
	if match.MatchType == models.MatchTypeNone || claim == nil {
		return &VarianceEntry{
			RemittanceLineId: line.ID,
			Ordinal:          line.Ordinal,
			ClaimReference:   line.ClaimReference,
			MatchType:        models.MatchTypeNone,
			PaidAmount:       line.PaidAmount,
			Reason:           fmt.Sprintf("no claim matched reference %q", line.ClaimReference),
		}
	}

	residual := claim.TotalAmount.Sub(line.PaidAmount).Abs()
	if residual.Cmp(varianceResidualTolerance) > 0 {
		total := claim.TotalAmount
		return &VarianceEntry{
			RemittanceLineId: line.ID,
			Ordinal:          line.Ordinal,
			ClaimReference:   line.ClaimReference,
			MatchedClaimId:   match.MatchedClaimId,
			MatchType:        match.MatchType,
			Confidence:       match.Confidence,
			PaidAmount:       line.PaidAmount,
			ClaimTotal:       &total,
			Residual:         &residual,
			Reason: fmt.Sprintf("paid %s differs from claim total %s by %s",
				line.PaidAmount, claim.TotalAmount, residual),
		}
	}

	if match.Confidence < minConfidence {
		return &VarianceEntry{
			RemittanceLineId: line.ID,
			Ordinal:          line.Ordinal,
			ClaimReference:   line.ClaimReference,
			MatchedClaimId:   match.MatchedClaimId,
			MatchType:        match.MatchType,
			Confidence:       match.Confidence,
			PaidAmount:       line.PaidAmount,
			Reason: fmt.Sprintf("confidence %d below auto-post threshold %d, held for review",
				match.Confidence, minConfidence),
		}
	}

	return nil
}

// BuildVarianceReport aggregates every line of a processed file that needs
// manual follow-up. Pure read; never mutates ledger state.
func BuildVarianceReport(tx *gorm.DB, logger *logrus.Logger, remittanceFileId int) (*VarianceReport, error) {
	var lines []models.RemittanceLine
	err := tx.Where("remittance_file_id = ?", remittanceFileId).
		Order("ordinal ASC").Find(&lines).Error
	if err != nil {
		config.LogError(logger, "varianceWorkflow.go", "BuildVarianceReport", "load lines", remittanceFileId, err)
		return nil, err
	}

	var matches []models.MatchRecord
	err = tx.Where("remittance_file_id = ?", remittanceFileId).Find(&matches).Error
	if err != nil {
		config.LogError(logger, "varianceWorkflow.go", "BuildVarianceReport", "load matches", remittanceFileId, err)
		return nil, err
	}
	matchByLine := make(map[int]models.MatchRecord, len(matches))
	claimIds := make([]int, 0, len(matches))
	for _, m := range matches {
		matchByLine[m.RemittanceLineId] = m
		if m.MatchedClaimId != nil {
			claimIds = append(claimIds, *m.MatchedClaimId)
		}
	}

	claimById := map[int]models.Claim{}
	if len(claimIds) > 0 {
		var claims []models.Claim
		err = tx.Where("id IN ?", claimIds).Find(&claims).Error
		if err != nil {
			config.LogError(logger, "varianceWorkflow.go", "BuildVarianceReport", "load claims", claimIds, err)
			return nil, err
		}
		for _, c := range claims {
			claimById[c.ID] = c
		}
	}

	minConfidence := config.AutoPostMinConfidence()
	report := &VarianceReport{
		RemittanceFileId: remittanceFileId,
		Entries:          []VarianceEntry{},
		TotalVariance:    decimal.Zero,
	}
	for _, line := range lines {
		match := matchByLine[line.ID]
		var claim *models.Claim
		if match.MatchedClaimId != nil {
			if c, ok := claimById[*match.MatchedClaimId]; ok {
				claim = &c
			}
		}
		entry := EvaluateLineVariance(line, match, claim, minConfidence)
		if entry == nil {
			continue
		}
		report.Entries = append(report.Entries, *entry)
		if entry.Residual != nil {
			report.TotalVariance = report.TotalVariance.Add(*entry.Residual)
		}
	}
	return report, nil
}
