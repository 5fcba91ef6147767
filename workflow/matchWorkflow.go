package workflow

import (
	"encoding/json"
	"strings"

	"bitbucket.org/mmdatafocus/remit_backend/config"
	"bitbucket.org/mmdatafocus/remit_backend/decoder"
	"bitbucket.org/mmdatafocus/remit_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Matching tolerances. Exact requires the amount within a penny; fuzzy and
// partial accept a fraction of the claim total.
var (
	exactAmountTolerance  = decimal.RequireFromString("0.01")
	fuzzyToleranceFrac    = decimal.RequireFromString("0.10")
	partialToleranceFrac  = decimal.RequireFromString("0.20")
	partialTierConfidence = 50
)

// exactTierStatuses are the claim statuses eligible for a 100-confidence
// match. Fuzzy/partial tiers also accept partially paid claims so follow-up
// payments on a split adjudication still resolve.
var exactTierStatuses = map[models.ClaimStatus]bool{
	models.ClaimStatusSubmitted: true,
	models.ClaimStatusInProcess: true,
}

// MatchCriteria is the structured explanation persisted with every match.
type MatchCriteria struct {
	Tier             string `json:"tier"`
	ClaimNumber      string `json:"claim_number,omitempty"`
	AmountDelta      string `json:"amount_delta,omitempty"`
	Tolerance        string `json:"tolerance,omitempty"`
	NumberNormalized bool   `json:"number_normalized,omitempty"`
	Note             string `json:"note,omitempty"`
}

func (c MatchCriteria) String() string {
	b, _ := json.Marshal(c)
	return string(b)
}

type MatchOutcome struct {
	MatchType    models.MatchType
	Confidence   int
	MatchedClaim *models.Claim
	Criteria     MatchCriteria
}

// MatchPaymentRecord resolves one decoded record against outstanding claims.
// DB work is just the candidate fetch; tier evaluation is pure so repeated
// runs over the same claim set are deterministic.
func MatchPaymentRecord(tx *gorm.DB, logger *logrus.Logger, rec decoder.PaymentRecord) (MatchOutcome, error) {
	candidates, err := models.FindClaimCandidates(tx, rec.ClaimReference)
	if err != nil {
		config.LogError(logger, "matchWorkflow.go", "MatchPaymentRecord", "FindClaimCandidates", rec.ClaimReference, err)
		return MatchOutcome{}, err
	}
	return EvaluateMatch(rec, candidates), nil
}

// EvaluateMatch runs the three-tier cascade over the candidate claims.
// Candidates must be in a stable order (FindClaimCandidates orders by id);
// the first success in the first tier wins.
func EvaluateMatch(rec decoder.PaymentRecord, candidates []models.Claim) MatchOutcome {
	// Tier 1: exact claim number, amount within a penny, eligible status.
	for i := range candidates {
		claim := &candidates[i]
		if claim.ClaimNumber != rec.ClaimReference {
			continue
		}
		if !exactTierStatuses[claim.CurrentStatus] {
			continue
		}
		delta := claim.TotalAmount.Sub(rec.PaidAmount).Abs()
		if delta.Cmp(exactAmountTolerance) < 0 {
			return MatchOutcome{
				MatchType:    models.MatchTypeExact,
				Confidence:   100,
				MatchedClaim: claim,
				Criteria: MatchCriteria{
					Tier:        "exact",
					ClaimNumber: claim.ClaimNumber,
					AmountDelta: delta.String(),
					Tolerance:   exactAmountTolerance.String(),
				},
			}
		}
	}

	// Tier 2: exact claim number, amount off by at most 10% of the claim
	// total. Confidence decays linearly from 100 to a floor of 60.
	for i := range candidates {
		claim := &candidates[i]
		if claim.ClaimNumber != rec.ClaimReference || !claim.TotalAmount.IsPositive() {
			continue
		}
		delta := claim.TotalAmount.Sub(rec.PaidAmount).Abs()
		tolerance := claim.TotalAmount.Mul(fuzzyToleranceFrac)
		if delta.Cmp(tolerance) > 0 {
			continue
		}
		return MatchOutcome{
			MatchType:    models.MatchTypeFuzzy,
			Confidence:   fuzzyConfidence(delta, tolerance),
			MatchedClaim: claim,
			Criteria: MatchCriteria{
				Tier:        "fuzzy",
				ClaimNumber: claim.ClaimNumber,
				AmountDelta: delta.String(),
				Tolerance:   tolerance.String(),
			},
		}
	}

	// Tier 3: normalized claim numbers substring-match either direction,
	// amount off by at most 20%. Flat 50 confidence.
	normalizedRef := models.NormalizeClaimNumber(rec.ClaimReference)
	if normalizedRef != "" {
		for i := range candidates {
			claim := &candidates[i]
			if claim.NormalizedNumber == "" || !claim.TotalAmount.IsPositive() {
				continue
			}
			if !strings.Contains(claim.NormalizedNumber, normalizedRef) &&
				!strings.Contains(normalizedRef, claim.NormalizedNumber) {
				continue
			}
			delta := claim.TotalAmount.Sub(rec.PaidAmount).Abs()
			tolerance := claim.TotalAmount.Mul(partialToleranceFrac)
			if delta.Cmp(tolerance) > 0 {
				continue
			}
			return MatchOutcome{
				MatchType:    models.MatchTypePartial,
				Confidence:   partialTierConfidence,
				MatchedClaim: claim,
				Criteria: MatchCriteria{
					Tier:             "partial",
					ClaimNumber:      claim.ClaimNumber,
					AmountDelta:      delta.String(),
					Tolerance:        tolerance.String(),
					NumberNormalized: true,
				},
			}
		}
	}

	return MatchOutcome{
		MatchType: models.MatchTypeNone,
		Criteria: MatchCriteria{
			Tier: "none",
			Note: "no claim matched reference " + rec.ClaimReference,
		},
	}
}

// fuzzyConfidence = max(60, 100 - (delta/tolerance)*40), rounded.
func fuzzyConfidence(delta, tolerance decimal.Decimal) int {
	if !tolerance.IsPositive() {
		return 60
	}
	ratio := delta.DivRound(tolerance, 8)
	conf := decimal.NewFromInt(100).Sub(ratio.Mul(decimal.NewFromInt(40)))
	n := int(conf.Round(0).IntPart())
	if n < 60 {
		return 60
	}
	return n
}
