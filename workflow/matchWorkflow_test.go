package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/remit_backend/decoder"
	"bitbucket.org/mmdatafocus/remit_backend/models"
	"github.com/shopspring/decimal"
)

func mkClaim(id int, number string, total string, status models.ClaimStatus) models.Claim {
	return models.Claim{
		ID:               id,
		ClaimNumber:      number,
		NormalizedNumber: models.NormalizeClaimNumber(number),
		TotalAmount:      decimal.RequireFromString(total),
		CurrentStatus:    status,
	}
}

func mkRecord(reference, paid string) decoder.PaymentRecord {
	return decoder.PaymentRecord{
		ClaimReference: reference,
		PaidAmount:     decimal.RequireFromString(paid),
		PaidNumeric:    true,
	}
}

func TestEvaluateMatch_ExactTier(t *testing.T) {
	candidates := []models.Claim{
		mkClaim(1, "CLM-1001", "250.00", models.ClaimStatusSubmitted),
	}

	out := EvaluateMatch(mkRecord("CLM-1001", "250.00"), candidates)
	if out.MatchType != models.MatchTypeExact {
		t.Fatalf("expected exact match, got %s", out.MatchType)
	}
	if out.Confidence != 100 {
		t.Fatalf("expected confidence 100, got %d", out.Confidence)
	}
	if out.MatchedClaim == nil || out.MatchedClaim.ID != 1 {
		t.Fatalf("wrong matched claim: %+v", out.MatchedClaim)
	}

	// Within a penny still counts as exact.
	out = EvaluateMatch(mkRecord("CLM-1001", "250.005"), candidates)
	if out.MatchType != models.MatchTypeExact {
		t.Fatalf("sub-penny delta should stay exact, got %s", out.MatchType)
	}
}

func TestEvaluateMatch_ExactRequiresEligibleStatus(t *testing.T) {
	candidates := []models.Claim{
		mkClaim(1, "CLM-2002", "100.00", models.ClaimStatusPaid),
	}

	out := EvaluateMatch(mkRecord("CLM-2002", "100.00"), candidates)
	if out.MatchType == models.MatchTypeExact {
		t.Fatalf("paid claim must not match at the exact tier")
	}
}

func TestEvaluateMatch_FuzzyTier(t *testing.T) {
	// Ten percent underpayment on a 100.00 claim sits exactly on the fuzzy
	// boundary and lands at the confidence floor.
	candidates := []models.Claim{
		mkClaim(7, "CLM-3003", "100.00", models.ClaimStatusInProcess),
	}

	out := EvaluateMatch(mkRecord("CLM-3003", "90.00"), candidates)
	if out.MatchType != models.MatchTypeFuzzy {
		t.Fatalf("expected fuzzy match, got %s", out.MatchType)
	}
	if out.Confidence != 60 {
		t.Fatalf("expected confidence 60 at the tolerance boundary, got %d", out.Confidence)
	}
}

func TestEvaluateMatch_FuzzyConfidenceScales(t *testing.T) {
	candidates := []models.Claim{
		mkClaim(7, "CLM-3004", "100.00", models.ClaimStatusSubmitted),
	}

	// 5.00 off against a 10.00 tolerance: 100 - 0.5*40 = 80.
	out := EvaluateMatch(mkRecord("CLM-3004", "95.00"), candidates)
	if out.MatchType != models.MatchTypeFuzzy {
		t.Fatalf("expected fuzzy match, got %s", out.MatchType)
	}
	if out.Confidence != 80 {
		t.Fatalf("expected confidence 80, got %d", out.Confidence)
	}
}

func TestEvaluateMatch_PartialTier(t *testing.T) {
	candidates := []models.Claim{
		mkClaim(3, "CLM-4004", "200.00", models.ClaimStatusSubmitted),
	}

	// Reference carries payer decoration; normalized forms substring-match.
	out := EvaluateMatch(mkRecord("PAYERX/CLM-4004", "170.00"), candidates)
	if out.MatchType != models.MatchTypePartial {
		t.Fatalf("expected partial match, got %s", out.MatchType)
	}
	if out.Confidence != 50 {
		t.Fatalf("expected confidence 50, got %d", out.Confidence)
	}
	if !out.Criteria.NumberNormalized {
		t.Fatalf("partial criteria should flag normalization")
	}
}

func TestEvaluateMatch_PartialRejectsLargeVariance(t *testing.T) {
	candidates := []models.Claim{
		mkClaim(3, "CLM-5005", "200.00", models.ClaimStatusSubmitted),
	}

	// 25% off exceeds the partial tolerance.
	out := EvaluateMatch(mkRecord("X-CLM-5005", "150.00"), candidates)
	if out.MatchType != models.MatchTypeNone {
		t.Fatalf("expected no match, got %s", out.MatchType)
	}
	if out.MatchedClaim != nil {
		t.Fatalf("no-match outcome must not carry a claim")
	}
}

func TestEvaluateMatch_NoCandidates(t *testing.T) {
	out := EvaluateMatch(mkRecord("CLM-9999", "10.00"), nil)
	if out.MatchType != models.MatchTypeNone {
		t.Fatalf("expected none, got %s", out.MatchType)
	}
	if out.Criteria.Tier != "none" {
		t.Fatalf("criteria tier mismatch: %s", out.Criteria.Tier)
	}
}

func TestEvaluateMatch_Deterministic(t *testing.T) {
	// Two claims both satisfy the fuzzy tier; the lower id (first in the
	// ordered candidate slice) must win on every run.
	candidates := []models.Claim{
		mkClaim(1, "CLM-6006", "100.00", models.ClaimStatusSubmitted),
		mkClaim(2, "CLM-6006", "105.00", models.ClaimStatusSubmitted),
	}
	rec := mkRecord("CLM-6006", "95.00")

	first := EvaluateMatch(rec, candidates)
	for i := 0; i < 50; i++ {
		out := EvaluateMatch(rec, candidates)
		if out.MatchType != first.MatchType ||
			out.Confidence != first.Confidence ||
			out.MatchedClaim.ID != first.MatchedClaim.ID {
			t.Fatalf("run %d diverged: %+v vs %+v", i, out, first)
		}
	}
	if first.MatchedClaim.ID != 1 {
		t.Fatalf("expected lowest-id candidate, got %d", first.MatchedClaim.ID)
	}
}
