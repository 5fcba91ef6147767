package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/remit_backend/models"
	"github.com/shopspring/decimal"
)

func TestReversalBalances_RestoresSubmittedWhenNothingPaid(t *testing.T) {
	// Reverse the only 150.00 payment on a 150.00 claim.
	newPaid, newOutstanding, newStatus := ReversalBalances(d("150.00"), d("150.00"), d("150.00"), models.ClaimStatusSubmitted)
	if !newPaid.IsZero() {
		t.Fatalf("paid = %s", newPaid)
	}
	if !newOutstanding.Equal(d("150.00")) {
		t.Fatalf("outstanding = %s", newOutstanding)
	}
	if newStatus != models.ClaimStatusSubmitted {
		t.Fatalf("status = %s", newStatus)
	}
}

func TestReversalBalances_RestoresPriorStatus(t *testing.T) {
	// A claim in InProcess takes a full 200.00 payment; reversing it must
	// restore InProcess, not Submitted.
	total := d("200.00")
	postedPaid, _, postedStatus := ApplyPaymentBalances(total, d("0"), d("200.00"))
	if postedStatus != models.ClaimStatusPaid {
		t.Fatalf("posted status = %s", postedStatus)
	}
	newPaid, newOutstanding, newStatus := ReversalBalances(total, postedPaid, d("200.00"), models.ClaimStatusInProcess)
	if !newPaid.IsZero() || !newOutstanding.Equal(total) {
		t.Fatalf("paid=%s outstanding=%s", newPaid, newOutstanding)
	}
	if newStatus != models.ClaimStatusInProcess {
		t.Fatalf("status = %s, want InProcess", newStatus)
	}
}

func TestReversalBalances_NoPriorStatusFallsBackToDerivation(t *testing.T) {
	// Payments without a recorded prior status derive the way posting does.
	_, _, newStatus := ReversalBalances(d("150.00"), d("150.00"), d("150.00"), "")
	if newStatus != models.ClaimStatusSubmitted {
		t.Fatalf("status = %s", newStatus)
	}
}

func TestReversalBalances_PriorStatusIgnoredWhilePaymentsRemain(t *testing.T) {
	// Reversing one of two payments leaves money on the claim; the prior
	// status of the reversed payment does not apply.
	newPaid, _, newStatus := ReversalBalances(d("250.00"), d("250.00"), d("100.00"), models.ClaimStatusInProcess)
	if !newPaid.Equal(d("150.00")) {
		t.Fatalf("paid = %s", newPaid)
	}
	if newStatus != models.ClaimStatusPartiallyPaid {
		t.Fatalf("status = %s", newStatus)
	}
}

func TestReversalBalances_PartialRemains(t *testing.T) {
	// Claim 250.00 with 250.00 paid across two payments; reverse the 100.00.
	newPaid, newOutstanding, newStatus := ReversalBalances(d("250.00"), d("250.00"), d("100.00"), models.ClaimStatusPartiallyPaid)
	if !newPaid.Equal(d("150.00")) || !newOutstanding.Equal(d("100.00")) {
		t.Fatalf("paid=%s outstanding=%s", newPaid, newOutstanding)
	}
	if newStatus != models.ClaimStatusPartiallyPaid {
		t.Fatalf("status = %s", newStatus)
	}
}

func TestReversalBalances_MirrorsPosting(t *testing.T) {
	// Posting then reversing the same amount must land byte-identical on the
	// starting balances, including overpayment where outstanding clamped.
	cases := []struct {
		total, paid, amount string
		priorStatus         models.ClaimStatus
	}{
		{"250.00", "0", "150.00", models.ClaimStatusSubmitted},
		{"250.00", "100.00", "150.00", models.ClaimStatusPartiallyPaid},
		{"100.00", "0", "120.00", models.ClaimStatusInProcess},
		{"100.00", "40.00", "100.00", models.ClaimStatusPartiallyPaid},
		{"1.00", "0.30", "0.10", models.ClaimStatusPartiallyPaid},
	}
	for _, c := range cases {
		total, paid, amount := d(c.total), d(c.paid), d(c.amount)
		postedPaid, _, _ := ApplyPaymentBalances(total, paid, amount)
		revPaid, revOutstanding, revStatus := ReversalBalances(total, postedPaid, amount, c.priorStatus)
		if !revPaid.Equal(paid) {
			t.Fatalf("%+v: paid %s != %s after roundtrip", c, revPaid, paid)
		}
		wantOutstanding := total.Sub(paid)
		if wantOutstanding.IsNegative() {
			wantOutstanding = decimal.Zero
		}
		if !revOutstanding.Equal(wantOutstanding) {
			t.Fatalf("%+v: outstanding %s != %s after roundtrip", c, revOutstanding, wantOutstanding)
		}
		if paid.IsZero() && revStatus != c.priorStatus {
			t.Fatalf("%+v: status %s != %s after roundtrip", c, revStatus, c.priorStatus)
		}
	}
}
