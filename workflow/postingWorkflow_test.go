package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/remit_backend/models"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyPaymentBalances_FullPayment(t *testing.T) {
	newPaid, newOutstanding, newStatus := ApplyPaymentBalances(d("250.00"), d("0"), d("250.00"))
	if !newPaid.Equal(d("250.00")) {
		t.Fatalf("paid = %s", newPaid)
	}
	if !newOutstanding.IsZero() {
		t.Fatalf("outstanding = %s", newOutstanding)
	}
	if newStatus != models.ClaimStatusPaid {
		t.Fatalf("status = %s", newStatus)
	}
}

func TestApplyPaymentBalances_PartialThenRemainder(t *testing.T) {
	// Two postings against a 250.00 claim: 150.00 then 100.00.
	newPaid, newOutstanding, newStatus := ApplyPaymentBalances(d("250.00"), d("0"), d("150.00"))
	if !newPaid.Equal(d("150.00")) || !newOutstanding.Equal(d("100.00")) {
		t.Fatalf("after first posting: paid=%s outstanding=%s", newPaid, newOutstanding)
	}
	if newStatus != models.ClaimStatusPartiallyPaid {
		t.Fatalf("status after first posting = %s", newStatus)
	}

	newPaid, newOutstanding, newStatus = ApplyPaymentBalances(d("250.00"), newPaid, d("100.00"))
	if !newPaid.Equal(d("250.00")) || !newOutstanding.IsZero() {
		t.Fatalf("after second posting: paid=%s outstanding=%s", newPaid, newOutstanding)
	}
	if newStatus != models.ClaimStatusPaid {
		t.Fatalf("status after second posting = %s", newStatus)
	}
}

func TestApplyPaymentBalances_OverpaymentClampsOutstanding(t *testing.T) {
	newPaid, newOutstanding, newStatus := ApplyPaymentBalances(d("100.00"), d("0"), d("120.00"))
	if !newPaid.Equal(d("120.00")) {
		t.Fatalf("paid = %s", newPaid)
	}
	if !newOutstanding.IsZero() {
		t.Fatalf("outstanding must clamp at zero, got %s", newOutstanding)
	}
	if newStatus != models.ClaimStatusPaid {
		t.Fatalf("status = %s", newStatus)
	}
}

func TestApplyPaymentBalances_ExactDecimalArithmetic(t *testing.T) {
	// Amounts that float64 cannot represent must still round-trip cleanly.
	paid := d("0")
	for i := 0; i < 10; i++ {
		paid, _, _ = ApplyPaymentBalances(d("1.00"), paid, d("0.10"))
	}
	if !paid.Equal(d("1.00")) {
		t.Fatalf("ten dimes should equal one dollar, got %s", paid)
	}
}
