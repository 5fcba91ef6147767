package decoder

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNoUsableRecords rejects a whole file: nothing in it decoded to a
// postable record. This is the only file-level validation failure; every
// per-record condition is a warning on the record itself.
var ErrNoUsableRecords = errors.New("remittance file contains no usable records")

// Usable reports whether a record can be carried into matching: it has a
// claim reference and a numeric, non-negative paid amount.
func Usable(rec *PaymentRecord) bool {
	if rec.ClaimReference == "" {
		return false
	}
	if !rec.PaidNumeric {
		return false
	}
	return rec.PaidAmount.Cmp(decimal.Zero) >= 0
}

// ValidateFile gates the batch and annotates per-record anomalies.
// Overpayment (paid > billed charges) is legitimate for secondary-payer
// overlap, so it stays a warning.
func ValidateFile(records []PaymentRecord) error {
	usable := 0
	for i := range records {
		rec := &records[i]
		if Usable(rec) {
			usable++
		} else if rec.ClaimReference == "" {
			rec.warnf("record has no claim reference")
		} else if rec.PaidAmount.IsNegative() {
			rec.warnf("paid amount is negative")
		}
		if rec.TotalCharges.IsPositive() && rec.PaidAmount.Cmp(rec.TotalCharges) > 0 {
			rec.warnf("paid amount %s exceeds total charges %s", rec.PaidAmount.String(), rec.TotalCharges.String())
		}
	}
	if usable == 0 {
		return ErrNoUsableRecords
	}
	return nil
}
