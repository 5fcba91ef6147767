package decoder

import (
	"strings"
	"time"
)

// X12-835 wire syntax: segments terminated by '~', elements separated by '*'.
// A CLP segment opens a claim-payment context; SVC/CAS/DTM/REF segments
// accumulate into it until the next CLP or end of stream. Header segments
// (TRN check number, N1*PR payer, BPR payment date) apply to every record
// that follows them.
//
// A malformed segment degrades the current record with a warning; it never
// aborts the file.

const dtmQualifierServiceDate = "232"

// DecodeX12 walks the segment stream and emits one PaymentRecord per CLP.
func DecodeX12(content string) []PaymentRecord {
	var (
		records []PaymentRecord
		cur     *PaymentRecord

		checkNumber string
		payerName   string
		paymentDate *time.Time
	)

	flush := func() {
		if cur != nil {
			records = append(records, *cur)
			cur = nil
		}
	}

	for _, raw := range strings.Split(content, "~") {
		seg := strings.TrimSpace(raw)
		if seg == "" {
			continue
		}
		elements := strings.Split(seg, "*")
		segID := strings.ToUpper(strings.TrimSpace(elements[0]))

		switch segID {
		case "CLP":
			flush()
			cur = decodeCLP(elements)
			cur.CheckNumber = checkNumber
			cur.PayerName = payerName
			cur.PaymentDate = paymentDate

		case "SVC":
			if cur == nil {
				continue
			}
			line := ServiceLine{ProcedureCode: element(elements, 1)}
			if v := element(elements, 2); v != "" {
				if d, ok := parseAmount(v); ok {
					line.ChargeAmount = d
				} else {
					cur.warnf("SVC: unparseable charge amount %q", v)
				}
			}
			if v := element(elements, 3); v != "" {
				if d, ok := parseAmount(v); ok {
					line.PaidAmount = d
				} else {
					cur.warnf("SVC: unparseable paid amount %q", v)
				}
			}
			cur.ServiceLines = append(cur.ServiceLines, line)

		case "CAS":
			if cur == nil {
				continue
			}
			decodeCAS(cur, elements)

		case "DTM":
			if element(elements, 1) != dtmQualifierServiceDate {
				continue
			}
			if t, ok := parseX12Date(element(elements, 2)); ok {
				if cur != nil {
					cur.ServiceDate = &t
				}
			} else if cur != nil {
				cur.warnf("DTM: unparseable service date %q", element(elements, 2))
			}

		case "N1":
			if strings.EqualFold(element(elements, 1), "PR") {
				payerName = element(elements, 2)
			}

		case "TRN":
			checkNumber = element(elements, 2)

		case "BPR":
			// BPR16 is the check issue / EFT effective date.
			if t, ok := parseX12Date(element(elements, 16)); ok {
				paymentDate = &t
			}

		case "REF":
			if cur == nil {
				continue
			}
			// EJ = patient account number.
			if strings.EqualFold(element(elements, 1), "EJ") {
				cur.PatientReference = element(elements, 2)
			}
		}
	}
	flush()
	return records
}

// decodeCLP opens a new claim-payment context.
// CLP01 claim reference, CLP03 total charges, CLP04 paid amount,
// CLP05 patient responsibility.
func decodeCLP(elements []string) *PaymentRecord {
	rec := &PaymentRecord{PaidNumeric: true}

	rec.ClaimReference = element(elements, 1)
	if rec.ClaimReference == "" {
		rec.warnf("CLP: missing claim reference")
	}

	if v := element(elements, 3); v != "" {
		if d, ok := parseAmount(v); ok {
			rec.TotalCharges = d
		} else {
			rec.warnf("CLP: unparseable total charges %q", v)
		}
	}
	if v := element(elements, 4); v != "" {
		if d, ok := parseAmount(v); ok {
			rec.PaidAmount = d
		} else {
			rec.PaidNumeric = false
			rec.warnf("CLP: unparseable paid amount %q", v)
		}
	}
	if v := element(elements, 5); v != "" {
		if d, ok := parseAmount(v); ok {
			rec.PatientResponsibility = d
		} else {
			rec.warnf("CLP: unparseable patient responsibility %q", v)
		}
	}
	return rec
}

// decodeCAS folds one CAS segment into the current record. CAS01 is the group
// code; reason/amount(/quantity) triplets repeat from CAS02. All amounts of
// all CAS segments under one CLP sum into AdjustmentTotal.
func decodeCAS(rec *PaymentRecord, elements []string) {
	group := element(elements, 1)
	if group == "" {
		rec.warnf("CAS: missing group code")
	}
	for i := 2; i < len(elements); i += 3 {
		reason := element(elements, i)
		rawAmount := element(elements, i+1)
		if reason == "" && rawAmount == "" {
			continue
		}
		amount, ok := parseAmount(rawAmount)
		if !ok {
			rec.warnf("CAS: unparseable adjustment amount %q (reason %s)", rawAmount, reason)
			continue
		}
		rec.Adjustments = append(rec.Adjustments, Adjustment{
			GroupCode:  group,
			ReasonCode: reason,
			Amount:     amount,
		})
		rec.AdjustmentTotal = rec.AdjustmentTotal.Add(amount)
	}
}

func element(elements []string, i int) string {
	if i < 0 || i >= len(elements) {
		return ""
	}
	return strings.TrimSpace(elements[i])
}

func parseX12Date(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102", v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
