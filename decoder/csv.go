package decoder

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"
	"time"
)

// Column aliases are matched after lowercasing and stripping underscores, so
// claim_number / claimNumber / CLAIM_NUMBER all resolve to the same field.
var csvColumns = map[string]string{
	"claimnumber":           "claim_reference",
	"claimreference":        "claim_reference",
	"paymentamount":         "paid_amount",
	"paidamount":            "paid_amount",
	"totalcharges":          "total_charges",
	"patientresponsibility": "patient_responsibility",
	"checknumber":           "check_number",
	"paymentdate":           "payment_date",
	"payername":             "payer_name",
	"patientid":             "patient_reference",
}

// DecodeCSV maps each data row onto a PaymentRecord. Missing optional columns
// default to zero/empty; a bad row degrades that record only.
func DecodeCSV(content []byte) []PaymentRecord {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil
	}
	fields := make([]string, len(header))
	for i, h := range header {
		fields[i] = csvColumns[normalizeKey(h)]
	}

	var records []PaymentRecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// csv.Reader errors are positional (bare quote etc); the row is
			// lost but the file keeps going.
			rec := PaymentRecord{PaidNumeric: true}
			rec.warnf("CSV: unreadable row: %v", err)
			records = append(records, rec)
			continue
		}
		rec := PaymentRecord{PaidNumeric: true}
		for i, cell := range row {
			if i >= len(fields) || fields[i] == "" {
				continue
			}
			assignField(&rec, fields[i], cell)
		}
		records = append(records, rec)
	}
	return records
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.ReplaceAll(k, "_", "")
}

func assignField(rec *PaymentRecord, field string, value string) {
	value = strings.TrimSpace(value)
	switch field {
	case "claim_reference":
		rec.ClaimReference = value
	case "paid_amount":
		if value == "" {
			return
		}
		if d, ok := parseAmount(value); ok {
			rec.PaidAmount = d
		} else {
			rec.PaidNumeric = false
			rec.warnf("unparseable paid amount %q", value)
		}
	case "total_charges":
		if value == "" {
			return
		}
		if d, ok := parseAmount(value); ok {
			rec.TotalCharges = d
		} else {
			rec.warnf("unparseable total charges %q", value)
		}
	case "patient_responsibility":
		if value == "" {
			return
		}
		if d, ok := parseAmount(value); ok {
			rec.PatientResponsibility = d
		} else {
			rec.warnf("unparseable patient responsibility %q", value)
		}
	case "check_number":
		rec.CheckNumber = value
	case "payment_date":
		if value == "" {
			return
		}
		if t, ok := parseLooseDate(value); ok {
			rec.PaymentDate = &t
		} else {
			rec.warnf("unparseable payment date %q", value)
		}
	case "payer_name":
		rec.PayerName = value
	case "patient_reference":
		rec.PatientReference = value
	}
}

var dateLayouts = []string{"2006-01-02", "20060102", "01/02/2006", time.RFC3339}

func parseLooseDate(v string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
