package decoder

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// DecodeJSON accepts an array of objects carrying the same field set as the
// CSV format, with the same case/naming tolerance. A payload that is not a
// JSON array yields no records (the validator then rejects the file).
func DecodeJSON(content []byte) []PaymentRecord {
	var rows []map[string]json.RawMessage
	if err := json.Unmarshal(content, &rows); err != nil {
		return nil
	}

	records := make([]PaymentRecord, 0, len(rows))
	for _, row := range rows {
		rec := PaymentRecord{PaidNumeric: true}
		normalized := make(map[string]json.RawMessage, len(row))
		for k, v := range row {
			normalized[normalizeKey(k)] = v
		}
		for alias, field := range csvColumns {
			raw, ok := normalized[alias]
			if !ok {
				continue
			}
			assignField(&rec, field, jsonScalar(raw))
		}
		records = append(records, rec)
	}
	return records
}

// jsonScalar renders a raw JSON value as the string the shared field
// assignment expects: strings unquoted, numbers exact. Booleans, null and
// composites have no field to land in and render empty.
func jsonScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		// Route through decimal so 150.00 survives as typed.
		if d, derr := decimal.NewFromString(n.String()); derr == nil {
			return d.String()
		}
		return n.String()
	}
	return ""
}
