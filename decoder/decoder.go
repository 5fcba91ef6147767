package decoder

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Supported remittance formats. Values match the persisted enum in models.
const (
	FormatX12835 = "X12_835"
	FormatCSV    = "CSV"
	FormatJSON   = "JSON"
)

// ServiceLine is one SVC segment (or CSV/JSON equivalent) under a claim
// payment.
type ServiceLine struct {
	ProcedureCode string          `json:"procedure_code"`
	ChargeAmount  decimal.Decimal `json:"charge_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
}

// Adjustment is one CAS reason/amount pair. A single CAS segment can carry
// several; they are flattened here.
type Adjustment struct {
	GroupCode  string          `json:"group_code"`
	ReasonCode string          `json:"reason_code"`
	Amount     decimal.Decimal `json:"amount"`
}

// PaymentRecord is the canonical decoded form of one claim payment. It lives
// only for one processing run; workflow persists a snapshot as
// models.RemittanceLine.
type PaymentRecord struct {
	ClaimReference        string
	PaidAmount            decimal.Decimal
	TotalCharges          decimal.Decimal
	PatientResponsibility decimal.Decimal
	ServiceLines          []ServiceLine
	Adjustments           []Adjustment
	AdjustmentTotal       decimal.Decimal
	CheckNumber           string
	PaymentDate           *time.Time
	ServiceDate           *time.Time
	PayerName             string
	PatientReference      string

	// PaidNumeric is false when the paid amount could not be parsed at all.
	// The validator treats that as record-fatal; every other defect is a
	// warning.
	PaidNumeric bool
	Warnings    []string
}

func (r *PaymentRecord) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Decode converts raw file content into ordered payment records. Decoding
// failures degrade individual records; only an unrecognized format is an
// error here (whole-file usability is the validator's call).
func Decode(format string, content []byte) ([]PaymentRecord, error) {
	switch format {
	case FormatX12835:
		return DecodeX12(string(content)), nil
	case FormatCSV:
		return DecodeCSV(content), nil
	case FormatJSON:
		return DecodeJSON(content), nil
	default:
		return nil, fmt.Errorf("unsupported remittance format %q", format)
	}
}

func parseAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
