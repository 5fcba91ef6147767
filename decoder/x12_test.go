package decoder

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func x12Stream(segments ...string) string {
	return strings.Join(segments, "~") + "~"
}

func TestDecodeX12_OneRecordPerCLP(t *testing.T) {
	content := x12Stream(
		"ISA*00*          *00*          *ZZ*PAYERID        *ZZ*PROVIDERID     *240115*1200*^*00501*000000001*0*P*:",
		"BPR*I*1250.00*C*ACH*CCP*01*999988880*DA*123456789*1512345678**01*999988880*DA*987654321*20240115",
		"TRN*1*CHK20240115001*1512345678",
		"N1*PR*ACME HEALTH PLAN",
		"CLP*CLM100*1*150.00*150.00*0*MC*CTRL001",
		"SVC*HC:99213*150.00*150.00",
		"DTM*232*20240102",
		"CLP*CLM200*1*100.00*90.00*10.00*MC*CTRL002",
		"CAS*CO*45*6.00",
		"CAS*PR*1*4.00",
		"REF*EJ*PAT7788",
	)

	records := DecodeX12(content)
	if len(records) != 2 {
		t.Fatalf("expected 2 records (one per CLP), got %d", len(records))
	}

	first := records[0]
	if first.ClaimReference != "CLM100" {
		t.Errorf("claim reference = %q, want CLM100", first.ClaimReference)
	}
	if !first.PaidAmount.Equal(decimal.RequireFromString("150.00")) {
		t.Errorf("paid amount = %s, want 150.00", first.PaidAmount)
	}
	if first.CheckNumber != "CHK20240115001" {
		t.Errorf("check number = %q, want CHK20240115001", first.CheckNumber)
	}
	if first.PayerName != "ACME HEALTH PLAN" {
		t.Errorf("payer name = %q", first.PayerName)
	}
	if first.ServiceDate == nil || first.ServiceDate.Format("20060102") != "20240102" {
		t.Errorf("service date = %v, want 20240102", first.ServiceDate)
	}
	if first.PaymentDate == nil || first.PaymentDate.Format("20060102") != "20240115" {
		t.Errorf("payment date = %v, want 20240115 (BPR16)", first.PaymentDate)
	}
	if len(first.ServiceLines) != 1 || first.ServiceLines[0].ProcedureCode != "HC:99213" {
		t.Errorf("service lines = %+v", first.ServiceLines)
	}

	second := records[1]
	if second.ClaimReference != "CLM200" {
		t.Errorf("claim reference = %q, want CLM200", second.ClaimReference)
	}
	if !second.PatientResponsibility.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("patient responsibility = %s, want 10.00", second.PatientResponsibility)
	}
	if second.PatientReference != "PAT7788" {
		t.Errorf("patient reference = %q, want PAT7788", second.PatientReference)
	}
}

func TestDecodeX12_CASAmountsSumPerCLPContext(t *testing.T) {
	content := x12Stream(
		"CLP*CLM300*1*500.00*400.00*0",
		"CAS*CO*45*60.00*1*253*15.00*1",
		"CAS*PR*2*25.00",
		"CLP*CLM400*1*200.00*200.00*0",
		"CAS*CO*45*1.00",
	)

	records := DecodeX12(content)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	if got, want := records[0].AdjustmentTotal, decimal.RequireFromString("100.00"); !got.Equal(want) {
		t.Errorf("CLM300 adjustment total = %s, want %s", got, want)
	}
	if len(records[0].Adjustments) != 3 {
		t.Errorf("CLM300 adjustments = %d, want 3", len(records[0].Adjustments))
	}
	if records[0].Adjustments[1].ReasonCode != "253" {
		t.Errorf("repeating CAS triplet reason = %q, want 253", records[0].Adjustments[1].ReasonCode)
	}

	if got, want := records[1].AdjustmentTotal, decimal.RequireFromString("1.00"); !got.Equal(want) {
		t.Errorf("CLM400 adjustment total = %s, want %s (CAS must not leak across CLP)", got, want)
	}
}

func TestDecodeX12_MalformedSegmentDegradesCurrentRecordOnly(t *testing.T) {
	content := x12Stream(
		"CLP*CLM500*1*abc*xyz*0",
		"CAS*CO*45*bogus",
		"CLP*CLM600*1*100.00*100.00*0",
	)

	records := DecodeX12(content)
	if len(records) != 2 {
		t.Fatalf("malformed segment must not abort the file; got %d records", len(records))
	}

	bad := records[0]
	if bad.PaidNumeric {
		t.Error("unparseable paid amount should clear PaidNumeric")
	}
	if len(bad.Warnings) == 0 {
		t.Error("degraded record should carry decode warnings")
	}

	good := records[1]
	if !good.PaidNumeric || len(good.Warnings) != 0 {
		t.Errorf("following record must be unaffected: %+v", good)
	}
}

func TestDecodeX12_OrphanSegmentsBeforeFirstCLPIgnored(t *testing.T) {
	content := x12Stream(
		"SVC*HC:99213*150.00*150.00",
		"CAS*CO*45*10.00",
		"CLP*CLM700*1*50.00*50.00*0",
	)

	records := DecodeX12(content)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if !records[0].AdjustmentTotal.IsZero() || len(records[0].ServiceLines) != 0 {
		t.Errorf("orphan SVC/CAS must not attach to a later CLP: %+v", records[0])
	}
}
