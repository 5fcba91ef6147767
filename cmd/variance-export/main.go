// variance-export writes the variance report for one remittance file as an
// xlsx workbook for the follow-up team.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  go run ./cmd/variance-export -file-id 42 -out variance_42.xlsx
package main

import (
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/remit_backend/config"
	"bitbucket.org/mmdatafocus/remit_backend/workflow"
	"github.com/xuri/excelize/v2"
)

func main() {
	fileId := flag.Int("file-id", 0, "Remittance file id to export")
	out := flag.String("out", "", "Output xlsx path (default variance_<file-id>.xlsx)")
	flag.Parse()

	if *fileId <= 0 {
		fmt.Fprintln(os.Stderr, "-file-id is required")
		os.Exit(2)
	}
	outPath := *out
	if outPath == "" {
		outPath = fmt.Sprintf("variance_%d.xlsx", *fileId)
	}

	logger := config.GetLogger()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	report, err := workflow.BuildVarianceReport(db, logger, *fileId)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build variance report: %v\n", err)
		os.Exit(1)
	}

	f := excelize.NewFile()
	sheet := "Sheet1"

	headings := []string{"Ordinal", "ClaimReference", "MatchType", "Confidence", "PaidAmount", "ClaimTotal", "Residual", "Reason"}
	col := 'A'
	for _, h := range headings {
		f.SetCellValue(sheet, string(col)+"1", h)
		col++
	}

	for i, e := range report.Entries {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+row, e.Ordinal)
		f.SetCellValue(sheet, "B"+row, e.ClaimReference)
		f.SetCellValue(sheet, "C"+row, string(e.MatchType))
		f.SetCellValue(sheet, "D"+row, e.Confidence)
		f.SetCellValue(sheet, "E"+row, e.PaidAmount.String())
		if e.ClaimTotal != nil {
			f.SetCellValue(sheet, "F"+row, e.ClaimTotal.String())
		}
		if e.Residual != nil {
			f.SetCellValue(sheet, "G"+row, e.Residual.String())
		}
		f.SetCellValue(sheet, "H"+row, e.Reason)
	}

	summaryRow := fmt.Sprint(len(report.Entries) + 3)
	f.SetCellValue(sheet, "A"+summaryRow, "TotalVariance")
	f.SetCellValue(sheet, "B"+summaryRow, report.TotalVariance.String())

	if err := f.SaveAs(outPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to save %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d entries)\n", outPath, len(report.Entries))
}
