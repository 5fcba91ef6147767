package workflow_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/remit_backend/config"
	"bitbucket.org/mmdatafocus/remit_backend/models"
	"bitbucket.org/mmdatafocus/remit_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// One payer file with four records: two clean posts, one record whose claim
// is already fully paid so its posting fails mid-batch, and one record with no
// matching claim at all. The failing record must roll back to its own
// savepoint and land in failed[] while the rest of the batch posts.
func TestProcessRemittanceFileBatchSurvivesOneFailedPosting(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "remit_test")
	t.Setenv("POSTING_AUTO_POST", "true")
	t.Setenv("POSTING_MIN_CONFIDENCE", "60")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
	db := config.GetDB()

	claims := []models.Claim{
		{
			ClaimNumber:       "CLM-1001",
			PatientId:         1,
			PatientAccountId:  11,
			TotalAmount:       decimal.RequireFromString("100.00"),
			OutstandingAmount: decimal.RequireFromString("100.00"),
			CurrentStatus:     models.ClaimStatusSubmitted,
		},
		{
			ClaimNumber:       "CLM-1002",
			PatientId:         2,
			PatientAccountId:  12,
			TotalAmount:       decimal.RequireFromString("200.00"),
			OutstandingAmount: decimal.RequireFromString("200.00"),
			CurrentStatus:     models.ClaimStatusInProcess,
		},
		{
			ClaimNumber:      "CLM-1003",
			PatientId:        3,
			PatientAccountId: 13,
			TotalAmount:      decimal.RequireFromString("50.00"),
			PaidAmount:       decimal.RequireFromString("50.00"),
			CurrentStatus:    models.ClaimStatusPaid,
		},
	}
	for i := range claims {
		if err := db.WithContext(ctx).Create(&claims[i]).Error; err != nil {
			t.Fatalf("seed claim %s: %v", claims[i].ClaimNumber, err)
		}
	}

	content := []byte(`[
		{"claim_number": "CLM-1001", "payment_amount": "100.00", "check_number": "CHK77", "payer_name": "Acme Health"},
		{"claim_number": "CLM-1002", "payment_amount": "200.00", "check_number": "CHK77"},
		{"claim_number": "CLM-1003", "payment_amount": "50.00", "check_number": "CHK77"},
		{"claim_number": "CLM-9999", "payment_amount": "10.00", "check_number": "CHK77"}
	]`)

	logger := logrus.New()
	summary, err := workflow.ProcessRemittanceFile(ctx, db, logger, "batch.json", models.RemittanceFormatJSON, content)
	if err != nil {
		t.Fatalf("ProcessRemittanceFile: %v", err)
	}

	if summary.Records != 4 {
		t.Fatalf("records = %d, want 4", summary.Records)
	}
	if summary.Matched != 3 {
		t.Fatalf("matched = %d, want 3", summary.Matched)
	}
	if summary.Unmatched != 1 {
		t.Fatalf("unmatched = %d, want 1", summary.Unmatched)
	}
	if len(summary.Failed) != 1 {
		t.Fatalf("failed = %+v, want exactly one entry", summary.Failed)
	}
	if summary.Failed[0].Ordinal != 3 || summary.Failed[0].ClaimReference != "CLM-1003" {
		t.Fatalf("failed entry = %+v", summary.Failed[0])
	}
	if !summary.PostedAmount.Equal(decimal.RequireFromString("300.00")) {
		t.Fatalf("posted amount = %s, want 300.00", summary.PostedAmount)
	}

	// The failed record left no ledger trace behind its savepoint.
	var failedPayments int64
	if err := db.WithContext(ctx).Model(&models.Payment{}).
		Where("claim_id = ?", claims[2].ID).Count(&failedPayments).Error; err != nil {
		t.Fatalf("count payments for failed record: %v", err)
	}
	if failedPayments != 0 {
		t.Fatalf("failed record persisted %d payment rows, want 0", failedPayments)
	}

	var totalPayments int64
	if err := db.WithContext(ctx).Model(&models.Payment{}).Count(&totalPayments).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if totalPayments != 2 {
		t.Fatalf("payment rows = %d, want 2", totalPayments)
	}

	var posted models.Claim
	if err := db.WithContext(ctx).First(&posted, claims[0].ID).Error; err != nil {
		t.Fatalf("reload claim: %v", err)
	}
	if posted.CurrentStatus != models.ClaimStatusPaid || !posted.PaidAmount.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("posted claim status=%s paid=%s", posted.CurrentStatus, posted.PaidAmount)
	}

	// The file row carries the full 64-char content digest as correlation id;
	// a lookup with the exact digest must resolve it.
	sum := sha256.Sum256(content)
	digest := hex.EncodeToString(sum[:])
	var file models.RemittanceFile
	if err := db.WithContext(ctx).Where("correlation_id = ?", digest).First(&file).Error; err != nil {
		t.Fatalf("lookup file by digest: %v", err)
	}
	if file.ID != summary.RemittanceFileId {
		t.Fatalf("digest lookup resolved file %d, want %d", file.ID, summary.RemittanceFileId)
	}

	// Re-uploading the same bytes is a safe skip: same summary, no new rows.
	again, err := workflow.ProcessRemittanceFile(ctx, db, logger, "batch.json", models.RemittanceFormatJSON, content)
	if err != nil {
		t.Fatalf("re-upload: %v", err)
	}
	if !again.Duplicate {
		t.Fatal("re-upload not flagged duplicate")
	}
	if again.RemittanceFileId != summary.RemittanceFileId {
		t.Fatalf("re-upload file id = %d, want %d", again.RemittanceFileId, summary.RemittanceFileId)
	}
	var paymentsAfter int64
	if err := db.WithContext(ctx).Model(&models.Payment{}).Count(&paymentsAfter).Error; err != nil {
		t.Fatalf("count payments after re-upload: %v", err)
	}
	if paymentsAfter != totalPayments {
		t.Fatalf("re-upload created payments: %d -> %d", totalPayments, paymentsAfter)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("remit-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=remit_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
