package workflow

import (
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/remit_backend/config"
	"bitbucket.org/mmdatafocus/remit_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrClaimNotFound     = errors.New("claim not found")
	ErrClaimAlreadyPaid  = errors.New("claim is already fully paid")
	ErrNonPositiveAmount = errors.New("payment amount must be positive")
)

// PostingResult describes one applied ledger mutation.
type PostingResult struct {
	PaymentId     int                         `json:"payment_id"`
	ClaimId       int                         `json:"claim_id"`
	Amount        decimal.Decimal             `json:"amount"`
	Before        models.ClaimBalanceSnapshot `json:"before"`
	After         models.ClaimBalanceSnapshot `json:"after"`
	PostedAt      time.Time                   `json:"posted_at"`
	CorrelationId string                      `json:"correlation_id"`
}

// ApplyPaymentBalances is the posting arithmetic, kept pure so posting and
// reversal stay exact mirrors of each other. Outstanding clamps at zero on
// overpayment; the credit lives outside this ledger.
func ApplyPaymentBalances(total, paid, amount decimal.Decimal) (newPaid, newOutstanding decimal.Decimal, newStatus models.ClaimStatus) {
	newPaid = paid.Add(amount)
	newOutstanding = total.Sub(newPaid)
	if newOutstanding.IsNegative() {
		newOutstanding = decimal.Zero
	}
	switch {
	case newOutstanding.IsZero():
		newStatus = models.ClaimStatusPaid
	case newPaid.IsPositive():
		newStatus = models.ClaimStatusPartiallyPaid
	default:
		newStatus = models.ClaimStatusSubmitted
	}
	return newPaid, newOutstanding, newStatus
}

// PostPayment applies one payment to a claim inside the caller's transaction.
// Locking order is fixed: claim advisory lock, then claim row lock, then the
// patient account advisory lock. Both advisory locks are released before
// return regardless of outcome; row locks release with the transaction.
func PostPayment(tx *gorm.DB, logger *logrus.Logger,
	claimId int, amount decimal.Decimal,
	method models.PaymentMethod, source string, checkNumber string,
	correlationId string) (*PostingResult, error) {

	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	err := AcquireClaimPostingLock(tx, claimId)
	if err != nil {
		config.LogError(logger, "postingWorkflow.go", "PostPayment", "AcquireClaimPostingLock", claimId, err)
		return nil, err
	}
	defer ReleaseClaimPostingLock(tx, claimId)

	claim, err := models.GetClaimForUpdate(tx, claimId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClaimNotFound
		}
		config.LogError(logger, "postingWorkflow.go", "PostPayment", "GetClaimForUpdate", claimId, err)
		return nil, err
	}

	if claim.PatientAccountId != 0 {
		err = AcquirePatientAccountLock(tx, claim.PatientAccountId)
		if err != nil {
			config.LogError(logger, "postingWorkflow.go", "PostPayment", "AcquirePatientAccountLock", claim.PatientAccountId, err)
			return nil, err
		}
		defer ReleasePatientAccountLock(tx, claim.PatientAccountId)
	}

	if claim.CurrentStatus == models.ClaimStatusPaid {
		return nil, ErrClaimAlreadyPaid
	}

	before := claim.Snapshot()
	newPaid, newOutstanding, newStatus := ApplyPaymentBalances(claim.TotalAmount, claim.PaidAmount, amount)

	postedAt := time.Now()
	payment := models.Payment{
		ClaimId:          claim.ID,
		Amount:           amount,
		Method:           method,
		Source:           source,
		CheckNumber:      checkNumber,
		ReversalState:    models.PaymentReversalStateActive,
		PriorClaimStatus: claim.CurrentStatus,
		CorrelationId:    correlationId,
		PostedAt:         postedAt,
	}
	err = tx.Create(&payment).Error
	if err != nil {
		config.LogError(logger, "postingWorkflow.go", "PostPayment", "create payment", payment, err)
		return nil, err
	}

	claim.PaidAmount = newPaid
	claim.OutstandingAmount = newOutstanding
	claim.CurrentStatus = newStatus
	err = tx.Model(&models.Claim{}).Where("id = ?", claim.ID).
		Updates(map[string]interface{}{
			"paid_amount":        newPaid,
			"outstanding_amount": newOutstanding,
			"current_status":     newStatus,
		}).Error
	if err != nil {
		config.LogError(logger, "postingWorkflow.go", "PostPayment", "update claim balances", claim.ID, err)
		return nil, err
	}

	after := claim.Snapshot()
	err = models.SaveHistoryUpdate(tx, claim.ID, "Claim", before, after, "Payment posted")
	if err != nil {
		config.LogError(logger, "postingWorkflow.go", "PostPayment", "SaveHistoryUpdate", claim.ID, err)
		return nil, err
	}

	result := &PostingResult{
		PaymentId:     payment.ID,
		ClaimId:       claim.ID,
		Amount:        amount,
		Before:        before,
		After:         after,
		PostedAt:      postedAt,
		CorrelationId: correlationId,
	}

	err = enqueuePaymentEvent(tx, models.PaymentEventTypePosted, claim.ID, payment.ID, amount, source, postedAt, correlationId, result)
	if err != nil {
		config.LogError(logger, "postingWorkflow.go", "PostPayment", "enqueuePaymentEvent", payment.ID, err)
		return nil, err
	}

	return result, nil
}

// enqueuePaymentEvent writes the outbox row in the same transaction as the
// ledger mutation. The dispatcher publishes after commit.
func enqueuePaymentEvent(tx *gorm.DB, eventType models.PaymentEventType,
	claimId, paymentId int, amount decimal.Decimal, source string,
	postedAt time.Time, correlationId string, payload interface{}) error {

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := models.PaymentEventRecord{
		EventType:     eventType,
		ClaimId:       claimId,
		PaymentId:     paymentId,
		Amount:        amount.String(),
		Source:        source,
		Payload:       body,
		PostedAt:      postedAt,
		PublishStatus: string(models.OutboxPublishStatusPending),
		CorrelationId: correlationId,
	}
	return tx.Create(&record).Error
}
