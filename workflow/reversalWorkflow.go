package workflow

import (
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/remit_backend/config"
	"bitbucket.org/mmdatafocus/remit_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrReversalNotFound covers both an unknown payment id and a payment that
// was already reversed; callers cannot distinguish the two.
var ErrReversalNotFound = errors.New("payment not found or already reversed")

type ReversalResult struct {
	ReversalId    int                         `json:"reversal_id"`
	PaymentId     int                         `json:"payment_id"`
	ClaimId       int                         `json:"claim_id"`
	Amount        decimal.Decimal             `json:"amount"`
	Before        models.ClaimBalanceSnapshot `json:"before"`
	After         models.ClaimBalanceSnapshot `json:"after"`
	ReversedAt    time.Time                   `json:"reversed_at"`
	CorrelationId string                      `json:"correlation_id"`
}

// ReversalBalances undoes one payment's effect additively. When the reversal
// drains paid back to zero the claim returns to priorStatus, the status it
// held before the payment posted, so an InProcess claim does not come back
// Submitted. With no recorded prior status the posting derivation applies.
func ReversalBalances(total, paid, amount decimal.Decimal, priorStatus models.ClaimStatus) (newPaid, newOutstanding decimal.Decimal, newStatus models.ClaimStatus) {
	newPaid = paid.Sub(amount)
	if newPaid.IsNegative() {
		newPaid = decimal.Zero
	}
	newOutstanding = total.Sub(newPaid)
	if newOutstanding.IsNegative() {
		newOutstanding = decimal.Zero
	}
	switch {
	case newPaid.IsZero():
		if priorStatus != "" {
			newStatus = priorStatus
		} else {
			newStatus = models.ClaimStatusSubmitted
		}
	case newOutstanding.IsZero():
		newStatus = models.ClaimStatusPaid
	default:
		newStatus = models.ClaimStatusPartiallyPaid
	}
	return newPaid, newOutstanding, newStatus
}

// ReversePayment backs out a posted payment inside the caller's transaction.
// The payment row is never deleted: a PaymentReversal is created and the
// payment's ReversalState flips to reversed.
func ReversePayment(tx *gorm.DB, logger *logrus.Logger, paymentId int, reason string) (*ReversalResult, error) {
	var payment models.Payment
	err := tx.Where("id = ? AND reversal_state = ?", paymentId, models.PaymentReversalStateActive).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReversalNotFound
		}
		config.LogError(logger, "reversalWorkflow.go", "ReversePayment", "load payment", paymentId, err)
		return nil, err
	}

	err = AcquireClaimPostingLock(tx, payment.ClaimId)
	if err != nil {
		config.LogError(logger, "reversalWorkflow.go", "ReversePayment", "AcquireClaimPostingLock", payment.ClaimId, err)
		return nil, err
	}
	defer ReleaseClaimPostingLock(tx, payment.ClaimId)

	claim, err := models.GetClaimForUpdate(tx, payment.ClaimId)
	if err != nil {
		config.LogError(logger, "reversalWorkflow.go", "ReversePayment", "GetClaimForUpdate", payment.ClaimId, err)
		return nil, err
	}

	before := claim.Snapshot()
	newPaid, newOutstanding, newStatus := ReversalBalances(claim.TotalAmount, claim.PaidAmount, payment.Amount, payment.PriorClaimStatus)

	reversedAt := time.Now()
	reversal := models.PaymentReversal{
		PaymentId:  payment.ID,
		ClaimId:    payment.ClaimId,
		Amount:     payment.Amount,
		Reason:     reason,
		ReversedAt: reversedAt,
	}
	err = tx.Create(&reversal).Error
	if err != nil {
		// The unique index on payment_id closes the race where two reversal
		// requests load the same active payment.
		if isDuplicateKeyErr(err) {
			return nil, ErrReversalNotFound
		}
		config.LogError(logger, "reversalWorkflow.go", "ReversePayment", "create reversal", reversal, err)
		return nil, err
	}

	err = tx.Model(&models.Payment{}).Where("id = ?", payment.ID).
		Update("reversal_state", models.PaymentReversalStateReversed).Error
	if err != nil {
		config.LogError(logger, "reversalWorkflow.go", "ReversePayment", "flip reversal_state", payment.ID, err)
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
		config.LogError(logger, "reversalWorkflow.go", "ReversePayment", "update claim balances", claim.ID, err)
		return nil, err
	}

	after := claim.Snapshot()
	err = models.SaveHistoryUpdate(tx, claim.ID, "Claim", before, after, "Payment reversed")
	if err != nil {
		config.LogError(logger, "reversalWorkflow.go", "ReversePayment", "SaveHistoryUpdate", claim.ID, err)
		return nil, err
	}

	result := &ReversalResult{
		ReversalId:    reversal.ID,
		PaymentId:     payment.ID,
		ClaimId:       claim.ID,
		Amount:        payment.Amount,
		Before:        before,
		After:         after,
		ReversedAt:    reversedAt,
		CorrelationId: payment.CorrelationId,
	}

	err = enqueuePaymentEvent(tx, models.PaymentEventTypeReversed, claim.ID, payment.ID, payment.Amount, payment.Source, reversedAt, payment.CorrelationId, result)
	if err != nil {
		config.LogError(logger, "reversalWorkflow.go", "ReversePayment", "enqueuePaymentEvent", payment.ID, err)
		return nil, err
	}

	return result, nil
}
