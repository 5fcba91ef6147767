package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/remit_backend/config"
	"bitbucket.org/mmdatafocus/remit_backend/decoder"
	"bitbucket.org/mmdatafocus/remit_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const remitFileHandler = "REMIT_FILE"

type FailedRecord struct {
	Ordinal        int    `json:"ordinal"`
	ClaimReference string `json:"claim_reference"`
	Reason         string `json:"reason"`
}

// ProcessSummary is the structured result of one file run. A multi-record
// file never fails opaquely: per-record problems land in Failed, not in err.
type ProcessSummary struct {
	RemittanceFileId int                         `json:"remittance_file_id"`
	Status           models.RemittanceFileStatus `json:"status"`
	Records          int                         `json:"records"`
	Matched          int                         `json:"matched"`
	Unmatched        int                         `json:"unmatched"`
	Failed           []FailedRecord              `json:"failed"`
	PostedAmount     decimal.Decimal             `json:"posted_amount"`
	Duplicate        bool                        `json:"duplicate"`
}

// ProcessRemittanceFile runs the full pipeline for one payer file: decode,
// validate, persist, match each line in source order, and auto-post eligible
// matches. Everything after validation happens in one transaction; each
// record's posting is wrapped in its own savepoint so one bad record degrades
// the batch instead of failing it. The file digest doubles as idempotency key
// and correlation id, so re-uploading the same bytes is a no-op.
func ProcessRemittanceFile(ctx context.Context, db *gorm.DB, logger *logrus.Logger,
	fileName string, format models.RemittanceFormat, content []byte) (*ProcessSummary, error) {

	sum := sha256.Sum256(content)
	digest := hex.EncodeToString(sum[:])

	// Best-effort redis lock on the file digest to avoid two uploads of the
	// same bytes blocking each other in the DB. Reliability does not depend
	// on redis: the idempotency key and MySQL advisory locks serialize safely.
	if locker := config.GetRedisLock(); locker != nil {
		lock, lockErr := locker.Obtain(ctx, "lock:remit:"+digest, 30*time.Second, nil)
		if lockErr != nil {
			config.LogWarn(logger, "remittanceWorkflow.go", "ProcessRemittanceFile", "redis lock not obtained", digest, lockErr.Error())
		} else {
			defer func() {
				if releaseErr := lock.Release(ctx); releaseErr != nil {
					config.LogWarn(logger, "remittanceWorkflow.go", "ProcessRemittanceFile", "redis lock release", digest, releaseErr.Error())
				}
			}()
		}
	}

	records, err := decoder.Decode(string(format), content)
	if err != nil {
		return nil, err
	}

	if err := decoder.ValidateFile(records); err != nil {
		rejected, persistErr := persistRejectedFile(ctx, db, logger, fileName, format, digest, err)
		if persistErr != nil {
			return nil, persistErr
		}
		return &ProcessSummary{
			RemittanceFileId: rejected.ID,
			Status:           models.RemittanceFileStatusRejected,
			Records:          len(records),
			Failed:           []FailedRecord{},
			PostedAmount:     decimal.Zero,
		}, err
	}

	var summary *ProcessSummary
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		skip, err := BeginIdempotency(tx, remitFileHandler, digest)
		if err != nil {
			return err
		}
		if skip {
			summary, err = loadExistingSummary(tx, digest)
			return err
		}

		summary, err = processRecords(tx, logger, fileName, format, digest, records)
		if err != nil {
			return err
		}
		return MarkIdempotencySucceeded(tx, remitFileHandler, digest)
	})
	if err != nil {
		if !errors.Is(err, ErrIdempotencyInProgress) {
			// The STARTED row from this run rolled back with the transaction;
			// this only records the failure when a prior run's key survives.
			_ = MarkIdempotencyFailed(db.WithContext(ctx), remitFileHandler, digest, err)
		}
		return nil, err
	}

	cacheSummary(logger, summary)
	return summary, nil
}

func processRecords(tx *gorm.DB, logger *logrus.Logger,
	fileName string, format models.RemittanceFormat, digest string,
	records []decoder.PaymentRecord) (*ProcessSummary, error) {

	file := models.RemittanceFile{
		FileName:      fileName,
		Format:        format,
		CurrentStatus: models.RemittanceFileStatusReceived,
		RecordCount:   len(records),
		CorrelationId: digest,
	}
	for i := range records {
		if records[i].PayerName != "" && file.PayerName == "" {
			file.PayerName = records[i].PayerName
		}
		if records[i].CheckNumber != "" && file.CheckNumber == "" {
			file.CheckNumber = records[i].CheckNumber
		}
	}
	err := tx.Create(&file).Error
	if err != nil {
		config.LogError(logger, "remittanceWorkflow.go", "processRecords", "create file", fileName, err)
		return nil, err
	}

	autoPost := config.AutoPostEnabled()
	minConfidence := config.AutoPostMinConfidence()

	summary := &ProcessSummary{
		RemittanceFileId: file.ID,
		Records:          len(records),
		Failed:           []FailedRecord{},
		PostedAmount:     decimal.Zero,
	}

	for i := range records {
		rec := &records[i]
		line, err := persistLine(tx, file.ID, i+1, rec)
		if err != nil {
			config.LogError(logger, "remittanceWorkflow.go", "processRecords", "persist line", rec.ClaimReference, err)
			return nil, err
		}

		if !decoder.Usable(rec) {
			summary.Unmatched++
			err = persistMatch(tx, file.ID, line.ID, MatchOutcome{
				MatchType: models.MatchTypeNone,
				Criteria:  MatchCriteria{Tier: "none", Note: "record not usable"},
			})
			if err != nil {
				return nil, err
			}
			continue
		}

		outcome, err := MatchPaymentRecord(tx, logger, *rec)
		if err != nil {
			return nil, err
		}
		err = persistMatch(tx, file.ID, line.ID, outcome)
		if err != nil {
			return nil, err
		}

		if outcome.MatchType == models.MatchTypeNone {
			summary.Unmatched++
			continue
		}
		summary.Matched++

		if !autoPost || outcome.Confidence < minConfidence {
			continue
		}

		// One savepoint per record: a posting failure rolls back only this
		// record and the batch continues.
		savepoint := fmt.Sprintf("remit_rec_%d", i)
		tx.SavePoint(savepoint)
		_, err = PostPayment(tx, logger,
			outcome.MatchedClaim.ID, rec.PaidAmount,
			models.PaymentMethodERA, fileName, rec.CheckNumber, digest)
		if err != nil {
			tx.RollbackTo(savepoint)
			config.LogWarn(logger, "remittanceWorkflow.go", "processRecords", "posting rolled back", rec.ClaimReference, err.Error())
			summary.Failed = append(summary.Failed, FailedRecord{
				Ordinal:        i + 1,
				ClaimReference: rec.ClaimReference,
				Reason:         err.Error(),
			})
			continue
		}
		summary.PostedAmount = summary.PostedAmount.Add(rec.PaidAmount)
	}

	summary.Status = models.RemittanceFileStatusProcessed
	err = tx.Model(&models.RemittanceFile{}).Where("id = ?", file.ID).
		Updates(map[string]interface{}{
			"current_status":  models.RemittanceFileStatusProcessed,
			"matched_count":   summary.Matched,
			"unmatched_count": summary.Unmatched,
			"failed_count":    len(summary.Failed),
			"posted_amount":   summary.PostedAmount,
		}).Error
	if err != nil {
		config.LogError(logger, "remittanceWorkflow.go", "processRecords", "finalize file", file.ID, err)
		return nil, err
	}

	return summary, nil
}

func persistLine(tx *gorm.DB, fileId, ordinal int, rec *decoder.PaymentRecord) (*models.RemittanceLine, error) {
	serviceLines, _ := json.Marshal(rec.ServiceLines)
	adjustments, _ := json.Marshal(rec.Adjustments)
	warnings, _ := json.Marshal(rec.Warnings)

	line := models.RemittanceLine{
		RemittanceFileId:      fileId,
		Ordinal:               ordinal,
		ClaimReference:        rec.ClaimReference,
		PaidAmount:            rec.PaidAmount,
		TotalCharges:          rec.TotalCharges,
		PatientResponsibility: rec.PatientResponsibility,
		AdjustmentTotal:       rec.AdjustmentTotal,
		ServiceLines:          string(serviceLines),
		Adjustments:           string(adjustments),
		CheckNumber:           rec.CheckNumber,
		PaymentDate:           rec.PaymentDate,
		PayerName:             rec.PayerName,
		PatientReference:      rec.PatientReference,
		DecodeWarnings:        string(warnings),
	}
	err := tx.Create(&line).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func persistMatch(tx *gorm.DB, fileId, lineId int, outcome MatchOutcome) error {
	record := models.MatchRecord{
		RemittanceFileId: fileId,
		RemittanceLineId: lineId,
		MatchType:        outcome.MatchType,
		Confidence:       outcome.Confidence,
		Criteria:         outcome.Criteria.String(),
	}
	if outcome.MatchedClaim != nil {
		id := outcome.MatchedClaim.ID
		record.MatchedClaimId = &id
	}
	return tx.Create(&record).Error
}

func persistRejectedFile(ctx context.Context, db *gorm.DB, logger *logrus.Logger,
	fileName string, format models.RemittanceFormat, digest string, cause error) (*models.RemittanceFile, error) {

	file := models.RemittanceFile{
		FileName:      fileName,
		Format:        format,
		CurrentStatus: models.RemittanceFileStatusRejected,
		RejectReason:  cause.Error(),
		CorrelationId: digest,
	}
	err := db.WithContext(ctx).Create(&file).Error
	if err != nil {
		if isDuplicateKeyErr(err) {
			var existing models.RemittanceFile
			loadErr := db.WithContext(ctx).Where("correlation_id = ?", digest).First(&existing).Error
			if loadErr == nil {
				return &existing, nil
			}
		}
		config.LogError(logger, "remittanceWorkflow.go", "persistRejectedFile", "create file", fileName, err)
		return nil, err
	}
	return &file, nil
}

// loadExistingSummary rebuilds the summary for a file already processed under
// the same digest.
func loadExistingSummary(tx *gorm.DB, digest string) (*ProcessSummary, error) {
	var file models.RemittanceFile
	err := tx.Where("correlation_id = ?", digest).First(&file).Error
	if err != nil {
		return nil, err
	}
	return &ProcessSummary{
		RemittanceFileId: file.ID,
		Status:           file.CurrentStatus,
		Records:          file.RecordCount,
		Matched:          file.MatchedCount,
		Unmatched:        file.UnmatchedCount,
		Failed:           []FailedRecord{},
		PostedAmount:     file.PostedAmount,
		Duplicate:        true,
	}, nil
}

// cacheSummary is best effort; redis being down never fails a file run.
func cacheSummary(logger *logrus.Logger, summary *ProcessSummary) {
	if summary == nil {
		return
	}
	key := fmt.Sprintf("remit:summary:%d", summary.RemittanceFileId)
	err := config.SetRedisObject(key, summary, 24*time.Hour)
	if err != nil {
		config.LogWarn(logger, "remittanceWorkflow.go", "cacheSummary", "redis set", key, err.Error())
	}
}
