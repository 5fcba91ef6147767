package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// Named holds: one per claim and one per patient account, acquired
// immediately before and released immediately after a single record's
// mutation — never held across a batch.
// NOTE: GET_LOCK is connection-scoped, so these must be called on the same
// *gorm.DB that performs the posting transaction.

func AcquireClaimPostingLock(tx *gorm.DB, claimId int) error {
	return acquireNamedLock(tx, fmt.Sprintf("claim:%d", claimId))
}

func ReleaseClaimPostingLock(tx *gorm.DB, claimId int) {
	releaseNamedLock(tx, fmt.Sprintf("claim:%d", claimId))
}

func AcquirePatientAccountLock(tx *gorm.DB, patientAccountId int) error {
	return acquireNamedLock(tx, fmt.Sprintf("patient_account:%d", patientAccountId))
}

func ReleasePatientAccountLock(tx *gorm.DB, patientAccountId int) {
	releaseNamedLock(tx, fmt.Sprintf("patient_account:%d", patientAccountId))
}

func acquireNamedLock(tx *gorm.DB, lockName string) error {
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock %q", lockName)
	}
	return nil
}

func releaseNamedLock(tx *gorm.DB, lockName string) {
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
