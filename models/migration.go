package models

import (
	"log"

	"bitbucket.org/mmdatafocus/remit_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Claim{},
		&Payment{}, &PaymentReversal{},
		&RemittanceFile{}, &RemittanceLine{}, &MatchRecord{},
		&History{},
		&PaymentEventRecord{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
