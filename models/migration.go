package models

import (
	"log"

	"github.com/mmdatafocus/autosync_backend/config"
	"gorm.io/gorm"
)

func MigrateTable() {
	if err := AutoMigrate(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Client{}, &ScheduleConfig{},
		&Order{}, &Payment{},
		&CashMovement{}, &CustomerDebt{},
		&CashRegister{}, &DailyReport{},
		&ReconciliationIssue{}, &IdempotencyKey{},
	)
}
