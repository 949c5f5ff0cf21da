package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DailyReport is the immutable closure of one tenant-local calendar day.
//
// Grain: (client_id, report_date). Rows are never updated once written.
type DailyReport struct {
	ID              int             `gorm:"primary_key" json:"id"`
	ClientId        string          `gorm:"size:64;not null;uniqueIndex:uniq_dr_client_date,priority:1" json:"client_id"`
	ReportDate      time.Time       `gorm:"not null;uniqueIndex:uniq_dr_client_date,priority:2" json:"report_date"`
	TotalIncome     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_income"`
	TotalExpenses   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_expenses"`
	NetProfit       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"net_profit"`
	TotalMovements  int             `gorm:"not null;default:0" json:"total_movements"`
	IsAutoGenerated bool            `gorm:"not null;default:false" json:"is_auto_generated"`
	Summary         datatypes.JSON  `json:"summary"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// DailyReportSummary is stored in DailyReport.Summary for audit.
type DailyReportSummary struct {
	Movements     int    `json:"movements"`
	Sales         int    `json:"sales"`
	Expenses      int    `json:"expenses"`
	Other         int    `json:"other"`
	Timezone      string `json:"timezone"`
	GeneratedBy   string `json:"generated_by"`
	CorrelationId string `json:"correlation_id,omitempty"`
}
