package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CashRegister is the per-tenant, per-day register snapshot.
//
// Grain: (client_id, date). Date holds the tenant-local calendar date at 00:00 UTC.
type CashRegister struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ClientId      string          `gorm:"size:64;not null;uniqueIndex:uniq_cr_client_date,priority:1" json:"client_id"`
	Date          time.Time       `gorm:"not null;uniqueIndex:uniq_cr_client_date,priority:2" json:"date"`
	OpeningUsd    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"opening_usd"`
	OpeningArs    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"opening_ars"`
	OpeningUsdt   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"opening_usdt"`
	CurrentUsd    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_usd"`
	CurrentArs    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_ars"`
	CurrentUsdt   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_usdt"`
	DailySales    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"daily_sales"`
	TotalExpenses decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_expenses"`
	IsOpen        bool            `gorm:"not null;default:false" json:"is_open"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// CashRegisterPatch lists the columns a closure may overwrite on an existing register.
type CashRegisterPatch struct {
	DailySales    *decimal.Decimal
	TotalExpenses *decimal.Decimal
	IsOpen        *bool
}

func (p CashRegisterPatch) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.DailySales != nil {
		cols["daily_sales"] = *p.DailySales
	}
	if p.TotalExpenses != nil {
		cols["total_expenses"] = *p.TotalExpenses
	}
	if p.IsOpen != nil {
		cols["is_open"] = *p.IsOpen
	}
	return cols
}
