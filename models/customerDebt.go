package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerDebt tracks the open balance of an order left unpaid or partially paid.
type CustomerDebt struct {
	ID              int             `gorm:"primary_key" json:"id"`
	ClientId        string          `gorm:"size:64;not null;index:idx_debt_client_status,priority:1" json:"client_id"`
	CustomerId      *int            `gorm:"index" json:"customer_id"`
	OrderId         *int            `gorm:"index" json:"order_id"`
	DebtAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"debt_amount"`
	PaidAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"paid_amount"`
	RemainingAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"remaining_amount"`
	Status          DebtStatus      `gorm:"size:20;not null;default:vigente;index:idx_debt_client_status,priority:2" json:"status"`
	DueDate         *time.Time      `json:"due_date"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// CustomerDebtPatch lists the columns the reconciliation engine may change on a debt.
type CustomerDebtPatch struct {
	Status          *DebtStatus
	PaidAmount      *decimal.Decimal
	RemainingAmount *decimal.Decimal
}

func (p CustomerDebtPatch) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	if p.PaidAmount != nil {
		cols["paid_amount"] = *p.PaidAmount
	}
	if p.RemainingAmount != nil {
		cols["remaining_amount"] = *p.RemainingAmount
	}
	return cols
}
