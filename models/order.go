package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is written by order entry. Reconciliation only reads it.
type Order struct {
	ID            int             `gorm:"primary_key" json:"id"`
	ClientId      string          `gorm:"size:64;not null;index:idx_order_client_created,priority:1" json:"client_id"`
	OrderNumber   string          `gorm:"size:64" json:"order_number"`
	CustomerId    *int            `gorm:"index" json:"customer_id"`
	VendorId      *int            `gorm:"index" json:"vendor_id"`
	TotalUsd      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_usd"`
	PaymentStatus PaymentStatus   `gorm:"size:20;not null;default:pendiente" json:"payment_status"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index:idx_order_client_created,priority:2" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Payment is immutable once created. Amount is in the currency tagged by PaymentMethod.
type Payment struct {
	ID            int              `gorm:"primary_key" json:"id"`
	ClientId      string           `gorm:"size:64;not null;index" json:"client_id"`
	OrderId       int              `gorm:"not null;index" json:"order_id"`
	PaymentMethod string           `gorm:"size:64;not null" json:"payment_method"`
	Amount        decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"amount"`
	ExchangeRate  *decimal.Decimal `gorm:"type:decimal(20,4)" json:"exchange_rate"`
	AmountUsd     decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"amount_usd"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
}
