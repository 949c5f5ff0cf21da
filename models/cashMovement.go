package models

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// CashMovement is a cash register ledger entry. Rows are never deleted.
//
// SourcePaymentId is set on movements created for a payment; the unique
// index guarantees a payment is represented at most once per tenant.
// Older rows only carry the payment_<id> marker inside Notes.
type CashMovement struct {
	ID              int             `gorm:"primary_key" json:"id"`
	ClientId        string          `gorm:"size:64;not null;index:idx_cm_client_created,priority:1;uniqueIndex:uniq_cm_source_payment,priority:1" json:"client_id"`
	CashRegisterId  *int            `gorm:"index" json:"cash_register_id"`
	Type            MovementType    `gorm:"size:32;not null" json:"type"`
	Subtype         string          `gorm:"size:64" json:"subtype"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Currency        Currency        `gorm:"size:8;not null;default:USD" json:"currency"`
	ExchangeRate    decimal.Decimal `gorm:"type:decimal(20,4);default:1" json:"exchange_rate"`
	AmountUsd       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_usd"`
	ReferenceId     *int            `gorm:"index" json:"reference_id"`
	ReferenceType   ReferenceType   `gorm:"size:32" json:"reference_type"`
	SourcePaymentId *int            `gorm:"uniqueIndex:uniq_cm_source_payment,priority:2" json:"source_payment_id"`
	Notes           string          `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time       `gorm:"index:idx_cm_client_created,priority:2" json:"created_at"`
}

var paymentMarkerRegexp = regexp.MustCompile(`\bpayment_(\d+)\b`)

// PaymentMarker is the textual payment reference written into movement notes.
func PaymentMarker(paymentId int) string {
	return fmt.Sprintf("payment_%d", paymentId)
}

// RepresentedPaymentId returns the payment this movement was created for,
// reading the structured column first and the notes marker second.
func (m CashMovement) RepresentedPaymentId() (int, bool) {
	if m.SourcePaymentId != nil {
		return *m.SourcePaymentId, true
	}
	match := paymentMarkerRegexp.FindStringSubmatch(m.Notes)
	if len(match) != 2 {
		return 0, false
	}
	id, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return id, true
}
