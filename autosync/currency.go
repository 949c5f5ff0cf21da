package autosync

import (
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/autosync_backend/models"
	"github.com/shopspring/decimal"
)

// CurrencyForPaymentMethod maps a payment method tag to the ledger currency.
func CurrencyForPaymentMethod(method string) models.Currency {
	m := strings.ToLower(method)
	switch {
	case strings.Contains(m, "usdt"):
		return models.CurrencyUSDT
	case strings.Contains(m, "_ars"), strings.HasPrefix(m, "ars_"):
		return models.CurrencyARS
	default:
		return models.CurrencyUSD
	}
}

// paymentMovement builds the sale movement that represents payment in the cash ledger.
// The movement is dated like the payment so it lands in the payment's day.
func paymentMovement(order models.Order, payment models.Payment, now time.Time) models.CashMovement {
	at := payment.CreatedAt
	if at.IsZero() {
		at = now
	}
	rate := decimal.NewFromInt(1)
	if payment.ExchangeRate != nil && !payment.ExchangeRate.IsZero() {
		rate = *payment.ExchangeRate
	}
	orderId := order.ID
	paymentId := payment.ID
	return models.CashMovement{
		ClientId:        order.ClientId,
		Type:            models.MovementTypeSale,
		Subtype:         payment.PaymentMethod,
		Amount:          payment.Amount,
		Currency:        CurrencyForPaymentMethod(payment.PaymentMethod),
		ExchangeRate:    rate,
		AmountUsd:       payment.AmountUsd,
		ReferenceId:     &orderId,
		ReferenceType:   models.ReferenceTypeOrderPayment,
		SourcePaymentId: &paymentId,
		Notes:           fmt.Sprintf("Auto-sync orden %s %s", order.OrderNumber, models.PaymentMarker(payment.ID)),
		CreatedAt:       at.UTC(),
	}
}
