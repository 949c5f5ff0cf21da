package models

import (
	"errors"
	"strings"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pendiente"
	PaymentStatusPartial PaymentStatus = "parcial"
	PaymentStatusPaid    PaymentStatus = "pagado"
)

func ParsePaymentStatus(str string) (PaymentStatus, error) {
	paymentStatus := map[string]PaymentStatus{
		"pendiente": PaymentStatusPending,
		"parcial":   PaymentStatusPartial,
		"pagado":    PaymentStatusPaid,
	}
	s, ok := paymentStatus[strings.ToLower(strings.TrimSpace(str))]
	if !ok {
		return "", errors.New("invalid payment status")
	}
	return s, nil
}

type MovementType string

const (
	MovementTypeSale             MovementType = "venta"
	MovementTypeIncome           MovementType = "ingreso"
	MovementTypeOutflow          MovementType = "egreso"
	MovementTypeExpense          MovementType = "gasto"
	MovementTypeDebtPayment      MovementType = "pago_deuda"
	MovementTypeVendorCommission MovementType = "comision_vendedor"
	MovementTypeWithdrawal       MovementType = "retiro"
)

// IsIncome reports whether the movement adds to a day's income bucket.
func (t MovementType) IsIncome() bool {
	switch t {
	case MovementTypeSale, MovementTypeIncome, MovementTypeDebtPayment:
		return true
	}
	return false
}

// IsExpense reports whether the movement adds to a day's expense bucket.
// Withdrawals are neither income nor expense.
func (t MovementType) IsExpense() bool {
	switch t {
	case MovementTypeExpense, MovementTypeOutflow, MovementTypeVendorCommission:
		return true
	}
	return false
}

type Currency string

const (
	CurrencyUSD  Currency = "USD"
	CurrencyARS  Currency = "ARS"
	CurrencyUSDT Currency = "USDT"
)

type DebtStatus string

const (
	DebtStatusOpen    DebtStatus = "vigente"
	DebtStatusPaid    DebtStatus = "pagado"
	DebtStatusOverdue DebtStatus = "vencida"
)

type ReferenceType string

const (
	ReferenceTypeOrder        ReferenceType = "order"
	ReferenceTypeOrderPayment ReferenceType = "order_payment"
)

type IssueType string

const (
	IssueTypeSync IssueType = "SYNC_MISSING_MOVEMENT"
	IssueTypeDebt IssueType = "DEBT_STALE_OPEN"
)

type IssueStatus string

const (
	IssueStatusDetected IssueStatus = "DETECTED"
	IssueStatusRepaired IssueStatus = "REPAIRED"
	IssueStatusFailed   IssueStatus = "FAILED"
)
