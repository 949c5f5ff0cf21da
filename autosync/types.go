package autosync

import (
	"errors"
	"time"

	"github.com/mmdatafocus/autosync_backend/models"
	"github.com/shopspring/decimal"
)

var (
	ErrLockNotObtained = errors.New("tenant pass already running elsewhere")
	ErrTenantNotFound  = errors.New("tenant not found")
)

// SyncIssue is an order whose payments outnumber the cash movements referencing it.
type SyncIssue struct {
	ClientId       string `json:"clientId"`
	OrderId        int    `json:"orderId"`
	OrderNumber    string `json:"orderNumber"`
	MissingCount   int    `json:"missingCount"`
	PaymentsCount  int    `json:"paymentsCount"`
	MovementsCount int    `json:"movementsCount"`
}

// DebtIssue is a fully paid order that still has an open debt.
type DebtIssue struct {
	ClientId       string               `json:"clientId"`
	OrderId        int                  `json:"orderId"`
	OrderNumber    string               `json:"orderNumber"`
	PaymentStatus  models.PaymentStatus `json:"paymentStatus"`
	TotalAmountUsd decimal.Decimal      `json:"totalAmountUsd"`
	TotalPaidUsd   decimal.Decimal      `json:"totalPaidUsd"`
	PaymentMethods []models.Payment     `json:"paymentMethods"`
}

// TenantResult summarizes one tenant pass.
type TenantResult struct {
	ClientId       string `json:"clientId"`
	SyncIssues     int    `json:"syncIssues"`
	DebtIssues     int    `json:"debtIssues"`
	IssuesFixed    int    `json:"issuesFixed"`
	MovementsAdded int    `json:"movementsAdded"`
	DebtsClosed    int    `json:"debtsClosed"`
	ReportsCreated int    `json:"reportsCreated"`
	ClosureEnabled bool   `json:"closureEnabled"`
	DurationMs     int64  `json:"durationMs"`
}

// Status is the read-only snapshot served to health and ops endpoints.
type Status struct {
	WorkerId        string     `json:"workerId"`
	IsRunning       bool       `json:"isRunning"`
	LastCheck       *time.Time `json:"lastCheck"`
	NextCheck       *time.Time `json:"nextCheck"`
	IssuesFound     int64      `json:"issuesFound"`
	IssuesFixed     int64      `json:"issuesFixed"`
	IntervalSeconds int        `json:"intervalSeconds"`
	StartedAt       *time.Time `json:"startedAt"`
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
