package store

import (
	"context"
	"time"

	"github.com/mmdatafocus/autosync_backend/models"
)

// Gateway is the persistence boundary of the reconciliation engine.
//
// Every tenant-owned lookup takes the client id, so a call can never reach
// another tenant's rows. Not-found is (nil, nil). Time ranges are [start, end).
// Calendar dates (cash register, daily report) are passed as utils.DateKey values.
type Gateway interface {
	ListTenants(ctx context.Context) ([]models.Client, error)
	GetTenant(ctx context.Context, clientId string) (*models.Client, error)
	GetScheduleConfig(ctx context.Context, clientId string) (*models.ScheduleConfig, error)

	GetOrder(ctx context.Context, clientId string, orderId int) (*models.Order, error)
	ListOrdersByDate(ctx context.Context, clientId string, start, end time.Time) ([]models.Order, error)
	ListPaymentsByOrder(ctx context.Context, clientId string, orderId int) ([]models.Payment, error)

	ListCashMovementsByOrder(ctx context.Context, clientId string, orderId int) ([]models.CashMovement, error)
	ListCashMovementsByTenant(ctx context.Context, clientId string) ([]models.CashMovement, error)
	ListCashMovementsByDateRange(ctx context.Context, clientId string, start, end time.Time) ([]models.CashMovement, error)
	// ListCashMovementsByPayment returns the movements representing paymentId,
	// by source_payment_id or by the payment_<id> notes marker.
	ListCashMovementsByPayment(ctx context.Context, clientId string, paymentId int) ([]models.CashMovement, error)
	CreateCashMovement(ctx context.Context, movement *models.CashMovement) error

	ListCustomerDebts(ctx context.Context, clientId string) ([]models.CustomerDebt, error)
	UpdateCustomerDebt(ctx context.Context, clientId string, debtId int, patch models.CustomerDebtPatch) error

	GetCashRegisterByDate(ctx context.Context, clientId string, date time.Time) (*models.CashRegister, error)
	CreateCashRegister(ctx context.Context, register *models.CashRegister) error
	UpdateCashRegister(ctx context.Context, clientId string, registerId int, patch models.CashRegisterPatch) error

	ListDailyReportsByTenant(ctx context.Context, clientId string) ([]models.DailyReport, error)
	GetDailyReportByDate(ctx context.Context, clientId string, date time.Time) (*models.DailyReport, error)
	CreateDailyReport(ctx context.Context, report *models.DailyReport) error

	RecordIssue(ctx context.Context, issue *models.ReconciliationIssue) error
}

// IdempotencyStore gives event handlers durable at-most-once processing per message.
type IdempotencyStore interface {
	BeginIdempotency(ctx context.Context, clientId, handlerName, messageId string) (skip bool, err error)
	MarkIdempotencySucceeded(ctx context.Context, clientId, handlerName, messageId string) error
	MarkIdempotencyFailed(ctx context.Context, clientId, handlerName, messageId string, cause error) error
}
