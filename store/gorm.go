package store

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/autosync_backend/models"
	"github.com/mmdatafocus/autosync_backend/utils"
	"gorm.io/gorm"
)

type GormGateway struct {
	db *gorm.DB
}

func NewGormGateway(db *gorm.DB) *GormGateway {
	return &GormGateway{db: db}
}

// tenant scopes the session to clientId; the tenant guard plugin keys off the context value.
func (g *GormGateway) tenant(ctx context.Context, clientId string) *gorm.DB {
	return g.db.WithContext(utils.SetClientIdInContext(ctx, clientId))
}

func (g *GormGateway) ListTenants(ctx context.Context) ([]models.Client, error) {
	var clients []models.Client
	err := g.db.WithContext(utils.SetSkipTenantScopeInContext(ctx, true)).
		Order("created_at, id").
		Find(&clients).Error
	return clients, err
}

func (g *GormGateway) GetTenant(ctx context.Context, clientId string) (*models.Client, error) {
	var client models.Client
	err := g.db.WithContext(utils.SetSkipTenantScopeInContext(ctx, true)).
		Where("id = ?", clientId).
		First(&client).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &client, nil
}

func (g *GormGateway) GetScheduleConfig(ctx context.Context, clientId string) (*models.ScheduleConfig, error) {
	var cfg models.ScheduleConfig
	if err := g.tenant(ctx, clientId).Where("client_id = ?", clientId).First(&cfg).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

func (g *GormGateway) GetOrder(ctx context.Context, clientId string, orderId int) (*models.Order, error) {
	var order models.Order
	err := g.tenant(ctx, clientId).
		Where("client_id = ? AND id = ?", clientId, orderId).
		First(&order).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (g *GormGateway) ListOrdersByDate(ctx context.Context, clientId string, start, end time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := g.tenant(ctx, clientId).
		Where("client_id = ? AND created_at >= ? AND created_at < ?", clientId, start.UTC(), end.UTC()).
		Order("created_at, id").
		Find(&orders).Error
	return orders, err
}

func (g *GormGateway) ListPaymentsByOrder(ctx context.Context, clientId string, orderId int) ([]models.Payment, error) {
	var payments []models.Payment
	err := g.tenant(ctx, clientId).
		Where("client_id = ? AND order_id = ?", clientId, orderId).
		Order("id").
		Find(&payments).Error
	return payments, err
}

func (g *GormGateway) ListCashMovementsByOrder(ctx context.Context, clientId string, orderId int) ([]models.CashMovement, error) {
	var movements []models.CashMovement
	err := g.tenant(ctx, clientId).
		Where("client_id = ? AND reference_id = ? AND reference_type IN ?", clientId, orderId,
			[]models.ReferenceType{models.ReferenceTypeOrder, models.ReferenceTypeOrderPayment}).
		Order("id").
		Find(&movements).Error
	return movements, err
}

func (g *GormGateway) ListCashMovementsByTenant(ctx context.Context, clientId string) ([]models.CashMovement, error) {
	var movements []models.CashMovement
	err := g.tenant(ctx, clientId).
		Where("client_id = ?", clientId).
		Order("id").
		Find(&movements).Error
	return movements, err
}

func (g *GormGateway) ListCashMovementsByDateRange(ctx context.Context, clientId string, start, end time.Time) ([]models.CashMovement, error) {
	var movements []models.CashMovement
	err := g.tenant(ctx, clientId).
		Where("client_id = ? AND created_at >= ? AND created_at < ?", clientId, start.UTC(), end.UTC()).
		Order("created_at, id").
		Find(&movements).Error
	return movements, err
}

func (g *GormGateway) ListCashMovementsByPayment(ctx context.Context, clientId string, paymentId int) ([]models.CashMovement, error) {
	var candidates []models.CashMovement
	marker := models.PaymentMarker(paymentId)
	err := g.tenant(ctx, clientId).
		Where("client_id = ? AND (source_payment_id = ? OR notes LIKE ?)", clientId, paymentId, "%"+marker+"%").
		Order("id").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	// LIKE also matches longer ids (payment_12 for payment_1) and '_' is a wildcard.
	movements := candidates[:0]
	for _, m := range candidates {
		if id, ok := m.RepresentedPaymentId(); ok && id == paymentId {
			movements = append(movements, m)
		}
	}
	return movements, nil
}

func (g *GormGateway) CreateCashMovement(ctx context.Context, movement *models.CashMovement) error {
	if movement == nil {
		return errors.New("cash movement is nil")
	}
	if movement.ClientId == "" {
		return errors.New("cash movement without client id")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	} else {
		movement.CreatedAt = movement.CreatedAt.UTC()
	}
	return translateCreateErr(g.tenant(ctx, movement.ClientId).Create(movement).Error)
}

func (g *GormGateway) ListCustomerDebts(ctx context.Context, clientId string) ([]models.CustomerDebt, error) {
	var debts []models.CustomerDebt
	err := g.tenant(ctx, clientId).
		Where("client_id = ?", clientId).
		Order("id").
		Find(&debts).Error
	return debts, err
}

func (g *GormGateway) UpdateCustomerDebt(ctx context.Context, clientId string, debtId int, patch models.CustomerDebtPatch) error {
	cols := patch.Columns()
	if len(cols) == 0 {
		return nil
	}
	return g.tenant(ctx, clientId).
		Model(&models.CustomerDebt{}).
		Where("client_id = ? AND id = ?", clientId, debtId).
		Updates(cols).Error
}

func (g *GormGateway) GetCashRegisterByDate(ctx context.Context, clientId string, date time.Time) (*models.CashRegister, error) {
	var register models.CashRegister
	start := utils.DateKey(date)
	err := g.tenant(ctx, clientId).
		Where("client_id = ? AND date >= ? AND date < ?", clientId, start, start.AddDate(0, 0, 1)).
		First(&register).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &register, nil
}

func (g *GormGateway) CreateCashRegister(ctx context.Context, register *models.CashRegister) error {
	if register == nil {
		return errors.New("cash register is nil")
	}
	register.Date = utils.DateKey(register.Date)
	return translateCreateErr(g.tenant(ctx, register.ClientId).Create(register).Error)
}

func (g *GormGateway) UpdateCashRegister(ctx context.Context, clientId string, registerId int, patch models.CashRegisterPatch) error {
	cols := patch.Columns()
	if len(cols) == 0 {
		return nil
	}
	return g.tenant(ctx, clientId).
		Model(&models.CashRegister{}).
		Where("client_id = ? AND id = ?", clientId, registerId).
		Updates(cols).Error
}

func (g *GormGateway) ListDailyReportsByTenant(ctx context.Context, clientId string) ([]models.DailyReport, error) {
	var reports []models.DailyReport
	err := g.tenant(ctx, clientId).
		Where("client_id = ?", clientId).
		Order("report_date").
		Find(&reports).Error
	return reports, err
}

func (g *GormGateway) GetDailyReportByDate(ctx context.Context, clientId string, date time.Time) (*models.DailyReport, error) {
	var report models.DailyReport
	start := utils.DateKey(date)
	err := g.tenant(ctx, clientId).
		Where("client_id = ? AND report_date >= ? AND report_date < ?", clientId, start, start.AddDate(0, 0, 1)).
		First(&report).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &report, nil
}

func (g *GormGateway) CreateDailyReport(ctx context.Context, report *models.DailyReport) error {
	if report == nil {
		return errors.New("daily report is nil")
	}
	report.ReportDate = utils.DateKey(report.ReportDate)
	return translateCreateErr(g.tenant(ctx, report.ClientId).Create(report).Error)
}

func (g *GormGateway) RecordIssue(ctx context.Context, issue *models.ReconciliationIssue) error {
	if issue == nil {
		return errors.New("reconciliation issue is nil")
	}
	if issue.CorrelationId == "" {
		if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
			issue.CorrelationId = cid
		}
	}
	return g.tenant(ctx, issue.ClientId).Create(issue).Error
}

// BeginIdempotency inserts STARTED. If SUCCEEDED exists, returns (true, nil) meaning "skip safely".
func (g *GormGateway) BeginIdempotency(ctx context.Context, clientId, handlerName, messageId string) (skip bool, err error) {
	tx := g.tenant(ctx, clientId)
	key := models.IdempotencyKey{
		ClientId:    clientId,
		HandlerName: handlerName,
		MessageId:   messageId,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&key).Error; err == nil {
		return false, nil
	} else if !IsDuplicateKeyErr(err) {
		return false, err
	}

	var existing models.IdempotencyKey
	if err := tx.Where("client_id = ? AND handler_name = ? AND message_id = ?", clientId, handlerName, messageId).
		First(&existing).Error; err != nil {
		return false, err
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return true, nil
	case models.IdempotencyStatusStarted:
		// Another delivery is being handled; a stale one is taken over.
		if time.Since(existing.UpdatedAt) < 5*time.Minute {
			return false, ErrIdempotencyInProgress
		}
	}
	return false, tx.Model(&models.IdempotencyKey{}).
		Where("client_id = ? AND id = ?", clientId, existing.ID).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
}

func (g *GormGateway) MarkIdempotencySucceeded(ctx context.Context, clientId, handlerName, messageId string) error {
	return g.tenant(ctx, clientId).Model(&models.IdempotencyKey{}).
		Where("client_id = ? AND handler_name = ? AND message_id = ?", clientId, handlerName, messageId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusSucceeded, "last_error": nil}).Error
}

func (g *GormGateway) MarkIdempotencyFailed(ctx context.Context, clientId, handlerName, messageId string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return g.tenant(ctx, clientId).Model(&models.IdempotencyKey{}).
		Where("client_id = ? AND handler_name = ? AND message_id = ?", clientId, handlerName, messageId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusFailed, "last_error": &msg}).Error
}

var (
	_ Gateway          = (*GormGateway)(nil)
	_ IdempotencyStore = (*GormGateway)(nil)
)
