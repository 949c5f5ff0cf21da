package autosync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/autosync_backend/config"
	"github.com/mmdatafocus/autosync_backend/models"
	"github.com/mmdatafocus/autosync_backend/store"
	"github.com/mmdatafocus/autosync_backend/utils"
	"github.com/sirupsen/logrus"
)

// DetectSyncIssues reports the tenant's orders of the sync window (today, widened by
// SyncLookbackDays) that have fewer cash movements than payments.
func (e *Engine) DetectSyncIssues(ctx context.Context, clientId string, loc *time.Location, now time.Time) ([]SyncIssue, error) {
	today := utils.ConvertToDate(now, loc)
	start, _ := utils.DayBounds(today.AddDate(0, 0, -e.Config.SyncLookbackDays), loc)
	_, end := utils.DayBounds(today, loc)

	orders, err := e.Store.ListOrdersByDate(ctx, clientId, start, end)
	if err != nil {
		return nil, err
	}

	var issues []SyncIssue
	for _, order := range orders {
		issue, err := e.syncIssueForOrder(ctx, order)
		if err != nil {
			config.LogError(e.Logger, moduleName, "DetectSyncIssues", "inspect order", order.ID, err)
			continue
		}
		if issue != nil {
			issues = append(issues, *issue)
		}
	}
	if len(issues) > 0 {
		e.issuesFound.Add(int64(len(issues)))
		e.Logger.WithFields(withTrace(ctx, logrus.Fields{
			"field":     "DetectSyncIssues",
			"client_id": clientId,
			"issues":    len(issues),
		})).Info("orders with missing cash movements")
	}
	return issues, nil
}

func (e *Engine) syncIssueForOrder(ctx context.Context, order models.Order) (*SyncIssue, error) {
	payments, err := e.Store.ListPaymentsByOrder(ctx, order.ClientId, order.ID)
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, nil
	}
	movements, err := e.Store.ListCashMovementsByOrder(ctx, order.ClientId, order.ID)
	if err != nil {
		return nil, err
	}
	if len(movements) >= len(payments) {
		return nil, nil
	}
	return &SyncIssue{
		ClientId:       order.ClientId,
		OrderId:        order.ID,
		OrderNumber:    order.OrderNumber,
		MissingCount:   len(payments) - len(movements),
		PaymentsCount:  len(payments),
		MovementsCount: len(movements),
	}, nil
}

// RepairSyncIssue creates one movement for every payment of the order that no
// existing movement represents. It returns the number of movements created.
// Running it again on the same order creates nothing.
func (e *Engine) RepairSyncIssue(ctx context.Context, issue SyncIssue) (int, error) {
	order, err := e.Store.GetOrder(ctx, issue.ClientId, issue.OrderId)
	if err != nil {
		return 0, err
	}
	if order == nil {
		e.Logger.WithFields(logrus.Fields{
			"field":     "RepairSyncIssue",
			"client_id": issue.ClientId,
			"order_id":  issue.OrderId,
		}).Warn("order vanished before repair, skipping")
		return 0, nil
	}
	payments, err := e.Store.ListPaymentsByOrder(ctx, order.ClientId, order.ID)
	if err != nil {
		return 0, err
	}
	movements, err := e.Store.ListCashMovementsByOrder(ctx, order.ClientId, order.ID)
	if err != nil {
		return 0, err
	}

	created := 0
	var errs []error
	for _, payment := range unrepresentedPayments(payments, movements) {
		ok, err := e.ensurePaymentMovement(ctx, *order, payment)
		if err != nil {
			// One bad payment must not block the others.
			config.LogError(e.Logger, moduleName, "RepairSyncIssue", "create movement", payment.ID, err)
			errs = append(errs, fmt.Errorf("payment %d: %w", payment.ID, err))
			continue
		}
		if ok {
			created++
		}
	}

	status := models.IssueStatusRepaired
	if len(errs) > 0 {
		status = models.IssueStatusFailed
	}
	e.recordIssue(ctx, models.ReconciliationIssue{
		ClientId:  issue.ClientId,
		IssueType: models.IssueTypeSync,
		OrderId:   issue.OrderId,
		Status:    status,
		Details: fmt.Sprintf("order %s: %d payments, %d movements, %d created",
			issue.OrderNumber, issue.PaymentsCount, issue.MovementsCount, created),
	})
	if created > 0 {
		e.issuesFixed.Add(1)
		e.Logger.WithFields(logrus.Fields{
			"field":     "RepairSyncIssue",
			"client_id": issue.ClientId,
			"order_id":  issue.OrderId,
			"created":   created,
		}).Info("cash movements backfilled")
	}
	return created, errors.Join(errs...)
}

// unrepresentedPayments pairs payments with movements, each movement standing for
// at most one payment. A movement that names a payment (source column or notes
// marker) is claimed by that payment; the rest are matched on subtype and amount.
func unrepresentedPayments(payments []models.Payment, movements []models.CashMovement) []models.Payment {
	paymentIds := make(map[int]bool, len(payments))
	for _, p := range payments {
		paymentIds[p.ID] = true
	}

	claimed := make([]bool, len(movements))
	represented := make(map[int]bool, len(payments))
	for i, m := range movements {
		id, ok := m.RepresentedPaymentId()
		if !ok {
			continue
		}
		// Names a payment outside this order: never reusable for another payment.
		claimed[i] = true
		if paymentIds[id] {
			represented[id] = true
		}
	}

	var missing []models.Payment
	for _, p := range payments {
		if represented[p.ID] {
			continue
		}
		matched := false
		for i, m := range movements {
			if claimed[i] {
				continue
			}
			if m.Subtype == p.PaymentMethod && m.Amount.Equal(p.Amount) {
				claimed[i] = true
				matched = true
				break
			}
		}
		if !matched {
			missing = append(missing, p)
		}
	}
	return missing
}

// ensurePaymentMovement creates the movement for payment unless one already
// represents it anywhere in the tenant's ledger. Reports whether it created one.
func (e *Engine) ensurePaymentMovement(ctx context.Context, order models.Order, payment models.Payment) (bool, error) {
	if payment.AmountUsd.IsNegative() || payment.Amount.IsNegative() {
		return false, fmt.Errorf("malformed payment %d: negative amount", payment.ID)
	}
	existing, err := e.Store.ListCashMovementsByPayment(ctx, order.ClientId, payment.ID)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	movement := paymentMovement(order, payment, e.Clock.Now())
	if err := e.Store.CreateCashMovement(ctx, &movement); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
