package autosync

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/autosync_backend/config"
	"github.com/mmdatafocus/autosync_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DetectDebtIssues reports orders marked paid, and paid in full, that still carry an open debt.
func (e *Engine) DetectDebtIssues(ctx context.Context, clientId string) ([]DebtIssue, error) {
	debts, err := e.Store.ListCustomerDebts(ctx, clientId)
	if err != nil {
		return nil, err
	}

	seen := map[int]bool{}
	var issues []DebtIssue
	for _, debt := range debts {
		if debt.Status != models.DebtStatusOpen || debt.OrderId == nil || seen[*debt.OrderId] {
			continue
		}
		seen[*debt.OrderId] = true

		order, err := e.Store.GetOrder(ctx, clientId, *debt.OrderId)
		if err != nil {
			config.LogError(e.Logger, moduleName, "DetectDebtIssues", "get order", *debt.OrderId, err)
			continue
		}
		if order == nil {
			e.Logger.WithFields(logrus.Fields{
				"field":     "DetectDebtIssues",
				"client_id": clientId,
				"debt_id":   debt.ID,
				"order_id":  *debt.OrderId,
			}).Warn("debt references a missing order, skipping")
			continue
		}
		issue, err := e.debtIssueForOrder(ctx, *order)
		if err != nil {
			config.LogError(e.Logger, moduleName, "DetectDebtIssues", "inspect order", order.ID, err)
			continue
		}
		if issue != nil {
			issues = append(issues, *issue)
		}
	}
	if len(issues) > 0 {
		e.issuesFound.Add(int64(len(issues)))
		e.Logger.WithFields(withTrace(ctx, logrus.Fields{
			"field":     "DetectDebtIssues",
			"client_id": clientId,
			"issues":    len(issues),
		})).Info("paid orders with open debts")
	}
	return issues, nil
}

func (e *Engine) debtIssueForOrder(ctx context.Context, order models.Order) (*DebtIssue, error) {
	if order.PaymentStatus != models.PaymentStatusPaid {
		return nil, nil
	}
	payments, err := e.Store.ListPaymentsByOrder(ctx, order.ClientId, order.ID)
	if err != nil {
		return nil, err
	}
	totalPaid := sumAmountUsd(payments)
	if !e.PaidInFull(totalPaid, order.TotalUsd) {
		return nil, nil
	}
	return &DebtIssue{
		ClientId:       order.ClientId,
		OrderId:        order.ID,
		OrderNumber:    order.OrderNumber,
		PaymentStatus:  order.PaymentStatus,
		TotalAmountUsd: order.TotalUsd,
		TotalPaidUsd:   totalPaid,
		PaymentMethods: payments,
	}, nil
}

// PaidInFull applies the service-wide tolerance: paid >= total - tolerance.
func (e *Engine) PaidInFull(paid, total decimal.Decimal) bool {
	return paid.GreaterThanOrEqual(total.Sub(e.Config.PaidTolerance))
}

// RepairDebtIssue closes the order's open debts and makes sure every payment of
// the order is in the cash ledger. It returns the debts closed and movements created.
// A debt already closed by another pass is simply not found open again.
func (e *Engine) RepairDebtIssue(ctx context.Context, issue DebtIssue) (int, int, error) {
	debts, err := e.Store.ListCustomerDebts(ctx, issue.ClientId)
	if err != nil {
		return 0, 0, err
	}

	var errs []error
	closed := 0
	paid := models.DebtStatusPaid
	paidAmount := issue.TotalPaidUsd
	remaining := decimal.Zero
	for _, debt := range debts {
		if debt.Status != models.DebtStatusOpen || debt.OrderId == nil || *debt.OrderId != issue.OrderId {
			continue
		}
		err := e.Store.UpdateCustomerDebt(ctx, issue.ClientId, debt.ID, models.CustomerDebtPatch{
			Status:          &paid,
			PaidAmount:      &paidAmount,
			RemainingAmount: &remaining,
		})
		if err != nil {
			config.LogError(e.Logger, moduleName, "RepairDebtIssue", "close debt", debt.ID, err)
			errs = append(errs, fmt.Errorf("debt %d: %w", debt.ID, err))
			continue
		}
		closed++
	}

	added := 0
	order := models.Order{ID: issue.OrderId, ClientId: issue.ClientId, OrderNumber: issue.OrderNumber}
	// Same matching as the sync repairer: an unmarked movement of the order can
	// still stand for a payment.
	movements, err := e.Store.ListCashMovementsByOrder(ctx, issue.ClientId, issue.OrderId)
	if err != nil {
		config.LogError(e.Logger, moduleName, "RepairDebtIssue", "list movements", issue.OrderId, err)
		errs = append(errs, fmt.Errorf("order %d movements: %w", issue.OrderId, err))
	}
	var pending []models.Payment
	if err == nil {
		pending = unrepresentedPayments(issue.PaymentMethods, movements)
	}
	for _, payment := range pending {
		ok, err := e.ensurePaymentMovement(ctx, order, payment)
		if err != nil {
			config.LogError(e.Logger, moduleName, "RepairDebtIssue", "create movement", payment.ID, err)
			errs = append(errs, fmt.Errorf("payment %d: %w", payment.ID, err))
			continue
		}
		if ok {
			added++
		}
	}

	status := models.IssueStatusRepaired
	if len(errs) > 0 {
		status = models.IssueStatusFailed
	}
	e.recordIssue(ctx, models.ReconciliationIssue{
		ClientId:  issue.ClientId,
		IssueType: models.IssueTypeDebt,
		OrderId:   issue.OrderId,
		Status:    status,
		Details: fmt.Sprintf("order %s: total %s, paid %s, %d debts closed, %d movements created",
			issue.OrderNumber, issue.TotalAmountUsd.StringFixed(2), issue.TotalPaidUsd.StringFixed(2), closed, added),
	})
	if closed > 0 {
		e.issuesFixed.Add(1)
		e.Logger.WithFields(logrus.Fields{
			"field":     "RepairDebtIssue",
			"client_id": issue.ClientId,
			"order_id":  issue.OrderId,
			"closed":    closed,
			"created":   added,
		}).Info("stale debts closed")
	}
	return closed, added, errors.Join(errs...)
}

func hasOpenDebtForOrder(debts []models.CustomerDebt, orderId int) bool {
	for _, d := range debts {
		if d.Status == models.DebtStatusOpen && d.OrderId != nil && *d.OrderId == orderId {
			return true
		}
	}
	return false
}

func sumAmountUsd(payments []models.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.AmountUsd)
	}
	return total
}
