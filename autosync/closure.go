package autosync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/autosync_backend/config"
	"github.com/mmdatafocus/autosync_backend/models"
	"github.com/mmdatafocus/autosync_backend/store"
	"github.com/mmdatafocus/autosync_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DayTotals is the classification of one day's movements.
type DayTotals struct {
	TotalIncome   decimal.Decimal
	TotalExpenses decimal.Decimal
	NetProfit     decimal.Decimal
	Movements     int
	Sales         int
	Expenses      int
	Other         int
}

// ComputeDayTotals sums movement USD amounts into income and expense buckets.
// Types outside both buckets are counted only.
func ComputeDayTotals(movements []models.CashMovement) DayTotals {
	totals := DayTotals{TotalIncome: decimal.Zero, TotalExpenses: decimal.Zero}
	for _, m := range movements {
		switch {
		case m.Type.IsIncome():
			totals.TotalIncome = totals.TotalIncome.Add(m.AmountUsd)
			totals.Sales++
		case m.Type.IsExpense():
			totals.TotalExpenses = totals.TotalExpenses.Add(m.AmountUsd)
			totals.Expenses++
		default:
			totals.Other++
		}
	}
	totals.Movements = len(movements)
	totals.NetProfit = totals.TotalIncome.Sub(totals.TotalExpenses)
	return totals
}

// RunClosureCheck is the per-tick closure step. It only acts at the tenant's exact
// close minute: it backfills missed days and then closes today.
func (e *Engine) RunClosureCheck(ctx context.Context, client models.Client, sched Schedule, now time.Time) (int, error) {
	if !sched.ClosureDue(now) {
		return 0, nil
	}
	// A failed past day does not hold back today's closure.
	created, backfillErr := e.BackfillTenant(ctx, client, sched, now)
	if backfillErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return created, ctxErr
		}
		config.LogError(e.Logger, moduleName, "RunClosureCheck", "backfill", client.ID, backfillErr)
	}

	_, ok, err := e.CloseDay(ctx, client.ID, sched.Today(now), sched.location())
	if err != nil {
		config.LogError(e.Logger, moduleName, "RunClosureCheck", "close today", client.ID, err)
		return created, errors.Join(backfillErr, err)
	}
	if ok {
		created++
	}
	return created, backfillErr
}

// BackfillTenant closes every day from the tenant's first local day (bounded by
// MaxBackfillDays) up to, not including, today that has no report yet. Oldest first.
// A failing date is logged and left for the next pass.
func (e *Engine) BackfillTenant(ctx context.Context, client models.Client, sched Schedule, now time.Time) (int, error) {
	if !sched.AutoCloseEnabled {
		return 0, nil
	}
	loc := sched.location()
	today := sched.Today(now)
	first := utils.ConvertToDate(client.CreatedAt, loc)
	if floor := today.AddDate(0, 0, -e.Config.MaxBackfillDays); first.Before(floor) {
		first = floor
	}
	if !first.Before(today) {
		return 0, nil
	}

	reports, err := e.Store.ListDailyReportsByTenant(ctx, client.ID)
	if err != nil {
		return 0, err
	}
	closed := make(map[string]bool, len(reports))
	for _, r := range reports {
		closed[r.ReportDate.Format(utils.DateLayout)] = true
	}

	created := 0
	failed := 0
	for date := first; date.Before(today); date = date.AddDate(0, 0, 1) {
		if closed[date.Format(utils.DateLayout)] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return created, err
		}
		_, ok, err := e.CloseDay(ctx, client.ID, date, loc)
		if err != nil {
			failed++
			config.LogError(e.Logger, moduleName, "BackfillTenant", "close day "+date.Format(utils.DateLayout), client.ID, err)
			continue
		}
		if ok {
			created++
		}
		if err := e.Sleep(ctx, e.Config.BackfillDelay()); err != nil {
			return created, err
		}
	}
	if created > 0 || failed > 0 {
		e.Logger.WithFields(withTrace(ctx, logrus.Fields{
			"field":     "BackfillTenant",
			"client_id": client.ID,
			"created":   created,
			"failed":    failed,
		})).Info("daily report backfill")
	}
	if failed > 0 {
		return created, fmt.Errorf("%d days failed to close", failed)
	}
	return created, nil
}

// CloseDay writes the daily report for the tenant-local calendar date and closes
// that day's cash register. An existing report is returned untouched; reports are
// immutable. The bool reports whether this call created the report.
func (e *Engine) CloseDay(ctx context.Context, clientId string, date time.Time, loc *time.Location) (*models.DailyReport, bool, error) {
	if loc == nil {
		loc = e.defaultLocation
	}
	key := utils.DateKey(date)

	existing, err := e.Store.GetDailyReportByDate(ctx, clientId, key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	start, end := utils.DayBounds(date, loc)
	movements, err := e.Store.ListCashMovementsByDateRange(ctx, clientId, start, end)
	if err != nil {
		return nil, false, err
	}
	totals := ComputeDayTotals(movements)

	if err := e.closeCashRegister(ctx, clientId, key, totals); err != nil {
		return nil, false, fmt.Errorf("cash register: %w", err)
	}

	summary := models.DailyReportSummary{
		Movements:   totals.Movements,
		Sales:       totals.Sales,
		Expenses:    totals.Expenses,
		Other:       totals.Other,
		Timezone:    loc.String(),
		GeneratedBy: moduleName,
	}
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		summary.CorrelationId = cid
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, false, err
	}

	report := &models.DailyReport{
		ClientId:        clientId,
		ReportDate:      key,
		TotalIncome:     totals.TotalIncome,
		TotalExpenses:   totals.TotalExpenses,
		NetProfit:       totals.NetProfit,
		TotalMovements:  totals.Movements,
		IsAutoGenerated: true,
		Summary:         summaryJSON,
	}
	if err := e.Store.CreateDailyReport(ctx, report); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Closed concurrently by another pass.
			existing, getErr := e.Store.GetDailyReportByDate(ctx, clientId, key)
			return existing, false, getErr
		}
		return nil, false, err
	}
	return report, true, nil
}

func (e *Engine) closeCashRegister(ctx context.Context, clientId string, key time.Time, totals DayTotals) error {
	register, err := e.Store.GetCashRegisterByDate(ctx, clientId, key)
	if err != nil {
		return err
	}
	if register == nil {
		register = &models.CashRegister{
			ClientId:      clientId,
			Date:          key,
			OpeningUsd:    decimal.Zero,
			OpeningArs:    decimal.Zero,
			OpeningUsdt:   decimal.Zero,
			CurrentUsd:    totals.NetProfit,
			CurrentArs:    decimal.Zero,
			CurrentUsdt:   decimal.Zero,
			DailySales:    totals.TotalIncome,
			TotalExpenses: totals.TotalExpenses,
			IsOpen:        false,
		}
		err := e.Store.CreateCashRegister(ctx, register)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return err
		}
		if register, err = e.Store.GetCashRegisterByDate(ctx, clientId, key); err != nil {
			return err
		}
		if register == nil {
			return errors.New("cash register missing after duplicate insert")
		}
	}
	// Running balances of an existing register are left as tracked.
	closed := false
	return e.Store.UpdateCashRegister(ctx, clientId, register.ID, models.CashRegisterPatch{
		DailySales:    &totals.TotalIncome,
		TotalExpenses: &totals.TotalExpenses,
		IsOpen:        &closed,
	})
}
