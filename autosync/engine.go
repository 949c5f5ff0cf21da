package autosync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mmdatafocus/autosync_backend/config"
	"github.com/mmdatafocus/autosync_backend/models"
	"github.com/mmdatafocus/autosync_backend/store"
	"github.com/mmdatafocus/autosync_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const moduleName = "autosync"

var tracer = otel.Tracer("autosync")

// Engine runs detection, repair and closure for one tenant at a time.
// It holds no per-tenant state; every pass re-reads the store.
type Engine struct {
	Store  store.Gateway
	Logger *logrus.Logger
	Config config.AutoSyncConfig
	Clock  Clock

	// Sleep waits between backfilled dates. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	defaultLocation *time.Location
	issuesFound     atomic.Int64
	issuesFixed     atomic.Int64
}

func NewEngine(gw store.Gateway, logger *logrus.Logger, cfg config.AutoSyncConfig) *Engine {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Engine{
		Store:           gw,
		Logger:          logger,
		Config:          cfg,
		Clock:           systemClock{},
		Sleep:           sleepContext,
		defaultLocation: defaultLocation(cfg),
	}
}

func (e *Engine) IssuesFound() int64 { return e.issuesFound.Load() }
func (e *Engine) IssuesFixed() int64 { return e.issuesFixed.Load() }

// RunTenant is one full pass for a tenant: closure check, sync repair, debt repair.
// Failures of one stage do not stop the next; they are joined into the returned error.
func (e *Engine) RunTenant(ctx context.Context, client models.Client) (TenantResult, error) {
	started := time.Now()
	ctx = utils.SetClientIdInContext(ctx, client.ID)
	ctx, span := tracer.Start(ctx, "autosync.tenant")
	defer span.End()
	span.SetAttributes(attribute.String("client_id", client.ID))

	result := TenantResult{ClientId: client.ID}
	var errs []error
	now := e.Clock.Now()

	sched, err := e.ResolveSchedule(ctx, client.ID)
	if err != nil {
		config.LogError(e.Logger, moduleName, "RunTenant", "resolve schedule", client.ID, err)
		errs = append(errs, fmt.Errorf("resolve schedule: %w", err))
	} else {
		result.ClosureEnabled = sched.AutoCloseEnabled
		created, err := e.RunClosureCheck(ctx, client, sched, now)
		result.ReportsCreated = created
		if err != nil {
			errs = append(errs, fmt.Errorf("closure: %w", err))
		}
	}

	syncIssues, err := e.DetectSyncIssues(ctx, client.ID, sched.Location, now)
	if err != nil {
		config.LogError(e.Logger, moduleName, "RunTenant", "detect sync issues", client.ID, err)
		errs = append(errs, fmt.Errorf("detect sync issues: %w", err))
	}
	result.SyncIssues = len(syncIssues)
	for _, issue := range syncIssues {
		added, err := e.RepairSyncIssue(ctx, issue)
		result.MovementsAdded += added
		if err != nil {
			errs = append(errs, fmt.Errorf("repair order %d: %w", issue.OrderId, err))
			continue
		}
		if added > 0 {
			result.IssuesFixed++
		}
	}

	debtIssues, err := e.DetectDebtIssues(ctx, client.ID)
	if err != nil {
		config.LogError(e.Logger, moduleName, "RunTenant", "detect debt issues", client.ID, err)
		errs = append(errs, fmt.Errorf("detect debt issues: %w", err))
	}
	result.DebtIssues = len(debtIssues)
	for _, issue := range debtIssues {
		closed, added, err := e.RepairDebtIssue(ctx, issue)
		result.DebtsClosed += closed
		result.MovementsAdded += added
		if err != nil {
			errs = append(errs, fmt.Errorf("repair debt of order %d: %w", issue.OrderId, err))
			continue
		}
		if closed > 0 {
			result.IssuesFixed++
		}
	}

	result.DurationMs = time.Since(started).Milliseconds()
	span.SetAttributes(
		attribute.Int("sync_issues", result.SyncIssues),
		attribute.Int("debt_issues", result.DebtIssues),
		attribute.Int("reports_created", result.ReportsCreated),
	)
	joined := errors.Join(errs...)
	if joined != nil {
		span.RecordError(joined)
		span.SetStatus(codes.Error, "tenant pass incomplete")
	}
	return result, joined
}

// RepairOrder reconciles a single order right away. Used by the event path; the
// polling loop stays the safety net for anything missed here.
func (e *Engine) RepairOrder(ctx context.Context, clientId string, orderId int) (TenantResult, error) {
	ctx = utils.SetClientIdInContext(ctx, clientId)
	ctx, span := tracer.Start(ctx, "autosync.repair_order")
	defer span.End()
	span.SetAttributes(attribute.String("client_id", clientId), attribute.Int("order_id", orderId))

	result := TenantResult{ClientId: clientId}
	order, err := e.Store.GetOrder(ctx, clientId, orderId)
	if err != nil {
		return result, err
	}
	if order == nil {
		e.Logger.WithFields(withTrace(ctx, logrus.Fields{
			"field":     "RepairOrder",
			"client_id": clientId,
			"order_id":  orderId,
		})).Warn("order not found, skipping")
		return result, nil
	}

	var errs []error
	issue, err := e.syncIssueForOrder(ctx, *order)
	if err != nil {
		errs = append(errs, err)
	} else if issue != nil {
		result.SyncIssues = 1
		e.issuesFound.Add(1)
		added, err := e.RepairSyncIssue(ctx, *issue)
		result.MovementsAdded += added
		if err != nil {
			errs = append(errs, err)
		} else if added > 0 {
			result.IssuesFixed++
		}
	}

	debts, err := e.Store.ListCustomerDebts(ctx, clientId)
	if err != nil {
		errs = append(errs, err)
		return result, errors.Join(errs...)
	}
	if hasOpenDebtForOrder(debts, order.ID) {
		debtIssue, err := e.debtIssueForOrder(ctx, *order)
		if err != nil {
			errs = append(errs, err)
		} else if debtIssue != nil {
			result.DebtIssues = 1
			e.issuesFound.Add(1)
			closed, added, err := e.RepairDebtIssue(ctx, *debtIssue)
			result.DebtsClosed += closed
			result.MovementsAdded += added
			if err != nil {
				errs = append(errs, err)
			} else if closed > 0 {
				result.IssuesFixed++
			}
		}
	}
	return result, errors.Join(errs...)
}

func (e *Engine) recordIssue(ctx context.Context, issue models.ReconciliationIssue) {
	if err := e.Store.RecordIssue(ctx, &issue); err != nil {
		config.LogError(e.Logger, moduleName, "recordIssue", "record reconciliation issue", issue, err)
	}
}

// withTrace adds the active trace id, the tick's correlation id and the worker id
// so log lines can be joined with spans and with other instances' status.
func withTrace(ctx context.Context, fields logrus.Fields) logrus.Fields {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		fields["correlation_id"] = cid
	}
	if wid, ok := utils.GetWorkerIdFromContext(ctx); ok {
		fields["worker_id"] = wid
	}
	return fields
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
