package autosync

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/autosync_backend/config"
	"github.com/mmdatafocus/autosync_backend/models"
	"github.com/mmdatafocus/autosync_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Monitor is the reconciliation scheduler. One instance is owned by the host
// process; Start and Stop are its only lifecycle controls.
type Monitor struct {
	engine    *Engine
	logger    *logrus.Logger
	locker    TenantLocker
	publisher StatusPublisher
	workerId  string
	interval  time.Duration

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
	lastCheck time.Time
	nextCheck time.Time
}

type MonitorOption func(*Monitor)

func WithLocker(l TenantLocker) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.locker = l
		}
	}
}

func WithStatusPublisher(p StatusPublisher) MonitorOption {
	return func(m *Monitor) {
		if p != nil {
			m.publisher = p
		}
	}
}

func NewMonitor(engine *Engine, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		engine:    engine,
		logger:    engine.Logger,
		locker:    noopLocker{},
		publisher: noopPublisher{},
		workerId:  uuid.NewString(),
		interval:  engine.Config.Interval(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) WorkerId() string { return m.workerId }

// Start runs the startup backfill for every tenant, then ticks every interval.
// Starting a running monitor only logs.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.WithFields(logrus.Fields{"field": "Start", "worker_id": m.workerId}).Info("auto-sync monitor already running")
		return
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	m.running = true
	m.cancel = cancel
	m.done = done
	m.startedAt = m.engine.Clock.Now()
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"field":            "Start",
		"worker_id":        m.workerId,
		"interval_seconds": int(m.interval.Seconds()),
	}).Info("auto-sync monitor starting")

	m.startupBackfill(loopCtx)
	go m.loop(loopCtx, done)
}

// Stop cancels the timer and waits for the tenant pass in flight, if any, to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.nextCheck = time.Time{}
	m.mu.Unlock()

	cancel()
	<-done
	m.logger.WithFields(logrus.Fields{"field": "Stop", "worker_id": m.workerId}).Info("auto-sync monitor stopped")
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		WorkerId:        m.workerId,
		IsRunning:       m.running,
		LastCheck:       timePtr(m.lastCheck),
		NextCheck:       timePtr(m.nextCheck),
		IssuesFound:     m.engine.IssuesFound(),
		IssuesFixed:     m.engine.IssuesFixed(),
		IntervalSeconds: int(m.interval / time.Second),
		StartedAt:       timePtr(m.startedAt),
	}
}

// ClusterStatus lists the snapshots published by every live worker.
func (m *Monitor) ClusterStatus(ctx context.Context) ([]Status, error) {
	return m.publisher.List(ctx)
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.setNextCheck(m.engine.Clock.Now().Add(m.interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce performs one tick: a pass over every tenant. Cancelling ctx stops the
// tick between tenants; the pass in flight runs to completion.
func (m *Monitor) RunOnce(ctx context.Context) {
	started := m.engine.Clock.Now()
	wallStart := time.Now()
	correlationId := uuid.NewString()
	tickCtx := utils.SetCorrelationIdInContext(context.WithoutCancel(ctx), correlationId)
	tickCtx = utils.SetWorkerIdInContext(tickCtx, m.workerId)
	tickCtx, span := tracer.Start(tickCtx, "autosync.tick")
	defer span.End()

	clients, err := m.engine.Store.ListTenants(tickCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list tenants")
		config.LogError(m.logger, moduleName, "RunOnce", "list tenants", correlationId, err)
		m.finishTick(tickCtx, started, wallStart)
		return
	}
	span.SetAttributes(attribute.Int("tenants", len(clients)))

	failed := 0
	for _, client := range clients {
		if ctx.Err() != nil {
			break
		}
		if _, err := m.runTenant(tickCtx, client); err != nil {
			failed++
		}
	}
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d tenant passes failed", failed))
	}
	m.finishTick(tickCtx, started, wallStart)
}

// RunTenantNow runs a pass for one tenant outside the timer, under the same lock and timeout.
func (m *Monitor) RunTenantNow(ctx context.Context, clientId string) (TenantResult, error) {
	client, err := m.engine.Store.GetTenant(ctx, clientId)
	if err != nil {
		return TenantResult{ClientId: clientId}, err
	}
	if client == nil {
		return TenantResult{ClientId: clientId}, ErrTenantNotFound
	}
	ctx = utils.SetCorrelationIdInContext(ctx, uuid.NewString())
	return m.runTenant(ctx, *client)
}

func (m *Monitor) runTenant(ctx context.Context, client models.Client) (result TenantResult, err error) {
	result.ClientId = client.ID
	timeout := m.engine.Config.TenantTimeout()
	passCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	release, err := m.locker.Acquire(passCtx, client.ID, timeout+5*time.Second)
	if err != nil {
		if errors.Is(err, ErrLockNotObtained) {
			m.logger.WithFields(logrus.Fields{
				"field":     "runTenant",
				"client_id": client.ID,
			}).Debug("tenant pass held by another worker, skipping")
			return result, err
		}
		config.LogError(m.logger, moduleName, "runTenant", "acquire tenant lock", client.ID, err)
		return result, err
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in tenant pass: %v", r)
			config.LogError(m.logger, moduleName, "runTenant", "recovered panic", string(debug.Stack()), err)
		}
	}()

	result, err = m.engine.RunTenant(passCtx, client)
	if err != nil {
		config.LogError(m.logger, moduleName, "runTenant", "tenant pass", result, err)
	}
	if errors.Is(passCtx.Err(), context.DeadlineExceeded) {
		m.logger.WithFields(withTrace(ctx, logrus.Fields{
			"field":           "runTenant",
			"client_id":       client.ID,
			"timeout_seconds": int(timeout.Seconds()),
		})).Warn("tenant pass hit its timeout")
	}
	return result, err
}

// startupBackfill closes the missed days of every tenant with auto-close enabled.
func (m *Monitor) startupBackfill(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "autosync.startup_backfill")
	defer span.End()

	clients, err := m.engine.Store.ListTenants(ctx)
	if err != nil {
		config.LogError(m.logger, moduleName, "startupBackfill", "list tenants", m.workerId, err)
		return
	}
	total := 0
	for _, client := range clients {
		if ctx.Err() != nil {
			return
		}
		tenantCtx := utils.SetClientIdInContext(ctx, client.ID)
		sched, err := m.engine.ResolveSchedule(tenantCtx, client.ID)
		if err != nil {
			config.LogError(m.logger, moduleName, "startupBackfill", "resolve schedule", client.ID, err)
			continue
		}
		if !sched.AutoCloseEnabled {
			continue
		}
		created, err := m.engine.BackfillTenant(tenantCtx, client, sched, m.engine.Clock.Now())
		total += created
		if err != nil {
			config.LogError(m.logger, moduleName, "startupBackfill", "backfill tenant", client.ID, err)
		}
	}
	span.SetAttributes(attribute.Int("reports_created", total))
	m.logger.WithFields(logrus.Fields{
		"field":           "startupBackfill",
		"tenants":         len(clients),
		"reports_created": total,
	}).Info("startup backfill done")
}

func (m *Monitor) finishTick(ctx context.Context, started, wallStart time.Time) {
	elapsed := time.Since(wallStart)
	m.mu.Lock()
	m.lastCheck = started
	if m.running {
		m.nextCheck = started.Add(m.interval)
	}
	m.mu.Unlock()

	if elapsed > m.interval {
		m.logger.WithFields(withTrace(ctx, logrus.Fields{
			"field":            "RunOnce",
			"elapsed_ms":       elapsed.Milliseconds(),
			"interval_seconds": int(m.interval.Seconds()),
		})).Warn("auto-sync tick overran its interval")
	}
	if err := m.publisher.Publish(ctx, m.Status()); err != nil {
		config.LogError(m.logger, moduleName, "finishTick", "publish status", m.workerId, err)
	}
}

func (m *Monitor) setNextCheck(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.nextCheck = t
	}
}
