package autosync

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/autosync_backend/config"
	"github.com/mmdatafocus/autosync_backend/models"
	"github.com/mmdatafocus/autosync_backend/store"
	"github.com/mmdatafocus/autosync_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// fakeGateway is an in-memory store.Gateway. It records the tenant of every
// tenant-scoped call so tests can assert isolation.
type fakeGateway struct {
	mu sync.Mutex

	clients   []models.Client
	schedules map[string]models.ScheduleConfig
	orders    []models.Order
	payments  []models.Payment
	movements []models.CashMovement
	debts     []models.CustomerDebt
	registers []models.CashRegister
	reports   []models.DailyReport
	issues    []models.ReconciliationIssue

	touched map[string]int
	nextId  int

	// panicFor makes every call for that tenant panic.
	panicFor string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		schedules: map[string]models.ScheduleConfig{},
		touched:   map[string]int{},
		nextId:    1000,
	}
}

func (f *fakeGateway) touch(clientId string) {
	f.touched[clientId]++
	if f.panicFor != "" && clientId == f.panicFor {
		panic("boom for " + clientId)
	}
}

func (f *fakeGateway) id() int {
	f.nextId++
	return f.nextId
}

func (f *fakeGateway) ListTenants(ctx context.Context) ([]models.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Client(nil), f.clients...), nil
}

func (f *fakeGateway) GetTenant(ctx context.Context, clientId string) (*models.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clients {
		if c.ID == clientId {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeGateway) GetScheduleConfig(ctx context.Context, clientId string) (*models.ScheduleConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(clientId)
	cfg, ok := f.schedules[clientId]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (f *fakeGateway) GetOrder(ctx context.Context, clientId string, orderId int) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(clientId)
	for _, o := range f.orders {
		if o.ClientId == clientId && o.ID == orderId {
			o := o
			return &o, nil
		}
	}
	return nil, nil
}

func (f *fakeGateway) ListOrdersByDate(ctx context.Context, clientId string, start, end time.Time) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(clientId)
	var out []models.Order
	for _, o := range f.orders {
		if o.ClientId == clientId && !o.CreatedAt.Before(start) && o.CreatedAt.Before(end) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeGateway) ListPaymentsByOrder(ctx context.Context, clientId string, orderId int) ([]models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(clientId)
	var out []models.Payment
	for _, p := range f.payments {
		if p.ClientId == clientId && p.OrderId == orderId {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeGateway) ListCashMovementsByOrder(ctx context.Context, clientId string, orderId int) ([]models.CashMovement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(clientId)
	var out []models.CashMovement
	for _, m := range f.movements {
		if m.ClientId == clientId && m.ReferenceId != nil && *m.ReferenceId == orderId &&
			(m.ReferenceType == models.ReferenceTypeOrder || m.ReferenceType == models.ReferenceTypeOrderPayment) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeGateway) ListCashMovementsByTenant(ctx context.Context, clientId string) ([]models.CashMovement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(clientId)
	var out []models.CashMovement
	for _, m := range f.movements {
		if m.ClientId == clientId {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeGateway) ListCashMovementsByDateRange(ctx context.Context, clientId string, start, end time.Time) ([]models.CashMovement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(clientId)
	var out []models.CashMovement
	for _, m := range f.movements {
		if m.ClientId == clientId && !m.CreatedAt.Before(start) && m.CreatedAt.Before(end) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeGateway) ListCashMovementsByPayment(ctx context.Context, clientId string, paymentId int) ([]models.CashMovement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(clientId)
	var out []models.CashMovement
	for _, m := range f.movements {
		if m.ClientId != clientId {
			continue
		}
		if id, ok := m.RepresentedPaymentId(); ok && id == paymentId {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeGateway) CreateCashMovement(ctx context.Context, movement *models.CashMovement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(movement.ClientId)
	if movement.SourcePaymentId != nil {
		for _, m := range f.movements {
			if m.ClientId == movement.ClientId && m.SourcePaymentId != nil && *m.SourcePaymentId == *movement.SourcePaymentId {
				return store.ErrDuplicate
			}
		}
	}
	movement.ID = f.id()
	f.movements = append(f.movements, *movement)
	return nil
}

func (f *fakeGateway) ListCustomerDebts(ctx context.Context, clientId string) ([]models.CustomerDebt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(clientId)
	var out []models.CustomerDebt
	for _, d := range f.debts {
		if d.ClientId == clientId {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeGateway) UpdateCustomerDebt(ctx context.Context, clientId string, debtId int, patch models.CustomerDebtPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(clientId)
	for i := range f.debts {
		d := &f.debts[i]
		if d.ClientId != clientId || d.ID != debtId {
			continue
		}
		if patch.Status != nil {
			d.Status = *patch.Status
		}
		if patch.PaidAmount != nil {
			d.PaidAmount = *patch.PaidAmount
		}
		if patch.RemainingAmount != nil {
			d.RemainingAmount = *patch.RemainingAmount
		}
	}
	return nil
}

func (f *fakeGateway) GetCashRegisterByDate(ctx context.Context, clientId string, date time.Time) (*models.CashRegister, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(clientId)
	for _, r := range f.registers {
		if r.ClientId == clientId && utils.SameDate(r.Date, date) {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeGateway) CreateCashRegister(ctx context.Context, register *models.CashRegister) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(register.ClientId)
	for _, r := range f.registers {
		if r.ClientId == register.ClientId && utils.SameDate(r.Date, register.Date) {
			return store.ErrDuplicate
		}
	}
	register.ID = f.id()
	f.registers = append(f.registers, *register)
	return nil
}

func (f *fakeGateway) UpdateCashRegister(ctx context.Context, clientId string, registerId int, patch models.CashRegisterPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(clientId)
	for i := range f.registers {
		r := &f.registers[i]
		if r.ClientId != clientId || r.ID != registerId {
			continue
		}
		if patch.DailySales != nil {
			r.DailySales = *patch.DailySales
		}
		if patch.TotalExpenses != nil {
			r.TotalExpenses = *patch.TotalExpenses
		}
		if patch.IsOpen != nil {
			r.IsOpen = *patch.IsOpen
		}
	}
	return nil
}

func (f *fakeGateway) ListDailyReportsByTenant(ctx context.Context, clientId string) ([]models.DailyReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(clientId)
	var out []models.DailyReport
	for _, r := range f.reports {
		if r.ClientId == clientId {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeGateway) GetDailyReportByDate(ctx context.Context, clientId string, date time.Time) (*models.DailyReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(clientId)
	for _, r := range f.reports {
		if r.ClientId == clientId && utils.SameDate(r.ReportDate, date) {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

// CreateDailyReport deliberately has no uniqueness check: the engine's existence
// check alone must keep one report per day.
func (f *fakeGateway) CreateDailyReport(ctx context.Context, report *models.DailyReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(report.ClientId)
	report.ID = f.id()
	f.reports = append(f.reports, *report)
	return nil
}

func (f *fakeGateway) RecordIssue(ctx context.Context, issue *models.ReconciliationIssue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touch(issue.ClientId)
	issue.ID = f.id()
	f.issues = append(f.issues, *issue)
	return nil
}

// seed helpers

func (f *fakeGateway) addClient(id string, createdAt time.Time) {
	f.clients = append(f.clients, models.Client{ID: id, Name: id, CreatedAt: createdAt})
}

func (f *fakeGateway) addOrder(clientId string, id int, total string, status models.PaymentStatus, createdAt time.Time) models.Order {
	o := models.Order{
		ID:            id,
		ClientId:      clientId,
		OrderNumber:   clientId + "-" + decimal.NewFromInt(int64(id)).String(),
		TotalUsd:      decimal.RequireFromString(total),
		PaymentStatus: status,
		CreatedAt:     createdAt,
	}
	f.orders = append(f.orders, o)
	return o
}

func (f *fakeGateway) addPayment(clientId string, id, orderId int, method, amount, amountUsd string, createdAt time.Time) models.Payment {
	p := models.Payment{
		ID:            id,
		ClientId:      clientId,
		OrderId:       orderId,
		PaymentMethod: method,
		Amount:        decimal.RequireFromString(amount),
		AmountUsd:     decimal.RequireFromString(amountUsd),
		CreatedAt:     createdAt,
	}
	f.payments = append(f.payments, p)
	return p
}

func (f *fakeGateway) addMovement(m models.CashMovement) {
	m.ID = f.id()
	f.movements = append(f.movements, m)
}

func (f *fakeGateway) movementsFor(clientId string) []models.CashMovement {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CashMovement
	for _, m := range f.movements {
		if m.ClientId == clientId {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeGateway) reportsFor(clientId string) []models.DailyReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DailyReport
	for _, r := range f.reports {
		if r.ClientId == clientId {
			out = append(out, r)
		}
	}
	return out
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var buenosAires = mustLocation("America/Argentina/Buenos_Aires")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func newTestEngine(t *testing.T, gw store.Gateway, now time.Time) (*Engine, *fixedClock) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := config.DefaultAutoSyncConfig()
	cfg.BackfillDelayMs = 0
	e := NewEngine(gw, logger, cfg)
	clock := &fixedClock{now: now}
	e.Clock = clock
	e.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return e, clock
}

func intPtr(v int) *int { return &v }
