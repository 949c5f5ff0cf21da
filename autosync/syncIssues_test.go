package autosync

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/autosync_backend/models"
	"github.com/shopspring/decimal"
)

// 2026-03-15 14:00 in Buenos Aires.
var testNow = time.Date(2026, 3, 15, 17, 0, 0, 0, time.UTC)

func TestRepairSyncIssue_IsIdempotent(t *testing.T) {
	gw := newFakeGateway()
	gw.addClient("tenant-a", testNow.AddDate(0, -1, 0))
	order := gw.addOrder("tenant-a", 1, "300", models.PaymentStatusPaid, testNow.Add(-2*time.Hour))
	gw.addPayment("tenant-a", 11, order.ID, "efectivo_dolar", "100", "100", testNow.Add(-2*time.Hour))
	gw.addPayment("tenant-a", 12, order.ID, "transferencia_ars", "100000", "100", testNow.Add(-2*time.Hour))
	gw.addPayment("tenant-a", 13, order.ID, "usdt", "100", "100", testNow.Add(-2*time.Hour))
	// Written by order processing without any marker.
	gw.addMovement(models.CashMovement{
		ClientId:      "tenant-a",
		Type:          models.MovementTypeSale,
		Subtype:       "efectivo_dolar",
		Amount:        decimal.NewFromInt(100),
		AmountUsd:     decimal.NewFromInt(100),
		Currency:      models.CurrencyUSD,
		ReferenceId:   intPtr(order.ID),
		ReferenceType: models.ReferenceTypeOrder,
		CreatedAt:     testNow.Add(-2 * time.Hour),
	})

	e, _ := newTestEngine(t, gw, testNow)
	ctx := context.Background()

	issues, err := e.DetectSyncIssues(ctx, "tenant-a", buenosAires, testNow)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}
	issue := issues[0]
	if issue.MissingCount != 2 || issue.PaymentsCount != 3 || issue.MovementsCount != 1 || issue.ClientId != "tenant-a" {
		t.Fatalf("unexpected issue: %+v", issue)
	}

	created, err := e.RepairSyncIssue(ctx, issue)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 movements created, got %d", created)
	}
	afterFirst := gw.movementsFor("tenant-a")

	created, err = e.RepairSyncIssue(ctx, issue)
	if err != nil {
		t.Fatalf("second repair: %v", err)
	}
	if created != 0 {
		t.Fatalf("second repair created %d movements", created)
	}
	if got := len(gw.movementsFor("tenant-a")); got != len(afterFirst) || got != 3 {
		t.Fatalf("expected 3 movements after both runs, got %d", got)
	}

	issues, err = e.DetectSyncIssues(ctx, "tenant-a", buenosAires, testNow)
	if err != nil {
		t.Fatalf("detect again: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("issue still detected after repair: %+v", issues)
	}
	if e.IssuesFound() != 1 || e.IssuesFixed() != 1 {
		t.Fatalf("counters found=%d fixed=%d", e.IssuesFound(), e.IssuesFixed())
	}
}

func TestRepairSyncIssue_MovementShape(t *testing.T) {
	gw := newFakeGateway()
	gw.addClient("tenant-a", testNow.AddDate(0, -1, 0))
	order := gw.addOrder("tenant-a", 1, "100", models.PaymentStatusPaid, testNow.Add(-time.Hour))
	payment := gw.addPayment("tenant-a", 21, order.ID, "transferencia_ars", "120000", "100", testNow.Add(-time.Hour))
	rate := decimal.NewFromInt(1200)
	gw.payments[0].ExchangeRate = &rate

	e, _ := newTestEngine(t, gw, testNow)
	if _, err := e.RepairSyncIssue(context.Background(), SyncIssue{ClientId: "tenant-a", OrderId: order.ID}); err != nil {
		t.Fatalf("repair: %v", err)
	}
	movements := gw.movementsFor("tenant-a")
	if len(movements) != 1 {
		t.Fatalf("expected 1 movement, got %d", len(movements))
	}
	m := movements[0]
	if m.Type != models.MovementTypeSale || m.Subtype != payment.PaymentMethod {
		t.Fatalf("type/subtype: %s/%s", m.Type, m.Subtype)
	}
	if m.Currency != models.CurrencyARS {
		t.Fatalf("currency: %s", m.Currency)
	}
	if !m.ExchangeRate.Equal(rate) || !m.AmountUsd.Equal(decimal.NewFromInt(100)) || !m.Amount.Equal(decimal.NewFromInt(120000)) {
		t.Fatalf("amounts: rate=%s usd=%s amount=%s", m.ExchangeRate, m.AmountUsd, m.Amount)
	}
	if m.ReferenceId == nil || *m.ReferenceId != order.ID || m.ReferenceType != models.ReferenceTypeOrderPayment {
		t.Fatalf("reference: %v %s", m.ReferenceId, m.ReferenceType)
	}
	if m.SourcePaymentId == nil || *m.SourcePaymentId != payment.ID {
		t.Fatalf("source payment: %v", m.SourcePaymentId)
	}
	if id, ok := m.RepresentedPaymentId(); !ok || id != payment.ID {
		t.Fatalf("notes marker missing: %q", m.Notes)
	}
}

func TestRepairSyncIssue_HonorsLegacyMarker(t *testing.T) {
	gw := newFakeGateway()
	gw.addClient("tenant-a", testNow.AddDate(0, -1, 0))
	order := gw.addOrder("tenant-a", 1, "200", models.PaymentStatusPaid, testNow.Add(-time.Hour))
	gw.addPayment("tenant-a", 31, order.ID, "efectivo_dolar", "100", "100", testNow.Add(-time.Hour))
	gw.addPayment("tenant-a", 32, order.ID, "efectivo_dolar", "100", "100", testNow.Add(-time.Hour))
	// Older repair: marker only, different subtype spelling.
	gw.addMovement(models.CashMovement{
		ClientId:      "tenant-a",
		Type:          models.MovementTypeSale,
		Subtype:       "EFECTIVO",
		Amount:        decimal.NewFromInt(100),
		Currency:      models.CurrencyUSD,
		ReferenceId:   intPtr(order.ID),
		ReferenceType: models.ReferenceTypeOrderPayment,
		Notes:         "Sincronizacion automatica payment_31",
	})

	e, _ := newTestEngine(t, gw, testNow)
	created, err := e.RepairSyncIssue(context.Background(), SyncIssue{ClientId: "tenant-a", OrderId: order.ID})
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected only payment 32 repaired, created %d", created)
	}
	movements := gw.movementsFor("tenant-a")
	last := movements[len(movements)-1]
	if last.SourcePaymentId == nil || *last.SourcePaymentId != 32 {
		t.Fatalf("repaired wrong payment: %+v", last.SourcePaymentId)
	}
}

func TestUnrepresentedPayments(t *testing.T) {
	p := func(id int, method, amount string) models.Payment {
		return models.Payment{ID: id, PaymentMethod: method, Amount: decimal.RequireFromString(amount)}
	}
	mv := func(subtype, amount, notes string) models.CashMovement {
		return models.CashMovement{Subtype: subtype, Amount: decimal.RequireFromString(amount), Notes: notes}
	}

	cases := []struct {
		name      string
		payments  []models.Payment
		movements []models.CashMovement
		want      []int
	}{
		{
			name:     "no movements",
			payments: []models.Payment{p(1, "efectivo_dolar", "10"), p(2, "efectivo_dolar", "10")},
			want:     []int{1, 2},
		},
		{
			name:      "one movement covers only one of two identical payments",
			payments:  []models.Payment{p(1, "efectivo_dolar", "10"), p(2, "efectivo_dolar", "10")},
			movements: []models.CashMovement{mv("efectivo_dolar", "10", "")},
			want:      []int{2},
		},
		{
			name:      "amount must match exactly",
			payments:  []models.Payment{p(1, "efectivo_dolar", "10")},
			movements: []models.CashMovement{mv("efectivo_dolar", "10.5", "")},
			want:      []int{1},
		},
		{
			name:      "marker of another payment is not reusable",
			payments:  []models.Payment{p(1, "efectivo_dolar", "10")},
			movements: []models.CashMovement{mv("efectivo_dolar", "10", "payment_99")},
			want:      []int{1},
		},
		{
			name:      "marker wins over subtype",
			payments:  []models.Payment{p(1, "efectivo_dolar", "10"), p(2, "efectivo_dolar", "10")},
			movements: []models.CashMovement{mv("efectivo_dolar", "10", "payment_2"), mv("efectivo_dolar", "10", "")},
			want:      nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := unrepresentedPayments(tc.payments, tc.movements)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d payments, want %v", len(got), tc.want)
			}
			for i := range got {
				if got[i].ID != tc.want[i] {
					t.Fatalf("got payment %d at %d, want %d", got[i].ID, i, tc.want[i])
				}
			}
		})
	}
}

func TestDetectSyncIssues_WindowIsTenantLocalToday(t *testing.T) {
	gw := newFakeGateway()
	gw.addClient("tenant-a", testNow.AddDate(0, -1, 0))
	// 2026-03-15 01:00 local, today.
	inWindow := time.Date(2026, 3, 15, 4, 0, 0, 0, time.UTC)
	// 2026-03-14 23:30 local, yesterday even though it is the 15th in UTC.
	outOfWindow := time.Date(2026, 3, 15, 2, 30, 0, 0, time.UTC)
	gw.addOrder("tenant-a", 1, "10", models.PaymentStatusPaid, inWindow)
	gw.addPayment("tenant-a", 1, 1, "efectivo_dolar", "10", "10", inWindow)
	gw.addOrder("tenant-a", 2, "10", models.PaymentStatusPaid, outOfWindow)
	gw.addPayment("tenant-a", 2, 2, "efectivo_dolar", "10", "10", outOfWindow)
	// Orders without payments are skipped.
	gw.addOrder("tenant-a", 3, "10", models.PaymentStatusPending, inWindow)

	e, _ := newTestEngine(t, gw, testNow)
	issues, err := e.DetectSyncIssues(context.Background(), "tenant-a", buenosAires, testNow)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(issues) != 1 || issues[0].OrderId != 1 {
		t.Fatalf("expected only order 1, got %+v", issues)
	}

	e.Config.SyncLookbackDays = 1
	issues, err = e.DetectSyncIssues(context.Background(), "tenant-a", buenosAires, testNow)
	if err != nil {
		t.Fatalf("detect with lookback: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues with one day lookback, got %d", len(issues))
	}
}

func TestCurrencyForPaymentMethod(t *testing.T) {
	cases := []struct {
		method string
		want   models.Currency
	}{
		{"transferencia_ars", models.CurrencyARS},
		{"efectivo_ars", models.CurrencyARS},
		{"efectivo_dolar", models.CurrencyUSD},
		{"usdt", models.CurrencyUSDT},
		{"transferencia_usdt", models.CurrencyUSDT},
		{"tarjeta", models.CurrencyUSD},
		{"", models.CurrencyUSD},
	}
	for _, tc := range cases {
		if got := CurrencyForPaymentMethod(tc.method); got != tc.want {
			t.Fatalf("CurrencyForPaymentMethod(%q) = %s, want %s", tc.method, got, tc.want)
		}
	}
}
