package models

import "testing"

func TestRepresentedPaymentId(t *testing.T) {
	id := func(v int) *int { return &v }
	cases := []struct {
		name   string
		m      CashMovement
		want   int
		wantOk bool
	}{
		{"column", CashMovement{SourcePaymentId: id(7), Notes: "payment_9"}, 7, true},
		{"marker", CashMovement{Notes: "Auto-sync orden A-1 payment_42"}, 42, true},
		{"marker at start", CashMovement{Notes: "payment_3 manual fix"}, 3, true},
		{"no marker", CashMovement{Notes: "venta mostrador"}, 0, false},
		{"embedded word", CashMovement{Notes: "order_payment_5"}, 0, false},
		{"empty", CashMovement{}, 0, false},
	}
	for _, tc := range cases {
		got, ok := tc.m.RepresentedPaymentId()
		if got != tc.want || ok != tc.wantOk {
			t.Fatalf("%s: got (%d, %v), want (%d, %v)", tc.name, got, ok, tc.want, tc.wantOk)
		}
	}
	if PaymentMarker(12) != "payment_12" {
		t.Fatalf("marker format: %s", PaymentMarker(12))
	}
}

func TestMovementTypeClassification(t *testing.T) {
	income := []MovementType{MovementTypeSale, MovementTypeIncome, MovementTypeDebtPayment}
	expense := []MovementType{MovementTypeExpense, MovementTypeOutflow, MovementTypeVendorCommission}
	for _, mt := range income {
		if !mt.IsIncome() || mt.IsExpense() {
			t.Fatalf("%s must be income only", mt)
		}
	}
	for _, mt := range expense {
		if !mt.IsExpense() || mt.IsIncome() {
			t.Fatalf("%s must be expense only", mt)
		}
	}
	if MovementTypeWithdrawal.IsIncome() || MovementTypeWithdrawal.IsExpense() {
		t.Fatalf("withdrawal must be neither")
	}
}

func TestParsePaymentStatus(t *testing.T) {
	s, err := ParsePaymentStatus(" Pagado ")
	if err != nil || s != PaymentStatusPaid {
		t.Fatalf("got %q, %v", s, err)
	}
	if _, err := ParsePaymentStatus("refunded"); err == nil {
		t.Fatalf("expected an error")
	}
}
