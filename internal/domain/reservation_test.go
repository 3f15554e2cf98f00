package domain

import "testing"

func TestReservationValidate(t *testing.T) {
	r := InventoryReservation{}
	if errs := r.Validate(); len(errs) != 4 {
		t.Fatalf("expected 4 validation errors, got %v", errs)
	}

	r = InventoryReservation{OrderID: "o-1", ProductID: "p-1", LocationID: "loc-1", Qty: 2}
	if errs := r.Validate(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestReservationStatusIsActive(t *testing.T) {
	active := map[ReservationStatus]bool{
		ReservationStatusReserved:  true,
		ReservationStatusConfirmed: true,
		ReservationStatusReleased:  false,
		ReservationStatusCompleted: false,
	}
	for status, want := range active {
		if got := status.IsActive(); got != want {
			t.Errorf("%s: got %v, want %v", status, got, want)
		}
	}
}
