package domain

import (
	"errors"
	"testing"
)

func TestActorAuthorize(t *testing.T) {
	tests := []struct {
		name  string
		actor *Actor
		perm  Permission
		want  error
	}{
		{name: "nil actor", actor: nil, perm: PermissionCheckout, want: ErrUnauthenticated},
		{name: "inactive", actor: &Actor{UserID: "u", Role: RoleAdmin}, perm: PermissionCheckout, want: ErrForbidden},
		{name: "staff checkout", actor: &Actor{UserID: "u", Role: RoleStaff, Active: true}, perm: PermissionCheckout},
		{name: "staff manage orders", actor: &Actor{UserID: "u", Role: RoleStaff, Active: true}, perm: PermissionManageOrders, want: ErrForbidden},
		{name: "manager manage orders", actor: &Actor{UserID: "u", Role: RoleManager, Active: true}, perm: PermissionManageOrders},
		{name: "admin reports", actor: &Actor{UserID: "u", Role: RoleAdmin, Active: true}, perm: PermissionViewReports},
		{name: "unknown role", actor: &Actor{UserID: "u", Role: "guest", Active: true}, perm: PermissionCheckout, want: ErrForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.actor.Authorize(tc.perm)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestProductOffers(t *testing.T) {
	p := Product{Sizes: []string{"S", "M"}, Colors: nil}
	if !p.Offers("M", "rojo") {
		t.Fatalf("M in any color must be offered")
	}
	if p.Offers("XL", "") {
		t.Fatalf("XL is not offered")
	}
}

func TestActorCan(t *testing.T) {
	manager := &Actor{UserID: "u-1", Role: RoleManager, Active: true}
	staff := &Actor{UserID: "u-2", Role: RoleStaff, Active: true}
	inactive := &Actor{UserID: "u-3", Role: RoleAdmin}
	var missing *Actor

	if !manager.Can(PermissionManageOrders) {
		t.Fatal("manager should manage orders")
	}
	if staff.Can(PermissionManageOrders) {
		t.Fatal("staff must not manage orders")
	}
	if inactive.Can(PermissionCheckout) || missing.Can(PermissionCheckout) {
		t.Fatal("inactive or missing actor must not be allowed")
	}
}
