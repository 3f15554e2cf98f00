package domain

import (
	"fmt"
	"time"
)

// Role определяет уровень доступа сотрудника.
type Role string

const (
	// RoleAdmin — владелец сети, полный доступ.
	RoleAdmin Role = "admin"
	// RoleManager — управляющий точкой продаж.
	RoleManager Role = "manager"
	// RoleStaff — продавец.
	RoleStaff Role = "staff"
)

// Valid проверяет, что роль относится к поддерживаемым значениям.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleStaff:
		return true
	default:
		return false
	}
}

// Permission — действие, доступ к которому проверяется по роли.
type Permission string

const (
	PermissionCheckout           Permission = "checkout"
	PermissionPlaceOrder         Permission = "place_order"
	PermissionManageOrders       Permission = "manage_orders"
	PermissionViewOrders         Permission = "view_orders"
	PermissionManageReservations Permission = "manage_reservations"
	PermissionAdjustStock        Permission = "adjust_stock"
	PermissionViewStock          Permission = "view_stock"
	PermissionManageCatalog      Permission = "manage_catalog"
	PermissionViewReports        Permission = "view_reports"
)

var rolePermissions = map[Role]map[Permission]bool{
	RoleAdmin: {
		PermissionCheckout:           true,
		PermissionPlaceOrder:         true,
		PermissionManageOrders:       true,
		PermissionViewOrders:         true,
		PermissionManageReservations: true,
		PermissionAdjustStock:        true,
		PermissionViewStock:          true,
		PermissionManageCatalog:      true,
		PermissionViewReports:        true,
	},
	RoleManager: {
		PermissionCheckout:           true,
		PermissionPlaceOrder:         true,
		PermissionManageOrders:       true,
		PermissionViewOrders:         true,
		PermissionManageReservations: true,
		PermissionAdjustStock:        true,
		PermissionViewStock:          true,
		PermissionManageCatalog:      true,
		PermissionViewReports:        true,
	},
	RoleStaff: {
		PermissionCheckout:   true,
		PermissionPlaceOrder: true,
		PermissionViewOrders: true,
		PermissionViewStock:  true,
	},
}

// Profile — профиль сотрудника, который хранится рядом с учётной записью.
type Profile struct {
	UserID     string
	OrgID      string
	LocationID string // Пусто, если сотрудник не привязан к точке.
	FullName   string
	Email      string
	Role       Role
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Actor — аутентифицированный пользователь, от имени которого выполняется операция.
type Actor struct {
	UserID     string
	OrgID      string
	LocationID string
	Role       Role
	Active     bool
}

// ActorFromProfile строит Actor из профиля.
func ActorFromProfile(p Profile) Actor {
	return Actor{
		UserID:     p.UserID,
		OrgID:      p.OrgID,
		LocationID: p.LocationID,
		Role:       p.Role,
		Active:     p.Active,
	}
}

// Can сообщает, разрешено ли действие роли actor.
func (a *Actor) Can(p Permission) bool {
	return a != nil && a.Active && rolePermissions[a.Role][p]
}

// Authorize проверяет, что actor существует, активен и имеет право на действие.
func (a *Actor) Authorize(p Permission) error {
	if a == nil || a.UserID == "" {
		return ErrUnauthenticated
	}
	if !a.Active {
		return fmt.Errorf("%w: profile %s is inactive", ErrForbidden, a.UserID)
	}
	if !rolePermissions[a.Role][p] {
		return fmt.Errorf("%w: role %q cannot %s", ErrForbidden, a.Role, p)
	}
	return nil
}
