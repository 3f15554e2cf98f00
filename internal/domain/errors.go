package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated — запрос без аутентифицированного пользователя.
	ErrUnauthenticated = errors.New("sin autorización")
	// ErrForbidden — у пользователя нет нужной роли или профиль неактивен.
	ErrForbidden = errors.New("sin permisos")
	// ErrProfileNotFound — профиль пользователя не найден.
	ErrProfileNotFound = errors.New("profile not found")

	// Ошибка пустой корзины.
	ErrCartEmpty = errors.New("cart must contain at least one line")
	// Ошибка отсутствующего идентификатора товара в строке корзины или заказа.
	ErrProductIDRequired = errors.New("product_id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если скидка вне диапазона [0, 100].
	ErrInvalidDiscount = errors.New("discount percent must be between 0 and 100")
	// ErrAmountOverflow — сумма строки или чека не помещается в int64.
	ErrAmountOverflow = errors.New("amount is too large")
	// Ошибка неизвестного способа оплаты.
	ErrPaymentMethodInvalid = errors.New("payment method is invalid")
	// Ошибка неизвестного канала продажи.
	ErrChannelInvalid = errors.New("sale channel is invalid")

	// Ошибка отсутствующего SKU.
	ErrSKURequired = errors.New("sku is required")
	// Ошибка отсутствующего названия товара.
	ErrProductNameRequired = errors.New("product name is required")
	// Ошибка отрицательной цены или себестоимости.
	ErrPriceNegative = errors.New("price and cost must be non-negative")
	// ErrDuplicateSKU — SKU уже используется в организации.
	ErrDuplicateSKU = errors.New("duplicate sku")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductInactive — товар снят с продажи.
	ErrProductInactive = errors.New("product is inactive")
	// ErrVariantUnavailable — размер или цвет не предусмотрены для товара.
	ErrVariantUnavailable = errors.New("variant is not offered for product")

	// ErrLocationRequired — для операции нужна точка продаж.
	ErrLocationRequired = errors.New("location_id is required")
	// ErrInventoryRecordNotFound — нет складской записи для варианта в точке продаж.
	ErrInventoryRecordNotFound = errors.New("inventory record not found")
	// ErrInsufficientStock — недостаточно остатка для списания.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrNegativeQuantity — остаток не может быть отрицательным.
	ErrNegativeQuantity = errors.New("quantity must be non-negative")

	// ErrSaleNotFound возвращается, если продажа не найдена.
	ErrSaleNotFound = errors.New("sale not found")
	// ErrInvalidPeriod — начало периода отчёта не раньше его конца.
	ErrInvalidPeriod = errors.New("report period start must be before end")

	// Ошибка отсутствующего имени клиента.
	ErrCustomerRequired = errors.New("customer name is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrInvalidOrderStatus — неизвестный статус заказа.
	ErrInvalidOrderStatus = errors.New("invalid order status")
	// ErrInvalidTransition — переход отсутствует в таблице переходов.
	ErrInvalidTransition = errors.New("invalid order status transition")

	// ErrReservationNotFound возвращается, если резерв не найден.
	ErrReservationNotFound = errors.New("reservation not found")

	ErrOutboxMessageNotFound = errors.New("outbox message not found")
	// ErrEventUndeliverable — событие нельзя доставить ни с какой попытки
	// (битый payload); outbox сразу отправляет его в DLQ.
	ErrEventUndeliverable = errors.New("outbox event cannot be delivered")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound — ключ не найден.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyHashMismatch — под тем же ключом пришёл другой запрос.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
)

// InsufficientStockError уточняет, какой вариант не удалось списать.
type InsufficientStockError struct {
	ProductID  string
	SKU        string
	Size       string
	Color      string
	LocationID string
	Requested  int32
	Available  int32
}

func (e *InsufficientStockError) Error() string {
	where := "any location"
	if e.LocationID != "" {
		where = "location " + e.LocationID
	}
	return fmt.Sprintf("insufficient stock for %s size %s color %s at %s: requested %d, available %d",
		e.SKU, e.Size, e.Color, where, e.Requested, e.Available)
}

// Is позволяет сравнивать через errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsNotFound объединяет все ошибки отсутствия записи.
func IsNotFound(err error) bool {
	for _, target := range []error{
		ErrProductNotFound,
		ErrInventoryRecordNotFound,
		ErrSaleNotFound,
		ErrOrderNotFound,
		ErrReservationNotFound,
		ErrProfileNotFound,
		ErrIdempotencyKeyNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsValidation объединяет ошибки входных данных.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrCartEmpty,
		ErrProductIDRequired,
		ErrItemQtyInvalid,
		ErrInvalidDiscount,
		ErrAmountOverflow,
		ErrPaymentMethodInvalid,
		ErrChannelInvalid,
		ErrSKURequired,
		ErrProductNameRequired,
		ErrPriceNegative,
		ErrVariantUnavailable,
		ErrLocationRequired,
		ErrNegativeQuantity,
		ErrCustomerRequired,
		ErrItemsRequired,
		ErrItemPriceInvalid,
		ErrAmountMismatch,
		ErrOrderIDRequired,
		ErrInvalidOrderStatus,
		ErrInvalidPeriod,
		ErrIdempotencyKeyRequired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
