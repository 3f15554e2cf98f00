package notify

import (
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/retailpos/internal/domain"
)

var statusTexts = map[domain.OrderStatus]string{
	domain.OrderStatusPending:   "recibimos tu pedido y lo estamos revisando",
	domain.OrderStatusReserved:  "reservamos tus productos hasta confirmar la transferencia",
	domain.OrderStatusConfirmed: "tu pedido fue confirmado",
	domain.OrderStatusShipped:   "tu pedido está en camino",
	domain.OrderStatusCompleted: "tu pedido fue entregado. ¡Gracias por tu compra!",
	domain.OrderStatusCancelled: "tu pedido fue cancelado",
}

// BuildMessage формирует тему и текст уведомления клиенту о статусе заказа.
func BuildMessage(order domain.Order) (subject, body string) {
	text, ok := statusTexts[order.Status]
	if !ok {
		text = fmt.Sprintf("el estado de tu pedido cambió a %s", order.Status)
	}

	subject = fmt.Sprintf("Pedido %s: %s", shortID(order.ID), order.Status)

	var b strings.Builder
	name := strings.TrimSpace(order.CustomerName)
	if name == "" {
		name = "cliente"
	}
	fmt.Fprintf(&b, "Hola %s, %s.", name, text)

	if order.Status == domain.OrderStatusCancelled && order.Notes != "" {
		fmt.Fprintf(&b, " Motivo: %s.", order.Notes)
	}
	if len(order.Items) > 0 {
		b.WriteString(" Productos:")
		for _, item := range order.Items {
			fmt.Fprintf(&b, " %s x%d", item.SKU, item.Qty)
			if item.Size != "" {
				fmt.Fprintf(&b, " (%s)", item.Size)
			}
			b.WriteString(";")
		}
	}
	fmt.Fprintf(&b, " Total: %s.", formatMinor(order.AmountMinor))

	return subject, b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatMinor(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s$%d,%02d", sign, amount/100, amount%100)
}
