package domain

import "strings"

// Канонические статусы заказа.
const (
	OrderStatusWaiting   = "waiting"
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusRejected  = "rejected"
	OrderStatusUnknown   = "unknown"
)

// Типы событий, производные от статуса заказа.
const (
	EventOrderCreated   = "order.created"
	EventOrderPending   = "order.pending"
	EventOrderCompleted = "order.completed"
	EventOrderRejected  = "order.rejected"
	EventOrderUnknown   = "order.unknown"
)

// statusSynonyms приводит партнёрские варианты статусов к каноническим.
var statusSynonyms = map[string]string{
	"confirmed": OrderStatusCompleted,
	"approved":  OrderStatusCompleted,
	"cancelled": OrderStatusRejected,
	"canceled":  OrderStatusRejected,
	"declined":  OrderStatusRejected,
}

// NormalizeOrderStatus приводит статус к нижнему регистру и каноническому виду.
// Пустое значение трактуется как "unknown", незнакомые статусы проходят как есть.
func NormalizeOrderStatus(raw string) string {
	status := strings.ToLower(strings.TrimSpace(raw))
	if status == "" {
		return OrderStatusUnknown
	}
	if canonical, ok := statusSynonyms[status]; ok {
		return canonical
	}
	return status
}

// EventTypeForStatus возвращает тип события для нормализованного статуса заказа.
func EventTypeForStatus(status string) string {
	switch status {
	case OrderStatusWaiting:
		return EventOrderCreated
	case OrderStatusPending:
		return EventOrderPending
	case OrderStatusCompleted:
		return EventOrderCompleted
	case OrderStatusRejected:
		return EventOrderRejected
	default:
		return EventOrderUnknown
	}
}
