package domain

import "testing"

func TestNormalizeOrderStatus(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "passthrough lowercase", raw: "completed", want: OrderStatusCompleted},
		{name: "case insensitive", raw: "Completed", want: OrderStatusCompleted},
		{name: "synonym confirmed", raw: "CONFIRMED", want: OrderStatusCompleted},
		{name: "synonym approved", raw: "approved", want: OrderStatusCompleted},
		{name: "synonym cancelled", raw: "cancelled", want: OrderStatusRejected},
		{name: "synonym canceled", raw: "canceled", want: OrderStatusRejected},
		{name: "synonym declined", raw: "Declined", want: OrderStatusRejected},
		{name: "empty means unknown", raw: "", want: OrderStatusUnknown},
		{name: "blank means unknown", raw: "   ", want: OrderStatusUnknown},
		{name: "unrecognized kept as is", raw: "Shipped", want: "shipped"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeOrderStatus(tt.raw); got != tt.want {
				t.Fatalf("NormalizeOrderStatus(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestEventTypeForStatus(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{status: OrderStatusWaiting, want: EventOrderCreated},
		{status: OrderStatusPending, want: EventOrderPending},
		{status: OrderStatusCompleted, want: EventOrderCompleted},
		{status: OrderStatusRejected, want: EventOrderRejected},
		{status: OrderStatusUnknown, want: EventOrderUnknown},
		{status: "shipped", want: EventOrderUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := EventTypeForStatus(tt.status); got != tt.want {
				t.Fatalf("EventTypeForStatus(%q) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}
