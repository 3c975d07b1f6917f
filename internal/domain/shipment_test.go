package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestNextShipmentStatus(t *testing.T) {
	t.Run("moves forward", func(t *testing.T) {
		cases := []struct{ from, to ShipmentStatus }{
			{ShipmentStatusPending, ShipmentStatusShipped},
			{ShipmentStatusPending, ShipmentStatusDelivered},
			{ShipmentStatusShipped, ShipmentStatusDelivered},
			{ShipmentStatusPending, ShipmentStatusCancelled},
		}
		for _, tc := range cases {
			changed, err := NextShipmentStatus(tc.from, tc.to)
			if err != nil {
				t.Errorf("%s to %s: unexpected error: %v", tc.from, tc.to, err)
			}
			if !changed {
				t.Errorf("%s to %s: expected a change", tc.from, tc.to)
			}
		}
	})

	t.Run("repeating the current status is a no-op", func(t *testing.T) {
		for _, st := range []ShipmentStatus{ShipmentStatusPending, ShipmentStatusShipped, ShipmentStatusDelivered, ShipmentStatusCancelled} {
			changed, err := NextShipmentStatus(st, st)
			if err != nil {
				t.Errorf("%s to %s: unexpected error: %v", st, st, err)
			}
			if changed {
				t.Errorf("%s to %s: expected no-op", st, st)
			}
		}
	})

	t.Run("rejects backward and post-terminal moves", func(t *testing.T) {
		cases := []struct{ from, to ShipmentStatus }{
			{ShipmentStatusShipped, ShipmentStatusPending},
			{ShipmentStatusDelivered, ShipmentStatusShipped},
			{ShipmentStatusShipped, ShipmentStatusCancelled},
			{ShipmentStatusDelivered, ShipmentStatusCancelled},
			{ShipmentStatusCancelled, ShipmentStatusShipped},
			{ShipmentStatusPending, ShipmentStatus("lost")},
		}
		for _, tc := range cases {
			if _, err := NextShipmentStatus(tc.from, tc.to); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s to %s: expected ErrInvalidTransition, got %v", tc.from, tc.to, err)
			}
		}
	})
}

func TestOrderEventForShipment(t *testing.T) {
	if ev, ok := OrderEventForShipment(ShipmentStatusShipped); !ok || ev != OrderEventShipped {
		t.Errorf("expected shipped event, got %s ok=%v", ev, ok)
	}
	if ev, ok := OrderEventForShipment(ShipmentStatusDelivered); !ok || ev != OrderEventDelivered {
		t.Errorf("expected delivered event, got %s ok=%v", ev, ok)
	}
	if _, ok := OrderEventForShipment(ShipmentStatusCancelled); ok {
		t.Error("cancelling a shipment must not drive the order lifecycle")
	}
	if _, ok := OrderEventForShipment(ShipmentStatusPending); ok {
		t.Error("a pending shipment must not drive the order lifecycle")
	}
}
