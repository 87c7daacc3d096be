// internal/domain/order/state_test.go
package order

import (
	"testing"

	"github.com/your-org/erp-backend/internal/pkg/errs"
)

func TestValidateTransition_ForwardPath(t *testing.T) {
	path := []Status{
		StatusDraft, StatusConfirmed, StatusProcessing, StatusReadyToShip,
		StatusShipped, StatusDelivered, StatusInvoiced, StatusClosed,
	}
	for i := 0; i < len(path)-1; i++ {
		if err := ValidateTransition(path[i], path[i+1]); err != nil {
			t.Errorf("%s -> %s should be legal: %v", path[i], path[i+1], err)
		}
	}
}

func TestValidateTransition_NoSkipping(t *testing.T) {
	cases := []struct{ from, to Status }{
		{StatusDraft, StatusProcessing},
		{StatusDraft, StatusShipped},
		{StatusConfirmed, StatusShipped},
		{StatusProcessing, StatusDelivered},
		{StatusShipped, StatusInvoiced},
		{StatusShipped, StatusClosed},
		// No moving backwards either
		{StatusConfirmed, StatusDraft},
		{StatusShipped, StatusProcessing},
	}
	for _, c := range cases {
		err := ValidateTransition(c.from, c.to)
		if !errs.IsInvalidTransition(err) {
			t.Errorf("%s -> %s should be rejected, got %v", c.from, c.to, err)
		}
	}
}

func TestValidateTransition_PartialShipment(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusProcessing, StatusPartiallyShipped},
		{StatusReadyToShip, StatusPartiallyShipped},
		{StatusPartiallyShipped, StatusShipped},
		{StatusPartiallyShipped, StatusReadyToShip},
	}
	for _, c := range legal {
		if err := ValidateTransition(c.from, c.to); err != nil {
			t.Errorf("%s -> %s should be legal: %v", c.from, c.to, err)
		}
	}
	if err := ValidateTransition(StatusPartiallyShipped, StatusDelivered); !errs.IsInvalidTransition(err) {
		t.Errorf("partially shipped cannot deliver directly, got %v", err)
	}
}

func TestValidateTransition_HoldAndCancel(t *testing.T) {
	nonTerminal := []Status{
		StatusDraft, StatusConfirmed, StatusProcessing, StatusReadyToShip,
		StatusPartiallyShipped, StatusShipped, StatusDelivered, StatusInvoiced,
	}
	for _, from := range nonTerminal {
		if from != StatusOnHold {
			if err := ValidateTransition(from, StatusOnHold); err != nil {
				t.Errorf("%s -> on_hold should be legal: %v", from, err)
			}
		}
		if err := ValidateTransition(from, StatusCancelled); err != nil {
			t.Errorf("%s -> cancelled should be legal: %v", from, err)
		}
	}

	// Terminal states are final
	for _, from := range []Status{StatusClosed, StatusCancelled} {
		for _, to := range []Status{StatusOnHold, StatusCancelled, StatusDraft, StatusConfirmed} {
			if err := ValidateTransition(from, to); !errs.IsInvalidTransition(err) {
				t.Errorf("%s -> %s should be rejected, got %v", from, to, err)
			}
		}
	}

	// Leaving hold back to a working state
	if err := ValidateTransition(StatusOnHold, StatusProcessing); err != nil {
		t.Errorf("on_hold -> processing should be legal: %v", err)
	}
	if err := ValidateTransition(StatusOnHold, StatusCancelled); err != nil {
		t.Errorf("on_hold -> cancelled should be legal: %v", err)
	}
	if err := ValidateTransition(StatusOnHold, StatusClosed); !errs.IsInvalidTransition(err) {
		t.Errorf("on_hold -> closed should be rejected, got %v", err)
	}
}

func TestValidateTransition_SelfLoop(t *testing.T) {
	if err := ValidateTransition(StatusProcessing, StatusProcessing); !errs.IsInvalidTransition(err) {
		t.Errorf("self transition should be rejected, got %v", err)
	}
}
