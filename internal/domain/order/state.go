// internal/domain/order/state.go
package order

import (
	"github.com/your-org/erp-backend/internal/pkg/errs"
)

// validTransitions is the forward path of the order lifecycle.
// ON_HOLD and CANCELLED are reachable from any non-terminal state and
// handled separately in ValidateTransition.
var validTransitions = map[Status][]Status{
	StatusDraft:            {StatusConfirmed},
	StatusConfirmed:        {StatusProcessing},
	StatusProcessing:       {StatusReadyToShip, StatusPartiallyShipped},
	StatusReadyToShip:      {StatusShipped, StatusPartiallyShipped},
	StatusPartiallyShipped: {StatusShipped, StatusReadyToShip},
	StatusShipped:          {StatusDelivered},
	StatusDelivered:        {StatusInvoiced},
	StatusInvoiced:         {StatusClosed},
}

// ValidateTransition checks whether from -> to is a legal move on the
// order lifecycle graph. The data-dependent guards (picked counts,
// reservations) live in the service, which calls this first.
func ValidateTransition(from, to Status) error {
	if from == to {
		return invalid(from, to, "already in that state")
	}
	if from.IsTerminal() {
		return invalid(from, to, "order is in a terminal state")
	}

	// Any non-terminal state can be held or cancelled.
	if to == StatusOnHold || to == StatusCancelled {
		return nil
	}

	// Leaving hold is validated against the remembered prior status
	// by the service; the graph itself allows any non-terminal target.
	if from == StatusOnHold {
		if to.IsTerminal() && to != StatusCancelled {
			return invalid(from, to, "release the hold first")
		}
		return nil
	}

	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return invalid(from, to, "")
}

func invalid(from, to Status, reason string) error {
	return &errs.InvalidTransitionError{
		Entity: "sales order",
		From:   string(from),
		To:     string(to),
		Reason: reason,
	}
}
