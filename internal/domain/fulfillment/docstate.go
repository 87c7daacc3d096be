// internal/domain/fulfillment/docstate.go
package fulfillment

import (
	"github.com/your-org/erp-backend/internal/pkg/errs"
)

// validDocTransitions is shared by every fulfillment document. ON_HOLD
// is only offered on job cards, but the graph itself is common.
var validDocTransitions = map[DocumentStatus][]DocumentStatus{
	DocPending:    {DocInProgress, DocComplete, DocCancelled, DocOnHold},
	DocInProgress: {DocComplete, DocCancelled, DocOnHold},
	DocOnHold:     {DocPending, DocInProgress, DocCancelled},
}

// validateDocTransition checks a document status move, naming the
// document kind in the error so staff see which paper is stuck.
func validateDocTransition(entity string, from, to DocumentStatus) error {
	if from == to {
		return &errs.InvalidTransitionError{Entity: entity, From: string(from), To: string(to), Reason: "already in that state"}
	}
	if from.IsTerminal() {
		return &errs.InvalidTransitionError{Entity: entity, From: string(from), To: string(to), Reason: "document is in a terminal state"}
	}
	for _, allowed := range validDocTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return &errs.InvalidTransitionError{Entity: entity, From: string(from), To: string(to)}
}
