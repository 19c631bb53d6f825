// Package approvals owns the human approval state machine that gates
// every outbound send, and the interactive-action handler that moves
// it.
package approvals

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"outreach_backend/platform/apperr"
)

// Status is the approval state. Transitions are one way: pending moves
// to approved or rejected exactly once.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ApprovalRecord tracks the decision for one staged outreach item.
type ApprovalRecord struct {
	OutreachID  uuid.UUID  `json:"outreachId"`
	Status      Status     `json:"status"`
	RequestedAt time.Time  `json:"requestedAt"`
	DecidedAt   *time.Time `json:"decidedAt,omitempty"`
	DecidedBy   string     `json:"decidedBy,omitempty"`
}

// Verbs carried in interactive action ids.
const (
	VerbApprove = "approve"
	VerbReject  = "reject"
	VerbEdit    = "edit"
)

// Action is a parsed interactive action id of the form
// "<verb>_<outreachId>".
type Action struct {
	Verb       string
	OutreachID uuid.UUID
}

const opParseAction = "approvals.parse_action"

// ParseActionID splits an interactive action id into its verb and
// outreach id. Unknown verbs and malformed ids are validation errors.
func ParseActionID(actionID string) (Action, error) {
	verb, rawID, found := strings.Cut(actionID, "_")
	if !found {
		return Action{}, apperr.Validation(fmt.Sprintf("malformed action id %q", actionID)).WithOp(opParseAction)
	}
	switch verb {
	case VerbApprove, VerbReject, VerbEdit:
	default:
		return Action{}, apperr.Validation(fmt.Sprintf("unknown action verb %q", verb)).WithOp(opParseAction)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return Action{}, apperr.Validation(fmt.Sprintf("action id %q has no valid outreach id", actionID)).WithOp(opParseAction)
	}
	return Action{Verb: verb, OutreachID: id}, nil
}

// ActionIDs returns the three interactive action ids embedded in an
// approval request notification for one outreach item.
func ActionIDs(outreachID uuid.UUID) (approve, reject, edit string) {
	id := outreachID.String()
	return VerbApprove + "_" + id, VerbReject + "_" + id, VerbEdit + "_" + id
}
