package audit

import (
	"time"

	id "idstore/pkg/domain"
)

// Actions recorded against the user aggregate.
const (
	ActionUserCreated  = "user_created"
	ActionUserUpdated  = "user_updated"
	ActionUserDeleted  = "user_deleted"
	ActionClaimAdded   = "claim_added"
	ActionClaimRemoved = "claim_removed"
	ActionLoginAdded   = "login_added"
	ActionLoginRemoved = "login_removed"
	ActionTokenSet     = "token_set"
	ActionTokenRemoved = "token_removed"
	ActionRoleAssigned = "role_assigned"
	ActionRoleRemoved  = "role_removed"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	UserID    id.UserID `json:"userId"`
	ActorID   string    `json:"actorId,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}
