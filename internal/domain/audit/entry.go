package audit

import (
	"time"

	"github.com/google/uuid"
)

// Entry is a write-once record of a state-changing action, kept separately
// from the transaction ledger. Writes are best-effort: a failed audit write
// never rolls back the action it describes.
type Entry struct {
	ID         uuid.UUID
	ActorID    uuid.UUID
	Action     Action
	EntityType string
	EntityID   string
	Details    string
	CreatedAt  time.Time
}

// Action tags for the actions this core performs
type Action string

const (
	ActionProcessPayment    Action = "process_payment"
	ActionAdminOverride     Action = "admin_override"
	ActionCreateCase        Action = "create_case"
	ActionAssignCase        Action = "assign_case"
	ActionResolveCase       Action = "resolve_case"
	ActionApproveUser       Action = "approve_user"
	ActionRejectUser        Action = "reject_user"
	ActionBalanceAdjustment Action = "balance_adjustment"
	ActionUpdateSettings    Action = "update_settings"
	ActionRegisterUser      Action = "register_user"
)

// NewEntry creates an audit entry stamped with the current time
func NewEntry(actor uuid.UUID, action Action, entityType, entityID, details string) *Entry {
	return &Entry{
		ID:         uuid.New(),
		ActorID:    actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		CreatedAt:  time.Now(),
	}
}
