package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "transferdesk/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance: stage
	// changes, clearance decisions, payments and the signed deed.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine case housekeeping.
	CategoryOperations EventCategory = "operations"
)

type Action string

const (
	ActionCaseCreated         Action = "case_created"
	ActionTransitionCommitted Action = "transition_committed"
	ActionClearanceRecorded   Action = "clearance_recorded"
	ActionAttachmentAdded     Action = "attachment_added"
	ActionAccountsComputed    Action = "accounts_computed"
	ActionPaymentRecorded     Action = "payment_recorded"
	ActionDeedDrafted         Action = "deed_drafted"
	ActionDeedFinalized       Action = "deed_finalized"
)

var actionCategories = map[Action]EventCategory{
	ActionCaseCreated:         CategoryCompliance,
	ActionTransitionCommitted: CategoryCompliance,
	ActionClearanceRecorded:   CategoryCompliance,
	ActionPaymentRecorded:     CategoryCompliance,
	ActionDeedFinalized:       CategoryCompliance,

	ActionAttachmentAdded:  CategoryOperations,
	ActionAccountsComputed: CategoryOperations,
	ActionDeedDrafted:      CategoryOperations,
}

// Category returns the EventCategory for this action.
// Unknown actions default to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted by the workflow service for every committed change.
// Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Category  EventCategory
	Action    Action
	CaseID    id.CaseID
	Timestamp time.Time
	// ActorID is the officer who performed the action.
	ActorID   string
	RequestID string
	// ClientIP and Device describe where the request came from.
	ClientIP  string
	Device    string
	FromStage string
	ToStage   string
	// Subject names what the event is about beyond the case, e.g. the
	// section of a clearance or the type of an attachment.
	Subject  string
	Decision string
	Remarks  string
}

// Store persists audit events. Postgres writes go to the outbox inside the
// caller's transaction when one is active.
type Store interface {
	Append(ctx context.Context, event Event) error
}
