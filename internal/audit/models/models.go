package models

import (
	"time"

	id "veto/pkg/domain"
)

// EventType names an audited pointer action.
type EventType string

const (
	EventPointerCreated         EventType = "pointer_created"
	EventPointerResolved        EventType = "pointer_resolved"
	EventPointerResolveDenied   EventType = "pointer_resolve_denied"
	EventPointerResolveNotFound EventType = "pointer_resolve_not_found"
	EventPointerOrphaned        EventType = "pointer_orphaned"
	EventPointerOrphanRejected  EventType = "pointer_orphan_rejected"
)

// Category classifies events for retention and routing.
type Category string

const (
	// CategoryCompliance covers state transitions with regulatory weight.
	CategoryCompliance Category = "compliance"
	// CategorySecurity covers refused or suspicious access attempts.
	CategorySecurity Category = "security"
	// CategoryAccess covers routine successful reads.
	CategoryAccess Category = "access"
)

var eventCategories = map[EventType]Category{
	EventPointerCreated:         CategoryCompliance,
	EventPointerOrphaned:        CategoryCompliance,
	EventPointerOrphanRejected:  CategorySecurity,
	EventPointerResolveDenied:   CategorySecurity,
	EventPointerResolveNotFound: CategorySecurity,
	EventPointerResolved:        CategoryAccess,
}

// Category returns the category for the event type, defaulting to access.
func (e EventType) Category() Category {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryAccess
}

// Event is an append-only audit record. Its references to organizations,
// pointers and receipts are weak: the referenced rows may not exist (for
// example a resolve attempt against an unknown pointer).
type Event struct {
	ID        id.EventID     `json:"id"`
	OrgID     *id.OrgID      `json:"org_id,omitempty"`
	PointerID *id.PointerID  `json:"pointer_id,omitempty"`
	ReceiptID *id.ReceiptID  `json:"receipt_id,omitempty"`
	Type      EventType      `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	ActorID   string         `json:"actor_id,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	ClientIP  string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// SubjectSummary counts a subject's pointers within an organization.
type SubjectSummary struct {
	Total    int `json:"total_pointers"`
	Active   int `json:"active_pointers"`
	Orphaned int `json:"orphaned_pointers"`
}

// Trail is the compliance view of one subject.
type Trail struct {
	OrgID     id.OrgID       `json:"org_id"`
	SubjectID string         `json:"subject_id"`
	Summary   SubjectSummary `json:"summary"`
	Events    []*Event       `json:"events"`
}
