package shared

import (
	"encoding/json"
	"time"
)

// EventType names an event on the bus and on the Redis channel.
type EventType string

// Domain event types. External collaborators (channel provisioning,
// notifications) subscribe to these.
const (
	// Group lifecycle events
	EventGroupFilled      EventType = "group.filled"
	EventGroupDisbanded   EventType = "group.disbanded"
	EventGroupMemberAdded EventType = "group.member_added"
	EventGroupMemberLeft  EventType = "group.member_left"

	// Queue events
	EventTicketEnqueued  EventType = "queue.ticket_enqueued"
	EventTicketWithdrawn EventType = "queue.ticket_withdrawn"
)

// Event is something that already happened to a group or ticket. Payload is
// the flat form sent to external subscribers.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	AggregateID() string
	Payload() map[string]interface{}
}

// BaseEvent carries the fields every event shares; embed it.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func (e BaseEvent) EventType() EventType {
	return e.Type
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent stamps the event with the current UTC time and version 1.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Group Lifecycle Events
// ═══════════════════════════════════════════════════════════════════════════

// GroupFilledEvent is emitted exactly once, when a group first reaches its capacity.
type GroupFilledEvent struct {
	BaseEvent
	GroupID  string `json:"group_id"`
	CourseID string `json:"course_id"`
}

func (e GroupFilledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id":  e.GroupID,
		"course_id": e.CourseID,
	}
}

func NewGroupFilledEvent(groupID, courseID string) GroupFilledEvent {
	return GroupFilledEvent{
		BaseEvent: NewBaseEvent(EventGroupFilled, groupID),
		GroupID:   groupID,
		CourseID:  courseID,
	}
}

// GroupDisbandedEvent is emitted when the last member leaves a group.
type GroupDisbandedEvent struct {
	BaseEvent
	GroupID         string   `json:"group_id"`
	CourseID        string   `json:"course_id"`
	FormerMemberIDs []string `json:"former_member_ids"`
}

func (e GroupDisbandedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id":          e.GroupID,
		"course_id":         e.CourseID,
		"former_member_ids": e.FormerMemberIDs,
	}
}

func NewGroupDisbandedEvent(groupID, courseID string, formerMemberIDs []string) GroupDisbandedEvent {
	ids := make([]string, len(formerMemberIDs))
	copy(ids, formerMemberIDs)
	return GroupDisbandedEvent{
		BaseEvent:       NewBaseEvent(EventGroupDisbanded, groupID),
		GroupID:         groupID,
		CourseID:        courseID,
		FormerMemberIDs: ids,
	}
}

// GroupMemberAddedEvent is emitted for every member joining a group.
type GroupMemberAddedEvent struct {
	BaseEvent
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
}

func (e GroupMemberAddedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id": e.GroupID,
		"user_id":  e.UserID,
	}
}

func NewGroupMemberAddedEvent(groupID, userID string) GroupMemberAddedEvent {
	return GroupMemberAddedEvent{
		BaseEvent: NewBaseEvent(EventGroupMemberAdded, groupID),
		GroupID:   groupID,
		UserID:    userID,
	}
}

// GroupMemberLeftEvent is emitted when a member leaves a group.
type GroupMemberLeftEvent struct {
	BaseEvent
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
}

func (e GroupMemberLeftEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id": e.GroupID,
		"user_id":  e.UserID,
	}
}

func NewGroupMemberLeftEvent(groupID, userID string) GroupMemberLeftEvent {
	return GroupMemberLeftEvent{
		BaseEvent: NewBaseEvent(EventGroupMemberLeft, groupID),
		GroupID:   groupID,
		UserID:    userID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Queue Events
// ═══════════════════════════════════════════════════════════════════════════

// TicketEnqueuedEvent is emitted when an individual or group enters the queue.
type TicketEnqueuedEvent struct {
	BaseEvent
	CourseID string `json:"course_id"`
	Identity string `json:"identity"`
	Kind     string `json:"kind"`
}

func (e TicketEnqueuedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"course_id": e.CourseID,
		"identity":  e.Identity,
		"kind":      e.Kind,
	}
}

func NewTicketEnqueuedEvent(ticketID, courseID, identity, kind string) TicketEnqueuedEvent {
	return TicketEnqueuedEvent{
		BaseEvent: NewBaseEvent(EventTicketEnqueued, ticketID),
		CourseID:  courseID,
		Identity:  identity,
		Kind:      kind,
	}
}

// TicketWithdrawnEvent is emitted when a queue entry is explicitly withdrawn.
type TicketWithdrawnEvent struct {
	BaseEvent
	CourseID string `json:"course_id"`
	Identity string `json:"identity"`
}

func (e TicketWithdrawnEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"course_id": e.CourseID,
		"identity":  e.Identity,
	}
}

func NewTicketWithdrawnEvent(ticketID, courseID, identity string) TicketWithdrawnEvent {
	return TicketWithdrawnEvent{
		BaseEvent: NewBaseEvent(EventTicketWithdrawn, ticketID),
		CourseID:  courseID,
		Identity:  identity,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// EventRecorder collects events raised by an aggregate until they are
// released after a successful commit.
type EventRecorder struct {
	pending []Event
}

// Record appends an event.
func (r *EventRecorder) Record(e Event) {
	r.pending = append(r.pending, e)
}

// PullEvents returns and clears the pending events.
func (r *EventRecorder) PullEvents() []Event {
	out := r.pending
	r.pending = nil
	return out
}
