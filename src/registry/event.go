package registry

import "time"

// EventKind is the kind of change a Registry emits for a Session.
type EventKind string

const (
	Created EventKind = "created"
	Updated EventKind = "updated"
	Deleted EventKind = "deleted"
)

// NotificationType marks the specific working->waiting transition an update
// represents, so subscribers can surface a desktop/UI notification.
type NotificationType string

const (
	NotifyWaitingForInput NotificationType = "waiting_for_input"
	NotifyNeedsApproval   NotificationType = "needs_approval"
)

// Notification is attached to an Updated event only on the specific update
// whose status transition was working -> waiting (spec.md §4.5).
type Notification struct {
	Type      NotificationType
	Timestamp time.Time
}

// Event is a single registry change, ready for the State Publisher.
type Event struct {
	Kind         EventKind
	Session      Session
	Notification *Notification
}
