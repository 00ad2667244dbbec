package models

// NotificationKind enumerates why a notification was produced.
type NotificationKind string

const (
	KindNewMessage    NotificationKind = "new-message"
	KindEditedMessage NotificationKind = "edited-message"
	KindMentioned     NotificationKind = "mentioned"
)

// Notification is a per-recipient record derived from a message event.
// At most one exists per (recipient, source message, kind).
type Notification struct {
	ID        string           `json:"id"`
	Recipient string           `json:"recipient"`
	MsgID     string           `json:"msg_id"`
	Kind      NotificationKind `json:"kind"`
	Body      string           `json:"body,omitempty"`
	Read      bool             `json:"read,omitempty"`
	CreatedTS int64            `json:"created_ts"`
}

// ReadMarker records that a user has seen a message. Absence of a marker
// means unread. Timestamps are monotonic non-decreasing per (user, message).
type ReadMarker struct {
	User  string `json:"user"`
	MsgID string `json:"msg_id"`
	TS    int64  `json:"ts"`
}
