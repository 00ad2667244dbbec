package models

// TombstoneBody replaces the body of a soft-deleted message. Revisions and
// reply linkage survive the delete so replies stay addressable.
const TombstoneBody = "[deleted]"

type Message struct {
	ID     string `json:"id"`
	Conv   string `json:"conv"`
	Sender string `json:"sender"`
	Body   string `json:"body"`
	// TS is the send timestamp (ns); immutable after send.
	TS int64 `json:"ts"`
	// Optional reply-to message ID; parent must live in the same conversation.
	ParentID string `json:"parent_id,omitempty"`
	// Depth in the reply tree (root = 0), fixed at send time so the depth
	// bound is enforced without walking the parent chain.
	Depth int `json:"depth,omitempty"`
	// Deleted flag; soft-delete replaces the body with TombstoneBody.
	Deleted bool `json:"deleted,omitempty"`
	// Edit metadata, set when an edit changes the body.
	EditedTS int64  `json:"edited_ts,omitempty"`
	EditedBy string `json:"edited_by,omitempty"`
}

// MessageRevision is an append-only snapshot of a message body taken
// immediately before an edit replaced it.
type MessageRevision struct {
	ID    string `json:"id"`
	MsgID string `json:"msg_id"`
	Body  string `json:"body"`
	// TS is the timestamp (ns) of the edit that produced this snapshot.
	TS int64 `json:"ts"`
}
