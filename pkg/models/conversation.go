package models

// Conversation groups two or more participants. The participant set never
// shrinks below two; membership only grows via AddParticipant.
type Conversation struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts"`
	// LastMsgTS is the send timestamp (ns) of the most recent message,
	// maintained by the message store for recency ordering.
	LastMsgTS int64 `json:"last_msg_ts,omitempty"`
}

// HasParticipant reports whether userID is a member.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
