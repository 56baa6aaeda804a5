package chat

import "time"

// DraftKey is the reserved conversation key for a chat the user has started
// composing but not yet created on the backend. Staged input recorded under
// it survives the create step.
const DraftKey = "draft"

// Key derives the coordination key for a conversation. Unsaved conversations
// (empty id) all share the draft key.
func Key(conversationID string) string {
	if conversationID == "" {
		return DraftKey
	}
	return conversationID
}

// Conversation captures one open chat thread.
type Conversation struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"personaId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
