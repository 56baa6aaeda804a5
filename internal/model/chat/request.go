package chat

// SendRequest is the snapshot handed to the model provider when a staged
// message is dispatched. It is assembled once at send time; later edits to
// the staged input do not affect an in-flight request.
type SendRequest struct {
	ConversationKey string         `json:"conversationKey"`
	Content         string         `json:"content"`
	Attachments     []Attachment   `json:"attachments,omitempty"`
	PersonaID       string         `json:"personaId,omitempty"`
	Temperature     *float64       `json:"temperature,omitempty"`
	ReasoningConfig map[string]any `json:"reasoningConfig,omitempty"`
}
