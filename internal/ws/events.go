package ws

// Event types emitted to the client, one connection = one session.
const (
	EventConversationCreated = "conversationCreated"
	EventUserMessageSaved    = "userMessageSaved"
	EventChunk               = "chunk"
	EventEnd                 = "end"
	EventError               = "error"
	EventStopped             = "stopped"
)

// Event is one server-to-client message. Fields are populated per type.
type Event struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
	Content        string `json:"content,omitempty"`
	IsComplete     *bool  `json:"isComplete,omitempty"`
	TotalTokens    int    `json:"totalTokens,omitempty"`
	Model          string `json:"model,omitempty"`
	FinishReason   string `json:"finishReason,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Transport delivers events to the connected client. Implementations must
// be safe for concurrent use; the session writes from its own goroutine.
type Transport interface {
	Send(event Event) error
}

func boolPtr(b bool) *bool { return &b }
