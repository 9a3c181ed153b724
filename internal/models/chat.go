package models

// Preferences narrow recommendations for a user. A nil *Preferences means no filter.
type Preferences struct {
	Size       string   `json:"size"`
	Colors     []string `json:"colors"`
	Categories []string `json:"categories"`
}

// Turn is one question/answer exchange within a conversation.
type Turn struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// PipelineResult is what the response pipeline hands back for one message.
type PipelineResult struct {
	Answer         string   `json:"answer"`
	Context        []Chunk  `json:"context"`
	ProductIDs     []string `json:"product_ids"`
	LatencySeconds float64  `json:"response_time"`
}

// ChatMessage is the inbound "handle chat message" call.
type ChatMessage struct {
	Message        string `json:"message"`
	ConversationID string `json:"chat_id,omitempty"`
	UserID         string `json:"user_id"`
}

type ChatReply struct {
	PipelineResult
	ConversationID string `json:"chat_id"`
}
