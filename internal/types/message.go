package types

// Message is a single turn in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage builds a single-turn user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}
