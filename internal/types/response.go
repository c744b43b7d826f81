package types

// Usage reports token consumption for a completed request.
type Usage struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
}

// Response is the result of a completed chat request.
//
// ProviderUsed may differ from the configured provider when the request
// was served by a fallback.
type Response struct {
	Content        string   `json:"content"`
	ProviderUsed   Provider `json:"provider_used"`
	TokensUsed     uint32   `json:"tokens_used"`
	ResponseTimeMs uint32   `json:"response_time_ms"`
	RequestID      string   `json:"request_id"`
	Usage          *Usage   `json:"usage,omitempty"`
}

// StreamChunk is one increment of a streaming chat response.
//
// TotalChunks is 0 (unknown) until the final chunk, which carries the
// true count. ChunkIndex is strictly increasing per stream and IsFinal
// is set on exactly one chunk, after which no further chunks arrive.
type StreamChunk struct {
	Content     string `json:"content"`
	IsFinal     bool   `json:"is_final"`
	ChunkIndex  uint32 `json:"chunk_index"`
	TotalChunks uint32 `json:"total_chunks"`
}
