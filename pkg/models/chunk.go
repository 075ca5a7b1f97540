package models

// ChunkType discriminates the elements of a turn's output stream.
type ChunkType string

const (
	ChunkText      ChunkType = "text"
	ChunkToolEvent ChunkType = "tool_event"
	ChunkMessage   ChunkType = "message"
	ChunkError     ChunkType = "error"
)

// StreamChunk is one element of a turn's append-only output stream: a text
// delta, an interim tool event, the final assistant message, or a terminal
// error. Chunks are never revised after emission.
type StreamChunk struct {
	Type      ChunkType  `json:"type"`
	Text      string     `json:"text,omitempty"`
	ToolEvent *ToolEvent `json:"tool_event,omitempty"`
	Message   *Message   `json:"message,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// TextChunk builds a text delta chunk.
func TextChunk(text string) *StreamChunk {
	return &StreamChunk{Type: ChunkText, Text: text}
}

// ToolEventChunk wraps a tool event for the stream.
func ToolEventChunk(ev *ToolEvent) *StreamChunk {
	return &StreamChunk{Type: ChunkToolEvent, ToolEvent: ev}
}

// MessageChunk wraps the final assistant message.
func MessageChunk(msg *Message) *StreamChunk {
	return &StreamChunk{Type: ChunkMessage, Message: msg}
}

// ErrorChunk builds a terminal error chunk.
func ErrorChunk(msg string) *StreamChunk {
	return &StreamChunk{Type: ChunkError, Error: msg}
}
