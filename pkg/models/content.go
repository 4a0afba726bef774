package models

// ContentBlockType distinguishes the kind of payload a ContentBlock carries.
type ContentBlockType string

const (
	ContentText       ContentBlockType = "text"
	ContentImage      ContentBlockType = "image"
	ContentAudio      ContentBlockType = "audio"
	ContentFile       ContentBlockType = "file"
	ContentToolResult ContentBlockType = "tool_result"
)

// ContentBlock is one ordered unit of a Message's payload. Exactly one of the
// type-specific fields is populated, selected by Type.
type ContentBlock struct {
	Type ContentBlockType `json:"type"`

	// Text holds the payload for ContentText.
	Text string `json:"text,omitempty"`

	// Data holds base64 or raw payload for ContentImage/ContentAudio.
	Data string `json:"data,omitempty"`

	// MediaType is the MIME type for ContentImage/ContentAudio/ContentFile.
	MediaType string `json:"media_type,omitempty"`

	// Path is the filesystem or URI reference for ContentFile.
	Path string `json:"path,omitempty"`

	// ToolCallID, ToolContent, ToolIsError populate ContentToolResult.
	ToolCallID  string `json:"tool_call_id,omitempty"`
	ToolContent string `json:"tool_content,omitempty"`
	ToolIsError bool   `json:"tool_is_error,omitempty"`
}

// Text constructs a text content block.
func Text(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

// ToolResultBlock constructs a content block carrying a tool's result, referencing
// the ToolCall id it answers.
func ToolResultBlock(toolCallID, content string, isError bool) ContentBlock {
	return ContentBlock{
		Type:        ContentToolResult,
		ToolCallID:  toolCallID,
		ToolContent: content,
		ToolIsError: isError,
	}
}

// estimateChars returns the char-weight of a single block for token estimation.
// Image/audio payloads are capped at 1000 chars per the working-memory token model.
func (c ContentBlock) estimateChars() int {
	switch c.Type {
	case ContentText:
		return len(c.Text)
	case ContentImage, ContentAudio:
		n := len(c.Data)
		if n > 1000 {
			n = 1000
		}
		return n
	case ContentFile:
		return len(c.Path)
	case ContentToolResult:
		return len(c.ToolContent) + len(c.ToolCallID)
	default:
		return 0
	}
}
