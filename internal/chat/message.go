package chat

import (
	"encoding/json"
	"strings"
)

// Role is the author of a turn or backend message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockKind discriminates the Block union.
type BlockKind string

const (
	KindText       BlockKind = "text"
	KindDocument   BlockKind = "document"
	KindImage      BlockKind = "image"
	KindToolUse    BlockKind = "tool_use"
	KindToolResult BlockKind = "tool_result"
)

// Block is one typed unit of message content. Exactly one of the
// payload fields matching Kind is set.
type Block struct {
	Kind       BlockKind
	Text       string
	Document   *Document
	Image      *Image
	ToolUse    *ToolUse
	ToolResult *ToolResult
}

// Document is an uploaded file sent inline to the backend.
type Document struct {
	Name   string // sanitized, no extension
	Format string // txt, pdf, docx, csv, json
	Bytes  []byte
}

// Image is an uploaded picture sent inline to the backend.
type Image struct {
	Format string // png, jpeg, gif, webp
	Bytes  []byte
}

// MIMEType returns the media type for the image format.
func (i *Image) MIMEType() string {
	return "image/" + i.Format
}

// ToolUse is a request from the model to invoke a tool.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
	// Signature is an opaque provider token that must accompany the call
	// when it is sent back. Empty for providers that do not issue one.
	Signature []byte
}

// ToolStatus reports whether a tool produced a usable result.
type ToolStatus string

const (
	ToolOK    ToolStatus = "ok"
	ToolError ToolStatus = "error"
)

// ToolResult is the output of a tool invocation sent back to the model.
type ToolResult struct {
	ToolUseID string
	Name      string // tool name, needed by backends that key results by function
	Payload   json.RawMessage
	Status    ToolStatus
}

// IsError reports whether the result carries a failure.
func (r ToolResult) IsError() bool {
	return r.Status == ToolError
}

func TextBlock(text string) Block { return Block{Kind: KindText, Text: text} }

func DocumentBlock(d Document) Block { return Block{Kind: KindDocument, Document: &d} }

func ImageBlock(i Image) Block { return Block{Kind: KindImage, Image: &i} }

func ToolUseBlock(u ToolUse) Block { return Block{Kind: KindToolUse, ToolUse: &u} }

func ToolResultBlock(r ToolResult) Block { return Block{Kind: KindToolResult, ToolResult: &r} }

// Message is a backend-facing message: a role and ordered content blocks.
type Message struct {
	Role   Role
	Blocks []Block
}

// Text joins all text blocks of the message.
func (m *Message) Text() string {
	var parts []string
	for _, b := range m.Blocks {
		if b.Kind == KindText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolUses returns every tool-use block in order.
func (m *Message) ToolUses() []ToolUse {
	var out []ToolUse
	for _, b := range m.Blocks {
		if b.Kind == KindToolUse && b.ToolUse != nil {
			out = append(out, *b.ToolUse)
		}
	}
	return out
}

// Count returns how many blocks of the given kind the message carries.
func (m *Message) Count(kind BlockKind) int {
	n := 0
	for _, b := range m.Blocks {
		if b.Kind == kind {
			n++
		}
	}
	return n
}

// ToolSpec declares a callable capability advertised to the backend.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema json.RawMessage // JSON schema object
}

// StopReason is why the backend stopped generating.
type StopReason string

const (
	StopEndTurn       StopReason = "end_turn"
	StopToolUse       StopReason = "tool_use"
	StopMaxTokens     StopReason = "max_tokens"
	StopSequence      StopReason = "stop_sequence"
	StopContentFilter StopReason = "content_filtered"
)
