package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// HandleID is a stable, deterministic identifier for a node: the first 12
// bytes (24 hex characters) of SHA-256 over "<file_path>:<node_type>:<start>-<end>".
// Same (path, type, span) always produces the same ID, so handles survive
// reindex as long as the content at that location is unchanged. Displayed
// with an 'h' prefix; stored raw.
type HandleID string

// NewHandleID computes the handle ID for a node at the given path, type, and
// span.
func NewHandleID(filePath string, nodeType NodeType, span Span) HandleID {
	input := fmt.Sprintf("%s:%d:%d-%d", filePath, nodeType, span.Start, span.End)
	sum := sha256.Sum256([]byte(input))
	return HandleID(hex.EncodeToString(sum[:12]))
}

// String returns the display form with the 'h' prefix.
func (h HandleID) String() string {
	return "h" + string(h)
}

// ParseHandleID accepts both "h1a2b3c4d5e6..." and the raw "1a2b3c4d5e6...".
func ParseHandleID(s string) (HandleID, error) {
	s = strings.TrimPrefix(s, "h")
	for _, r := range s {
		if !isHexDigit(r) {
			return "", fmt.Errorf("invalid handle ID: %s", s)
		}
	}
	return HandleID(s), nil
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// Handle is a reference to a node's content, returned in place of the
// content itself. Content is populated only when auto-expansion under a
// token budget succeeds.
type Handle struct {
	ID         HandleID `json:"id"`
	FilePath   string   `json:"file_path"`
	NodeType   NodeType `json:"node_type"`
	Span       Span     `json:"span"`
	LineStart  int      `json:"line_start"`
	LineEnd    int      `json:"line_end"`
	TokenCount int      `json:"token_count"`
	Preview    string   `json:"preview"`
	Content    *string  `json:"content,omitempty"`

	// Generation is set for handles produced in service mode; zero for
	// locally-produced handles, which carry no generation.
	Generation uint64 `json:"generation,omitempty"`
}

// NewHandle builds a handle, deriving its ID from file path, node type, and
// span.
func NewHandle(filePath string, nodeType NodeType, span Span, lineStart, lineEnd, tokenCount int, preview string) Handle {
	return Handle{
		ID:         NewHandleID(filePath, nodeType, span),
		FilePath:   filePath,
		NodeType:   nodeType,
		Span:       span,
		LineStart:  lineStart,
		LineEnd:    lineEnd,
		TokenCount: tokenCount,
		Preview:    preview,
	}
}

// WithContent returns a copy of the handle with content attached.
func (h Handle) WithContent(content string) Handle {
	h.Content = &content
	return h
}

// RefHandle is a handle over a reference site rather than a node.
type RefHandle struct {
	FilePath       string  `json:"file_path"`
	Span           Span    `json:"span"`
	LineStart      int     `json:"line_start"`
	LineEnd        int     `json:"line_end"`
	Name           string  `json:"name"`
	Qualifier      string  `json:"qualifier,omitempty"`
	RefType        RefType `json:"ref_type"`
	SourceHandleID HandleID `json:"source_handle_id"`
	Preview        string  `json:"preview"`
}

// SafeSlice extracts s[start:end], clamped to the string length and snapped
// inward to valid UTF-8 boundaries so multi-byte characters are never split.
func SafeSlice(s string, start, end int) string {
	n := len(s)
	if start > n {
		start = n
	}
	if end > n {
		end = n
	}
	for start < n && !utf8.RuneStart(s[start]) {
		start++
	}
	for end > start && end < n && !utf8.RuneStart(s[end]) {
		end--
	}
	if start >= end {
		return ""
	}
	return s[start:end]
}

// GeneratePreview extracts the span's content, truncates it to maxBytes on a
// character boundary, collapses internal whitespace, and appends an
// ellipsis if truncated.
func GeneratePreview(source string, span Span, maxBytes int) string {
	content := SafeSlice(source, span.Start, span.End)

	previewEnd := maxBytes
	if previewEnd > len(content) {
		previewEnd = len(content)
	}
	preview := SafeSlice(content, 0, previewEnd)
	preview = strings.TrimSpace(preview)
	preview = strings.Join(strings.Fields(preview), " ")

	if len(content) > maxBytes {
		return preview + "…"
	}
	return preview
}
