// Package parse turns a file's raw bytes into the structural model consumed
// by internal/store: an ordered list of nodes, a list of references, a
// content hash, and a token estimate. Parsing never fails — unsupported
// extensions and grammar errors fall back to whole-file or line-chunk mode.
package parse

import (
	"crypto/sha256"
	"path/filepath"
	"strings"

	"github.com/canopy-project/canopy/internal/document"
)

// Config carries the parser-relevant subset of canopyconfig.Config.
type Config struct {
	// ChunkThresholdBytes: files without a recognized structure larger than
	// this are split into overlapping line chunks rather than emitted whole.
	ChunkThresholdBytes int
	// ChunkLines and ChunkOverlapLines size the fallback line-chunker.
	ChunkLines        int
	ChunkOverlapLines int
	// PreviewBytes bounds every node's generated preview.
	PreviewBytes int
}

// DefaultConfig returns the parser defaults used when canopyconfig supplies
// none.
func DefaultConfig() Config {
	return Config{
		ChunkThresholdBytes: 64 * 1024,
		ChunkLines:          50,
		ChunkOverlapLines:   10,
		PreviewBytes:        200,
	}
}

// Parse parses one file's content into its structural model. It takes no
// modification time and the ParsedFile it returns carries none; callers that
// need the file's mtime stat the file themselves.
func Parse(path string, content []byte, cfg Config) *document.ParsedFile {
	source := string(content)
	hash := sha256.Sum256(content)

	var nodes []document.Node
	var refs []document.Reference

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".md", ".markdown", ".mdx":
		nodes = parseMarkdown(source, cfg)
	default:
		if lang, ok := languageForExtension(ext); ok {
			n, r, err := parseCode(source, lang, cfg)
			if err == nil {
				nodes, refs = n, r
			}
		}
	}

	if nodes == nil {
		nodes = chunkFallback(source, cfg)
	}

	total := 0
	for i := range nodes {
		total += nodes[i].TokenCount
	}

	return &document.ParsedFile{
		Path:        path,
		Source:      source,
		ContentHash: hash,
		Nodes:       nodes,
		Refs:        refs,
		TotalTokens: total,
	}
}
