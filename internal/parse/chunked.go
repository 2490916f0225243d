package parse

import (
	"strings"

	"github.com/canopy-project/canopy/internal/document"
)

// chunkFallback splits a file with no recognized structure (unsupported
// extension, or one whose structural parse produced no nodes) into
// overlapping line chunks, or emits it whole when it's under the threshold.
func chunkFallback(source string, cfg Config) []document.Node {
	if len(source) <= cfg.ChunkThresholdBytes {
		span := document.Span{Start: 0, End: len(source)}
		return []document.Node{
			{
				NodeType:   document.NodeChunk,
				Span:       span,
				LineStart:  1,
				LineEnd:    lineCount(source),
				Metadata:   document.ChunkMeta{Index: 0},
				TokenCount: EstimateTokens(source),
				Preview:    document.GeneratePreview(source, span, cfg.PreviewBytes),
			},
		}
	}

	lines := strings.Split(source, "\n")
	chunkLines := cfg.ChunkLines
	if chunkLines <= 0 {
		chunkLines = 50
	}
	overlap := cfg.ChunkOverlapLines
	if overlap < 0 || overlap >= chunkLines {
		overlap = 0
	}

	lineOffsets := byteOffsetsByLine(source, lines)

	var nodes []document.Node
	index := 0
	for start := 0; start < len(lines); {
		end := start + chunkLines
		if end > len(lines) {
			end = len(lines)
		}

		spanStart := lineOffsets[start]
		var spanEnd int
		if end >= len(lines) {
			spanEnd = len(source)
		} else {
			spanEnd = lineOffsets[end]
		}
		span := document.Span{Start: spanStart, End: spanEnd}

		nodes = append(nodes, document.Node{
			NodeType:   document.NodeChunk,
			Span:       span,
			LineStart:  start + 1,
			LineEnd:    end,
			Metadata:   document.ChunkMeta{Index: index},
			TokenCount: EstimateTokens(document.SafeSlice(source, span.Start, span.End)),
			Preview:    document.GeneratePreview(source, span, cfg.PreviewBytes),
		})

		index++
		if end >= len(lines) {
			break
		}
		start = end - overlap
		if start <= 0 {
			start = end
		}
	}

	return nodes
}

func lineCount(source string) int {
	if source == "" {
		return 1
	}
	return strings.Count(source, "\n") + 1
}

// byteOffsetsByLine returns, for each line index, the byte offset in source
// where that line begins. len(result) == len(lines)+1, with the final entry
// equal to len(source).
func byteOffsetsByLine(source string, lines []string) []int {
	offsets := make([]int, len(lines)+1)
	offset := 0
	for i, line := range lines {
		offsets[i] = offset
		offset += len(line) + 1 // +1 for the '\n' split on
	}
	offsets[len(lines)] = len(source)
	return offsets
}
