package parse

import (
	"regexp"
	"strings"

	"github.com/canopy-project/canopy/internal/document"
)

var (
	headerPattern    = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	fencedCodeBlock  = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)\\n(.*?)```")
)

// parseMarkdown emits one section node per heading, spanning from that
// heading to the next heading of equal-or-higher level (or EOF), plus
// fenced code blocks and paragraphs as their own nodes.
func parseMarkdown(source string, cfg Config) []document.Node {
	if strings.TrimSpace(source) == "" {
		return []document.Node{}
	}

	headings := findHeadings(source)
	var nodes []document.Node

	if len(headings) == 0 {
		nodes = append(nodes, paragraphNodes(source, 0, len(source), 1, cfg)...)
		return nodes
	}

	if headings[0].start > 0 {
		nodes = append(nodes, paragraphNodes(source, 0, headings[0].start, 1, cfg)...)
	}

	for i, h := range headings {
		end := len(source)
		for j := i + 1; j < len(headings); j++ {
			if headings[j].level <= h.level {
				end = headings[j].start
				break
			}
		}
		span := document.Span{Start: h.start, End: end}
		nodes = append(nodes, document.Node{
			NodeType:   document.NodeSection,
			Span:       span,
			LineStart:  lineAt(source, h.start),
			LineEnd:    lineAt(source, end),
			Metadata:   document.SectionMeta{Heading: h.title, Level: uint8(h.level)},
			Name:       h.title,
			NameLower:  strings.ToLower(h.title),
			TokenCount: EstimateTokens(document.SafeSlice(source, span.Start, span.End)),
			Preview:    document.GeneratePreview(source, span, cfg.PreviewBytes),
		})

		// Code blocks and paragraphs come from this heading's own body, up to the next heading.
		bodyEnd := len(source)
		if i+1 < len(headings) {
			bodyEnd = headings[i+1].start
		}
		blocks := codeBlockNodes(source, h.start, bodyEnd, cfg)
		nodes = append(nodes, blocks...)
		if nl := strings.IndexByte(source[h.start:bodyEnd], '\n'); nl >= 0 {
		paragraphs:
			for _, p := range paragraphNodes(source, h.start+nl+1, bodyEnd, 1, cfg) {
				for _, b := range blocks {
					if p.Span.Start < b.Span.End && b.Span.Start < p.Span.End {
						continue paragraphs
					}
				}
				nodes = append(nodes, p)
			}
		}
	}

	return nodes
}

type heading struct {
	start int
	level int
	title string
}

func findHeadings(source string) []heading {
	matches := headerPattern.FindAllStringSubmatchIndex(source, -1)
	headings := make([]heading, 0, len(matches))
	for _, m := range matches {
		level := m[3] - m[2]
		title := strings.TrimSpace(source[m[4]:m[5]])
		headings = append(headings, heading{start: m[0], level: level, title: title})
	}
	return headings
}

// codeBlockNodes emits one node per fenced code block within [start, end),
// with language captured from the fence info string.
func codeBlockNodes(source string, start, end int, cfg Config) []document.Node {
	section := source[start:end]
	matches := fencedCodeBlock.FindAllStringSubmatchIndex(section, -1)

	var nodes []document.Node
	for _, m := range matches {
		lang := section[m[2]:m[3]]
		blockStart := start + m[0]
		blockEnd := start + m[1]
		span := document.Span{Start: blockStart, End: blockEnd}
		nodes = append(nodes, document.Node{
			NodeType:   document.NodeCodeBlock,
			Span:       span,
			LineStart:  lineAt(source, blockStart),
			LineEnd:    lineAt(source, blockEnd),
			Metadata:   document.CodeBlockMeta{Language: lang},
			TokenCount: EstimateTokens(document.SafeSlice(source, span.Start, span.End)),
			Preview:    document.GeneratePreview(source, span, cfg.PreviewBytes),
		})
	}
	return nodes
}

// paragraphNodes splits a region of prose into paragraph nodes on blank
// lines.
func paragraphNodes(source string, start, end int, lineOffset int, cfg Config) []document.Node {
	region := source[start:end]
	if strings.TrimSpace(region) == "" {
		return nil
	}

	var nodes []document.Node
	offset := start
	for _, para := range strings.Split(region, "\n\n") {
		if strings.TrimSpace(para) == "" {
			offset += len(para) + 2
			continue
		}
		paraStart := offset
		paraEnd := offset + len(para)
		span := document.Span{Start: paraStart, End: paraEnd}
		nodes = append(nodes, document.Node{
			NodeType:   document.NodeParagraph,
			Span:       span,
			LineStart:  lineAt(source, paraStart),
			LineEnd:    lineAt(source, paraEnd),
			Metadata:   document.ParagraphMeta{},
			TokenCount: EstimateTokens(document.SafeSlice(source, span.Start, span.End)),
			Preview:    document.GeneratePreview(source, span, cfg.PreviewBytes),
		})
		offset += len(para) + 2
	}
	return nodes
}

func lineAt(source string, byteOffset int) int {
	if byteOffset > len(source) {
		byteOffset = len(source)
	}
	return strings.Count(source[:byteOffset], "\n") + 1
}
