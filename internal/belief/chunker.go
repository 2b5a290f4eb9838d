package belief

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// DefaultChunkSize and DefaultChunkOverlap govern document splitting when
// the configuration leaves them unset.
const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200
)

// ChunkText splits a document into rune-safe chunks of roughly size
// characters, with overlap characters repeated between neighbors so a fact
// straddling a boundary still lands whole in at least one chunk. Cuts prefer
// paragraph, line, sentence, then word boundaries near the chunk end.
// Whitespace-only input yields nil.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}

	rs := []rune(strings.TrimSpace(text))
	if len(rs) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(rs) {
		end := start + size
		if end >= len(rs) {
			if chunk := strings.TrimSpace(string(rs[start:])); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}
		cut := breakPoint(rs, start, end)
		if chunk := strings.TrimSpace(string(rs[start:cut])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

// breakPoint searches backwards from end for a natural boundary, staying
// within the final quarter of the window so chunks keep close to full size.
func breakPoint(rs []rune, start, end int) int {
	floor := end - (end-start)/4

	// Paragraph break
	for i := end; i > floor; i-- {
		if rs[i-1] == '\n' && i >= 2 && rs[i-2] == '\n' {
			return i
		}
	}
	// Line break
	for i := end; i > floor; i-- {
		if rs[i-1] == '\n' {
			return i
		}
	}
	// Sentence end
	for i := end; i > floor; i-- {
		if i >= 2 && unicode.IsSpace(rs[i-1]) {
			switch rs[i-2] {
			case '.', '!', '?':
				return i
			}
		}
	}
	// Word boundary
	for i := end; i > floor; i-- {
		if unicode.IsSpace(rs[i-1]) {
			return i
		}
	}
	return end
}

// supportedDocExt reports whether a dropped file is a document the ingestion
// pipeline understands.
func supportedDocExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown", ".html", ".htm":
		return true
	default:
		return false
	}
}

// ExtractDocumentText turns raw file bytes into plain text ready for
// chunking. HTML files are stripped to their visible text; everything else
// passes through as-is.
func ExtractDocumentText(path string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return stripHTML(data)
	default:
		return string(data), nil
	}
}

// stripHTML extracts the visible text of an HTML document, dropping script,
// style, and noscript subtrees.
func stripHTML(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				sb.WriteString(text)
				sb.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String(), nil
}
