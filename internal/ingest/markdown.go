// Package ingest imports markdown documents into the memory store so
// the agent can recall them later. Documents are chunked by heading
// and each chunk becomes one memory record.
package ingest

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"github.com/hafizlabs/hafiz-agent/internal/memory"
)

// Importer splits markdown into heading-scoped chunks and writes them
// to the memory store under a fixed source label.
type Importer struct {
	store  *memory.Store
	source string
	tag    string
}

// NewImporter creates an importer. Source identifies the document for
// clean re-imports; tag is attached to every stored memory.
func NewImporter(store *memory.Store, source, tag string) *Importer {
	return &Importer{store: store, source: source, tag: tag}
}

// Chunk is one heading-scoped unit of the document.
type Chunk struct {
	// Key is the slugified heading path, e.g. "care-guide/watering".
	Key     string
	Content string
}

// ImportFile reads a markdown file and stores its chunks.
func (m *Importer) ImportFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}
	return m.importChunks(ctx, parseMarkdown(data))
}

// ImportString stores chunks parsed from markdown content.
func (m *Importer) ImportString(ctx context.Context, content string) (int, error) {
	return m.importChunks(ctx, parseMarkdown([]byte(content)))
}

func (m *Importer) importChunks(ctx context.Context, chunks []Chunk) (int, error) {
	// Drop the previous import of this source so re-imports replace
	// rather than duplicate.
	if _, err := m.store.DeleteBySource(ctx, m.source); err != nil {
		return 0, fmt.Errorf("clear source %q: %w", m.source, err)
	}

	count := 0
	for _, chunk := range chunks {
		text := chunk.Key + ": " + chunk.Content
		if _, err := m.store.RememberImported(ctx, text, m.tag, m.source); err != nil {
			return count, fmt.Errorf("store chunk %q: %w", chunk.Key, err)
		}
		count++
	}
	return count, nil
}

// parseMarkdown walks the goldmark AST and cuts the document at every
// heading up to level 3. Deeper headings stay inside their parent
// chunk. Text before the first heading is dropped.
func parseMarkdown(src []byte) []Chunk {
	doc := goldmark.DefaultParser().Parse(gmtext.NewReader(src))

	var (
		chunks  []Chunk
		levels  [3]string
		lastKey string
		content strings.Builder
	)

	flush := func() {
		text := strings.TrimSpace(content.String())
		if text != "" && lastKey != "" {
			chunks = append(chunks, Chunk{Key: lastKey, Content: text})
		}
		content.Reset()
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Heading:
			if !entering {
				return ast.WalkContinue, nil
			}
			if node.Level > 3 {
				content.WriteString(nodeText(node, src) + "\n")
				return ast.WalkSkipChildren, nil
			}
			flush()
			levels[node.Level-1] = slugify(nodeText(node, src))
			for i := node.Level; i < len(levels); i++ {
				levels[i] = ""
			}
			lastKey = joinKey(levels[:node.Level])
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock:
			if entering {
				writeLines(&content, node.Lines(), src)
			}
			return ast.WalkSkipChildren, nil

		case *ast.CodeBlock:
			if entering {
				writeLines(&content, node.Lines(), src)
			}
			return ast.WalkSkipChildren, nil

		case *ast.Text:
			if entering {
				content.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					content.WriteByte('\n')
				}
			}

		case *ast.Paragraph, *ast.TextBlock:
			if !entering {
				content.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	flush()

	return chunks
}

func writeLines(b *strings.Builder, lines *gmtext.Segments, src []byte) {
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
}

// nodeText collects the plain text beneath a node, ignoring inline
// markup.
func nodeText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := c.(*ast.Text); ok && entering {
			b.Write(t.Segment.Value(src))
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func joinKey(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// slugify converts a heading to a key-friendly format.
func slugify(s string) string {
	s = strings.ToLower(s)
	s = slugPattern.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
