package indexer

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// MarkdownNormalizer converts markdown content into the normalized plain
// text the chunker consumes, preserving the structural markers the chunker
// uses as semantic boundaries (heading hashes, list dashes, table pipes).
type MarkdownNormalizer struct {
	parser goldmark.Markdown
}

// NewMarkdownNormalizer creates a normalizer with table support.
func NewMarkdownNormalizer() *MarkdownNormalizer {
	return &MarkdownNormalizer{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

// Normalize parses markdown and returns the document title and normalized
// text. Title resolution: first level-1 heading, else first level-2 heading,
// else the filename without extension with words capitalized.
func (n *MarkdownNormalizer) Normalize(content []byte, filename string) (title, normalized string) {
	if len(content) == 0 {
		return titleFromFilename(filename), ""
	}

	reader := text.NewReader(content)
	doc := n.parser.Parser().Parse(reader)

	title = extractTitle(doc, content, filename)
	normalized = renderPlainText(doc, content)
	return title, normalized
}

// extractTitle finds the first H1 (or H2 when no H1 exists) in the document.
func extractTitle(doc ast.Node, content []byte, filename string) string {
	var firstH1, firstH2 string

	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := node.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}

		headingText := nodeText(heading, content)
		switch {
		case heading.Level == 1 && firstH1 == "":
			firstH1 = headingText
		case heading.Level == 2 && firstH2 == "" && firstH1 == "":
			firstH2 = headingText
		}
		if firstH1 != "" {
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})

	if firstH1 != "" {
		return firstH1
	}
	if firstH2 != "" {
		return firstH2
	}
	return titleFromFilename(filename)
}

// titleFromFilename strips the extension and capitalizes each word.
func titleFromFilename(filename string) string {
	name := filepath.Base(filename)
	if ext := filepath.Ext(name); ext != "" {
		name = name[:len(name)-len(ext)]
	}
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)

	words := strings.Fields(name)
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// renderPlainText walks the AST and emits plain text with lightweight
// structural markers: "# " heading prefixes, "- " list bullets, " | " table
// cell separators, blank lines between blocks.
func renderPlainText(doc ast.Node, content []byte) string {
	var b strings.Builder

	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := node.(type) {
		case *ast.Heading:
			writeBlockBreak(&b)
			b.WriteString(strings.Repeat("#", n.Level))
			b.WriteString(" ")
			b.WriteString(nodeText(n, content))
			b.WriteString("\n")
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph:
			if _, inItem := n.Parent().(*ast.ListItem); inItem {
				return ast.WalkContinue, nil
			}
			writeBlockBreak(&b)
			b.WriteString(nodeText(n, content))
			b.WriteString("\n")
			return ast.WalkSkipChildren, nil

		case *ast.ListItem:
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
				b.WriteString("\n")
			}
			b.WriteString("- ")
			b.WriteString(nodeText(n, content))
			b.WriteString("\n")
			return ast.WalkSkipChildren, nil

		case *ast.CodeBlock:
			writeBlockBreak(&b)
			writeCodeLines(&b, n.Lines(), content)
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock:
			writeBlockBreak(&b)
			writeCodeLines(&b, n.Lines(), content)
			return ast.WalkSkipChildren, nil
		}

		// The table extension registers its own node kinds; detect them by
		// kind name as the concrete types live in a separate package.
		kindName := node.Kind().String()
		if strings.Contains(kindName, "TableRow") || strings.Contains(kindName, "TableHeader") {
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
				b.WriteString("\n")
			}
			b.WriteString(tableRowText(node, content))
			b.WriteString("\n")
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(b.String())
}

func writeBlockBreak(b *strings.Builder) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
}

func writeCodeLines(b *strings.Builder, lines *text.Segments, content []byte) {
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.Write(line.Value(content))
	}
}

// nodeText extracts the concatenated text content of a node.
func nodeText(n ast.Node, content []byte) string {
	var b strings.Builder

	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(content))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteString(" ")
			}
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(b.String())
}

// tableRowText renders a table row as pipe-separated cell text.
func tableRowText(row ast.Node, content []byte) string {
	var b strings.Builder
	cells := 0

	_ = ast.Walk(row, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if strings.Contains(node.Kind().String(), "TableCell") {
			if cells > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(nodeText(node, content))
			cells++
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return b.String()
}
