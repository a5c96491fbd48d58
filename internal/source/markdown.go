package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/synfinner/auraspeech-tts/internal/segment"
	"github.com/synfinner/auraspeech-tts/utils"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"
)

// maxDocumentBytes bounds what is read from a URL.
const maxDocumentBytes = 8 << 20

// Document is an article read from a Markdown or plain-text file. Its
// selection comes from the clipboard.
type Document struct {
	Clipboard

	path  string
	stdin io.Reader

	once    sync.Once
	article Article
	err     error
}

// NewDocument reads path, or stdin when path is "-". The file is read
// once, on the first DetectArticle.
func NewDocument(path string, stdin io.Reader) *Document {
	return &Document{path: path, stdin: stdin}
}

// DetectArticle returns the document's text and chapter hints.
func (d *Document) DetectArticle(ctx context.Context) (Article, error) {
	if err := ctx.Err(); err != nil {
		return Article{}, err
	}
	d.once.Do(func() {
		d.article, d.err = d.load(ctx)
	})
	return d.article, d.err
}

func (d *Document) load(ctx context.Context) (Article, error) {
	data, err := d.read(ctx)
	if err != nil {
		return Article{}, fmt.Errorf("read %s: %w", d.path, err)
	}

	a := ParseMarkdown(utils.RemoveFrontmatter(data))
	if a.Title == "" && d.path != "-" {
		base := path.Base(d.path)
		a.Title = strings.TrimSuffix(base, path.Ext(base))
	}
	a.URL, err = PageURL(d.path)
	if err != nil {
		return Article{}, err
	}

	a, err = limitArticle(a)
	if err != nil {
		return Article{}, fmt.Errorf("%s: %w", d.path, err)
	}
	log.Debug("Loaded article", "path", d.path, "title", a.Title, "chapters", len(a.Hints), "words", segment.CountWords(a.Text))
	return a, nil
}

func (d *Document) read(ctx context.Context) ([]byte, error) {
	switch {
	case d.path == "-":
		return io.ReadAll(d.stdin)

	case utils.IsURL(d.path):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.path, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("unable to get url: %w", err)
		}
		defer resp.Body.Close() //nolint:errcheck
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))

	default:
		return os.ReadFile(utils.ExpandPath(d.path))
	}
}

// PageURL returns the page identity of a document path. Stdin has none.
func PageURL(path string) (string, error) {
	if path == "" || path == "-" {
		return "", nil
	}
	if utils.IsURL(path) {
		return path, nil
	}
	abs, err := filepath.Abs(utils.ExpandPath(path))
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// ParseMarkdown extracts speakable text from Markdown. Headings become
// chapter hints; code, HTML and images are left out. The first level-one
// heading is the title.
func ParseMarkdown(src []byte) Article {
	reader := text.NewReader(src)
	doc := goldmark.New().Parser().Parse(reader)

	x := &extractor{source: reader.Source(), seen: hintFilter{}}
	x.block(doc)
	return Article{Title: x.title, Text: x.out.String(), Hints: x.hints}
}

type extractor struct {
	source []byte
	out    strings.Builder
	hints  []segment.ChapterHint
	seen   hintFilter
	title  string
}

func (x *extractor) block(node ast.Node) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.ThematicBreak:
		return

	case *ast.Heading:
		title := x.inlineText(n)
		if title == "" {
			return
		}
		if n.Level == 1 && x.title == "" {
			x.title = title
		}
		x.startBlock()
		if x.seen.keep(title) {
			x.hints = append(x.hints, segment.ChapterHint{Title: title, StartChar: x.out.Len()})
		}
		x.writeSentence(title)
		return

	case *ast.Paragraph, *ast.TextBlock:
		if t := x.inlineText(n); t != "" {
			x.startBlock()
			x.writeSentence(t)
		}
		return
	}

	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		x.block(c)
	}
}

func (x *extractor) startBlock() {
	if x.out.Len() > 0 {
		x.out.WriteString("\n\n")
	}
}

// writeSentence writes t, closing it with a period so it is read as a
// sentence of its own.
func (x *extractor) writeSentence(t string) {
	x.out.WriteString(t)
	if !strings.ContainsAny(t[len(t)-1:], ".!?:;") {
		x.out.WriteByte('.')
	}
}

func (x *extractor) inlineText(node ast.Node) string {
	var b strings.Builder
	x.inline(node, &b)
	return strings.Join(strings.Fields(b.String()), " ")
}

func (x *extractor) inline(node ast.Node, b *strings.Builder) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		switch n := c.(type) {
		case *ast.Text:
			b.WriteString(norm.NFC.String(string(n.Segment.Value(x.source))))
			if n.SoftLineBreak() || n.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.WriteString(norm.NFC.String(string(n.Value)))
		case *ast.Image, *ast.AutoLink, *ast.RawHTML:
			// not speakable
		default:
			x.inline(n, b)
		}
	}
}
