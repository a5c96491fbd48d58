package source

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/atotto/clipboard"
	"github.com/synfinner/auraspeech-tts/internal/segment"
	"golang.org/x/text/unicode/norm"
)

const (
	// MinArticleWords is the shortest text treated as an article.
	MinArticleWords = 250

	// MaxArticleChars caps the text taken from one article.
	MaxArticleChars = 220_000

	minHeadingChars = 3
)

var (
	// ErrNoArticle is returned when no readable article was found.
	ErrNoArticle = errors.New("no readable article found")

	// ErrNoSelection is returned when there is no selected text.
	ErrNoSelection = errors.New("no text selected")
)

// Article is readable text with chapter hints taken from its headings.
type Article struct {
	Title string
	URL   string
	Text  string
	Hints []segment.ChapterHint
}

// Provider supplies text to narrate.
type Provider interface {
	DetectArticle(ctx context.Context) (Article, error)
	SelectedText(ctx context.Context) (string, error)
}

// Clipboard reads the selection from the system clipboard.
type Clipboard struct{}

// SelectedText returns the clipboard contents.
func (Clipboard) SelectedText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(norm.NFC.String(text))
	if text == "" {
		return "", ErrNoSelection
	}
	return text, nil
}

// limitArticle enforces the article word minimum and character cap,
// cutting an over-long text after its last full sentence.
func limitArticle(a Article) (Article, error) {
	if segment.CountWords(a.Text) < MinArticleWords {
		return a, ErrNoArticle
	}
	if utf8.RuneCountInString(a.Text) <= MaxArticleChars {
		return a, nil
	}

	n, runes := 0, 0
	for n < len(a.Text) && runes < MaxArticleChars {
		_, size := utf8.DecodeRuneInString(a.Text[n:])
		n += size
		runes++
	}
	cut := a.Text[:n]
	if i := strings.LastIndex(cut, "."); i > 0 {
		cut = cut[:i+1]
	}
	a.Text = cut

	hints := a.Hints[:0:0]
	for _, h := range a.Hints {
		if h.StartChar < len(cut) {
			hints = append(hints, h)
		}
	}
	a.Hints = hints
	return a, nil
}

// hintFilter drops headings that are too short or repeat an earlier one.
type hintFilter map[string]bool

func (seen hintFilter) keep(title string) bool {
	title = strings.TrimSpace(title)
	if len([]rune(title)) < minHeadingChars {
		return false
	}
	k := strings.ToLower(title)
	if seen[k] {
		return false
	}
	seen[k] = true
	return true
}
