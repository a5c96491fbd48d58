package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/synfinner/auraspeech-tts/internal/segment"
)

func TestParseMarkdown(t *testing.T) {
	src := "# The Title\n\n" +
		"Intro paragraph with *emphasis* and a [link](http://example.com)\n\n" +
		"## Part One\n\n" +
		"Some text here.\n\n" +
		"```go\nfmt.Println(\"code\")\n```\n\n" +
		"![diagram](d.png)\n\n" +
		"## part one\n\n" +
		"## Go\n\n" +
		"More text!\n"

	a := ParseMarkdown([]byte(src))

	if a.Title != "The Title" {
		t.Errorf("title = %q", a.Title)
	}
	want := "The Title.\n\n" +
		"Intro paragraph with emphasis and a link.\n\n" +
		"Part One.\n\n" +
		"Some text here.\n\n" +
		"part one.\n\n" +
		"Go.\n\n" +
		"More text!"
	if a.Text != want {
		t.Errorf("text =\n%q\nwant\n%q", a.Text, want)
	}
	if strings.Contains(a.Text, "Println") {
		t.Error("code block leaked into text")
	}

	if len(a.Hints) != 2 {
		t.Fatalf("got %d hints, want 2: %+v", len(a.Hints), a.Hints)
	}
	if a.Hints[0].Title != "The Title" || a.Hints[0].StartChar != 0 {
		t.Errorf("hint 0 = %+v", a.Hints[0])
	}
	if a.Hints[1].Title != "Part One" || a.Hints[1].StartChar != strings.Index(a.Text, "Part One") {
		t.Errorf("hint 1 = %+v", a.Hints[1])
	}
}

func TestLimitArticle(t *testing.T) {
	t.Run("too short", func(t *testing.T) {
		_, err := limitArticle(Article{Text: strings.Repeat("word ", MinArticleWords-1)})
		if !errors.Is(err, ErrNoArticle) {
			t.Fatalf("err = %v, want ErrNoArticle", err)
		}
	})

	t.Run("fits", func(t *testing.T) {
		text := strings.Repeat("word ", MinArticleWords)
		a, err := limitArticle(Article{Text: text})
		if err != nil {
			t.Fatal(err)
		}
		if a.Text != text {
			t.Error("text was modified")
		}
	})

	t.Run("truncated at sentence", func(t *testing.T) {
		sentence := "Ünïcode words end here. "
		text := strings.Repeat(sentence, MaxArticleChars/utf8.RuneCountInString(sentence)+10)
		late := segment.ChapterHint{Title: "Late", StartChar: len(text) - 5}
		early := segment.ChapterHint{Title: "Early", StartChar: 0}

		a, err := limitArticle(Article{Text: text, Hints: []segment.ChapterHint{early, late}})
		if err != nil {
			t.Fatal(err)
		}
		if n := utf8.RuneCountInString(a.Text); n > MaxArticleChars {
			t.Errorf("kept %d runes", n)
		}
		if !strings.HasSuffix(a.Text, ".") {
			t.Errorf("text does not end at a sentence: %q", a.Text[len(a.Text)-20:])
		}
		if !utf8.ValidString(a.Text) {
			t.Error("cut inside a rune")
		}
		if len(a.Hints) != 1 || a.Hints[0].Title != "Early" {
			t.Errorf("hints = %+v", a.Hints)
		}
	})
}

func TestHintFilter(t *testing.T) {
	seen := hintFilter{}
	tests := []struct {
		title string
		want  bool
	}{
		{"Introduction", true},
		{"introduction", false},
		{"Go", false},
		{"  Setup  ", true},
		{"SETUP", false},
	}
	for _, tc := range tests {
		if got := seen.keep(tc.title); got != tc.want {
			t.Errorf("keep(%q) = %v, want %v", tc.title, got, tc.want)
		}
	}
}

func TestPageURL(t *testing.T) {
	for _, p := range []string{"", "-"} {
		u, err := PageURL(p)
		if err != nil || u != "" {
			t.Errorf("PageURL(%q) = %q, %v", p, u, err)
		}
	}

	u, err := PageURL("https://example.com/post")
	if err != nil || u != "https://example.com/post" {
		t.Errorf("url passthrough = %q, %v", u, err)
	}

	u, err = PageURL("notes.md")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(u, "file://") || !strings.HasSuffix(u, "/notes.md") {
		t.Errorf("file url = %q", u)
	}
}

func TestDocument(t *testing.T) {
	body := "---\nauthor: me\n---\n# Essay\n\n" + strings.Repeat("A sentence of words. ", 100)
	path := filepath.Join(t.TempDir(), "essay.md")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	d := NewDocument(path, nil)
	a, err := d.DetectArticle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if a.Title != "Essay" {
		t.Errorf("title = %q", a.Title)
	}
	if strings.Contains(a.Text, "author") {
		t.Error("frontmatter was read aloud")
	}
	if !strings.HasPrefix(a.URL, "file://") {
		t.Errorf("url = %q", a.URL)
	}

	stdin := NewDocument("-", strings.NewReader("too short"))
	if _, err := stdin.DetectArticle(context.Background()); !errors.Is(err, ErrNoArticle) {
		t.Errorf("short stdin err = %v, want ErrNoArticle", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDocument(path, nil).DetectArticle(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled err = %v", err)
	}
}
