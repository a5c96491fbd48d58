package segment

import (
	"strings"
	"testing"
)

func sentenceText(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString("The quick brown fox jumps over the lazy dog again and again.")
	}
	return b.String()
}

func checkQueue(t *testing.T, q Queue, max int) {
	t.Helper()

	if got := q.Join(); got != q.Text {
		t.Fatalf("join does not reproduce normalized text\n got: %q\nwant: %q", got, q.Text)
	}
	for i, c := range q.Chunks {
		if CharCount(c.Text) > max {
			t.Errorf("chunk %d has %d chars, limit %d", i, CharCount(c.Text), max)
		}
		if strings.TrimSpace(q.Separator(i)) != "" {
			t.Errorf("separator after chunk %d is not whitespace: %q", i, q.Separator(i))
		}
		if c.Text != q.Text[c.Start:c.End] {
			t.Errorf("chunk %d offsets do not match its text", i)
		}
	}

	next := 0
	for i, ch := range q.Chapters {
		if ch.Index != i {
			t.Errorf("chapter %d has index %d", i, ch.Index)
		}
		if ch.StartChunk != next {
			t.Fatalf("chapter %d starts at %d, want %d", i, ch.StartChunk, next)
		}
		if ch.EndChunk < ch.StartChunk {
			t.Fatalf("chapter %d is empty: %d..%d", i, ch.StartChunk, ch.EndChunk)
		}
		for k := ch.StartChunk; k <= ch.EndChunk; k++ {
			if q.Chunks[k].ChapterIndex != i {
				t.Errorf("chunk %d belongs to chapter %d, want %d", k, q.Chunks[k].ChapterIndex, i)
			}
		}
		next = ch.EndChunk + 1
	}
	if len(q.Chunks) > 0 && next != len(q.Chunks) {
		t.Fatalf("chapters cover %d chunks, queue has %d", next, len(q.Chunks))
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"carriage returns", "a\r\nb", "a\nb"},
		{"spaces and tabs", "a  \t b", "a b"},
		{"many newlines", "a\n\n\n\n\nb", "a\n\nb"},
		{"two newlines kept", "a\n\nb", "a\n\nb"},
		{"trimmed", "  \n a b \n\n", "a b"},
		{"empty", " \t\r\n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestBuildQueueEmpty(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\n\t\r\n"} {
		q := BuildQueue(input, nil, Options{})
		if len(q.Chunks) != 0 || len(q.Chapters) != 0 {
			t.Errorf("BuildQueue(%q) returned %d chunks, %d chapters", input, len(q.Chunks), len(q.Chapters))
		}
	}
}

func TestBuildQueueLongPlainText(t *testing.T) {
	text := sentenceText(100)
	if n := CharCount(text); n < 5900 || n > 6100 {
		t.Fatalf("fixture has %d chars", n)
	}

	q := BuildQueue(text, nil, Options{Title: "Plain"})
	checkQueue(t, q, DefaultMaxChunkChars)

	if len(q.Chapters) != 1 {
		t.Fatalf("expected one synthetic chapter, got %d", len(q.Chapters))
	}
	if q.Chapters[0].Title != "Plain" {
		t.Errorf("chapter title = %q", q.Chapters[0].Title)
	}
	if len(q.Chunks) < 3 {
		t.Errorf("expected at least 3 chunks, got %d", len(q.Chunks))
	}
	for i, c := range q.Chunks {
		if !strings.HasSuffix(c.Text, ".") {
			t.Errorf("chunk %d does not end on a sentence boundary: %q", i, c.Text[len(c.Text)-20:])
		}
	}
	if got, want := q.TotalWords(), CountWords(text); got != want {
		t.Errorf("TotalWords = %d, want %d", got, want)
	}
}

func TestBuildQueuePrefersParagraphs(t *testing.T) {
	para := sentenceText(10)
	text := strings.Join([]string{para, para, para, para}, "\n\n")

	q := BuildQueue(text, nil, Options{MaxChunkChars: 1300, MinTargetChunkChars: 500})
	checkQueue(t, q, 1300)

	for i := 0; i < len(q.Chunks)-1; i++ {
		if sep := q.Separator(i); sep != "\n\n" {
			t.Errorf("separator %d = %q, want paragraph break", i, sep)
		}
	}
}

func TestBuildQueueLongWord(t *testing.T) {
	word := strings.Repeat("x", 250)
	text := "short words here " + word + " and more words"

	q := BuildQueue(text, nil, Options{MaxChunkChars: 100, MinTargetChunkChars: 10})
	checkQueue(t, q, 100)

	cut := 0
	for _, c := range q.Chunks {
		if strings.Contains(c.Text, "xxxx") {
			cut++
		}
	}
	if cut != 3 {
		t.Errorf("expected the long word to be cut into 3 pieces, got %d", cut)
	}
}

func TestBuildQueueMultibyte(t *testing.T) {
	text := strings.Repeat("é", 95)
	q := BuildQueue(text, nil, Options{MaxChunkChars: 40, MinTargetChunkChars: 10})
	checkQueue(t, q, 40)
	if len(q.Chunks) != 3 {
		t.Errorf("expected 3 chunks, got %d", len(q.Chunks))
	}
}

func TestBuildQueueChapters(t *testing.T) {
	intro := sentenceText(2)
	one := sentenceText(20)
	two := sentenceText(20)
	text := intro + "\n\n" + one + "\n\n" + two

	hints := []ChapterHint{
		{Title: "Two", StartChar: len(intro) + 2 + len(one) + 2},
		{Title: "One", StartChar: 0},
		{Title: "Duplicate", StartChar: 0},
	}
	q := BuildQueue(text, hints, Options{})
	checkQueue(t, q, DefaultMaxChunkChars)

	if len(q.Chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(q.Chapters))
	}
	if q.Chapters[0].Title != "One" || q.Chapters[1].Title != "Two" {
		t.Errorf("chapter titles = %q, %q", q.Chapters[0].Title, q.Chapters[1].Title)
	}
	if !strings.HasPrefix(q.Chunks[q.Chapters[1].StartChunk].Text, "The quick") {
		t.Errorf("second chapter starts mid sentence")
	}
}

func TestBuildQueueLeadingChapter(t *testing.T) {
	lead := sentenceText(4)
	body := sentenceText(4)
	text := lead + "\n\n" + body

	q := BuildQueue(text, []ChapterHint{{Title: "Body", StartChar: len(lead) + 2}}, Options{Title: "My Article"})
	checkQueue(t, q, DefaultMaxChunkChars)

	if len(q.Chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(q.Chapters))
	}
	if q.Chapters[0].Title != "My Article" {
		t.Errorf("leading chapter title = %q", q.Chapters[0].Title)
	}

	q = BuildQueue(text, []ChapterHint{{Title: "Body", StartChar: len(lead) + 2}}, Options{})
	if q.Chapters[0].Title != "Intro" {
		t.Errorf("leading chapter title = %q, want Intro", q.Chapters[0].Title)
	}
}

func TestBuildQueueSmallLeadIsAbsorbed(t *testing.T) {
	text := "Preface.\n\n" + sentenceText(4)
	q := BuildQueue(text, []ChapterHint{{Title: "Body", StartChar: 10}}, Options{})
	checkQueue(t, q, DefaultMaxChunkChars)

	if len(q.Chapters) != 1 || q.Chapters[0].Title != "Body" {
		t.Fatalf("expected a single chapter named Body, got %+v", q.Chapters)
	}
	if !strings.HasPrefix(q.Chunks[0].Text, "Preface.") {
		t.Errorf("first chunk = %q", q.Chunks[0].Text)
	}
}

func TestBuildQueueShortChapterMerged(t *testing.T) {
	one := sentenceText(4)
	tiny := "Tiny bit."
	three := sentenceText(4)
	text := one + "\n\n" + tiny + "\n\n" + three

	hints := []ChapterHint{
		{Title: "One", StartChar: 0},
		{Title: "Tiny", StartChar: len(one) + 2},
		{Title: "Three", StartChar: len(one) + 2 + len(tiny) + 2},
	}
	q := BuildQueue(text, hints, Options{})
	checkQueue(t, q, DefaultMaxChunkChars)

	if len(q.Chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(q.Chapters))
	}
	if q.Chapters[0].Title != "One" || q.Chapters[1].Title != "Three" {
		t.Errorf("titles = %q, %q", q.Chapters[0].Title, q.Chapters[1].Title)
	}
	last := q.Chunks[q.Chapters[0].EndChunk].Text
	if !strings.HasSuffix(last, tiny) {
		t.Errorf("short chapter was not merged into its predecessor: %q", last)
	}
}

func TestBuildQueueHintsOutOfRange(t *testing.T) {
	text := sentenceText(5)
	q := BuildQueue(text, []ChapterHint{{Title: "Late", StartChar: len(text) + 500}}, Options{Title: "Fallback"})
	checkQueue(t, q, DefaultMaxChunkChars)

	if len(q.Chapters) != 1 || q.Chapters[0].Title != "Fallback" {
		t.Fatalf("expected fallback chapter, got %+v", q.Chapters)
	}
}

func TestOptimizeMergesTrailing(t *testing.T) {
	text := "aaaa bbbb cc"
	pieces := []span{{0, 4}, {5, 9}, {10, 12}}
	got := optimize(text, pieces, 20, 6)
	if len(got) != 1 || got[0] != (span{0, 12}) {
		t.Errorf("optimize = %+v", got)
	}

	got = optimize(text, pieces, 9, 3)
	if len(got) != 2 {
		t.Fatalf("optimize = %+v", got)
	}
	if got[1] != (span{5, 12}) {
		t.Errorf("trailing piece not merged: %+v", got)
	}
}

func TestSentencesAbbreviations(t *testing.T) {
	text := "Dr. Smith met Mr. Jones at 3.14 p.m. today. They talked, etc. Then left! Done?"
	got := sentences(text, span{0, len(text)})

	var parts []string
	for _, s := range got {
		parts = append(parts, text[s.start:s.end])
	}
	want := []string{
		"Dr. Smith met Mr. Jones at 3.14 p.m. today.",
		"They talked, etc.",
		"Then left!",
		"Done?",
	}
	if strings.Join(parts, "|") != strings.Join(want, "|") {
		t.Errorf("sentences = %q", parts)
	}
}
