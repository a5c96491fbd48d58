package segment

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	// DefaultMaxChunkChars is the chunk ceiling used when no adaptive
	// ceiling is supplied.
	DefaultMaxChunkChars = 2400
	// DefaultMinTargetChunkChars is the size the optimize pass grows small
	// chunks toward.
	DefaultMinTargetChunkChars = 900
	// HardMaxChunkChars is the protocol limit for a single request input.
	HardMaxChunkChars = 4096

	leadingChapterThreshold = 160
	minChapterChars         = 80
)

// ErrNothingToNarrate is returned when the input holds no speakable text.
var ErrNothingToNarrate = errors.New("nothing to narrate")

// ChapterHint marks where a chapter starts in the raw input text. StartChar
// is a byte offset into the text passed to BuildQueue.
type ChapterHint struct {
	Title     string
	StartChar int
}

// Chunk is one speakable unit of the queue. Start and End are byte offsets
// into the normalized text.
type Chunk struct {
	Text         string
	ChapterIndex int
	WordCount    int
	Start        int
	End          int
}

// Chapter groups a contiguous, inclusive range of chunks.
type Chapter struct {
	Index      int
	Title      string
	StartChunk int
	EndChunk   int
	WordCount  int
}

// Options tunes BuildQueue. Zero values select the defaults.
type Options struct {
	MaxChunkChars       int
	MinTargetChunkChars int

	// Title names the synthetic chapter used when there are no hints or a
	// leading chapter has to be inserted.
	Title string
}

func (o Options) withDefaults() Options {
	if o.MaxChunkChars <= 0 {
		o.MaxChunkChars = DefaultMaxChunkChars
	}
	if o.MaxChunkChars > HardMaxChunkChars {
		o.MaxChunkChars = HardMaxChunkChars
	}
	if o.MinTargetChunkChars <= 0 {
		o.MinTargetChunkChars = DefaultMinTargetChunkChars
	}
	if o.MinTargetChunkChars > o.MaxChunkChars {
		o.MinTargetChunkChars = o.MaxChunkChars
	}
	return o
}

// Queue is the result of segmenting a document.
type Queue struct {
	Text     string
	Chunks   []Chunk
	Chapters []Chapter
}

// TotalWords sums the word counts of every chunk.
func (q Queue) TotalWords() int {
	n := 0
	for _, c := range q.Chunks {
		n += c.WordCount
	}
	return n
}

// TotalChars is the character length of the normalized text.
func (q Queue) TotalChars() int {
	return CharCount(q.Text)
}

// ChapterOf returns the chapter holding chunk index i, or -1.
func (q Queue) ChapterOf(i int) int {
	if i < 0 || i >= len(q.Chunks) {
		return -1
	}
	return q.Chunks[i].ChapterIndex
}

// WordsBefore counts the words of every chunk ahead of index i.
func (q Queue) WordsBefore(i int) int {
	n := 0
	for k := 0; k < i && k < len(q.Chunks); k++ {
		n += q.Chunks[k].WordCount
	}
	return n
}

// BuildQueue normalizes text and splits it into chunks grouped by chapter.
// Whitespace-only input yields an empty queue.
func BuildQueue(text string, hints []ChapterHint, opts Options) Queue {
	opts = opts.withDefaults()
	norm, offsets := normalize(text)
	q := Queue{Text: norm}
	if norm == "" {
		return q
	}

	markers := resolveMarkers(norm, offsets, hints, opts.Title)
	if len(markers) > 0 {
		q.Chunks, q.Chapters = chunkChapters(norm, markers, opts)
	}
	if len(q.Chunks) == 0 {
		title := opts.Title
		if title == "" {
			title = "Article"
		}
		q.Chunks, q.Chapters = chunkChapters(norm, []marker{{title: title, start: 0}}, opts)
	}
	return q
}

type marker struct {
	title string
	start int
}

// resolveMarkers maps hint offsets into the normalized text and applies the
// chapter rules: sort, dedupe, a leading chapter, and merging of short spans.
func resolveMarkers(norm string, offsets []int, hints []ChapterHint, fallback string) []marker {
	if len(hints) == 0 {
		return nil
	}

	ms := make([]marker, 0, len(hints))
	for i, h := range hints {
		raw := h.StartChar
		if raw < 0 {
			raw = 0
		}
		if raw > len(offsets)-1 {
			raw = len(offsets) - 1
		}
		title := strings.TrimSpace(h.Title)
		if title == "" {
			title = fmt.Sprintf("Chapter %d", i+1)
		}
		ms = append(ms, marker{title: title, start: offsets[raw]})
	}
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].start < ms[j].start })

	deduped := ms[:0]
	for _, m := range ms {
		if m.start >= len(norm) {
			continue
		}
		if len(deduped) > 0 && deduped[len(deduped)-1].start == m.start {
			continue
		}
		deduped = append(deduped, m)
	}
	ms = deduped
	if len(ms) == 0 {
		return nil
	}

	if ms[0].start > 0 {
		if CharCount(norm[:ms[0].start]) > leadingChapterThreshold {
			title := fallback
			if title == "" {
				title = "Intro"
			}
			ms = append([]marker{{title: title, start: 0}}, ms...)
		} else {
			ms[0].start = 0
		}
	}

	for len(ms) > 1 {
		short := -1
		for i := range ms {
			end := len(norm)
			if i+1 < len(ms) {
				end = ms[i+1].start
			}
			if CharCount(strings.TrimSpace(norm[ms[i].start:end])) < minChapterChars {
				short = i
				break
			}
		}
		if short < 0 {
			break
		}
		if short == 0 {
			ms[1].start = 0
			ms = ms[1:]
			continue
		}
		ms = append(ms[:short], ms[short+1:]...)
	}
	return ms
}

func chunkChapters(norm string, markers []marker, opts Options) ([]Chunk, []Chapter) {
	var (
		chunks   []Chunk
		chapters []Chapter
	)
	for i, m := range markers {
		end := len(norm)
		if i+1 < len(markers) {
			end = markers[i+1].start
		}
		pieces := splitSpan(norm, span{m.start, end}, opts.MaxChunkChars)
		pieces = optimize(norm, pieces, opts.MaxChunkChars, opts.MinTargetChunkChars)
		if len(pieces) == 0 {
			continue
		}

		ch := Chapter{
			Index:      len(chapters),
			Title:      m.title,
			StartChunk: len(chunks),
		}
		for _, p := range pieces {
			body := norm[p.start:p.end]
			wc := CountWords(body)
			chunks = append(chunks, Chunk{
				Text:         body,
				ChapterIndex: ch.Index,
				WordCount:    wc,
				Start:        p.start,
				End:          p.end,
			})
			ch.WordCount += wc
		}
		ch.EndChunk = len(chunks) - 1
		chapters = append(chapters, ch)
	}
	return chunks, chapters
}

// optimize merges neighbouring pieces while the running piece is below
// minTarget and the merge still fits max. A small trailing piece is folded
// into its predecessor when it fits.
func optimize(text string, pieces []span, max, minTarget int) []span {
	if len(pieces) < 2 {
		return pieces
	}
	out := make([]span, 0, len(pieces))
	cur := pieces[0]
	for _, p := range pieces[1:] {
		merged := span{cur.start, p.end}
		if charLen(text, cur) < minTarget && charLen(text, merged) <= max {
			cur = merged
			continue
		}
		out = append(out, cur)
		cur = p
	}
	out = append(out, cur)

	if n := len(out); n > 1 && charLen(text, out[n-1]) < minTarget {
		merged := span{out[n-2].start, out[n-1].end}
		if charLen(text, merged) <= max {
			out[n-2] = merged
			out = out[:n-1]
		}
	}
	return out
}

// Separator returns the text between chunk i and chunk i+1 in the normalized
// document: a paragraph break, a single space, or nothing after a hard split.
func (q Queue) Separator(i int) string {
	if i < 0 || i+1 >= len(q.Chunks) {
		return ""
	}
	return q.Text[q.Chunks[i].End:q.Chunks[i+1].Start]
}

// Join reassembles the normalized text from the chunks.
func (q Queue) Join() string {
	var b strings.Builder
	for i, c := range q.Chunks {
		b.WriteString(c.Text)
		b.WriteString(q.Separator(i))
	}
	return b.String()
}
