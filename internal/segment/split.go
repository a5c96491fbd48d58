package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// span is a half-open byte range into the normalized text.
type span struct {
	start, end int
}

func (s span) empty() bool { return s.end <= s.start }

func charLen(text string, s span) int {
	return utf8.RuneCountInString(text[s.start:s.end])
}

// trim shrinks s so it neither starts nor ends with whitespace.
func trim(text string, s span) span {
	for s.start < s.end && isSpace(text[s.start]) {
		s.start++
	}
	for s.end > s.start && isSpace(text[s.end-1]) {
		s.end--
	}
	return s
}

// splitSpan breaks s into pieces of at most max characters, preferring
// paragraph breaks, then sentence ends, then word gaps. A single word is cut
// only when it alone is longer than max.
func splitSpan(text string, s span, max int) []span {
	var out []span
	for _, p := range paragraphs(text, s) {
		if charLen(text, p) <= max {
			out = append(out, p)
			continue
		}
		out = append(out, pack(text, sentences(text, p), max, func(sentence span) []span {
			return pack(text, words(text, sentence), max, func(word span) []span {
				return hardSplit(text, word, max)
			})
		})...)
	}
	return out
}

// pack greedily joins consecutive pieces while the joined span fits max.
// Pieces that are too long on their own are handed to split.
func pack(text string, pieces []span, max int, split func(span) []span) []span {
	var out []span
	cur := span{-1, -1}
	flush := func() {
		if cur.start >= 0 {
			out = append(out, cur)
			cur = span{-1, -1}
		}
	}
	for _, p := range pieces {
		if charLen(text, p) > max {
			flush()
			out = append(out, split(p)...)
			continue
		}
		if cur.start < 0 {
			cur = p
			continue
		}
		if charLen(text, span{cur.start, p.end}) <= max {
			cur.end = p.end
			continue
		}
		flush()
		cur = p
	}
	flush()
	return out
}

func paragraphs(text string, s span) []span {
	var out []span
	start := s.start
	for {
		i := strings.Index(text[start:s.end], "\n\n")
		if i < 0 {
			break
		}
		if p := trim(text, span{start, start + i}); !p.empty() {
			out = append(out, p)
		}
		start += i + 2
	}
	if p := trim(text, span{start, s.end}); !p.empty() {
		out = append(out, p)
	}
	return out
}

// sentences splits s after terminal punctuation followed by whitespace, and
// at single line breaks.
func sentences(text string, s span) []span {
	var out []span
	start := s.start
	for i := s.start; i < s.end; i++ {
		c := text[i]
		if c == '\n' {
			if p := trim(text, span{start, i}); !p.empty() {
				out = append(out, p)
			}
			start = i + 1
			continue
		}
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		j := i + 1
		for j < s.end && isClosing(text[j]) {
			j++
		}
		if j < s.end && !isSpace(text[j]) {
			continue
		}
		if c == '.' && !abbreviationEnds(text, s.start, i, j, s.end) {
			continue
		}
		if p := trim(text, span{start, j}); !p.empty() {
			out = append(out, p)
		}
		start = j
		i = j - 1
	}
	if p := trim(text, span{start, s.end}); !p.empty() {
		out = append(out, p)
	}
	return out
}

// abbreviationEnds reports whether the period at dot ends a sentence. Title
// abbreviations never do; other known abbreviations only do when the next
// word is capitalized.
func abbreviationEnds(text string, lo, dot, after, hi int) bool {
	w := dot
	for w > lo && !isSpace(text[w-1]) {
		w--
	}
	word := strings.ToLower(strings.TrimLeft(text[w:dot], "(\"'"))
	if titleAbbreviations[word] {
		return false
	}
	if !abbreviations[word] {
		return true
	}
	for after < hi && isSpace(text[after]) {
		after++
	}
	if after >= hi {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[after:hi])
	return unicode.IsUpper(r)
}

func isClosing(c byte) bool {
	switch c {
	case '"', '\'', ')', ']', '.', '!', '?':
		return true
	}
	return false
}

func words(text string, s span) []span {
	var out []span
	start := -1
	for i := s.start; i < s.end; i++ {
		if isSpace(text[i]) {
			if start >= 0 {
				out = append(out, span{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, span{start, s.end})
	}
	return out
}

// hardSplit cuts s every max characters on rune boundaries.
func hardSplit(text string, s span, max int) []span {
	var out []span
	start, n := s.start, 0
	for i := range text[s.start:s.end] {
		if n == max {
			out = append(out, span{start, s.start + i})
			start, n = s.start+i, 0
		}
		n++
	}
	if start < s.end {
		out = append(out, span{start, s.end})
	}
	return out
}

var titleAbbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "ph.d": true, "m.d": true,
}

var abbreviations = map[string]bool{
	"etc": true, "vs": true, "e.g": true, "i.e": true, "cf": true,
	"inc": true, "ltd": true, "co": true, "corp": true, "no": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true,
	"jul": true, "aug": true, "sep": true, "sept": true, "oct": true,
	"nov": true, "dec": true, "approx": true, "fig": true, "vol": true,
	"ft": true, "in": true, "mi": true, "km": true, "kg": true,
	"lb": true, "oz": true, "sec": true, "min": true, "hr": true,
	"u.s": true, "u.k": true, "a.m": true, "p.m": true,
}
