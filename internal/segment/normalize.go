package segment

import (
	"strings"
	"unicode/utf8"
)

// Normalize collapses whitespace the way every length limit in this package
// expects: carriage returns are dropped, runs of spaces and tabs become a
// single space, three or more newlines become one paragraph break, and the
// result is trimmed.
func Normalize(text string) string {
	out, _ := normalize(text)
	return out
}

// normalize returns the normalized text together with a map from every byte
// offset of the raw input (0..len(text)) to the matching normalized offset.
func normalize(text string) (string, []int) {
	var b strings.Builder
	b.Grow(len(text))
	offsets := make([]int, len(text)+1)

	i := 0
	for i < len(text) {
		switch c := text[i]; c {
		case '\r':
			offsets[i] = b.Len()
			i++

		case ' ', '\t':
			pos := b.Len()
			j := i
			for j < len(text) && (text[j] == ' ' || text[j] == '\t' || text[j] == '\r') {
				offsets[j] = pos
				j++
			}
			b.WriteByte(' ')
			i = j

		case '\n':
			pos := b.Len()
			newlines := 0
			j := i
			for j < len(text) && (text[j] == '\n' || text[j] == '\r') {
				if text[j] == '\n' {
					newlines++
				}
				offsets[j] = pos
				j++
			}
			if newlines > 2 {
				newlines = 2
			}
			b.WriteString(strings.Repeat("\n", newlines))
			i = j

		default:
			offsets[i] = b.Len()
			b.WriteByte(c)
			i++
		}
	}
	offsets[len(text)] = b.Len()

	out := b.String()
	lead := 0
	for lead < len(out) && isSpace(out[lead]) {
		lead++
	}
	trail := len(out)
	for trail > lead && isSpace(out[trail-1]) {
		trail--
	}
	out = out[lead:trail]

	for k, o := range offsets {
		o -= lead
		if o < 0 {
			o = 0
		}
		if o > len(out) {
			o = len(out)
		}
		offsets[k] = o
	}
	return out, offsets
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t'
}

// CountWords returns the number of whitespace separated words in text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// CharCount returns the length of text in characters, which is the unit every
// chunk limit is expressed in.
func CharCount(text string) int {
	return utf8.RuneCountInString(text)
}
