package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/synfinner/auraspeech-tts/internal/narration"
)

var (
	currentChunkStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#DDDDDD"})

	otherChunkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#5C5C5C"})

	chapterHeadingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#EE6FF8"}).
				Bold(true)
)

// renderChunks renders the chunk at index between its dimmed neighbours,
// wrapped to width. A chapter heading precedes the first chunk of each
// chapter.
func renderChunks(sess *narration.Session, index, width int) string {
	if sess == nil || sess.Chunks() == 0 {
		return ""
	}
	index = max(0, min(index, sess.Chunks()-1))
	if width < 20 {
		width = 20
	}

	var parts []string
	for i := index - 1; i <= index+1; i++ {
		if i < 0 || i >= sess.Chunks() {
			continue
		}
		c := sess.Queue.Chunks[i]
		style := otherChunkStyle
		if i == index {
			style = currentChunkStyle
		}

		var b strings.Builder
		if ch := sess.Queue.Chapters[c.ChapterIndex]; ch.StartChunk == i && len(sess.Queue.Chapters) > 1 {
			b.WriteString(chapterHeadingStyle.Render(wordwrap.String(ch.Title, width)))
			b.WriteString("\n\n")
		}
		b.WriteString(style.Render(wordwrap.String(c.Text, width)))
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n\n")
}
