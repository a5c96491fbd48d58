package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/synfinner/auraspeech-tts/internal/narration"
	"github.com/synfinner/auraspeech-tts/internal/segment"
	"github.com/synfinner/auraspeech-tts/internal/source"
	"github.com/synfinner/auraspeech-tts/internal/speech"
	"golang.org/x/term"
)

const maxChapterTitle = 48

var chaptersCmd = &cobra.Command{
	Use:     "chapters FILE|URL|-",
	Short:   "List the chapters of a document",
	Long:    paragraph(fmt.Sprintf("\n%s the chapters a document is narrated in, with where each one starts.", keyword("List"))),
	Example: paragraph("auraspeech chapters essay.md\nauraspeech essay.md --chapter 3"),
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := source.NewDocument(args[0], os.Stdin).DetectArticle(cmd.Context())
		if err != nil {
			return err
		}

		// chunked the way a first session would be
		q := segment.BuildQueue(a.Text, a.Hints, segment.Options{
			MaxChunkChars: speech.ChunkCeiling(speech.NewPerf().Snapshot()),
			Title:         a.Title,
		})
		if len(q.Chunks) == 0 {
			return narration.ErrNothingToNarrate
		}

		out, err := renderMarkdown(chaptersMarkdown(a.Title, q, narration.ClampSpeed(viper.GetFloat64("playback.speed"))))
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	},
}

func chaptersMarkdown(title string, q segment.Queue, speed float64) string {
	if title == "" {
		title = "Untitled"
	}
	total := narration.EstimateElapsed(q, len(q.Chunks), 0, speed)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "%d chunks, %s words, about %s at %.2fx.\n\n",
		len(q.Chunks), humanize.Comma(int64(q.TotalWords())), narration.FormatRemaining(total), speed)

	b.WriteString("| # | Chapter | Chunks | Words | Starts at |\n")
	b.WriteString("|--:|---------|--------|------:|----------:|\n")
	for _, ch := range q.Chapters {
		start := narration.EstimateElapsed(q, ch.StartChunk, 0, speed)
		fmt.Fprintf(&b, "| %d | %s | %d-%d | %s | %s |\n",
			ch.Index+1,
			tableCell(truncate.StringWithTail(ch.Title, maxChapterTitle, "…")),
			ch.StartChunk+1, ch.EndChunk+1,
			humanize.Comma(int64(ch.WordCount)),
			narration.FormatClock(start))
	}
	return b.String()
}

func tableCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func renderMarkdown(md string) (string, error) {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = min(w, 120)
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		glamour.WithStandardStyle(styles.AutoStyle),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("unable to create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("unable to render markdown: %w", err)
	}
	return out, nil
}
