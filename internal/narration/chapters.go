package narration

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
	"github.com/synfinner/auraspeech-tts/internal/segment"
)

type chapterTitles []segment.Chapter

func (c chapterTitles) String(i int) string { return c[i].Title }
func (c chapterTitles) Len() int            { return len(c) }

// FindChapter resolves query to a chapter index. A number selects the
// chapter by its 1-based position, anything else is fuzzy matched against
// the titles.
func FindChapter(chapters []segment.Chapter, query string) (int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return -1, ErrOutOfRange
	}
	if n, err := strconv.Atoi(query); err == nil {
		if n < 1 || n > len(chapters) {
			return -1, fmt.Errorf("chapter %d: %w", n, ErrOutOfRange)
		}
		return n - 1, nil
	}

	matches := fuzzy.FindFrom(query, chapterTitles(chapters))
	if len(matches) == 0 {
		return -1, fmt.Errorf("no chapter matches %q: %w", query, ErrOutOfRange)
	}
	return matches[0].Index, nil
}

// FormatClock renders d as m:ss, or h:mm:ss from one hour on.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	h, m, s := secs/3600, secs/60%60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatRemaining renders an estimate such as "4m 10s" or "1h 5m".
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Round(time.Second) / time.Second)
	h, m, s := secs/3600, secs/60%60, secs%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
