package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/synfinner/auraspeech-tts/internal/control"
	"github.com/synfinner/auraspeech-tts/internal/narration"
)

// lineWriter prints responses and progress for the line interface, as
// text or as JSON lines.
type lineWriter struct {
	out  io.Writer
	json bool
}

func (w lineWriter) response(resp control.Response) {
	if w.json {
		w.encode(resp)
		return
	}
	switch {
	case !resp.OK:
		fmt.Fprintln(w.out, errorText("error: "+resp.Error))
	case resp.Bookmark != nil:
		b := resp.Bookmark
		fmt.Fprintf(w.out, "bookmark %s: chunk %d at %s\n",
			keyword(b.Key), b.ChunkIndex+1, narration.FormatClock(b.Position()))
	case resp.Seek != nil:
		fmt.Fprintf(w.out, "at %s / %s\n",
			narration.FormatClock(resp.Seek.Position), narration.FormatClock(resp.Seek.Duration))
	case resp.Speed > 0:
		fmt.Fprintf(w.out, "speed %.2fx\n", resp.Speed)
	default:
		fmt.Fprintln(w.out, stateLine(resp.State))
	}
}

func (w lineWriter) state(s narration.State) {
	if w.json {
		w.encode(s)
		return
	}
	fmt.Fprintln(w.out, stateLine(s))
}

func (w lineWriter) encode(v any) {
	if err := json.NewEncoder(w.out).Encode(v); err != nil {
		log.Warn("Could not write output", "error", err)
	}
}

func stateLine(s narration.State) string {
	if !s.Active() {
		return string(s.Phase)
	}
	at := s.CurrentIndex
	if s.PendingIndex >= 0 {
		at = s.PendingIndex
	}
	line := fmt.Sprintf("%s  chunk %d/%d", s.Phase, max(at, 0)+1, s.TotalChunks)
	if s.AudioDuration > 0 && s.PendingIndex < 0 {
		line += fmt.Sprintf("  %s / %s", narration.FormatClock(s.AudioTime), narration.FormatClock(s.AudioDuration))
	}
	if s.ChapterTitle != "" {
		line += "  " + keyword(s.ChapterTitle)
	}
	if s.Error != "" {
		line += "  " + errorText(s.Error)
	}
	return line
}

// moved reports whether s differs from prev in anything the line
// interface prints. Heartbeats that only advance the clock are skipped.
func moved(prev, s narration.State) bool {
	return prev.SessionID != s.SessionID ||
		prev.Phase != s.Phase ||
		prev.CurrentIndex != s.CurrentIndex ||
		prev.PendingIndex != s.PendingIndex ||
		prev.Error != s.Error
}

func scanLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// runLines starts the narration and then executes one command per input
// line until quit. Without input, or once it ends, it waits for the
// narration to finish.
func runLines(ctx context.Context, n *narrator, in io.Reader, out io.Writer, interactive bool) error {
	w := lineWriter{out: out, json: jsonOutput}

	states, unsubscribe, err := n.coord.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer unsubscribe()

	resp := n.surface.Handle(ctx, control.Command{Action: startAction()})
	w.response(resp)
	if !resp.OK {
		return errors.New(resp.Error)
	}
	if chapter != "" {
		index, err := narration.FindChapter(resp.State.Chapters, chapter)
		if err != nil {
			return err
		}
		w.response(n.surface.Handle(ctx, control.Command{Action: control.SkipToChapter, Chapter: index}))
	}

	var lines <-chan string
	if interactive {
		lines = scanLines(ctx, in)
	}

	var last narration.State
	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "quit", "exit":
				return nil
			}
			cmd, err := control.ParseCommand(line)
			if err != nil {
				w.response(control.Response{Error: err.Error(), State: last})
				continue
			}
			w.response(n.surface.Handle(ctx, cmd))

		case s := <-states:
			prev := last
			last = s
			if moved(prev, s) {
				w.state(s)
			}
			if lines != nil {
				continue
			}
			if s.IsComplete || (prev.Active() && !s.Active()) {
				return nil
			}
			if s.Error != "" {
				return errors.New(s.Error)
			}
		}
	}
}
