package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/synfinner/auraspeech-tts/internal/narration"
)

var (
	green  = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	yellow = lipgloss.AdaptiveColor{Light: "#B58900", Dark: "#ECFD65"}
	blue   = lipgloss.AdaptiveColor{Light: "#0077CC", Dark: "#00AAFF"}
	red    = lipgloss.AdaptiveColor{Light: "#D70000", Dark: "#FF5F5F"}
	gray   = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
)

// phaseIcon returns an icon for the state's phase.
func phaseIcon(s narration.State) string {
	if s.Error != "" {
		return "✗"
	}
	switch s.Phase {
	case narration.PhasePlaying:
		return "▶"
	case narration.PhasePaused:
		return "⏸"
	case narration.PhaseExtracting, narration.PhaseGenerating, narration.PhaseBuffering:
		return "⟳"
	case narration.PhaseCompleted:
		return "■"
	default:
		return "○"
	}
}

func phaseColor(s narration.State) lipgloss.AdaptiveColor {
	if s.Error != "" {
		return red
	}
	switch s.Phase {
	case narration.PhasePlaying:
		return green
	case narration.PhasePaused:
		return yellow
	case narration.PhaseExtracting, narration.PhaseGenerating, narration.PhaseBuffering:
		return blue
	default:
		return gray
	}
}

func phaseLabel(s narration.State) string {
	if s.Error != "" {
		return "Stopped"
	}
	switch s.Phase {
	case narration.PhaseExtracting:
		return "Reading"
	case narration.PhaseGenerating:
		return "Generating audio"
	case narration.PhaseBuffering:
		return "Buffering"
	case narration.PhasePlaying:
		return "Playing"
	case narration.PhasePaused:
		return "Paused"
	case narration.PhaseCompleted:
		return "Finished"
	default:
		return "Idle"
	}
}

// busy reports whether audio is on its way and a spinner should show.
func busy(s narration.State) bool {
	switch s.Phase {
	case narration.PhaseExtracting, narration.PhaseGenerating, narration.PhaseBuffering:
		return true
	}
	return false
}

// progressPercent estimates how far through the whole queue the listener
// is, counting the played part of the current chunk.
func progressPercent(s narration.State) float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	if s.IsComplete {
		return 1
	}
	at := float64(max(s.CurrentIndex, 0))
	if s.PendingIndex >= 0 {
		at = float64(s.PendingIndex)
	} else if s.AudioDuration > 0 {
		at += float64(s.AudioTime) / float64(s.AudioDuration)
	}
	return min(1, at/float64(s.TotalChunks))
}

// positionLine formats the chunk counter, the clock in the current chunk
// and the estimated time left.
func positionLine(s narration.State) string {
	if !s.Active() {
		return ""
	}
	at := s.CurrentIndex
	if s.PendingIndex >= 0 {
		at = s.PendingIndex
	}
	line := fmt.Sprintf("chunk %d/%d", max(at, 0)+1, s.TotalChunks)
	if s.AudioDuration > 0 && s.PendingIndex < 0 {
		line += fmt.Sprintf("  %s / %s", narration.FormatClock(s.AudioTime), narration.FormatClock(s.AudioDuration))
	}
	if s.Remaining > time.Second && !s.IsComplete {
		line += "  " + narration.FormatRemaining(s.Remaining) + " left"
	}
	return line
}

func chapterLine(s narration.State) string {
	if len(s.Chapters) < 2 {
		return s.ChapterTitle
	}
	return fmt.Sprintf("%s (%d/%d)", s.ChapterTitle, s.ChapterIndex+1, len(s.Chapters))
}
