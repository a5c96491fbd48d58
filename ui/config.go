package ui

import "github.com/synfinner/auraspeech-tts/internal/control"

// Config contains TUI-specific configuration.
type Config struct {
	// Title is shown until a session starts.
	Title string

	// Start is sent to the controller once the program is running. Empty
	// sends nothing.
	Start control.Action

	// Chapter, when set, is looked up among the chapters of the session
	// Start creates and skipped to.
	Chapter string

	// InputTTY reads keys from the terminal when stdin carries the
	// document.
	InputTTY bool

	// For debugging the UI
	ShowText  bool `env:"AURASPEECH_SHOW_TEXT"  envDefault:"true"`
	AltScreen bool `env:"AURASPEECH_ALT_SCREEN" envDefault:"true"`
}
