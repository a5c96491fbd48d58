package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
)

const seekStep = 10 * time.Second

type keyMap struct {
	Toggle      key.Binding
	Next        key.Binding
	Previous    key.Binding
	Forward     key.Binding
	Back        key.Binding
	NextChapter key.Binding
	PrevChapter key.Binding
	Faster      key.Binding
	Slower      key.Binding
	Mark        key.Binding
	Restore     key.Binding
	Stop        key.Binding
	Article     key.Binding
	Selection   key.Binding
	Help        key.Binding
	Quit        key.Binding
}

var defaultKeys = keyMap{
	Toggle: key.NewBinding(
		key.WithKeys(" ", "p"),
		key.WithHelp("space", "play/pause"),
	),
	Next: key.NewBinding(
		key.WithKeys("n", "down"),
		key.WithHelp("n/↓", "next chunk"),
	),
	Previous: key.NewBinding(
		key.WithKeys("b", "up"),
		key.WithHelp("b/↑", "previous chunk"),
	),
	Forward: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→/l", "forward 10s"),
	),
	Back: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←/h", "back 10s"),
	),
	NextChapter: key.NewBinding(
		key.WithKeys("]", "pgdown"),
		key.WithHelp("]", "next chapter"),
	),
	PrevChapter: key.NewBinding(
		key.WithKeys("[", "pgup"),
		key.WithHelp("[", "previous chapter"),
	),
	Faster: key.NewBinding(
		key.WithKeys("+", "="),
		key.WithHelp("+", "faster"),
	),
	Slower: key.NewBinding(
		key.WithKeys("-", "_"),
		key.WithHelp("-", "slower"),
	),
	Mark: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "bookmark"),
	),
	Restore: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "resume bookmark"),
	),
	Stop: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "stop"),
	),
	Article: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "read document"),
	),
	Selection: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "read clipboard"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Back, k.Forward, k.Faster, k.Slower, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Back, k.Forward, k.Next, k.Previous},
		{k.NextChapter, k.PrevChapter, k.Faster, k.Slower},
		{k.Mark, k.Restore, k.Article, k.Selection},
		{k.Stop, k.Help, k.Quit},
	}
}
