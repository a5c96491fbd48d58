package control

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var aliases = map[string]Action{
	"article":   StartArticle,
	"selection": StartSelection,
	"p":         Pause,
	"pause":     Pause,
	"r":         Resume,
	"resume":    Resume,
	"t":         TogglePause,
	"toggle":    TogglePause,
	"n":         Next,
	"next":      Next,
	"b":         Previous,
	"prev":      Previous,
	"previous":  Previous,
	"seek":      SeekRelative,
	"goto":      SeekToTime,
	"c":         SkipToChapter,
	"chapter":   SkipToChapter,
	"speed":     NudgeSpeed,
	"faster":    NudgeSpeed,
	"slower":    NudgeSpeed,
	"save":      SaveBookmark,
	"restore":   ResumeBookmark,
	"q":         Stop,
	"stop":      Stop,
	"s":         GetState,
	"status":    GetState,
}

// ParseCommand reads a command typed on one line, such as "seek -10",
// "goto 1:05", "chapter 3" or "faster". Chapter numbers are 1-based.
// Action names are accepted as well as their short forms.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", ErrUnknownAction)
	}
	name, args := fields[0], fields[1:]

	action, ok := aliases[name]
	if !ok {
		action = Action(name)
	}
	cmd := Command{Action: action}

	arg := func() (string, error) {
		if len(args) != 1 {
			return "", fmt.Errorf("%s takes one argument", name)
		}
		return args[0], nil
	}

	switch {
	case name == "faster":
		cmd.Steps = 1
	case name == "slower":
		cmd.Steps = -1

	case action == NudgeSpeed:
		a, err := arg()
		if err != nil {
			return Command{}, err
		}
		n, err := strconv.Atoi(a)
		if err != nil {
			return Command{}, fmt.Errorf("speed steps: %w", err)
		}
		cmd.Steps = n

	case action == SeekRelative:
		a, err := arg()
		if err != nil {
			return Command{}, err
		}
		d, err := parseOffset(a)
		if err != nil {
			return Command{}, err
		}
		cmd.Offset = d

	case action == SeekToTime:
		a, err := arg()
		if err != nil {
			return Command{}, err
		}
		d, err := ParseClock(a)
		if err != nil {
			return Command{}, err
		}
		cmd.Offset = d

	case action == SkipToChapter:
		a, err := arg()
		if err != nil {
			return Command{}, err
		}
		n, err := strconv.Atoi(a)
		if err != nil || n < 1 {
			return Command{}, fmt.Errorf("chapter must be a number from 1: %q", a)
		}
		cmd.Chapter = n - 1

	case len(args) > 0:
		return Command{}, fmt.Errorf("%s takes no arguments", name)
	}
	return cmd, nil
}

// parseOffset reads a signed offset: whole seconds ("-10", "+30") or a
// duration ("1m30s").
func parseOffset(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("seek offset: %w", err)
	}
	return d, nil
}

// ParseClock reads a position written as seconds, "m:ss" or "h:mm:ss".
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("bad time %q", s)
	}
	var total time.Duration
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || (i > 0 && n >= 60) {
			return 0, fmt.Errorf("bad time %q", s)
		}
		total = total*60 + time.Duration(n)
	}
	return total * time.Second, nil
}
