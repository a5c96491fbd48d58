package main

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/synfinner/auraspeech-tts/internal/config"
	"github.com/synfinner/auraspeech-tts/utils"
)

func getLogFilePath(e config.Env) (string, error) {
	if e.LogFile != "" {
		return utils.ExpandPath(e.LogFile), nil
	}
	dir, err := scope.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "auraspeech.log"), nil
}

func setupLog() (func() error, error) {
	e, err := config.ParseEnv()
	if err != nil {
		return nil, err
	}

	// Log to file, so the UI owns the terminal
	logFile, err := getLogFilePath(e)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, err
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, err
	}
	log.SetOutput(f)
	log.SetReportTimestamp(true)
	log.SetLevel(log.InfoLevel)
	if e.Debug {
		log.SetLevel(log.DebugLevel)
	}
	return f.Close, nil
}
