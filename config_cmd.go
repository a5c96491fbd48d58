package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# Speech service
speech:
  # OpenAI-compatible API root; the key is read from OPENAI_API_KEY
  base_url: "https://api.openai.com/v1"
  model: "gpt-4o-mini-tts"
  # narrator voice
  voice: "nova"
  # narrator persona sent with every request
  # instructions: "Tone: Calm, encouraging, and articulate."
  # give up on a silent stream after this long
  read_timeout: "12s"
  # give up on a whole non-streamed request after this long
  request_timeout: "60s"
  requests_per_minute: 120
  max_attempts: 3

# Playback
playback:
  # 0.25 to 4
  speed: 1.0
  # 0.0 to 1.0
  volume: 1.0
  # silence between chunks
  chunk_delay: "150ms"
  device_buffer: "100ms"

# Audio caches
cache:
  # audio of the current session kept in memory
  memory: "64MiB"
  # synthesized audio kept on disk across sessions; "off" disables it
  # dir: "~/.cache/auraspeech/audio"
  disk: "512MiB"
  ttl: "720h"
  # zstd level, 0 stores audio uncompressed
  compression: 3
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the auraspeech config file",
	Long:    paragraph(fmt.Sprintf("\n%s the auraspeech config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("auraspeech config\nauraspeech config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("AuraSpeech", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
