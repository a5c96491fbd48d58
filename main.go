// Package main provides the entry point for the AuraSpeech CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/synfinner/auraspeech-tts/internal/config"
	"github.com/synfinner/auraspeech-tts/utils"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	voice      string
	speed      float64
	chapter    string
	resume     bool
	selection  bool
	noUI       bool
	jsonOutput bool

	rootCmd = &cobra.Command{
		Use:   "auraspeech [FILE|URL|-]",
		Short: "Listen to markdown on the CLI, read by a neural voice",
		Long: paragraph(
			fmt.Sprintf("\nListen to markdown on the CLI, %s!", keyword("read aloud")),
		),
		Example: paragraph("auraspeech essay.md\n" +
			"auraspeech https://example.com/post.md --chapter methods\n" +
			"auraspeech --selection --speed 1.25\n" +
			"cat notes.md | auraspeech --no-ui"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(utils.ExpandPath(configFile))
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
	}

	if resume && selection {
		return errors.New("--resume and --selection cannot be used together")
	}
	if chapter != "" && selection {
		return errors.New("--chapter needs a document, not a selection")
	}

	// without a terminal there is nothing to draw on or read keys from
	if !noUI && !term.IsTerminal(int(os.Stdout.Fd())) {
		log.Debug("Stdout is not a terminal, disabling the UI", "command", cmd.Name())
		noUI = true
	}
	return nil
}

func execute(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}

	// if stdin is a pipe then use stdin for input. note that you can also
	// explicitly use a - to read from stdin.
	if path == "" && !selection {
		yes, err := stdinIsPipe()
		if err != nil {
			return err
		}
		if !yes {
			return errors.New("missing document: pass a FILE, URL or - for stdin, or use --selection")
		}
		path = "-"
	}

	return runNarration(cmd, path)
}

// stdinIsPipe returns whether stdin is a pipe.
func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Mode()&os.ModeNamedPipe != 0 {
		return true, nil
	}
	return false, nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVarP(&voice, "voice", "v", "", "narrator voice")
	rootCmd.Flags().Float64VarP(&speed, "speed", "s", 1, "playback speed (0.25 to 4)")
	rootCmd.Flags().StringVarP(&chapter, "chapter", "c", "", "start at a chapter, by number or title")
	rootCmd.Flags().BoolVarP(&resume, "resume", "r", false, "resume from the document's bookmark")
	rootCmd.Flags().BoolVar(&selection, "selection", false, "narrate the clipboard instead of a document")
	rootCmd.Flags().BoolVar(&noUI, "no-ui", false, "read commands line by line instead of showing the UI")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "print responses and progress as JSON lines (with --no-ui)")

	// Config bindings
	_ = viper.BindPFlag("speech.voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("playback.speed", rootCmd.Flags().Lookup("speed"))

	rootCmd.AddCommand(configCmd, manCmd, chaptersCmd, bookmarksCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	config.SetDefaults(viper.GetViper())

	scope := gap.NewScope(gap.User, "auraspeech")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "auraspeech")}, dirs...)
	}

	if c := os.Getenv("AURASPEECH_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("auraspeech")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("auraspeech")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "auraspeech.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
