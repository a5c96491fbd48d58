package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/synfinner/auraspeech-tts/internal/audio"
	"github.com/synfinner/auraspeech-tts/internal/bookmark"
	"github.com/synfinner/auraspeech-tts/internal/cache"
	"github.com/synfinner/auraspeech-tts/internal/config"
	"github.com/synfinner/auraspeech-tts/internal/control"
	"github.com/synfinner/auraspeech-tts/internal/narration"
	"github.com/synfinner/auraspeech-tts/internal/source"
	"github.com/synfinner/auraspeech-tts/internal/speech"
	"github.com/synfinner/auraspeech-tts/internal/store"
	"github.com/synfinner/auraspeech-tts/ui"
	"github.com/synfinner/auraspeech-tts/utils"
	"golang.org/x/sync/errgroup"
)

var scope = gap.NewScope(gap.User, "auraspeech")

// dataPath returns the path of a file in the user data directory.
func dataPath(name string) (string, error) {
	dirs, err := scope.DataDirs()
	if err != nil || len(dirs) == 0 {
		return "", fmt.Errorf("could not find data directory: %w", err)
	}
	if err := os.MkdirAll(dirs[0], 0o700); err != nil {
		return "", fmt.Errorf("unable to create data directory: %w", err)
	}
	return filepath.Join(dirs[0], name), nil
}

func openStore() (*store.Store, error) {
	path, err := dataPath("auraspeech.db")
	if err != nil {
		return nil, err
	}
	return store.Open(path)
}

// narrator bundles what one run of the root command wires together.
type narrator struct {
	coord    *narration.Coordinator
	source   *speech.Source
	surface  *control.Surface
	document *source.Document
	closers  []func() error
}

func (n *narrator) Close() error {
	var errs []error
	for i := len(n.closers) - 1; i >= 0; i-- {
		errs = append(errs, n.closers[i]())
	}
	return errors.Join(errs...)
}

func newNarrator(ctx context.Context, cmd *cobra.Command, cfg config.Config, e config.Env, path string) (*narrator, error) {
	if e.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	n := &narrator{}

	st, err := openStore()
	if err != nil {
		return nil, err
	}
	n.closers = append(n.closers, st.Close)

	// flags win over stored settings, stored settings over the config file
	settings, err := st.LoadSettings(ctx)
	if err != nil {
		_ = n.Close()
		return nil, err
	}
	voice, speed, instructions := cfg.Speech.Voice, cfg.Playback.Speed, cfg.Speech.Instructions
	if cmd.Flags().Changed("voice") {
		if err := st.SaveVoice(voice); err != nil {
			log.Warn("Could not remember voice", "error", err)
		}
	} else if settings.Voice != "" {
		voice = settings.Voice
	}
	if !cmd.Flags().Changed("speed") && settings.Speed > 0 {
		speed = settings.Speed
	}
	if settings.Instructions != "" {
		instructions = settings.Instructions
	}

	baseURL := cfg.Speech.BaseURL
	if e.BaseURL != "" {
		baseURL = e.BaseURL
	}
	retry := speech.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Speech.MaxAttempts
	n.source = speech.NewSource(speech.NewHTTPTransport(baseURL, e.APIKey), nil, speech.Options{
		Model:             cfg.Speech.Model,
		Instructions:      instructions,
		ReadTimeout:       cfg.Speech.ReadTimeout,
		RequestTimeout:    cfg.Speech.RequestTimeout,
		RequestsPerMinute: cfg.Speech.RequestsPerMinute,
		Retry:             retry,
	})

	player, closePlayer := openPlayer(cfg, e)
	n.closers = append(n.closers, closePlayer)

	opts := narration.Options{
		Voice:      voice,
		Speed:      speed,
		Cache:      cache.NewAudioCache(int64(cfg.Cache.Memory)),
		Settings:   st,
		Heartbeat:  cfg.Playback.Heartbeat,
		ChunkDelay: cfg.Playback.ChunkDelay,
	}
	if disk := openDiskCache(cfg.Cache); disk != nil {
		opts.Disk = disk
		n.closers = append(n.closers, disk.Close)
	}
	n.coord = narration.New(n.source, player, opts)

	n.document = source.NewDocument(path, os.Stdin)
	pageKey, err := source.PageURL(path)
	if err != nil {
		_ = n.Close()
		return nil, err
	}
	resolver := bookmark.NewResolver(n.coord, st, n.document)
	n.surface = control.New(n.coord, resolver, n.document, pageKey)
	return n, nil
}

// openPlayer opens the output device. Without one a silent player stands
// in; with AURASPEECH_NO_AUDIO it also finishes every chunk at once.
func openPlayer(cfg config.Config, e config.Env) (narration.Player, func() error) {
	if !e.NoAudio {
		p, err := audio.NewOtoPlayer(audio.PlayerConfig{
			Volume:       cfg.Playback.Volume,
			DeviceBuffer: cfg.Playback.DeviceBuffer,
		})
		if err == nil {
			return p, p.Close
		}
		log.Warn("No audio output, narrating silently", "error", err)
	}
	m := audio.NewMockPlayer()
	m.AutoStart = true
	m.AutoFinish = e.NoAudio
	return m, m.Close
}

func openDiskCache(cfg config.CacheConfig) *cache.DiskCache {
	if cfg.DiskDisabled() {
		return nil
	}
	dir := utils.ExpandPath(cfg.Dir)
	if dir == "" {
		d, err := scope.CacheDir()
		if err != nil {
			log.Warn("Disk cache disabled", "error", err)
			return nil
		}
		dir = filepath.Join(d, "audio")
	}
	dc, err := cache.OpenDiskCache(cache.DiskConfig{
		Dir:              dir,
		Capacity:         int64(cfg.Disk),
		CompressionLevel: cfg.Compression,
		TTL:              cfg.TTL,
	})
	if err != nil {
		log.Warn("Disk cache disabled", "dir", dir, "error", err)
		return nil
	}
	return dc
}

// watchConfig applies edits of the live settings to the running
// narration.
func (n *narrator) watchConfig(ctx context.Context, cfg config.Config) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	last := cfg.Live()
	config.Watch(viper.GetViper(), func(c config.Config) {
		live := c.Live()
		if live.Instructions != last.Instructions {
			n.source.SetInstructions(live.Instructions)
		}
		if live.Voice != last.Voice {
			if err := n.coord.SetVoice(ctx, live.Voice); err != nil {
				log.Warn("Could not change voice", "error", err)
			}
		}
		if live.Speed != last.Speed {
			if _, err := n.coord.SetSpeed(ctx, live.Speed); err != nil {
				log.Warn("Could not change speed", "error", err)
			}
		}
		last = live
	})
}

func startAction() control.Action {
	switch {
	case resume:
		return control.ResumeBookmark
	case selection:
		return control.StartSelection
	default:
		return control.StartArticle
	}
}

func runNarration(cmd *cobra.Command, path string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	e, err := config.ParseEnv()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n, err := newNarrator(ctx, cmd, cfg, e, path)
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			log.Warn("Shutdown", "error", err)
		}
	}()
	n.watchConfig(ctx, cfg)

	g.Go(func() error {
		if err := n.coord.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		if noUI {
			return runLines(ctx, n, os.Stdin, os.Stdout, path != "-")
		}
		return runTUI(ctx, n, path)
	})
	return g.Wait()
}

func runTUI(ctx context.Context, n *narrator, path string) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	cfg.Title = filepath.Base(path)
	if path == "" || path == "-" {
		cfg.Title = ""
	}
	cfg.Start = startAction()
	cfg.Chapter = chapter
	cfg.InputTTY = path == "-"

	states, unsubscribe, err := n.coord.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer unsubscribe()

	// Run Bubble Tea program
	if _, err := ui.NewProgram(ctx, cfg, n.surface, n.coord.Session, states).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}
