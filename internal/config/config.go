package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"github.com/synfinner/auraspeech-tts/internal/audio"
	"github.com/synfinner/auraspeech-tts/internal/cache"
	"github.com/synfinner/auraspeech-tts/internal/narration"
	"github.com/synfinner/auraspeech-tts/internal/speech"
)

// Config is the decoded configuration file.
type Config struct {
	Speech   SpeechConfig   `mapstructure:"speech"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// SpeechConfig configures the synthesis service.
type SpeechConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	Model        string `mapstructure:"model"`
	Voice        string `mapstructure:"voice"`
	Instructions string `mapstructure:"instructions"`

	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
}

// PlaybackConfig configures the player and the narration loop.
type PlaybackConfig struct {
	Speed        float64       `mapstructure:"speed"`
	Volume       float64       `mapstructure:"volume"`
	ChunkDelay   time.Duration `mapstructure:"chunk_delay"`
	Heartbeat    time.Duration `mapstructure:"heartbeat"`
	DeviceBuffer time.Duration `mapstructure:"device_buffer"`
}

// CacheConfig configures the memory and disk audio caches.
type CacheConfig struct {
	Memory ByteSize `mapstructure:"memory"`

	// Disk caching is off when Dir is "off".
	Dir         string        `mapstructure:"dir"`
	Disk        ByteSize      `mapstructure:"disk"`
	TTL         time.Duration `mapstructure:"ttl"`
	Compression int           `mapstructure:"compression"`
}

// ByteSize is a size in bytes. Configuration files may write it as a
// number or a human size such as "64MiB".
type ByteSize int64

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Speech: SpeechConfig{
			BaseURL:           speech.DefaultBaseURL,
			Model:             speech.DefaultModel,
			Voice:             speech.DefaultVoice,
			Instructions:      speech.DefaultInstructions,
			ReadTimeout:       speech.DefaultReadTimeout,
			RequestTimeout:    speech.DefaultRequestTimeout,
			RequestsPerMinute: speech.DefaultRequestsPerMinute,
			MaxAttempts:       speech.DefaultRetryPolicy().MaxAttempts,
		},
		Playback: PlaybackConfig{
			Speed:        1,
			Volume:       1,
			ChunkDelay:   narration.DefaultChunkDelay,
			Heartbeat:    narration.DefaultHeartbeat,
			DeviceBuffer: audio.DefaultPlayerConfig().DeviceBuffer,
		},
		Cache: CacheConfig{
			Memory:      cache.DefaultBudget,
			Disk:        512 << 20,
			TTL:         30 * 24 * time.Hour,
			Compression: 3,
		},
	}
}

// SetDefaults registers Default with v so every key is known to viper.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("speech.base_url", d.Speech.BaseURL)
	v.SetDefault("speech.model", d.Speech.Model)
	v.SetDefault("speech.voice", d.Speech.Voice)
	v.SetDefault("speech.instructions", d.Speech.Instructions)
	v.SetDefault("speech.read_timeout", d.Speech.ReadTimeout)
	v.SetDefault("speech.request_timeout", d.Speech.RequestTimeout)
	v.SetDefault("speech.requests_per_minute", d.Speech.RequestsPerMinute)
	v.SetDefault("speech.max_attempts", d.Speech.MaxAttempts)

	v.SetDefault("playback.speed", d.Playback.Speed)
	v.SetDefault("playback.volume", d.Playback.Volume)
	v.SetDefault("playback.chunk_delay", d.Playback.ChunkDelay)
	v.SetDefault("playback.heartbeat", d.Playback.Heartbeat)
	v.SetDefault("playback.device_buffer", d.Playback.DeviceBuffer)

	v.SetDefault("cache.memory", int64(d.Cache.Memory))
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.disk", int64(d.Cache.Disk))
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.compression", d.Cache.Compression)
}

// Load decodes the configuration held by v and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		byteSizeHook,
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func byteSizeHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(ByteSize(0)) || from.Kind() != reflect.String {
		return data, nil
	}
	n, err := humanize.ParseBytes(data.(string))
	if err != nil {
		return nil, fmt.Errorf("invalid size %q: %w", data, err)
	}
	return ByteSize(n), nil
}

// Validate checks ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Speech.Voice == "" {
		errs = append(errs, errors.New("speech.voice must be set"))
	}
	if c.Speech.MaxAttempts < 1 || c.Speech.MaxAttempts > 10 {
		errs = append(errs, fmt.Errorf("speech.max_attempts must be between 1 and 10, got %d", c.Speech.MaxAttempts))
	}
	if c.Playback.Speed < narration.MinSpeed || c.Playback.Speed > narration.MaxSpeed {
		errs = append(errs, fmt.Errorf("playback.speed must be between %.2f and %.2f, got %.2f",
			narration.MinSpeed, narration.MaxSpeed, c.Playback.Speed))
	}
	if c.Playback.Volume < 0 || c.Playback.Volume > 1 {
		errs = append(errs, fmt.Errorf("playback.volume must be between 0 and 1, got %.2f", c.Playback.Volume))
	}
	if c.Cache.Memory < 1<<20 {
		errs = append(errs, fmt.Errorf("cache.memory must be at least 1MiB, got %s", c.Cache.Memory))
	}
	if c.Cache.Compression < 0 || c.Cache.Compression > 22 {
		errs = append(errs, fmt.Errorf("cache.compression must be between 0 and 22, got %d", c.Cache.Compression))
	}
	return errors.Join(errs...)
}

// DiskDisabled reports whether the disk cache is turned off.
func (c CacheConfig) DiskDisabled() bool {
	return strings.EqualFold(c.Dir, "off") || c.Disk <= 0
}

// Env holds settings only read from the environment.
type Env struct {
	APIKey  string `env:"OPENAI_API_KEY"`
	BaseURL string `env:"AURASPEECH_BASE_URL"`

	// For debugging
	Debug   bool   `env:"AURASPEECH_DEBUG"`
	LogFile string `env:"AURASPEECH_LOG_FILE"`
	NoAudio bool   `env:"AURASPEECH_NO_AUDIO"`
}

// ParseEnv reads Env from the process environment.
func ParseEnv() (Env, error) {
	e, err := env.ParseAs[Env]()
	if err != nil {
		return Env{}, fmt.Errorf("error parsing environment: %w", err)
	}
	return e, nil
}

// Watch calls onChange with the new configuration whenever the file
// backing v is written. Invalid edits are logged and skipped.
func Watch(v *viper.Viper, onChange func(Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(v)
		if err != nil {
			log.Warn("Ignoring configuration change", "file", e.Name, "error", err)
			return
		}
		log.Debug("Configuration changed", "file", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
}

// Live is the part of the configuration applied to a running narration.
type Live struct {
	Voice        string
	Instructions string
	Speed        float64
}

// Live returns the live settings of c.
func (c Config) Live() Live {
	return Live{Voice: c.Speech.Voice, Instructions: c.Speech.Instructions, Speed: c.Playback.Speed}
}
