// Package config reads the player settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"gopkg.in/yaml.v2"

	"github.com/james-see/smfplay/pkg/smf"
)

// Config holds every setting of the player. Zero values in the file are
// replaced by defaults.
type Config struct {
	Port         string        `yaml:"port"`
	MusicDir     string        `yaml:"music_dir"`
	Loop         bool          `yaml:"loop"`
	TempoAdjust  int           `yaml:"tempo_adjust"`
	Policy       string        `yaml:"policy"`
	MaxTracks    int           `yaml:"max_tracks"`
	SysexBuffer  int           `yaml:"sysex_buffer"`
	MetaBuffer   int           `yaml:"meta_buffer"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Listen       string        `yaml:"listen"`
	LogLevel     string        `yaml:"log_level"`
}

// Default returns the built in settings.
func Default() *Config {
	return &Config{
		MusicDir:     ".",
		Policy:       smf.EventPriority.String(),
		MaxTracks:    smf.DefaultMaxTracks,
		SysexBuffer:  smf.DefaultSysexBuffer,
		MetaBuffer:   smf.DefaultMetaBuffer,
		PollInterval: time.Millisecond,
		Listen:       ":8080",
		LogLevel:     "info",
	}
}

// Load reads path. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config at %s: %w", path, err)
	}
	cfg.fill()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config at %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from memory, with the same rules as Load.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.fill()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) fill() {
	def := Default()
	if c.MusicDir == "" {
		c.MusicDir = def.MusicDir
	}
	if c.Policy == "" {
		c.Policy = def.Policy
	}
	if c.PollInterval == 0 {
		c.PollInterval = def.PollInterval
	}
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := smf.ParsePolicy(c.Policy); err != nil {
		return err
	}
	if c.MaxTracks <= 0 || c.SysexBuffer <= 0 || c.MetaBuffer <= 0 {
		return errors.New("max_tracks, sysex_buffer and meta_buffer must be positive")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if _, err := charmlog.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the configured log level, info if it cannot be parsed.
func (c *Config) Level() charmlog.Level {
	lvl, err := charmlog.ParseLevel(c.LogLevel)
	if err != nil {
		return charmlog.InfoLevel
	}
	return lvl
}

// DecoderOptions maps the settings to decoder options.
func (c *Config) DecoderOptions() []smf.Option {
	policy, _ := smf.ParsePolicy(c.Policy)
	return []smf.Option{
		smf.WithPolicy(policy),
		smf.WithMaxTracks(c.MaxTracks),
		smf.WithSysexBuffer(c.SysexBuffer),
		smf.WithMetaBuffer(c.MetaBuffer),
	}
}
