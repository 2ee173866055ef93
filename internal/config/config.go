// Package config assembles the tool configuration from four layers, weakest
// first: flag defaults, an optional YAML file, DRILLHASH_ environment
// variables, and explicitly set flags. Every flag name doubles as the koanf
// key, so the same name works in all four layers.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/drillhash/internal/scheduler"
)

const envPrefix = "DRILLHASH_"

// Config is the full tool configuration. The scheduler block is settable
// through the file and environment layers only; everything else also has a
// flag.
type Config struct {
	// DB is the SQLite database path.
	DB string `koanf:"db" validate:"required"`
	// Source is the deck source: a directory path or a git URL.
	Source string `koanf:"source" validate:"required"`
	// CacheDir holds git checkouts; empty picks a per-user default.
	CacheDir string `koanf:"cache-dir"`
	LogLevel string `koanf:"log-level" validate:"oneof=debug info warn error"`

	Host string `koanf:"host" validate:"required"`
	Port int    `koanf:"port" validate:"gt=0,lt=65536"`

	// Session options. Zero limits mean unlimited.
	Shuffle      bool     `koanf:"shuffle"`
	CardLimit    int      `koanf:"card-limit" validate:"min=0"`
	NewCardLimit int      `koanf:"new-card-limit" validate:"min=0"`
	Decks        []string `koanf:"deck"`
	BurySiblings bool     `koanf:"bury-siblings"`
	// AnswerControls picks the grade buttons: all four, or just forgot/good.
	AnswerControls string `koanf:"answer-controls" validate:"oneof=full binary"`

	Scheduler scheduler.Params `koanf:"scheduler"`
}

// Flags builds the flag set shared by every subcommand.
func Flags(name string) *pflag.FlagSet {
	f := pflag.NewFlagSet(name, pflag.ContinueOnError)
	f.String("config", "", "path to a YAML config file")
	f.String("db", "drillhash.db", "path to the SQLite database")
	f.String("source", ".", "deck source: a directory or a git URL")
	f.String("cache-dir", "", "checkout cache for git deck sources")
	f.String("log-level", "info", "log level: debug, info, warn or error")
	f.String("host", "127.0.0.1", "address the drill server binds to")
	f.Int("port", 8000, "port the drill server listens on")
	f.Bool("shuffle", false, "shuffle the session queue")
	f.Int("card-limit", 0, "maximum cards per session, 0 for unlimited")
	f.Int("new-card-limit", 0, "maximum new cards per session, 0 for unlimited")
	f.StringSlice("deck", nil, "drill only the named decks (repeatable)")
	f.Bool("bury-siblings", true, "drill at most one card per cloze block")
	f.String("answer-controls", "full", "grade buttons to show: full or binary")
	return f
}

// Load resolves the configuration for one command invocation from the given
// parsed flag set.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// The file layer comes first so the environment and flags override it.
	if path, err := flags.GetString("config"); err == nil && path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// DRILLHASH_CARD_LIMIT=20 sets card-limit; a double underscore descends
	// into a block, so DRILLHASH_SCHEDULER__MAX_INTERVAL=64 sets
	// scheduler.max-interval.
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ReplaceAll(s, "_", "-")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Explicitly set flags win over everything; unset flags only contribute
	// their defaults where no other layer provided the key.
	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	cfg := &Config{Scheduler: *scheduler.DefaultParams()}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the whole configuration, scheduler params included.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SessionLimit converts a zero-means-unlimited count to the optional limit
// the session layer takes.
func SessionLimit(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}
