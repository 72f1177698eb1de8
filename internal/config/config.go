package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/bamsammich/ferry/internal/job"
)

// Config represents the optional ferry configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	Store    StoreConfig    `toml:"store"`
	Theme    ThemeConfig    `toml:"theme"`
}

// DefaultsConfig holds persistent flag defaults. A nil field leaves the
// built-in default in place.
type DefaultsConfig struct {
	OnConflict *string `toml:"on_conflict"`
	Verify     *bool   `toml:"verify"`
	NoDB       *bool   `toml:"no_db"`
	BlockSize  *string `toml:"block_size"`
	BWLimit    *string `toml:"bwlimit"`
}

// StoreConfig locates the job database.
type StoreConfig struct {
	Path *string `toml:"path"`
}

// ThemeConfig holds optional colour overrides for report lines.
type ThemeConfig struct {
	Error   *string `toml:"error"`
	Aborted *string `toml:"aborted"`
	Skipped *string `toml:"skipped"`
	Warning *string `toml:"warning"`
	Done    *string `toml:"done"`
	Muted   *string `toml:"muted"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "ferry", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads and validates the config file at path. A missing file
// yields a zero Config.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	d := c.Defaults
	if d.OnConflict != nil {
		if _, err := job.ParseOnConflict(*d.OnConflict); err != nil {
			return fmt.Errorf("defaults.on_conflict: %w", err)
		}
	}
	if d.BlockSize != nil {
		if _, err := ParseSize(*d.BlockSize); err != nil {
			return fmt.Errorf("defaults.block_size: %w", err)
		}
	}
	if d.BWLimit != nil {
		if _, err := ParseSize(*d.BWLimit); err != nil {
			return fmt.Errorf("defaults.bwlimit: %w", err)
		}
	}
	return nil
}
