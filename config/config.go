// Package config loads the optional kapa configuration file.
//
// The file is TOML and every key is optional:
//
//	data_file = "~/.local/share/kapa/kapa.dat"
//	clipboard_clear_seconds = 30
//
//	[kdf]
//	time = 3
//	memory_kib = 65536
//	threads = 4
//
// KDF settings only apply to data files created afterwards; an existing file
// keeps the parameters recorded in its header.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fahmaliyi/kapa/vault"
)

const (
	FileName     = "config.toml"
	DataFileName = "kapa.dat"

	// MaxClipboardClearSeconds is one day.
	MaxClipboardClearSeconds = 24 * 60 * 60
)

type Config struct {
	DataFile              string `toml:"data_file"`
	ClipboardClearSeconds int    `toml:"clipboard_clear_seconds"`
	KDF                   KDF    `toml:"kdf"`
}

type KDF struct {
	Time      uint32 `toml:"time"`
	MemoryKiB uint32 `toml:"memory_kib"`
	Threads   uint8  `toml:"threads"`
}

// Default returns the configuration used when no file exists.
func Default() (*Config, error) {
	dataDir, err := dataDir()
	if err != nil {
		return nil, err
	}
	kdf := vault.DefaultKDFParams()
	return &Config{
		DataFile:              filepath.Join(dataDir, "kapa", DataFileName),
		ClipboardClearSeconds: 30,
		KDF:                   KDF{Time: kdf.Time, MemoryKiB: kdf.Memory, Threads: kdf.Threads},
	}, nil
}

// DefaultPath is $XDG_CONFIG_HOME/kapa/config.toml or the platform equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error getting config directory: %w", err)
	}
	return filepath.Join(dir, "kapa", FileName), nil
}

func dataDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error getting home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share"), nil
}

// Load reads the file at path on top of the defaults. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	cfg.DataFile, err = expandHome(cfg.DataFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating the parent directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	return toml.NewEncoder(file).Encode(cfg)
}

func (c *Config) Validate() error {
	if c.DataFile == "" {
		return errors.New("data_file must not be empty")
	}
	if c.ClipboardClearSeconds < 0 || c.ClipboardClearSeconds > MaxClipboardClearSeconds {
		return fmt.Errorf("clipboard_clear_seconds must be between 0 and %d, got %d", MaxClipboardClearSeconds, c.ClipboardClearSeconds)
	}
	if c.KDF.Time < 1 {
		return fmt.Errorf("kdf.time must be at least 1, got %d", c.KDF.Time)
	}
	if c.KDF.Threads < 1 {
		return fmt.Errorf("kdf.threads must be at least 1, got %d", c.KDF.Threads)
	}
	if c.KDF.MemoryKiB < 8*uint32(c.KDF.Threads) {
		return fmt.Errorf("kdf.memory_kib must be at least 8 per thread, got %d", c.KDF.MemoryKiB)
	}
	return nil
}

// KDFParams converts the configured cost into header parameters for a new
// container.
func (c *Config) KDFParams() *vault.KDFParams {
	return &vault.KDFParams{
		Algo:    vault.KDFArgon2id,
		Time:    c.KDF.Time,
		Memory:  c.KDF.MemoryKiB,
		Threads: c.KDF.Threads,
	}
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error getting home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
