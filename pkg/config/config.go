// Package config manages the directories and user settings of modelfetch.
// It follows the XDG base directory layout.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"modelfetch/pkg/jsonfile"
)

// AppName names the XDG subdirectories.
const AppName = "modelfetch"

// Settings are the user-editable options stored in settings.json.
type Settings struct {
	DownloadDir        string `json:"download_dir,omitempty"`
	MaxConcurrent      int    `json:"max_concurrent"`
	ChunkSize          int    `json:"chunk_size"`
	HTTPTimeoutSeconds int    `json:"http_timeout_seconds"`
	UserAgent          string `json:"user_agent"`
	CheckDiskSpace     bool   `json:"check_disk_space"`
	ScriptsDir         string `json:"scripts_dir,omitempty"`
}

// DefaultSettings returns the settings used when no file exists yet.
func DefaultSettings() *Settings {
	return &Settings{
		MaxConcurrent:      0,
		ChunkSize:          1024,
		HTTPTimeoutSeconds: 30,
		UserAgent:          AppName + "/" + BuildVersion,
		CheckDiskSpace:     true,
	}
}

// HTTPTimeout is how long to wait for response headers.
func (s Settings) HTTPTimeout() time.Duration {
	return time.Duration(s.HTTPTimeoutSeconds) * time.Second
}

// ReadOnly defines the read-only interface for Config.
// Immutable
type ReadOnly interface {
	GetConfigDir() string
	GetDataDir() string
	GetSettingsPath() string
	GetDownloadDir() string
	GetScriptsDir() string
	GetSettings() (Settings, error)
	Freeze()
	Checkout() Writable
}

// Writable defines the writable interface for Config.
// Mutable
type Writable interface {
	ReadOnly
	SetConfigDir(string)
	SetDataDir(string)
	UpdateSettings(fn func(*Settings) error) error
}

// Config holds the base directories and the settings file.
// Mutable
type Config struct {
	configDir string
	dataDir   string

	settings jsonfile.File[Settings]

	frozen bool
	edited bool
}

var _ ReadOnly = (*Config)(nil)
var _ Writable = (*Config)(nil)

func (c *Config) GetConfigDir() string { return c.configDir }
func (c *Config) GetDataDir() string   { return c.dataDir }

func (c *Config) GetSettingsPath() string {
	return filepath.Join(c.configDir, "settings.json")
}

// GetDownloadDir is the base for catalog items with a relative dir.
func (c *Config) GetDownloadDir() string {
	if s, err := c.GetSettings(); err == nil && s.DownloadDir != "" {
		return s.DownloadDir
	}
	return filepath.Join(c.dataDir, "models")
}

// GetScriptsDir holds the *.star host rules.
func (c *Config) GetScriptsDir() string {
	if s, err := c.GetSettings(); err == nil && s.ScriptsDir != "" {
		return s.ScriptsDir
	}
	return filepath.Join(c.configDir, "providers")
}

// GetSettings returns a copy of the settings, falling back to defaults when
// the file does not exist.
func (c *Config) GetSettings() (Settings, error) {
	s, err := c.settings.Get()
	if err != nil {
		return *DefaultSettings(), fmt.Errorf("failed to load settings: %w", err)
	}
	return *s, nil
}

// UpdateSettings applies fn and saves the file.
func (c *Config) UpdateSettings(fn func(*Settings) error) error {
	if c.frozen {
		panic("cannot modify frozen config")
	}
	if err := c.settings.Modify(fn); err != nil {
		return err
	}
	return c.settings.Save()
}

func (c *Config) SetConfigDir(s string) {
	if c.frozen {
		panic("cannot modify frozen config")
	}
	c.configDir = s
	c.updateDerived()
}

func (c *Config) SetDataDir(s string) {
	if c.frozen {
		panic("cannot modify frozen config")
	}
	c.dataDir = s
}

func (c *Config) Freeze() {
	c.frozen = true
}

func (c *Config) Checkout() Writable {
	if c.frozen {
		panic("cannot checkout from frozen config")
	}
	if c.edited {
		panic("config already checked out")
	}
	c.edited = true
	return c
}

func (c *Config) updateDerived() {
	c.settings = jsonfile.New(c.GetSettingsPath(), jsonfile.WithDefaultValue(DefaultSettings))
}

// Init initializes the configuration using XDG base directories.
func Init() (ReadOnly, error) {
	return New(filepath.Join(xdg.ConfigHome, AppName), filepath.Join(xdg.DataHome, AppName)), nil
}

// New creates a Config rooted at explicit directories.
func New(configDir, dataDir string) *Config {
	c := &Config{configDir: configDir, dataDir: dataDir}
	c.updateDerived()
	return c
}
