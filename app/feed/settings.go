package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHTMLTemplate = `<a href="[URL]"><b>[TITLE]</b></a><br/>[PUBLISHED]<br/>[CONTENT]<hr/>`
	DefaultDateFormat   = "2 January 2006 15:04"

	MinBodySize = 512 * 1024
	MaxBodySize = 16 * 1024 * 1024
)

// Settings are the engine options shared by every campaign.
type Settings struct {
	Minimum          int      `yaml:"minimum"`
	Maximum          int      `yaml:"maximum"`
	HTMLTemplate     string   `yaml:"html_template"`
	SubjectSuffix    string   `yaml:"subject_suffix"`
	CustomElements   []string `yaml:"custom_elements"`
	DateFormat       string   `yaml:"date_format"`
	MaxBodySize      int64    `yaml:"max_body_size"`
	UseSummary       bool     `yaml:"use_summary"`
	ContentFiltering bool     `yaml:"content_filtering"`
	ExtractContent   bool     `yaml:"extract_content"`

	elements []ElementSpec
}

func DefaultSettings() *Settings {
	return &Settings{
		Minimum:      1,
		Maximum:      30,
		HTMLTemplate: DefaultHTMLTemplate,
		DateFormat:   DefaultDateFormat,
		MaxBodySize:  DefaultMaxBodySize,
		UseSummary:   true,
	}
}

// Elements returns the parsed custom element specifiers.
func (s *Settings) Elements() []ElementSpec {
	return s.elements
}

// LoadSettings reads the YAML settings file. A missing file yields the defaults.
func LoadSettings(path string) (*Settings, error) {
	settings := DefaultSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Debug("Settings file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read settings: %w", err)
		default:
			if err := yaml.Unmarshal(data, settings); err != nil {
				return nil, fmt.Errorf("failed to parse YAML: %w", err)
			}
		}
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", path, err)
	}

	return settings, nil
}

// Validate checks the limits, fills empty templates and parses the custom
// element specifiers.
func (s *Settings) Validate() error {
	if s.Minimum < 1 {
		return fmt.Errorf("minimum must be at least 1")
	}
	if s.Maximum < s.Minimum {
		return fmt.Errorf("maximum must not be less than minimum")
	}
	if s.MaxBodySize < MinBodySize || s.MaxBodySize > MaxBodySize {
		return fmt.Errorf("max body size must be between %d and %d", MinBodySize, MaxBodySize)
	}
	if s.HTMLTemplate == "" {
		s.HTMLTemplate = DefaultHTMLTemplate
	}
	if s.DateFormat == "" {
		s.DateFormat = DefaultDateFormat
	}

	specs, errs := ParseElementSpecs(s.CustomElements)
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.elements = specs

	return nil
}

// SettingsCache holds the current settings and reloads them on demand.
type SettingsCache struct {
	path    string
	current *Settings
	mu      sync.RWMutex
}

func NewSettingsCache(path string) *SettingsCache {
	return &SettingsCache{path: path, current: DefaultSettings()}
}

func (sc *SettingsCache) Run() error {
	settings, err := LoadSettings(sc.path)
	if err != nil {
		return err
	}

	sc.mu.Lock()
	sc.current = settings
	sc.mu.Unlock()

	slog.Debug("Settings loaded", "path", sc.path, "minimum", settings.Minimum, "maximum", settings.Maximum,
		"custom_elements", len(settings.elements))
	return nil
}

func (sc *SettingsCache) Get() *Settings {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.current
}
