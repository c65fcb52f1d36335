// Package config provides JSON-based application preferences.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gogpu/gg"

	"image-annotator/internal/annotation"
)

const (
	appDir    = "image-annotator"
	prefsFile = "preferences.json"
)

// Config holds the user preferences.
type Config struct {
	// Author is stamped on annotations created in this session.
	Author string `json:"author"`
	// ActivationDelayMS is how long a press is held before a drag previews.
	ActivationDelayMS int `json:"activation_delay_ms"`
	// MinPickWidth floors the invisible pointer-targeting stroke.
	MinPickWidth float64 `json:"min_pick_width"`
	StrokeColor  string  `json:"stroke_color"`
	StrokeWidth  float64 `json:"stroke_width"`
	CloudArc     float64 `json:"cloud_arc"`
	StampWidth   float64 `json:"stamp_width"`
	StampHeight  float64 `json:"stamp_height"`
	NoteSize     float64 `json:"note_size"`
	// ExportScale resamples exported images. 1 keeps the pixel size.
	ExportScale float64 `json:"export_scale"`
}

// Default returns the built-in preferences.
func Default() Config {
	author := os.Getenv("USER")
	if author == "" {
		author = "anonymous"
	}
	return Config{
		Author:            author,
		ActivationDelayMS: 150,
		MinPickWidth:      annotation.DefaultMinPickWidth,
		StrokeColor:       annotation.DefaultColor,
		StrokeWidth:       annotation.DefaultStrokeWidth,
		CloudArc:          annotation.DefaultCloudArc,
		StampWidth:        160,
		StampHeight:       48,
		NoteSize:          annotation.DefaultNoteSize,
		ExportScale:       1,
	}
}

// DefaultPath returns ~/.config/image-annotator/preferences.json, or the
// platform equivalent.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, appDir, prefsFile)
}

// Load overlays the file at path onto Default. A missing file yields the
// defaults; an unreadable or invalid one is an error.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("failed to read preferences: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return Default(), fmt.Errorf("failed to parse preferences %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Default(), fmt.Errorf("preferences %s: %w", path, err)
	}
	return c, nil
}

// Save writes the preferences to path, creating its directory.
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks ranges and the stroke color.
func (c Config) Validate() error {
	if _, err := gg.ParseHex(c.StrokeColor); err != nil {
		return fmt.Errorf("stroke color %q: %w", c.StrokeColor, err)
	}
	switch {
	case c.ActivationDelayMS < 0:
		return fmt.Errorf("negative activation delay %d", c.ActivationDelayMS)
	case c.StrokeWidth < 0:
		return fmt.Errorf("negative stroke width %v", c.StrokeWidth)
	case c.MinPickWidth < 0:
		return fmt.Errorf("negative pick width %v", c.MinPickWidth)
	case c.CloudArc < 0:
		return fmt.Errorf("negative cloud arc %v", c.CloudArc)
	case c.ExportScale <= 0:
		return fmt.Errorf("export scale must be positive, got %v", c.ExportScale)
	}
	return nil
}

// ActivationDelay returns the press-and-hold delay.
func (c Config) ActivationDelay() time.Duration {
	return time.Duration(c.ActivationDelayMS) * time.Millisecond
}

// Style returns the stroke style for new shapes.
func (c Config) Style() annotation.Style {
	s := annotation.DefaultStyle()
	s.Color = c.StrokeColor
	s.Width = c.StrokeWidth
	return s
}

// RenderOptions returns the options annotations are rendered with.
func (c Config) RenderOptions() annotation.RenderOptions {
	return annotation.RenderOptions{MinPickWidth: c.MinPickWidth}
}
