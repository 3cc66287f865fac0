// Package config loads the per-user settings file.
//
// settings.json lives in the platform config folder found by
// shibukawa/configdir (for example ~/.config/zurustar/chip-et on Linux).
// Every field is optional; zero values mean "use the built-in default".
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shibukawa/configdir"
)

// Location of the settings file.
const (
	Vendor   = "zurustar"
	App      = "chip-et"
	FileName = "settings.json"
)

// Settings holds user preferences.
type Settings struct {
	CyclesPerSecond int    `json:"cyclesPerSecond,omitempty"`
	Scale           int    `json:"scale,omitempty"`
	Foreground      string `json:"foreground,omitempty"` // #RRGGBB
	Background      string `json:"background,omitempty"` // #RRGGBB
	SoundFont       string `json:"soundFont,omitempty"`
	Mute            bool   `json:"mute,omitempty"`

	// Keys overrides the keypad mapping: CHIP-8 key ("0".."F") to an
	// ebiten key name ("KeyX", "Digit1", "ArrowUp"...).
	Keys map[string]string `json:"keys,omitempty"`

	// path is the file the settings were read from, empty for defaults.
	path string
}

// Path returns the file the settings came from, or "" if none was found.
func (s *Settings) Path() string {
	return s.path
}

// Load reads settings.json from the first config folder that has one.
// A missing file is not an error and yields empty settings.
func Load() (*Settings, error) {
	dirs := configdir.New(Vendor, App)
	folder := dirs.QueryFolderContainsFile(FileName)
	if folder == nil {
		return &Settings{}, nil
	}
	return LoadFile(filepath.Join(folder.Path, FileName))
}

// LoadFile reads and validates one settings file.
func LoadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.path = path
	return s, nil
}

// Parse decodes and validates settings JSON.
func Parse(data []byte) (*Settings, error) {
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks value ranges. Key names are checked by the front-end.
func (s *Settings) Validate() error {
	if s.CyclesPerSecond < 0 {
		return fmt.Errorf("invalid cyclesPerSecond: %d", s.CyclesPerSecond)
	}
	if s.Scale < 0 {
		return fmt.Errorf("invalid scale: %d", s.Scale)
	}
	for name, value := range map[string]string{"foreground": s.Foreground, "background": s.Background} {
		if value == "" {
			continue
		}
		if _, err := ParseColor(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	for k := range s.Keys {
		if _, err := ParseKeyDigit(k); err != nil {
			return err
		}
	}
	return nil
}

// ParseColor parses "#RRGGBB" (the '#' is optional).
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("color %q is not #RRGGBB", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("color %q is not #RRGGBB", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}, nil
}

// ParseKeyDigit parses a CHIP-8 key name "0".."F" (case-insensitive).
func ParseKeyDigit(s string) (uint8, error) {
	if len(s) != 1 {
		return 0, fmt.Errorf("invalid keypad key %q (want 0-F)", s)
	}
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid keypad key %q (want 0-F)", s)
	}
	return uint8(v), nil
}
