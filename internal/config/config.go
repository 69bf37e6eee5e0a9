// Package config loads the driver's tuning parameters from an optional
// JSON file. Every field is a pointer so a config file can override as
// few or as many settings as it likes; anything left nil falls back to
// the vendor defaults baked into the component packages.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const maxConfigSize = 1 << 20 // 1MB, generous for a tuning file

// Config is the top-level tuning document. It mirrors the shape of the
// component Params structs in internal/autorange and internal/temporal so
// a config file reads as a direct override of the running driver's
// constants.
type Config struct {
	AutoRange *AutoRangeConfig `json:"autoRange,omitempty"`
	Temporal  *TemporalConfig  `json:"temporal,omitempty"`
	Telemetry *TelemetryConfig `json:"telemetry,omitempty"`
}

// AutoRangeConfig overrides internal/autorange.Params.
type AutoRangeConfig struct {
	Sat *int `json:"sat,omitempty"`
	Pct *int `json:"pct,omitempty"`
	IHi *int `json:"ihi,omitempty"`
	CX0 *int `json:"cx0,omitempty"`
	CY0 *int `json:"cy0,omitempty"`
	CW  *int `json:"cw,omitempty"`
	CH  *int `json:"ch,omitempty"`
}

// TemporalConfig overrides internal/temporal.Params and the reformatter's
// variance mask threshold.
type TemporalConfig struct {
	F0   *float64 `json:"f0,omitempty"`
	NV   *float64 `json:"nv,omitempty"`
	VLim *int     `json:"vlim,omitempty"`
}

// TelemetryConfig controls the optional SQLite event recorder.
type TelemetryConfig struct {
	Enabled *bool   `json:"enabled,omitempty"`
	DBPath  *string `json:"dbPath,omitempty"`
}

// Empty returns a Config with every field nil, so every setting falls
// through to its component default.
func Empty() *Config {
	return &Config{}
}

// Load reads and parses a JSON tuning file. It rejects anything that
// isn't a .json file and caps the file size to guard against an operator
// accidentally pointing it at something enormous.
func Load(path string) (*Config, error) {
	if filepath.Ext(path) != ".json" {
		return nil, fmt.Errorf("config: %s: must have a .json extension", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config: %s: %d bytes exceeds %d byte limit", path, info.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate rejects settings that are structurally nonsensical. It does
// not attempt to second-guess tuning choices, only bounds that would
// break an invariant elsewhere in the driver (e.g. a percentage outside
// [0,100] or a zero noise floor).
func (c *Config) Validate() error {
	if c.AutoRange != nil {
		if c.AutoRange.Pct != nil && (*c.AutoRange.Pct < 0 || *c.AutoRange.Pct > 100) {
			return fmt.Errorf("autoRange.pct %d out of range [0,100]", *c.AutoRange.Pct)
		}
		if c.AutoRange.Sat != nil && (*c.AutoRange.Sat < 0 || *c.AutoRange.Sat > 100) {
			return fmt.Errorf("autoRange.sat %d out of range [0,100]", *c.AutoRange.Sat)
		}
	}
	if c.Temporal != nil {
		if c.Temporal.F0 != nil && (*c.Temporal.F0 <= 0 || *c.Temporal.F0 > 1) {
			return fmt.Errorf("temporal.f0 %v out of range (0,1]", *c.Temporal.F0)
		}
		if c.Temporal.VLim != nil && (*c.Temporal.VLim < 0 || *c.Temporal.VLim > 255) {
			return fmt.Errorf("temporal.vlim %d out of range [0,255]", *c.Temporal.VLim)
		}
		if c.Temporal.NV != nil && *c.Temporal.NV <= 0 {
			return fmt.Errorf("temporal.nv %v must be > 0", *c.Temporal.NV)
		}
	}
	return nil
}

func (c *Config) autoRange() AutoRangeConfig {
	if c == nil || c.AutoRange == nil {
		return AutoRangeConfig{}
	}
	return *c.AutoRange
}

func (c *Config) temporal() TemporalConfig {
	if c == nil || c.Temporal == nil {
		return TemporalConfig{}
	}
	return *c.Temporal
}

// GetSat returns the configured saturation threshold or def if unset.
func (c *Config) GetSat(def int) int { return intOr(c.autoRange().Sat, def) }

// GetPct returns the configured percentile or def if unset.
func (c *Config) GetPct(def int) int { return intOr(c.autoRange().Pct, def) }

// GetIHi returns the configured target intensity or def if unset.
func (c *Config) GetIHi(def int) int { return intOr(c.autoRange().IHi, def) }

// GetROI returns the configured central region of interest, falling back
// field-by-field to def.
func (c *Config) GetROI(def [4]int) (cx0, cy0, cw, ch int) {
	ar := c.autoRange()
	return intOr(ar.CX0, def[0]), intOr(ar.CY0, def[1]), intOr(ar.CW, def[2]), intOr(ar.CH, def[3])
}

// GetF0 returns the configured temporal process constant or def if unset.
func (c *Config) GetF0(def float64) float64 { return floatOr(c.temporal().F0, def) }

// GetNV returns the configured temporal noise floor or def if unset.
func (c *Config) GetNV(def float64) float64 { return floatOr(c.temporal().NV, def) }

// GetVLim returns the configured variance mask threshold or def if unset.
func (c *Config) GetVLim(def int) int { return intOr(c.temporal().VLim, def) }

// TelemetryEnabled reports whether the telemetry recorder should run.
func (c *Config) TelemetryEnabled() bool {
	if c == nil || c.Telemetry == nil || c.Telemetry.Enabled == nil {
		return false
	}
	return *c.Telemetry.Enabled
}

// TelemetryDBPath returns the configured SQLite path, or "" if no path
// was given. It does not consult Enabled.
func (c *Config) TelemetryDBPath() string {
	if c == nil || c.Telemetry == nil || c.Telemetry.DBPath == nil {
		return ""
	}
	return *c.Telemetry.DBPath
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
