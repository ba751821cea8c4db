/*
Package config loads the engine's policy configuration.

PURPOSE:
  Holiday tables were a compiled-in constant in an earlier life of
  this system, which meant a code release every January. Here they
  are data: a YAML file carries the tables per jurisdiction and year,
  alongside the carryover cap and tenant-independent defaults.
  Server and store settings (port, database) stay on flags and the
  environment; this file is policy, not wiring.

FILE SHAPE:
  jurisdiction: uk
  holiday_mode: strict          # or: lenient
  carryover_cap: 5
  default_entitlement: 25
  workers: 4
  holidays:
    uk:
      2025:
        - "2025-01-01"
        - "2025-04-18"
        ...

SEE ALSO:
  - calendar/calendar.go: Consumes the holiday tables
  - carryover/engine.go: Consumes the cap and worker bound
*/
package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/praxishub/leave-engine/calendar"
)

// Config is the engine's policy configuration.
type Config struct {
	// Jurisdiction selects which holiday table set applies.
	Jurisdiction string `yaml:"jurisdiction"`

	// HolidayMode is "strict" (unconfigured years error) or
	// "lenient" (unconfigured years are holiday-free).
	HolidayMode string `yaml:"holiday_mode"`

	// CarryoverCap is the maximum days carried into the next year.
	CarryoverCap float64 `yaml:"carryover_cap"`

	// DefaultEntitlement seeds tenants with no configured default.
	DefaultEntitlement float64 `yaml:"default_entitlement"`

	// Workers bounds the carryover fan-out.
	Workers int `yaml:"workers"`

	// Holidays maps jurisdiction -> year -> ISO dates.
	Holidays map[string]map[int][]string `yaml:"holidays"`
}

// Default returns the configuration used when no file is given:
// strict holiday handling, the 5-day cap, and no holiday tables
// (every lookup in strict mode will fail until tables are supplied,
// which is the point - holiday data is deployment configuration).
func Default() Config {
	return Config{
		Jurisdiction:       "uk",
		HolidayMode:        "strict",
		CarryoverCap:       5,
		DefaultEntitlement: 25,
		Workers:            4,
	}
}

// Load reads and validates a YAML configuration file. Missing
// optional fields fall back to Default values.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Jurisdiction == "" {
		return fmt.Errorf("jurisdiction must be set")
	}
	switch c.HolidayMode {
	case "strict", "lenient":
	default:
		return fmt.Errorf("holiday_mode must be strict or lenient, got %q", c.HolidayMode)
	}
	if c.CarryoverCap < 0 {
		return fmt.Errorf("carryover_cap must not be negative")
	}
	if c.DefaultEntitlement < 0 {
		return fmt.Errorf("default_entitlement must not be negative")
	}
	return nil
}

// Calendar builds the working-day calendar for the configured
// jurisdiction.
func (c Config) Calendar() (*calendar.Calendar, error) {
	mode := calendar.Strict
	if c.HolidayMode == "lenient" {
		mode = calendar.Lenient
	}
	tables := c.Holidays[c.Jurisdiction]
	if tables == nil {
		tables = map[int][]string{}
	}
	cal, err := calendar.New(tables, mode)
	if err != nil {
		return nil, fmt.Errorf("jurisdiction %s: %w", c.Jurisdiction, err)
	}
	return cal, nil
}

// Cap returns the carryover cap as a decimal day amount.
func (c Config) Cap() decimal.Decimal {
	return decimal.NewFromFloat(c.CarryoverCap)
}

// Entitlement returns the default annual entitlement in days.
func (c Config) Entitlement() decimal.Decimal {
	return decimal.NewFromFloat(c.DefaultEntitlement)
}
