// Package config holds the runtime configuration for the market engine.
//
// Resolution order: built-in defaults, then an optional YAML file, then
// environment variables. A .env file in the working directory is loaded
// first so local development can override without exporting anything.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Simulation SimulationConfig `yaml:"simulation"`
	Trading    TradingConfig    `yaml:"trading"`
}

// ServerConfig contains HTTP and auth parameters.
type ServerConfig struct {
	Port      string `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  string `yaml:"token_ttl"` // e.g. "1h"
}

// InstrumentConfig seeds one tradable instrument.
type InstrumentConfig struct {
	Name       string  `yaml:"name"`
	Price      int64   `yaml:"price"`
	Volatility float64 `yaml:"volatility"`
}

// SimulationConfig contains the stochastic price model tunables.
type SimulationConfig struct {
	TickInterval string `yaml:"tick_interval"` // e.g. "2s"

	// SlowingFactor damps every per-tick influence; 1 is full speed.
	SlowingFactor float64 `yaml:"slowing_factor"`
	// MeanPrice is the baseline prices revert toward.
	MeanPrice float64 `yaml:"mean_price"`
	// ReversionRate is the fraction of the deviation pulled back per tick.
	ReversionRate float64 `yaml:"reversion_rate"`
	// MaxChangePercent caps momentum influence at this fraction of price.
	MaxChangePercent float64 `yaml:"max_change_percent"`
	// DecayMin/DecayMax bound the per-tick momentum decay draw; both < 1.
	DecayMin float64 `yaml:"decay_min"`
	DecayMax float64 `yaml:"decay_max"`

	// EventProbability is the per-tick chance of a market event.
	EventProbability float64 `yaml:"event_probability"`
	// EventMinStrength/EventMaxStrength bound the momentum impulse magnitude.
	EventMinStrength float64 `yaml:"event_min_strength"`
	EventMaxStrength float64 `yaml:"event_max_strength"`
	// EventGuard suppresses new events while any |momentum| exceeds it.
	EventGuard float64 `yaml:"event_guard"`
	// EventShare is the fraction of instruments an event affects (min 1).
	EventShare float64 `yaml:"event_share"`

	Instruments []InstrumentConfig `yaml:"instruments"`
}

// TradingConfig contains ledger parameters.
type TradingConfig struct {
	// StartingCapital is granted to every new account, in CHF.
	StartingCapital int64 `yaml:"starting_capital"`
	// HistoryLimit is the default number of history records returned.
	HistoryLimit int `yaml:"history_limit"`
	// BuySellEffect scales the momentum perturbation per traded share.
	// Zero disables the hook.
	BuySellEffect float64 `yaml:"buy_sell_effect"`
}

// Default returns the reference configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      "8080",
			JWTSecret: "",
			TokenTTL:  "1h",
		},
		Simulation: SimulationConfig{
			TickInterval:     "2s",
			SlowingFactor:    0.3,
			MeanPrice:        100,
			ReversionRate:    0.05,
			MaxChangePercent: 0.1,
			DecayMin:         0.85,
			DecayMax:         0.95,
			EventProbability: 0.2,
			EventMinStrength: 10,
			EventMaxStrength: 30,
			EventGuard:       10,
			EventShare:       0.6,
			Instruments: []InstrumentConfig{
				{Name: "Stock A", Price: 100, Volatility: 2},
				{Name: "Stock B", Price: 100, Volatility: 3},
				{Name: "Stock C", Price: 100, Volatility: 2},
				{Name: "Stock D", Price: 100, Volatility: 10},
				{Name: "Stock E", Price: 100, Volatility: 1},
			},
		},
		Trading: TradingConfig{
			StartingCapital: 1000,
			HistoryLimit:    1500,
			BuySellEffect:   0,
		},
	}
}

// Load resolves the configuration: defaults, then the YAML file at path
// (or $CONFIG_FILE when path is empty), then environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional .env, ignored if absent

	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Server.JWTSecret = secret
	}
	if interval := os.Getenv("TICK_INTERVAL"); interval != "" {
		cfg.Simulation.TickInterval = interval
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if _, err := time.ParseDuration(c.Server.TokenTTL); err != nil {
		return fmt.Errorf("server.token_ttl: %w", err)
	}
	s := c.Simulation
	if _, err := time.ParseDuration(s.TickInterval); err != nil {
		return fmt.Errorf("simulation.tick_interval: %w", err)
	}
	if s.SlowingFactor <= 0 || s.SlowingFactor > 1 {
		return fmt.Errorf("simulation.slowing_factor must be in (0,1]")
	}
	if s.MeanPrice <= 0 {
		return fmt.Errorf("simulation.mean_price must be positive")
	}
	if s.ReversionRate < 0 || s.ReversionRate > 1 {
		return fmt.Errorf("simulation.reversion_rate must be in [0,1]")
	}
	if s.MaxChangePercent <= 0 || s.MaxChangePercent > 1 {
		return fmt.Errorf("simulation.max_change_percent must be in (0,1]")
	}
	if s.DecayMin <= 0 || s.DecayMax >= 1 || s.DecayMin > s.DecayMax {
		return fmt.Errorf("simulation decay bounds must satisfy 0 < decay_min <= decay_max < 1")
	}
	if s.EventProbability < 0 || s.EventProbability > 1 {
		return fmt.Errorf("simulation.event_probability must be in [0,1]")
	}
	if s.EventMinStrength <= 0 || s.EventMinStrength > s.EventMaxStrength {
		return fmt.Errorf("simulation event strength bounds must satisfy 0 < min <= max")
	}
	if s.EventShare <= 0 || s.EventShare > 1 {
		return fmt.Errorf("simulation.event_share must be in (0,1]")
	}
	if len(s.Instruments) == 0 {
		return fmt.Errorf("simulation.instruments must not be empty")
	}
	seen := make(map[string]bool, len(s.Instruments))
	for _, inst := range s.Instruments {
		if inst.Name == "" {
			return fmt.Errorf("simulation instrument name is required")
		}
		if seen[inst.Name] {
			return fmt.Errorf("duplicate instrument name: %s", inst.Name)
		}
		seen[inst.Name] = true
		if inst.Price < 10 {
			return fmt.Errorf("instrument %s: price must be at least 10", inst.Name)
		}
		if inst.Volatility <= 0 {
			return fmt.Errorf("instrument %s: volatility must be positive", inst.Name)
		}
	}
	if c.Trading.StartingCapital <= 0 {
		return fmt.Errorf("trading.starting_capital must be positive")
	}
	if c.Trading.HistoryLimit <= 0 {
		return fmt.Errorf("trading.history_limit must be positive")
	}
	return nil
}

// Interval returns the parsed tick interval. Validate must have passed.
func (s SimulationConfig) Interval() time.Duration {
	d, err := time.ParseDuration(s.TickInterval)
	if err != nil {
		panic(fmt.Sprintf("config: tick_interval not validated: %v", err))
	}
	return d
}

// TTL returns the parsed token lifetime. Validate must have passed.
func (s ServerConfig) TTL() time.Duration {
	d, err := time.ParseDuration(s.TokenTTL)
	if err != nil {
		panic(fmt.Sprintf("config: token_ttl not validated: %v", err))
	}
	return d
}
