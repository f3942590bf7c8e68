package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"trendr/internal/backtest"
	"trendr/internal/ml"
)

// StrategyFile is the optional YAML document named by TRENDR_STRATEGY_FILE.
// Keys it omits keep the values already loaded from the environment.
//
//	symbols: [ETH-USD, BTC-USD]
//	model: ensemble
//	backtest:
//	  threshold_long: 0.6
type StrategyFile struct {
	Symbols  []string        `yaml:"symbols"`
	Interval string          `yaml:"interval"`
	Start    string          `yaml:"start"`
	Model    string          `yaml:"model"`
	TestDays int             `yaml:"test_days"`
	Backtest backtest.Params `yaml:"backtest"`
}

// LoadStrategy reads path and overlays it on c.
func (c *Config) LoadStrategy(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s, err := parseStrategy(raw, c.strategySeed())
	if err != nil {
		return err
	}
	c.ApplyStrategy(s)
	return nil
}

// parseStrategy decodes raw on top of base, so explicit zero values such as
// tx_cost_bps: 0 survive.
func parseStrategy(raw []byte, base StrategyFile) (*StrategyFile, error) {
	s := base
	s.Symbols = append([]string(nil), base.Symbols...)
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse strategy: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Config) strategySeed() StrategyFile {
	return StrategyFile{
		Symbols:  c.Symbols,
		Interval: c.Interval,
		Start:    c.Start.Format(time.DateOnly),
		Model:    c.Model,
		TestDays: c.TestDays,
		Backtest: c.Backtest,
	}
}

func (s *StrategyFile) Validate() error {
	name, err := ml.ParseModelName(s.Model)
	if err != nil {
		return err
	}
	s.Model = name
	if strings.TrimSpace(s.Interval) == "" {
		return fmt.Errorf("strategy interval must not be empty")
	}
	if _, err := time.Parse(time.DateOnly, s.Start); err != nil {
		return fmt.Errorf("strategy start %q: %w", s.Start, err)
	}
	if s.TestDays <= 0 {
		return fmt.Errorf("strategy test_days must be positive, got %d", s.TestDays)
	}
	return s.Backtest.Validate()
}

// ApplyStrategy copies a validated strategy into c.
func (c *Config) ApplyStrategy(s *StrategyFile) {
	if syms := parseSymbols(strings.Join(s.Symbols, ",")); len(syms) > 0 {
		c.Symbols = syms
	}
	c.Interval = s.Interval
	if t, err := time.Parse(time.DateOnly, s.Start); err == nil {
		c.Start = t
	}
	c.Model = s.Model
	c.TestDays = s.TestDays
	c.Backtest = s.Backtest
}
