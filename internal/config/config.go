package config

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"vintner/internal/domain"
)

// Config models vintner.yml: the numeric tuning for one game. It is
// imported into the DB per game and read back by engine and CLI.
type Config struct {
	Game struct {
		ID           string  `yaml:"id"`
		StartingCash float64 `yaml:"starting_cash"`
	} `yaml:"game"`
	Work struct {
		// BaseRates are work units per natural unit of each category
		// (acre, kg, candidate...). Consumed by the estimators.
		BaseRates map[string]float64 `yaml:"base_rates"`
		// SkillWeight scales how strongly a staff skill multiplies
		// contributed capacity: capacity = weekly_work * (1 + skill*weight).
		SkillWeight float64 `yaml:"skill_weight"`
	} `yaml:"work"`
	Staff struct {
		SearchCostPerCandidate float64 `yaml:"search_cost_per_candidate"`
		BaseWeeklyWork         float64 `yaml:"base_weekly_work"`
		BaseWeeklyWage         float64 `yaml:"base_weekly_wage"`
	} `yaml:"staff"`
	Vineyard struct {
		YieldKgPerVine float64 `yaml:"yield_kg_per_vine"`
		LitersPerKg    float64 `yaml:"liters_per_kg"`
	} `yaml:"vineyard"`
	Finance struct {
		LoanOffersPerSearch int     `yaml:"loan_offers_per_search"`
		BaseWeeklyRate      float64 `yaml:"base_weekly_rate"`
	} `yaml:"finance"`
}

// Default returns the stock tuning for a new game.
func Default(gameID string) *Config {
	cfg := &Config{}
	cfg.Game.ID = gameID
	cfg.Game.StartingCash = 100000
	cfg.Work.BaseRates = map[string]float64{
		string(domain.CategoryPlanting):       20,   // per acre
		string(domain.CategoryHarvesting):     0.08, // per kg expected yield
		string(domain.CategoryClearing):       8,    // per acre
		string(domain.CategoryUprooting):      14,   // per acre
		string(domain.CategoryCrushing):       0.05, // per kg of grapes
		string(domain.CategoryFermentation):   0.04, // per liter of must
		string(domain.CategoryStaffSearch):    12,   // per candidate, scaled by skill^1.8
		string(domain.CategoryAdministration): 25,   // per hire
		string(domain.CategoryLenderSearch):   18,   // per offer
		string(domain.CategoryBookkeeping):    1.5,  // per transaction
	}
	cfg.Work.SkillWeight = 1.0
	cfg.Staff.SearchCostPerCandidate = 150
	cfg.Staff.BaseWeeklyWork = 50
	cfg.Staff.BaseWeeklyWage = 500
	cfg.Vineyard.YieldKgPerVine = 2.0
	cfg.Vineyard.LitersPerKg = 0.6
	cfg.Finance.LoanOffersPerSearch = 3
	cfg.Finance.BaseWeeklyRate = 0.01
	return cfg
}

// FromYAML parses and validates a config document.
func FromYAML(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, cfg.Validate()
}

// ToYAML renders the config for export.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Game.ID == "" {
		return fmt.Errorf("config.game.id is required")
	}
	if c.Game.StartingCash < 0 {
		return fmt.Errorf("config.game.starting_cash must be >= 0")
	}
	if len(c.Work.BaseRates) == 0 {
		return fmt.Errorf("config.work.base_rates is required")
	}
	for _, cat := range domain.Categories {
		rate, ok := c.Work.BaseRates[string(cat)]
		if !ok {
			return fmt.Errorf("config.work.base_rates missing category %s", cat)
		}
		if rate <= 0 {
			return fmt.Errorf("config.work.base_rates.%s must be > 0", cat)
		}
	}
	for name := range c.Work.BaseRates {
		if !domain.ValidCategory(domain.ActivityCategory(name)) {
			return fmt.Errorf("config.work.base_rates has unknown category %s", name)
		}
	}
	if c.Work.SkillWeight < 0 {
		return fmt.Errorf("config.work.skill_weight must be >= 0")
	}
	if c.Staff.BaseWeeklyWork <= 0 {
		return fmt.Errorf("config.staff.base_weekly_work must be > 0")
	}
	if c.Vineyard.YieldKgPerVine <= 0 {
		return fmt.Errorf("config.vineyard.yield_kg_per_vine must be > 0")
	}
	if c.Vineyard.LitersPerKg <= 0 {
		return fmt.Errorf("config.vineyard.liters_per_kg must be > 0")
	}
	if c.Finance.LoanOffersPerSearch <= 0 {
		return fmt.Errorf("config.finance.loan_offers_per_search must be > 0")
	}
	return nil
}
