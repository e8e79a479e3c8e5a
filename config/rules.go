package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

// Rules are the competition settings an organizer can tune per event.
type Rules struct {
	SwissRounds          int                   `yaml:"swiss_rounds"`
	MaxSwissRounds       int                   `yaml:"max_swiss_rounds"`
	TierGuardRounds      int                   `yaml:"tier_guard_rounds"`
	Rotation             models.RotationPolicy `yaml:"rotation"`
	TurnoverBuffer       time.Duration         `yaml:"turnover_buffer"`
	DefaultMatchDuration time.Duration         `yaml:"default_match_duration"`
	DefaultPitActivation time.Duration         `yaml:"default_pit_activation"`
	MaxTeamsPerClass     int                   `yaml:"max_teams_per_class"`
	OverdueGrace         time.Duration         `yaml:"overdue_grace"`
	WatchdogInterval     time.Duration         `yaml:"watchdog_interval"`
}

func DefaultRules() Rules {
	return Rules{
		SwissRounds:          3,
		MaxSwissRounds:       10,
		TierGuardRounds:      1,
		Rotation:             models.RotationRoundRobin,
		TurnoverBuffer:       60 * time.Second,
		DefaultMatchDuration: 120 * time.Second,
		DefaultPitActivation: 60 * time.Second,
		MaxTeamsPerClass:     64,
		OverdueGrace:         90 * time.Second,
		WatchdogInterval:     30 * time.Second,
	}
}

// LoadRules reads a YAML rules file over the defaults. An empty path returns the defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("reading rules file: %w", err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) (Rules, error) {
	rules := DefaultRules()
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("parsing rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return rules, err
	}
	return rules, nil
}

func (r Rules) Validate() error {
	var errs []error
	if r.MaxSwissRounds < 1 {
		errs = append(errs, fmt.Errorf("max_swiss_rounds must be positive, got %d", r.MaxSwissRounds))
	}
	if r.SwissRounds < 1 || r.SwissRounds > r.MaxSwissRounds {
		errs = append(errs, fmt.Errorf("swiss_rounds must be between 1 and %d, got %d", r.MaxSwissRounds, r.SwissRounds))
	}
	if r.TierGuardRounds < 0 {
		errs = append(errs, fmt.Errorf("tier_guard_rounds must not be negative, got %d", r.TierGuardRounds))
	}
	if !r.Rotation.Valid() {
		errs = append(errs, fmt.Errorf("unknown rotation %q", r.Rotation))
	}
	for name, d := range map[string]time.Duration{
		"default_match_duration": r.DefaultMatchDuration,
		"overdue_grace":          r.OverdueGrace,
		"watchdog_interval":      r.WatchdogInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if r.TurnoverBuffer < 0 || r.DefaultPitActivation < 0 {
		errs = append(errs, errors.New("turnover_buffer and default_pit_activation must not be negative"))
	}
	if r.MaxTeamsPerClass < 2 {
		errs = append(errs, fmt.Errorf("max_teams_per_class must be at least 2, got %d", r.MaxTeamsPerClass))
	}
	return errors.Join(errs...)
}
