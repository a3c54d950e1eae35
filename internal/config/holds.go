package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/creatorhub/backend/internal/models"
)

// HoldPolicy maps each entry type to the number of days its funds are held
// before release.
type HoldPolicy struct {
	DefaultDays int
	Days        map[models.EntryType]int
}

type holdPolicyFile struct {
	DefaultHoldDays *int           `yaml:"default_hold_days"`
	HoldDays        map[string]int `yaml:"hold_days"`
}

// DefaultHoldPolicy holds every type for defaultDays, except refunds which
// apply immediately.
func DefaultHoldPolicy(defaultDays int) HoldPolicy {
	return HoldPolicy{
		DefaultDays: defaultDays,
		Days:        map[models.EntryType]int{models.EntryRefund: 0},
	}
}

// LoadHoldPolicy overlays the YAML file at path onto the defaults. A missing
// file is not an error.
func LoadHoldPolicy(path string, defaultDays int) (HoldPolicy, error) {
	policy := DefaultHoldPolicy(defaultDays)
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return policy, nil
	}
	if err != nil {
		return HoldPolicy{}, fmt.Errorf("read hold policy: %w", err)
	}
	return ParseHoldPolicy(raw, defaultDays)
}

// ParseHoldPolicy decodes a hold-policy document.
func ParseHoldPolicy(raw []byte, defaultDays int) (HoldPolicy, error) {
	policy := DefaultHoldPolicy(defaultDays)
	var f holdPolicyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return HoldPolicy{}, fmt.Errorf("parse hold policy: %w", err)
	}
	if f.DefaultHoldDays != nil {
		if *f.DefaultHoldDays < 0 {
			return HoldPolicy{}, fmt.Errorf("default_hold_days must be >= 0")
		}
		policy.DefaultDays = *f.DefaultHoldDays
	}
	for name, days := range f.HoldDays {
		t := models.EntryType(name)
		if !t.Valid() {
			return HoldPolicy{}, fmt.Errorf("hold_days: unknown entry type %q", name)
		}
		if days < 0 {
			return HoldPolicy{}, fmt.Errorf("hold_days.%s must be >= 0", name)
		}
		policy.Days[t] = days
	}
	return policy, nil
}

// DaysFor returns the hold window for t.
func (p HoldPolicy) DaysFor(t models.EntryType) int {
	if d, ok := p.Days[t]; ok {
		return d
	}
	return p.DefaultDays
}
