package services

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed catalog/default.yaml
var defaultCatalog []byte

// RewardSeed is one reward entry in a catalog file.
type RewardSeed struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Cost        int64  `yaml:"cost"`
	Stock       int64  `yaml:"stock"`
}

// Catalog is the seed data applied at startup.
type Catalog struct {
	Levels   LevelTable     `yaml:"levels"`
	Missions []MissionInput `yaml:"missions"`
	Rewards  []RewardSeed   `yaml:"rewards"`
}

// LoadCatalog reads a catalog file, or the built-in one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read catalog: %w", err)
		}
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(c.Levels) == 0 {
		c.Levels = DefaultLevelTable
	}
	if err := c.Levels.Validate(); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(c.Rewards))
	for _, r := range c.Rewards {
		name := normalizeName(r.Name)
		if seen[name] {
			return nil, fmt.Errorf("catalog lists reward %q twice", name)
		}
		seen[name] = true
	}
	return &c, nil
}

// SeedReport counts what Seed created.
type SeedReport struct {
	RewardsCreated  int `json:"rewards_created"`
	RewardsUpdated  int `json:"rewards_updated"`
	MissionsCreated int `json:"missions_created"`
}

// Seed applies the catalog. Running it again is harmless.
func (l *Ledger) Seed(ctx context.Context, c *Catalog) (*SeedReport, error) {
	report := &SeedReport{}
	for _, in := range c.Missions {
		_, created, err := l.Missions.EnsureMission(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("seed mission %q: %w", in.Code, err)
		}
		if created {
			report.MissionsCreated++
		}
	}
	for _, r := range c.Rewards {
		_, created, err := l.Rewards.CreateReward(ctx, r.Name, r.Description, r.Cost, r.Stock)
		if err != nil {
			return nil, fmt.Errorf("seed reward %q: %w", r.Name, err)
		}
		if created {
			report.RewardsCreated++
		} else {
			report.RewardsUpdated++
		}
	}
	l.Log.Info("catalog seeded",
		zap.Int("rewards_created", report.RewardsCreated),
		zap.Int("rewards_updated", report.RewardsUpdated),
		zap.Int("missions_created", report.MissionsCreated),
	)
	return report, nil
}
