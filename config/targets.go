package config

import (
	"os"
	"strings"
	"time"

	"github.com/ftahirops/sqlsentinel/model"
)

// EffectiveSettings are the fully resolved collection knobs for one
// target after the global -> instance -> database cascade.
type EffectiveSettings struct {
	TopN              int
	Lookback          time.Duration
	MinimumExecutions int64
	CollectionTimeout time.Duration
}

// ResolvedTarget binds a target to its connection string and effective
// settings for the duration of a cycle.
type ResolvedTarget struct {
	Target           model.Target
	ConnectionString string
	Settings         EffectiveSettings
}

// Targets expands the instance/database tree into the enabled target
// list with cascaded settings. Disabled instances drop all their
// databases; Tags merge instance-then-database.
func (c Config) Targets() []ResolvedTarget {
	var out []ResolvedTarget
	for _, inst := range c.Instances {
		if inst.Enabled != nil && !*inst.Enabled {
			continue
		}
		dsn := os.ExpandEnv(inst.ConnectionString)
		for _, db := range inst.Databases {
			if db.Enabled != nil && !*db.Enabled {
				continue
			}
			tags := append(append([]string{}, inst.Tags...), db.Tags...)
			out = append(out, ResolvedTarget{
				Target: model.Target{
					Instance: inst.Name,
					Database: db.Name,
					Enabled:  true,
					Tags:     tags,
				},
				ConnectionString: dsn,
				Settings:         c.resolve(inst.Overrides, db.Overrides),
			})
		}
	}
	return out
}

// SelectTargets filters Targets by an operator selector: "" matches all,
// "instance" matches one instance, "instance/database" one target.
func (c Config) SelectTargets(selector string) []ResolvedTarget {
	all := c.Targets()
	if selector == "" {
		return all
	}
	var out []ResolvedTarget
	for _, rt := range all {
		if rt.Target.Instance == selector || rt.Target.Key() == selector {
			out = append(out, rt)
		}
	}
	return out
}

// GetConnectionString implements the secret-resolver contract: returns
// the env-expanded connection string for a target, or "" when unknown.
func (c Config) GetConnectionString(target model.Target) string {
	for _, inst := range c.Instances {
		if inst.Name == target.Instance {
			return os.ExpandEnv(inst.ConnectionString)
		}
	}
	return ""
}

// resolve applies the cascade: nearer overrides farther.
func (c Config) resolve(inst, db CollectionSettings) EffectiveSettings {
	eff := EffectiveSettings{
		TopN:              c.Collection.TopN,
		Lookback:          c.Collection.Lookback,
		MinimumExecutions: c.Collection.MinimumExecutions,
		CollectionTimeout: c.Collection.CollectionTimeout,
	}
	for _, layer := range []CollectionSettings{inst, db} {
		if layer.TopN != nil {
			eff.TopN = *layer.TopN
		}
		if layer.Lookback != nil {
			eff.Lookback = *layer.Lookback
		}
		if layer.MinimumExecutions != nil {
			eff.MinimumExecutions = *layer.MinimumExecutions
		}
		if layer.CollectionTimeout != nil {
			eff.CollectionTimeout = *layer.CollectionTimeout
		}
	}
	return eff
}

// IsProduction reports whether a target is tagged production; the
// remediation executor refuses such targets unless explicitly allowed.
func IsProduction(t model.Target) bool {
	for _, tag := range t.Tags {
		if strings.EqualFold(tag, "production") {
			return true
		}
	}
	return false
}
