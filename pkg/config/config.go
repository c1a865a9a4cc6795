// Package config loads the declarative machine/workload description the
// CLI's -config flag points at: a TOML file merged over a built-in
// default, the same file-default-then-flag-override precedence karpenter
// applies to its own Options (env var default -> flag override there;
// file default -> flag override here).
package config

import (
	"os"

	"dario.cat/mergo"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/SMURFSorg/InterferingCheckpoints/pkg/workload"
)

// AppClassConfig is one [[app_class]] table.
type AppClassConfig struct {
	NbCores     int     `toml:"nb_cores"`
	InputPct    float64 `toml:"input_pct"`
	OutputPct   float64 `toml:"output_pct"`
	WallSeconds float64 `toml:"wall_seconds"`
	IOPct       float64 `toml:"io_pct"`
	CkptPct     float64 `toml:"ckpt_pct"`
	TargetShare float64 `toml:"target_share"`
}

// SystemConfig is the [system] table.
type SystemConfig struct {
	Name               string  `toml:"name"`
	Nodes              int     `toml:"nodes"`
	CoresPerNode       int     `toml:"cores_per_node"`
	Bandwidth          float64 `toml:"bandwidth"`
	BBBandwidth        float64 `toml:"bb_bandwidth"`
	MemPerNode         float64 `toml:"mem_per_node"`
	MTBFSeconds        float64 `toml:"mtbf_seconds"`
	MinDurationSeconds float64 `toml:"min_duration_seconds"`
	FixedCkptSeconds   float64 `toml:"fixed_ckpt_seconds"`
}

// Config is the parsed, defaulted configuration.
type Config struct {
	System     SystemConfig     `toml:"system"`
	AppClasses []AppClassConfig `toml:"app_class"`
}

// Defaults returns the baked-in "cielo" demo machine from celio.C, used
// both as cmd/ckptsim's no-flags fallback and as the base every loaded
// file is merged over.
func Defaults() Config {
	return Config{
		System: SystemConfig{
			Name:               "cielo",
			Nodes:              17784,
			CoresPerNode:       16,
			Bandwidth:          1e12,
			BBBandwidth:        32e9,
			MemPerNode:         86400.0,
			MTBFSeconds:        86400,
			MinDurationSeconds: 0,
			FixedCkptSeconds:   -1,
		},
	}
}

// Load reads the TOML file at path (if path is non-empty) and merges it
// over Defaults(): mergo.Merge(&defaults, parsed, mergo.WithOverride),
// so any field the file sets to a non-zero value wins while everything
// else, including a field the file sets to zero, keeps its default.
func Load(path string) (Config, error) {
	var parsed Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "config: reading file")
		}
		if err := toml.Unmarshal(data, &parsed); err != nil {
			return Config{}, errors.Wrap(err, "config: parsing toml")
		}
	}

	result := Defaults()
	if err := mergo.Merge(&result, parsed, mergo.WithOverride); err != nil {
		return Config{}, errors.Wrap(err, "config: merging defaults")
	}
	return result, nil
}

// BuildSystem turns a loaded Config into a workload.System with its
// AppClasses already added (but not yet Finalize'd — the caller supplies
// the PRNG streams for that, per replication).
func (c Config) BuildSystem() (*workload.System, error) {
	if c.System.CoresPerNode <= 0 {
		return nil, errors.New("config: system.cores_per_node must be positive")
	}
	if c.System.Nodes <= 0 {
		return nil, errors.New("config: system.nodes must be positive")
	}

	sys := workload.NewSystem(
		c.System.Name,
		c.System.Nodes,
		c.System.CoresPerNode,
		c.System.Bandwidth,
		c.System.BBBandwidth,
		c.System.MemPerNode,
		c.System.MTBFSeconds,
		c.System.MinDurationSeconds,
	)
	if c.System.FixedCkptSeconds >= 0 {
		sys.SetFixedCheckpointInterval(c.System.FixedCkptSeconds)
	}
	for _, ac := range c.AppClasses {
		if ac.NbCores <= 0 || ac.NbCores%c.System.CoresPerNode != 0 {
			return nil, errors.Errorf("config: app_class nb_cores=%d is not a positive multiple of cores_per_node=%d", ac.NbCores, c.System.CoresPerNode)
		}
		sys.AddAppClass(workload.AppClassSpec{
			NbCores:     ac.NbCores,
			InputPct:    ac.InputPct,
			OutputPct:   ac.OutputPct,
			WallSeconds: ac.WallSeconds,
			IOPct:       ac.IOPct,
			CkptPct:     ac.CkptPct,
			TargetShare: ac.TargetShare,
		})
	}
	return sys, nil
}
