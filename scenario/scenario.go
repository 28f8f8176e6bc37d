// Package scenario implements the YAML run-configuration loader added by
// SPEC_FULL.md §6: duration, PRNg root seed, LLC ack-timeout override,
// rx-queue-depth override, and a node-id -> named-routine-bundle mapping.
// Grounded on the teacher's YAML config structs (simulation/simulation_io.go,
// cli/yaml_test.go), loaded the same way with gopkg.in/yaml.v3.
package scenario

import (
	"gopkg.in/yaml.v3"

	"github.com/pdsns/sim/perr"
	"github.com/pdsns/sim/types"
)

// Config is one run's full YAML-sourced configuration. Routines names a
// default routine bundle applied to every node (spec §6: "all nodes share
// the same routine values"); NodeRoutines optionally overrides that
// default for specific node ids.
type Config struct {
	Duration     uint64                  `yaml:"duration"`
	Seed         int64                   `yaml:"seed"`
	AckTimeout   *uint64                 `yaml:"ack_timeout,omitempty"`
	RxQueueDepth *int                    `yaml:"llc_rx_queue_depth,omitempty"`
	Routines     string                  `yaml:"routines"`
	NodeRoutines map[types.NodeID]string `yaml:"node_routines,omitempty"`
}

// Parse parses a scenario document's bytes into a Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, perr.Wrap(perr.BadMessage, err, "scenario: malformed YAML document")
	}
	// Duration 0 is a valid boundary case (spec §8: "duration = 0 (no
	// transmissions complete)"), so it is not rejected here.
	if cfg.Routines == "" {
		return nil, perr.New(perr.InvalidArgument, "scenario: routines bundle name is required")
	}
	return &cfg, nil
}

// RoutineFor reports which named routine bundle node should run: its
// per-node override if one is configured, else the scenario's default.
func (c *Config) RoutineFor(node types.NodeID) string {
	if name, ok := c.NodeRoutines[node]; ok {
		return name
	}
	return c.Routines
}
