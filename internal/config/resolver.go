package config

import (
	"slices"

	"gopkg.in/yaml.v3"
)

// Resolve returns the sorted IDs of the enabled modules. A module section
// containing "enabled: false" is skipped. The deterministic order ensures
// consistent module loading.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id, node := range cfg.Modules {
		if !moduleEnabled(node) {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func moduleEnabled(node yaml.Node) bool {
	var toggle moduleToggle
	if err := node.Decode(&toggle); err != nil {
		return true
	}
	return toggle.Enabled == nil || *toggle.Enabled
}
