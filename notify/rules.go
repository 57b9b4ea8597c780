package notify

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// rulesFile is the on-disk shape of a rules_file sidecar: a flat list under
// a top-level "rules" key, kept separate from Rule itself so the YAML tag
// set can evolve without touching the in-memory type used by Tick.
type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads the optional YAML rule-table sidecar named by the
// config's rules_file option. An empty path is not an error; it returns
// the built-in DefaultRules table.
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("notify: reading rules file %s: %w", path, err)
	}
	var rf rulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("notify: parsing rules file %s: %w", path, err)
	}
	if len(rf.Rules) == 0 {
		return DefaultRules(), nil
	}
	if len(rf.Rules) > 10 {
		return nil, fmt.Errorf("notify: rules file %s has %d rules, exceeds the 10-rule table limit", path, len(rf.Rules))
	}
	return rf.Rules, nil
}
