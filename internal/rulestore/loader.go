package rulestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stocksentry/stocksentry/pkg/types"
)

// ruleFile is the on-disk shape: one file may declare one rule or a list.
type ruleFile struct {
	Rules []types.Rule `yaml:"rules"`
}

// LoadDir reads every .yaml/.yml file in dir and creates the rules it
// declares. Files load in name order so fixtures are deterministic. Rules
// declared active are validated on the way in; an invalid one fails the
// whole load rather than silently landing in error status at startup.
func LoadDir(ctx context.Context, store Store, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading rule dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	loaded := 0
	for _, name := range names {
		path := filepath.Join(dir, name)
		rules, err := parseRuleFile(path)
		if err != nil {
			return loaded, err
		}
		for _, rule := range rules {
			if rule.Status == types.RuleActive {
				if err := ValidateForActivation(rule); err != nil {
					return loaded, fmt.Errorf("%s: rule %q: %w", path, rule.Name, err)
				}
			}
			if _, err := store.Create(ctx, rule); err != nil {
				return loaded, fmt.Errorf("%s: rule %q: %w", path, rule.Name, err)
			}
			loaded++
		}
	}
	return loaded, nil
}

func parseRuleFile(path string) ([]types.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var multi ruleFile
	if err := yaml.Unmarshal(data, &multi); err == nil && len(multi.Rules) > 0 {
		return multi.Rules, nil
	}

	var single types.Rule
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if single.Name == "" {
		return nil, fmt.Errorf("parsing %s: no rules found", path)
	}
	return []types.Rule{single}, nil
}
