package spec

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/aperture-cli/aperture/aperr"
)

// ReservedGroups are top-level command names the CLI keeps for itself. A
// mapping may not move an operation under any of them.
var ReservedGroups = map[string]bool{
	"config":   true,
	"search":   true,
	"exec":     true,
	"docs":     true,
	"overview": true,
}

// CommandMapping customizes how operations surface as CLI commands. Keys of
// Commands are operation ids.
type CommandMapping struct {
	Commands map[string]CommandOverride `yaml:"commands"`
}

// CommandOverride renames, aliases, regroups or hides one operation.
type CommandOverride struct {
	Group   string   `yaml:"group,omitempty"`
	Name    string   `yaml:"name,omitempty"`
	Aliases []string `yaml:"aliases,omitempty"`
	Hidden  bool     `yaml:"hidden,omitempty"`
}

// LoadMapping reads a mapping file. A missing file is not an error; it
// returns a nil mapping.
func LoadMapping(path string) (*CommandMapping, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, aperr.Wrap(aperr.Configuration, err, "failed to read command mapping %s", path)
	}
	var m CommandMapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, aperr.Wrap(aperr.Configuration, err, "failed to parse command mapping %s", path)
	}
	return &m, nil
}

// SaveMapping writes the mapping to path.
func SaveMapping(path string, m *CommandMapping) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return aperr.Wrap(aperr.Configuration, err, "failed to encode command mapping")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return aperr.Wrap(aperr.Configuration, err, "failed to write command mapping %s", path)
	}
	return nil
}

// Apply overlays the mapping onto the cached spec and validates the result.
// Overrides for operation ids the spec does not contain produce warnings, not
// errors, so a mapping survives spec upgrades that drop operations.
func (m *CommandMapping) Apply(s *CachedSpec) ([]string, error) {
	if m == nil || len(m.Commands) == 0 {
		return nil, validateUniqueness(s)
	}

	byOp := make(map[string]*CachedCommand, len(s.Commands))
	for i := range s.Commands {
		c := &s.Commands[i]
		if c.OperationID != "" {
			byOp[c.OperationID] = c
		}
	}

	var warnings []string
	ids := make([]string, 0, len(m.Commands))
	for id := range m.Commands {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		ov := m.Commands[id]
		cmd, ok := byOp[id]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("command mapping entry %q matches no operation", id))
			continue
		}
		if ov.Group != "" {
			if ReservedGroups[ov.Group] {
				return nil, aperr.New(aperr.Configuration,
					"command mapping entry %q: group %q is reserved", id, ov.Group)
			}
			cmd.DisplayGroup = ov.Group
		}
		if ov.Name != "" {
			cmd.DisplayName = ov.Name
		}
		cmd.Aliases = ov.Aliases
		cmd.Hidden = ov.Hidden
	}

	return warnings, validateUniqueness(s)
}

// validateUniqueness rejects effective groups that shadow reserved CLI
// commands, colliding effective (group, name) pairs, and colliding aliases
// within a group. Reserved groups are checked here as well as on mapping
// entries: a spec tag can land on a reserved name without any mapping.
func validateUniqueness(s *CachedSpec) error {
	claimed := make(map[string]string)
	claim := func(group, name, owner string) error {
		key := group + " " + name
		if prev, ok := claimed[key]; ok {
			return aperr.New(aperr.Configuration,
				"commands %q and %q both resolve to %q %q", prev, owner, group, name)
		}
		claimed[key] = owner
		return nil
	}
	for i := range s.Commands {
		c := &s.Commands[i]
		owner := c.OperationID
		if owner == "" {
			owner = c.Method + " " + c.Path
		}
		group := c.EffectiveGroup()
		if ReservedGroups[group] {
			return aperr.New(aperr.Configuration,
				"command %q surfaces under %q, which is a reserved group", owner, group)
		}
		if err := claim(group, c.EffectiveName(), owner); err != nil {
			return err
		}
		for _, alias := range c.Aliases {
			if err := claim(c.EffectiveGroup(), alias, owner); err != nil {
				return err
			}
		}
	}
	return nil
}
