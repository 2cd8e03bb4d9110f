package explore

import (
	"strings"

	"github.com/mickamy/plancost/internal/model"
)

// Setting pairs a switch with whether the planner may use the operator.
type Setting struct {
	Switch    Switch
	Permitted bool
}

// Configuration is one combination of settings over the switches selected for a run.
// Switches outside the selection stay at the server default. The zero value permits everything.
type Configuration struct {
	Settings []Setting
}

// Forbidden lists the switches the configuration turns off.
func (c Configuration) Forbidden() []Switch {
	var out []Switch
	for _, s := range c.Settings {
		if !s.Permitted {
			out = append(out, s.Switch)
		}
	}
	return out
}

// IsDefault reports whether every switch is permitted, which yields the baseline plan.
func (c Configuration) IsDefault() bool {
	return len(c.Forbidden()) == 0
}

// Forbids reports whether node uses an operator the configuration turned off.
func (c Configuration) Forbids(node *model.PlanNode) bool {
	for _, s := range c.Forbidden() {
		if s.Forbids(node) {
			return true
		}
	}
	return false
}

func (c Configuration) String() string {
	forbidden := c.Forbidden()
	if len(forbidden) == 0 {
		return "defaults"
	}
	names := make([]string, len(forbidden))
	for i, s := range forbidden {
		names[i] = s.Setting() + "=off"
	}
	return strings.Join(names, ", ")
}

// Enumerate returns the power set of on/off settings over selected, in binary counting order:
// bit i of the configuration index turns off the i-th selected switch. Duplicate switches are
// collapsed. Without includeDefaults the all-permitted configuration is left out, since it is
// the baseline.
func Enumerate(selected []Switch, includeDefaults bool) []Configuration {
	keys := dedupSwitches(selected)
	total := 1 << len(keys)

	out := make([]Configuration, 0, total)
	for mask := 0; mask < total; mask++ {
		if mask == 0 && !includeDefaults {
			continue
		}
		settings := make([]Setting, len(keys))
		for i, s := range keys {
			settings[i] = Setting{Switch: s, Permitted: mask&(1<<i) == 0}
		}
		out = append(out, Configuration{Settings: settings})
	}
	return out
}

func dedupSwitches(selected []Switch) []Switch {
	seen := make(map[Switch]bool, len(selected))
	out := make([]Switch, 0, len(selected))
	for _, s := range selected {
		if s >= switchCount || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
