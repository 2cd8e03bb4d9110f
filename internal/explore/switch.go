// Package explore enumerates planner switch configurations and collects the plans PostgreSQL
// chooses under each of them.
package explore

import (
	"fmt"
	"strings"

	"github.com/mickamy/plancost/internal/model"
)

// Switch is a planner operator that can be forbidden through an enable_* setting.
type Switch uint8

const (
	SwitchBitmapScan Switch = iota
	SwitchIndexScan
	SwitchIndexOnlyScan
	SwitchSeqScan
	SwitchTidScan
	SwitchHashJoin
	SwitchMergeJoin
	SwitchNestLoop
	SwitchHashAgg
	SwitchMaterial
	SwitchSort
	switchCount
)

type switchInfo struct {
	name    string
	setting string
	kinds   []model.Kind
	// strategy restricts an Aggregate match to the given "Strategy" value.
	strategy string
}

var switches = [switchCount]switchInfo{
	SwitchBitmapScan:    {name: "Bitmap Scan", setting: "enable_bitmapscan", kinds: []model.Kind{model.KindBitmapHeapScan, model.KindBitmapIndexScan}},
	SwitchIndexScan:     {name: "Index Scan", setting: "enable_indexscan", kinds: []model.Kind{model.KindIndexScan}},
	SwitchIndexOnlyScan: {name: "Index-only Scan", setting: "enable_indexonlyscan", kinds: []model.Kind{model.KindIndexOnlyScan}},
	SwitchSeqScan:       {name: "Sequential Scan", setting: "enable_seqscan", kinds: []model.Kind{model.KindSeqScan}},
	SwitchTidScan:       {name: "Tid Scan", setting: "enable_tidscan", kinds: []model.Kind{model.KindTidScan}},
	SwitchHashJoin:      {name: "Hash Join", setting: "enable_hashjoin", kinds: []model.Kind{model.KindHashJoin}},
	SwitchMergeJoin:     {name: "Merge Join", setting: "enable_mergejoin", kinds: []model.Kind{model.KindMergeJoin}},
	SwitchNestLoop:      {name: "Nested Loop Join", setting: "enable_nestloop", kinds: []model.Kind{model.KindNestedLoop}},
	SwitchHashAgg:       {name: "Hashed Aggregation", setting: "enable_hashagg", kinds: []model.Kind{model.KindAggregate}, strategy: "Hashed"},
	SwitchMaterial:      {name: "Materialization", setting: "enable_material", kinds: []model.Kind{model.KindMaterialize}},
	SwitchSort:          {name: "Explicit Sort", setting: "enable_sort", kinds: []model.Kind{model.KindSort}},
}

// Switches returns every switch in catalogue order.
func Switches() []Switch {
	out := make([]Switch, 0, switchCount)
	for s := Switch(0); s < switchCount; s++ {
		out = append(out, s)
	}
	return out
}

// DefaultSwitches returns the scan and join switches, explored when the caller selects none.
func DefaultSwitches() []Switch {
	return []Switch{
		SwitchBitmapScan, SwitchIndexScan, SwitchIndexOnlyScan, SwitchSeqScan,
		SwitchHashJoin, SwitchMergeJoin, SwitchNestLoop,
	}
}

func (s Switch) String() string {
	if s >= switchCount {
		return fmt.Sprintf("Switch(%d)", s)
	}
	return switches[s].name
}

// Setting is the planner GUC toggled by the switch, e.g. enable_seqscan.
func (s Switch) Setting() string {
	if s >= switchCount {
		return ""
	}
	return switches[s].setting
}

// Forbids reports whether a node is an operator the switch disables.
func (s Switch) Forbids(node *model.PlanNode) bool {
	if node == nil || s >= switchCount {
		return false
	}
	info := switches[s]
	for _, kind := range info.kinds {
		if node.Kind != kind {
			continue
		}
		if info.strategy == "" || strings.EqualFold(node.Strategy, info.strategy) {
			return true
		}
	}
	return false
}

// ParseSwitch accepts a catalogue name ("Hash Join"), a setting ("enable_hashjoin") or the
// setting without its prefix ("hashjoin"), case-insensitively.
func ParseSwitch(name string) (Switch, error) {
	key := normalizeSwitchName(name)
	for s := Switch(0); s < switchCount; s++ {
		info := switches[s]
		setting := strings.TrimPrefix(info.setting, "enable_")
		if key == normalizeSwitchName(info.name) || key == setting || key == info.setting {
			return s, nil
		}
	}
	return 0, fmt.Errorf("explore: unknown switch %q", name)
}

// ParseSwitches parses a comma separated list of switch names.
func ParseSwitches(list string) ([]Switch, error) {
	var out []Switch
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		s, err := ParseSwitch(part)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func normalizeSwitchName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if strings.HasPrefix(name, "enable_") {
		return name
	}
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(name)
}
