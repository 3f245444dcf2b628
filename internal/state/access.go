package state

import "strconv"

// AccessLevels maps servergroups to command access levels.
type AccessLevels struct {
	Default int
	// Groups is keyed by servergroup name. Keys that are decimal numbers
	// also match the servergroup id.
	Groups map[string]int
}

// Resolve returns the highest level granted by groups (name -> sgid), never
// lower than the default.
func (a AccessLevels) Resolve(groups map[string]int) int {
	level := a.Default

	for name, sgid := range groups {
		if l, ok := a.Groups[name]; ok && l > level {
			level = l
		}

		if l, ok := a.Groups[strconv.Itoa(sgid)]; ok && l > level {
			level = l
		}
	}

	return level
}
