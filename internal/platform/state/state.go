// Package state holds the transition-table primitive shared by the
// encounter, specimen and document state machines.
package state

import (
	"github.com/limshq/lims/internal/platform/fault"
)

// Table maps each status to the statuses reachable from it. A status with
// no entry (or an empty entry) is terminal.
type Table map[string][]string

// Can reports whether from -> to is in the table.
func (t Table) Can(from, to string) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Step validates from -> to and returns a Conflict naming both states when
// the transition is not permitted.
func (t Table) Step(entity, from, to string) error {
	if !t.Can(from, to) {
		return fault.Conflict("%s cannot move from %s to %s", entity, from, to)
	}
	return nil
}

// Terminal reports whether s has no outgoing transitions.
func (t Table) Terminal(s string) bool {
	return len(t[s]) == 0
}
