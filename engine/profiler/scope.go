// Package profiler records named scopes into a ring buffer and exports them
// as a speedscope evented profile. Recording is compiled in only with the
// "profile" build tag; otherwise every call is a no-op.
package profiler

import (
	"errors"
	"time"
)

// ErrDisabled is returned by Dump when the binary was built without the profile tag.
var ErrDisabled = errors.New("profiler: built without the profile tag")

// ScopeStats aggregates every closed occurrence of one scope name.
type ScopeStats struct {
	Name  string
	Count int
	Total time.Duration
	Max   time.Duration
}

// Mean is Total/Count.
func (s ScopeStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}
