//go:build profile

package profiler

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Init allocates the ring for capacity open/close events. Must be called once
// before the first Start; scopes started earlier are dropped.
func Init(capacity int) {
	if capacity <= 0 {
		capacity = 1 << 16
	}
	ring.init(capacity)
}

func Enabled() bool { return ring.ready.Load() }

// Start opens a scope and returns the func closing it.
func Start(name string) func() {
	if !ring.ready.Load() {
		return func() {}
	}
	id := intern(name)
	begin := time.Now().UnixNano()
	ring.push(event{at: begin, scope: id, open: true})
	return func() {
		end := time.Now().UnixNano()
		if end < begin {
			end = begin
		}
		ring.push(event{at: end, scope: id})
	}
}

// Summary aggregates the recorded scopes, longest total first.
func Summary() []ScopeStats {
	evs := ring.snapshot()
	names := scopeNames()
	byID := map[int]*ScopeStats{}
	var stack []event
	for _, e := range evs {
		if e.open {
			stack = append(stack, e)
			continue
		}
		if len(stack) == 0 || stack[len(stack)-1].scope != e.scope {
			continue
		}
		open := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		st, ok := byID[e.scope]
		if !ok {
			st = &ScopeStats{Name: names[e.scope]}
			byID[e.scope] = st
		}
		d := time.Duration(e.at - open.at)
		st.Count++
		st.Total += d
		st.Max = max(st.Max, d)
	}
	out := make([]ScopeStats, 0, len(byID))
	for _, st := range byID {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Dump writes the recorded events to path as a speedscope evented profile.
func Dump(path string) error {
	evs := ring.snapshot()
	if len(evs) == 0 {
		return fmt.Errorf("profiler: no events to dump")
	}
	doc, err := speedscope(evs, scopeNames())
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("profiler: encode: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("profiler: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("profiler: write: %w", err)
	}
	return nil
}

// ---------- event ring ----------

type event struct {
	at    int64 // unix ns
	scope int
	open  bool
}

type eventRing struct {
	ready atomic.Bool
	size  uint64
	next  atomic.Uint64
	evs   []event
}

func (r *eventRing) init(capacity int) {
	r.size = uint64(capacity)
	r.evs = make([]event, r.size)
	r.next.Store(0)
	r.ready.Store(true)
}

func (r *eventRing) push(e event) {
	i := r.next.Add(1) - 1
	r.evs[i%r.size] = e
}

// snapshot returns the retained events in write order.
func (r *eventRing) snapshot() []event {
	if !r.ready.Load() {
		return nil
	}
	n := r.next.Load()
	start := uint64(0)
	if n > r.size {
		start = n - r.size
	}
	out := make([]event, 0, n-start)
	for k := start; k < n; k++ {
		out = append(out, r.evs[k%r.size])
	}
	return out
}

var ring eventRing

// ---------- scope names ----------

var (
	namesMu sync.Mutex
	names   []string
	ids     = map[string]int{}
)

func intern(name string) int {
	namesMu.Lock()
	defer namesMu.Unlock()
	if id, ok := ids[name]; ok {
		return id
	}
	id := len(names)
	ids[name] = id
	names = append(names, name)
	return id
}

func scopeNames() []string {
	namesMu.Lock()
	defer namesMu.Unlock()
	return append([]string(nil), names...)
}

// ---------- speedscope ----------

type ssFile struct {
	Schema   string      `json:"$schema"`
	Shared   ssShared    `json:"shared"`
	Profiles []ssProfile `json:"profiles"`
	Exporter string      `json:"exporter,omitempty"`
	Name     string      `json:"name,omitempty"`
}

type ssShared struct {
	Frames []ssFrame `json:"frames"`
}

type ssFrame struct {
	Name string `json:"name"`
}

type ssProfile struct {
	Type       string    `json:"type"`
	Name       string    `json:"name"`
	Unit       string    `json:"unit"`
	StartValue int64     `json:"startValue"`
	EndValue   int64     `json:"endValue"`
	Events     []ssEvent `json:"events"`
}

type ssEvent struct {
	Type  string `json:"type"` // "O" or "C"
	At    int64  `json:"at"`   // µs since the first event
	Frame int    `json:"frame"`
}

// speedscope converts events to a balanced evented profile. Closes without a
// matching open are dropped; scopes still open at the end are closed at the
// last timestamp.
func speedscope(evs []event, names []string) (*ssFile, error) {
	base := evs[0].at
	var (
		out   = make([]ssEvent, 0, len(evs))
		stack []int
		last  int64
	)
	for _, e := range evs {
		at := max((e.at-base)/1000, last)
		if e.open {
			out = append(out, ssEvent{Type: "O", At: at, Frame: e.scope})
			stack = append(stack, e.scope)
		} else {
			if len(stack) == 0 || stack[len(stack)-1] != e.scope {
				continue
			}
			stack = stack[:len(stack)-1]
			out = append(out, ssEvent{Type: "C", At: at, Frame: e.scope})
		}
		last = at
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out = append(out, ssEvent{Type: "C", At: last, Frame: stack[i]})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("profiler: no balanced events")
	}

	frames := make([]ssFrame, len(names))
	for i, n := range names {
		frames[i] = ssFrame{Name: n}
	}
	return &ssFile{
		Schema: "https://www.speedscope.app/file-format-schema.json",
		Shared: ssShared{Frames: frames},
		Profiles: []ssProfile{{
			Type:     "evented",
			Name:     "reveal frames",
			Unit:     "microseconds",
			EndValue: last,
			Events:   out,
		}},
		Exporter: "reveal-profiler",
		Name:     "reveal capture",
	}, nil
}
