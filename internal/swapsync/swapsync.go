// Package swapsync makes independent wall processes agree on the content
// generation they display before any of them swaps it in.
//
// Every process holds an Object wrapping the latest candidate value and its
// version. Sync proposes the candidate version to a Consensus and installs
// the value once every process proposes exactly that version. Processes
// whose candidates differ wait: the one behind replaces its candidate with
// the newest proposed version (see Tracker) and the group converges. A
// process that never produces a candidate stalls the whole group: waiting
// is the expected steady state and Sync reports it as (false, nil).
//
// Consensus is transport independent: LocalGroup implements it in process,
// the barrier package over MQTT.
package swapsync

import (
	"fmt"
	"sync"
)

// Consensus is one process' view of a versioned barrier.
type Consensus interface {
	// Propose publishes the version this process is ready to display.
	Propose(version uint64) error
	// Check reports whether every process proposes exactly version.
	Check(version uint64) (bool, error)
}

// Tracker is implemented by a Consensus that can report the newest version
// proposed by any process, so that a process behind its peers can catch up.
type Tracker interface {
	Newest() (version uint64, ok bool, err error)
}

// Object holds a value that is swapped in on all processes at once.
type Object[T any] struct {
	mu sync.Mutex

	value   T
	version uint64

	candidate        T
	candidateVersion uint64
	hasCandidate     bool
	proposed         bool

	install func(value T, version uint64)
}

// NewObject creates an object calling install each time a candidate is
// agreed. install runs on the goroutine calling Sync, without locks held.
func NewObject[T any](install func(value T, version uint64)) *Object[T] {
	return &Object[T]{install: install}
}

// Update replaces the candidate. A candidate not yet agreed is overwritten:
// only the latest generation is ever proposed.
func (o *Object[T]) Update(value T, version uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.hasCandidate && o.candidateVersion != version {
		o.proposed = false
	}
	o.candidate, o.candidateVersion = value, version
	o.hasCandidate = true
}

// Candidate returns the version waiting to be synchronized, if any.
func (o *Object[T]) Candidate() (uint64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.candidateVersion, o.hasCandidate
}

// HasCandidate reports whether a value is waiting to be synchronized.
func (o *Object[T]) HasCandidate() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hasCandidate
}

// Sync proposes the candidate and installs it when the group agrees. It
// never blocks on peers: (false, nil) means "not yet", retry next tick.
func (o *Object[T]) Sync(c Consensus) (bool, error) {
	o.mu.Lock()
	if !o.hasCandidate {
		o.mu.Unlock()
		return false, nil
	}
	version := o.candidateVersion
	if !o.proposed {
		if err := c.Propose(version); err != nil {
			o.mu.Unlock()
			return false, fmt.Errorf("swapsync: propose %d: %w", version, err)
		}
		o.proposed = true
	}
	o.mu.Unlock()

	agreed, err := c.Check(version)
	if err != nil {
		return false, fmt.Errorf("swapsync: check %d: %w", version, err)
	}
	if !agreed {
		return false, nil
	}

	o.mu.Lock()
	if !o.hasCandidate || o.candidateVersion != version {
		// replaced while checking; the new candidate is proposed next time
		o.mu.Unlock()
		return false, nil
	}
	value := o.candidate
	o.value, o.version = value, version
	var zero T
	o.candidate, o.hasCandidate, o.proposed = zero, false, false
	o.mu.Unlock()

	if o.install != nil {
		o.install(value, version)
	}
	return true, nil
}

// Value returns the installed value.
func (o *Object[T]) Value() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// Version returns the installed version.
func (o *Object[T]) Version() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.version
}

// LocalGroup is an in-process Consensus shared by n members, used by tests
// and single-process walls.
type LocalGroup struct {
	mu        sync.Mutex
	proposals []uint64
	proposed  []bool
}

// NewLocalGroup creates a group of n members.
func NewLocalGroup(n int) *LocalGroup {
	return &LocalGroup{proposals: make([]uint64, n), proposed: make([]bool, n)}
}

// Member returns the Consensus of member i.
func (g *LocalGroup) Member(i int) Consensus {
	return &localMember{group: g, index: i}
}

// Proposals returns a copy of the current proposals; members that never
// proposed are reported as absent.
func (g *LocalGroup) Proposals() map[int]uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[int]uint64)
	for i, v := range g.proposals {
		if g.proposed[i] {
			out[i] = v
		}
	}
	return out
}

type localMember struct {
	group *LocalGroup
	index int
}

func (m *localMember) Propose(version uint64) error {
	g := m.group
	g.mu.Lock()
	defer g.mu.Unlock()

	if m.index < 0 || m.index >= len(g.proposals) {
		return fmt.Errorf("swapsync: member %d of %d", m.index, len(g.proposals))
	}
	g.proposals[m.index] = version
	g.proposed[m.index] = true
	return nil
}

func (m *localMember) Check(version uint64) (bool, error) {
	g := m.group
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, v := range g.proposals {
		if !g.proposed[i] || v != version {
			return false, nil
		}
	}
	return true, nil
}

func (m *localMember) Newest() (uint64, bool, error) {
	g := m.group
	g.mu.Lock()
	defer g.mu.Unlock()

	var newest uint64
	var ok bool
	for i, v := range g.proposals {
		if g.proposed[i] && (!ok || v > newest) {
			newest, ok = v, true
		}
	}
	return newest, ok, nil
}
