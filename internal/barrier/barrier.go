// Package barrier implements swapsync.Consensus across wall processes over
// an MQTT broker.
//
// Each process publishes its proposal for a key as a retained msgpack
// message on <prefix>/<key>/<process>, and subscribes to <prefix>/+/+ to
// learn the proposals of its peers. A version is agreed for a key once the
// configured number of processes propose exactly that version.
package barrier

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/BlueBrain/Tide-sub004/internal/swapsync"
)

var (
	// ErrNotStarted is returned when proposing before Start.
	ErrNotStarted = errors.New("barrier: group not started")
	// ErrInvalidKey is returned for keys that are not a single topic level.
	ErrInvalidKey = errors.New("barrier: invalid key")
	// ErrTimeout is returned when the broker does not acknowledge in time.
	ErrTimeout = errors.New("barrier: broker timeout")
)

// Proposal is the wire message of one process for one key.
type Proposal struct {
	Process string    `msgpack:"process"`
	Key     string    `msgpack:"key"`
	Version uint64    `msgpack:"version"`
	Sent    time.Time `msgpack:"sent"`
}

// Options configures a Group.
type Options struct {
	// ProcessID identifies this process; it is the last topic level.
	ProcessID string
	// Processes is the number of processes taking part, this one included.
	// Defaults to len(Peers).
	Processes int
	// Peers optionally lists the process ids that count toward agreement.
	// Proposals of other ids are ignored.
	Peers []string
	// TopicPrefix defaults to "tide/barrier".
	TopicPrefix string
	QoS         byte
	// Timeout bounds broker acknowledgements, 2s when zero.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Group tracks the proposals of all processes for every key.
type Group struct {
	client mqtt.Client
	opts   Options

	peers map[string]struct{}

	mu        sync.RWMutex
	started   bool
	proposals map[string]map[string]uint64 // key -> process -> version
	own       map[string]struct{}          // keys proposed by this process
	published uint64
	received  uint64
	rejected  uint64
}

// NewGroup creates a group on an already connected client.
func NewGroup(client mqtt.Client, opts Options) (*Group, error) {
	if opts.ProcessID == "" || !validLevel(opts.ProcessID) {
		return nil, fmt.Errorf("barrier: process id %q: %w", opts.ProcessID, ErrInvalidKey)
	}
	if opts.Processes == 0 {
		opts.Processes = len(opts.Peers)
	}
	if opts.Processes < 1 {
		return nil, fmt.Errorf("barrier: %d processes", opts.Processes)
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "tide/barrier"
	}
	opts.TopicPrefix = strings.TrimSuffix(opts.TopicPrefix, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	g := &Group{
		client:    client,
		opts:      opts,
		proposals: make(map[string]map[string]uint64),
		own:       make(map[string]struct{}),
	}
	if len(opts.Peers) > 0 {
		g.peers = make(map[string]struct{}, len(opts.Peers))
		for _, p := range opts.Peers {
			g.peers[p] = struct{}{}
		}
	}
	return g, nil
}

// Start subscribes to the proposals of all processes.
func (g *Group) Start() error {
	filter := g.opts.TopicPrefix + "/+/+"
	g.opts.Logger.Info("subscribing to swap barrier",
		"topic", filter,
		"qos", g.opts.QoS,
		"processes", g.opts.Processes,
		"process_id", g.opts.ProcessID,
	)

	token := g.client.Subscribe(filter, g.opts.QoS, g.messageHandler)
	if !token.WaitTimeout(g.opts.Timeout) {
		return fmt.Errorf("barrier: subscribe %s: %w", filter, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("barrier: subscribe %s: %w", filter, err)
	}

	g.mu.Lock()
	g.started = true
	g.mu.Unlock()
	return nil
}

// Stop clears this process' retained proposals and unsubscribes.
func (g *Group) Stop() error {
	g.mu.Lock()
	g.started = false
	keys := make([]string, 0, len(g.own))
	for k := range g.own {
		keys = append(keys, k)
	}
	clear(g.own)
	g.mu.Unlock()

	if !g.client.IsConnected() {
		return nil
	}
	var errs []error
	for _, key := range keys {
		// an empty retained payload deletes the retained message
		token := g.client.Publish(g.topic(key), g.opts.QoS, true, []byte{})
		if !token.WaitTimeout(g.opts.Timeout) {
			errs = append(errs, fmt.Errorf("barrier: clear %s: %w", key, ErrTimeout))
		} else if err := token.Error(); err != nil {
			errs = append(errs, fmt.Errorf("barrier: clear %s: %w", key, err))
		}
	}
	token := g.client.Unsubscribe(g.opts.TopicPrefix + "/+/+")
	token.WaitTimeout(g.opts.Timeout)

	g.opts.Logger.Info("swap barrier stopped", "process_id", g.opts.ProcessID)
	return errors.Join(errs...)
}

// Consensus returns the swapsync view of this group for key. Distinct keys
// are independent barriers.
func (g *Group) Consensus(key string) swapsync.Consensus {
	return &keyConsensus{group: g, key: key}
}

func (g *Group) topic(key string) string {
	return g.opts.TopicPrefix + "/" + key + "/" + g.opts.ProcessID
}

func (g *Group) propose(key string, version uint64) error {
	if !validLevel(key) {
		return fmt.Errorf("barrier: key %q: %w", key, ErrInvalidKey)
	}
	g.mu.RLock()
	started := g.started
	g.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}

	payload, err := msgpack.Marshal(&Proposal{
		Process: g.opts.ProcessID,
		Key:     key,
		Version: version,
		Sent:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("barrier: marshal proposal: %w", err)
	}

	// the broker may deliver our own message back before Publish returns
	token := g.client.Publish(g.topic(key), g.opts.QoS, true, payload)
	if !token.WaitTimeout(g.opts.Timeout) {
		return fmt.Errorf("barrier: publish %s: %w", key, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("barrier: publish %s: %w", key, err)
	}

	g.mu.Lock()
	g.record(key, g.opts.ProcessID, version)
	g.own[key] = struct{}{}
	g.published++
	g.mu.Unlock()

	g.opts.Logger.Debug("swap proposal published", "key", key, "version", version)
	return nil
}

func (g *Group) check(key string, version uint64) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.started {
		return false, ErrNotStarted
	}
	n := 0
	for process, v := range g.proposals[key] {
		if !g.counts(process) {
			continue
		}
		if v != version {
			return false, nil
		}
		n++
	}
	return n >= g.opts.Processes, nil
}

func (g *Group) newest(key string) (uint64, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.started {
		return 0, false, ErrNotStarted
	}
	var newest uint64
	var ok bool
	for process, v := range g.proposals[key] {
		if g.counts(process) && (!ok || v > newest) {
			newest, ok = v, true
		}
	}
	return newest, ok, nil
}

func (g *Group) counts(process string) bool {
	if g.peers == nil {
		return true
	}
	_, ok := g.peers[process]
	return ok
}

// record must be called with g.mu held.
func (g *Group) record(key, process string, version uint64) {
	peers, ok := g.proposals[key]
	if !ok {
		peers = make(map[string]uint64)
		g.proposals[key] = peers
	}
	peers[process] = version
}

func (g *Group) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	key, process, ok := g.parseTopic(msg.Topic())
	if !ok {
		g.reject("unexpected topic", msg.Topic(), nil)
		return
	}

	if len(msg.Payload()) == 0 {
		// retained proposal cleared by a stopped process
		g.mu.Lock()
		delete(g.proposals[key], process)
		g.mu.Unlock()
		return
	}

	if process == g.opts.ProcessID && msg.Retained() && !g.proposedKey(key) {
		// left over by a previous run of this process; the token is not
		// awaited inside a message handler
		g.client.Publish(msg.Topic(), g.opts.QoS, true, []byte{})
		return
	}

	var p Proposal
	if err := msgpack.Unmarshal(msg.Payload(), &p); err != nil {
		g.reject("invalid proposal", msg.Topic(), err)
		return
	}
	if p.Key != key || p.Process != process {
		g.reject("proposal does not match its topic", msg.Topic(), nil)
		return
	}

	g.mu.Lock()
	g.record(key, process, p.Version)
	g.received++
	g.mu.Unlock()
}

func (g *Group) proposedKey(key string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.own[key]
	return ok
}

func (g *Group) reject(reason, topic string, err error) {
	g.mu.Lock()
	g.rejected++
	g.mu.Unlock()
	g.opts.Logger.Warn("swap proposal rejected", "reason", reason, "topic", topic, "error", err)
}

func (g *Group) parseTopic(topic string) (key, process string, ok bool) {
	rest, found := strings.CutPrefix(topic, g.opts.TopicPrefix+"/")
	if !found {
		return "", "", false
	}
	key, process, found = strings.Cut(rest, "/")
	if !found || !validLevel(key) || !validLevel(process) {
		return "", "", false
	}
	return key, process, true
}

// Status is a snapshot of the proposals for one key.
type Status struct {
	Key       string
	Processes int
	// Versions maps process ids to their proposed version.
	Versions map[string]uint64
}

// Agreed reports whether enough processes propose version and none
// proposes another one.
func (s Status) Agreed(version uint64) bool {
	for _, v := range s.Versions {
		if v != version {
			return false
		}
	}
	return len(s.Versions) >= s.Processes
}

// Status returns the proposals known for key from counted processes.
func (g *Group) Status(key string) Status {
	g.mu.RLock()
	defer g.mu.RUnlock()

	versions := make(map[string]uint64, len(g.proposals[key]))
	for p, v := range g.proposals[key] {
		if g.counts(p) {
			versions[p] = v
		}
	}
	return Status{Key: key, Processes: g.opts.Processes, Versions: versions}
}

// Stats contains barrier traffic counters.
type Stats struct {
	Connected bool
	Published uint64
	Received  uint64
	Rejected  uint64
}

// Stats returns barrier statistics.
func (g *Group) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Stats{
		Connected: g.client.IsConnected(),
		Published: g.published,
		Received:  g.received,
		Rejected:  g.rejected,
	}
}

func validLevel(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/+#")
}

type keyConsensus struct {
	group *Group
	key   string
}

func (c *keyConsensus) Propose(version uint64) error {
	return c.group.propose(c.key, version)
}

func (c *keyConsensus) Check(version uint64) (bool, error) {
	return c.group.check(c.key, version)
}

// Newest implements swapsync.Tracker.
func (c *keyConsensus) Newest() (uint64, bool, error) {
	return c.group.newest(c.key)
}
