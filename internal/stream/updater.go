// Package stream feeds received pixel stream frames into a wall process.
//
// The Updater is a single-slot mailbox: Receive never blocks and a frame
// not yet taken is overwritten by the next one. Frames leave the mailbox
// one at a time: a frame becomes the swap candidate only once the previous
// one was displayed (AllowNextFrame), and it is installed in the data source
// only once every wall process agreed on it.
//
// Processes drop different frames, so their candidates may differ. When a
// peer proposes a newer frame, the updater replaces its candidate with that
// frame from its recent history, or with a newer received frame, until all
// processes propose the same one.
package stream

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BlueBrain/Tide-sub004/internal/datasource"
	"github.com/BlueBrain/Tide-sub004/internal/swapsync"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// DefaultStallThreshold is the time a frame may stay in flight before the
// stream is reported as not advancing.
const DefaultStallThreshold = 5 * time.Second

// historySize is the number of received frames kept to catch up with peers.
const historySize = 16

// Options configures an Updater.
type Options struct {
	StallThreshold time.Duration
	Logger         *slog.Logger
}

// Updater moves frames from the network to a PixelStream data source.
type Updater struct {
	source    *datasource.PixelStream
	consensus swapsync.Consensus
	object    *swapsync.Object[*types.Frame]
	opts      Options
	now       func() time.Time

	mu      sync.Mutex
	mailbox *types.Frame
	history []*types.Frame
	// inFlight is set from the moment a frame becomes the candidate until
	// AllowNextFrame.
	inFlight      bool
	inFlightSince time.Time

	received        uint64
	dropped         uint64
	installed       uint64
	rejected        uint64
	lastVersion     uint64
	lastInstalledAt time.Time
}

// NewUpdater creates an updater installing agreed frames into source.
func NewUpdater(source *datasource.PixelStream, consensus swapsync.Consensus, opts Options) *Updater {
	if opts.StallThreshold <= 0 {
		opts.StallThreshold = DefaultStallThreshold
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	u := &Updater{
		source:    source,
		consensus: consensus,
		opts:      opts,
		now:       time.Now,
	}
	u.object = swapsync.NewObject(u.install)
	return u
}

// Receive stores frame, replacing a frame not yet taken. Safe for
// concurrent use; frame must not be modified afterwards.
func (u *Updater) Receive(frame *types.Frame) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.mailbox != nil {
		u.dropped++
	}
	u.mailbox = frame
	u.received++

	if len(u.history) == historySize {
		copy(u.history, u.history[1:])
		u.history = u.history[:historySize-1]
	}
	u.history = append(u.history, frame)
}

// Sync runs one step on the render loop: it hands the latest frame to the
// swap barrier when allowed and installs it once agreed. It reports
// whether a frame was installed. Waiting for peers is (false, nil).
func (u *Updater) Sync() (bool, error) {
	u.mu.Lock()
	if !u.inFlight && u.mailbox != nil {
		frame := u.mailbox
		u.mailbox = nil
		u.inFlight = true
		u.inFlightSince = u.now()
		u.object.Update(frame, frame.Index)
	}
	u.mu.Unlock()

	if u.consensus == nil {
		return u.object.Sync(always{})
	}
	if tracker, ok := u.consensus.(swapsync.Tracker); ok {
		if err := u.catchUp(tracker); err != nil {
			return false, err
		}
	}
	return u.object.Sync(u.consensus)
}

// catchUp replaces a candidate older than the newest proposal of the group.
// The frame proposed by the peer is taken from the history when it was
// received here too, otherwise a newer received frame is proposed instead.
func (u *Updater) catchUp(tracker swapsync.Tracker) error {
	candidate, ok := u.object.Candidate()
	if !ok {
		return nil
	}
	newest, ok, err := tracker.Newest()
	if err != nil {
		return fmt.Errorf("stream: newest proposal: %w", err)
	}
	if !ok || newest <= candidate {
		return nil
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	var next *types.Frame
	for _, f := range u.history {
		if f.Index == newest {
			next = f
		}
	}
	if next == nil && u.mailbox != nil && u.mailbox.Index > newest {
		next = u.mailbox
	}
	if next == nil {
		// wait for a frame at least as new as the peers'
		return nil
	}
	if u.mailbox != nil && u.mailbox.Index <= next.Index {
		u.mailbox = nil
		u.dropped++
	}
	u.dropped++
	u.object.Update(next, next.Index)
	u.opts.Logger.Debug("stream frame replaced to catch up with peers",
		"uri", next.URI,
		"from", candidate,
		"to", next.Index,
	)
	return nil
}

// install runs inside Sync once the frame is agreed.
func (u *Updater) install(frame *types.Frame, version uint64) {
	if err := u.source.SetFrame(frame); err != nil {
		u.opts.Logger.Warn("dropping unusable stream frame",
			"uri", frame.URI,
			"frame", version,
			"trace_id", frame.TraceID,
			"category", types.Classify(err).String(),
			"error", err,
		)
		u.mu.Lock()
		u.rejected++
		u.mu.Unlock()
		// nothing will be displayed for this frame
		u.AllowNextFrame()
		return
	}

	u.mu.Lock()
	u.installed++
	u.lastVersion = version
	u.lastInstalledAt = u.now()
	u.mu.Unlock()

	u.opts.Logger.Debug("stream frame installed",
		"uri", frame.URI,
		"frame", version,
		"trace_id", frame.TraceID,
	)
}

// AllowNextFrame releases the flow control once the current frame was
// displayed. It is typically wired to the synchronizer's frame displayed
// callback.
func (u *Updater) AllowNextFrame() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.inFlight = false
}

// Stats contains stream progress counters.
type Stats struct {
	Received        uint64
	Dropped         uint64
	Installed       uint64
	Rejected        uint64
	LastVersion     uint64
	LastInstalledAt time.Time
	// Stalled is set when a frame stayed in flight longer than the stall
	// threshold: some process does not reach or display it.
	Stalled bool
}

// Stats returns a snapshot of the updater counters.
func (u *Updater) Stats() Stats {
	u.mu.Lock()
	defer u.mu.Unlock()

	return Stats{
		Received:        u.received,
		Dropped:         u.dropped,
		Installed:       u.installed,
		Rejected:        u.rejected,
		LastVersion:     u.lastVersion,
		LastInstalledAt: u.lastInstalledAt,
		Stalled:         u.inFlight && u.now().Sub(u.inFlightSince) > u.opts.StallThreshold,
	}
}

// always is the consensus of a process alone on its wall.
type always struct{}

func (always) Propose(uint64) error       { return nil }
func (always) Check(uint64) (bool, error) { return true, nil }
