package synchronizer

import (
	"fmt"
	"log/slog"

	"github.com/BlueBrain/Tide-sub004/internal/datasource"
	"github.com/BlueBrain/Tide-sub004/internal/geometry"
	"github.com/BlueBrain/Tide-sub004/internal/swapsync"
	"github.com/BlueBrain/Tide-sub004/internal/types"
)

// PixelStreamOptions configures a PixelStream synchronizer.
type PixelStreamOptions struct {
	// Channel is the stream channel shown by the window.
	Channel uint
	// Consensus, when set, gates every swap on all wall processes being
	// ready to show the same frame.
	Consensus swapsync.Consensus
	// OnFrameDisplayed is called once the tiles of a frame are swapped in,
	// typically to grant the stream updater the next frame.
	OnFrameDisplayed func(version uint64)
	Logger           *slog.Logger
}

// PixelStream synchronizes a live pixel stream. Each frame is swapped as
// one generation, and only when every wall process can swap the same frame.
type PixelStream struct {
	*Tiled
	stream *datasource.PixelStream
	opts   PixelStreamOptions

	// frame is the newest frame seen by UpdateTiles; framePending until it
	// has been swapped in.
	frame        *types.Frame
	framePending bool
	proposed     bool
}

// NewPixelStream creates a synchronizer listening to the stream's frames.
// Call Close to detach it.
func NewPixelStream(source *datasource.PixelStream, renderer Renderer, opts PixelStreamOptions) *PixelStream {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	p := &PixelStream{
		Tiled:  newTiled(source, renderer, SwapTilesSynchronously),
		stream: source,
		opts:   opts,
	}
	p.channel = opts.Channel
	p.listen(p.MarkDirty)
	return p
}

// Update implements Synchronizer. The tiles area follows the dimensions of
// the latest frame.
func (p *PixelStream) Update(window geometry.ZoomHelper, visibleArea geometry.Rect) error {
	_, err := p.updateView(window, visibleArea, 0)
	return err
}

// UpdateTiles implements Synchronizer. The diff reads one snapshot of the
// stream, so its tiles and the frame version belong to the same frame, and
// every tile is refreshed whenever that frame is new. A new frame must be
// swapped even when none of its tiles is visible here, so that this process
// still takes part in the barrier and releases the next frame.
func (p *PixelStream) UpdateTiles() error {
	refreshAll := p.dirty.Swap(false)
	snap := p.stream.Snapshot()
	if p.frame != nil && snap.Frame != p.frame {
		refreshAll = true
	}
	if err := p.updateTiles(refreshAll, snap, snap.TileRect); err != nil {
		return err
	}
	if snap.Frame != nil && snap.Frame != p.frame {
		p.frame = snap.Frame
		p.framePending = true
		p.proposed = false
	}
	return nil
}

func (p *PixelStream) version() uint64 {
	if p.frame == nil {
		return 0
	}
	return p.frame.Index
}

// CanSwapTiles implements Synchronizer. Waiting for peers is not an error
// and is only logged at debug level.
func (p *PixelStream) CanSwapTiles() bool {
	if !p.framePending && !p.swapPending {
		return false
	}
	if p.swapPending && !p.Tiled.CanSwapTiles() {
		return false
	}
	if p.opts.Consensus == nil {
		return true
	}

	version := p.version()
	if !p.proposed {
		if err := p.opts.Consensus.Propose(version); err != nil {
			p.opts.Logger.Warn("frame swap proposal failed",
				"uri", p.uri(),
				"frame", version,
				"error", err,
			)
			return false
		}
		p.proposed = true
	}
	agreed, err := p.opts.Consensus.Check(version)
	if err != nil {
		p.opts.Logger.Warn("frame swap check failed",
			"uri", p.uri(),
			"frame", version,
			"error", err,
		)
		return false
	}
	if !agreed {
		p.opts.Logger.Debug("waiting for peers to swap frame", "uri", p.uri(), "frame", version)
	}
	return agreed
}

// SwapTiles implements Synchronizer.
func (p *PixelStream) SwapTiles() {
	p.Tiled.SwapTiles()
	p.proposed = false
	if p.framePending {
		p.framePending = false
		if p.opts.OnFrameDisplayed != nil {
			p.opts.OnFrameDisplayed(p.version())
		}
	}
}

// Reset implements Synchronizer. A frame that was pending is considered
// displayed so the stream is not held back by a closed window.
func (p *PixelStream) Reset() {
	p.Tiled.Reset()
	p.proposed = false
	if p.framePending {
		p.framePending = false
		if p.opts.OnFrameDisplayed != nil {
			p.opts.OnFrameDisplayed(p.version())
		}
	}
}

func (p *PixelStream) uri() string {
	if p.frame == nil {
		return ""
	}
	return p.frame.URI
}

// Statistics implements Synchronizer.
func (p *PixelStream) Statistics() string {
	return fmt.Sprintf("frame %d tiles %d", p.version(), len(p.VisibleTiles()))
}
