package types

import "errors"

// Error taxonomy of the tile pipeline. Packages wrap these with %w so that
// callers can classify failures with errors.Is or Classify.
var (
	// ErrUnassemblable marks a frame whose segments do not tile the frame on
	// a grid compatible with the target tile size. Recovered by pass-through.
	ErrUnassemblable = errors.New("unassemblable frame")
	// ErrDecode marks a corrupt or unsupported tile payload. The tile yields
	// no image this cycle and is retried with the next generation.
	ErrDecode = errors.New("tile decode failed")
	// ErrContract marks a programming-contract violation between a
	// synchronizer and its data source (bad tile index, wrong channel).
	ErrContract = errors.New("contract violation")
)

// ErrorCategory represents the classification of tile pipeline errors
type ErrorCategory int

const (
	// CategoryUnassemblable is recovered locally by falling back to pass-through
	CategoryUnassemblable ErrorCategory = iota
	// CategoryDecode is recovered by skipping one cycle
	CategoryDecode
	// CategoryContract is fatal and propagates to the caller
	CategoryContract
	// CategoryUnknown indicates unclassified errors
	CategoryUnknown
)

// String returns a human-readable string representation of the error category
func (c ErrorCategory) String() string {
	switch c {
	case CategoryUnassemblable:
		return "unassemblable"
	case CategoryDecode:
		return "decode"
	case CategoryContract:
		return "contract"
	default:
		return "unknown"
	}
}

// Recoverable reports whether errors of this category are handled inside the
// pipeline rather than surfaced to the caller.
func (c ErrorCategory) Recoverable() bool {
	return c == CategoryUnassemblable || c == CategoryDecode
}

// Classify maps an error onto the taxonomy.
func Classify(err error) ErrorCategory {
	switch {
	case err == nil:
		return CategoryUnknown
	case errors.Is(err, ErrContract):
		return CategoryContract
	case errors.Is(err, ErrDecode):
		return CategoryDecode
	case errors.Is(err, ErrUnassemblable):
		return CategoryUnassemblable
	default:
		return CategoryUnknown
	}
}
