package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across packages. Checked with errors.Is.
var (
	// ErrNoCaptureTime is reported by a metadata provider when a file's format
	// carries no embedded capture time, or the tag is absent.
	ErrNoCaptureTime = errors.New("no capture time available")

	// ErrExternalCapability is reported when an external collaborator
	// (metadata reader/writer, bulk copy tool) fails outright.
	ErrExternalCapability = errors.New("external capability failure")
)

// BadPathError marks a supplied path or glob that resolves to nothing or to an
// inaccessible entry. Callers report it as a warning and continue with the
// remaining inputs.
type BadPathError struct {
	Input string
	Err   error
}

func (e *BadPathError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bad path %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("bad path %q: no matching files", e.Input)
}

func (e *BadPathError) Unwrap() error { return e.Err }

// TimestampParseError marks a capture-time string that still fails to parse
// after sanitization. It is a hard failure for the single file, never a
// silent fallback, and does not abort the batch.
type TimestampParseError struct {
	Path string
	Raw  string
}

func (e *TimestampParseError) Error() string {
	return fmt.Sprintf("cannot parse capture time %q for %s", e.Raw, e.Path)
}

// CollisionCreateError marks a relocation into a shared destination that lands
// on an existing name. It is not auto-resolved: the shared-destination
// collision space is documented as unhandled.
type CollisionCreateError struct {
	Path string
}

func (e *CollisionCreateError) Error() string {
	return fmt.Sprintf("destination already exists: %s", e.Path)
}
