// Package metadata wraps the external capture-time capability: reading an
// embedded capture timestamp from a media file and writing one back. Reads
// go through goexif in-process; writes shell out to exiftool, which is the
// collaborator actually able to rewrite embedded and filesystem dates.
package metadata

import "time"

// Reader obtains the raw embedded capture-time string of a file.
type Reader interface {
	// CaptureTimeRaw returns the raw capture-time string as stored in the
	// file. It reports apperr.ErrNoCaptureTime when the format carries no
	// capture time or the tag is absent, and apperr.ErrExternalCapability
	// when the extraction mechanism itself fails.
	//
	// The value is returned unparsed on purpose: raw values observed in the
	// wild contain non-printable artifacts and must be sanitized by the
	// timestamp resolver before parsing.
	CaptureTimeRaw(path string) (string, error)
}

// Writer rewrites embedded and filesystem dates of a file.
//
// Both writes are expected to touch the file's modified time as a side
// effect of the underlying tool; callers that promise to preserve the
// modified time must capture it beforehand and restore it afterwards.
type Writer interface {
	SetCaptureTime(path string, t time.Time) error
	SetCreateTime(path string, t time.Time) error
}

// Provider combines read and write access to capture-time metadata.
type Provider interface {
	Reader
	Writer
}

// Chain composes an independent Reader and Writer into a Provider.
type Chain struct {
	Reader
	Writer
}
