// Package timestamp computes the best-available semantic timestamp for a
// file and selects the canonical date among created/modified/captured
// candidates.
package timestamp

import (
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/gjcox/PhotoBackupUtils/internal/apperr"
	"github.com/gjcox/PhotoBackupUtils/internal/filesystem"
	"github.com/gjcox/PhotoBackupUtils/internal/metadata"
)

// captureLayouts are the date-time shapes a sanitized capture-time string
// may take. Seconds can be absent: the filesystem-property fallback path of
// some sources only records minute precision.
var captureLayouts = []string{
	"2006:01:02 15:04:05",
	"2006:01:02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
}

// Resolver computes the best-available timestamp for a file: the embedded
// capture time when present, otherwise a filesystem time.
type Resolver struct {
	FS     filesystem.FileSystem
	Meta   metadata.Reader
	Logger *slog.Logger

	// PreferCapture queries the metadata capability before falling back to
	// filesystem times. When false, filesystem times are used directly.
	PreferCapture bool

	// DefaultToModified selects the modified time instead of the created
	// time when no capture time is available.
	DefaultToModified bool
}

// NewResolver creates a Resolver with capture-time preference enabled.
func NewResolver(fs filesystem.FileSystem, meta metadata.Reader, logger *slog.Logger) *Resolver {
	return &Resolver{FS: fs, Meta: meta, Logger: logger, PreferCapture: true}
}

// Resolve returns the best-available timestamp for path.
//
// A capture-time string that still fails to parse after sanitization is a
// hard error for the file (apperr.TimestampParseError), never a silent
// fallback. A failing or missing metadata capability falls back to the
// filesystem path.
func (r *Resolver) Resolve(path string) (time.Time, error) {
	if r.PreferCapture && r.Meta != nil {
		raw, err := r.Meta.CaptureTimeRaw(path)
		switch {
		case err == nil:
			if strings.TrimSpace(raw) == "" {
				break // empty value counts as a miss
			}
			t, ok := ParseCaptureTime(raw)
			if !ok {
				return time.Time{}, &apperr.TimestampParseError{Path: path, Raw: raw}
			}
			return t, nil
		case errors.Is(err, apperr.ErrNoCaptureTime):
			// expected miss
		default:
			if r.Logger != nil {
				r.Logger.Debug("capture-time capability failed, using filesystem times", "file", path, "error", err)
			}
		}
	}

	times, err := r.FS.Times(path)
	if err != nil {
		return time.Time{}, err
	}
	if r.DefaultToModified {
		return times.Modified, nil
	}
	return times.Created, nil
}

// ParseCaptureTime sanitizes a raw capture-time string and parses it.
//
// Raw values from property enumeration carry embedded non-printable marks
// (left-to-right markers, zero-width spaces). Sanitization keeps only
// digits, whitespace, '/' and ':' from at most the first 21 characters of
// the raw value.
func ParseCaptureTime(raw string) (time.Time, bool) {
	s := sanitize(raw)
	for _, layout := range captureLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func sanitize(raw string) string {
	runes := []rune(raw)
	if len(runes) > 21 {
		runes = runes[:21]
	}
	var b strings.Builder
	for _, c := range runes {
		if unicode.IsDigit(c) || unicode.IsSpace(c) || c == '/' || c == ':' {
			b.WriteRune(c)
		}
	}
	return strings.TrimSpace(b.String())
}
