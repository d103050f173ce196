// Package config holds the runtime options shared by every subcommand.
package config

import (
	"fmt"
	"strings"
	"time"
)

// DefaultCaptureExtensions are the capture-time-bearing formats recognized
// when the configuration does not override them.
var DefaultCaptureExtensions = []string{
	".jpg", ".jpeg", ".tif", ".tiff", ".heic", ".png", ".dng", ".arw", ".cr2", ".nef",
}

// Options holds all configuration settings. Tags are used by Viper for
// unmarshalling from config files, env vars and flags; they match the flag
// names so precedence stays flags > env > file > defaults.
type Options struct {
	// Behavior control
	Verbose    bool   `mapstructure:"verbose"`
	ConfigFile string `mapstructure:"config"`

	// Copy / move
	Dest          string `mapstructure:"dest"`
	Move          bool   `mapstructure:"move"`
	KeepNumbering bool   `mapstructure:"keep-numbering"`
	NewTimestamps bool   `mapstructure:"new-timestamps"`
	ReportOnly    bool   `mapstructure:"report"`
	Recurse       bool   `mapstructure:"recurse"`

	// Dedupe
	KeepDuplicates bool          `mapstructure:"keep"`
	Watch          bool          `mapstructure:"watch"`
	Debounce       time.Duration `mapstructure:"debounce"`

	// Timestamps
	UseLatest         bool     `mapstructure:"use-latest"`
	IgnoreCreated     bool     `mapstructure:"ignore-created"`
	DefaultToModified bool     `mapstructure:"default-to-modified"`
	CaptureExtensions []string `mapstructure:"capture-extensions"`

	// Cutoff / bulk copy
	Since       string `mapstructure:"since"`
	Retries     int    `mapstructure:"retries"`
	WaitSeconds int    `mapstructure:"wait"`

	// External tools
	ExifTool string `mapstructure:"exiftool"`
	CopyTool string `mapstructure:"copy-tool"`
}

// ValidateConfig checks the loaded options for validity, collecting every
// problem into a single error.
func (opts *Options) ValidateConfig() error {
	var errs []string

	if opts.Debounce < 0 {
		errs = append(errs, "debounce duration must be non-negative")
	}
	if opts.Retries < 0 {
		errs = append(errs, "retries must be non-negative")
	}
	if opts.WaitSeconds < 0 {
		errs = append(errs, "wait must be non-negative")
	}
	for _, ext := range opts.CaptureExtensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Sprintf("capture-extensions entry %q must start with '.'", ext))
		}
	}
	if opts.Since != "" {
		if _, err := ParseSince(opts.Since); err != nil {
			errs = append(errs, fmt.Sprintf("since: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// CaptureBearing reports whether a file extension (including the dot)
// belongs to a capture-time-bearing format. The comparison is
// case-insensitive.
func (opts *Options) CaptureBearing(ext string) bool {
	exts := opts.CaptureExtensions
	if len(exts) == 0 {
		exts = DefaultCaptureExtensions
	}
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// sinceLayouts are the accepted shapes of the cutoff flag.
var sinceLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseSince parses a cutoff instant supplied on the command line.
func ParseSince(s string) (time.Time, error) {
	for _, layout := range sinceLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date-time %q", s)
}
