package metadata

import (
	"bytes"
	"fmt"
	"os/exec"
	"time"

	"github.com/gjcox/PhotoBackupUtils/internal/apperr"
)

// exifTimeLayout is the EXIF date-time wire format.
const exifTimeLayout = "2006:01:02 15:04:05"

// ExifTool writes embedded and filesystem dates by invoking the exiftool
// binary. Every write rewrites the file in place and therefore touches the
// filesystem modified time; callers compensate per the Writer contract.
type ExifTool struct {
	// Path is the exiftool binary to invoke; "exiftool" resolves via PATH.
	Path string
}

// NewExifTool creates an ExifTool wrapper for the given binary path.
func NewExifTool(path string) *ExifTool {
	if path == "" {
		path = "exiftool"
	}
	return &ExifTool{Path: path}
}

// Available reports whether the exiftool binary can be resolved.
func (e *ExifTool) Available() bool {
	_, err := exec.LookPath(e.Path)
	return err == nil
}

// SetCaptureTime rewrites DateTimeOriginal and CreateDate to t.
func (e *ExifTool) SetCaptureTime(path string, t time.Time) error {
	return e.run(path,
		"-DateTimeOriginal="+t.Format(exifTimeLayout),
		"-CreateDate="+t.Format(exifTimeLayout),
	)
}

// SetCreateTime rewrites the filesystem creation date to t. Creation dates
// are only settable on platforms that record one; elsewhere exiftool warns
// and the call degrades to a no-op.
func (e *ExifTool) SetCreateTime(path string, t time.Time) error {
	return e.run(path, "-FileCreateDate="+t.Format(exifTimeLayout))
}

func (e *ExifTool) run(path string, tagArgs ...string) error {
	args := append([]string{"-overwrite_original", "-q"}, tagArgs...)
	args = append(args, path)

	cmd := exec.Command(e.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return fmt.Errorf("%w: exiftool %s: %s", apperr.ErrExternalCapability, path, msg)
		}
		return fmt.Errorf("%w: exiftool %s: %v", apperr.ErrExternalCapability, path, err)
	}
	return nil
}
