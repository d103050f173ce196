package metadata

import (
	"fmt"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/gjcox/PhotoBackupUtils/internal/apperr"
	"github.com/gjcox/PhotoBackupUtils/internal/filesystem"
)

// ExifReader reads the raw DateTimeOriginal tag of a file via goexif.
type ExifReader struct {
	FS filesystem.FileSystem
}

// NewExifReader creates an ExifReader over fs.
func NewExifReader(fs filesystem.FileSystem) *ExifReader {
	return &ExifReader{FS: fs}
}

// CaptureTimeRaw returns the DateTimeOriginal tag string, falling back to
// DateTime. Files without decodable EXIF data report ErrNoCaptureTime: a
// PNG or a stripped JPEG is an expected miss, not a capability failure.
func (r *ExifReader) CaptureTimeRaw(path string) (string, error) {
	f, err := r.FS.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: opening %s: %v", apperr.ErrExternalCapability, path, err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return "", fmt.Errorf("%w: %s", apperr.ErrNoCaptureTime, path)
	}

	for _, field := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTime} {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		if s, err := tag.StringVal(); err == nil && s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %s", apperr.ErrNoCaptureTime, path)
}
