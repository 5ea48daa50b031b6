package alternatives

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Directory names for derived media. Edits of photos and videos land in
// their own trees next to the original ones.
const (
	editedPhotoDir = "Upravené foto"
	editedVideoDir = "Upravené video"
)

// VariantPath computes where an effect variant of srcPath is stored: the
// "foto"/"video" path segment is swapped for its edited counterpart and
// the effect tag is appended to the file stem. Paths without such a
// segment keep their directory.
func VariantPath(srcPath string, e Effect) string {
	dir := swapMediaSegment(filepath.Dir(srcPath))
	base := filepath.Base(srcPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, stem+e.Tag()+ext)
}

// ConversionPath computes where a format conversion of srcPath is stored:
// same directory rules as variants, with only the extension changed. A
// path segment matching the source format name (e.g. "jpg") is swapped to
// the target format name.
func ConversionPath(srcPath, newExt string) string {
	if !strings.HasPrefix(newExt, ".") {
		newExt = "." + newExt
	}
	dir := filepath.Dir(srcPath)
	oldExt := strings.TrimPrefix(strings.ToLower(filepath.Ext(srcPath)), ".")
	newName := strings.TrimPrefix(strings.ToLower(newExt), ".")

	parts := strings.Split(filepath.ToSlash(dir), "/")
	for i, part := range parts {
		if strings.EqualFold(part, oldExt) {
			parts[i] = strings.ToUpper(newName)
		}
	}
	dir = filepath.FromSlash(strings.Join(parts, "/"))

	base := filepath.Base(srcPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+newExt)
}

// swapMediaSegment replaces a "foto" or "video" path segment with the
// edited-media directory name. Comparison is case-insensitive.
func swapMediaSegment(dir string) string {
	parts := strings.Split(filepath.ToSlash(dir), "/")
	for i, part := range parts {
		if strings.EqualFold(part, "foto") {
			parts[i] = editedPhotoDir
		} else if strings.EqualFold(part, "video") {
			parts[i] = editedVideoDir
		}
	}
	return filepath.FromSlash(strings.Join(parts, "/"))
}

// saveImage writes img to dst, creating parent directories first.
func saveImage(img image.Image, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	if err := imaging.Save(img, dst); err != nil {
		return fmt.Errorf("failed to save %s: %w", dst, err)
	}
	return nil
}
