package media

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// face crops are padded a little beyond the detection box so the engine
// sees some surrounding context
const cropPaddingRatio = 0.15

// CropLoader cuts face crops out of source images under a root directory.
type CropLoader struct {
	rootDir string
}

// NewCropLoader creates a loader serving crops from files below rootDir.
func NewCropLoader(rootDir string) *CropLoader {
	return &CropLoader{rootDir: rootDir}
}

// FaceCrop loads the image at relativePath and returns the JPEG-encoded
// region around the given bounding box.
func (l *CropLoader) FaceCrop(relativePath string, xMin, yMin, xMax, yMax int) ([]byte, error) {
	fullPath := filepath.Join(l.rootDir, filepath.FromSlash(relativePath))
	img, err := imaging.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", fullPath, err)
	}

	bounds := img.Bounds()
	padX := int(float64(xMax-xMin) * cropPaddingRatio)
	padY := int(float64(yMax-yMin) * cropPaddingRatio)

	rect := image.Rect(
		clamp(xMin-padX, bounds.Min.X, bounds.Max.X),
		clamp(yMin-padY, bounds.Min.Y, bounds.Max.Y),
		clamp(xMax+padX, bounds.Min.X, bounds.Max.X),
		clamp(yMax+padY, bounds.Min.Y, bounds.Max.Y),
	)
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		return nil, fmt.Errorf("bounding box (%d,%d)-(%d,%d) is outside image %s", xMin, yMin, xMax, yMax, relativePath)
	}

	crop := imaging.Crop(img, rect)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, crop, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("failed to encode face crop for %s: %w", relativePath, err)
	}
	return buf.Bytes(), nil
}

// FullImage loads and JPEG-encodes the whole image at relativePath, used for
// the engine's per-image recognize calls.
func (l *CropLoader) FullImage(relativePath string) ([]byte, error) {
	fullPath := filepath.Join(l.rootDir, filepath.FromSlash(relativePath))
	img, err := imaging.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", fullPath, err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("failed to encode image %s: %w", relativePath, err)
	}
	return buf.Bytes(), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
