package aiprov

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/jpeg"
	"log/slog"

	"github.com/disintegration/imaging"
)

// MaxImageBase64Bytes is the provider ceiling for one base64-encoded
// image payload.
const MaxImageBase64Bytes = 20 * 1024 * 1024

// downscaleWidths are tried in order when the full-size encoding exceeds
// the payload ceiling.
var downscaleWidths = []int{4000, 3000, 2000}

// ErrImageTooLarge marks an image that cannot be shrunk under the payload
// ceiling even at the smallest downscale step.
var ErrImageTooLarge = errors.New("image exceeds provider payload limit")

// EncodeImageBase64 loads path, re-encodes it as JPEG and returns the
// base64 payload, downscaling stepwise if the full-size encoding is over
// the provider limit.
func EncodeImageBase64(path string) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to open image %s: %w", path, err)
	}

	encode := func(width int) (string, error) {
		m := img
		if width > 0 && img.Bounds().Dx() > width {
			m = imaging.Resize(img, width, 0, imaging.Lanczos)
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, m, &jpeg.Options{Quality: 90}); err != nil {
			return "", fmt.Errorf("failed to encode image %s: %w", path, err)
		}
		return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
	}

	payload, err := encode(0)
	if err != nil {
		return "", err
	}
	if len(payload) <= MaxImageBase64Bytes {
		return payload, nil
	}

	for _, width := range downscaleWidths {
		payload, err = encode(width)
		if err != nil {
			return "", err
		}
		if len(payload) <= MaxImageBase64Bytes {
			slog.Debug("image downscaled for provider payload limit", "path", path, "width", width)
			return payload, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrImageTooLarge, path)
}
