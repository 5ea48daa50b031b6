// Package alternatives derives effect variants and format conversions
// from original media files.
package alternatives

import (
	"fmt"
	"image"
	"image/color"
	"math/rand"

	"github.com/disintegration/imaging"
)

// Effect identifies one supported image edit. The tag doubles as the
// filename suffix of the derived file.
type Effect string

const (
	EffectBW       Effect = "_bw"
	EffectNegative Effect = "_negative"
	EffectSharpen  Effect = "_sharpen"
	EffectMisty    Effect = "_misty"
	EffectBlurred  Effect = "_blurred"
)

// applyFunc turns a source image into the edited variant.
type applyFunc func(image.Image) image.Image

// effectTable is the closed set of supported effects. Dispatch goes
// through this table so an unknown tag fails at lookup, not at runtime
// reflection.
var effectTable = map[Effect]applyFunc{
	EffectBW:       applyBW,
	EffectNegative: applyNegative,
	EffectSharpen:  applySharpen,
	EffectMisty:    applyMisty,
	EffectBlurred:  applyBlurred,
}

// AllEffects returns every supported effect in derivation order.
func AllEffects() []Effect {
	return []Effect{EffectBW, EffectNegative, EffectSharpen, EffectMisty, EffectBlurred}
}

// Valid reports whether e is a supported effect.
func (e Effect) Valid() bool {
	_, ok := effectTable[e]
	return ok
}

// Tag returns the filename suffix for the effect.
func (e Effect) Tag() string {
	return string(e)
}

func applyBW(img image.Image) image.Image {
	return imaging.Grayscale(img)
}

func applyNegative(img image.Image) image.Image {
	return imaging.Invert(img)
}

func applySharpen(img image.Image) image.Image {
	return imaging.Sharpen(img, 2.0)
}

func applyBlurred(img image.Image) image.Image {
	return imaging.Blur(img, 15.0)
}

// applyMisty overlays a blurred noise layer to fake fog. The noise seed is
// fixed so re-deriving a variant is reproducible.
func applyMisty(img image.Image) image.Image {
	bounds := img.Bounds()
	rng := rand.New(rand.NewSource(42))

	fog := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := uint8(180 + rng.Intn(60))
			fog.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	blurredFog := imaging.Blur(fog, 10.0)
	return imaging.Overlay(img, blurredFog, image.Pt(bounds.Min.X, bounds.Min.Y), 0.8)
}

// Apply runs the effect on img.
func Apply(e Effect, img image.Image) (image.Image, error) {
	fn, ok := effectTable[e]
	if !ok {
		return nil, fmt.Errorf("unsupported effect %q", e)
	}
	return fn(img), nil
}

// GenerateVariant loads srcPath, applies the effect, and saves the result
// under the derived-media directory. Returns the written path.
func GenerateVariant(srcPath string, e Effect) (string, error) {
	if !e.Valid() {
		return "", fmt.Errorf("unsupported effect %q", e)
	}
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", srcPath, err)
	}
	out, err := Apply(e, img)
	if err != nil {
		return "", err
	}

	dst := VariantPath(srcPath, e)
	if err := saveImage(out, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// ConvertFormat re-encodes srcPath into the given extension (".png" or
// ".tif") and returns the written path.
func ConvertFormat(srcPath, ext string) (string, error) {
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", srcPath, err)
	}
	dst := ConversionPath(srcPath, ext)
	if err := saveImage(img, dst); err != nil {
		return "", err
	}
	return dst, nil
}
