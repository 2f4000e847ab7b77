// Package preprocess turns uploaded image bytes into the float32 tensor the
// leaf disease model consumes.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	// ErrDecode wraps every failure to read an upload as an image.
	ErrDecode = errors.New("cannot decode image")
	// ErrImageTooLarge is returned, alongside ErrDecode, for images whose
	// header declares more than the allowed number of pixels.
	ErrImageTooLarge = errors.New("image too large")
)

// DefaultMaxPixels caps decoded frames at about 50 megapixels, checked
// against the header before any pixel buffer is allocated.
const DefaultMaxPixels = 50_000_000

const (
	LayoutNHWC = "NHWC"
	LayoutNCHW = "NCHW"
)

type Options struct {
	Size   int
	Layout string
	// Each channel value v in 0..255 is fed as v*Scale + Offset.
	Scale  float32
	Offset float32
	// MaxPixels bounds width*height of accepted images; 0 means DefaultMaxPixels.
	MaxPixels int
}

// Decode reads a JPEG, PNG, GIF, BMP or WebP image. The header is checked
// against maxPixels (DefaultMaxPixels when <= 0) before the frame is decoded.
func Decode(r io.Reader, maxPixels int) (image.Image, string, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: empty %s image", ErrDecode, format)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > int64(maxPixels) {
		return nil, "", fmt.Errorf("%w: %w: %s image is %dx%d, limit is %d pixels",
			ErrDecode, ErrImageTooLarge, format, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", fmt.Errorf("%w: empty %s image", ErrDecode, format)
	}
	return img, format, nil
}

// Tensor stretches img to Size x Size, ignoring the aspect ratio, and lays
// the RGB values out for a batch of one. Alpha is dropped.
func Tensor(img image.Image, opts Options) []float32 {
	size := opts.Size
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}

	resized := resize.Resize(uint(size), uint(size), img, resize.NearestNeighbor)
	bounds := resized.Bounds()

	plane := size * size
	inputData := make([]float32, 3*plane)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.NRGBAModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			r := float32(c.R)*scale + opts.Offset
			g := float32(c.G)*scale + opts.Offset
			b := float32(c.B)*scale + opts.Offset

			pixelIndex := y*size + x
			if opts.Layout == LayoutNCHW {
				inputData[pixelIndex] = r
				inputData[plane+pixelIndex] = g
				inputData[2*plane+pixelIndex] = b
			} else {
				inputData[3*pixelIndex] = r
				inputData[3*pixelIndex+1] = g
				inputData[3*pixelIndex+2] = b
			}
		}
	}

	return inputData
}

// Load decodes r and builds its tensor in one step.
func Load(r io.Reader, opts Options) ([]float32, error) {
	img, _, err := Decode(r, opts.MaxPixels)
	if err != nil {
		return nil, err
	}
	return Tensor(img, opts), nil
}
