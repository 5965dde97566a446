package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

// Channel suffixes for the per-channel preview variants.
var previewChannels = []string{"r", "g", "b"}

// PreviewWriter persists rendered previews under {root}/previews using the
// fingerprint naming convention: {fingerprint}.png plus one grayscale plate
// per color channel at {fingerprint}_{r|g|b}.png.
type PreviewWriter struct {
	root string
	size int
}

func NewPreviewWriter(root string, size int) (*PreviewWriter, error) {
	if size <= 0 {
		size = 256
	}
	if err := os.MkdirAll(filepath.Join(root, "previews"), 0o755); err != nil {
		return nil, fmt.Errorf("create previews directory: %w", err)
	}
	return &PreviewWriter{root: root, size: size}, nil
}

// Write decodes the rendered image, scales it down to the preview size when
// needed, and writes the main preview plus its channel variants. Returns the
// main preview path relative to the storage root.
func (w *PreviewWriter) Write(fingerprint string, rendered []byte) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(rendered))
	if err != nil {
		return "", fmt.Errorf("decode rendered image: %w", err)
	}

	scaled := w.scale(src)

	relPath := filepath.Join("previews", fingerprint+".png")
	if err := writePNG(filepath.Join(w.root, relPath), scaled); err != nil {
		return "", err
	}

	for i, channel := range previewChannels {
		plate := channelPlate(scaled, i)
		name := fmt.Sprintf("%s_%s.png", fingerprint, channel)
		if err := writePNG(filepath.Join(w.root, "previews", name), plate); err != nil {
			return "", err
		}
	}

	return relPath, nil
}

// Remove deletes a preview and its channel variants.
func (w *PreviewWriter) Remove(fingerprint string) {
	_ = os.Remove(filepath.Join(w.root, "previews", fingerprint+".png"))
	for _, channel := range previewChannels {
		_ = os.Remove(filepath.Join(w.root, "previews", fmt.Sprintf("%s_%s.png", fingerprint, channel)))
	}
}

// Abs resolves a relative preview path against the storage root.
func (w *PreviewWriter) Abs(relPath string) string {
	return filepath.Join(w.root, relPath)
}

func (w *PreviewWriter) scale(src image.Image) image.Image {
	b := src.Bounds()
	if b.Dx() <= w.size && b.Dy() <= w.size {
		return src
	}

	dw, dh := w.size, w.size
	if b.Dx() > b.Dy() {
		dh = b.Dy() * w.size / b.Dx()
	} else {
		dw = b.Dx() * w.size / b.Dy()
	}
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// channelPlate extracts one color channel (0=r, 1=g, 2=b) as a grayscale
// image.
func channelPlate(src image.Image, channel int) image.Image {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := src.At(x, y).RGBA()
			var v uint32
			switch channel {
			case 0:
				v = r
			case 1:
				v = g
			default:
				v = bl
			}
			dst.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: uint8(v >> 8)})
		}
	}
	return dst
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview file: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return nil
}
