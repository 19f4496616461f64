package helper

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"vulcan_backend/internals/constants"
)

var ErrUndecodableImage = errors.New("image could not be decoded")

// Review previews are small lossy WebP renditions shown next to the review form.
const (
	previewMaxW    = 1024
	previewMaxH    = 1024
	previewQuality = 75
)

// CheckDecodable verifies that an image or PDF body matches its declared type.
func CheckDecodable(data []byte, contentType string) error {
	ct := constants.NormalizeContentType(contentType)
	switch {
	case ct == "application/pdf":
		if !bytes.HasPrefix(bytes.TrimLeft(data, "\r\n\t "), []byte("%PDF-")) {
			return fmt.Errorf("%w: missing PDF header", ErrUndecodableImage)
		}
		return nil
	case ct == "image/webp":
		if _, err := webp.DecodeConfig(bytes.NewReader(data)); err != nil {
			return fmt.Errorf("%w: %v", ErrUndecodableImage, err)
		}
		return nil
	case constants.IsImageContentType(ct):
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			// imaging registers bmp/tiff through x/image; fall back to a full decode
			if _, derr := imaging.Decode(bytes.NewReader(data)); derr != nil {
				return fmt.Errorf("%w: %v", ErrUndecodableImage, derr)
			}
		}
		return nil
	default:
		return nil
	}
}

// BuildPreview decodes an image proof, downsizes it and re-encodes as WebP.
func BuildPreview(data []byte, contentType string) ([]byte, error) {
	img, err := decodeImage(data, contentType)
	if err != nil {
		return nil, err
	}
	img = downscaleIfNeeded(img, previewMaxW, previewMaxH)

	buf := new(bytes.Buffer)
	if err := webp.Encode(buf, img, &webp.Options{Lossless: false, Quality: previewQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeImage(data []byte, contentType string) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUndecodableImage)
	}
	if constants.NormalizeContentType(contentType) == "image/webp" {
		return webp.Decode(bytes.NewReader(data))
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}
	return img, nil
}

// downscaleIfNeeded keeps the aspect ratio; CatmullRom for scan legibility.
func downscaleIfNeeded(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return src
	}
	scale := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := int(math.Max(1, math.Round(float64(w)*scale)))
	nh := int(math.Max(1, math.Round(float64(h)*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
