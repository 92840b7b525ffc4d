package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"

	"github.com/HugoSmits86/nativewebp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP format decoder

	"github.com/ironsheep/imgresize/internal/errs"
)

// maxWebPSide is the largest dimension a WebP bitstream can describe.
const maxWebPSide = 16383

// DefaultJPEGQuality is used when EncodeOptions.JPEGQuality is zero.
const DefaultJPEGQuality = 85

// Decode turns encoded image bytes into a pixel buffer.
//
// Supported inputs are JPEG, PNG, GIF (first frame), BMP, TIFF and WebP.
// EXIF orientation is applied so the buffer is upright.
//
// # Errors
//
// All failures are errs.Decode:
//   - "unsupported format" when no registered decoder recognises the data
//   - "truncated or corrupt data" when a decoder starts but cannot finish
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errs.E(errs.Decode, "imaging.decode", "empty input", nil)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, errs.E(errs.Decode, "imaging.decode", "unsupported format", err)
		}
		return nil, errs.E(errs.Decode, "imaging.decode", "truncated or corrupt data", err)
	}
	if img.Bounds().Empty() {
		return nil, errs.E(errs.Decode, "imaging.decode", "image has no pixels", nil)
	}
	return img, nil
}

// Info describes an encoded image without decoding its pixels.
type Info struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is the decoder name, e.g. "png", "jpeg", "webp".
	Format string `json:"format"`
}

// Probe reads just enough of data to report its dimensions and format.
func Probe(data []byte) (*Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errs.E(errs.Decode, "imaging.probe", "unsupported format", err)
	}
	return &Info{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// EncodeOptions tunes Encode.
type EncodeOptions struct {
	// JPEGQuality is 1-100. Zero means DefaultJPEGQuality.
	JPEGQuality int

	// Background is composited under transparent pixels for formats without
	// an alpha channel. Nil means white.
	Background color.Color
}

// Encode serialises img in format f.
//
// WebP output is lossless. JPEG output has any transparency flattened onto
// opts.Background since JPEG cannot carry alpha.
//
// # Errors
//
// All failures are errs.Encode, e.g. an empty buffer or a WebP image wider or
// taller than the format allows.
func Encode(img image.Image, f Format, opts EncodeOptions) ([]byte, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, errs.E(errs.Encode, "imaging.encode", "image has no pixels", nil)
	}

	var buf bytes.Buffer
	var err error
	switch f {
	case WebP:
		if b.Dx() > maxWebPSide || b.Dy() > maxWebPSide {
			return nil, errs.E(errs.Encode, "imaging.encode",
				"webp cannot hold images larger than 16383x16383", nil)
		}
		err = nativewebp.Encode(&buf, toNRGBA(img), nil)
	case JPEG:
		quality := opts.JPEGQuality
		if quality == 0 {
			quality = DefaultJPEGQuality
		}
		bg := opts.Background
		if bg == nil {
			bg = color.White
		}
		err = imaging.Encode(&buf, Flatten(img, bg), imaging.JPEG, imaging.JPEGQuality(quality))
	case PNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	default:
		return nil, errs.E(errs.Encode, "imaging.encode", "unsupported output format "+f.String(), nil)
	}
	if err != nil {
		return nil, errs.E(errs.Encode, "imaging.encode", f.String(), err)
	}
	return buf.Bytes(), nil
}
