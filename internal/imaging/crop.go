package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/imgresize/internal/errs"
)

// Plan is the geometry of one resize: which part of the source to read and
// how large the output is.
type Plan struct {
	// Crop is the source region to resample, relative to the source bounds.
	// It equals the whole source unless both axes were requested.
	Crop image.Rectangle `json:"crop"`

	// Width of the output in pixels.
	Width int `json:"width"`

	// Height of the output in pixels.
	Height int `json:"height"`
}

// Cropped reports whether the plan reads less than the whole source.
func (p Plan) Cropped(src image.Rectangle) bool {
	return p.Crop.Dx() != src.Dx() || p.Crop.Dy() != src.Dy()
}

// PlanSize computes the output geometry for a srcW x srcH source.
//
// Parameters:
//   - reqW, reqH: requested size in CSS pixels; 0 means the axis was not given.
//   - dpr: device pixel ratio, multiplied into every output dimension.
//   - maxSide: largest allowed output dimension; 0 disables the check.
//
// # Sizing Rules
//
//   - Neither axis: native size times dpr.
//   - One axis: the other is derived from the source aspect ratio, computed
//     from the dpr-scaled axis and rounded to the nearest pixel.
//   - Both axes: the output is exactly reqW x reqH times dpr. The source is
//     cropped around its centre to the output aspect ratio first, so nothing
//     is stretched.
//
// # Errors
//
// Returns errs.InvalidDimensions if either output dimension rounds to zero,
// exceeds maxSide, or the source is empty.
func PlanSize(srcW, srcH, reqW, reqH int, dpr float64, maxSide int) (Plan, error) {
	if srcW <= 0 || srcH <= 0 {
		return Plan{}, errs.InvalidDimensionsf("imaging.plan", "source %dx%d is empty", srcW, srcH)
	}

	var w, h int
	switch {
	case reqW > 0 && reqH > 0:
		w = scaled(reqW, dpr)
		h = scaled(reqH, dpr)
	case reqW > 0:
		w = scaled(reqW, dpr)
		h = int(math.Round(float64(w) * float64(srcH) / float64(srcW)))
	case reqH > 0:
		h = scaled(reqH, dpr)
		w = int(math.Round(float64(h) * float64(srcW) / float64(srcH)))
	default:
		w = scaled(srcW, dpr)
		h = scaled(srcH, dpr)
	}

	if w < 1 || h < 1 {
		return Plan{}, errs.InvalidDimensionsf("imaging.plan", "target %dx%d is degenerate", w, h)
	}
	if maxSide > 0 && (w > maxSide || h > maxSide) {
		return Plan{}, errs.InvalidDimensionsf("imaging.plan", "target %dx%d exceeds the %d pixel limit", w, h, maxSide)
	}

	crop := image.Rect(0, 0, srcW, srcH)
	if reqW > 0 && reqH > 0 {
		crop = centreCrop(srcW, srcH, w, h)
	}
	return Plan{Crop: crop, Width: w, Height: h}, nil
}

// Apply crops img according to the plan and resamples it to the planned size.
func (p Plan) Apply(img image.Image, alg Algorithm, filter Filter) (*image.NRGBA, error) {
	src := img
	b := img.Bounds()
	if p.Cropped(b) {
		cropped, err := Crop(img, p.Crop)
		if err != nil {
			return nil, err
		}
		src = cropped
	}
	return Resize(src, p.Width, p.Height, alg, filter)
}

// Crop extracts region r (relative to img's bounds) from img.
func Crop(img image.Image, r image.Rectangle) (*image.NRGBA, error) {
	bounds := img.Bounds()
	abs := r.Add(bounds.Min)

	if !abs.In(bounds) {
		return nil, errs.InvalidDimensionsf("imaging.crop", "crop region (%d,%d)-(%d,%d) outside image bounds (%d,%d)-(%d,%d)",
			abs.Min.X, abs.Min.Y, abs.Max.X, abs.Max.Y, bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y)
	}
	if r.Empty() {
		return nil, errs.InvalidDimensionsf("imaging.crop", "invalid crop region %v", r)
	}

	return imaging.Crop(img, abs), nil
}

// centreCrop returns the largest region of a srcW x srcH source with the
// aspect ratio of dstW x dstH, centred on the source.
func centreCrop(srcW, srcH, dstW, dstH int) image.Rectangle {
	cw, ch := srcW, srcH
	// Compare srcW/srcH with dstW/dstH without dividing.
	if srcW*dstH > dstW*srcH {
		cw = int(math.Round(float64(srcH) * float64(dstW) / float64(dstH)))
	} else {
		ch = int(math.Round(float64(srcW) * float64(dstH) / float64(dstW)))
	}
	cw = clampInt(cw, 1, srcW)
	ch = clampInt(ch, 1, srcH)

	x0 := (srcW - cw) / 2
	y0 := (srcH - ch) / 2
	return image.Rect(x0, y0, x0+cw, y0+ch)
}

func scaled(v int, dpr float64) int {
	return int(math.Round(float64(v) * dpr))
}

func (p Plan) String() string {
	return fmt.Sprintf("%dx%d from %v", p.Width, p.Height, p.Crop)
}
