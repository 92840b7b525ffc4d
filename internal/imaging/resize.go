package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/imgresize/internal/errs"
)

// Resize resamples src to exactly width x height using the given algorithm and
// filter. The filter is ignored by Nearest.
//
// The result always has straight (non-premultiplied) alpha and its bounds
// start at (0,0). src is never modified.
//
// # Errors
//
//   - errs.InvalidDimensions if width or height is not positive, or src is empty
//   - errs.Internal for an Algorithm value outside the declared set
func Resize(src image.Image, width, height int, alg Algorithm, filter Filter) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, errs.InvalidDimensionsf("imaging.resize", "target %dx%d is degenerate", width, height)
	}
	if src.Bounds().Empty() {
		return nil, errs.InvalidDimensionsf("imaging.resize", "source is empty")
	}

	k := filter.kernel()
	switch alg {
	case Nearest:
		return imaging.Resize(src, width, height, imaging.NearestNeighbor), nil
	case Interpolation:
		return interpolate(toNRGBA(src), width, height, k), nil
	case Convolution:
		return imaging.Resize(src, width, height, k), nil
	case SuperSampling2x, SuperSampling4x, SuperSampling8x:
		return superSample(toNRGBA(src), width, height, alg.Multiplier(), k), nil
	default:
		return nil, errs.E(errs.Internal, "imaging.resize", fmt.Sprintf("unknown algorithm %v", alg), nil)
	}
}

// toNRGBA returns img as an *image.NRGBA anchored at (0,0), copying only when
// it is not one already.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}
