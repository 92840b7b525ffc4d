package imaging

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/parallel"
	"github.com/disintegration/imaging"
)

// tap is one source sample contributing to a destination pixel.
type tap struct {
	index  int
	weight float64
}

// interpolationTaps computes, for every destination coordinate along one axis,
// the source samples and normalized weights under kernel k. The kernel support
// is used as-is; it is not widened on downscale (that is what Convolution does).
func interpolationTaps(dstSize, srcSize int, k imaging.ResampleFilter) [][]tap {
	scale := float64(srcSize) / float64(dstSize)
	support := math.Max(k.Support, 0.5)
	taps := make([][]tap, dstSize)

	for x := 0; x < dstSize; x++ {
		center := (float64(x)+0.5)*scale - 0.5
		left := int(math.Ceil(center - support))
		right := int(math.Floor(center + support))

		var sum float64
		ts := make([]tap, 0, right-left+1)
		for i := left; i <= right; i++ {
			w := k.Kernel(center - float64(i))
			if w == 0 {
				continue
			}
			ts = append(ts, tap{index: clampInt(i, 0, srcSize-1), weight: w})
			sum += w
		}

		if sum == 0 {
			nearest := clampInt(int(math.Round(center)), 0, srcSize-1)
			taps[x] = []tap{{index: nearest, weight: 1}}
			continue
		}
		for i := range ts {
			ts[i].weight /= sum
		}
		taps[x] = ts
	}
	return taps
}

// interpolate resamples src to width x height, one separable pass per axis.
// Colour is weighted by alpha during accumulation so transparent pixels do not
// bleed their (meaningless) colour into neighbours.
func interpolate(src *image.NRGBA, width, height int, k imaging.ResampleFilter) *image.NRGBA {
	b := src.Bounds()
	tmp := src
	if b.Dx() != width {
		tmp = resampleHorizontal(src, width, interpolationTaps(width, b.Dx(), k))
	}
	if b.Dy() != height {
		return resampleVertical(tmp, height, interpolationTaps(height, b.Dy(), k))
	}
	if tmp == src {
		return imaging.Clone(src)
	}
	return tmp
}

func resampleHorizontal(src *image.NRGBA, width int, taps [][]tap) *image.NRGBA {
	height := src.Bounds().Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))

	parallel.Line(height, func(start, end int) {
		for y := start; y < end; y++ {
			srow := src.Pix[y*src.Stride : y*src.Stride+src.Bounds().Dx()*4]
			drow := dst.Pix[y*dst.Stride : y*dst.Stride+width*4]
			for x, ts := range taps {
				var r, g, bl, a float64
				for _, t := range ts {
					p := srow[t.index*4 : t.index*4+4 : t.index*4+4]
					aw := float64(p[3]) * t.weight
					r += float64(p[0]) * aw
					g += float64(p[1]) * aw
					bl += float64(p[2]) * aw
					a += aw
				}
				storePixel(drow[x*4:x*4+4:x*4+4], r, g, bl, a, 1)
			}
		}
	})
	return dst
}

func resampleVertical(src *image.NRGBA, height int, taps [][]tap) *image.NRGBA {
	width := src.Bounds().Dx()
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))

	parallel.Line(width, func(start, end int) {
		for x := start; x < end; x++ {
			for y, ts := range taps {
				var r, g, bl, a float64
				for _, t := range ts {
					i := t.index*src.Stride + x*4
					p := src.Pix[i : i+4 : i+4]
					aw := float64(p[3]) * t.weight
					r += float64(p[0]) * aw
					g += float64(p[1]) * aw
					bl += float64(p[2]) * aw
					a += aw
				}
				i := y*dst.Stride + x*4
				storePixel(dst.Pix[i:i+4:i+4], r, g, bl, a, 1)
			}
		}
	})
	return dst
}

// storePixel writes an alpha-weighted accumulation back as straight alpha.
// total is the sum of the weights that produced a.
func storePixel(p []uint8, r, g, b, a, total float64) {
	if a <= 0 {
		p[0], p[1], p[2], p[3] = 0, 0, 0, 0
		return
	}
	p[0] = clamp8(r / a)
	p[1] = clamp8(g / a)
	p[2] = clamp8(b / a)
	p[3] = clamp8(a / total)
}

func clamp8(v float64) uint8 {
	v = math.Round(v)
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
