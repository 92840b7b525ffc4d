package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/parallel"
	"github.com/disintegration/imaging"
)

// superSample renders src at n times the target with the interpolation
// sampler and averages n x n blocks down to width x height.
//
// When the intermediate would be larger than the source in either axis there
// is nothing to gain from the extra pass, so the kernel is applied once as a
// convolution instead.
func superSample(src *image.NRGBA, width, height, n int, k imaging.ResampleFilter) *image.NRGBA {
	b := src.Bounds()
	mw, mh := width*n, height*n
	if mw > b.Dx() || mh > b.Dy() {
		return imaging.Resize(src, width, height, k)
	}
	return averageBlocks(interpolate(src, mw, mh, k), n)
}

// averageBlocks shrinks src by an integer factor n, each destination pixel
// being the alpha-weighted mean of an n x n block.
func averageBlocks(src *image.NRGBA, n int) *image.NRGBA {
	width, height := src.Bounds().Dx()/n, src.Bounds().Dy()/n
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	total := float64(n * n)

	parallel.Line(height, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < width; x++ {
				var r, g, bl, a float64
				for sy := y * n; sy < (y+1)*n; sy++ {
					row := src.Pix[sy*src.Stride:]
					for sx := x * n; sx < (x+1)*n; sx++ {
						p := row[sx*4 : sx*4+4 : sx*4+4]
						pa := float64(p[3])
						r += float64(p[0]) * pa
						g += float64(p[1]) * pa
						bl += float64(p[2]) * pa
						a += pa
					}
				}
				i := y*dst.Stride + x*4
				storePixel(dst.Pix[i:i+4:i+4], r, g, bl, a, total)
			}
		}
	})
	return dst
}
