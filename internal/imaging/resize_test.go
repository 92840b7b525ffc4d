package imaging

import (
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/imgresize/internal/errs"
)

func TestResize_Dimensions(t *testing.T) {
	src := newPatternImage(120, 80)

	sizes := []struct{ w, h int }{
		{60, 40},   // downscale
		{13, 7},    // odd downscale
		{240, 160}, // upscale
		{120, 80},  // identity
		{1, 1},
	}

	for _, alg := range Algorithms {
		for _, sz := range sizes {
			t.Run(fmt.Sprintf("%s/%dx%d", alg, sz.w, sz.h), func(t *testing.T) {
				got, err := Resize(src, sz.w, sz.h, alg, Lanczos3)
				require.NoError(t, err)
				assert.Equal(t, sz.w, got.Bounds().Dx())
				assert.Equal(t, sz.h, got.Bounds().Dy())
				assert.Equal(t, image.Point{}, got.Bounds().Min)
			})
		}
	}
}

func TestResize_DegenerateTarget(t *testing.T) {
	src := newSolidImage(10, 10, color.White)

	tests := []struct {
		name string
		w, h int
	}{
		{"zero width", 0, 10},
		{"zero height", 10, 0},
		{"negative", -1, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resize(src, tt.w, tt.h, Interpolation, Lanczos3)
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrInvalidDimensions)
		})
	}
}

func TestResize_EmptySource(t *testing.T) {
	_, err := Resize(image.NewNRGBA(image.Rect(0, 0, 0, 0)), 10, 10, Convolution, Box)
	assert.ErrorIs(t, err, errs.ErrInvalidDimensions)
}

func TestResize_SolidColourIsPreserved(t *testing.T) {
	want := color.NRGBA{200, 100, 50, 255}
	src := newSolidImage(64, 48, want)

	for _, alg := range Algorithms {
		for _, f := range Filters {
			t.Run(alg.String()+"/"+f.String(), func(t *testing.T) {
				got, err := Resize(src, 16, 12, alg, f)
				require.NoError(t, err)

				for _, p := range []image.Point{{0, 0}, {8, 6}, {15, 11}} {
					c := got.NRGBAAt(p.X, p.Y)
					assert.InDelta(t, want.R, c.R, 1, "R at %v", p)
					assert.InDelta(t, want.G, c.G, 1, "G at %v", p)
					assert.InDelta(t, want.B, c.B, 1, "B at %v", p)
					assert.Equal(t, want.A, c.A, "A at %v", p)
				}
			})
		}
	}
}

func TestResize_SuperSamplingDiffersFromNearest(t *testing.T) {
	src := newCheckerImage(64, 64)

	nearest, err := Resize(src, 8, 8, Nearest, Lanczos3)
	require.NoError(t, err)
	super, err := Resize(src, 8, 8, SuperSampling8x, Lanczos3)
	require.NoError(t, err)

	assert.NotEqual(t, nearest.Pix, super.Pix)

	// Nearest lands on one parity of the checkerboard; 8x8 averaging
	// resolves it to mid grey.
	c := super.NRGBAAt(4, 4)
	assert.InDelta(t, 128, c.R, 2)
	n := nearest.NRGBAAt(4, 4)
	assert.True(t, n.R == 0 || n.R == 255, "nearest should pick a pure checker pixel, got %d", n.R)
}

func TestResize_FilterIgnoredByNearest(t *testing.T) {
	src := newPatternImage(50, 50)

	a, err := Resize(src, 20, 20, Nearest, Lanczos3)
	require.NoError(t, err)
	b, err := Resize(src, 20, 20, Nearest, Box)
	require.NoError(t, err)

	assert.Equal(t, a.Pix, b.Pix)
}

func TestResize_TransparentPixelsDoNotBleed(t *testing.T) {
	// Left half fully transparent but carrying green colour data, right half
	// opaque red. No visible output pixel may pick up any green.
	src := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if x < 8 {
				src.SetNRGBA(x, y, color.NRGBA{0, 255, 0, 0})
			} else {
				src.SetNRGBA(x, y, color.NRGBA{255, 0, 0, 255})
			}
		}
	}

	for _, alg := range []Algorithm{Interpolation, Convolution, SuperSampling2x} {
		for _, f := range []Filter{Bilinear, Lanczos3} {
			t.Run(alg.String()+"/"+f.String(), func(t *testing.T) {
				got, err := Resize(src, 5, 5, alg, f)
				require.NoError(t, err)

				for y := 0; y < 5; y++ {
					for x := 0; x < 5; x++ {
						c := got.NRGBAAt(x, y)
						if c.A == 0 {
							continue
						}
						assert.Equal(t, uint8(0), c.G, "green bled into (%d,%d): %v", x, y, c)
					}
				}
				if f == Bilinear {
					// Support stays inside the opaque half.
					assert.Equal(t, uint8(255), got.NRGBAAt(4, 2).A)
				}
			})
		}
	}
}

func TestResize_DoesNotModifySource(t *testing.T) {
	src := newPatternImage(30, 30)
	before := append([]uint8(nil), src.Pix...)

	for _, alg := range Algorithms {
		_, err := Resize(src, 30, 30, alg, Mitchell)
		require.NoError(t, err)
	}
	assert.Equal(t, before, src.Pix)
}

func TestResize_NonZeroOriginSource(t *testing.T) {
	base := newPatternImage(40, 40)
	sub := base.SubImage(image.Rect(10, 10, 30, 30))

	got, err := Resize(sub, 10, 10, Interpolation, Bilinear)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 10), got.Bounds())
}

func TestInterpolationTaps_WeightsAreNormalized(t *testing.T) {
	for _, f := range Filters {
		taps := interpolationTaps(7, 31, f.kernel())
		require.Len(t, taps, 7)
		for x, ts := range taps {
			var sum float64
			for _, tp := range ts {
				assert.GreaterOrEqual(t, tp.index, 0)
				assert.Less(t, tp.index, 31)
				sum += tp.weight
			}
			assert.InDelta(t, 1.0, sum, 1e-9, "%s taps at %d", f, x)
		}
	}
}

func TestAverageBlocks(t *testing.T) {
	src := newCheckerImage(4, 4)
	got := averageBlocks(src, 2)

	require.Equal(t, image.Rect(0, 0, 2, 2), got.Bounds())
	for _, c := range []color.NRGBA{got.NRGBAAt(0, 0), got.NRGBAAt(1, 1)} {
		assert.InDelta(t, 128, c.R, 1)
		assert.Equal(t, uint8(255), c.A)
	}
}
