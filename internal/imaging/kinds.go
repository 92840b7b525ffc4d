package imaging

import (
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
)

// Algorithm selects a resampling strategy.
//
// Values are ordered by cost, cheapest first. Anything that lists algorithms
// to an operator (help text, capability listings, benchmarks) must keep this
// order since it is how the speed/quality trade-off is communicated.
type Algorithm int

const (
	// Nearest copies the closest source pixel. Ignores the filter.
	Nearest Algorithm = iota
	// Interpolation evaluates the filter kernel at its natural support around
	// each destination pixel. The default.
	Interpolation
	// Convolution stretches the kernel support by the downscale ratio so every
	// source pixel contributes, which anti-aliases large reductions.
	Convolution
	// SuperSampling2x renders at 2x the target with Interpolation, then
	// averages 2x2 blocks.
	SuperSampling2x
	// SuperSampling4x is SuperSampling2x with 4x4 blocks.
	SuperSampling4x
	// SuperSampling8x is SuperSampling2x with 8x8 blocks.
	SuperSampling8x
)

// Algorithms lists every Algorithm in cost order.
var Algorithms = []Algorithm{
	Nearest,
	Interpolation,
	Convolution,
	SuperSampling2x,
	SuperSampling4x,
	SuperSampling8x,
}

var algorithmNames = map[Algorithm]string{
	Nearest:         "nearest",
	Interpolation:   "interpolation",
	Convolution:     "convolution",
	SuperSampling2x: "super-sampling2x",
	SuperSampling4x: "super-sampling4x",
	SuperSampling8x: "super-sampling8x",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("algorithm(%d)", int(a))
}

// Multiplier returns the super-sampling factor, or 1 for single-pass algorithms.
func (a Algorithm) Multiplier() int {
	switch a {
	case SuperSampling2x:
		return 2
	case SuperSampling4x:
		return 4
	case SuperSampling8x:
		return 8
	default:
		return 1
	}
}

// UsesFilter reports whether the filter kernel affects the output.
func (a Algorithm) UsesFilter() bool {
	return a != Nearest
}

// ParseAlgorithm maps an algorithm name to its Algorithm. Matching ignores
// case and surrounding whitespace.
func ParseAlgorithm(s string) (Algorithm, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, a := range Algorithms {
		if algorithmNames[a] == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unsupported resize algorithm %q", s)
}

// Filter selects the kernel used by every algorithm except Nearest.
type Filter int

const (
	Lanczos3 Filter = iota
	Gaussian
	CatmullRom
	Hamming
	Mitchell
	Bilinear
	Box
)

// Filters lists every Filter.
var Filters = []Filter{Lanczos3, Gaussian, CatmullRom, Hamming, Mitchell, Bilinear, Box}

var filterNames = map[Filter]string{
	Lanczos3:   "lanczos3",
	Gaussian:   "gaussian",
	CatmullRom: "catmull-rom",
	Hamming:    "hamming",
	Mitchell:   "mitchell",
	Bilinear:   "bilinear",
	Box:        "box",
}

func (f Filter) String() string {
	if name, ok := filterNames[f]; ok {
		return name
	}
	return fmt.Sprintf("filter(%d)", int(f))
}

// ParseFilter maps a filter name to its Filter.
func ParseFilter(s string) (Filter, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, f := range Filters {
		if filterNames[f] == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unsupported filter type %q", s)
}

// kernel returns the resampling kernel for f.
func (f Filter) kernel() imaging.ResampleFilter {
	switch f {
	case Gaussian:
		return imaging.Gaussian
	case CatmullRom:
		return imaging.CatmullRom
	case Hamming:
		return imaging.Hamming
	case Mitchell:
		return imaging.MitchellNetravali
	case Bilinear:
		return imaging.Linear
	case Box:
		return imaging.Box
	default:
		return imaging.Lanczos
	}
}

// Format is an output codec.
type Format int

const (
	WebP Format = iota
	JPEG
	PNG
)

// Formats lists every output Format.
var Formats = []Format{WebP, JPEG, PNG}

type formatInfo struct {
	name string
	mime string
	ext  string
}

var formatInfos = map[Format]formatInfo{
	WebP: {"webp", "image/webp", ".webp"},
	JPEG: {"jpeg", "image/jpeg", ".jpg"},
	PNG:  {"png", "image/png", ".png"},
}

func (f Format) String() string {
	if info, ok := formatInfos[f]; ok {
		return info.name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// MIMEType returns the content type of f, e.g. "image/webp".
func (f Format) MIMEType() string {
	return formatInfos[f].mime
}

// Extension returns the conventional file extension of f including the dot.
func (f Format) Extension() string {
	return formatInfos[f].ext
}

// ParseFormat maps an output name to its Format. "jpg" is accepted as an
// alias for "jpeg".
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "jpg" {
		name = "jpeg"
	}
	for _, f := range Formats {
		if formatInfos[f].name == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unsupported output format %q", s)
}

// FormatFromMIME returns the Format with the given content type.
func FormatFromMIME(mime string) (Format, bool) {
	for _, f := range Formats {
		if formatInfos[f].mime == mime {
			return f, true
		}
	}
	return 0, false
}
