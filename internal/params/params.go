// Package params turns raw request query values into a normalized transform
// Descriptor. It is the only place request strings are interpreted; everything
// downstream works with the closed enumerations of package imaging.
package params

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/ironsheep/imgresize/internal/errs"
	"github.com/ironsheep/imgresize/internal/imaging"
)

// Recognised query parameter names. Anything else is ignored.
const (
	KeyWidth      = "w"
	KeyHeight     = "h"
	KeyDPR        = "dpr"
	KeyOutput     = "output"
	KeyAlgorithm  = "algorithm"
	KeyFilter     = "filter"
	KeyBackground = "bg"
)

// Defaults are the configured fallbacks for omitted parameters.
type Defaults struct {
	Algorithm  imaging.Algorithm
	Filter     imaging.Filter
	Output     imaging.Format
	Background color.NRGBA

	// MinDPR and MaxDPR bound the device pixel ratio; out-of-range values
	// are clamped.
	MinDPR float64
	MaxDPR float64

	// MaxDimension rejects w/h above it. 0 disables the check.
	MaxDimension int
}

// DefaultDefaults mirrors the stock service configuration.
func DefaultDefaults() Defaults {
	return Defaults{
		Algorithm:    imaging.Interpolation,
		Filter:       imaging.Lanczos3,
		Output:       imaging.WebP,
		Background:   color.NRGBA{255, 255, 255, 255},
		MinDPR:       1.0,
		MaxDPR:       3.0,
		MaxDimension: 8192,
	}
}

// Descriptor is a fully normalized transformation request. It is immutable
// by convention: construct it through Resolve and pass it by value.
type Descriptor struct {
	// Width and Height are the requested size in CSS pixels; 0 means the axis
	// was not given.
	Width  int
	Height int

	// DPR is within [Defaults.MinDPR, Defaults.MaxDPR].
	DPR float64

	Output     imaging.Format
	Algorithm  imaging.Algorithm
	Filter     imaging.Filter
	Background color.NRGBA
}

// Native reports whether the request asks for the source's own size.
func (d Descriptor) Native() bool {
	return d.Width == 0 && d.Height == 0 && d.DPR == 1
}

// Canonical renders d as a stable string: equal descriptors always render the
// same, whatever order their query parameters arrived in. Fields that cannot
// influence the output are left out (the filter under Nearest, the background
// for formats with alpha).
func (d Descriptor) Canonical() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "w=%d;h=%d;dpr=%s;output=%s;algorithm=%s",
		d.Width, d.Height, strconv.FormatFloat(d.DPR, 'f', -1, 64), d.Output, d.Algorithm)
	if d.Algorithm.UsesFilter() {
		fmt.Fprintf(&sb, ";filter=%s", d.Filter)
	}
	if d.Output == imaging.JPEG {
		fmt.Fprintf(&sb, ";bg=%s", imaging.HexString(d.Background))
	}
	return sb.String()
}

func (d Descriptor) String() string {
	return d.Canonical()
}

// Resolve validates raw query values against defs and returns the normalized
// descriptor. It is a pure function of its inputs.
//
// # Rules
//
//   - w, h: optional positive integers, at most defs.MaxDimension
//   - dpr: optional finite number, clamped into [MinDPR, MaxDPR]
//   - output: optional, one of webp|jpeg|jpg|png
//   - algorithm, filter: optional names from package imaging
//   - bg: optional hex colour used when flattening alpha for JPEG
//
// Every violation is an errs.Validation error naming the parameter.
func Resolve(query map[string]string, defs Defaults) (Descriptor, error) {
	d := Descriptor{
		DPR:        1,
		Output:     defs.Output,
		Algorithm:  defs.Algorithm,
		Filter:     defs.Filter,
		Background: defs.Background,
	}

	var err error
	if d.Width, err = dimension(query, KeyWidth, defs.MaxDimension); err != nil {
		return Descriptor{}, err
	}
	if d.Height, err = dimension(query, KeyHeight, defs.MaxDimension); err != nil {
		return Descriptor{}, err
	}

	if raw, ok := lookup(query, KeyDPR); ok {
		v, perr := strconv.ParseFloat(raw, 64)
		if perr != nil || math.IsNaN(v) {
			return Descriptor{}, errs.Validationf("params.resolve", "%s must be a number, got %q", KeyDPR, raw)
		}
		d.DPR = v
	}
	d.DPR = clampDPR(d.DPR, defs.MinDPR, defs.MaxDPR)

	if raw, ok := lookup(query, KeyOutput); ok {
		if d.Output, err = imaging.ParseFormat(raw); err != nil {
			return Descriptor{}, errs.E(errs.Validation, "params.resolve", KeyOutput, err)
		}
	}
	if raw, ok := lookup(query, KeyAlgorithm); ok {
		if d.Algorithm, err = imaging.ParseAlgorithm(raw); err != nil {
			return Descriptor{}, errs.E(errs.Validation, "params.resolve", KeyAlgorithm, err)
		}
	}
	if raw, ok := lookup(query, KeyFilter); ok {
		if d.Filter, err = imaging.ParseFilter(raw); err != nil {
			return Descriptor{}, errs.E(errs.Validation, "params.resolve", KeyFilter, err)
		}
	}
	if raw, ok := lookup(query, KeyBackground); ok {
		if d.Background, err = imaging.ParseBackground(raw); err != nil {
			return Descriptor{}, errs.E(errs.Validation, "params.resolve", KeyBackground, err)
		}
	}

	return d, nil
}

// lookup returns a parameter value, treating an empty value as absent.
func lookup(query map[string]string, key string) (string, bool) {
	v, ok := query[key]
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func dimension(query map[string]string, key string, limit int) (int, error) {
	raw, ok := lookup(query, key)
	if !ok {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Validationf("params.resolve", "%s must be an integer, got %q", key, raw)
	}
	if v <= 0 {
		return 0, errs.Validationf("params.resolve", "%s must be positive, got %d", key, v)
	}
	if limit > 0 && v > limit {
		return 0, errs.Validationf("params.resolve", "%s must be at most %d, got %d", key, limit, v)
	}
	return v, nil
}

func clampDPR(v, lo, hi float64) float64 {
	if lo <= 0 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}
	return math.Min(math.Max(v, lo), hi)
}
