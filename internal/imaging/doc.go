// Package imaging implements the pixel side of the resize service: decoding
// source bytes, planning the output geometry, resampling, and encoding the
// result.
//
// All operations work with standard Go image.Image values. Buffers returned by
// this package are *image.NRGBA with bounds anchored at (0,0) and straight
// (non-premultiplied) alpha.
//
// # Algorithms
//
// Algorithms are listed cheapest first. The order is part of the contract:
//   - nearest: closest source pixel, filter ignored
//   - interpolation: kernel evaluated at its natural support (default)
//   - convolution: kernel support widened by the downscale ratio
//   - super-sampling2x/4x/8x: interpolation at Nx the target, then NxN
//     block averaging
//
// # Filters
//
// lanczos3, gaussian, catmull-rom, hamming, mitchell, bilinear and box, backed
// by the kernels of github.com/disintegration/imaging.
//
// # Alpha
//
// Colour channels are weighted by alpha while resampling and divided back out
// afterwards, so fully transparent pixels never tint their neighbours.
//
// # Thread Safety
//
// Every function is stateless. A buffer handed to Resize or Encode is only
// read; callers own the buffers they get back.
//
// # Error Handling
//
// Failures are classified with package errs:
//   - errs.Decode from Decode and Probe
//   - errs.InvalidDimensions from PlanSize, Crop and Resize
//   - errs.Encode from Encode
package imaging
