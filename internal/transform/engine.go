// Package transform turns a source identity plus raw query values into
// encoded image bytes, going through the result cache.
//
// A request flows through Engine.Handle:
//
//  1. params.Resolve normalizes the query into a Descriptor.
//  2. The request is keyed with DeriveKey and looked up in the cache.
//  3. On a miss, native requests whose output format matches the source are
//     served as the original bytes; everything else runs load, size check,
//     decode, resize and encode once and stores the result.
//
// Every failure carries an errs.Kind so callers can classify it without
// inspecting messages.
package transform

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ironsheep/imgresize/internal/cache"
	"github.com/ironsheep/imgresize/internal/errs"
	"github.com/ironsheep/imgresize/internal/imaging"
	"github.com/ironsheep/imgresize/internal/logging"
	"github.com/ironsheep/imgresize/internal/params"
	"github.com/ironsheep/imgresize/internal/source"
)

// Options configure an Engine.
type Options struct {
	Defaults params.Defaults

	// JPEGQuality is used for JPEG output; 0 selects imaging.DefaultJPEGQuality.
	JPEGQuality int

	// Workers bounds how many decode/resize/encode pipelines run at once.
	// 0 means runtime.NumCPU().
	Workers int

	// MaxSourcePixels rejects sources whose width*height exceeds it before
	// they are decoded. 0 disables the check.
	MaxSourcePixels int64
}

// Result is a successfully produced response body.
type Result struct {
	Body        []byte
	ContentType string

	// Key is empty for passthrough results, which bypass the cache.
	Key         cache.Key
	Passthrough bool
}

// Engine serves transform requests. It is safe for concurrent use.
type Engine struct {
	cache   *cache.Manager
	loader  source.Loader
	defs    params.Defaults
	quality int
	maxSide int
	maxPix  int64
	workers int
	sem     *semaphore.Weighted
	log     *zap.Logger
}

// NewEngine wires an Engine to its cache and source loader. The cache is
// owned by the caller, so several engines may share one or each have their
// own.
func NewEngine(c *cache.Manager, loader source.Loader, opts Options, log *zap.Logger) (*Engine, error) {
	if c == nil {
		return nil, fmt.Errorf("transform: cache is required")
	}
	if loader == nil {
		return nil, fmt.Errorf("transform: source loader is required")
	}
	if log == nil {
		log = logging.Nop()
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	maxSide := 0
	if opts.Defaults.MaxDimension > 0 {
		maxSide = int(math.Ceil(float64(opts.Defaults.MaxDimension) * math.Max(opts.Defaults.MaxDPR, 1)))
	}

	return &Engine{
		cache:   c,
		loader:  loader,
		defs:    opts.Defaults,
		quality: opts.JPEGQuality,
		maxSide: maxSide,
		maxPix:  opts.MaxSourcePixels,
		workers: workers,
		sem:     semaphore.NewWeighted(int64(workers)),
		log:     log,
	}, nil
}

// Defaults returns the fallbacks applied to omitted parameters.
func (e *Engine) Defaults() params.Defaults {
	return e.defs
}

// Workers returns the concurrency limit for CPU-bound work.
func (e *Engine) Workers() int {
	return e.workers
}

// CacheCapacity returns the maximum number of cached results.
func (e *Engine) CacheCapacity() int {
	return e.cache.Capacity()
}

// Stats returns the cache counters.
func (e *Engine) Stats() cache.Stats {
	return e.cache.Stats()
}

// Handle produces the response body for identity transformed by query.
// identity is cleaned with source.Clean, so "a.png" and "/a.png" name the
// same source and share cache entries.
//
// Failures are *errs.Error values, or *cache.ComputeError wrapping one when
// they came out of a (possibly shared) computation; errs.KindOf classifies
// both. A cancelled ctx returns ctx.Err() while any computation it started
// keeps running for other callers.
func (e *Engine) Handle(ctx context.Context, identity string, query map[string]string) (*Result, error) {
	d, err := params.Resolve(query, e.defs)
	if err != nil {
		return nil, err
	}
	name, ok := source.Clean(identity)
	if !ok {
		return nil, errs.NotFound("transform.handle", identity, nil)
	}

	key := DeriveKey(name, d)
	compute := func(data []byte) cache.ComputeFunc {
		return func(ctx context.Context) ([]byte, string, error) {
			return e.compute(ctx, name, d, data)
		}
	}

	if !d.Native() {
		entry, err := e.cache.GetOrCompute(ctx, key, compute(nil))
		if err != nil {
			return nil, err
		}
		return &Result{Body: entry.Bytes, ContentType: entry.ContentType, Key: key}, nil
	}

	// Native requests either pass the source through or convert it. Only a
	// cache miss needs the source bytes to tell which.
	if entry, ok := e.cache.Get(key); ok {
		return &Result{Body: entry.Bytes, ContentType: entry.ContentType, Key: key}, nil
	}
	data, err := e.loader.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	if sourceFormat(data) == d.Output {
		e.log.Debug("passthrough", zap.String("source", name), zap.Stringer("format", d.Output))
		return &Result{Body: data, ContentType: d.Output.MIMEType(), Passthrough: true}, nil
	}
	entry, err := e.cache.Compute(ctx, key, compute(data))
	if err != nil {
		return nil, err
	}
	return &Result{Body: entry.Bytes, ContentType: entry.ContentType, Key: key}, nil
}

// compute runs the miss path: load, decode, plan, resample, encode.
func (e *Engine) compute(ctx context.Context, identity string, d params.Descriptor, data []byte) ([]byte, string, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, "", err
	}
	defer e.sem.Release(1)

	start := time.Now()
	log := e.log.With(zap.String("source", identity), zap.Stringer("descriptor", d))

	if data == nil {
		var err error
		if data, err = e.loader.Load(ctx, identity); err != nil {
			log.Debug("source load failed", zap.Error(err))
			return nil, "", err
		}
	}

	if e.maxPix > 0 {
		info, err := imaging.Probe(data)
		if err != nil {
			log.Warn("source header unreadable", zap.Error(err))
			return nil, "", err
		}
		if px := int64(info.Width) * int64(info.Height); px > e.maxPix {
			err := errs.InvalidDimensionsf("transform.compute",
				"source %dx%d has %d pixels, limit is %d", info.Width, info.Height, px, e.maxPix)
			log.Warn("rejected source size", zap.Error(err))
			return nil, "", err
		}
	}

	img, err := imaging.Decode(data)
	if err != nil {
		log.Warn("decode failed", zap.Error(err))
		return nil, "", err
	}

	b := img.Bounds()
	plan, err := imaging.PlanSize(b.Dx(), b.Dy(), d.Width, d.Height, d.DPR, e.maxSide)
	if err != nil {
		log.Warn("rejected target size", zap.Error(err))
		return nil, "", err
	}

	resized, err := plan.Apply(img, d.Algorithm, d.Filter)
	if err != nil {
		log.Warn("resize failed", zap.Error(err))
		return nil, "", err
	}

	body, err := imaging.Encode(resized, d.Output, imaging.EncodeOptions{
		JPEGQuality: e.quality,
		Background:  d.Background,
	})
	if err != nil {
		log.Warn("encode failed", zap.Error(err))
		return nil, "", err
	}

	log.Debug("computed",
		zap.Int("src_width", b.Dx()),
		zap.Int("src_height", b.Dy()),
		zap.Stringer("plan", plan),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return body, d.Output.MIMEType(), nil
}

// sourceFormat sniffs data; unknown or non-output formats return -1.
func sourceFormat(data []byte) imaging.Format {
	if f, ok := imaging.FormatFromMIME(mimetype.Detect(data).String()); ok {
		return f
	}
	return -1
}
