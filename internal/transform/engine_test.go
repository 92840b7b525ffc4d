package transform

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ironsheep/imgresize/internal/cache"
	"github.com/ironsheep/imgresize/internal/errs"
	"github.com/ironsheep/imgresize/internal/imaging"
	"github.com/ironsheep/imgresize/internal/params"
)

// memLoader serves sources from memory and counts loads per identity.
type memLoader struct {
	mu    sync.Mutex
	files map[string][]byte
	loads map[string]int
	// gate, when set, blocks every load until it is closed.
	gate chan struct{}
}

func newMemLoader() *memLoader {
	return &memLoader{files: map[string][]byte{}, loads: map[string]int{}}
}

func (l *memLoader) Load(ctx context.Context, identity string) ([]byte, error) {
	if l.gate != nil {
		<-l.gate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads[identity]++
	data, ok := l.files[identity]
	if !ok {
		return nil, errs.NotFound("memloader.load", identity, nil)
	}
	return data, nil
}

func (l *memLoader) count(identity string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[identity]
}

func encodedImage(t *testing.T, w, h int, f imaging.Format) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), uint8(x + y), 255})
		}
	}
	data, err := imaging.Encode(img, f, imaging.EncodeOptions{})
	require.NoError(t, err)
	return data
}

func newTestEngine(t *testing.T, loader *memLoader, capacity int, defs params.Defaults) *Engine {
	t.Helper()
	log := zaptest.NewLogger(t)
	c, err := cache.New(capacity, log.Named("cache"))
	require.NoError(t, err)
	e, err := NewEngine(c, loader, Options{Defaults: defs, Workers: 2}, log.Named("engine"))
	require.NoError(t, err)
	return e
}

func decodedSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, err := imaging.Decode(data)
	require.NoError(t, err)
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestNewEngine_RequiresCollaborators(t *testing.T) {
	c, err := cache.New(1, nil)
	require.NoError(t, err)

	_, err = NewEngine(nil, newMemLoader(), Options{}, nil)
	assert.Error(t, err)
	_, err = NewEngine(c, nil, Options{}, nil)
	assert.Error(t, err)

	e, err := NewEngine(c, newMemLoader(), Options{}, nil)
	require.NoError(t, err)
	assert.Positive(t, e.Workers())
}

func TestHandle_EndToEndWebP(t *testing.T) {
	loader := newMemLoader()
	loader.files["photos/big.png"] = encodedImage(t, 1000, 800, imaging.PNG)
	e := newTestEngine(t, loader, 10, params.DefaultDefaults())

	res, err := e.Handle(context.Background(), "photos/big.png", map[string]string{
		"w":         "100",
		"h":         "",
		"dpr":       "2",
		"output":    "webp",
		"algorithm": "interpolation",
	})
	require.NoError(t, err)

	assert.Equal(t, "image/webp", res.ContentType)
	assert.False(t, res.Passthrough)
	assert.NotEmpty(t, res.Key)

	info, err := imaging.Probe(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "webp", info.Format)
	assert.Equal(t, 200, info.Width)
	assert.Equal(t, 160, info.Height)
}

func TestHandle_ValidationErrors(t *testing.T) {
	loader := newMemLoader()
	loader.files["a.png"] = encodedImage(t, 10, 10, imaging.PNG)
	e := newTestEngine(t, loader, 10, params.DefaultDefaults())

	tests := []struct {
		name  string
		query map[string]string
	}{
		{"unsupported output", map[string]string{"output": "bmp"}},
		{"zero width", map[string]string{"w": "0"}},
		{"unknown algorithm", map[string]string{"w": "5", "algorithm": "magic"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Handle(context.Background(), "a.png", tt.query)
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrValidation)
			assert.NotErrorIs(t, err, errs.ErrInvalidDimensions)
		})
	}
	assert.Equal(t, 0, loader.count("a.png"), "invalid requests never reach the source")
}

func TestHandle_DPRIsClamped(t *testing.T) {
	loader := newMemLoader()
	loader.files["a.png"] = encodedImage(t, 100, 50, imaging.PNG)
	e := newTestEngine(t, loader, 10, params.DefaultDefaults())

	res, err := e.Handle(context.Background(), "a.png", map[string]string{"w": "10", "dpr": "5", "output": "png"})
	require.NoError(t, err)
	w, h := decodedSize(t, res.Body)
	assert.Equal(t, 30, w)
	assert.Equal(t, 15, h)
}

func TestHandle_BothAxesCropToFill(t *testing.T) {
	loader := newMemLoader()
	loader.files["wide.png"] = encodedImage(t, 100, 50, imaging.PNG)
	e := newTestEngine(t, loader, 10, params.DefaultDefaults())

	res, err := e.Handle(context.Background(), "wide.png", map[string]string{"w": "20", "h": "20", "output": "png"})
	require.NoError(t, err)
	w, h := decodedSize(t, res.Body)
	assert.Equal(t, 20, w)
	assert.Equal(t, 20, h)
}

func TestHandle_RepeatServedFromCache(t *testing.T) {
	loader := newMemLoader()
	loader.files["a.png"] = encodedImage(t, 64, 64, imaging.PNG)
	e := newTestEngine(t, loader, 10, params.DefaultDefaults())
	ctx := context.Background()

	first, err := e.Handle(ctx, "a.png", map[string]string{"w": "16", "output": "webp"})
	require.NoError(t, err)
	second, err := e.Handle(ctx, "a.png", map[string]string{"output": "webp", "w": "16"})
	require.NoError(t, err)

	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, 1, loader.count("a.png"))

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.Computations)
	assert.Equal(t, uint64(1), stats.Hits)
}

func TestHandle_ConcurrentRequestsComputeOnce(t *testing.T) {
	loader := newMemLoader()
	loader.files["a.png"] = encodedImage(t, 64, 64, imaging.PNG)
	loader.gate = make(chan struct{})
	e := newTestEngine(t, loader, 10, params.DefaultDefaults())

	const n = 20
	var wg sync.WaitGroup
	bodies := make([][]byte, n)
	failures := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.Handle(context.Background(), "a.png", map[string]string{"w": "8"})
			failures[i] = err
			if err == nil {
				bodies[i] = res.Body
			}
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(loader.gate)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, failures[i])
		assert.Equal(t, bodies[0], bodies[i])
	}
	assert.Equal(t, 1, loader.count("a.png"))
}

func TestHandle_Passthrough(t *testing.T) {
	loader := newMemLoader()
	original := encodedImage(t, 30, 20, imaging.PNG)
	loader.files["a.png"] = original
	e := newTestEngine(t, loader, 10, params.DefaultDefaults())

	res, err := e.Handle(context.Background(), "a.png", map[string]string{"output": "png"})
	require.NoError(t, err)
	assert.True(t, res.Passthrough)
	assert.Equal(t, original, res.Body)
	assert.Equal(t, "image/png", res.ContentType)
	assert.Empty(t, res.Key)
	assert.Equal(t, 0, e.Stats().Entries)

	// A different output format still converts, reusing the loaded bytes.
	res, err = e.Handle(context.Background(), "a.png", map[string]string{})
	require.NoError(t, err)
	assert.False(t, res.Passthrough)
	assert.Equal(t, "image/webp", res.ContentType)
	w, h := decodedSize(t, res.Body)
	assert.Equal(t, 30, w)
	assert.Equal(t, 20, h)
	assert.Equal(t, 2, loader.count("a.png"))
}

func TestHandle_NativeCacheHitSkipsSource(t *testing.T) {
	loader := newMemLoader()
	loader.files["a.png"] = encodedImage(t, 30, 20, imaging.PNG)
	e := newTestEngine(t, loader, 10, params.DefaultDefaults())

	for i := 0; i < 5; i++ {
		res, err := e.Handle(context.Background(), "a.png", map[string]string{"output": "webp"})
		require.NoError(t, err)
		assert.False(t, res.Passthrough)
		assert.Equal(t, "image/webp", res.ContentType)
	}

	assert.Equal(t, 1, loader.count("a.png"))
	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.Computations)
	assert.Equal(t, uint64(4), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestHandle_IdentityIsCleaned(t *testing.T) {
	loader := newMemLoader()
	loader.files["photos/a.png"] = encodedImage(t, 40, 40, imaging.PNG)
	e := newTestEngine(t, loader, 10, params.DefaultDefaults())
	ctx := context.Background()

	first, err := e.Handle(ctx, "photos/a.png", map[string]string{"w": "10"})
	require.NoError(t, err)
	second, err := e.Handle(ctx, "/photos/./a.png", map[string]string{"w": "10"})
	require.NoError(t, err)

	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, 1, loader.count("photos/a.png"))
	assert.Equal(t, uint64(1), e.Stats().Computations)

	_, err = e.Handle(ctx, "/", map[string]string{"w": "10"})
	assert.ErrorIs(t, err, errs.ErrSourceNotFound)
}

func TestHandle_RejectsOversizedSource(t *testing.T) {
	loader := newMemLoader()
	loader.files["huge.png"] = encodedImage(t, 200, 200, imaging.PNG)
	loader.files["small.png"] = encodedImage(t, 100, 100, imaging.PNG)

	log := zaptest.NewLogger(t)
	c, err := cache.New(10, log.Named("cache"))
	require.NoError(t, err)
	e, err := NewEngine(c, loader, Options{
		Defaults:        params.DefaultDefaults(),
		Workers:         1,
		MaxSourcePixels: 10_000,
	}, log.Named("engine"))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.Handle(ctx, "huge.png", map[string]string{"w": "10"})
	assert.ErrorIs(t, err, errs.ErrInvalidDimensions)
	assert.Equal(t, errs.InvalidDimensions, errs.KindOf(err))
	assert.Equal(t, 0, e.Stats().Entries)

	// Native conversions go through the same check.
	_, err = e.Handle(ctx, "huge.png", map[string]string{"output": "webp"})
	assert.ErrorIs(t, err, errs.ErrInvalidDimensions)

	// Exactly at the limit is allowed.
	res, err := e.Handle(ctx, "small.png", map[string]string{"w": "10"})
	require.NoError(t, err)
	w, h := decodedSize(t, res.Body)
	assert.Equal(t, 10, w)
	assert.Equal(t, 10, h)
}

func TestHandle_ErrorKinds(t *testing.T) {
	loader := newMemLoader()
	loader.files["garbage.png"] = []byte("definitely not an image")
	loader.files["big.png"] = encodedImage(t, 200, 100, imaging.PNG)

	defs := params.DefaultDefaults()
	defs.MaxDimension = 50
	defs.MaxDPR = 1
	e := newTestEngine(t, loader, 10, defs)
	ctx := context.Background()

	_, err := e.Handle(ctx, "missing.png", map[string]string{"w": "10"})
	assert.ErrorIs(t, err, errs.ErrSourceNotFound)
	var ce *cache.ComputeError
	assert.ErrorAs(t, err, &ce)

	_, err = e.Handle(ctx, "missing.png", map[string]string{})
	assert.ErrorIs(t, err, errs.ErrSourceNotFound)

	_, err = e.Handle(ctx, "garbage.png", map[string]string{"w": "10"})
	assert.ErrorIs(t, err, errs.ErrDecode)
	assert.Equal(t, errs.Decode, errs.KindOf(err))

	_, err = e.Handle(ctx, "big.png", map[string]string{})
	assert.ErrorIs(t, err, errs.ErrInvalidDimensions)

	// Failures are not cached: the next request retries the source.
	before := loader.count("garbage.png")
	_, err = e.Handle(ctx, "garbage.png", map[string]string{"w": "10"})
	require.Error(t, err)
	assert.Equal(t, before+1, loader.count("garbage.png"))
}

func TestHandle_JPEGBackground(t *testing.T) {
	loader := newMemLoader()
	transparent := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	data, err := imaging.Encode(transparent, imaging.PNG, imaging.EncodeOptions{})
	require.NoError(t, err)
	loader.files["clear.png"] = data
	e := newTestEngine(t, loader, 10, params.DefaultDefaults())

	res, err := e.Handle(context.Background(), "clear.png", map[string]string{"output": "jpg", "bg": "#000000"})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", res.ContentType)

	img, err := imaging.Decode(res.Body)
	require.NoError(t, err)
	r, g, b, _ := img.At(4, 4).RGBA()
	assert.Less(t, r>>8, uint32(16))
	assert.Less(t, g>>8, uint32(16))
	assert.Less(t, b>>8, uint32(16))
}

func TestEngines_DoNotShareState(t *testing.T) {
	loader := newMemLoader()
	loader.files["a.png"] = encodedImage(t, 32, 32, imaging.PNG)
	one := newTestEngine(t, loader, 10, params.DefaultDefaults())
	two := newTestEngine(t, loader, 10, params.DefaultDefaults())

	_, err := one.Handle(context.Background(), "a.png", map[string]string{"w": "8"})
	require.NoError(t, err)

	assert.Equal(t, 1, one.Stats().Entries)
	assert.Equal(t, 0, two.Stats().Entries)
}

func TestDeriveKey(t *testing.T) {
	defs := params.DefaultDefaults()
	a, err := params.Resolve(map[string]string{"w": "100", "dpr": "2", "output": "webp"}, defs)
	require.NoError(t, err)
	b, err := params.Resolve(map[string]string{"output": "webp", "dpr": "2.0", "w": "100", "junk": "1"}, defs)
	require.NoError(t, err)
	c, err := params.Resolve(map[string]string{"w": "101", "dpr": "2", "output": "webp"}, defs)
	require.NoError(t, err)

	assert.Equal(t, DeriveKey("x.png", a), DeriveKey("x.png", b))
	assert.NotEqual(t, DeriveKey("x.png", a), DeriveKey("x.png", c))
	assert.NotEqual(t, DeriveKey("x.png", a), DeriveKey("y.png", a))
	assert.Len(t, string(DeriveKey("x.png", a)), 64)

	assert.Equal(t, DeriveKey("x.png", a), DeriveKey("/x.png", a))
	assert.Equal(t, DeriveKey("dir/x.png", a), DeriveKey("/dir/../dir/./x.png", a))
}
