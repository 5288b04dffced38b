package pathtrace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chewxy/math32"
	"github.com/cjsb/SparseVoxelOctree/log"
	"github.com/cjsb/SparseVoxelOctree/octree"
	"github.com/cjsb/SparseVoxelOctree/scene"
	"github.com/cjsb/SparseVoxelOctree/tracer"
	"github.com/cjsb/SparseVoxelOctree/tracer/exr"
	"github.com/cjsb/SparseVoxelOctree/tracer/raymarch"
	"github.com/cjsb/SparseVoxelOctree/types"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrNotPrepared   = errors.New("pathtrace: tracer not prepared")
	ErrFrameMismatch = errors.New("pathtrace: primary frame dimensions do not match the tracer")
)

// Secondary rays start this far above the surface.
const surfaceOffset = 1e-4

// A Tracer progressively accumulates path traced samples for a fixed view.
//
// Prepare binds an octree and the primary hits of a view and resets the
// accumulation buffers. Every call to Render adds exactly one sample per
// pixel. The buffers hold running sums so displaying them never changes the
// accumulated state.
type Tracer struct {
	logger log.Logger
	width  uint32
	height uint32
	pool   *tracer.Pool

	oct     *octree.Octree
	origin  types.Vec3
	dirs    []types.Vec3
	primary []raymarch.Hit

	colorSum  []types.Vec3
	albedoSum []types.Vec3
	normalSum []types.Vec3
	scratch   []types.Vec3
	spp       uint32
}

// Create a path tracer for width x height frames that renders rows on the
// given number of workers.
func New(width, height uint32, workers int) *Tracer {
	n := width * height
	return &Tracer{
		logger:    log.New("path tracer"),
		width:     width,
		height:    height,
		pool:      tracer.NewPool(workers, tracer.PerfectScheduler()),
		colorSum:  make([]types.Vec3, n),
		albedoSum: make([]types.Vec3, n),
		normalSum: make([]types.Vec3, n),
		scratch:   make([]types.Vec3, n),
	}
}

// Width returns the frame width.
func (t *Tracer) Width() uint32 {
	return t.width
}

// Height returns the frame height.
func (t *Tracer) Height() uint32 {
	return t.height
}

// Pool returns the worker pool used for rendering.
func (t *Tracer) Pool() *tracer.Pool {
	return t.pool
}

// Prepare binds an octree and view to the tracer and clears the
// accumulation buffers. If primary is not nil its hits are reused as the
// first path vertices; otherwise a primary pass is ray marched for cam.
func (t *Tracer) Prepare(ctx context.Context, cam *scene.Camera, oct *octree.Octree, primary *raymarch.Frame) error {
	if oct == nil {
		return fmt.Errorf("pathtrace: nil octree")
	}

	if primary == nil {
		var err error
		settings := raymarch.DefaultSettings(t.width, t.height)
		if primary, err = raymarch.RenderWithPool(ctx, t.pool, oct, cam, settings); err != nil {
			return err
		}
	}
	if primary.Width != t.width || primary.Height != t.height {
		return fmt.Errorf("%w: got %dx%d; expected %dx%d", ErrFrameMismatch, primary.Width, primary.Height, t.width, t.height)
	}

	t.oct = oct
	t.origin = primary.Origin
	t.dirs = append(t.dirs[:0], primary.Dirs...)
	t.primary = append(t.primary[:0], primary.Hits...)
	t.Reset()
	return nil
}

// Reset clears the accumulation buffers.
func (t *Tracer) Reset() {
	clear(t.colorSum)
	clear(t.albedoSum)
	clear(t.normalSum)
	t.spp = 0
}

// SPP returns the number of accumulated samples per pixel.
func (t *Tracer) SPP() uint32 {
	return t.spp
}

// Render adds one sample per pixel to the accumulation buffers. If the
// settings are paused it returns without modifying any state. The buffers
// are only updated once every pixel has been sampled so a cancelled render
// leaves them untouched.
func (t *Tracer) Render(ctx context.Context, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if t.oct == nil {
		return ErrNotPrepared
	}
	if settings.Paused {
		return nil
	}

	start := time.Now()
	sampleIndex := t.spp
	err := t.pool.Run(ctx, t.height, func(ctx context.Context, y0, y1 uint32) error {
		src := &rand.PCGSource{}
		rng := rand.New(src)
		for y := y0; y < y1; y++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for x := uint32(0); x < t.width; x++ {
				idx := y*t.width + x
				t.scratch[idx] = t.sample(idx, sampleIndex, &settings, src, rng)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for idx, c := range t.scratch {
		hit := &t.primary[idx]
		t.colorSum[idx] = t.colorSum[idx].Add(c)
		if hit.Found {
			t.albedoSum[idx] = t.albedoSum[idx].Add(hit.Albedo)
			t.normalSum[idx] = t.normalSum[idx].Add(hit.Normal)
		}
	}
	t.spp++

	t.logger.Debugf("sample %d rendered in %d ms", t.spp, time.Since(start).Nanoseconds()/1e6)
	return nil
}

// Sample evaluates the n-th sample of pixel (x, y). The result only depends
// on the prepared view, the settings and the arguments.
func (t *Tracer) Sample(x, y, n uint32, settings Settings) types.Vec3 {
	src := &rand.PCGSource{}
	return t.sample(y*t.width+x, n, &settings, src, rand.New(src))
}

func (t *Tracer) sample(idx, n uint32, settings *Settings, src *rand.PCGSource, rng *rand.Rand) types.Vec3 {
	hit := t.primary[idx]
	if !hit.Found {
		return settings.SkyRadiance
	}
	src.Seed(sampleSeed(idx, n))

	sunDir := settings.SunDirection.Normalize()
	sunLit := settings.SunRadiance.MaxComponent() > 0
	dir := t.dirs[idx]
	throughput := types.Vec3{1, 1, 1}
	var radiance types.Vec3

	for bounce := 0; ; bounce++ {
		normal := hit.Normal
		if normal.Len() == 0 {
			normal = dir.Mul(-1)
		} else if normal.Dot(dir) > 0 {
			normal = normal.Mul(-1)
		}

		radiance = radiance.Add(throughput.MulVec(hit.Emission))
		origin := hit.Position.Add(normal.Mul(surfaceOffset))

		if cos := normal.Dot(sunDir); sunLit && cos > 0 {
			shadow := raymarch.TraceSkip(t.oct, raymarch.NewRay(origin, sunDir), 0, raymarch.DefaultMaxIterations, hit.Leaf)
			if !shadow.Found {
				direct := hit.Albedo.MulVec(settings.SunRadiance).Mul(cos / math32.Pi)
				radiance = radiance.Add(throughput.MulVec(direct))
			}
		}

		if bounce == settings.Bounces {
			break
		}

		// Cosine weighted sampling of a lambertian surface leaves the
		// albedo as the path weight.
		throughput = throughput.MulVec(hit.Albedo)
		if throughput.MaxComponent() <= 0 {
			break
		}

		dir = cosineSampleHemisphere(normal, rng.Float32(), rng.Float32())
		next := raymarch.TraceSkip(t.oct, raymarch.NewRay(origin, dir), 0, raymarch.DefaultMaxIterations, hit.Leaf)
		if !next.Found {
			radiance = radiance.Add(throughput.MulVec(settings.SkyRadiance))
			break
		}
		hit = next
	}
	return radiance
}

// Display returns the per pixel average of a channel.
func (t *Tracer) Display(ch Channel) []types.Vec3 {
	var sums []types.Vec3
	switch ch {
	case ChannelAlbedo:
		sums = t.albedoSum
	case ChannelNormal:
		sums = t.normalSum
	default:
		sums = t.colorSum
	}

	out := make([]types.Vec3, len(sums))
	if t.spp == 0 {
		return out
	}
	scale := 1 / float32(t.spp)
	for idx, sum := range sums {
		out[idx] = sum.Mul(scale)
	}
	return out
}

// NoiseStats returns the mean and variance of the luminance of the
// accumulated color channel.
func (t *Tracer) NoiseStats() (mean, variance float64) {
	color := t.Display(ChannelColor)
	lum := make([]float64, len(color))
	for idx, c := range color {
		lum[idx] = float64(0.2126*c[0] + 0.7152*c[1] + 0.0722*c[2])
	}
	if len(lum) < 2 {
		return stat.Mean(lum, nil), 0
	}
	return stat.MeanVariance(lum, nil)
}

// Save exports a channel as an OpenEXR image using 16-bit half floats if
// halfPrecision is set or 32-bit floats otherwise.
func (t *Tracer) Save(path string, ch Channel, halfPrecision bool) error {
	pixelType := exr.PixelTypeFloat
	if halfPrecision {
		pixelType = exr.PixelTypeHalf
	}
	if err := exr.WriteFile(path, int(t.width), int(t.height), t.Display(ch), pixelType); err != nil {
		return fmt.Errorf("pathtrace: could not save %s channel: %w", ch, err)
	}
	t.logger.Noticef("saved %s channel (%d spp) to %s", ch, t.spp, path)
	return nil
}

// SavePNG exports a channel as a PNG image. The color channel is tone
// mapped with the given exposure and normals are remapped to [0, 1].
func (t *Tracer) SavePNG(path string, ch Channel, exposure float32) error {
	pixels := t.Display(ch)
	switch ch {
	case ChannelNormal:
		for idx, n := range pixels {
			pixels[idx] = n.Mul(0.5).Add(types.Splat3(0.5))
		}
		exposure = 0
	case ChannelAlbedo:
		exposure = 0
	}

	if err := tracer.SavePNG(tracer.ToneMap(pixels, t.width, t.height, exposure), path); err != nil {
		return fmt.Errorf("pathtrace: could not save %s channel: %w", ch, err)
	}
	t.logger.Noticef("saved %s channel (%d spp) to %s", ch, t.spp, path)
	return nil
}

// cosineSampleHemisphere maps two uniform numbers to a direction around n
// with a pdf proportional to the cosine of the angle to n.
func cosineSampleHemisphere(n types.Vec3, u1, u2 float32) types.Vec3 {
	r := math32.Sqrt(u1)
	phi := 2 * math32.Pi * u2
	tangent, bitangent := types.OrthonormalBasis(n)
	return tangent.Mul(r * math32.Cos(phi)).
		Add(bitangent.Mul(r * math32.Sin(phi))).
		Add(n.Mul(math32.Sqrt(math32.Max(0, 1-u1)))).
		Normalize()
}

// sampleSeed derives an independent stream seed for a pixel sample using
// the splitmix64 finalizer.
func sampleSeed(pixel, n uint32) uint64 {
	z := uint64(pixel)<<32 | uint64(n)
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
