package renderer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cjsb/SparseVoxelOctree/asset/mesh"
	meshreader "github.com/cjsb/SparseVoxelOctree/asset/mesh/reader"
	"github.com/cjsb/SparseVoxelOctree/log"
	"github.com/cjsb/SparseVoxelOctree/octree"
	"github.com/cjsb/SparseVoxelOctree/octree/builder"
	octreereader "github.com/cjsb/SparseVoxelOctree/octree/reader"
	"github.com/cjsb/SparseVoxelOctree/scene"
	"github.com/cjsb/SparseVoxelOctree/tracer"
	"github.com/cjsb/SparseVoxelOctree/tracer/pathtrace"
	"github.com/cjsb/SparseVoxelOctree/tracer/raymarch"
	"github.com/cjsb/SparseVoxelOctree/voxel"
)

// Extension of compiled octree files.
const OctreeExt = ".svo"

// A Renderer owns the current scene and drives the ray marcher and the
// path tracer over a shared worker pool.
//
// Scenes are built off to the side and published atomically so a failed or
// cancelled load keeps the previous scene. Any change of scene or camera
// implicitly restarts path tracing accumulation.
type Renderer struct {
	logger log.Logger
	opts   Options
	pool   *tracer.Pool

	scene atomic.Pointer[scene.Scene]

	// Serializes rendering calls.
	mu sync.Mutex

	lastFrame      *raymarch.Frame
	lastFrameScene *scene.Scene
	lastFrameCam   uint64
	stats          FrameStats

	pathTracer   *pathtrace.Tracer
	preparedFor  *scene.Scene
	preparedCam  uint64
	pathTracing  bool
	pathSettings pathtrace.Settings
}

// Create a new renderer.
func New(opts Options) *Renderer {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Renderer{
		logger: log.New("renderer"),
		opts:   opts,
		pool:   tracer.NewPool(opts.Workers, opts.Scheduler),
	}
}

// LoadScene replaces the current scene with the one stored at path.
//
// Meshes are voxelized at the given octree depth; the depth is validated
// before any file is read. Compiled octrees keep their stored depth and
// level must either match it or be 0.
func (r *Renderer) LoadScene(ctx context.Context, path string, level int) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == OctreeExt {
		if level != 0 && octree.ValidDepth(level) != nil {
			return octree.ValidDepth(level)
		}
		start := time.Now()
		o, err := octreereader.ReadOctree(path)
		if err != nil {
			return err
		}
		if level != 0 && level != o.Depth {
			return fmt.Errorf("%w: requested %d; stored %d", ErrLevelMismatch, level, o.Depth)
		}
		r.logger.Noticef("loaded octree (depth %d, %d leaves) in %d ms", o.Depth, o.LeafCount(), time.Since(start).Nanoseconds()/1e6)
		return r.publish(ctx, scene.New(sceneName(path), o, nil))
	}

	if err := octree.ValidDepth(level); err != nil {
		return err
	}
	if !meshreader.Supported(ext) {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	m, err := meshreader.ReadMesh(path)
	if err != nil {
		return err
	}
	if m.Name == "" {
		m.Name = sceneName(path)
	}
	return r.LoadMesh(ctx, m, level)
}

// LoadMesh voxelizes an in-memory mesh at the given depth and makes it the
// current scene.
func (r *Renderer) LoadMesh(ctx context.Context, m *mesh.Mesh, level int) error {
	s, err := BuildScene(ctx, m, level, r.opts.Workers, r.opts.SolidVoxelization)
	if err != nil {
		return err
	}
	return r.publish(ctx, s)
}

// BuildScene voxelizes a mesh and builds its octree.
func BuildScene(ctx context.Context, m *mesh.Mesh, level, workers int, solid bool) (*scene.Scene, error) {
	logger := log.New("renderer")
	if err := octree.ValidDepth(level); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	start := time.Now()
	res, err := voxel.Run(ctx, m, voxel.Options{Depth: level, Solid: solid, Workers: workers})
	if err != nil {
		return nil, interrupted(err)
	}
	voxelTime := time.Since(start)

	o, err := builder.BuildWithWorkers(ctx, res.Fragments, level, workers)
	if err != nil {
		return nil, interrupted(err)
	}
	o.Transform = res.Transform

	if o.Empty() {
		logger.Warningf("scene %q is empty", m.Name)
	}
	logger.Noticef(
		"voxelized %d triangles into %d fragments in %d ms; built octree with %d leaves in %d ms",
		len(m.Triangles), len(res.Fragments), voxelTime.Nanoseconds()/1e6, o.LeafCount(), (time.Since(start)-voxelTime).Nanoseconds()/1e6,
	)
	return scene.New(m.Name, o, m.Camera), nil
}

// SetScene publishes an already built scene.
func (r *Renderer) SetScene(s *scene.Scene) {
	r.scene.Store(s)
}

func (r *Renderer) publish(ctx context.Context, s *scene.Scene) error {
	if err := ctx.Err(); err != nil {
		return interrupted(err)
	}
	r.scene.Store(s)
	return nil
}

// Scene returns the current scene or nil.
func (r *Renderer) Scene() *scene.Scene {
	return r.scene.Load()
}

// HasOctree returns true if a scene with at least one leaf is loaded.
func (r *Renderer) HasOctree() bool {
	s := r.scene.Load()
	return s != nil && !s.Octree.Empty()
}

// RenderFrame ray marches the current scene.
func (r *Renderer) RenderFrame(ctx context.Context, settings raymarch.Settings) (*raymarch.Frame, error) {
	s := r.scene.Load()
	if s == nil {
		return nil, ErrNoOctree
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s.Camera.SetupProjection(float32(settings.Width) / float32(settings.Height))
	start := time.Now()
	f, err := raymarch.RenderWithPool(ctx, r.pool, s.Octree, s.Camera, settings)
	if err != nil {
		return nil, interrupted(err)
	}
	r.lastFrame, r.lastFrameScene, r.lastFrameCam = f, s, s.Camera.ChangeId()
	r.updateStats(r.pool, settings.Height, time.Since(start))
	return f, nil
}

// StartPathTracing enables progressive path tracing of the current view.
// Accumulation starts from zero.
func (r *Renderer) StartPathTracing(ctx context.Context, settings pathtrace.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s := r.scene.Load()
	if s == nil {
		return ErrNoOctree
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pathSettings = settings
	r.pathTracing = true
	return r.preparePathTracer(ctx, s)
}

// StopPathTracing disables path tracing and drops the accumulated samples.
func (r *Renderer) StopPathTracing() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pathTracing = false
	r.preparedFor = nil
	if r.pathTracer != nil {
		r.pathTracer.Reset()
	}
}

// SetPathTraceSettings replaces the settings used for future samples.
// Toggling the pause flag keeps the accumulated samples; changing the light
// setup or the bounce count restarts accumulation on the next sample.
func (r *Renderer) SetPathTraceSettings(settings pathtrace.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.pathSettings
	prev.Paused = settings.Paused
	if prev != settings {
		r.preparedFor = nil
	}
	r.pathSettings = settings
	return nil
}

// PathTrace adds one sample per pixel to the path traced image. If the
// scene, the camera or the path tracing settings changed since the last
// sample the accumulation restarts.
func (r *Renderer) PathTrace(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.pathTracing {
		return ErrPathTracingInactive
	}
	s := r.scene.Load()
	if s == nil {
		return ErrNoOctree
	}
	if s != r.preparedFor || s.Camera.ChangeId() != r.preparedCam {
		r.logger.Info("view or settings changed; restarting path tracing accumulation")
		if err := r.preparePathTracer(ctx, s); err != nil {
			return err
		}
	}

	start := time.Now()
	if err := r.pathTracer.Render(ctx, r.pathSettings); err != nil {
		return interrupted(err)
	}
	r.updateStats(r.pathTracer.Pool(), r.opts.FrameH, time.Since(start))
	r.stats.SPP = r.pathTracer.SPP()
	r.stats.NoiseMean, r.stats.NoiseVariance = r.pathTracer.NoiseStats()
	return nil
}

// PathTracer returns the active path tracer.
func (r *Renderer) PathTracer() (*pathtrace.Tracer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.pathTracing || r.pathTracer == nil {
		return nil, ErrPathTracingInactive
	}
	return r.pathTracer, nil
}

// preparePathTracer binds the path tracer to the current view reusing the
// primary hits of the last ray marched frame when it matches.
func (r *Renderer) preparePathTracer(ctx context.Context, s *scene.Scene) error {
	if r.pathTracer == nil || r.pathTracer.Width() != r.opts.FrameW || r.pathTracer.Height() != r.opts.FrameH {
		r.pathTracer = pathtrace.New(r.opts.FrameW, r.opts.FrameH, r.opts.Workers)
	}

	s.Camera.SetupProjection(float32(r.opts.FrameW) / float32(r.opts.FrameH))

	var primary *raymarch.Frame
	if f := r.lastFrame; f != nil && f.Width == r.opts.FrameW && f.Height == r.opts.FrameH && r.lastFrameScene == s && r.lastFrameCam == s.Camera.ChangeId() {
		primary = f
	}
	if err := r.pathTracer.Prepare(ctx, s.Camera, s.Octree, primary); err != nil {
		return interrupted(err)
	}
	r.preparedFor = s
	r.preparedCam = s.Camera.ChangeId()
	return nil
}

// Stats returns the statistics of the last rendered frame or sample.
func (r *Renderer) Stats() FrameStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Renderer) updateStats(pool *tracer.Pool, frameH uint32, renderTime time.Duration) {
	tracers := pool.Tracers()
	r.stats = FrameStats{
		Tracers:    make([]TracerStat, len(tracers)),
		RenderTime: renderTime,
	}
	for idx, tr := range tracers {
		stats := tr.Stats()
		r.stats.Tracers[idx] = TracerStat{
			Id:           tr.Id(),
			IsPrimary:    idx == 0,
			BlockH:       stats.BlockH,
			FramePercent: 100.0 * float32(stats.BlockH) / float32(frameH),
			RenderTime:   stats.RenderTime,
		}
	}
}

func interrupted(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return err
}

func sceneName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
