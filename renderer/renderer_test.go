package renderer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cjsb/SparseVoxelOctree/octree"
	"github.com/cjsb/SparseVoxelOctree/octree/writer"
	"github.com/cjsb/SparseVoxelOctree/tracer"
	"github.com/cjsb/SparseVoxelOctree/tracer/pathtrace"
	"github.com/cjsb/SparseVoxelOctree/tracer/raymarch"
	"github.com/cjsb/SparseVoxelOctree/types"
	"github.com/hschendel/stl"
)

const cubeObj = `
camera_fov 50
camera_eye 0.5 0.5 3
camera_look 0.5 0.5 0.5
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
v 0 0 1
v 1 0 1
v 1 1 1
v 0 1 1
f 1 4 3 2
f 5 6 7 8
f 1 2 6 5
f 4 8 7 3
f 1 5 8 4
f 2 3 7 6
`

func writeFile(t *testing.T, name, contents string) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestRenderer() *Renderer {
	return New(Options{FrameW: 16, FrameH: 12, Workers: 2, Scheduler: tracer.NaiveScheduler()})
}

func TestLoadScene(t *testing.T) {
	r := newTestRenderer()
	if _, err := r.RenderFrame(context.Background(), raymarch.DefaultSettings(16, 12)); !errors.Is(err, ErrNoOctree) {
		t.Fatalf("expected ErrNoOctree; got %v", err)
	}

	path := writeFile(t, "cube.obj", cubeObj)
	if err := r.LoadScene(context.Background(), path, 4); err != nil {
		t.Fatal(err)
	}
	if !r.HasOctree() {
		t.Fatal("expected octree to be loaded")
	}
	loaded := r.Scene()
	if loaded.Name != "cube" || loaded.Octree.Depth != 4 {
		t.Fatalf("expected scene 'cube' at depth 4; got %q at depth %d", loaded.Name, loaded.Octree.Depth)
	}
	if loaded.Camera.FOV != 50 {
		t.Fatalf("expected camera hint FOV to be applied; got %f", loaded.Camera.FOV)
	}

	// Configuration and input errors keep the previous scene.
	for _, level := range []int{1, 13} {
		if err := r.LoadScene(context.Background(), path, level); !errors.Is(err, octree.ErrInvalidDepth) {
			t.Fatalf("expected level %d to be rejected; got %v", level, err)
		}
	}
	if err := r.LoadScene(context.Background(), filepath.Join(t.TempDir(), "missing.obj"), 4); err == nil {
		t.Fatal("expected missing file to fail")
	}
	if err := r.LoadScene(context.Background(), writeFile(t, "scene.xyz", ""), 4); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat; got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.LoadScene(ctx, path, 5); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted; got %v", err)
	}
	if r.Scene() != loaded {
		t.Fatal("expected failed loads to keep the previous scene")
	}

	f, err := r.RenderFrame(context.Background(), raymarch.DefaultSettings(16, 12))
	if err != nil {
		t.Fatal(err)
	}
	center := f.Hits[6*16+8]
	if !center.Found {
		t.Fatal("expected the center pixel to hit the cube")
	}

	stats := r.Stats()
	if len(stats.Tracers) != 2 {
		t.Fatalf("expected stats for 2 workers; got %d", len(stats.Tracers))
	}
	var percent float32
	for _, ts := range stats.Tracers {
		percent += ts.FramePercent
	}
	if percent < 99.9 || percent > 100.1 {
		t.Fatalf("expected worker blocks to cover the frame; got %f%%", percent)
	}
}

func TestLoadCompiledOctree(t *testing.T) {
	r := newTestRenderer()
	if err := r.LoadScene(context.Background(), writeFile(t, "cube.obj", cubeObj), 3); err != nil {
		t.Fatal(err)
	}

	svo := filepath.Join(t.TempDir(), "cube.svo")
	if err := writer.WriteOctree(r.Scene().Octree, svo); err != nil {
		t.Fatal(err)
	}

	if err := r.LoadScene(context.Background(), svo, 5); !errors.Is(err, ErrLevelMismatch) {
		t.Fatalf("expected ErrLevelMismatch; got %v", err)
	}
	for _, level := range []int{0, 3} {
		if err := r.LoadScene(context.Background(), svo, level); err != nil {
			t.Fatalf("[level %d] %v", level, err)
		}
		if r.Scene().Octree.LeafCount() == 0 {
			t.Fatalf("[level %d] expected compiled octree leaves", level)
		}
	}
}

func TestEmptyScene(t *testing.T) {
	r := newTestRenderer()
	if err := r.LoadScene(context.Background(), writeFile(t, "empty.obj", "# nothing here\n"), 6); err != nil {
		t.Fatal(err)
	}
	if r.HasOctree() {
		t.Fatal("expected empty scene to report no octree")
	}

	settings := raymarch.DefaultSettings(16, 12)
	settings.Background = types.Vec3{0.25, 0.5, 0.75}
	f, err := r.RenderFrame(context.Background(), settings)
	if err != nil {
		t.Fatal(err)
	}
	for idx, px := range f.Pixels {
		if px != settings.Background {
			t.Fatalf("pixel %d: expected background; got %v", idx, px)
		}
	}
}

func TestPathTracing(t *testing.T) {
	r := newTestRenderer()
	if err := r.PathTrace(context.Background()); !errors.Is(err, ErrPathTracingInactive) {
		t.Fatalf("expected ErrPathTracingInactive; got %v", err)
	}
	if err := r.StartPathTracing(context.Background(), pathtrace.DefaultSettings()); !errors.Is(err, ErrNoOctree) {
		t.Fatalf("expected ErrNoOctree; got %v", err)
	}

	if err := r.LoadScene(context.Background(), writeFile(t, "cube.obj", cubeObj), 4); err != nil {
		t.Fatal(err)
	}
	if _, err := r.RenderFrame(context.Background(), raymarch.DefaultSettings(16, 12)); err != nil {
		t.Fatal(err)
	}

	invalid := pathtrace.DefaultSettings()
	invalid.Bounces = 20
	if err := r.StartPathTracing(context.Background(), invalid); !errors.Is(err, pathtrace.ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings; got %v", err)
	}

	if err := r.StartPathTracing(context.Background(), pathtrace.DefaultSettings()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := r.PathTrace(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if spp := r.Stats().SPP; spp != 2 {
		t.Fatalf("expected 2 spp; got %d", spp)
	}

	// Pausing keeps the accumulated samples.
	paused := pathtrace.DefaultSettings()
	paused.Paused = true
	if err := r.SetPathTraceSettings(paused); err != nil {
		t.Fatal(err)
	}
	if err := r.PathTrace(context.Background()); err != nil {
		t.Fatal(err)
	}
	if spp := r.Stats().SPP; spp != 2 {
		t.Fatalf("expected paused sample to be skipped; got %d spp", spp)
	}
	if err := r.SetPathTraceSettings(pathtrace.DefaultSettings()); err != nil {
		t.Fatal(err)
	}

	// Moving the camera restarts the accumulation.
	cam := r.Scene().Camera
	cam.Position = cam.Position.Add(types.Vec3{0, 0, 0.1})
	cam.Update()
	if err := r.PathTrace(context.Background()); err != nil {
		t.Fatal(err)
	}
	if spp := r.Stats().SPP; spp != 1 {
		t.Fatalf("expected camera change to restart accumulation; got %d spp", spp)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.PathTrace(ctx); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted; got %v", err)
	}

	pt, err := r.PathTracer()
	if err != nil || pt.SPP() != 1 {
		t.Fatalf("expected active path tracer with 1 spp; got %v", err)
	}

	r.StopPathTracing()
	if _, err = r.PathTracer(); !errors.Is(err, ErrPathTracingInactive) {
		t.Fatalf("expected ErrPathTracingInactive; got %v", err)
	}
}

func TestLoadStlScene(t *testing.T) {
	// A unit square split into two triangles facing +Z.
	quad := []stl.Triangle{
		{Normal: stl.Vec3{0, 0, 1}, Vertices: [3]stl.Vec3{{0, 0, 0.5}, {1, 0, 0.5}, {1, 1, 0.5}}},
		{Normal: stl.Vec3{0, 0, 1}, Vertices: [3]stl.Vec3{{0, 0, 0.5}, {1, 1, 0.5}, {0, 1, 0.5}}},
	}

	type spec struct {
		file  string
		ascii bool
	}
	specs := []spec{
		{"quad_binary.stl", false},
		{"quad_ascii.STL", true},
	}

	dir := t.TempDir()
	for specIndex, s := range specs {
		path := filepath.Join(dir, s.file)
		solid := &stl.Solid{Name: "quad", IsAscii: s.ascii, Triangles: quad}
		if err := solid.WriteFile(path); err != nil {
			t.Fatal(err)
		}

		r := newTestRenderer()
		if err := r.LoadScene(context.Background(), path, 4); err != nil {
			t.Fatalf("[spec %d] %v", specIndex, err)
		}
		if !r.HasOctree() {
			t.Fatalf("[spec %d] expected a non-empty octree", specIndex)
		}
		if depth := r.Scene().Octree.Depth; depth != 4 {
			t.Fatalf("[spec %d] expected octree depth 4; got %d", specIndex, depth)
		}
		if _, err := r.RenderFrame(context.Background(), raymarch.DefaultSettings(16, 12)); err != nil {
			t.Fatalf("[spec %d] %v", specIndex, err)
		}
	}
}

func TestPathTraceSettingsChange(t *testing.T) {
	r := newTestRenderer()
	if err := r.LoadScene(context.Background(), writeFile(t, "cube.obj", cubeObj), 4); err != nil {
		t.Fatal(err)
	}
	if err := r.StartPathTracing(context.Background(), pathtrace.DefaultSettings()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := r.PathTrace(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	fewerBounces := pathtrace.DefaultSettings()
	fewerBounces.Bounces = 2
	redSun := fewerBounces
	redSun.SunRadiance = types.Vec3{20, 0, 0}
	pausedRedSun := redSun
	pausedRedSun.Paused = true

	type spec struct {
		settings pathtrace.Settings
		samples  int
		expSPP   uint32
	}
	specs := []spec{
		// Unchanged settings keep accumulating.
		{pathtrace.DefaultSettings(), 1, 4},
		{fewerBounces, 1, 1},
		{redSun, 2, 2},
		// Pausing is not a settings change.
		{pausedRedSun, 1, 2},
		{redSun, 1, 3},
		{pathtrace.DefaultSettings(), 1, 1},
	}

	for specIndex, s := range specs {
		if err := r.SetPathTraceSettings(s.settings); err != nil {
			t.Fatalf("[spec %d] %v", specIndex, err)
		}
		for i := 0; i < s.samples; i++ {
			if err := r.PathTrace(context.Background()); err != nil {
				t.Fatalf("[spec %d] %v", specIndex, err)
			}
		}
		if spp := r.Stats().SPP; spp != s.expSPP {
			t.Fatalf("[spec %d] expected %d spp; got %d", specIndex, s.expSPP, spp)
		}
	}
}
