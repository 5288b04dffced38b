package pathtrace

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cjsb/SparseVoxelOctree/asset/mesh"
	"github.com/cjsb/SparseVoxelOctree/octree"
	"github.com/cjsb/SparseVoxelOctree/octree/builder"
	"github.com/cjsb/SparseVoxelOctree/scene"
	"github.com/cjsb/SparseVoxelOctree/tracer/raymarch"
	"github.com/cjsb/SparseVoxelOctree/types"
	"github.com/cjsb/SparseVoxelOctree/voxel"
)

const frameW, frameH = 12, 10

func testScene(t *testing.T) (*octree.Octree, *scene.Camera) {
	m := mesh.New("room")
	white := m.AddMaterial(mesh.Material{Albedo: types.Vec3{0.8, 0.8, 0.8}})
	light := m.AddMaterial(mesh.Material{Albedo: types.Vec3{0.5, 0.5, 0.5}, Emission: types.Vec3{4, 3, 2}})
	m.AddBox(types.Vec3{-2, -1, -2}, types.Vec3{2, -0.8, 2}, white)
	m.AddSphere(types.Vec3{0, 0, 0}, 0.6, 8, 16, white)
	m.AddBox(types.Vec3{0.8, 0, -0.5}, types.Vec3{1.2, 0.4, 0.5}, light)

	res, err := voxel.Run(context.Background(), m, voxel.Options{Depth: 5})
	if err != nil {
		t.Fatal(err)
	}
	o, err := builder.Build(context.Background(), res.Fragments, 5)
	if err != nil {
		t.Fatal(err)
	}

	cam := scene.NewCamera(60)
	cam.SetupProjection(float32(frameW) / frameH)
	cam.LookAt(types.Vec3{0.5, 0.9, 1.6}, types.Vec3{0.5, 0.45, 0.5})
	return o, cam
}

func preparedTracer(t *testing.T) *Tracer {
	o, cam := testScene(t)
	tr := New(frameW, frameH, 3)
	if err := tr.Prepare(context.Background(), cam, o, nil); err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestInvalidSettings(t *testing.T) {
	type spec struct {
		mutate func(*Settings)
	}
	specs := []spec{
		{func(s *Settings) { s.Bounces = 1 }},
		{func(s *Settings) { s.Bounces = 17 }},
		{func(s *Settings) { s.SunRadiance = types.Vec3{21, 0, 0} }},
		{func(s *Settings) { s.SunRadiance = types.Vec3{0, -1, 0} }},
		{func(s *Settings) { s.SunRadiance = types.Vec3{0, 0, float32(math.NaN())} }},
		{func(s *Settings) { s.SkyRadiance = types.Vec3{-1, 0, 0} }},
		{func(s *Settings) { s.SunDirection = types.Vec3{} }},
	}

	tr := preparedTracer(t)
	for idx, s := range specs {
		settings := DefaultSettings()
		s.mutate(&settings)
		if err := tr.Render(context.Background(), settings); !errors.Is(err, ErrInvalidSettings) {
			t.Fatalf("[spec %d] expected ErrInvalidSettings; got %v", idx, err)
		}
		if tr.SPP() != 0 {
			t.Fatalf("[spec %d] expected rejected settings to leave spp at 0; got %d", idx, tr.SPP())
		}
	}

	for _, bounces := range []int{MinBounces, MaxBounces} {
		settings := DefaultSettings()
		settings.Bounces = bounces
		settings.SunRadiance = types.Vec3{MaxSunRadiance, 0, 0}
		if err := settings.Validate(); err != nil {
			t.Fatalf("expected bounces %d and sun at the upper bound to be accepted; got %v", bounces, err)
		}
	}
}

func TestRenderNotPrepared(t *testing.T) {
	tr := New(4, 4, 1)
	if err := tr.Render(context.Background(), DefaultSettings()); !errors.Is(err, ErrNotPrepared) {
		t.Fatalf("expected ErrNotPrepared; got %v", err)
	}
}

func TestConvergenceMatchesSampleAverage(t *testing.T) {
	tr := preparedTracer(t)
	settings := DefaultSettings()

	const samples = 5
	for i := 0; i < samples; i++ {
		if err := tr.Render(context.Background(), settings); err != nil {
			t.Fatal(err)
		}
	}
	if tr.SPP() != samples {
		t.Fatalf("expected %d spp; got %d", samples, tr.SPP())
	}

	color := tr.Display(ChannelColor)
	var lit int
	for y := uint32(0); y < frameH; y++ {
		for x := uint32(0); x < frameW; x++ {
			var sum types.Vec3
			for n := uint32(0); n < samples; n++ {
				sum = sum.Add(tr.Sample(x, y, n, settings))
			}
			exp := sum.Mul(1 / float32(samples))
			got := color[y*frameW+x]
			if !types.ApproxEqual(got, exp, 1e-6) {
				t.Fatalf("pixel (%d, %d): expected average %v; got %v", x, y, exp, got)
			}
			if got != settings.SkyRadiance {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Fatal("expected the scene to cover part of the frame")
	}
}

func TestPauseInvariance(t *testing.T) {
	settings := DefaultSettings()

	straight := preparedTracer(t)
	for i := 0; i < 4; i++ {
		if err := straight.Render(context.Background(), settings); err != nil {
			t.Fatal(err)
		}
	}

	paused := preparedTracer(t)
	for i := 0; i < 8; i++ {
		settings.Paused = i >= 2 && i < 6
		if err := paused.Render(context.Background(), settings); err != nil {
			t.Fatal(err)
		}
	}

	if paused.SPP() != straight.SPP() {
		t.Fatalf("expected paused renders to be ignored; got %d spp vs %d", paused.SPP(), straight.SPP())
	}
	exp, got := straight.Display(ChannelColor), paused.Display(ChannelColor)
	for idx := range exp {
		if exp[idx] != got[idx] {
			t.Fatalf("pixel %d: expected %v; got %v", idx, exp[idx], got[idx])
		}
	}
}

func TestChannels(t *testing.T) {
	o, cam := testScene(t)
	primary, err := raymarch.Render(context.Background(), o, cam, raymarch.DefaultSettings(frameW, frameH))
	if err != nil {
		t.Fatal(err)
	}

	tr := New(frameW, frameH, 2)
	if err = tr.Prepare(context.Background(), cam, o, primary); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err = tr.Render(context.Background(), DefaultSettings()); err != nil {
			t.Fatal(err)
		}
	}

	albedo, normals := tr.Display(ChannelAlbedo), tr.Display(ChannelNormal)
	for idx, hit := range primary.Hits {
		expAlbedo, expNormal := hit.Albedo, hit.Normal
		if !hit.Found {
			expAlbedo, expNormal = types.Vec3{}, types.Vec3{}
		}
		if !types.ApproxEqual(albedo[idx], expAlbedo, 1e-5) {
			t.Fatalf("pixel %d: expected albedo %v; got %v", idx, expAlbedo, albedo[idx])
		}
		if !types.ApproxEqual(normals[idx], expNormal, 1e-5) {
			t.Fatalf("pixel %d: expected normal %v; got %v", idx, expNormal, normals[idx])
		}
	}

	// Displaying must not disturb the accumulated sums.
	before := tr.Display(ChannelColor)
	_ = tr.Display(ChannelNormal)
	after := tr.Display(ChannelColor)
	for idx := range before {
		if before[idx] != after[idx] {
			t.Fatalf("pixel %d changed after display", idx)
		}
	}

	if err = tr.Prepare(context.Background(), cam, o, primary); err != nil || tr.SPP() != 0 {
		t.Fatalf("expected Prepare to reset the accumulation; got spp %d, %v", tr.SPP(), err)
	}

	small, err := raymarch.Render(context.Background(), o, cam, raymarch.DefaultSettings(4, 4))
	if err != nil {
		t.Fatal(err)
	}
	if err = tr.Prepare(context.Background(), cam, o, small); !errors.Is(err, ErrFrameMismatch) {
		t.Fatalf("expected ErrFrameMismatch; got %v", err)
	}
}

func TestEmptySceneAndNoiseStats(t *testing.T) {
	cam := scene.DefaultCamera()
	cam.SetupProjection(float32(frameW) / frameH)

	tr := New(frameW, frameH, 2)
	if err := tr.Prepare(context.Background(), cam, octree.NewEmpty(4), nil); err != nil {
		t.Fatal(err)
	}
	settings := DefaultSettings()
	settings.SkyRadiance = types.Vec3{1, 1, 1}
	for i := 0; i < 2; i++ {
		if err := tr.Render(context.Background(), settings); err != nil {
			t.Fatal(err)
		}
	}

	for idx, c := range tr.Display(ChannelColor) {
		if !types.ApproxEqual(c, settings.SkyRadiance, 1e-6) {
			t.Fatalf("pixel %d: expected sky radiance; got %v", idx, c)
		}
	}

	mean, variance := tr.NoiseStats()
	if math.Abs(mean-1) > 1e-5 || math.Abs(variance) > 1e-9 {
		t.Fatalf("expected constant luminance 1 with zero variance; got mean %f, variance %f", mean, variance)
	}
}

func TestRenderCancellation(t *testing.T) {
	tr := preparedTracer(t)
	if err := tr.Render(context.Background(), DefaultSettings()); err != nil {
		t.Fatal(err)
	}
	before := tr.Display(ChannelColor)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Render(ctx, DefaultSettings()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled; got %v", err)
	}
	if tr.SPP() != 1 {
		t.Fatalf("expected cancelled render to leave spp at 1; got %d", tr.SPP())
	}
	after := tr.Display(ChannelColor)
	for idx := range before {
		if before[idx] != after[idx] {
			t.Fatalf("pixel %d changed by a cancelled render", idx)
		}
	}
}

func TestSave(t *testing.T) {
	tr := preparedTracer(t)
	if err := tr.Render(context.Background(), DefaultSettings()); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	type spec struct {
		file    string
		save    func(string) error
		minSize int64
	}
	specs := []spec{
		{"color.exr", func(p string) error { return tr.Save(p, ChannelColor, false) }, frameW * frameH * 12},
		{"color-half.exr", func(p string) error { return tr.Save(p, ChannelColor, true) }, frameW * frameH * 6},
		{"normal.png", func(p string) error { return tr.SavePNG(p, ChannelNormal, 0) }, 1},
		{"color.png", func(p string) error { return tr.SavePNG(p, ChannelColor, 1.5) }, 1},
	}

	for idx, s := range specs {
		path := filepath.Join(dir, s.file)
		if err := s.save(path); err != nil {
			t.Fatalf("[spec %d] %v", idx, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("[spec %d] %v", idx, err)
		}
		if info.Size() < s.minSize {
			t.Fatalf("[spec %d] expected at least %d bytes; got %d", idx, s.minSize, info.Size())
		}
	}
}

func TestCosineSampleHemisphere(t *testing.T) {
	n := types.Vec3{0, 0, 1}
	for _, u := range [][2]float32{{0, 0}, {0.5, 0.25}, {0.99, 0.7}, {0.3, 0.9}} {
		d := cosineSampleHemisphere(n, u[0], u[1])
		if d.Dot(n) < 0 {
			t.Fatalf("expected sample %v to lie in the hemisphere around %v", d, n)
		}
		if l := d.Len(); math.Abs(float64(l)-1) > 1e-5 {
			t.Fatalf("expected unit direction; got length %f", l)
		}
	}
}
