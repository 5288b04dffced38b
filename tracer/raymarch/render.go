package raymarch

import (
	"context"
	"fmt"
	"image"
	"runtime"

	"github.com/chewxy/math32"
	"github.com/cjsb/SparseVoxelOctree/octree"
	"github.com/cjsb/SparseVoxelOctree/scene"
	"github.com/cjsb/SparseVoxelOctree/tracer"
	"github.com/cjsb/SparseVoxelOctree/types"
	"github.com/nfnt/resize"
)

const (
	ambient = 0.2

	// Iteration count mapped to full intensity in the iterations view.
	iterationScale = 256
)

// A Frame holds the linear RGB output of a ray marching pass together with
// the primary hit of every pixel.
type Frame struct {
	Width  uint32
	Height uint32
	View   View

	// Camera position and per pixel ray directions used for the pass.
	Origin types.Vec3
	Dirs   []types.Vec3

	Pixels []types.Vec3
	Hits   []Hit
}

// Render ray marches a frame using a pool of runtime.NumCPU() workers.
func Render(ctx context.Context, o *octree.Octree, cam *scene.Camera, settings Settings) (*Frame, error) {
	return RenderWithPool(ctx, tracer.NewPool(runtime.NumCPU(), nil), o, cam, settings)
}

// RenderWithPool ray marches a frame distributing rows among the workers of
// pool. Each pixel ray is traced independently so the output is the same
// for any row assignment.
func RenderWithPool(ctx context.Context, pool *tracer.Pool, o *octree.Octree, cam *scene.Camera, settings Settings) (*Frame, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("raymarch: nil octree")
	}

	w, h := settings.Width, settings.Height
	f := &Frame{
		Width:  w,
		Height: h,
		View:   settings.View,
		Origin: cam.Position,
		Dirs:   make([]types.Vec3, w*h),
		Pixels: make([]types.Vec3, w*h),
		Hits:   make([]Hit, w*h),
	}

	err := pool.Run(ctx, h, func(ctx context.Context, y0, y1 uint32) error {
		if !settings.Beam {
			for y := y0; y < y1; y++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				f.traceRow(o, cam, &settings, y, 0, w, 0)
			}
			return nil
		}

		block := settings.BeamBlock
		for by := y0 / block * block; by < y1; by += block {
			if err := ctx.Err(); err != nil {
				return err
			}
			for bx := uint32(0); bx < w; bx += block {
				bx1, by1 := min(bx+block, w), min(by+block, h)
				b := newBeam(cam.Position, [4]types.Vec3{
					cam.RayAt(float32(bx)/float32(w), float32(by)/float32(h)),
					cam.RayAt(float32(bx1)/float32(w), float32(by)/float32(h)),
					cam.RayAt(float32(bx)/float32(w), float32(by1)/float32(h)),
					cam.RayAt(float32(bx1)/float32(w), float32(by1)/float32(h)),
				}, settings.BeamOriginSize, settings.BeamDirSize)
				tStart := rayStart(b.start(o))

				for y := max(by, y0); y < min(by1, y1); y++ {
					f.traceRow(o, cam, &settings, y, bx, bx1, tStart)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Frame) traceRow(o *octree.Octree, cam *scene.Camera, settings *Settings, y, x0, x1 uint32, tStart float32) {
	maxIterations := settings.maxIterations()
	lightDir := settings.LightDir.Normalize()
	for x := x0; x < x1; x++ {
		idx := y*f.Width + x
		dir := cam.Ray(x, y, f.Width, f.Height)
		hit := Trace(o, NewRay(cam.Position, dir), tStart, maxIterations)

		f.Dirs[idx] = dir
		f.Hits[idx] = hit
		f.Pixels[idx] = shade(&hit, settings, lightDir)
	}
}

func shade(hit *Hit, settings *Settings, lightDir types.Vec3) types.Vec3 {
	if settings.View == ViewIterations {
		v := math32.Min(1, float32(hit.Iterations)/iterationScale)
		return types.Vec3{v, v * v, 1 - v}
	}
	if !hit.Found {
		return settings.Background
	}

	switch settings.View {
	case ViewNormal:
		return hit.Normal.Mul(0.5).Add(types.Splat3(0.5))
	default:
		diffuse := ambient + (1-ambient)*math32.Max(0, hit.Normal.Dot(lightDir))
		return hit.Albedo.Mul(diffuse).Add(hit.Emission)
	}
}

// Image converts the frame into an 8-bit image. Diffuse frames are tone
// mapped using the given exposure; other views are clamped.
func (f *Frame) Image(exposure float32) *image.RGBA {
	if f.View != ViewDiffuse {
		exposure = 0
	}
	return tracer.ToneMap(f.Pixels, f.Width, f.Height, exposure)
}

// Downsample converts the frame into an image scaled down by factor using
// bilinear filtering. It is used to resolve supersampled frames.
func (f *Frame) Downsample(factor uint32, exposure float32) image.Image {
	img := f.Image(exposure)
	if factor <= 1 {
		return img
	}
	return resize.Resize(uint(f.Width/factor), uint(f.Height/factor), img, resize.Bilinear)
}
