package scene

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/cjsb/SparseVoxelOctree/types"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	defaultFOV = 60

	nearPlane float32 = 0.01
	farPlane  float32 = 100

	// Keep pitch away from the poles so the view matrix stays well defined.
	maxPitch = math32.Pi/2 - 1e-3
)

// Stores the ray directions at the four corners of the camera frustum in
// TL, TR, BL, BR order. Per pixel rays are generated by bilinear
// interpolation of the corner rays.
type Frustum [4]types.Vec3

func (fr Frustum) String() string {
	return fmt.Sprintf(
		"Frustum Rays:\nTL : (%3.3f, %3.3f, %3.3f)\nTR : (%3.3f, %3.3f, %3.3f)\nBL : (%3.3f, %3.3f, %3.3f)\nBR : (%3.3f, %3.3f, %3.3f)",
		fr[0][0], fr[0][1], fr[0][2],
		fr[1][0], fr[1][1], fr[1][2],
		fr[2][0], fr[2][1], fr[2][2],
		fr[3][0], fr[3][1], fr[3][2],
	)
}

// A first-person camera defined by a position and yaw/pitch angles (in
// radians). A zero yaw and pitch looks down the -Z axis.
type Camera struct {
	Position types.Vec3
	Yaw      float32
	Pitch    float32

	// Vertical field of view in degrees.
	FOV    float32
	Aspect float32

	ViewMat  mgl32.Mat4
	ProjMat  mgl32.Mat4
	Frustum  Frustum
	changeId uint64
}

// Create a camera with the given vertical FOV in degrees. A non-positive
// FOV selects the default.
func NewCamera(fov float32) *Camera {
	if fov <= 0 {
		fov = defaultFOV
	}
	c := &Camera{
		FOV:     fov,
		Aspect:  1,
		ViewMat: mgl32.Ident4(),
		ProjMat: mgl32.Ident4(),
	}
	c.Update()
	return c
}

// Setup camera projection matrix. It is a no-op if the aspect ratio is
// unchanged.
func (c *Camera) SetupProjection(aspect float32) {
	if aspect == c.Aspect {
		return
	}
	c.Aspect = aspect
	c.Update()
}

// Orient the camera so that it looks from eye towards target.
func (c *Camera) LookAt(eye, target types.Vec3) {
	c.Position = eye
	dir := target.Sub(eye).Normalize()
	if dir.Len() == 0 {
		c.Update()
		return
	}
	c.Pitch = math32.Asin(dir[1])
	c.Yaw = math32.Atan2(dir[0], -dir[2])
	c.Update()
}

// Forward returns the unit view direction.
func (c *Camera) Forward() types.Vec3 {
	cp := math32.Cos(c.Pitch)
	return types.Vec3{
		cp * math32.Sin(c.Yaw),
		math32.Sin(c.Pitch),
		-cp * math32.Cos(c.Yaw),
	}
}

// Update recalculates the view/projection matrices and the frustum rays.
// It must be called after modifying any exported field.
func (c *Camera) Update() {
	c.Pitch = math32.Max(-maxPitch, math32.Min(maxPitch, c.Pitch))
	if c.Aspect <= 0 {
		c.Aspect = 1
	}

	c.ProjMat = mgl32.Perspective(mgl32.DegToRad(c.FOV), c.Aspect, nearPlane, farPlane)
	eye := mgl32.Vec3(c.Position)
	c.ViewMat = mgl32.LookAtV(eye, eye.Add(mgl32.Vec3(c.Forward())), mgl32.Vec3{0, 1, 0})
	c.updateFrustum()
	c.changeId++
}

// ChangeId is bumped every time the camera is updated.
func (c *Camera) ChangeId() uint64 {
	return c.changeId
}

// Ray returns the normalized direction of the ray through the center of
// pixel (x, y) of a w x h frame. Row 0 is the top of the frame.
func (c *Camera) Ray(x, y, w, h uint32) types.Vec3 {
	return c.RayAt((float32(x)+0.5)/float32(w), (float32(y)+0.5)/float32(h))
}

// RayAt returns the normalized direction of the ray through normalized
// frame coordinates (u, v) in [0, 1]^2.
func (c *Camera) RayAt(u, v float32) types.Vec3 {
	top := lerp(c.Frustum[0], c.Frustum[1], u)
	bottom := lerp(c.Frustum[2], c.Frustum[3], u)
	return lerp(top, bottom, v).Normalize()
}

// InvViewProjMat returns the inverse of the combined view/projection matrix.
func (c *Camera) InvViewProjMat() mgl32.Mat4 {
	return c.ProjMat.Mul4(c.ViewMat).Inv()
}

// Generate a ray vector for each corner of the camera frustum by
// multiplying clip space vectors for each corner with the inv proj/view
// matrix, applying perspective and subtracting the camera eye position.
func (c *Camera) updateFrustum() {
	invProjViewMat := c.InvViewProjMat()
	corners := [4]mgl32.Vec4{{-1, 1, -1, 1}, {1, 1, -1, 1}, {-1, -1, -1, 1}, {1, -1, -1, 1}}
	for idx, clip := range corners {
		v := invProjViewMat.Mul4x1(clip)
		c.Frustum[idx] = types.Vec3(v.Mul(1.0 / v[3]).Vec3()).Sub(c.Position)
	}
}

func lerp(a, b types.Vec3, t float32) types.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}
