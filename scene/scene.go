package scene

import (
	"github.com/cjsb/SparseVoxelOctree/asset/mesh"
	"github.com/cjsb/SparseVoxelOctree/octree"
	"github.com/cjsb/SparseVoxelOctree/types"
)

// A Scene couples a voxelized octree with the camera used to view it. All
// positions are expressed in octree space.
type Scene struct {
	Name   string
	Octree *octree.Octree
	Camera *Camera
}

// Create a scene for an octree. If hint is not nil the camera is placed
// according to it after mapping it into octree space; otherwise the camera
// looks at the center of the unit cube from the +Z side.
func New(name string, oct *octree.Octree, hint *mesh.Camera) *Scene {
	s := &Scene{
		Name:   name,
		Octree: oct,
		Camera: DefaultCamera(),
	}
	if hint != nil {
		s.ApplyCameraHint(hint)
	}
	return s
}

// DefaultCamera returns a camera that frames the whole unit cube.
func DefaultCamera() *Camera {
	c := NewCamera(defaultFOV)
	c.LookAt(types.Vec3{0.5, 0.5, 2.2}, types.Vec3{0.5, 0.5, 0.5})
	return c
}

// ApplyCameraHint positions the camera using mesh space hints.
func (s *Scene) ApplyCameraHint(hint *mesh.Camera) {
	if hint.FOV > 0 {
		s.Camera.FOV = hint.FOV
	}
	xform := s.Octree.Transform
	eye, look := xform.Apply(hint.Eye), xform.Apply(hint.Look)
	if eye == look {
		s.Camera.Position = eye
		s.Camera.Update()
		return
	}
	s.Camera.LookAt(eye, look)
}
