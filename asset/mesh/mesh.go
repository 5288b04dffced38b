package mesh

import (
	"math"

	"github.com/cjsb/SparseVoxelOctree/types"
)

// The albedo assigned to surfaces that do not reference a material.
var DefaultAlbedo = types.Vec3{0.7, 0.7, 0.7}

// A diffuse-emissive surface material.
type Material struct {
	Name     string
	Albedo   types.Vec3
	Emission types.Vec3
}

// A triangle primitive. Normals are per-vertex; readers generate face
// normals when the source format does not provide them.
type Triangle struct {
	Vertices      [3]types.Vec3
	Normals       [3]types.Vec3
	MaterialIndex int
}

// Get the triangle AABB.
func (tri *Triangle) BBox() [2]types.Vec3 {
	return [2]types.Vec3{
		types.MinVec3(tri.Vertices[0], types.MinVec3(tri.Vertices[1], tri.Vertices[2])),
		types.MaxVec3(tri.Vertices[0], types.MaxVec3(tri.Vertices[1], tri.Vertices[2])),
	}
}

// Get the unnormalized face normal; its length equals twice the triangle area.
func (tri *Triangle) Cross() types.Vec3 {
	return tri.Vertices[1].Sub(tri.Vertices[0]).Cross(tri.Vertices[2].Sub(tri.Vertices[0]))
}

// Returns true if the triangle has (numerically) zero area.
func (tri *Triangle) Degenerate() bool {
	return tri.Cross().Len() < 1e-12
}

// Camera settings embedded in some mesh formats.
type Camera struct {
	FOV  float32
	Eye  types.Vec3
	Look types.Vec3
}

// A mesh is a flat triangle soup with a material table.
type Mesh struct {
	Name      string
	Triangles []Triangle
	Materials []Material

	// Optional camera hint. Nil if the source did not define one.
	Camera *Camera

	bbox            [2]types.Vec3
	bboxNeedsUpdate bool
}

// Create a new empty mesh.
func New(name string) *Mesh {
	return &Mesh{
		Name:            name,
		Triangles:       make([]Triangle, 0),
		Materials:       make([]Material, 0),
		bboxNeedsUpdate: true,
	}
}

// Append a triangle and mark the bbox as dirty.
func (m *Mesh) AddTriangle(tri Triangle) {
	m.Triangles = append(m.Triangles, tri)
	m.bboxNeedsUpdate = true
}

// Append a material and return its index.
func (m *Mesh) AddMaterial(mat Material) int {
	m.Materials = append(m.Materials, mat)
	return len(m.Materials) - 1
}

// Lookup the material for a triangle. Out-of-range indices resolve to the
// default material.
func (m *Mesh) Material(tri *Triangle) Material {
	if tri.MaterialIndex < 0 || tri.MaterialIndex >= len(m.Materials) {
		return Material{Name: "default", Albedo: DefaultAlbedo}
	}
	return m.Materials[tri.MaterialIndex]
}

// Get mesh bounding box. An empty mesh reports an inverted box.
func (m *Mesh) BBox() [2]types.Vec3 {
	if m.bboxNeedsUpdate {
		m.bbox = [2]types.Vec3{
			{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
			{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
		}

		for idx := range m.Triangles {
			triBBox := m.Triangles[idx].BBox()
			m.bbox[0] = types.MinVec3(m.bbox[0], triBBox[0])
			m.bbox[1] = types.MaxVec3(m.bbox[1], triBBox[1])
		}

		m.bboxNeedsUpdate = false
	}

	return m.bbox
}
