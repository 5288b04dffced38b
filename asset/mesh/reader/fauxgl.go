package reader

import (
	"fmt"
	"time"

	"github.com/cjsb/SparseVoxelOctree/asset"
	"github.com/cjsb/SparseVoxelOctree/asset/mesh"
	"github.com/cjsb/SparseVoxelOctree/log"
	"github.com/cjsb/SparseVoxelOctree/types"
	"github.com/fogleman/fauxgl"
)

// Reads PLY and 3DS meshes via fauxgl. The fauxgl loaders only accept file
// paths so remote resources are rejected.
type fauxglReader struct {
	logger log.Logger
}

func newFauxglReader() *fauxglReader {
	return &fauxglReader{
		logger: log.New("fauxgl reader"),
	}
}

func (r *fauxglReader) Read(res *asset.Resource) (*mesh.Mesh, error) {
	localPath, err := res.LocalPath()
	if err != nil {
		return nil, err
	}

	r.logger.Noticef(`parsing mesh from "%s"`, localPath)
	start := time.Now()

	var src *fauxgl.Mesh
	switch res.Ext() {
	case ".ply":
		src, err = fauxgl.LoadPLY(localPath)
	case ".3ds":
		src, err = fauxgl.Load3DS(localPath)
	default:
		return nil, fmt.Errorf("fauxglReader: unsupported file format %q", res.Ext())
	}
	if err != nil {
		return nil, fmt.Errorf("fauxglReader: %s: %w", localPath, err)
	}

	m := convertFauxglMesh(src)
	r.logger.Noticef("parsed %d triangles in %d ms", len(m.Triangles), time.Since(start).Nanoseconds()/1e6)
	return m, nil
}

// Convert a fauxgl mesh. Per-vertex colors, when present, are averaged into
// a per-triangle material.
func convertFauxglMesh(src *fauxgl.Mesh) *mesh.Mesh {
	m := mesh.New("")
	colorToMaterial := make(map[types.Vec3]int)
	for _, srcTri := range src.Triangles {
		verts := [3]fauxgl.Vertex{srcTri.V1, srcTri.V2, srcTri.V3}

		tri := mesh.Triangle{MaterialIndex: -1}
		var color types.Vec3
		var colored bool
		for idx, v := range verts {
			tri.Vertices[idx] = types.Vec3{float32(v.Position.X), float32(v.Position.Y), float32(v.Position.Z)}
			tri.Normals[idx] = types.Vec3{float32(v.Normal.X), float32(v.Normal.Y), float32(v.Normal.Z)}
			if v.Color.A > 0 {
				colored = true
				color = color.Add(types.Vec3{float32(v.Color.R), float32(v.Color.G), float32(v.Color.B)}.Mul(1.0 / 3.0))
			}
		}

		if colored {
			matIndex, exists := colorToMaterial[color]
			if !exists {
				matIndex = m.AddMaterial(mesh.Material{Name: fmt.Sprintf("color-%d", len(m.Materials)), Albedo: color})
				colorToMaterial[color] = matIndex
			}
			tri.MaterialIndex = matIndex
		}

		fixNormals(&tri)
		m.AddTriangle(tri)
	}
	return m
}
