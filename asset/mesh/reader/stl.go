package reader

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cjsb/SparseVoxelOctree/asset"
	"github.com/cjsb/SparseVoxelOctree/asset/mesh"
	"github.com/cjsb/SparseVoxelOctree/log"
	"github.com/cjsb/SparseVoxelOctree/types"
	"github.com/hschendel/stl"
)

// Reads ascii and binary STL files. STL carries no materials so every
// triangle uses the default material.
type stlReader struct {
	logger log.Logger
}

func newStlReader() *stlReader {
	return &stlReader{
		logger: log.New("stl reader"),
	}
}

func (r *stlReader) Read(res *asset.Resource) (*mesh.Mesh, error) {
	r.logger.Noticef(`parsing mesh from "%s"`, res.Path())
	start := time.Now()

	// The stl decoder sniffs the ascii header and rewinds so it needs a
	// seekable stream.
	data, err := io.ReadAll(res)
	if err != nil {
		return nil, fmt.Errorf("stlReader: %s: %w", res.Path(), err)
	}
	solid, err := stl.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("stlReader: %s: %w", res.Path(), err)
	}

	m := mesh.New(strings.TrimSpace(solid.Name))
	for _, stlTri := range solid.Triangles {
		tri := mesh.Triangle{MaterialIndex: -1}
		for idx, v := range stlTri.Vertices {
			tri.Vertices[idx] = types.Vec3(v)
			tri.Normals[idx] = types.Vec3(stlTri.Normal)
		}
		fixNormals(&tri)
		m.AddTriangle(tri)
	}

	r.logger.Noticef("parsed %d triangles in %d ms", len(m.Triangles), time.Since(start).Nanoseconds()/1e6)
	return m, nil
}
