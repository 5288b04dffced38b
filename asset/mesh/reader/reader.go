package reader

import (
	"fmt"

	"github.com/cjsb/SparseVoxelOctree/asset"
	"github.com/cjsb/SparseVoxelOctree/asset/mesh"
)

// The Reader interface is implemented by all mesh readers.
type Reader interface {
	// Read mesh definition from a resource.
	Read(*asset.Resource) (*mesh.Mesh, error)
}

// Returns true if a reader is available for files with the given extension.
func Supported(ext string) bool {
	_, err := readerFor(ext)
	return err == nil
}

// Read mesh from a local file or http(s) URL. The reader is selected by the
// file extension.
func ReadMesh(filename string) (*mesh.Mesh, error) {
	res, err := asset.NewResource(filename, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	reader, err := readerFor(res.Ext())
	if err != nil {
		return nil, err
	}
	return reader.Read(res)
}

func readerFor(ext string) (Reader, error) {
	switch ext {
	case ".obj":
		return newWavefrontReader(), nil
	case ".stl":
		return newStlReader(), nil
	case ".ply", ".3ds":
		return newFauxglReader(), nil
	}
	return nil, fmt.Errorf("readMesh: unsupported file format %q", ext)
}

// Populate missing or degenerate vertex normals with the face normal.
func fixNormals(tri *mesh.Triangle) {
	faceNormal := tri.Cross().Normalize()
	for idx := range tri.Normals {
		n := tri.Normals[idx].Normalize()
		if n.Len() == 0 {
			n = faceNormal
		}
		tri.Normals[idx] = n
	}
}
