package reader

import (
	"archive/zip"
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/cjsb/SparseVoxelOctree/asset"
	"github.com/cjsb/SparseVoxelOctree/log"
	"github.com/cjsb/SparseVoxelOctree/octree"
	"github.com/cjsb/SparseVoxelOctree/octree/writer"
)

var logger = log.New("octree reader")

// Read a compiled octree from a local file or http(s) URL.
func ReadOctree(filename string) (*octree.Octree, error) {
	res, err := asset.NewResource(filename, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	return Read(res)
}

// Read a compiled octree from a zip resource and validate it.
func Read(res *asset.Resource) (*octree.Octree, error) {
	logger.Noticef(`loading compiled octree from "%s"`, res.Path())
	start := time.Now()

	// zip.NewReader requires an io.ReaderAt so the archive is buffered in memory.
	data, err := io.ReadAll(res)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var o *octree.Octree
	for _, f := range zr.File {
		if f.Name != writer.DataFile {
			logger.Warningf("unknown file %s in octree zip file; skipping", f.Name)
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		o = &octree.Octree{}
		err = gob.NewDecoder(rc).Decode(o)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("octree reader: failed to load %s: %w", f.Name, err)
		}
	}

	if o == nil {
		return nil, fmt.Errorf("octree reader: %s does not contain %s", res.Path(), writer.DataFile)
	}
	if err = octree.ValidDepth(o.Depth); err != nil {
		return nil, err
	}
	if err = o.Validate(); err != nil {
		return nil, err
	}

	logger.Noticef("loaded octree with %d leaves in %d ms", o.LeafCount(), time.Since(start).Nanoseconds()/1e6)
	return o, nil
}
