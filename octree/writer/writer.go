package writer

import (
	"archive/zip"
	"encoding/gob"
	"os"
	"time"

	"github.com/cjsb/SparseVoxelOctree/log"
	"github.com/cjsb/SparseVoxelOctree/octree"
)

// DataFile is the name of the gob-encoded octree entry inside the zip archive.
const DataFile = "octree.bin"

var logger = log.New("octree writer")

// Write a compiled octree to a zip archive.
func WriteOctree(o *octree.Octree, filename string) error {
	logger.Noticef("writing compressed octree to %s", filename)
	start := time.Now()

	zipFile, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer zipFile.Close()

	zw := zip.NewWriter(zipFile)
	cw, err := zw.Create(DataFile)
	if err != nil {
		return err
	}
	if err = gob.NewEncoder(cw).Encode(o); err != nil {
		return err
	}
	if err = zw.Close(); err != nil {
		return err
	}

	logger.Noticef("compressed octree in %d ms", time.Since(start).Nanoseconds()/1e6)
	return nil
}
