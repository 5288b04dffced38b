package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	meshreader "github.com/cjsb/SparseVoxelOctree/asset/mesh/reader"
	"github.com/cjsb/SparseVoxelOctree/octree"
	"github.com/cjsb/SparseVoxelOctree/octree/reader"
	"github.com/cjsb/SparseVoxelOctree/octree/writer"
	"github.com/cjsb/SparseVoxelOctree/renderer"
	"github.com/urfave/cli"
)

// Voxelize meshes and write their octrees in the compiled format.
func CompileOctree(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}

	if ctx.NArg() == 0 {
		return errors.New("missing mesh file arguments")
	}

	level := ctx.Int("level")
	if err := octree.ValidDepth(level); err != nil {
		return err
	}
	for idx := 0; idx < ctx.NArg(); idx++ {
		meshFile := ctx.Args().Get(idx)
		ext := strings.ToLower(filepath.Ext(meshFile))
		if !meshreader.Supported(ext) {
			logger.Warningf("skipping unsupported file %s", meshFile)
			continue
		}

		logger.Noticef("voxelizing %s at level %d", meshFile, level)
		m, err := meshreader.ReadMesh(meshFile)
		if err != nil {
			return err
		}
		sc, err := renderer.BuildScene(context.Background(), m, level, ctx.Int("workers"), ctx.Bool("solid"))
		if err != nil {
			return err
		}

		// Display compiled octree info
		logger.Noticef("octree information:\n%s", sc.Octree.Stats())

		outFile := strings.TrimSuffix(meshFile, filepath.Ext(meshFile)) + renderer.OctreeExt
		if err = writer.WriteOctree(sc.Octree, outFile); err != nil {
			return err
		}
	}

	return nil
}

// Display compiled octree info.
func ShowOctreeInfo(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}

	if ctx.NArg() != 1 {
		return errors.New("missing compiled octree file")
	}

	octreeFile := ctx.Args().First()
	if !strings.HasSuffix(octreeFile, renderer.OctreeExt) {
		return errors.New("only compiled octree files with a .svo extension are supported")
	}

	o, err := reader.ReadOctree(octreeFile)
	if err != nil {
		return err
	}

	logger.Noticef("octree information (depth %d):\n%s", o.Depth, o.Stats())
	return nil
}
