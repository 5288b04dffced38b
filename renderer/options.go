package renderer

import "github.com/cjsb/SparseVoxelOctree/tracer"

type Options struct {
	// Frame dims.
	FrameW uint32
	FrameH uint32

	// Number of render workers; 0 selects runtime.NumCPU().
	Workers int

	// Row scheduling across workers; nil selects the perfect scheduler.
	Scheduler tracer.BlockScheduler

	// Fill closed meshes when voxelizing instead of only their surface.
	SolidVoxelization bool
}
