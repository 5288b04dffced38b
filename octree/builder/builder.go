package builder

import (
	"context"
	"fmt"
	"math/bits"
	"runtime"
	"time"

	"github.com/cjsb/SparseVoxelOctree/log"
	"github.com/cjsb/SparseVoxelOctree/octree"
	"github.com/cjsb/SparseVoxelOctree/types"
	"github.com/cjsb/SparseVoxelOctree/voxel"
)

// ErrKeyOutOfRange is returned when a fragment key does not fit the requested depth.
var ErrKeyOutOfRange = fmt.Errorf("octree builder: fragment key out of range")

type stats struct {
	fragments  int
	leaves     int
	sortTime   time.Duration
	dedupTime  time.Duration
	levelsTime time.Duration
}

type builder struct {
	logger  log.Logger
	depth   int
	workers int
	stats   stats
}

// Build an octree from a fragment list using runtime.NumCPU() workers.
func Build(ctx context.Context, fragments []voxel.Fragment, depth int) (*octree.Octree, error) {
	return BuildWithWorkers(ctx, fragments, depth, runtime.NumCPU())
}

// Build an octree from a fragment list.
//
// Fragments are sorted by key and fragments sharing a key are merged into a
// single leaf: albedo and emission are averaged and the normal is the
// normalized sum of the contributing normals. The tree is then assembled
// level by level: the distinct ancestor keys of each level are derived
// bottom-up from the sorted leaf keys, and top-down each level computes its
// child masks from the key segments of the next level and its first-child
// pointers with an exclusive prefix sum over the mask popcounts. Each level
// completes before the next one starts.
//
// The input slice is reordered. An empty fragment list yields a root-only
// octree.
func BuildWithWorkers(ctx context.Context, fragments []voxel.Fragment, depth int, workers int) (*octree.Octree, error) {
	if err := octree.ValidDepth(depth); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 1
	}

	b := &builder{
		logger:  log.New("octree builder"),
		depth:   depth,
		workers: workers,
		stats:   stats{fragments: len(fragments)},
	}

	if len(fragments) == 0 {
		b.logger.Warning("no fragments; building an empty scene")
		return octree.NewEmpty(depth), nil
	}

	limit := octree.Key(1) << (3 * uint(depth))
	for idx := range fragments {
		if fragments[idx].Key >= limit {
			return nil, fmt.Errorf("%w: key %d at depth %d", ErrKeyOutOfRange, fragments[idx].Key, depth)
		}
	}

	start := time.Now()
	o, err := b.build(ctx, fragments)
	if err != nil {
		return nil, err
	}

	b.logger.Debugf(
		"octree build time: %d ms (sort: %d ms, dedup: %d ms, levels: %d ms), fragments: %d, leaves: %d, nodes: %d",
		time.Since(start).Nanoseconds()/1e6,
		b.stats.sortTime.Nanoseconds()/1e6, b.stats.dedupTime.Nanoseconds()/1e6, b.stats.levelsTime.Nanoseconds()/1e6,
		b.stats.fragments, b.stats.leaves, o.NodeCount(),
	)
	return o, nil
}

func (b *builder) build(ctx context.Context, fragments []voxel.Fragment) (*octree.Octree, error) {
	start := time.Now()
	err := parallelSortStable(ctx, fragments, b.workers, func(a, b voxel.Fragment) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
	if err != nil {
		return nil, err
	}
	b.stats.sortTime = time.Since(start)

	start = time.Now()
	o := &octree.Octree{Depth: b.depth, Transform: octree.Transform{Scale: 1}}
	leafKeys, err := b.dedup(ctx, fragments, o)
	if err != nil {
		return nil, err
	}
	b.stats.leaves = len(leafKeys)
	b.stats.dedupTime = time.Since(start)

	start = time.Now()
	if err = b.assemble(ctx, leafKeys, o); err != nil {
		return nil, err
	}
	b.stats.levelsTime = time.Since(start)
	return o, nil
}

// dedup merges runs of fragments with equal keys into the leaf attribute
// arrays of o and returns the sorted distinct leaf keys.
func (b *builder) dedup(ctx context.Context, fragments []voxel.Fragment, o *octree.Octree) ([]octree.Key, error) {
	starts, err := segmentStarts(ctx, len(fragments), b.workers, func(i int) octree.Key { return fragments[i].Key })
	if err != nil {
		return nil, err
	}

	leaves := len(starts)
	keys := make([]octree.Key, leaves)
	o.Normals = make([]types.Vec3, leaves)
	o.Albedo = make([]types.Vec3, leaves)
	o.Emission = make([]types.Vec3, leaves)

	err = parallelFor(ctx, leaves, b.workers, func(lo, hi int) {
		for leaf := lo; leaf < hi; leaf++ {
			first := int(starts[leaf])
			last := len(fragments)
			if leaf+1 < leaves {
				last = int(starts[leaf+1])
			}
			keys[leaf] = fragments[first].Key
			o.Normals[leaf], o.Albedo[leaf], o.Emission[leaf] = mergeFragments(fragments[first:last])
		}
	})
	return keys, err
}

// mergeFragments resolves a cell collision by averaging albedo and emission
// and renormalizing the summed normals. If the normals cancel out the first
// fragment's normal is kept.
func mergeFragments(run []voxel.Fragment) (normal, albedo, emission types.Vec3) {
	if len(run) == 1 {
		return run[0].Normal, run[0].Albedo, run[0].Emission
	}

	var normalSum types.Vec3
	for _, f := range run {
		normalSum = normalSum.Add(f.Normal)
		albedo = albedo.Add(f.Albedo)
		emission = emission.Add(f.Emission)
	}

	scale := 1 / float32(len(run))
	normal = normalSum.Normalize()
	if normal.Len() == 0 {
		normal = run[0].Normal
	}
	return normal, albedo.Mul(scale), emission.Mul(scale)
}

// assemble builds the node arrays of o from the sorted distinct leaf keys.
func (b *builder) assemble(ctx context.Context, leafKeys []octree.Key, o *octree.Octree) error {
	// Bottom-up: levelKeys[l] holds the distinct level l ancestors and
	// childStarts[l][p] the index of the first level l+1 node under node p.
	levelKeys := make([][]octree.Key, b.depth+1)
	childStarts := make([][]uint32, b.depth)
	levelKeys[b.depth] = leafKeys
	for level := b.depth - 1; level >= 0; level-- {
		children := levelKeys[level+1]
		starts, err := segmentStarts(ctx, len(children), b.workers, func(i int) octree.Key { return children[i] >> 3 })
		if err != nil {
			return err
		}

		parents := make([]octree.Key, len(starts))
		err = parallelFor(ctx, len(starts), b.workers, func(lo, hi int) {
			for p := lo; p < hi; p++ {
				parents[p] = children[starts[p]] >> 3
			}
		})
		if err != nil {
			return err
		}
		levelKeys[level] = parents
		childStarts[level] = starts
	}

	o.LevelOffsets = make([]uint32, b.depth+2)
	for level := 0; level <= b.depth; level++ {
		o.LevelOffsets[level+1] = o.LevelOffsets[level] + uint32(len(levelKeys[level]))
	}
	nodeCount := int(o.LevelOffsets[b.depth+1])
	o.Masks = make([]uint8, nodeCount)
	o.Pointers = make([]uint32, nodeCount)

	// Top-down: masks from the child key segments, then first-child
	// pointers from the prefix sum of the mask popcounts.
	for level := 0; level < b.depth; level++ {
		base := int(o.LevelOffsets[level])
		children := levelKeys[level+1]
		starts := childStarts[level]
		nodes := len(starts)

		popCounts := make([]uint32, nodes)
		err := parallelFor(ctx, nodes, b.workers, func(lo, hi int) {
			for p := lo; p < hi; p++ {
				last := len(children)
				if p+1 < nodes {
					last = int(starts[p+1])
				}
				var mask uint8
				for c := int(starts[p]); c < last; c++ {
					mask |= 1 << children[c].Octant()
				}
				o.Masks[base+p] = mask
				popCounts[p] = uint32(bits.OnesCount8(mask))
			}
		})
		if err != nil {
			return err
		}

		firstChild := make([]uint32, nodes)
		total, err := exclusiveScan(ctx, popCounts, firstChild, b.workers)
		if err != nil {
			return err
		}
		if int(total) != len(children) {
			return fmt.Errorf("%w: level %d masks reference %d children; found %d", octree.ErrCorrupted, level, total, len(children))
		}

		childBase := o.LevelOffsets[level+1]
		err = parallelFor(ctx, nodes, b.workers, func(lo, hi int) {
			for p := lo; p < hi; p++ {
				o.Pointers[base+p] = childBase + firstChild[p]
			}
		})
		if err != nil {
			return err
		}
	}

	leafBase := int(o.LevelOffsets[b.depth])
	return parallelFor(ctx, len(leafKeys), b.workers, func(lo, hi int) {
		for leaf := lo; leaf < hi; leaf++ {
			o.Pointers[leafBase+leaf] = octree.LeafFlag | uint32(leaf)
		}
	})
}
