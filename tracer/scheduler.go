package tracer

import "math"

// The BlockScheduler interface is implemented by all block scheduling algorithms.
type BlockScheduler interface {
	// Split frame into blocks of variable height and assign to the pool
	// of tracers using feedback collected from previous frames.
	//
	// This function returns the block height assignment for each tracer
	// in the input list.
	Schedule(tracers []Tracer, frameH uint32) []uint32
}

// The naive scheduler splits the frame rows proportionally to each tracer's
// speed estimate.
type naiveScheduler struct {
	blockAssignment []uint32
}

// Create a new naive scheduler instance.
func NaiveScheduler() BlockScheduler {
	return &naiveScheduler{}
}

func (sch *naiveScheduler) Schedule(tracers []Tracer, frameH uint32) []uint32 {
	if len(sch.blockAssignment) != len(tracers) {
		sch.blockAssignment = make([]uint32, len(tracers))
	}
	distributeRows(sch.blockAssignment, speedWeights(tracers), frameH)
	return sch.blockAssignment
}

// The perfect scheduler assumes that the volume of tracing work between two
// subsequent frames is approximately the same.
type perfectScheduler struct {
	blockAssignment []uint32
}

// Create a new perfect scheduler instance.
func PerfectScheduler() BlockScheduler {
	return &perfectScheduler{}
}

// Split frame into blocks of variable height and assign to the pool
// of tracers using feedback collected from previous frames.
//
// When previous frame information is available the scheduler uses the
// following formula for estimating the workload for tracer w and frame i+1:
// w_i, f_i+1 = (blockH,w_i / time,w_i) / Σ(blockH_i-1 / time,i-1)
func (sch *perfectScheduler) Schedule(tracers []Tracer, frameH uint32) []uint32 {
	// If this is the first time we try to schedule or the number of tracers
	// has changed we need to reset the block assignments
	if len(sch.blockAssignment) != len(tracers) {
		sch.blockAssignment = make([]uint32, len(tracers))
		distributeRows(sch.blockAssignment, speedWeights(tracers), frameH)
		return sch.blockAssignment
	}

	// Use last frame statistics; fall back to speed estimates if any
	// tracer did not report a usable timing.
	weights := make([]float64, len(tracers))
	for idx, tr := range tracers {
		stats := tr.Stats()
		if stats.RenderTime <= 0 || stats.BlockH == 0 {
			weights = speedWeights(tracers)
			break
		}
		weights[idx] = float64(stats.BlockH) / float64(stats.RenderTime)
	}

	distributeRows(sch.blockAssignment, weights, frameH)
	return sch.blockAssignment
}

func speedWeights(tracers []Tracer) []float64 {
	weights := make([]float64, len(tracers))
	for idx, tr := range tracers {
		weights[idx] = float64(max(1, tr.Speed()))
	}
	return weights
}

// distributeRows assigns frameH rows proportionally to weights. Every
// tracer gets at least one row if there are enough rows to go around and
// rows lost to rounding are appended to the first tracer.
func distributeRows(out []uint32, weights []float64, frameH uint32) {
	if len(out) == 0 {
		return
	}

	var total float64
	for _, w := range weights {
		total += w
	}
	scaler := float64(frameH) / total

	minRows := 1.0
	if int(frameH) < len(out) {
		minRows = 0
	}

	var scheduledRows uint32
	for idx, w := range weights {
		out[idx] = uint32(math.Max(minRows, math.Floor(w*scaler)))
		scheduledRows += out[idx]
	}

	// Minimum row guarantees may overshoot; take the excess from the
	// largest blocks.
	for scheduledRows > frameH {
		largest := 0
		for idx := range out {
			if out[idx] > out[largest] {
				largest = idx
			}
		}
		out[largest]--
		scheduledRows--
	}

	// In case rows don't add up to the frame height append the missing ones to the first tracer
	out[0] += frameH - scheduledRows
}
