package tracer

import "time"

// Tracer statistics.
type Stats struct {
	// The rendered block height
	BlockH uint32

	// The time for rendering this block
	RenderTime time.Duration
}

// A Tracer renders blocks of frame rows. The schedulers only need its
// identity, a relative speed estimate and its last block statistics.
type Tracer interface {
	// Get tracer id.
	Id() string

	// Get the tracer's computation speed estimate compared to a
	// single goroutine baseline.
	Speed() uint32

	// Retrieve last frame statistics.
	Stats() *Stats
}
