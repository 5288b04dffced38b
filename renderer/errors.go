package renderer

import "errors"

var (
	ErrNoOctree            = errors.New("renderer: no octree loaded")
	ErrInterrupted         = errors.New("renderer: interrupted while rendering")
	ErrPathTracingInactive = errors.New("renderer: path tracing is not active")
	ErrLevelMismatch       = errors.New("renderer: requested level does not match the compiled octree depth")
	ErrUnsupportedFormat   = errors.New("renderer: unsupported scene file format")
)
