package raymarch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chewxy/math32"
	"github.com/cjsb/SparseVoxelOctree/types"
)

var ErrInvalidSettings = errors.New("raymarch: invalid settings")

// View selects what the ray marcher writes to the frame.
type View uint8

const (
	// Albedo lit by a directional light plus emission.
	ViewDiffuse View = iota
	// Leaf normals mapped to [0, 1].
	ViewNormal
	// Traversal cost per pixel.
	ViewIterations
)

var viewNames = [...]string{"diffuse", "normal", "iterations"}

func (v View) String() string {
	if int(v) < len(viewNames) {
		return viewNames[v]
	}
	return fmt.Sprintf("View(%d)", v)
}

// ParseView maps a view name to a View.
func ParseView(name string) (View, error) {
	for idx, viewName := range viewNames {
		if strings.EqualFold(name, viewName) {
			return View(idx), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown view %q", ErrInvalidSettings, name)
}

const (
	DefaultMaxIterations = 8192
	MinBeamBlock         = 2
	MaxBeamBlock         = 64
)

// Settings are immutable for the duration of a frame.
type Settings struct {
	Width  uint32
	Height uint32

	View View

	// Beam optimization. Each BeamBlock x BeamBlock pixel block casts a
	// cone that finds a conservative start distance for its pixel rays.
	// BeamOriginSize and BeamDirSize enlarge the cone at its origin and
	// per unit of distance.
	Beam           bool
	BeamBlock      uint32
	BeamOriginSize float32
	BeamDirSize    float32

	Background types.Vec3

	// Direction towards the light used by the diffuse view.
	LightDir types.Vec3

	// Traversal steps after which a ray is considered a miss. Zero
	// selects DefaultMaxIterations.
	MaxIterations int
}

// DefaultSettings returns settings for a width x height diffuse frame.
func DefaultSettings(width, height uint32) Settings {
	return Settings{
		Width:      width,
		Height:     height,
		View:       ViewDiffuse,
		Beam:       true,
		BeamBlock:  8,
		Background: types.Vec3{0.05, 0.05, 0.08},
		LightDir:   types.Vec3{0.3, 1, 0.5}.Normalize(),
	}
}

// Validate the settings.
func (s *Settings) Validate() error {
	switch {
	case s.Width == 0 || s.Height == 0:
		return fmt.Errorf("%w: frame dimensions must be positive; got %dx%d", ErrInvalidSettings, s.Width, s.Height)
	case int(s.View) >= len(viewNames):
		return fmt.Errorf("%w: unknown view %d", ErrInvalidSettings, s.View)
	case s.Beam && (s.BeamBlock < MinBeamBlock || s.BeamBlock > MaxBeamBlock):
		return fmt.Errorf("%w: beam block must be in the [%d, %d] range; got %d", ErrInvalidSettings, MinBeamBlock, MaxBeamBlock, s.BeamBlock)
	case !validSize(s.BeamOriginSize) || !validSize(s.BeamDirSize):
		return fmt.Errorf("%w: beam enlargement must be a non-negative number; got %f, %f", ErrInvalidSettings, s.BeamOriginSize, s.BeamDirSize)
	case s.LightDir.Len() == 0:
		return fmt.Errorf("%w: light direction must not be zero", ErrInvalidSettings)
	case s.MaxIterations < 0:
		return fmt.Errorf("%w: max iterations must not be negative; got %d", ErrInvalidSettings, s.MaxIterations)
	}
	return nil
}

func (s *Settings) maxIterations() int {
	if s.MaxIterations == 0 {
		return DefaultMaxIterations
	}
	return s.MaxIterations
}

func validSize(v float32) bool {
	return v >= 0 && !math32.IsInf(v, 1) && !math32.IsNaN(v)
}
