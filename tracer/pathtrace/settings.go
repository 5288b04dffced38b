package pathtrace

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cjsb/SparseVoxelOctree/types"
)

var ErrInvalidSettings = errors.New("pathtrace: invalid settings")

const (
	MinBounces = 2
	MaxBounces = 16

	MaxSunRadiance = 20
)

// Channel selects which accumulated quantity is displayed or exported.
type Channel uint8

const (
	ChannelColor Channel = iota
	ChannelAlbedo
	ChannelNormal
)

var channelNames = [...]string{"color", "albedo", "normal"}

func (ch Channel) String() string {
	if int(ch) < len(channelNames) {
		return channelNames[ch]
	}
	return fmt.Sprintf("Channel(%d)", ch)
}

// ParseChannel maps a channel name to a Channel.
func ParseChannel(name string) (Channel, error) {
	for idx, chName := range channelNames {
		if strings.EqualFold(name, chName) {
			return Channel(idx), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown channel %q", ErrInvalidSettings, name)
}

// Settings are immutable for the duration of a sample pass.
type Settings struct {
	// Number of diffuse bounces after the primary hit.
	Bounces int

	// Sun light arriving from SunDirection.
	SunRadiance  types.Vec3
	SunDirection types.Vec3

	// Radiance of rays escaping the scene.
	SkyRadiance types.Vec3

	// While paused Render leaves the accumulation buffers untouched.
	Paused bool
}

// DefaultSettings returns the default path tracer settings.
func DefaultSettings() Settings {
	return Settings{
		Bounces:      4,
		SunRadiance:  types.Vec3{5, 5, 5},
		SunDirection: types.Vec3{0.3, 1, 0.5}.Normalize(),
		SkyRadiance:  types.Vec3{0.4, 0.5, 0.6},
	}
}

// Validate the settings.
func (s *Settings) Validate() error {
	if s.Bounces < MinBounces || s.Bounces > MaxBounces {
		return fmt.Errorf("%w: bounces must be in the [%d, %d] range; got %d", ErrInvalidSettings, MinBounces, MaxBounces, s.Bounces)
	}
	for c := 0; c < 3; c++ {
		if !(s.SunRadiance[c] >= 0 && s.SunRadiance[c] <= MaxSunRadiance) {
			return fmt.Errorf("%w: sun radiance must be in the [0, %d] range; got %v", ErrInvalidSettings, MaxSunRadiance, s.SunRadiance)
		}
		if !(s.SkyRadiance[c] >= 0) {
			return fmt.Errorf("%w: sky radiance must not be negative; got %v", ErrInvalidSettings, s.SkyRadiance)
		}
	}
	if s.SunDirection.Len() == 0 {
		return fmt.Errorf("%w: sun direction must not be zero", ErrInvalidSettings)
	}
	return nil
}
