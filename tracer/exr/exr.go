// Package exr writes single-part scanline OpenEXR images with
// uncompressed R, G and B channels.
package exr

import (
	"errors"
	"io"
	"os"

	"github.com/cjsb/SparseVoxelOctree/types"
	openexr "github.com/mrjoshuak/go-openexr/exr"
)

var (
	ErrInvalidDimensions = errors.New("exr: invalid image dimensions")
	ErrPixelCount        = errors.New("exr: pixel count does not match image dimensions")
)

// PixelType is the on-disk channel sample format.
type PixelType int32

const (
	PixelTypeHalf  PixelType = PixelType(openexr.PixelTypeHalf)
	PixelTypeFloat PixelType = PixelType(openexr.PixelTypeFloat)
)

// Size returns the number of bytes per sample.
func (pt PixelType) Size() int {
	return openexr.PixelType(pt).Size()
}

// Vector component stored by each channel.
var channels = [3]struct {
	name string
	comp int
}{{"R", 0}, {"G", 1}, {"B", 2}}

// WriteFile writes an EXR image to a file.
func WriteFile(path string, width, height int, pixels []types.Vec3, pixelType PixelType) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err = Write(f, width, height, pixels, pixelType); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write encodes pixels (row-major, top row first) as an EXR image. The
// writer must be seekable so the scanline offset table can be patched once
// all lines are written.
func Write(w io.WriteSeeker, width, height int, pixels []types.Vec3, pixelType PixelType) error {
	if width <= 0 || height <= 0 {
		return ErrInvalidDimensions
	}
	if len(pixels) != width*height {
		return ErrPixelCount
	}
	if pixelType != PixelTypeHalf {
		pixelType = PixelTypeFloat
	}

	header := openexr.NewScanlineHeader(width, height)
	header.SetCompression(openexr.CompressionNone)
	channelList := openexr.NewChannelList()
	for _, ch := range channels {
		channelList.Add(openexr.NewChannel(ch.name, openexr.PixelType(pixelType)))
	}
	header.SetChannels(channelList)

	// Samples are handed over as planar float32 and converted by the
	// writer to the channel type.
	fb := openexr.NewFrameBuffer()
	for _, ch := range channels {
		plane := make([]float32, len(pixels))
		for idx, px := range pixels {
			plane[idx] = px[ch.comp]
		}
		if err := fb.Insert(ch.name, openexr.NewSliceFromFloat32(plane, width, height)); err != nil {
			return err
		}
	}

	sw, err := openexr.NewScanlineWriter(w, header)
	if err != nil {
		return err
	}
	sw.SetFrameBuffer(fb)
	if err = sw.WritePixels(0, height-1); err != nil {
		sw.Close()
		return err
	}
	return sw.Close()
}
