package exr

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cjsb/SparseVoxelOctree/types"
	openexr "github.com/mrjoshuak/go-openexr/exr"
	"github.com/mrjoshuak/go-openexr/half"
)

func testPixels() []types.Vec3 {
	return []types.Vec3{
		{1, 2, 3}, {0.5, 0.25, 0.125},
		{-1, 0, 4}, {10, 20, 30},
		{0, 0, 0}, {7, 8, 9.75},
	}
}

// readBack decodes the R, G and B planes of an EXR file as float32.
func readBack(t *testing.T, path string) (*openexr.Header, [3][]float32) {
	f, err := openexr.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	r, err := openexr.NewScanlineReader(f)
	if err != nil {
		t.Fatal(err)
	}
	dw := r.DataWindow()
	w, h := int(dw.Max.X-dw.Min.X+1), int(dw.Max.Y-dw.Min.Y+1)

	var planes [3][]float32
	fb := openexr.NewFrameBuffer()
	for idx, ch := range channels {
		planes[idx] = make([]float32, w*h)
		if err = fb.Insert(ch.name, openexr.NewSliceFromFloat32(planes[idx], w, h)); err != nil {
			t.Fatal(err)
		}
	}
	r.SetFrameBuffer(fb)
	if err = r.ReadPixels(int(dw.Min.Y), int(dw.Max.Y)); err != nil {
		t.Fatal(err)
	}
	return r.Header(), planes
}

func TestWrite(t *testing.T) {
	const w, h = 2, 3

	type spec struct {
		pixelType PixelType
		round     func(float32) float32
	}
	specs := []spec{
		{PixelTypeFloat, func(v float32) float32 { return v }},
		{PixelTypeHalf, func(v float32) float32 { return half.FromFloat32(v).Float32() }},
	}

	dir := t.TempDir()
	for specIndex, s := range specs {
		path := filepath.Join(dir, "out.exr")
		if err := WriteFile(path, w, h, testPixels(), s.pixelType); err != nil {
			t.Fatalf("[spec %d] %v", specIndex, err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if magic := binary.LittleEndian.Uint32(data); magic != 20000630 {
			t.Fatalf("[spec %d] expected EXR magic number; got %d", specIndex, magic)
		}

		header, planes := readBack(t, path)
		dw := header.DataWindow()
		if dw.Min.X != 0 || dw.Min.Y != 0 || dw.Max.X != w-1 || dw.Max.Y != h-1 {
			t.Fatalf("[spec %d] expected data window [0 0 1 2]; got %v", specIndex, dw)
		}
		if c := header.Compression(); c != openexr.CompressionNone {
			t.Fatalf("[spec %d] expected uncompressed image; got %v", specIndex, c)
		}
		cl := header.Channels()
		if cl.Len() != 3 {
			t.Fatalf("[spec %d] expected 3 channels; got %d", specIndex, cl.Len())
		}
		for _, ch := range channels {
			desc := cl.Get(ch.name)
			if desc == nil {
				t.Fatalf("[spec %d] expected channel %q", specIndex, ch.name)
			}
			if PixelType(desc.Type) != s.pixelType {
				t.Fatalf("[spec %d] expected channel %q to have pixel type %d; got %d", specIndex, ch.name, s.pixelType, desc.Type)
			}
		}

		for pixIndex, px := range testPixels() {
			for c := 0; c < 3; c++ {
				exp := s.round(px[channels[c].comp])
				if got := planes[c][pixIndex]; got != exp {
					t.Fatalf("[spec %d] pixel %d channel %s: expected %f; got %f", specIndex, pixIndex, channels[c].name, exp, got)
				}
			}
		}
	}
}

func TestWriteErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.exr")

	type spec struct {
		w, h   int
		pixels []types.Vec3
		expErr error
	}
	specs := []spec{
		{0, 2, nil, ErrInvalidDimensions},
		{2, -1, testPixels(), ErrInvalidDimensions},
		{2, 2, testPixels(), ErrPixelCount},
	}

	for specIndex, s := range specs {
		if err := WriteFile(path, s.w, s.h, s.pixels, PixelTypeFloat); !errors.Is(err, s.expErr) {
			t.Fatalf("[spec %d] expected error %v; got %v", specIndex, s.expErr, err)
		}
	}

	if err := WriteFile(filepath.Join(t.TempDir(), "missing", "out.exr"), 2, 3, testPixels(), PixelTypeFloat); err == nil {
		t.Fatal("expected an error when the output directory does not exist")
	}
}
