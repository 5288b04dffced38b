package tracer

import (
	"image"
	"image/png"
	"os"

	"github.com/chewxy/math32"
	"github.com/cjsb/SparseVoxelOctree/types"
)

const invGamma = 1.0 / 2.2

// ToneMap converts linear RGB pixels into an 8-bit image. When exposure is
// positive a simple Reinhard operator followed by gamma correction is
// applied; otherwise values are clamped to [0, 1] as is.
func ToneMap(pixels []types.Vec3, frameW, frameH uint32, exposure float32) *image.RGBA {
	im := image.NewRGBA(image.Rect(0, 0, int(frameW), int(frameH)))
	for idx, px := range pixels {
		offset := idx * 4
		for c := 0; c < 3; c++ {
			v := px[c]
			if math32.IsNaN(v) || v < 0 {
				v = 0
			}
			if math32.IsInf(v, 1) {
				v = 1
			} else if exposure > 0 {
				v *= exposure
				v = math32.Pow(v/(1+v), invGamma)
			}
			im.Pix[offset+c] = uint8(255 * math32.Min(1, v))
		}
		im.Pix[offset+3] = 255 // alpha
	}
	return im
}

// SavePNG writes img to a png file.
func SavePNG(img image.Image, imgFile string) error {
	f, err := os.Create(imgFile)
	if err != nil {
		return err
	}
	defer f.Close()

	return png.Encode(f, img)
}
