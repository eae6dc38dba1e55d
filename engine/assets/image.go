package assets

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/twinrender/engine/core"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Image is decoded pixel data with four bytes per pixel, top row first.
type Image struct {
	Width  int
	Height int
	Data   []byte
}

// LoadImage decodes a PNG, BMP or TIFF file. Sources are treated as RGB: the
// colour channels are kept and the fourth byte of every pixel is forced to 0.
func LoadImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", core.ErrUnsupportedImageFormat, path, err)
	}

	bounds := src.Bounds()
	img := &Image{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Data:   make([]byte, 0, bounds.Dx()*bounds.Dy()*4),
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := src.At(x, y).RGBA()
			img.Data = append(img.Data, byte(r>>8), byte(g>>8), byte(b>>8), 0)
		}
	}
	return img, nil
}

// FlipRows reverses the row order of tightly packed pixel data in place.
func FlipRows(width, height, channels int, data []byte) {
	stride := width * channels
	tmp := make([]byte, stride)
	for top, bottom := 0, height-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := data[top*stride : (top+1)*stride]
		b := data[bottom*stride : (bottom+1)*stride]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}

// SaveRGB writes tightly packed RGB data to path, encoded according to the
// file extension. Read backs from the GPU start at the bottom row, so flip
// turns them the right way up first.
func SaveRGB(path string, width, height int, rgb []byte, flip bool) error {
	if len(rgb) < width*height*3 {
		return fmt.Errorf("snapshot %s: have %d bytes, need %d", path, len(rgb), width*height*3)
	}
	if flip {
		rgb = append([]byte(nil), rgb[:width*height*3]...)
		FlipRows(width, height, 3, rgb)
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i < width*height*3; i, j = i+3, j+4 {
		img.Pix[j] = rgb[i]
		img.Pix[j+1] = rgb[i+1]
		img.Pix[j+2] = rgb[i+2]
		img.Pix[j+3] = 0xff
	}

	var encode func(f *os.File) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		encode = func(f *os.File) error { return png.Encode(f, img) }
	case ".bmp":
		encode = func(f *os.File) error { return bmp.Encode(f, img) }
	case ".tif", ".tiff":
		encode = func(f *os.File) error { return tiff.Encode(f, img, nil) }
	default:
		return fmt.Errorf("%w: %s", core.ErrUnsupportedImageFormat, path)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
