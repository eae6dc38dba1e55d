package vulkan

import (
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
)

/** @brief A sampled image filled from host memory through a staging buffer. */
type Texture struct {
	Width  int
	Height int
	Format metadata.TextureFormat
	image  Image
	live   bool
}

// NewTexture uploads data, first row at texture coordinate v = 0. Empty data
// leaves the contents undefined.
func (be *Backend) NewTexture(width, height int, format metadata.TextureFormat, data []byte) (*Texture, error) {
	if err := format.CheckSize(width, height, data); err != nil {
		return nil, err
	}
	img, err := be.device.CreateTexture(width, height, format, data)
	if err != nil {
		return nil, err
	}
	return &Texture{Width: width, Height: height, Format: format, image: img, live: true}, nil
}

// BindTexture makes the samplers at binding slot read t.
func (be *Backend) BindTexture(slot int, t *Texture) error {
	return be.bindSampler(uint32(slot), t.image)
}

func (be *Backend) DestroyTexture(t *Texture) {
	if !t.live {
		return
	}
	be.forgetSampler(t.image)
	be.device.DestroyImage(t.image)
	t.live = false
}
