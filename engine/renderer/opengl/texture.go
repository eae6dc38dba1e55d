package opengl

import (
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
)

/** @brief A sampled 2D texture. Filtering is linear and coordinates clamp to the edge. */
type Texture struct {
	Width  int
	Height int
	Format metadata.TextureFormat
	handle uint32
}

// NewTexture uploads data, tightly packed rows of format texels with the first
// row at texture coordinate v = 0. Empty data leaves the contents undefined.
func (be *Backend) NewTexture(width, height int, format metadata.TextureFormat, data []byte) (*Texture, error) {
	if err := format.CheckSize(width, height, data); err != nil {
		return nil, err
	}
	return &Texture{
		Width:  width,
		Height: height,
		Format: format,
		handle: be.driver.CreateTexture(width, height, format, data),
	}, nil
}

// BindTexture binds t to texture unit slot. Samplers read the unit matching
// their binding.
func (be *Backend) BindTexture(slot int, t *Texture) {
	be.driver.BindTexture(slot, t.handle)
}

func (be *Backend) DestroyTexture(t *Texture) {
	if t.handle != 0 {
		be.driver.DeleteTexture(t.handle)
		t.handle = 0
	}
}
