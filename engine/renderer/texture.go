package renderer

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/twinrender/engine/assets"
	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
	"github.com/spaghettifunk/twinrender/engine/renderer/opengl"
	"github.com/spaghettifunk/twinrender/engine/renderer/vulkan"
)

/**
 * @brief A sampled 2D texture of either backend. Like a RenderTarget it is
 * tied to the renderer that created it, and core.ErrBackendMismatch from any
 * texture call must be treated as fatal.
 */
type Texture struct {
	ID     uuid.UUID
	Width  int
	Height int
	Format metadata.TextureFormat

	gl *opengl.Texture
	vk *vulkan.Texture
}

func (t *Texture) Kind() Kind {
	if t.vk != nil {
		return KindVulkan
	}
	return KindOpenGL
}

func (t *Texture) String() string {
	return fmt.Sprintf("%s texture %s (%dx%d %s)", t.Kind(), t.ID, t.Width, t.Height, t.Format)
}

// NewTexture uploads width*height texels of format from data, first row at
// v = 0. Empty data leaves the contents undefined.
func (r *Renderer) NewTexture(width, height int, format metadata.TextureFormat, data []byte) (*Texture, error) {
	t := &Texture{ID: uuid.New(), Width: width, Height: height, Format: format}
	err := r.call(func(Backend) error {
		var err error
		switch {
		case r.Kind() == KindOpenGL && r.gl != nil:
			t.gl, err = r.gl.NewTexture(width, height, format, data)
		case r.Kind() == KindVulkan && r.vk != nil:
			t.vk, err = r.vk.NewTexture(width, height, format, data)
		default:
			err = fmt.Errorf("%w: %s renderer has no textures", core.ErrBackendMismatch, r.Kind())
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	core.LogDebug("created %s", t)
	return t, nil
}

// LoadTexture decodes an image file and uploads it as bytes.
func (r *Renderer) LoadTexture(path string) (*Texture, error) {
	img, err := assets.LoadImage(path)
	if err != nil {
		return nil, err
	}
	return r.NewTexture(img.Width, img.Height, metadata.TextureFormatUByteRGBA, img.Data)
}

// BindTexture makes the samplers declared at binding slot read t.
func (r *Renderer) BindTexture(slot int, t *Texture) error {
	return r.call(func(Backend) error {
		switch {
		case t.gl != nil && r.gl != nil:
			r.gl.BindTexture(slot, t.gl)
			return nil
		case t.vk != nil && r.vk != nil:
			return r.vk.BindTexture(slot, t.vk)
		}
		return r.mismatch(t)
	})
}

func (r *Renderer) DestroyTexture(t *Texture) error {
	return r.call(func(Backend) error {
		switch {
		case t.gl != nil && r.gl != nil:
			r.gl.DestroyTexture(t.gl)
		case t.vk != nil && r.vk != nil:
			r.vk.DestroyTexture(t.vk)
		default:
			return r.mismatch(t)
		}
		return nil
	})
}
