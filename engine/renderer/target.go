package renderer

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/renderer/opengl"
	"github.com/spaghettifunk/twinrender/engine/renderer/vulkan"
)

/**
 * @brief An offscreen colour and depth target of either backend. Exactly one
 * of gl and vk is set; a target can only be used with the renderer that
 * created it.
 *
 * Using it with another renderer fails with core.ErrBackendMismatch and does
 * nothing. Callers must treat that error as fatal: it means resources of two
 * backends were mixed up and no later frame can be trusted.
 */
type RenderTarget struct {
	ID     uuid.UUID
	Width  int
	Height int

	gl *opengl.RenderTarget
	vk *vulkan.RenderTarget
}

func (t *RenderTarget) Kind() Kind {
	if t.vk != nil {
		return KindVulkan
	}
	return KindOpenGL
}

func (t *RenderTarget) String() string {
	return fmt.Sprintf("%s target %s (%dx%d)", t.Kind(), t.ID, t.Width, t.Height)
}

func (r *Renderer) mismatch(res fmt.Stringer) error {
	return fmt.Errorf("%w: %s used with the %s renderer", core.ErrBackendMismatch, res, r.Kind())
}

func (r *Renderer) NewRenderTarget(width, height int) (*RenderTarget, error) {
	t := &RenderTarget{ID: uuid.New(), Width: width, Height: height}
	err := r.call(func(Backend) error {
		var err error
		switch {
		case r.Kind() == KindOpenGL && r.gl != nil:
			t.gl, err = r.gl.NewRenderTarget(width, height)
		case r.Kind() == KindVulkan && r.vk != nil:
			t.vk, err = r.vk.NewRenderTarget(width, height)
		default:
			err = fmt.Errorf("%w: %s renderer has no render targets", core.ErrBackendMismatch, r.Kind())
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	core.LogDebug("created %s", t)
	return t, nil
}

func (r *Renderer) DestroyRenderTarget(t *RenderTarget) error {
	return r.call(func(Backend) error {
		switch {
		case t.gl != nil && r.gl != nil:
			r.gl.DestroyRenderTarget(t.gl)
		case t.vk != nil && r.vk != nil:
			r.vk.DestroyRenderTarget(t.vk)
		default:
			return r.mismatch(t)
		}
		return nil
	})
}

// SelectRenderTarget renders the following passes into t. slot picks the
// texture unit t is bound to on OpenGL.
func (r *Renderer) SelectRenderTarget(slot int, t *RenderTarget) error {
	return r.call(func(Backend) error {
		switch {
		case t.gl != nil && r.gl != nil:
			r.gl.SelectRenderTarget(slot, t.gl)
		case t.vk != nil && r.vk != nil:
			r.vk.SelectRenderTarget(slot, t.vk)
		default:
			return r.mismatch(t)
		}
		return nil
	})
}

// Snapshot saves the colour attachment of t to path, top row first.
func (r *Renderer) Snapshot(t *RenderTarget, path string) error {
	return r.call(func(Backend) error {
		switch {
		case t.gl != nil && r.gl != nil:
			return r.gl.Snapshot(t.gl, path)
		case t.vk != nil && r.vk != nil:
			return r.vk.Snapshot(t.vk, path)
		}
		return r.mismatch(t)
	})
}
