package metadata

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/twinrender/engine/core"
)

/**
 * @brief The vertex attribute composition of every vertex in a batch.
 * The name lists the attributes in order, each with its component count.
 */
type VertexLayout int

const (
	/** @brief Normal only, 3 components. */
	VertexLayoutN3 VertexLayout = iota
	/** @brief Position, normal and colour, 3 components each. */
	VertexLayoutV3N3C3
	/** @brief Position and normal, 3 components each. */
	VertexLayoutV3N3
	/** @brief 2D position and texture coordinate, 2 components each. */
	VertexLayoutV2T2

	VertexLayoutCount = int(VertexLayoutV2T2) + 1
)

// Every triangle is written out as three explicit vertices.
const VerticesPerTriangle = 3

var vertexLayoutNames = [VertexLayoutCount]string{"n3", "v3n3c3", "v3n3", "v2t2"}

/** @brief Number of float components in a single vertex of this layout. */
func (l VertexLayout) ComponentsPerVertex() int {
	switch l {
	case VertexLayoutN3:
		return 3
	case VertexLayoutV3N3C3:
		return 9
	case VertexLayoutV3N3:
		return 6
	case VertexLayoutV2T2:
		return 4
	}
	panic(fmt.Sprintf("unexpected vertex layout %d", int(l)))
}

/** @brief Number of float components in a whole triangle of this layout. */
func (l VertexLayout) ComponentsPerTriangle() int {
	return l.ComponentsPerVertex() * VerticesPerTriangle
}

// AttributeSizes returns the component count of every attribute in order.
func (l VertexLayout) AttributeSizes() []int {
	switch l {
	case VertexLayoutN3:
		return []int{3}
	case VertexLayoutV3N3C3:
		return []int{3, 3, 3}
	case VertexLayoutV3N3:
		return []int{3, 3}
	case VertexLayoutV2T2:
		return []int{2, 2}
	}
	panic(fmt.Sprintf("unexpected vertex layout %d", int(l)))
}

func (l VertexLayout) String() string {
	if l < 0 || int(l) >= VertexLayoutCount {
		return fmt.Sprintf("VertexLayout(%d)", int(l))
	}
	return vertexLayoutNames[l]
}

func (l VertexLayout) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *VertexLayout) UnmarshalText(text []byte) error {
	s := strings.ToLower(string(text))
	for i, n := range vertexLayoutNames {
		if n == s {
			*l = VertexLayout(i)
			return nil
		}
	}
	return fmt.Errorf("unknown vertex layout %q", string(text))
}

/** @brief Topology of the primitives held in a batch. */
type PrimitiveType int

const (
	PrimitiveTriangles PrimitiveType = iota
	PrimitivePatches
)

func (p PrimitiveType) String() string {
	if p == PrimitivePatches {
		return "patches"
	}
	return "triangles"
}

func (p *PrimitiveType) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "triangles", "":
		*p = PrimitiveTriangles
	case "patches":
		*p = PrimitivePatches
	default:
		return fmt.Errorf("unknown primitive type %q", string(text))
	}
	return nil
}

/**
 * @brief Identifies the render pass a shader draws into. The value doubles as
 * the index of the backend's render pass.
 */
type RenderTargetID uint32

const (
	RenderTargetSwapchain RenderTargetID = 0
	RenderTargetOffscreen RenderTargetID = 1

	RenderTargetCount = 2
)

func (r *RenderTargetID) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "swapchain", "":
		*r = RenderTargetSwapchain
	case "offscreen":
		*r = RenderTargetOffscreen
	default:
		return fmt.Errorf("unknown render target %q", string(text))
	}
	return nil
}

/** @brief Pixel format of a texture uploaded from host memory. */
type TextureFormat int

const (
	// Four 32 bit floats per texel.
	TextureFormatFloatRGBA TextureFormat = iota
	// Four normalised bytes per texel.
	TextureFormatUByteRGBA
)

func (f TextureFormat) BytesPerTexel() int {
	if f == TextureFormatFloatRGBA {
		return 16
	}
	return 4
}

func (f TextureFormat) String() string {
	if f == TextureFormatFloatRGBA {
		return "float_rgba"
	}
	return "ubyte_rgba"
}

// CheckSize accepts either no data, which leaves the contents undefined, or
// exactly one texel per pixel.
func (f TextureFormat) CheckSize(width, height int, data []byte) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", core.ErrTextureSize, width, height)
	}
	if len(data) != 0 && len(data) != width*height*f.BytesPerTexel() {
		return fmt.Errorf("%w: %d bytes for a %dx%d %s texture", core.ErrTextureSize, len(data), width, height, f)
	}
	return nil
}
