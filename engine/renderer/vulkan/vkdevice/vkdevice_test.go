package vkdevice

import (
	"encoding/binary"
	gomath "math"
	"sync"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putTexel(dst []byte, r, g, b, a float32) {
	for i, f := range []float32{r, g, b, a} {
		binary.LittleEndian.PutUint32(dst[i*4:], gomath.Float32bits(f))
	}
}

func TestFloatTexelsToRGBFlipsRowsAndHonoursPitch(t *testing.T) {
	const width, height, offset, pitch = 2, 2, 8, 2*bytesPerTexel + 16
	texels := make([]byte, offset+pitch*height)
	putTexel(texels[offset:], 1, 0, 0, 1)
	putTexel(texels[offset+bytesPerTexel:], 0, 1, 0, 1)
	putTexel(texels[offset+pitch:], 0, 0, 1, 1)
	putTexel(texels[offset+pitch+bytesPerTexel:], 0.5, 2, -1, 1)

	rgb := floatTexelsToRGB(texels, offset, pitch, width, height)

	assert.Equal(t, []byte{
		0, 0, 255, 127, 255, 0,
		255, 0, 0, 0, 255, 0,
	}, rgb)
}

func TestVertexInputAttributes(t *testing.T) {
	attrs := vertexInputAttributes(metadata.VertexLayoutV3N3C3)
	require.Len(t, attrs, 3)
	for i, a := range attrs {
		assert.Equal(t, uint32(i), a.Location)
		assert.Equal(t, uint32(i*12), a.Offset)
		assert.Equal(t, vk.FormatR32g32b32Sfloat, a.Format)
	}

	attrs = vertexInputAttributes(metadata.VertexLayoutV2T2)
	require.Len(t, attrs, 2)
	assert.Equal(t, vk.FormatR32g32Sfloat, attrs[1].Format)
	assert.Equal(t, uint32(8), attrs[1].Offset)
}

func TestNumberOfSets(t *testing.T) {
	files := []metadata.ShaderFileSpec{
		{Filename: "a.vert", Stage: metadata.ShaderStageVertex},
		{Filename: "a.frag", Stage: metadata.ShaderStageFragment},
	}
	rm, err := metadata.NewResourceManager(t.TempDir(),
		[]metadata.UniformBlockSpec{{Name: "Globals", Size: 16, Set: 1, BlockType: metadata.UniformTypeUniformBuffer}},
		[]metadata.ShaderSpec{
			{Name: "plain", ShaderFiles: files},
			{Name: "lit", ShaderFiles: files, UniformBlockNames: []string{"Globals"}},
			{Name: "post", ShaderFiles: files, UniformSpecs: []metadata.UniformSpec{
				{Name: "scene", Set: 2, Binding: 0, UniformType: metadata.UniformTypeCombinedImageSampler},
			}},
		})
	require.NoError(t, err)

	for name, want := range map[string]uint32{"plain": 0, "lit": 2, "post": 3} {
		spec, err := rm.ShaderSpec(name)
		require.NoError(t, err)
		assert.Equal(t, want, numberOfSets(rm, &spec), name)
	}
}

func TestCheckNamesTheCall(t *testing.T) {
	assert.NoError(t, check("vkQueueSubmit", vk.Success))
	assert.EqualError(t, check("vkQueueSubmit", vk.ErrorDeviceLost), "vkQueueSubmit: VK_ERROR_DEVICE_LOST")
	// Codes missing from the table must not read as success.
	assert.EqualError(t, check("vkQueueSubmit", vk.Result(-12345)), "vkQueueSubmit: VkResult(-12345)")
}

func TestTextureFormats(t *testing.T) {
	assert.Equal(t, offscreenColorFormat, textureFormats[metadata.TextureFormatFloatRGBA])
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, textureFormats[metadata.TextureFormatUByteRGBA])
	assert.Equal(t, bytesPerTexel, metadata.TextureFormatFloatRGBA.BytesPerTexel())
}

func TestVulkanStrings(t *testing.T) {
	assert.Equal(t, "main\x00", VulkanSafeString("main"))
	assert.Equal(t, "main\x00", VulkanSafeString("main\x00"))
	assert.Equal(t, "\x00", VulkanSafeString(""))

	name := make([]byte, 16)
	copy(name, "llvmpipe")
	assert.Equal(t, "llvmpipe", cString(name))
	assert.Equal(t, "full", cString([]byte("full")))
}

func TestLockPoolSerialisesGroup(t *testing.T) {
	pool := NewVulkanLockPool()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.SafeCall(BufferManagement, func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
