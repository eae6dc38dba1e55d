package opengl

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spaghettifunk/twinrender/engine/assets"
	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/math"
	"github.com/spaghettifunk/twinrender/engine/renderer/batch"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type drawCall struct {
	primitive metadata.PrimitiveType
	first     int
	count     int
}

type attribPointer struct {
	location, components, stride, offset int
}

type fakeDriver struct {
	nextName    uint32
	sources     []string
	failCompile string
	uploads     [][]float32
	draws       []drawCall
	used        []uint32
	pointers    []attribPointer
	blockBinds  map[uint32]uint32
	ubos        map[uint32][]byte
	uniform1i   map[int32]int32
	deleted     []uint32
	framebuffer []uint32
	textures    [][2]int
	viewports   [][2]int
	clears      int
	missing     map[string]bool
	texImages   map[uint32]texImage
	texDeleted  []uint32
}

type texImage struct {
	width, height int
	format        metadata.TextureFormat
	data          []byte
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		nextName:   1,
		blockBinds: make(map[uint32]uint32),
		ubos:       make(map[uint32][]byte),
		uniform1i:  make(map[int32]int32),
		missing:    make(map[string]bool),
		texImages:  make(map[uint32]texImage),
	}
}

func (d *fakeDriver) name() uint32 {
	d.nextName++
	return d.nextName
}

func (d *fakeDriver) Info() DriverInfo { return DriverInfo{Vendor: "fake"} }

func (d *fakeDriver) CompileShader(stage metadata.ShaderStage, source string) (int32, string) {
	d.sources = append(d.sources, source)
	if d.failCompile != "" && strings.Contains(source, d.failCompile) {
		return -1, "0:1: syntax error"
	}
	return int32(d.name()), ""
}

func (d *fakeDriver) LinkProgram(shaders []uint32, fragmentOut string) (int32, string) {
	return int32(d.name()), ""
}

func (d *fakeDriver) DeleteShader(shader uint32)   { d.deleted = append(d.deleted, shader) }
func (d *fakeDriver) DeleteProgram(program uint32) { d.deleted = append(d.deleted, program) }
func (d *fakeDriver) UseProgram(program uint32)    { d.used = append(d.used, program) }

func (d *fakeDriver) UniformBlockIndex(program uint32, name string) (uint32, bool) {
	if d.missing[name] {
		return 0, false
	}
	return uint32(len(name)), true
}

func (d *fakeDriver) UniformBlockBinding(program, index, binding uint32) {
	d.blockBinds[index] = binding
}

func (d *fakeDriver) UniformLocation(program uint32, name string) int32 {
	if d.missing[name] {
		return -1
	}
	return int32(len(name))
}

func (d *fakeDriver) AttribLocation(program uint32, name string) int32 {
	if d.missing[name] {
		return -1
	}
	return int32(len(name))
}

func (d *fakeDriver) Uniform1i(location int32, value int32) { d.uniform1i[location] = value }

func (d *fakeDriver) VertexAttribPointer(location uint32, components, stride, offset int) {
	d.pointers = append(d.pointers, attribPointer{int(location), components, stride, offset})
}

func (d *fakeDriver) UploadVertices(data []float32) {
	d.uploads = append(d.uploads, append([]float32(nil), data...))
}

func (d *fakeDriver) DrawArrays(primitive metadata.PrimitiveType, first, count int) {
	d.draws = append(d.draws, drawCall{primitive, first, count})
}

func (d *fakeDriver) SetPatchVertices(n int)     {}
func (d *fakeDriver) SetDepthTest(enabled bool)  {}
func (d *fakeDriver) SetBlending(enabled bool)   {}
func (d *fakeDriver) ClearDepth()                { d.clears++ }
func (d *fakeDriver) Viewport(width, height int) { d.viewports = append(d.viewports, [2]int{width, height}) }
func (d *fakeDriver) Error() uint32              { return 0 }

func (d *fakeDriver) GenUniformBuffer(size int, binding uint32) uint32 {
	n := d.name()
	d.ubos[n] = make([]byte, size)
	return n
}

func (d *fakeDriver) UpdateUniformBuffer(buffer uint32, data []byte) {
	d.ubos[buffer] = append([]byte(nil), data...)
}

func (d *fakeDriver) DeleteBuffer(buffer uint32) { delete(d.ubos, buffer) }

func (d *fakeDriver) CreateRenderTarget(width, height int) (TargetHandles, error) {
	return TargetHandles{Texture: d.name(), Framebuffer: d.name(), Renderbuffer: d.name()}, nil
}

func (d *fakeDriver) DeleteRenderTarget(h TargetHandles) {}

func (d *fakeDriver) BindFramebuffer(fbo uint32) { d.framebuffer = append(d.framebuffer, fbo) }

func (d *fakeDriver) BindTexture(unit int, texture uint32) {
	d.textures = append(d.textures, [2]int{unit, int(texture)})
}

func (d *fakeDriver) ReadPixelsRGB(width, height int) []byte {
	rgb := make([]byte, width*height*3)
	for i := range rgb {
		rgb[i] = byte(i)
	}
	return rgb
}

func (d *fakeDriver) CreateTexture(width, height int, format metadata.TextureFormat, data []byte) uint32 {
	name := d.name()
	d.texImages[name] = texImage{width, height, format, append([]byte(nil), data...)}
	return name
}

func (d *fakeDriver) DeleteTexture(texture uint32) { d.texDeleted = append(d.texDeleted, texture) }

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newResources(t *testing.T) *metadata.ResourceManager {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "common.glsl", "float shade(float x) { return x; }")
	writeFile(t, dir, "lit.vert", "layout(set = 0, binding = 0) uniform Globals { mat4 mvp; };\nvoid main() {}")
	writeFile(t, dir, "lit.frag", "void main() {}")

	blocks := []metadata.UniformBlockSpec{{
		Name:    "Globals",
		Size:    80,
		Binding: 2,
		Uniforms: []metadata.BlockUniformSpec{
			{Name: "mvp", Offset: 0},
			{Name: "tint", Offset: 64},
		},
	}}
	shaders := []metadata.ShaderSpec{{
		Name:         "lit",
		LibraryFiles: []string{"common.glsl"},
		ShaderFiles: []metadata.ShaderFileSpec{
			{Filename: "lit.vert", Stage: metadata.ShaderStageVertex},
			{Filename: "lit.frag", Stage: metadata.ShaderStageFragment},
		},
		UniformBlockNames: []string{"Globals"},
		UniformSpecs: []metadata.UniformSpec{
			{Name: "previous", Binding: 1, UniformType: metadata.UniformTypeCombinedImageSampler},
		},
		VertexLayout: metadata.VertexLayoutV3N3,
		Attributes:   []string{"position", "normal"},
		FragmentOut:  "colour",
	}}
	rm, err := metadata.NewResourceManager(dir, blocks, shaders)
	require.NoError(t, err)
	return rm
}

func newBackend(t *testing.T, opts Options) (*Backend, *fakeDriver) {
	t.Helper()
	d := newFakeDriver()
	be, err := New(d, newResources(t), opts)
	require.NoError(t, err)
	return be, d
}

func TestBuildPrependsPreambleAndLibrary(t *testing.T) {
	_, d := newBackend(t, Options{})
	require.Len(t, d.sources, 2)
	vert := d.sources[0]
	assert.True(t, strings.HasPrefix(vert, "#version 450 core\n#extension GL_KHR_vulkan_glsl : enable\n"))
	assert.Contains(t, vert, "float shade(float x) { return x; }\n#line 1\nlayout(set = 0")
	assert.Equal(t, uint32(2), d.blockBinds[uint32(len("Globals"))])
}

func TestBuildForOldDriverStripsSetQualifier(t *testing.T) {
	_, d := newBackend(t, Options{OldDriver: true})
	vert := d.sources[0]
	assert.True(t, strings.HasPrefix(vert, "#version 450 core\n"))
	assert.NotContains(t, vert, "GL_KHR_vulkan_glsl")
	assert.Contains(t, vert, "layout( binding = 0) uniform Globals")
}

func TestBuildFailureIsShaderBuildError(t *testing.T) {
	d := newFakeDriver()
	d.failCompile = "void main() {}"
	_, err := New(d, newResources(t), Options{})
	assert.ErrorIs(t, err, core.ErrShaderBuild)
}

func TestMissingAttributeOnlyWarns(t *testing.T) {
	var buf bytes.Buffer
	core.SetLogOutput(&buf)
	defer core.SetLogOutput(os.Stderr)

	d := newFakeDriver()
	d.missing["normal"] = true
	be, err := New(d, newResources(t), Options{})
	require.NoError(t, err)
	require.NoError(t, be.BeginPass("lit"))
	require.Len(t, d.pointers, 1)
	assert.Equal(t, attribPointer{len("position"), 3, 6, 0}, d.pointers[0])

	assert.Contains(t, buf.String(), "could not find attribute normal for lit")
	assert.NotContains(t, buf.String(), "build_shader")
	assert.NotContains(t, buf.String(), "get_attribute")
}

func TestBeginPassSelectsProgramAndLayout(t *testing.T) {
	be, d := newBackend(t, Options{})
	assert.ErrorIs(t, be.BeginPass("nope"), core.ErrUnknownShader)

	require.NoError(t, be.BeginPass("lit"))
	assert.Equal(t, metadata.VertexLayoutV3N3, be.Layout())
	assert.Equal(t, metadata.PrimitiveTriangles, be.Primitive())
	require.Len(t, d.used, 1)
	assert.Equal(t, []attribPointer{
		{len("position"), 3, 6, 0},
		{len("normal"), 3, 6, 3},
	}, d.pointers)
	assert.Equal(t, int32(1), d.uniform1i[int32(len("previous"))])
}

func TestFlushEmptyBatchDrawsNothing(t *testing.T) {
	be, d := newBackend(t, Options{})
	b := batch.New(0, metadata.VertexLayoutV3N3)
	assert.False(t, b.CheckFlush(false, be))
	assert.True(t, b.CheckFlush(true, be))
	assert.Empty(t, d.draws)
	assert.Empty(t, d.uploads)
}

func TestFlushSingleTriangle(t *testing.T) {
	be, d := newBackend(t, Options{})
	require.NoError(t, be.BeginPass("lit"))

	b := batch.New(0, be.Layout())
	n := math.NewVec3(0, 0, 1)
	b.AddV3N3(be, math.NewVec3(0, 0, 0), n, math.NewVec3(1, 0, 0), n, math.NewVec3(0, 1, 0), n)
	b.Finish(be)

	require.Len(t, d.draws, 1)
	assert.Equal(t, drawCall{metadata.PrimitiveTriangles, 0, 3}, d.draws[0])
	assert.Equal(t, []float32{
		0, 0, 0, 0, 0, 1,
		1, 0, 0, 0, 0, 1,
		0, 1, 0, 0, 0, 1,
	}, d.uploads[0])
	assert.Equal(t, 0, b.Index)
}

func TestSynchroniseUniformBuffer(t *testing.T) {
	be, d := newBackend(t, Options{})
	be.SetUniformFloat("Globals", "tint", 1)
	be.SetUniformFloat("Missing", "tint", 1)
	require.NoError(t, be.SynchroniseUniformBuffer("Globals"))
	assert.ErrorIs(t, be.SynchroniseUniformBuffer("Missing"), core.ErrUnknownUniformBlock)

	ub := be.uniformBuffers["Globals"]
	bytes := d.ubos[ub.handle]
	require.Len(t, bytes, 80)
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, bytes[64:68])
}

func TestRenderTargetSelection(t *testing.T) {
	be, d := newBackend(t, Options{Width: 640, Height: 480})
	rt, err := be.NewRenderTarget(4, 2)
	require.NoError(t, err)

	be.SelectRenderTarget(1, rt)
	be.SelectRenderTarget(0, rt)
	be.SelectRenderTarget(5, rt)
	assert.Equal(t, [][2]int{
		{1, int(rt.handles.Texture)},
		{0, int(rt.handles.Texture)},
		{0, int(rt.handles.Texture)},
	}, d.textures)
	assert.Equal(t, [2]int{4, 2}, d.viewports[len(d.viewports)-1])

	be.DeselectRenderTarget()
	assert.Equal(t, uint32(0), d.framebuffer[len(d.framebuffer)-1])
	assert.Equal(t, [2]int{640, 480}, d.viewports[len(d.viewports)-1])
}

func TestSnapshotFlipsRows(t *testing.T) {
	be, _ := newBackend(t, Options{})
	rt, err := be.NewRenderTarget(1, 2)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "snap.png")
	require.NoError(t, be.Snapshot(rt, path))
	img, err := assets.LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4, 5, 0, 0, 1, 2, 0}, img.Data)
}

func TestCheckForRebuild(t *testing.T) {
	be, d := newBackend(t, Options{})
	am, err := assets.NewAssetManager()
	require.NoError(t, err)
	defer am.Shutdown()

	assert.Empty(t, be.CheckForRebuild(am))

	am.MarkChanged(be.resources.Path("common.glsl"))
	before := be.programs["lit"]
	oldHandle := before.handle
	compiled := len(d.sources)
	assert.Equal(t, []string{"lit"}, be.CheckForRebuild(am))
	assert.Equal(t, compiled+2, len(d.sources))
	assert.NotSame(t, before, be.programs["lit"])
	assert.Contains(t, d.deleted, oldHandle)
	assert.Empty(t, be.CheckForRebuild(am))

	// A broken edit keeps the old program.
	d.failCompile = "void main() {}"
	am.MarkChanged(be.resources.Path("lit.frag"))
	current := be.programs["lit"]
	assert.Empty(t, be.CheckForRebuild(am))
	assert.Same(t, current, be.programs["lit"])
}

func TestTextureFromImage(t *testing.T) {
	be, d := newBackend(t, Options{})

	path := filepath.Join(t.TempDir(), "ramp.png")
	require.NoError(t, assets.SaveRGB(path, 2, 1, []byte{10, 20, 30, 40, 50, 60}, false))
	img, err := assets.LoadImage(path)
	require.NoError(t, err)

	tex, err := be.NewTexture(img.Width, img.Height, metadata.TextureFormatUByteRGBA, img.Data)
	require.NoError(t, err)
	uploaded := d.texImages[tex.handle]
	assert.Equal(t, texImage{2, 1, metadata.TextureFormatUByteRGBA, []byte{10, 20, 30, 0, 40, 50, 60, 0}}, uploaded)

	be.BindTexture(2, tex)
	assert.Equal(t, [2]int{2, int(tex.handle)}, d.textures[len(d.textures)-1])

	handle := tex.handle
	be.DestroyTexture(tex)
	be.DestroyTexture(tex)
	assert.Equal(t, []uint32{handle}, d.texDeleted)
}

func TestTextureWithoutData(t *testing.T) {
	be, d := newBackend(t, Options{})
	tex, err := be.NewTexture(4, 4, metadata.TextureFormatFloatRGBA, nil)
	require.NoError(t, err)
	assert.Empty(t, d.texImages[tex.handle].data)
	assert.Equal(t, metadata.TextureFormatFloatRGBA, d.texImages[tex.handle].format)
}

func TestTextureSizeMismatch(t *testing.T) {
	be, d := newBackend(t, Options{})
	_, err := be.NewTexture(2, 2, metadata.TextureFormatUByteRGBA, make([]byte, 15))
	assert.ErrorIs(t, err, core.ErrTextureSize)
	_, err = be.NewTexture(0, 2, metadata.TextureFormatUByteRGBA, nil)
	assert.ErrorIs(t, err, core.ErrTextureSize)
	assert.Empty(t, d.texImages)
}
