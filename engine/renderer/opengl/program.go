package opengl

import (
	"fmt"
	"regexp"

	"github.com/spaghettifunk/twinrender/engine/assets"
	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
)

const (
	glslPreamble        = "#version 450 core\n"
	vulkanGLSLExtension = "#extension GL_KHR_vulkan_glsl : enable\n"
	// Resets line numbering so diagnostics point into the stage source and
	// not into the library code prepended to it.
	libraryTerminator = "\n#line 1\n"
)

var setQualifier = regexp.MustCompile(`layout\s*\(set\s*=\s*\d+\s*,`)

/** @brief A linked GL program together with the locations it resolved. */
type program struct {
	spec       metadata.ShaderSpec
	handle     uint32
	shaders    []uint32
	uniforms   map[string]int32
	attributes map[string]int32
}

// preprocess makes the shared GLSL sources acceptable to the GL compiler.
func (be *Backend) preprocess(source string) string {
	if be.opts.OldDriver {
		return glslPreamble + setQualifier.ReplaceAllString(source, "layout(")
	}
	return glslPreamble + vulkanGLSLExtension + source
}

// buildProgram compiles and links the named shader and resolves its uniform
// blocks, opaque uniforms and attributes. Missing names only warn, since the
// GLSL compiler drops anything unused.
func (be *Backend) buildProgram(name string) (*program, error) {
	spec, err := be.resources.ShaderSpec(name)
	if err != nil {
		return nil, err
	}

	library := ""
	for _, f := range spec.LibraryFiles {
		src, err := assets.ReadText(be.resources.Path(f))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s", core.ErrShaderBuild, name, err)
		}
		library += src + libraryTerminator
	}

	p := &program{
		spec:       spec,
		uniforms:   make(map[string]int32),
		attributes: make(map[string]int32),
	}
	for _, file := range spec.ShaderFiles {
		src, err := assets.ReadText(be.resources.Path(file.Filename))
		if err != nil {
			be.deleteProgram(p)
			return nil, fmt.Errorf("%w: %s: %s", core.ErrShaderBuild, name, err)
		}
		shader, infoLog := be.driver.CompileShader(file.Stage, be.preprocess(library+src))
		if shader < 0 {
			core.LogError("Failed to compile %s shader for %s", file.Stage, name)
			for _, lib := range spec.LibraryFiles {
				core.LogError("The source includes: %s", lib)
			}
		}
		if infoLog != "" {
			core.LogInfo("Compilation log:\n%s", infoLog)
		}
		if shader < 0 {
			be.deleteProgram(p)
			return nil, fmt.Errorf("%w: %s (%s)", core.ErrShaderBuild, name, file.Filename)
		}
		p.shaders = append(p.shaders, uint32(shader))
	}

	handle, infoLog := be.driver.LinkProgram(p.shaders, spec.FragmentOut)
	if handle < 0 {
		core.LogError("Failed to link shader %s", name)
	}
	if infoLog != "" {
		core.LogInfo("Link log:\n%s", infoLog)
	}
	if handle < 0 {
		be.deleteProgram(p)
		return nil, fmt.Errorf("%w: %s", core.ErrShaderBuild, name)
	}
	p.handle = uint32(handle)

	for _, blockName := range spec.UniformBlockNames {
		block, err := be.resources.UniformBlock(blockName)
		if err != nil {
			be.deleteProgram(p)
			return nil, err
		}
		index, ok := be.driver.UniformBlockIndex(p.handle, blockName)
		if !ok {
			core.LogShaderWarn("could not find uniform block %s for %s", blockName, name)
			continue
		}
		be.driver.UniformBlockBinding(p.handle, index, block.Binding)
	}

	for _, u := range spec.UniformSpecs {
		loc := be.driver.UniformLocation(p.handle, u.Name)
		if loc == -1 {
			core.LogShaderWarn("could not find uniform %s for %s", u.Name, name)
			continue
		}
		p.uniforms[u.Name] = loc
	}

	for _, a := range spec.Attributes {
		loc := be.driver.AttribLocation(p.handle, a)
		if loc == -1 {
			core.LogShaderWarn("could not find attribute %s for %s", a, name)
			continue
		}
		p.attributes[a] = loc
	}

	return p, nil
}

func (be *Backend) deleteProgram(p *program) {
	if p.handle != 0 {
		be.driver.DeleteProgram(p.handle)
	}
	for _, s := range p.shaders {
		be.driver.DeleteShader(s)
	}
	p.handle = 0
	p.shaders = nil
}

// selectProgram makes p current and points the vertex attributes at the
// interleaved layout of its batches.
func (be *Backend) selectProgram(p *program) {
	be.driver.UseProgram(p.handle)
	be.driver.SetDepthTest(p.spec.DepthTest)
	be.driver.SetBlending(p.spec.AlphaBlending)
	if p.spec.Primitive == metadata.PrimitivePatches {
		be.driver.SetPatchVertices(metadata.VerticesPerTriangle)
	}

	stride := p.spec.VertexLayout.ComponentsPerVertex()
	offset := 0
	for i, size := range p.spec.VertexLayout.AttributeSizes() {
		if i < len(p.spec.Attributes) {
			name := p.spec.Attributes[i]
			if loc, ok := p.attributes[name]; ok {
				be.driver.VertexAttribPointer(uint32(loc), size, stride, offset)
			} else {
				core.LogShaderWarn("could not find attribute %s for %s", name, p.spec.Name)
			}
		}
		offset += size
	}

	// Samplers read from the texture unit matching their binding, the same
	// number the explicit backend uses for the descriptor.
	for _, u := range p.spec.UniformSpecs {
		if u.UniformType != metadata.UniformTypeSampler && u.UniformType != metadata.UniformTypeCombinedImageSampler {
			continue
		}
		if loc, ok := p.uniforms[u.Name]; ok {
			be.driver.Uniform1i(loc, int32(u.Binding))
		}
	}
	be.current = p
}

// CheckForRebuild rebuilds every program with a source file that changed on
// disk since the last check. A program that no longer builds keeps running
// with its previous version. Returns the names that were rebuilt.
func (be *Backend) CheckForRebuild(am *assets.AssetManager) []string {
	// Changed clears the flag, so ask once per file even when a library is
	// shared between programs.
	changed := make(map[string]bool)
	check := func(file string) bool {
		path := be.resources.Path(file)
		c, seen := changed[path]
		if !seen {
			c = am.Changed(path)
			changed[path] = c
		}
		return c
	}

	var rebuilt []string
	for _, name := range be.resources.ShaderNames() {
		old, ok := be.programs[name]
		if !ok {
			continue
		}
		recompile := false
		for _, f := range old.spec.LibraryFiles {
			if check(f) {
				recompile = true
			}
		}
		for _, f := range old.spec.ShaderFiles {
			if check(f.Filename) {
				recompile = true
			}
		}
		if !recompile {
			continue
		}

		core.LogInfo("Recompiling %s", name)
		p, err := be.buildProgram(name)
		if err != nil {
			core.LogError("%s", err)
			continue
		}
		if be.current == old {
			be.current = nil
		}
		be.deleteProgram(old)
		be.programs[name] = p
		rebuilt = append(rebuilt, name)
	}
	return rebuilt
}
