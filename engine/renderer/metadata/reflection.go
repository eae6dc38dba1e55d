package metadata

import (
	"strconv"
	"strings"

	"github.com/spaghettifunk/twinrender/engine/assets"
	"github.com/spaghettifunk/twinrender/engine/core"
)

type reflectionSection int

const (
	sectionNone reflectionSection = iota
	sectionUniforms
	sectionUniformBlocks
	sectionVertexAttributes
)

// reflection is what one shader's glslang reflection dumps say about it.
type reflection struct {
	offsets         map[string]int
	blockSizes      map[string]int
	blockBindings   map[string]uint32
	uniformBindings map[string]uint32
}

func newReflection() *reflection {
	return &reflection{
		offsets:         make(map[string]int),
		blockSizes:      make(map[string]int),
		blockBindings:   make(map[string]uint32),
		uniformBindings: make(map[string]uint32),
	}
}

// parse accumulates one reflection dump. Lines look like
//
//	name: offset 0, type 8b5c, size 1, index 0, binding -1, stages 1
//
// and a value of -1 means the field does not apply.
func (r *reflection) parse(text string) {
	section := sectionNone
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.Contains(line, "Uniform reflection:"):
			section = sectionUniforms
			continue
		case strings.Contains(line, "Uniform block reflection:"):
			section = sectionUniformBlocks
			continue
		case strings.Contains(line, "Vertex attribute reflection:"):
			section = sectionVertexAttributes
			continue
		}

		name, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		for _, field := range strings.Split(rest, ",") {
			bits := strings.Fields(field)
			if len(bits) < 2 || bits[1] == "-1" {
				continue
			}
			key, value := bits[0], bits[1]
			switch {
			case section == sectionUniforms && key == "offset":
				r.offsets[name] = parseReflectionInt(value)
			case section == sectionUniforms && key == "binding":
				r.uniformBindings[name] = uint32(parseReflectionInt(value))
			case section == sectionUniformBlocks && key == "size":
				r.blockSizes[name] = parseReflectionInt(value)
			case section == sectionUniformBlocks && key == "binding":
				r.blockBindings[name] = uint32(parseReflectionInt(value))
			}
		}
	}
}

func parseReflectionInt(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		core.LogWarn("unable to parse reflection value '%s'", s)
		return 0
	}
	return v
}

/**
 * @brief Reads the reflection dumps of every shader and updates uniform
 * offsets, uniform block sizes and binding points, and the binding points of
 * opaque uniforms. Updates are idempotent so blocks shared between shaders
 * end up with the same values.
 */
func (rm *ResourceManager) ReadReflection(debug bool) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	for _, shader := range rm.shaders {
		r := newReflection()
		for _, file := range shader.ShaderFiles {
			if file.ReflectOut == "" {
				continue
			}
			if debug {
				core.LogDebug("reading %s", file.ReflectOut)
			}
			text, err := assets.ReadText(rm.Path(file.ReflectOut))
			if err != nil {
				return err
			}
			r.parse(text)
		}
		rm.applyReflection(shader, r, debug)
	}
	return nil
}

func (rm *ResourceManager) applyReflection(shader *ShaderSpec, r *reflection, debug bool) {
	for _, blockName := range shader.UniformBlockNames {
		block := rm.uniformBlocks[blockName]

		for i := range block.Uniforms {
			u := &block.Uniforms[i]
			// Uniforms missing from the dump are unused by the shader.
			if offset, ok := r.offsets[u.Name]; ok {
				if debug {
					core.LogDebug("updating offset for %s to %d", u.Name, offset)
				}
				u.Offset = offset
			}
		}

		if binding, ok := r.blockBindings[blockName]; ok {
			if size, ok := r.blockSizes[blockName]; ok {
				block.Size = size
			}
			block.Binding = binding
			if debug {
				core.LogDebug("block %s has size %d and binding %d", blockName, block.Size, block.Binding)
			}
		}
	}

	for i := range shader.UniformSpecs {
		u := &shader.UniformSpecs[i]
		if binding, ok := r.uniformBindings[u.Name]; ok {
			if debug {
				core.LogDebug("updating binding point for uniform %s to %d", u.Name, binding)
			}
			u.Binding = binding
		}
	}
}
