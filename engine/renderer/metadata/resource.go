package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/twinrender/engine/core"
)

// ResourceTable is the on-disk form of the shader and uniform block tables.
type ResourceTable struct {
	UniformBlocks []UniformBlockSpec `toml:"uniform_block"`
	Shaders       []ShaderSpec       `toml:"shader"`
}

/**
 * @brief Keyed lookup of shader and uniform block specifications. Both
 * backends read it before the first frame to lay out uniform buffers, vertex
 * inputs and descriptor bindings. Reflection data updates it in place.
 */
type ResourceManager struct {
	mu sync.RWMutex
	// Directory shader sources and build outputs are resolved against.
	Dir           string
	uniformBlocks map[string]*UniformBlockSpec
	shaders       map[string]*ShaderSpec
}

func NewResourceManager(dir string, blocks []UniformBlockSpec, shaders []ShaderSpec) (*ResourceManager, error) {
	rm := &ResourceManager{
		Dir:           dir,
		uniformBlocks: make(map[string]*UniformBlockSpec, len(blocks)),
		shaders:       make(map[string]*ShaderSpec, len(shaders)),
	}
	for i := range blocks {
		b := blocks[i].clone()
		rm.uniformBlocks[b.Name] = &b
	}
	for i := range shaders {
		s := shaders[i].clone()
		rm.shaders[s.Name] = &s
	}
	if err := rm.validate(); err != nil {
		return nil, err
	}
	return rm, nil
}

// LoadResourceTable reads a TOML resource table. Shader paths inside it are
// resolved against shaderDir.
func LoadResourceTable(path, shaderDir string) (*ResourceManager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseResourceTable(data, shaderDir)
}

func ParseResourceTable(data []byte, shaderDir string) (*ResourceManager, error) {
	var table ResourceTable
	if err := toml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("%w: resource table: %s", core.ErrInvalidConfig, err)
	}
	return NewResourceManager(shaderDir, table.UniformBlocks, table.Shaders)
}

// A shader referencing a block nobody declared can never be bound, so the
// table is rejected as a whole.
func (rm *ResourceManager) validate() error {
	for _, s := range rm.shaders {
		if s.Name == "" {
			return fmt.Errorf("%w: shader without a name", core.ErrInvalidConfig)
		}
		if len(s.ShaderFiles) == 0 {
			return fmt.Errorf("%w: shader %s has no source files", core.ErrInvalidConfig, s.Name)
		}
		if len(s.Attributes) != 0 && len(s.Attributes) != len(s.VertexLayout.AttributeSizes()) {
			return fmt.Errorf("%w: shader %s names %d attributes, layout %s has %d",
				core.ErrInvalidConfig, s.Name, len(s.Attributes), s.VertexLayout, len(s.VertexLayout.AttributeSizes()))
		}
		for _, name := range s.UniformBlockNames {
			if _, ok := rm.uniformBlocks[name]; !ok {
				return fmt.Errorf("%w: %s referenced by shader %s", core.ErrUnknownUniformBlock, name, s.Name)
			}
		}
	}
	return nil
}

// Path resolves a file named in the table.
func (rm *ResourceManager) Path(file string) string {
	if file == "" || filepath.IsAbs(file) || rm.Dir == "" {
		return file
	}
	return filepath.Join(rm.Dir, file)
}

// ShaderSpec returns a copy of the named shader specification.
func (rm *ResourceManager) ShaderSpec(name string) (ShaderSpec, error) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	s, ok := rm.shaders[name]
	if !ok {
		return ShaderSpec{}, fmt.Errorf("%w: %s", core.ErrUnknownShader, name)
	}
	return s.clone(), nil
}

// UniformBlock returns a copy of the named uniform block specification.
func (rm *ResourceManager) UniformBlock(name string) (UniformBlockSpec, error) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	b, ok := rm.uniformBlocks[name]
	if !ok {
		return UniformBlockSpec{}, fmt.Errorf("%w: %s", core.ErrUnknownUniformBlock, name)
	}
	return b.clone(), nil
}

// ShaderNames returns every shader name, sorted so setup order is stable.
func (rm *ResourceManager) ShaderNames() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	names := make([]string, 0, len(rm.shaders))
	for n := range rm.shaders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// UniformBlockNames returns every uniform block name, sorted.
func (rm *ResourceManager) UniformBlockNames() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	names := make([]string, 0, len(rm.uniformBlocks))
	for n := range rm.uniformBlocks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
