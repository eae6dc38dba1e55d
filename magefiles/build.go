//go:build mage

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/spaghettifunk/twinrender/engine/config"
	"github.com/spaghettifunk/twinrender/engine/renderer/metadata"
)

const configFile = "twinrender.toml"

type Build mg.Namespace

// Compiles the shaders whose sources changed to SPIR-V and writes their reflection dumps.
func (Build) Shaders() error {
	return buildShaders(true)
}

// Compiles every shader to SPIR-V, changed or not.
func (Build) ShadersAll() error {
	return buildShaders(false)
}

func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.Load(configFile)
}

func modTime(path string) time.Time {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

// buildShaders runs glslangValidator on every file of every shader in the
// resource table. Library sources are prepended the same way the OpenGL
// backend does it, so both backends compile identical GLSL. When
// conditionally is set, files older than both of their outputs are skipped.
func buildShaders(conditionally bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rm, err := metadata.LoadResourceTable(cfg.Resources.Table, cfg.Resources.ShaderDir)
	if err != nil {
		return err
	}

	failed := 0
	for _, name := range rm.ShaderNames() {
		spec, err := rm.ShaderSpec(name)
		if err != nil {
			return err
		}

		library := "#version 450 core\n\n"
		var newestLibrary time.Time
		for _, lib := range spec.LibraryFiles {
			src, err := os.ReadFile(rm.Path(lib))
			if err != nil {
				return err
			}
			library += string(src) + "\n#line 1\n"
			if t := modTime(rm.Path(lib)); t.After(newestLibrary) {
				newestLibrary = t
			}
		}

		for _, file := range spec.ShaderFiles {
			spirv, reflect := rm.Path(file.SpirvOut), rm.Path(file.ReflectOut)
			output := modTime(spirv)
			if t := modTime(reflect); t.Before(output) {
				output = t
			}
			input := modTime(rm.Path(file.Filename))
			if newestLibrary.After(input) {
				input = newestLibrary
			}
			if conditionally && !input.After(output) {
				fmt.Printf("Skipping %s, %s stage\n", name, file.Stage)
				continue
			}

			fmt.Printf("Compiling SPIR-V for %s, %s stage\n", name, file.Stage)
			if err := compileShaderFile(library, rm.Path(file.Filename), file.Stage.Extension(), spirv, reflect); err != nil {
				fmt.Println(err)
				failed++
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d shader files failed to compile", failed)
	}
	return nil
}

// compileShaderFile writes library+source to a temporary file named after
// the stage, which is how glslangValidator picks the stage, and keeps the
// reflection printed on stdout.
func compileShaderFile(library, source, extension, spirvOut, reflectOut string) error {
	src, err := os.ReadFile(source)
	if err != nil {
		return err
	}
	dir, err := os.MkdirTemp("", "twinrender-shader")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	temp := filepath.Join(dir, "temp."+extension)
	if err := os.WriteFile(temp, []byte(library+string(src)), 0o644); err != nil {
		return err
	}
	out, err := executeCmd("glslangValidator", withArgs("-V", "-q", "-o", spirvOut, temp))
	if err != nil {
		return err
	}
	return os.WriteFile(reflectOut, []byte(out), 0o644)
}
