package app

// Shaders live in shaders/ at the repository root, and the default settings
// name them relative to it. Regenerating needs glslc from the Vulkan SDK.
//go:generate glslc ../../shaders/simple_shader.vert -o ../../shaders/simple_shader.vert.spv
//go:generate glslc ../../shaders/simple_shader.frag -o ../../shaders/simple_shader.frag.spv

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// LoadShader reads a SPIR-V binary. Errors name the absolute path so a
// wrong working directory is obvious.
func LoadShader(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve shader path %s", path)
	}
	code, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", abs)
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Errorf("shader %s: size %d is not a whole number of SPIR-V words", abs, len(code))
	}
	return code, nil
}
