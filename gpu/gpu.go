// Package gpu mirrors the escape-time evaluator on the GPU.
//
// Two shader sources implement the same contract as fractal.EvaluatePixel:
// a WGSL fragment shader for WebGPU (validated by compiling it to SPIR-V with
// naga) and a Kage shader for the desktop viewer. Both read the same uniform
// set and use float32 arithmetic; EvaluatePixel32 reproduces that arithmetic
// on the CPU for tests and for the precision limit.
package gpu

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/naga"

	fractal "github.com/marben/fractal_explorer"
)

var ErrUnavailable = errors.New("gpu backend unavailable")

//go:embed shaders/fractal.wgsl
var wgslSource string

//go:embed shaders/fractal.kage
var kageSource []byte

// WGSL returns the WebGPU shader source. Entry points are vs_main and fs_main;
// the uniform block is bound at group 0, binding 0.
func WGSL() string {
	return wgslSource
}

// Kage returns the ebiten shader source.
func Kage() []byte {
	return kageSource
}

var (
	compileOnce sync.Once
	spirv       []byte
	compileErr  error
)

// Compile translates the WGSL shader to SPIR-V. The result is computed once;
// an error means the GPU backend must not be offered.
func Compile() ([]byte, error) {
	compileOnce.Do(func() {
		spirv, compileErr = naga.Compile(wgslSource)
		if compileErr != nil {
			compileErr = fmt.Errorf("%w: compile shader: %w", ErrUnavailable, compileErr)
			fractal.Logger().Warn("shader compilation failed", "err", compileErr)
			return
		}
		fractal.Logger().Debug("shader compiled", "spirvBytes", len(spirv))
	})
	return spirv, compileErr
}

// SPIRVWords converts the little-endian SPIR-V byte stream into 32-bit words.
func SPIRVWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words
}
