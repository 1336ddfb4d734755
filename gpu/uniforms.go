package gpu

import (
	"encoding/binary"
	"math"

	fractal "github.com/marben/fractal_explorer"
)

// UniformSize is the byte size of the WGSL Params struct.
const UniformSize = 48

// Byte offsets inside the uniform block.
const (
	offCenter      = 0
	offScale       = 8
	offAspect      = 12
	offJulia       = 16
	offColorOffset = 24
	offMaxIter     = 28
	offScheme      = 32
	offType        = 36
	offWidth       = 40
	offHeight      = 44
)

// Pack encodes u as the little-endian uniform block read by the WGSL shader.
func Pack(u fractal.Uniforms) []byte {
	b := make([]byte, UniformSize)
	putF32 := func(off int, v float64) {
		binary.LittleEndian.PutUint32(b[off:], math.Float32bits(float32(v)))
	}
	putU32 := func(off int, v int) {
		binary.LittleEndian.PutUint32(b[off:], uint32(v))
	}
	putF32(offCenter, u.CenterX)
	putF32(offCenter+4, u.CenterY)
	putF32(offScale, u.Scale)
	putF32(offAspect, u.Aspect)
	putF32(offJulia, real(u.JuliaC))
	putF32(offJulia+4, imag(u.JuliaC))
	putF32(offColorOffset, u.ColorOffset)
	putU32(offMaxIter, u.MaxIter)
	putU32(offScheme, u.ColorScheme)
	putU32(offType, int(u.FractalType))
	putF32(offWidth, float64(u.Width))
	putF32(offHeight, float64(u.Height))
	return b
}

// KageUniforms returns the uniform map for ebiten's DrawRectShaderOptions.
func KageUniforms(u fractal.Uniforms) map[string]any {
	return map[string]any{
		"Center":      []float32{float32(u.CenterX), float32(u.CenterY)},
		"Scale":       float32(u.Scale),
		"Size":        []float32{float32(u.Width), float32(u.Height)},
		"Julia":       []float32{float32(real(u.JuliaC)), float32(imag(u.JuliaC))},
		"ColorOffset": float32(u.ColorOffset),
		"MaxIter":     float32(u.MaxIter),
		"Scheme":      float32(u.ColorScheme),
		"FractalType": float32(u.FractalType),
	}
}
