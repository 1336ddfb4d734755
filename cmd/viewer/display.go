package main

import (
	"fmt"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	fractal "github.com/marben/fractal_explorer"
	"github.com/marben/fractal_explorer/gpu"
)

// kageDisplay is the gpu backend of the viewer. The session publishes uniform
// sets from its goroutine; the ebiten draw loop evaluates the Kage shader with
// the latest one.
type kageDisplay struct {
	src []byte

	once   sync.Once
	shader *ebiten.Shader
	err    error

	mu  sync.Mutex
	u   fractal.Uniforms
	has bool
}

var _ fractal.GPUDisplay = (*kageDisplay)(nil)

func newKageDisplay(src []byte) *kageDisplay {
	return &kageDisplay{src: src}
}

func (k *kageDisplay) compile() error {
	k.once.Do(func() {
		k.shader, k.err = ebiten.NewShader(k.src)
		if k.err != nil {
			k.err = fmt.Errorf("%w: kage: %w", gpu.ErrUnavailable, k.err)
		}
	})
	return k.err
}

// RenderGPU implements fractal.GPUDisplay.
func (k *kageDisplay) RenderGPU(u fractal.Uniforms) error {
	if err := k.compile(); err != nil {
		return err
	}
	k.mu.Lock()
	k.u, k.has = u, true
	k.mu.Unlock()
	return nil
}

// draw renders the last published uniform set. It reports false when there
// is nothing to draw yet.
func (k *kageDisplay) draw(screen *ebiten.Image) bool {
	k.mu.Lock()
	u, has := k.u, k.has
	k.mu.Unlock()
	if !has || k.shader == nil {
		return false
	}
	screen.DrawRectShader(u.Width, u.Height, k.shader, &ebiten.DrawRectShaderOptions{
		Uniforms: gpu.KageUniforms(u),
	})
	return true
}
