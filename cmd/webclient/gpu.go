//go:build js && wasm

package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"syscall/js"

	"github.com/marben/fractal_explorer/gpu"
)

var errNoWebGPU = errors.New("WebGPU not available")

// WebGPU usage flags.
const (
	bufferUsageCopyDst = 0x0008
	bufferUsageUniform = 0x0040
)

// gpuRenderer draws the server's uniform blocks with the WGSL shader on the
// gpu canvas. init runs in the background; until it succeeds render fails and
// the client asks the server for cpu frames.
type gpuRenderer struct {
	origin string

	mu       sync.Mutex
	ready    bool
	err      error
	device   js.Value
	context  js.Value
	pipeline js.Value
	uniforms js.Value
	bind     js.Value
}

func newGPURenderer(origin string) *gpuRenderer {
	return &gpuRenderer{origin: origin, err: errNoWebGPU}
}

// await blocks the calling goroutine until p settles.
func await(p js.Value) (js.Value, error) {
	done := make(chan js.Value, 1)
	failed := make(chan error, 1)
	then := js.FuncOf(func(_ js.Value, args []js.Value) any {
		done <- args[0]
		return nil
	})
	catch := js.FuncOf(func(_ js.Value, args []js.Value) any {
		failed <- errors.New(args[0].Call("toString").String())
		return nil
	})
	defer then.Release()
	defer catch.Release()

	p.Call("then", then, catch)
	select {
	case v := <-done:
		return v, nil
	case err := <-failed:
		return js.Undefined(), err
	}
}

func (g *gpuRenderer) fail(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
	logScreenf("WebGPU disabled: %v", err)
}

func (g *gpuRenderer) init(width, height int) {
	navGPU := js.Global().Get("navigator").Get("gpu")
	if !navGPU.Truthy() {
		g.fail(errNoWebGPU)
		return
	}

	// Step 1: adapter and device
	adapter, err := await(navGPU.Call("requestAdapter", map[string]any{"powerPreference": "high-performance"}))
	if err != nil || adapter.IsNull() {
		g.fail(fmt.Errorf("%w: no adapter", errNoWebGPU))
		return
	}
	device, err := await(adapter.Call("requestDevice"))
	if err != nil || device.IsNull() {
		g.fail(fmt.Errorf("%w: no device", errNoWebGPU))
		return
	}

	// Step 2: the shader, as served by the server
	resp, err := http.Get(g.origin + "/shader.wgsl")
	if err != nil {
		g.fail(fmt.Errorf("fetch shader: %w", err))
		return
	}
	code, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		g.fail(fmt.Errorf("fetch shader: %w", err))
		return
	}

	// Step 3: canvas, pipeline and the uniform buffer at group 0, binding 0
	format := navGPU.Call("getPreferredCanvasFormat")
	ctx := element(gpuCanvasID).Call("getContext", "webgpu")
	ctx.Call("configure", map[string]any{"device": device, "format": format, "alphaMode": "opaque"})

	module := device.Call("createShaderModule", map[string]any{"code": string(code)})
	pipeline := device.Call("createRenderPipeline", map[string]any{
		"layout":    "auto",
		"vertex":    map[string]any{"module": module, "entryPoint": "vs_main"},
		"fragment":  map[string]any{"module": module, "entryPoint": "fs_main", "targets": []any{map[string]any{"format": format}}},
		"primitive": map[string]any{"topology": "triangle-list"},
	})
	uniforms := device.Call("createBuffer", map[string]any{
		"size":  gpu.UniformSize,
		"usage": bufferUsageUniform | bufferUsageCopyDst,
	})
	bind := device.Call("createBindGroup", map[string]any{
		"layout":  pipeline.Call("getBindGroupLayout", 0),
		"entries": []any{map[string]any{"binding": 0, "resource": map[string]any{"buffer": uniforms}}},
	})

	g.mu.Lock()
	g.device, g.context, g.pipeline, g.uniforms, g.bind = device, ctx, pipeline, uniforms, bind
	g.ready, g.err = true, nil
	g.mu.Unlock()
	logScreenf("WebGPU ready (%dx%d).", width, height)
}

// available reports whether init succeeded.
func (g *gpuRenderer) available() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// render draws one frame from a packed uniform block.
func (g *gpuRenderer) render(block []byte, width, height int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.ready {
		return g.err
	}
	if len(block) != gpu.UniformSize {
		return fmt.Errorf("uniform block has %d bytes, want %d", len(block), gpu.UniformSize)
	}

	canvas := element(gpuCanvasID)
	if canvas.Get("width").Int() != width || canvas.Get("height").Int() != height {
		canvas.Set("width", width)
		canvas.Set("height", height)
	}

	data := js.Global().Get("Uint8Array").New(len(block))
	js.CopyBytesToJS(data, block)
	queue := g.device.Get("queue")
	queue.Call("writeBuffer", g.uniforms, 0, data)

	encoder := g.device.Call("createCommandEncoder")
	pass := encoder.Call("beginRenderPass", map[string]any{
		"colorAttachments": []any{map[string]any{
			"view":       g.context.Call("getCurrentTexture").Call("createView"),
			"loadOp":     "clear",
			"storeOp":    "store",
			"clearValue": map[string]any{"r": 0, "g": 0, "b": 0, "a": 1},
		}},
	})
	pass.Call("setPipeline", g.pipeline)
	pass.Call("setBindGroup", 0, g.bind)
	pass.Call("draw", 3)
	pass.Call("end")
	queue.Call("submit", []any{encoder.Call("finish")})
	return nil
}
