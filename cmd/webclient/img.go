//go:build js && wasm

package main

import (
	"image"
	"syscall/js"
)

const (
	cpuCanvasID = "myCanvas"
	gpuCanvasID = "gpuCanvas"
)

func element(id string) js.Value {
	return js.Global().Get("document").Call("getElementById", id)
}

// canvasSize is the css size of the view holding both canvases; one of them
// is always hidden.
func canvasSize() (int, int) {
	view := element("view")
	w, h := view.Get("clientWidth").Int(), view.Get("clientHeight").Int()
	if w <= 0 || h <= 0 {
		return 800, 600
	}
	return w, h
}

// displays image on the site
func displayImage(img *image.RGBA) {
	// 1. Get the Canvas element and its 2D context
	canvas := element(cpuCanvasID)
	ctx := canvas.Call("getContext", "2d")

	width := img.Rect.Dx()
	height := img.Rect.Dy()
	if canvas.Get("width").Int() != width || canvas.Get("height").Int() != height {
		canvas.Set("width", width)
		canvas.Set("height", height)
	}

	// 2. Create a JS TypedArray (Uint8ClampedArray) to hold the pixel data
	// The length is width * height * 4 (RGBA)
	jsData := js.Global().Get("Uint8ClampedArray").New(len(img.Pix))

	// 3. Copy the Go byte slice into the JS TypedArray
	js.CopyBytesToJS(jsData, img.Pix)

	// 4. Create ImageData and put it on the canvas
	imageData := js.Global().Get("ImageData").New(jsData, width, height)
	ctx.Call("putImageData", imageData, 0, 0)
}

func initCanvas(width, height int, color string) {
	for _, id := range []string{cpuCanvasID, gpuCanvasID} {
		canvas := element(id)
		canvas.Set("width", width)
		canvas.Set("height", height)
	}

	ctx := element(cpuCanvasID).Call("getContext", "2d")
	ctx.Set("fillStyle", color)
	ctx.Call("fillRect", 0, 0, width, height)
}

// showCanvas switches between the 2D canvas and the WebGPU canvas.
func showCanvas(gpu bool) {
	cpuDisplay, gpuDisplay := "block", "none"
	if gpu {
		cpuDisplay, gpuDisplay = "none", "block"
	}
	element(cpuCanvasID).Get("style").Set("display", cpuDisplay)
	element(gpuCanvasID).Get("style").Set("display", gpuDisplay)
}
