//go:build js && wasm

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"syscall/js"
	"time"

	"github.com/marben/fractal_explorer/locations"
	"github.com/marben/fractal_explorer/session"
	"github.com/marben/fractal_explorer/wire"
)

// wheelZoom is the scale factor of one wheel notch.
const wheelZoom = 0.8

// resizeDelay coalesces the stream of window resize events into one command.
const resizeDelay = 150 * time.Millisecond

// controls turns DOM events into commands for the server.
type controls struct {
	cmds   chan<- wire.Command
	gpu    *gpuRenderer
	origin string

	dragging bool
	lastX    float64
	lastY    float64
	resize   *time.Timer
	// Listeners live as long as the page.
	funcs []js.Func
}

// send must not block: it runs inside js event callbacks.
func (c *controls) send(cmd wire.Command) {
	select {
	case c.cmds <- cmd:
	default:
		logScreenf("busy, dropped %s", cmd.Op)
	}
}

func (c *controls) on(target js.Value, event string, fn func(ev js.Value)) {
	f := js.FuncOf(func(_ js.Value, args []js.Value) any {
		fn(args[0])
		return nil
	})
	c.funcs = append(c.funcs, f)
	target.Call("addEventListener", event, f)
}

func value(id string) string {
	return element(id).Get("value").String()
}

func setChecked(id string, on bool) {
	element(id).Set("checked", on)
}

func (c *controls) bind() {
	for _, id := range []string{cpuCanvasID, gpuCanvasID} {
		canvas := element(id)
		c.on(canvas, "pointerdown", func(ev js.Value) {
			c.dragging = true
			c.lastX, c.lastY = ev.Get("offsetX").Float(), ev.Get("offsetY").Float()
		})
		c.on(canvas, "pointermove", func(ev js.Value) {
			if !c.dragging {
				return
			}
			x, y := ev.Get("offsetX").Float(), ev.Get("offsetY").Float()
			c.send(wire.Command{Op: wire.OpPan, DX: x - c.lastX, DY: y - c.lastY})
			c.lastX, c.lastY = x, y
		})
		c.on(canvas, "pointerup", func(js.Value) { c.dragging = false })
		c.on(canvas, "pointerleave", func(js.Value) { c.dragging = false })
		c.on(canvas, "wheel", func(ev js.Value) {
			ev.Call("preventDefault")
			factor := wheelZoom
			if ev.Get("deltaY").Float() > 0 {
				factor = 1 / wheelZoom
			}
			c.send(wire.Command{Op: wire.OpZoom, Factor: factor, X: ev.Get("offsetX").Float(), Y: ev.Get("offsetY").Float()})
		})
	}

	c.on(element("type"), "change", func(js.Value) {
		c.send(wire.Command{Op: wire.OpType, Type: value("type")})
	})
	c.on(element("scheme"), "change", func(js.Value) {
		c.send(wire.Command{Op: wire.OpScheme, Scheme: value("scheme")})
	})
	c.on(element("landmark"), "change", func(js.Value) {
		c.send(wire.Command{Op: wire.OpLandmark, Name: value("landmark")})
	})
	c.on(element("maxIter"), "change", func(js.Value) {
		n, err := strconv.Atoi(value("maxIter"))
		if err != nil {
			logScreenf("max iterations: %v", err)
			return
		}
		c.send(wire.Command{Op: wire.OpMaxIter, MaxIter: n})
	})
	julia := func(js.Value) {
		re, err1 := strconv.ParseFloat(value("juliaRe"), 64)
		im, err2 := strconv.ParseFloat(value("juliaIm"), 64)
		if err1 != nil || err2 != nil {
			logScreenf("julia constant: not a number")
			return
		}
		c.send(wire.Command{Op: wire.OpJulia, Julia: &[2]float64{re, im}})
	}
	c.on(element("juliaRe"), "change", julia)
	c.on(element("juliaIm"), "change", julia)

	c.on(element("gpu"), "change", func(ev js.Value) {
		on := ev.Get("target").Get("checked").Bool()
		b := session.CPU
		if on {
			if err := c.gpu.available(); err != nil {
				logScreenf("%v", err)
				setChecked("gpu", false)
				return
			}
			b = session.GPU
		}
		c.send(wire.Command{Op: wire.OpBackend, Backend: b.String()})
	})
	c.on(element("cycle"), "change", func(ev js.Value) {
		c.send(wire.Command{Op: wire.OpCycle, On: ev.Get("target").Get("checked").Bool()})
	})
	c.on(element("save"), "click", func(js.Value) {
		c.send(wire.Command{Op: wire.OpSave, Name: value("locationName")})
	})
	c.on(element("reset"), "click", func(js.Value) {
		setChecked("gpu", false)
		setChecked("cycle", false)
		c.send(wire.Command{Op: wire.OpReset})
	})
	c.on(js.Global().Get("window"), "resize", func(js.Value) {
		if c.resize != nil {
			c.resize.Stop()
		}
		c.resize = time.AfterFunc(resizeDelay, func() {
			w, h := canvasSize()
			c.send(wire.Command{Op: wire.OpResize, Width: w, Height: h})
		})
	})
}

// refreshLocations reloads the saved location list from the rest api.
// Fetching blocks, so it runs in its own goroutine.
func (c *controls) refreshLocations() {
	go func() {
		ls, err := fetchLocations(c.origin)
		if err != nil {
			logScreenf("locations: %v", err)
			return
		}
		list := element("locations")
		list.Set("innerHTML", "")
		doc := js.Global().Get("document")
		for _, l := range ls {
			btn := doc.Call("createElement", "button")
			btn.Set("textContent", fmt.Sprintf("%s (%s)", l.Name, l.Type))
			id := l.ID.String()
			c.on(btn, "click", func(js.Value) {
				c.send(wire.Command{Op: wire.OpResume, ID: id})
			})
			item := doc.Call("createElement", "li")
			item.Call("appendChild", btn)
			list.Call("appendChild", item)
		}
	}()
}

func fetchLocations(origin string) ([]locations.Location, error) {
	resp, err := http.Get(origin + "/api/locations?sort=newest")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET /api/locations: %s", resp.Status)
	}
	var ls []locations.Location
	if err := json.NewDecoder(resp.Body).Decode(&ls); err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}
	return ls, nil
}
