//go:build js && wasm

// webclient is the WASM browser client of the fractal explorer.
// It sends the user's pan, zoom and settings changes to the server and draws
// the progressively refined frames it gets back. In gpu mode the server sends
// uniform blocks instead and the page evaluates the WGSL shader with WebGPU.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"syscall/js"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/marben/fractal_explorer/session"
	"github.com/marben/fractal_explorer/wire"
)

// main is the entry point for the WASM web client.
func main() {
	logScreenf("Starting WASM web client...")
	ctx := context.Background()

	// Step 1: Determine server address for WebSocket connection
	loc := js.Global().Get("window").Get("location")
	host := loc.Get("host").String()
	proto := "ws"
	if loc.Get("protocol").String() == "https:" {
		proto = "wss"
	}
	origin := loc.Get("origin").String()
	websocketUrl := proto + "://" + host + "/ws"

	// Step 2: Connect to server via WebSocket
	logScreenf("Connecting to fractal server at %s...", websocketUrl)
	conn, _, err := websocket.Dial(ctx, websocketUrl, nil)
	if err != nil {
		logFatalf("Failed to connect: %v", err)
	}
	conn.SetReadLimit(64 << 20)
	logScreenf("WebSocket connected.")

	// Step 3: Commands from the page are written by one goroutine
	cmds := make(chan wire.Command, 32)
	go func() {
		for c := range cmds {
			if err := wsjson.Write(ctx, conn, c); err != nil {
				logFatalf("send %s: %v", c.Op, err)
			}
		}
	}()

	// Step 4: Canvas size and the WebGPU renderer
	width, height := canvasSize()
	initCanvas(width, height, "#3a3a6e")
	cmds <- wire.Command{Op: wire.OpResize, Width: width, Height: height}
	gpu := newGPURenderer(origin)
	go gpu.init(width, height)

	// Step 5: Wire the controls
	ui := &controls{cmds: cmds, gpu: gpu, origin: origin}
	ui.bind()
	ui.refreshLocations()

	// Step 6: Draw what the server sends
	logScreenf("Waiting for frames...")
	if err := readLoop(ctx, conn, ui); err != nil {
		logFatalf("readLoop: %v", err)
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, ui *controls) error {
	for {
		typ, b, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ == websocket.MessageBinary {
			f, err := wire.DecodeFrame(b)
			if err != nil {
				return err
			}
			showCanvas(false)
			displayImage(f.Image)
			hudSetFrame(f.Token, f.GridStep)
			continue
		}

		var ev wire.Event
		if err := json.Unmarshal(b, &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		switch ev.Kind {
		case wire.KindStatus:
			hudSetStatus(ev)
		case wire.KindUniforms:
			if err := ui.gpu.render(ev.Uniforms, ev.Width, ev.Height); err != nil {
				logScreenf("WebGPU: %v, back to cpu", err)
				setChecked("gpu", false)
				ui.send(wire.Command{Op: wire.OpBackend, Backend: session.CPU.String()})
				continue
			}
			showCanvas(true)
		case wire.KindSaved:
			logScreenf("Saved %q", ev.Location.Name)
			ui.refreshLocations()
		case wire.KindError:
			logScreenf("%s: %s", ev.Op, ev.Message)
		}
	}
}

// logScreenf appends a formatted message to the log element in the DOM,
func logScreenf(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)

	doc := js.Global().Get("document")
	logElem := doc.Call("getElementById", "log")
	logElem.Set("textContent", logElem.Get("textContent").String()+msg+"\n")
}

// logFatalf logs a fatal error to the log window and terminates the program.
func logFatalf(format string, a ...any) {
	logScreenf("FATAL: "+format, a...)
	log.Fatalf(format, a...)
}

func setText(id string, v any) {
	js.Global().Get("document").Call("getElementById", id).Set("textContent", v)
}

// hudSetStatus shows the last status event of the session.
func hudSetStatus(ev wire.Event) {
	setText("status", ev.Status)
	switch session.StatusCode(ev.Status) {
	case session.StatusGPUUnavailable, session.StatusZoomCapped, session.StatusWorkerUnavailable, session.StatusFailed:
		logScreenf("%s: %s", ev.Status, ev.Message)
	}
	if session.StatusCode(ev.Status) == session.StatusGPUUnavailable {
		setChecked("gpu", false)
	}
}

// hudSetFrame shows which epoch and pass is on the canvas.
func hudSetFrame(token uint64, gridStep int) {
	setText("token", token)
	setText("gridStep", gridStep)
}
