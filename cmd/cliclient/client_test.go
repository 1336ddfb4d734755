package main

import (
	"context"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	fractal "github.com/marben/fractal_explorer"
	"github.com/marben/fractal_explorer/session"
	"github.com/marben/fractal_explorer/wire"
)

// fakeServer reads every command of a request and answers with script.
func fakeServer(t *testing.T, script func(ctx context.Context, c *websocket.Conn)) string {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		defer c.CloseNow()
		for {
			var cmd wire.Command
			if err := wsjson.Read(r.Context(), c, &cmd); err != nil {
				t.Error(err)
				return
			}
			if cmd.Op == wire.OpResize {
				break
			}
		}
		script(r.Context(), c)
		// Wait for the client to hang up.
		c.Read(r.Context())
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func status(code session.StatusCode, token uint64, step int) wire.Event {
	return wire.Event{Kind: wire.KindStatus, Status: string(code), Token: token, GridStep: step}
}

func frame(token uint64, step int, c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for i := range img.Pix {
		img.Pix[i] = [4]uint8{c.R, c.G, c.B, c.A}[i%4]
	}
	return wire.AppendFrame(nil, wire.Frame{Token: token, GridStep: step, Image: img})
}

func TestFetchWaitsForTargetEpoch(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	blue := color.RGBA{0, 0, 255, 255}
	addr := fakeServer(t, func(ctx context.Context, c *websocket.Conn) {
		// The initial epoch of the session completes first.
		wsjson.Write(ctx, c, status(session.StatusEpochStarted, 1, 8))
		wsjson.Write(ctx, c, status(session.StatusEpochComplete, 1, 1))
		c.Write(ctx, websocket.MessageBinary, frame(1, 1, red))
		// The requested epoch finishes before its ack arrives.
		wsjson.Write(ctx, c, status(session.StatusEpochStarted, 2, 8))
		wsjson.Write(ctx, c, status(session.StatusPass, 2, 8))
		c.Write(ctx, websocket.MessageBinary, frame(2, 1, blue))
		wsjson.Write(ctx, c, status(session.StatusEpochComplete, 2, 1))
		wsjson.Write(ctx, c, wire.Event{Kind: wire.KindAck, Op: wire.OpResize})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var passes []int
	img, err := fetch(ctx, addr, request{View: fractal.DefaultView, MaxIter: 10, Width: 4, Height: 3, Scheme: "rainbow"},
		func(step int) { passes = append(passes, step) })
	if err != nil {
		t.Fatal(err)
	}
	if got := img.RGBAAt(1, 1); got != blue {
		t.Errorf("pixel = %v, want the frame of epoch 2", got)
	}
	if len(passes) != 1 || passes[0] != 8 {
		t.Errorf("passes = %v", passes)
	}
}

func TestFetchRejected(t *testing.T) {
	addr := fakeServer(t, func(ctx context.Context, c *websocket.Conn) {
		wsjson.Write(ctx, c, wire.Event{Kind: wire.KindError, Op: wire.OpType, Message: "unknown fractal type"})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := fetch(ctx, addr, request{View: fractal.DefaultView, MaxIter: 10, Width: 4, Height: 3}, nil)
	if !errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
}

func TestCommandsEndWithResize(t *testing.T) {
	cmds := request{View: fractal.DefaultView, Type: fractal.Julia, MaxIter: 10, Width: 4, Height: 3, Scheme: "fire"}.commands()
	for _, c := range cmds {
		if err := c.Validate(); err != nil {
			t.Errorf("%s: %v", c.Op, err)
		}
	}
	if last := cmds[len(cmds)-1]; last.Op != wire.OpResize || last.Width != 4 || last.Height != 3 {
		t.Errorf("last command = %+v", last)
	}
}
