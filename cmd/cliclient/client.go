package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	fractal "github.com/marben/fractal_explorer"
	"github.com/marben/fractal_explorer/session"
	"github.com/marben/fractal_explorer/wire"
)

var ErrRejected = errors.New("server rejected the request")

// request is the image the client asks for.
type request struct {
	View    fractal.View
	Type    fractal.Type
	Julia   complex128
	MaxIter int
	Width   int
	Height  int
	Scheme  string
}

// commands lists what is sent to the server. Resize goes last: it starts an
// epoch immediately, with every setting sent before it in effect.
func (r request) commands() []wire.Command {
	julia := [2]float64{real(r.Julia), imag(r.Julia)}
	view := r.View
	return []wire.Command{
		{Op: wire.OpView, View: &view},
		{Op: wire.OpType, Type: r.Type.String()},
		{Op: wire.OpJulia, Julia: &julia},
		{Op: wire.OpScheme, Scheme: r.Scheme},
		{Op: wire.OpMaxIter, MaxIter: r.MaxIter},
		{Op: wire.OpResize, Width: r.Width, Height: r.Height},
	}
}

// fetch sends req and returns the frame of the epoch started by the last
// command once that epoch is complete. onPass is called for every pass.
func fetch(ctx context.Context, addr string, req request, onPass func(gridStep int)) (*image.RGBA, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(int64(wire.FrameHeaderSize + 4*req.Width*req.Height + 1024))

	cmds := req.commands()
	for _, c := range cmds {
		if err := wsjson.Write(ctx, conn, c); err != nil {
			return nil, fmt.Errorf("send %s: %w", c.Op, err)
		}
	}
	img, err := collect(ctx, conn, cmds[len(cmds)-1].Op, onPass)
	if err != nil {
		return nil, err
	}
	conn.Close(websocket.StatusNormalClosure, "")
	return img, nil
}

// collect reads server messages. The epoch of interest is the last one
// started before the ack of lastOp. Its passes may be reported before the ack
// arrives, so every epoch is tracked until the target is known.
func collect(ctx context.Context, conn *websocket.Conn, lastOp wire.Op, onPass func(int)) (*image.RGBA, error) {
	var (
		started, target uint64
		complete        = map[uint64]bool{}
		final           = map[uint64]*image.RGBA{}
	)
	for {
		typ, b, err := conn.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}

		if typ == websocket.MessageBinary {
			f, err := wire.DecodeFrame(b)
			if err != nil {
				return nil, err
			}
			if f.GridStep == 1 && (target == 0 || f.Token == target) {
				final[f.Token] = f.Image
			}
		} else {
			var ev wire.Event
			if err := json.Unmarshal(b, &ev); err != nil {
				return nil, fmt.Errorf("decode event: %w", err)
			}
			switch {
			case ev.Kind == wire.KindError:
				return nil, fmt.Errorf("%w: %s: %s", ErrRejected, ev.Op, ev.Message)
			case ev.Kind == wire.KindAck && ev.Op == lastOp:
				target = started
			case ev.Kind != wire.KindStatus:
			case ev.Status == string(session.StatusEpochStarted):
				started = ev.Token
			case ev.Status == string(session.StatusWorkerUnavailable):
				return nil, fmt.Errorf("%w: %s", ErrRejected, ev.Message)
			case ev.Status == string(session.StatusFailed) && ev.Token == started:
				return nil, fmt.Errorf("%w: %s", ErrRejected, ev.Message)
			case ev.Status == string(session.StatusPass) && onPass != nil:
				onPass(ev.GridStep)
			case ev.Status == string(session.StatusEpochComplete):
				complete[ev.Token] = true
			}
		}

		if target != 0 && complete[target] && final[target] != nil {
			return final[target], nil
		}
	}
}
