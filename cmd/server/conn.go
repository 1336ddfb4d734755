package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	fractal "github.com/marben/fractal_explorer"
	"github.com/marben/fractal_explorer/gpu"
	"github.com/marben/fractal_explorer/render"
	"github.com/marben/fractal_explorer/session"
	"github.com/marben/fractal_explorer/wire"
)

// client is one websocket connection: a session of its own, a canvas the
// session draws to and the goroutines moving commands in and frames out.
type client struct {
	srv    *server
	conn   *websocket.Conn
	remote string
	canvas *render.Canvas
	events chan wire.Event
	dirty  chan struct{}

	// Labels of the frame on the canvas, set from status events.
	m        sync.Mutex
	token    uint64
	gridStep int
}

func newClient(srv *server, conn *websocket.Conn, remote string) *client {
	return &client{
		srv:    srv,
		conn:   conn,
		remote: remote,
		canvas: render.NewCanvas(render.WithPreview(true)),
		events: make(chan wire.Event, 64),
		dirty:  make(chan struct{}, 1),
	}
}

// serve runs the connection until the peer goes away or ctx is done.
func (c *client) serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	w := c.srv.workers.spawn(ctx, c.remote)
	opts := []session.Option{
		session.WithDisplay((*frameDisplay)(c)),
		session.WithStatus(c.onStatus),
		session.WithDebounce(c.srv.cfg.debounce),
		session.WithFeatures(c.srv.features),
	}
	if c.srv.features.GPU {
		opts = append(opts, session.WithGPUDisplay((*uniformDisplay)(c)))
	}
	sess := session.New(w, c.srv.cfg.session, opts...)

	g.Go(func() error { return sess.Run(ctx) })
	g.Go(func() error { return c.writeLoop(ctx) })
	g.Go(func() error { return c.readLoop(ctx, sess) })
	return g.Wait()
}

func (c *client) readLoop(ctx context.Context, sess *session.Session) error {
	for {
		var cmd wire.Command
		if err := wsjson.Read(ctx, c.conn, &cmd); err != nil {
			return err
		}
		err := c.apply(ctx, sess, cmd)
		switch {
		case errors.Is(err, session.ErrClosed):
			return err
		case err != nil:
			log.Printf("%s: %s: %v", c.remote, cmd.Op, err)
			c.send(ctx, wire.Event{Kind: wire.KindError, Op: cmd.Op, Message: err.Error()})
		default:
			c.send(ctx, wire.Event{Kind: wire.KindAck, Op: cmd.Op})
		}
	}
}

func (c *client) apply(ctx context.Context, sess *session.Session, cmd wire.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	switch cmd.Op {
	case wire.OpView:
		return sess.SetView(ctx, *cmd.View)
	case wire.OpPan:
		return sess.Pan(ctx, cmd.DX, cmd.DY)
	case wire.OpZoom:
		return sess.Zoom(ctx, cmd.Factor, cmd.X, cmd.Y)
	case wire.OpLandmark:
		return sess.GoTo(ctx, cmd.Name)
	case wire.OpType:
		t, err := fractal.ParseType(cmd.Type)
		if err != nil {
			return err
		}
		return sess.SetType(ctx, t)
	case wire.OpJulia:
		return sess.SetJulia(ctx, complex(cmd.Julia[0], cmd.Julia[1]))
	case wire.OpMaxIter:
		return sess.SetMaxIter(ctx, cmd.MaxIter)
	case wire.OpResize:
		return sess.Resize(ctx, cmd.Width, cmd.Height)
	case wire.OpScheme:
		return sess.SetScheme(ctx, cmd.Scheme)
	case wire.OpBackend:
		b, err := session.ParseBackend(cmd.Backend)
		if err != nil {
			return err
		}
		return sess.SetBackend(ctx, b)
	case wire.OpCycle:
		return sess.SetColorCycle(ctx, cmd.On)
	case wire.OpSave:
		l, err := sess.Location(ctx, cmd.Name)
		if err != nil {
			return err
		}
		saved, err := c.srv.locations.Save(l)
		if err != nil {
			return err
		}
		c.send(ctx, wire.Event{Kind: wire.KindSaved, Location: &saved})
		return nil
	case wire.OpResume:
		id, err := uuid.Parse(cmd.ID)
		if err != nil {
			return fmt.Errorf("%w: id %q: %w", wire.ErrBadCommand, cmd.ID, err)
		}
		l, err := c.srv.locations.Get(id)
		if err != nil {
			return err
		}
		return sess.Resume(ctx, l)
	case wire.OpReset:
		return sess.Reset(ctx)
	}
	return fmt.Errorf("%w: %q", wire.ErrBadCommand, cmd.Op)
}

// writeLoop is the only writer of the connection.
func (c *client) writeLoop(ctx context.Context) error {
	var buf []byte
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case ev := <-c.events:
			if err := wsjson.Write(ctx, c.conn, ev); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
		case <-c.dirty:
			f, ok := c.frame()
			if !ok {
				continue
			}
			buf = wire.AppendFrame(buf[:0], f)
			if err := c.conn.Write(ctx, websocket.MessageBinary, buf); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
		}
	}
}

// frame snapshots the canvas. Labels are read first: a pass label is only set
// after the canvas holds that pass.
func (c *client) frame() (wire.Frame, bool) {
	c.m.Lock()
	token, step := c.token, c.gridStep
	c.m.Unlock()

	img := c.canvas.Snapshot()
	if img == nil {
		return wire.Frame{}, false
	}
	return wire.Frame{Token: token, GridStep: step, Image: img}, true
}

func (c *client) setLabels(token uint64, gridStep int) {
	c.m.Lock()
	c.token, c.gridStep = token, gridStep
	c.m.Unlock()
}

func (c *client) markDirty() {
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

// send queues an event from a command goroutine.
func (c *client) send(ctx context.Context, ev wire.Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

// onStatus runs on the session goroutine and must not block.
func (c *client) onStatus(st session.Status) {
	switch st.Code {
	case session.StatusEpochStarted:
		// The canvas still holds the previous epoch; a frame taken now must
		// not claim to be that epoch's final pass.
		c.setLabels(st.Token, st.GridStep)
	case session.StatusPass, session.StatusEpochComplete:
		c.setLabels(st.Token, st.GridStep)
		c.markDirty()
	}
	ev := wire.Event{Kind: wire.KindStatus, Status: string(st.Code), Token: st.Token, GridStep: st.GridStep, Message: st.Message}
	select {
	case c.events <- ev:
	default:
		log.Printf("%s: event queue full, dropped %s", c.remote, st.Code)
	}
}

// frameDisplay is the CPU display of a client: the canvas plus a frame push.
type frameDisplay client

func (d *frameDisplay) Render(buf *fractal.ResultBuffer, maxIter int, scheme string, offset float64) error {
	if err := d.canvas.Render(buf, maxIter, scheme, offset); err != nil {
		return err
	}
	(*client)(d).markDirty()
	return nil
}

func (d *frameDisplay) SetCaption(s string) { d.canvas.SetCaption(s) }

func (d *frameDisplay) ShowError(err error) {
	d.canvas.ShowError(err)
	(*client)(d).markDirty()
}

// uniformDisplay forwards GPU frames to the browser, which evaluates the
// shader served at /shader.wgsl.
type uniformDisplay client

func (d *uniformDisplay) RenderGPU(u fractal.Uniforms) error {
	ev := wire.Event{Kind: wire.KindUniforms, Uniforms: gpu.Pack(u), Width: u.Width, Height: u.Height}
	select {
	case d.events <- ev:
		return nil
	default:
		return fmt.Errorf("%w: client %s is not keeping up", gpu.ErrUnavailable, d.remote)
	}
}
