// Package wire is the websocket protocol between the server and its clients.
//
// Text messages carry JSON: Commands from the client, Events from the server.
// Binary messages carry Frames, one rendered refinement pass each.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"

	fractal "github.com/marben/fractal_explorer"
	"github.com/marben/fractal_explorer/locations"
)

var (
	ErrBadCommand = errors.New("bad command")
	ErrShortFrame = errors.New("short frame")
)

// Op selects what a Command does.
type Op string

const (
	OpView     Op = "view"     // View
	OpPan      Op = "pan"      // DX, DY in pixels
	OpZoom     Op = "zoom"     // Factor around pixel X, Y
	OpLandmark Op = "landmark" // Name
	OpType     Op = "type"     // Type
	OpJulia    Op = "julia"    // Julia
	OpMaxIter  Op = "maxIter"  // MaxIter
	OpResize   Op = "resize"   // Width, Height
	OpScheme   Op = "scheme"   // Scheme
	OpBackend  Op = "backend"  // Backend
	OpCycle    Op = "cycle"    // On
	OpSave     Op = "save"     // Name
	OpResume   Op = "resume"   // ID
	OpReset    Op = "reset"
)

// Command is a client request. Only the fields named by Op are read.
type Command struct {
	Op      Op            `json:"op"`
	View    *fractal.View `json:"view,omitempty"`
	DX      float64       `json:"dx,omitempty"`
	DY      float64       `json:"dy,omitempty"`
	Factor  float64       `json:"factor,omitempty"`
	X       float64       `json:"x,omitempty"`
	Y       float64       `json:"y,omitempty"`
	Type    string        `json:"type,omitempty"`
	Julia   *[2]float64   `json:"julia,omitempty"`
	MaxIter int           `json:"maxIter,omitempty"`
	Width   int           `json:"width,omitempty"`
	Height  int           `json:"height,omitempty"`
	Scheme  string        `json:"scheme,omitempty"`
	Backend string        `json:"backend,omitempty"`
	On      bool          `json:"on,omitempty"`
	Name    string        `json:"name,omitempty"`
	ID      string        `json:"id,omitempty"`
}

// Validate checks that the fields Op needs are present.
func (c Command) Validate() error {
	missing := func(what string) error {
		return fmt.Errorf("%w: %s needs %s", ErrBadCommand, c.Op, what)
	}
	switch c.Op {
	case OpView:
		if c.View == nil {
			return missing("view")
		}
	case OpZoom:
		if c.Factor <= 0 {
			return missing("a positive factor")
		}
	case OpType:
		if c.Type == "" {
			return missing("type")
		}
	case OpJulia:
		if c.Julia == nil {
			return missing("julia")
		}
	case OpResize:
		if c.Width < 1 || c.Height < 1 {
			return missing("width and height")
		}
	case OpScheme:
		if c.Scheme == "" {
			return missing("scheme")
		}
	case OpBackend:
		if c.Backend == "" {
			return missing("backend")
		}
	case OpResume:
		if c.ID == "" {
			return missing("id")
		}
	case OpPan, OpLandmark, OpMaxIter, OpCycle, OpSave, OpReset:
	default:
		return fmt.Errorf("%w: unknown op %q", ErrBadCommand, c.Op)
	}
	return nil
}

// Kind classifies an Event.
type Kind string

const (
	// KindStatus mirrors a session status.
	KindStatus Kind = "status"
	// KindUniforms carries the packed GPU uniform block for the browser shader.
	KindUniforms Kind = "uniforms"
	// KindSaved acknowledges a saved location.
	KindSaved Kind = "saved"
	// KindAck answers a command that was applied. Status events caused by the
	// command are sent before its ack.
	KindAck Kind = "ack"
	// KindError answers a command that failed.
	KindError Kind = "error"
)

type Event struct {
	Kind     Kind                `json:"kind"`
	Op       Op                  `json:"op,omitempty"`
	Status   string              `json:"status,omitempty"`
	Token    uint64              `json:"token,omitempty"`
	GridStep int                 `json:"gridStep,omitempty"`
	Message  string              `json:"message,omitempty"`
	Uniforms []byte              `json:"uniforms,omitempty"`
	Width    int                 `json:"width,omitempty"`
	Height   int                 `json:"height,omitempty"`
	Location *locations.Location `json:"location,omitempty"`
}

// FrameHeaderSize is the size of the binary frame header:
// token u64, grid step u32, width u32, height u32, all little-endian.
const FrameHeaderSize = 20

// Frame is one rendered pass.
type Frame struct {
	Token    uint64
	GridStep int
	Image    *image.RGBA
}

// AppendFrame encodes f after dst.
func AppendFrame(dst []byte, f Frame) []byte {
	b := f.Image.Bounds()
	dst = binary.LittleEndian.AppendUint64(dst, f.Token)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(f.GridStep))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(b.Dx()))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := f.Image.PixOffset(b.Min.X, y)
		dst = append(dst, f.Image.Pix[off:off+b.Dx()*4]...)
	}
	return dst
}

// DecodeFrame parses a binary message. The returned image aliases b.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < FrameHeaderSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(b))
	}
	f := Frame{
		Token:    binary.LittleEndian.Uint64(b[0:]),
		GridStep: int(binary.LittleEndian.Uint32(b[8:])),
	}
	w := int(binary.LittleEndian.Uint32(b[12:]))
	h := int(binary.LittleEndian.Uint32(b[16:]))
	pix := b[FrameHeaderSize:]
	if len(pix) != w*h*4 {
		return Frame{}, fmt.Errorf("%w: %dx%d needs %d pixel bytes, got %d", ErrShortFrame, w, h, w*h*4, len(pix))
	}
	f.Image = &image.RGBA{Pix: pix, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	return f, nil
}
