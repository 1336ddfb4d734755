package wire

import (
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestFrameEncoding(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.SetRGBA(2, 1, color.RGBA{1, 2, 3, 255})
	b := AppendFrame(nil, Frame{Token: 7, GridStep: 4, Image: img})
	if len(b) != FrameHeaderSize+3*2*4 {
		t.Fatalf("len = %d", len(b))
	}
	f, err := DecodeFrame(b)
	if err != nil {
		t.Fatal(err)
	}
	if f.Token != 7 || f.GridStep != 4 || f.Image.Bounds() != img.Bounds() {
		t.Errorf("header = %d %d %v", f.Token, f.GridStep, f.Image.Bounds())
	}
	if got := f.Image.RGBAAt(2, 1); got != (color.RGBA{1, 2, 3, 255}) {
		t.Errorf("pixel = %v", got)
	}
}

func TestFrameEncodingSubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.SetRGBA(1, 1, color.RGBA{9, 9, 9, 255})
	sub := img.SubImage(image.Rect(1, 1, 3, 3)).(*image.RGBA)
	f, err := DecodeFrame(AppendFrame(nil, Frame{Image: sub}))
	if err != nil {
		t.Fatal(err)
	}
	if f.Image.Bounds().Dx() != 2 || f.Image.RGBAAt(0, 0) != (color.RGBA{9, 9, 9, 255}) {
		t.Errorf("sub image decoded as %v / %v", f.Image.Bounds(), f.Image.RGBAAt(0, 0))
	}
}

func TestDecodeFrameRejectsTruncated(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	b := AppendFrame(nil, Frame{Image: img})
	for _, n := range []int{0, FrameHeaderSize - 1, len(b) - 1} {
		if _, err := DecodeFrame(b[:n]); !errors.Is(err, ErrShortFrame) {
			t.Errorf("%d bytes: err = %v", n, err)
		}
	}
}

func TestCommandValidate(t *testing.T) {
	tests := []struct {
		name string
		json string
		ok   bool
	}{
		{"view", `{"op":"view","view":{"centerX":-0.5,"centerY":0,"scale":3}}`, true},
		{"view missing", `{"op":"view"}`, false},
		{"pan", `{"op":"pan","dx":3,"dy":-2}`, true},
		{"zoom", `{"op":"zoom","factor":0.5,"x":400,"y":300}`, true},
		{"zoom without factor", `{"op":"zoom","x":1}`, false},
		{"type", `{"op":"type","type":"julia"}`, true},
		{"julia", `{"op":"julia","julia":[-0.8,0.156]}`, true},
		{"resize", `{"op":"resize","width":640,"height":480}`, true},
		{"resize zero", `{"op":"resize","width":640}`, false},
		{"resume", `{"op":"resume","id":"6ba7b810-9dad-11d1-80b4-00c04fd430c8"}`, true},
		{"reset", `{"op":"reset"}`, true},
		{"unknown", `{"op":"explode"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Command
			if err := json.Unmarshal([]byte(tt.json), &c); err != nil {
				t.Fatal(err)
			}
			err := c.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrBadCommand) {
				t.Errorf("err = %v, want ErrBadCommand", err)
			}
		})
	}
}
