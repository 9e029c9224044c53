package render

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Extent is a drawable size in pixels.
type Extent struct {
	Width, Height uint32
}

// IsZero reports whether either dimension is zero, as with a minimized window.
func (e Extent) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent) AspectRatio() float32 {
	if e.Height == 0 {
		return 0
	}
	return float32(e.Width) / float32(e.Height)
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Format is a device pixel format code. The values are the device's own;
// the core only compares them.
type Format int32

const FormatUndefined Format = 0

type PresentMode int

const (
	PresentFIFO PresentMode = iota
	PresentMailbox
	PresentImmediate
)

var presentModeNames = map[PresentMode]string{
	PresentFIFO:      "fifo",
	PresentMailbox:   "mailbox",
	PresentImmediate: "immediate",
}

func (m PresentMode) String() string {
	if s, ok := presentModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("PresentMode(%d)", int(m))
}

// ParsePresentMode accepts the lower case names returned by String.
func ParsePresentMode(s string) (PresentMode, error) {
	for m, name := range presentModeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return PresentFIFO, errors.Errorf("unknown present mode %q", s)
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type Rect struct {
	X, Y   int32
	Extent Extent
}

type ClearValues struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}
