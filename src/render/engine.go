package render

import (
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
)

// DefaultFramesInFlight is the number of frames the CPU may record ahead of
// the GPU.
const DefaultFramesInFlight = 2

type Options struct {
	FramesInFlight int
	Depth          bool
	PresentMode    PresentMode
	// ImageCount is passed to the device as a request; zero lets it choose.
	ImageCount int
	ClearColor [4]float32
	Logger     *slog.Logger
}

// Invalidation is delivered to listeners after the swap image set has been
// rebuilt. Anything compiled against the previous render pass or sized to
// the previous extent must be rebuilt from it.
type Invalidation struct {
	RenderPass RenderPass
	Extent     Extent
	ImageCount int
}

type frameState int

const (
	stateIdle frameState = iota
	stateRecording
)

// Engine drives the acquire, record, submit, present cycle and rebuilds the
// swap image set when it goes stale or the window is resized. It is not safe
// for concurrent use; the whole frame loop runs on one goroutine.
type Engine struct {
	win  Window
	dev  Device
	opts Options
	log  *slog.Logger

	swap     *SwapImageSet
	recorder *FrameRecorder

	state        frameState
	inRenderPass bool
	slot         int
	imageIndex   int
	current      CommandBuffer

	listeners   []func(Invalidation) error
	recreations int
}

// NewEngine waits for the window to have a drawable extent, then builds the
// first swap image set and one command buffer per image.
func NewEngine(win Window, dev Device, opts Options) (*Engine, error) {
	if opts.FramesInFlight <= 0 {
		opts.FramesInFlight = DefaultFramesInFlight
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	e := &Engine{
		win:      win,
		dev:      dev,
		opts:     opts,
		log:      opts.Logger,
		recorder: NewFrameRecorder(dev),
	}

	swap, err := NewSwapImageSet(dev, e.setOptions(e.waitForExtent()), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create swap image set")
	}
	e.swap = swap
	if err := e.recorder.EnsureCapacity(swap.ImageCount()); err != nil {
		swap.Destroy()
		return nil, err
	}
	e.log.Info("swap image set ready",
		"extent", swap.Extent().String(),
		"images", swap.ImageCount(),
		"framesInFlight", opts.FramesInFlight,
		"depth", opts.Depth)
	return e, nil
}

// OnInvalidate registers fn to run after every recreation. An error from fn
// is returned by the frame call that triggered the recreation.
func (e *Engine) OnInvalidate(fn func(Invalidation) error) {
	e.listeners = append(e.listeners, fn)
}

// BeginFrame acquires the next image and opens its command buffer. It
// returns a nil buffer and a nil error when the swap image set had to be
// recreated; the caller skips rendering for this iteration.
func (e *Engine) BeginFrame() (CommandBuffer, error) {
	assertf(e.state == stateIdle, "BeginFrame", "a frame is already in progress")

	imageIndex, stale, err := e.swap.AcquireNext(e.slot)
	if err != nil {
		return nil, err
	}
	if stale {
		return nil, e.recreate("acquire reported stale images")
	}

	cmd, err := e.recorder.Begin(imageIndex)
	if err != nil {
		return nil, err
	}
	e.imageIndex = imageIndex
	e.current = cmd
	e.state = stateRecording
	return cmd, nil
}

// EndFrame closes the command buffer, submits it and presents the image.
// The frame is closed and the slot advanced even when an error is returned.
func (e *Engine) EndFrame() error {
	assertf(e.state == stateRecording, "EndFrame", "no frame is in progress")
	assertf(!e.inRenderPass, "EndFrame", "render pass has not been ended")

	stale, err := e.submitAndPresent()
	e.finishFrame()
	if err != nil {
		return err
	}

	resized := e.win.WasResized()
	if resized {
		e.win.ClearResized()
	}
	switch {
	case stale:
		return e.recreate("present reported stale images")
	case resized:
		return e.recreate("window resized")
	}
	return nil
}

func (e *Engine) submitAndPresent() (bool, error) {
	if err := e.recorder.End(e.imageIndex); err != nil {
		return false, err
	}
	if err := e.swap.Submit(e.current, e.slot, e.imageIndex); err != nil {
		return false, err
	}
	return e.swap.Present(e.slot, e.imageIndex)
}

func (e *Engine) finishFrame() {
	e.state = stateIdle
	e.current = nil
	e.slot = (e.slot + 1) % e.opts.FramesInFlight
}

// BeginRenderPass begins the swap render pass on the acquired image and sets
// viewport and scissor to the current extent.
func (e *Engine) BeginRenderPass(cmd CommandBuffer) {
	e.checkCurrent("BeginRenderPass", cmd)
	assertf(!e.inRenderPass, "BeginRenderPass", "render pass already begun")

	extent := e.swap.Extent()
	cmd.BeginRenderPass(RenderPassBegin{
		RenderPass:  e.swap.RenderPass(),
		Framebuffer: e.swap.Framebuffer(e.imageIndex),
		Area:        Rect{Extent: extent},
		Clear:       ClearValues{Color: e.opts.ClearColor, Depth: 1},
	})
	cmd.SetViewport(Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MaxDepth: 1,
	})
	cmd.SetScissor(Rect{Extent: extent})
	e.inRenderPass = true
}

func (e *Engine) EndRenderPass(cmd CommandBuffer) {
	e.checkCurrent("EndRenderPass", cmd)
	assertf(e.inRenderPass, "EndRenderPass", "render pass has not been begun")

	cmd.EndRenderPass()
	e.inRenderPass = false
}

func (e *Engine) checkCurrent(op string, cmd CommandBuffer) {
	assertf(e.state == stateRecording, op, "no frame is in progress")
	assertf(cmd == e.current, op, "command buffer does not belong to the current frame")
}

// recreate drains the device and replaces the swap image set with one built
// from it at the current window extent.
func (e *Engine) recreate(reason string) error {
	if err := e.dev.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait for device idle")
	}
	extent := e.waitForExtent()

	prev := e.swap
	next, err := NewSwapImageSet(e.dev, e.setOptions(extent), prev)
	if err != nil {
		return errors.Wrap(err, "recreate swap image set")
	}
	e.swap = next
	if !prev.CompareFormats(next) {
		msg := fmt.Sprintf("color %d -> %d, depth %d -> %d",
			prev.ColorFormat(), next.ColorFormat(), prev.DepthFormat(), next.DepthFormat())
		return errors.WithStack(&ContractError{Op: "recreate", Msg: msg, Err: ErrFormatMismatch})
	}

	if next.ImageCount() != e.recorder.Len() {
		if err := e.recorder.EnsureCapacity(next.ImageCount()); err != nil {
			return err
		}
	}
	assertf(e.recorder.Len() == next.ImageCount(), "recreate",
		"%d command buffers for %d images", e.recorder.Len(), next.ImageCount())

	// The new set already matches the current extent, so a resize reported
	// while waiting has been served.
	if e.win.WasResized() {
		e.win.ClearResized()
	}

	e.recreations++
	e.log.Debug("swap image set recreated",
		"reason", reason,
		"from", prev.Extent().String(),
		"to", next.Extent().String(),
		"images", next.ImageCount())

	inv := Invalidation{
		RenderPass: next.RenderPass(),
		Extent:     next.Extent(),
		ImageCount: next.ImageCount(),
	}
	for _, fn := range e.listeners {
		if err := fn(inv); err != nil {
			return errors.Wrap(err, "swap invalidation listener")
		}
	}
	return nil
}

// waitForExtent blocks on window events while the window has no drawable
// area, as when it is minimized.
func (e *Engine) waitForExtent() Extent {
	extent := e.win.Extent()
	if extent.IsZero() {
		e.log.Warn("drawable extent is zero, waiting for window events", "extent", extent.String())
	}
	for extent.IsZero() {
		e.win.WaitEvents()
		extent = e.win.Extent()
	}
	return extent
}

func (e *Engine) setOptions(extent Extent) SwapImageSetOptions {
	return SwapImageSetOptions{
		Extent:         extent,
		FramesInFlight: e.opts.FramesInFlight,
		Depth:          e.opts.Depth,
		PresentMode:    e.opts.PresentMode,
		ImageCount:     e.opts.ImageCount,
	}
}

// RenderPass returns the render pass of the current swap image set.
func (e *Engine) RenderPass() RenderPass {
	return e.swap.RenderPass()
}

func (e *Engine) FrameInProgress() bool {
	return e.state == stateRecording
}

// FrameSlot returns the frame-in-flight slot of the open frame.
func (e *Engine) FrameSlot() int {
	assertf(e.state == stateRecording, "FrameSlot", "no frame is in progress")
	return e.slot
}

// CurrentCommandBuffer returns the buffer of the open frame.
func (e *Engine) CurrentCommandBuffer() CommandBuffer {
	assertf(e.state == stateRecording, "CurrentCommandBuffer", "no frame is in progress")
	return e.current
}

func (e *Engine) AspectRatio() float32 { return e.swap.AspectRatio() }
func (e *Engine) Extent() Extent       { return e.swap.Extent() }
func (e *Engine) ImageCount() int      { return e.swap.ImageCount() }
func (e *Engine) FramesInFlight() int  { return e.opts.FramesInFlight }

// Recreations returns how many times the swap image set has been rebuilt.
func (e *Engine) Recreations() int { return e.recreations }

// Destroy waits for the device and releases the command buffers and the
// swap image set.
func (e *Engine) Destroy() error {
	assertf(e.state == stateIdle, "Destroy", "a frame is still in progress")
	err := e.dev.WaitIdle()
	e.recorder.Release()
	e.swap.Destroy()
	return errors.Wrap(err, "wait for device idle")
}
