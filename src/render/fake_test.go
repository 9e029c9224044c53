package render

import (
	"fmt"

	"github.com/pkg/errors"
)

// result is one scripted outcome of an acquire or present call.
type result struct {
	stale bool
	err   error
}

var staleResult = result{stale: true}

type fakeDevice struct {
	// acquires and presents are consumed in order; once exhausted every
	// call succeeds with a round-robin image index.
	acquires []result
	presents []result
	// acquireImages scripts the indices of successful acquires; once
	// exhausted indices go round-robin.
	acquireImages []int
	// pending leaves submitted work running until its fence is waited on,
	// so waits are observable in events.
	pending bool
	// imageCounts and formats are consumed per created swapchain; the last
	// entry repeats.
	imageCounts []int
	formats     []Format
	depthFormat Format

	swapchains    []*fakeSwapchain
	buffers       []*fakeCmd
	allocations   []int
	frees         int
	submits       []SubmitInfo
	waitIdles     int
	fences        []*fakeFence
	semaphores    int
	destroyed     int
	framebuffers  int
	depthTargets  int
	renderPasses  []*fakeRenderPass
	acquireCalls  int
	presentCalls  int
	failSemaphore int
	failSubmit    error
	events        []string
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		imageCounts: []int{3},
		formats:     []Format{44},
		depthFormat: 126,
	}
}

func (d *fakeDevice) record(format string, args ...any) {
	d.events = append(d.events, fmt.Sprintf(format, args...))
}

func (d *fakeDevice) WaitIdle() error {
	d.waitIdles++
	d.record("waitIdle")
	return nil
}

func (d *fakeDevice) NewSemaphore() (Semaphore, error) {
	d.semaphores++
	if d.failSemaphore > 0 && d.semaphores == d.failSemaphore {
		return nil, errors.New("out of semaphores")
	}
	return &fakeSemaphore{dev: d}, nil
}

func (d *fakeDevice) NewFence(signaled bool) (Fence, error) {
	f := &fakeFence{dev: d, id: len(d.fences), signaled: signaled}
	d.fences = append(d.fences, f)
	return f, nil
}

func (d *fakeDevice) NewSwapchain(opts SwapchainOptions) (Swapchain, error) {
	n := len(d.swapchains)
	sc := &fakeSwapchain{
		dev:    d,
		id:     n,
		extent: opts.Extent,
		images: pick(d.imageCounts, n),
		format: pick(d.formats, n),
		old:    opts.Old,
	}
	d.swapchains = append(d.swapchains, sc)
	d.record("swapchain %d %s", n, opts.Extent)
	return sc, nil
}

func (d *fakeDevice) DepthFormat() (Format, error) {
	return d.depthFormat, nil
}

func (d *fakeDevice) NewRenderPass(opts RenderPassOptions) (RenderPass, error) {
	rp := &fakeRenderPass{dev: d, opts: opts}
	d.renderPasses = append(d.renderPasses, rp)
	return rp, nil
}

func (d *fakeDevice) NewDepthTarget(extent Extent, format Format) (DepthTarget, error) {
	d.depthTargets++
	return &fakeDepth{dev: d, format: format}, nil
}

func (d *fakeDevice) NewFramebuffer(opts FramebufferOptions) (Framebuffer, error) {
	d.framebuffers++
	return &fakeFramebuffer{dev: d, image: opts.Image}, nil
}

func (d *fakeDevice) Submit(info SubmitInfo) error {
	if d.failSubmit != nil {
		return d.failSubmit
	}
	d.submits = append(d.submits, info)
	if f, ok := info.Fence.(*fakeFence); ok {
		f.submitted = true
		if !d.pending {
			f.signaled = true
		}
	}
	d.record("submit")
	return nil
}

func (d *fakeDevice) AllocateCommandBuffers(n int) ([]CommandBuffer, error) {
	d.allocations = append(d.allocations, n)
	out := make([]CommandBuffer, n)
	for i := range out {
		cmd := &fakeCmd{dev: d, id: len(d.buffers)}
		d.buffers = append(d.buffers, cmd)
		out[i] = cmd
	}
	return out, nil
}

func (d *fakeDevice) FreeCommandBuffers(buffers []CommandBuffer) {
	d.frees += len(buffers)
}

// renderPassCalls counts BeginRenderPass calls over every command buffer.
func (d *fakeDevice) renderPassCalls() int {
	n := 0
	for _, cmd := range d.buffers {
		for _, c := range cmd.calls {
			if c == "beginRenderPass" {
				n++
			}
		}
	}
	return n
}

func pick[T any](values []T, i int) T {
	if i < len(values) {
		return values[i]
	}
	return values[len(values)-1]
}

type fakeSwapchain struct {
	dev       *fakeDevice
	id        int
	extent    Extent
	images    int
	format    Format
	old       Swapchain
	next      int
	destroyed bool
}

func (s *fakeSwapchain) ImageCount() int { return s.images }
func (s *fakeSwapchain) Format() Format  { return s.format }
func (s *fakeSwapchain) Extent() Extent  { return s.extent }

func (s *fakeSwapchain) Acquire(signal Semaphore) (int, bool, error) {
	d := s.dev
	d.acquireCalls++
	d.record("acquire")
	if len(d.acquires) > 0 {
		r := d.acquires[0]
		d.acquires = d.acquires[1:]
		if r.stale || r.err != nil {
			return 0, r.stale, r.err
		}
	}
	if len(d.acquireImages) > 0 {
		idx := d.acquireImages[0]
		d.acquireImages = d.acquireImages[1:]
		return idx, false, nil
	}
	idx := s.next
	s.next = (s.next + 1) % s.images
	return idx, false, nil
}

func (s *fakeSwapchain) Present(imageIndex int, wait Semaphore) (bool, error) {
	d := s.dev
	d.presentCalls++
	d.record("present %d", imageIndex)
	if len(d.presents) > 0 {
		r := d.presents[0]
		d.presents = d.presents[1:]
		return r.stale, r.err
	}
	return false, nil
}

func (s *fakeSwapchain) Destroy() {
	s.destroyed = true
	s.dev.destroyed++
	s.dev.record("destroy swapchain %d", s.id)
}

type fakeSemaphore struct{ dev *fakeDevice }

func (s *fakeSemaphore) Destroy() { s.dev.destroyed++ }

type fakeFence struct {
	dev      *fakeDevice
	id       int
	signaled bool
	// submitted is set while queued work will signal the fence.
	submitted bool
	waits     int
	resets    int
	destroyed bool
}

// Wait on pending work completes it, as the GPU would while the CPU blocks.
func (f *fakeFence) Wait() error {
	f.waits++
	f.dev.record("wait fence %d", f.id)
	if !f.signaled && f.submitted {
		f.signaled = true
		f.dev.record("complete fence %d", f.id)
	}
	if !f.signaled {
		return errors.New("fake fence would block forever")
	}
	return nil
}

func (f *fakeFence) Reset() error {
	f.resets++
	f.signaled = false
	f.submitted = false
	return nil
}

func (f *fakeFence) Destroy() {
	f.destroyed = true
	f.dev.destroyed++
}

type fakeRenderPass struct {
	dev       *fakeDevice
	opts      RenderPassOptions
	destroyed bool
}

func (r *fakeRenderPass) Destroy() {
	r.destroyed = true
	r.dev.destroyed++
}

type fakeFramebuffer struct {
	dev   *fakeDevice
	image int
}

func (f *fakeFramebuffer) Destroy() { f.dev.destroyed++ }

type fakeDepth struct {
	dev    *fakeDevice
	format Format
}

func (d *fakeDepth) Format() Format { return d.format }
func (d *fakeDepth) Destroy()       { d.dev.destroyed++ }

type fakeCmd struct {
	dev       *fakeDevice
	id        int
	calls     []string
	begin     RenderPassBegin
	viewport  Viewport
	scissor   Rect
	recording bool
}

func (c *fakeCmd) Begin() error {
	c.calls = append(c.calls, "begin")
	c.dev.record("begin cmd %d", c.id)
	c.recording = true
	return nil
}

func (c *fakeCmd) End() error {
	c.calls = append(c.calls, "end")
	c.recording = false
	return nil
}

func (c *fakeCmd) Reset() error {
	c.calls = append(c.calls, "reset")
	c.dev.record("reset cmd %d", c.id)
	return nil
}

func (c *fakeCmd) BeginRenderPass(begin RenderPassBegin) {
	c.calls = append(c.calls, "beginRenderPass")
	c.begin = begin
}

func (c *fakeCmd) EndRenderPass() { c.calls = append(c.calls, "endRenderPass") }

func (c *fakeCmd) SetViewport(v Viewport) {
	c.calls = append(c.calls, "setViewport")
	c.viewport = v
}

func (c *fakeCmd) SetScissor(r Rect) {
	c.calls = append(c.calls, "setScissor")
	c.scissor = r
}

// fakeWindow reports extents from a script; once exhausted the last extent
// repeats.
type fakeWindow struct {
	extents    []Extent
	extentCall int
	waits      int
	polls      int
	resized    bool
	resizeSeen int
	clears     int
}

func newFakeWindow(extents ...Extent) *fakeWindow {
	if len(extents) == 0 {
		extents = []Extent{{Width: 800, Height: 600}}
	}
	return &fakeWindow{extents: extents}
}

func (w *fakeWindow) Extent() Extent {
	e := pick(w.extents, w.extentCall)
	w.extentCall++
	return e
}

func (w *fakeWindow) PollEvents() { w.polls++ }
func (w *fakeWindow) WaitEvents() { w.waits++ }

func (w *fakeWindow) WasResized() bool {
	if w.resized {
		w.resizeSeen++
	}
	return w.resized
}

func (w *fakeWindow) ClearResized() {
	w.clears++
	w.resized = false
}
