package render

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestEngine(t *testing.T, win *fakeWindow, dev *fakeDevice, opts Options) *Engine {
	t.Helper()
	opts.Logger = quiet
	e, err := NewEngine(win, dev, opts)
	require.NoError(t, err)
	return e
}

// contractViolation runs fn and returns the contract error it panics with.
func contractViolation(fn func()) (err error) {
	defer CheckError(&err)
	fn()
	return nil
}

// drawFrame runs one full iteration of the frame loop. It reports whether
// anything was rendered.
func drawFrame(t *testing.T, e *Engine) bool {
	t.Helper()
	cmd, err := e.BeginFrame()
	require.NoError(t, err)
	if cmd == nil {
		return false
	}
	e.BeginRenderPass(cmd)
	e.EndRenderPass(cmd)
	require.NoError(t, e.EndFrame())
	return true
}

func TestFrameSlotsArePeriodic(t *testing.T) {
	for _, tc := range []struct {
		images, slots int
	}{
		{2, 1},
		{2, 2},
		{3, 2},
		{3, 3},
		{4, 2},
		{2, 4},
	} {
		dev := newFakeDevice()
		dev.imageCounts = []int{tc.images}
		e := newTestEngine(t, newFakeWindow(), dev, Options{FramesInFlight: tc.slots})

		for i := 0; i < 3*tc.slots+1; i++ {
			cmd, err := e.BeginFrame()
			require.NoError(t, err)
			require.NotNil(t, cmd)
			require.Equal(t, i%tc.slots, e.FrameSlot(), "images=%d slots=%d frame=%d", tc.images, tc.slots, i)
			require.Same(t, e.swap.SyncSet(e.FrameSlot()).ImageAcquired, dev.submitsWaitAfter(t, e, cmd))
		}
	}
}

// submitsWaitAfter ends the open frame and returns the semaphore its
// submission waited on.
func (d *fakeDevice) submitsWaitAfter(t *testing.T, e *Engine, cmd CommandBuffer) Semaphore {
	t.Helper()
	e.BeginRenderPass(cmd)
	e.EndRenderPass(cmd)
	require.NoError(t, e.EndFrame())
	return d.submits[len(d.submits)-1].Wait
}

// eventsWithPrefix filters events down to those starting with one of the
// prefixes, keeping order.
func eventsWithPrefix(events []string, prefixes ...string) []string {
	var out []string
	for _, ev := range events {
		for _, p := range prefixes {
			if strings.HasPrefix(ev, p) {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}

func TestSlotFenceWaitedBeforeReuse(t *testing.T) {
	dev := newFakeDevice()
	dev.imageCounts = []int{2}
	dev.pending = true
	e := newTestEngine(t, newFakeWindow(), dev, Options{FramesInFlight: 2})

	for i := 0; i < 6; i++ {
		require.True(t, drawFrame(t, e))
	}
	require.Equal(t, []string{
		"acquire",
		"acquire",
		"complete fence 0", "acquire",
		"complete fence 1", "acquire",
		"complete fence 0", "acquire",
		"complete fence 1", "acquire",
	}, eventsWithPrefix(dev.events, "acquire", "complete fence"))
	require.Equal(t, 3, dev.fences[0].waits)
	require.Equal(t, 3, dev.fences[1].waits)
}

func TestBeginFrameWaitsForImageBeforeRecording(t *testing.T) {
	dev := newFakeDevice()
	dev.imageCounts = []int{2}
	dev.pending = true
	dev.acquireImages = []int{0, 0}
	e := newTestEngine(t, newFakeWindow(), dev, Options{FramesInFlight: 2})
	require.True(t, drawFrame(t, e))

	from := len(dev.events)
	cmd, err := e.BeginFrame()
	require.NoError(t, err)
	require.Equal(t, 1, e.FrameSlot())
	require.Same(t, dev.buffers[0], cmd)
	require.Equal(t, []string{
		"wait fence 1",
		"acquire",
		"wait fence 0",
		"complete fence 0",
		"reset cmd 0",
		"begin cmd 0",
	}, dev.events[from:])

	e.BeginRenderPass(cmd)
	e.EndRenderPass(cmd)
	require.NoError(t, e.EndFrame())
}

func TestDefaultFramesInFlight(t *testing.T) {
	e := newTestEngine(t, newFakeWindow(), newFakeDevice(), Options{})
	require.Equal(t, DefaultFramesInFlight, e.FramesInFlight())
	require.Equal(t, 3, e.ImageCount())
	require.Equal(t, Extent{800, 600}, e.Extent())
	require.InDelta(t, 800.0/600.0, e.AspectRatio(), 1e-6)
}

func TestBeginFrameTwiceIsContractViolation(t *testing.T) {
	e := newTestEngine(t, newFakeWindow(), newFakeDevice(), Options{})
	_, err := e.BeginFrame()
	require.NoError(t, err)

	err = contractViolation(func() { _, _ = e.BeginFrame() })
	require.Error(t, err)
	require.True(t, IsContractViolation(err))
	require.True(t, e.FrameInProgress())
}

func TestFrameStateViolations(t *testing.T) {
	for name, fn := range map[string]func(e *Engine){
		"EndFrame while idle": func(e *Engine) { _ = e.EndFrame() },
		"FrameSlot while idle": func(e *Engine) { e.FrameSlot() },
		"render pass while idle": func(e *Engine) {
			e.BeginRenderPass(&fakeCmd{})
		},
		"foreign command buffer": func(e *Engine) {
			_, err := e.BeginFrame()
			require.NoError(t, err)
			e.BeginRenderPass(&fakeCmd{})
		},
		"EndFrame inside render pass": func(e *Engine) {
			cmd, err := e.BeginFrame()
			require.NoError(t, err)
			e.BeginRenderPass(cmd)
			_ = e.EndFrame()
		},
		"EndRenderPass without begin": func(e *Engine) {
			cmd, err := e.BeginFrame()
			require.NoError(t, err)
			e.EndRenderPass(cmd)
		},
		"nested render pass": func(e *Engine) {
			cmd, err := e.BeginFrame()
			require.NoError(t, err)
			e.BeginRenderPass(cmd)
			e.BeginRenderPass(cmd)
		},
	} {
		e := newTestEngine(t, newFakeWindow(), newFakeDevice(), Options{})
		err := contractViolation(func() { fn(e) })
		require.True(t, IsContractViolation(err), name)
	}
}

func TestStaleAcquireRecreatesOnce(t *testing.T) {
	dev := newFakeDevice()
	dev.acquires = []result{{}, {}, staleResult, {}}
	e := newTestEngine(t, newFakeWindow(), dev, Options{})

	var rendered []bool
	for i := 0; i < 4; i++ {
		rendered = append(rendered, drawFrame(t, e))
	}
	require.Equal(t, []bool{true, true, false, true}, rendered)
	require.Equal(t, 1, e.Recreations())
	require.Equal(t, 3, dev.renderPassCalls())
	require.Len(t, dev.swapchains, 2)

	// Recreation follows the stale acquire directly.
	var acquires int
	for i, ev := range dev.events {
		if ev != "acquire" {
			continue
		}
		acquires++
		if acquires == 3 {
			require.Equal(t, "waitIdle", dev.events[i+1])
			require.Equal(t, "swapchain 1 800x600", dev.events[i+2])
		}
	}
}

func TestStalePresentRecreates(t *testing.T) {
	dev := newFakeDevice()
	dev.presents = []result{staleResult}
	win := newFakeWindow()
	e := newTestEngine(t, win, dev, Options{})

	require.True(t, drawFrame(t, e))
	require.Equal(t, 1, e.Recreations())
	require.False(t, e.FrameInProgress())
	require.True(t, drawFrame(t, e))
	require.Equal(t, 1, e.Recreations())
}

func TestStalePresentAndResizeRecreateOnce(t *testing.T) {
	dev := newFakeDevice()
	dev.presents = []result{staleResult}
	win := newFakeWindow()
	e := newTestEngine(t, win, dev, Options{})

	cmd, err := e.BeginFrame()
	require.NoError(t, err)
	win.resized = true
	e.BeginRenderPass(cmd)
	e.EndRenderPass(cmd)
	require.NoError(t, e.EndFrame())

	require.Equal(t, 1, e.Recreations())
	require.Equal(t, 1, win.clears)
	require.False(t, win.resized)
}

func TestResizeFlagClearedOnce(t *testing.T) {
	dev := newFakeDevice()
	win := newFakeWindow(Extent{800, 600}, Extent{800, 600}, Extent{1024, 768})
	e := newTestEngine(t, win, dev, Options{})

	cmd, err := e.BeginFrame()
	require.NoError(t, err)
	win.resized = true
	e.BeginRenderPass(cmd)
	e.EndRenderPass(cmd)
	require.NoError(t, e.EndFrame())

	require.Equal(t, 1, e.Recreations())
	require.Equal(t, 1, win.clears)
	require.Equal(t, 1, win.resizeSeen)

	require.True(t, drawFrame(t, e))
	require.Equal(t, 1, e.Recreations())
	require.Equal(t, 1, win.clears)
}

func TestMinimizedWindowBlocksRecreation(t *testing.T) {
	dev := newFakeDevice()
	dev.acquires = []result{staleResult}
	win := newFakeWindow(
		Extent{800, 600},
		Extent{0, 600},
		Extent{800, 0},
		Extent{0, 0},
		Extent{1024, 768},
	)
	e := newTestEngine(t, win, dev, Options{})

	cmd, err := e.BeginFrame()
	require.NoError(t, err)
	require.Nil(t, cmd)
	require.Equal(t, 3, win.waits)
	require.Equal(t, Extent{1024, 768}, e.Extent())
	for _, sc := range dev.swapchains {
		require.False(t, sc.extent.IsZero())
	}
}

func TestNewEngineWaitsForExtent(t *testing.T) {
	win := newFakeWindow(Extent{0, 0}, Extent{640, 480})
	e := newTestEngine(t, win, newFakeDevice(), Options{})
	require.Equal(t, 1, win.waits)
	require.Equal(t, Extent{640, 480}, e.Extent())
}

func TestFormatMismatchIsFatal(t *testing.T) {
	dev := newFakeDevice()
	dev.formats = []Format{44, 50}
	dev.acquires = []result{staleResult}
	e := newTestEngine(t, newFakeWindow(), dev, Options{})

	cmd, err := e.BeginFrame()
	require.Nil(t, cmd)
	require.ErrorIs(t, err, ErrFormatMismatch)
	require.True(t, IsContractViolation(err))
	require.Contains(t, err.Error(), "color 44 -> 50")
}

func TestDepthFormatIsCompared(t *testing.T) {
	dev := newFakeDevice()
	dev.acquires = []result{staleResult}
	e := newTestEngine(t, newFakeWindow(), dev, Options{Depth: true})
	dev.depthFormat = 130

	_, err := e.BeginFrame()
	require.True(t, errors.Is(err, ErrFormatMismatch))
}

func TestRecorderTracksImageCount(t *testing.T) {
	dev := newFakeDevice()
	dev.imageCounts = []int{3, 4, 4, 2}
	dev.acquires = []result{staleResult, staleResult, staleResult}
	e := newTestEngine(t, newFakeWindow(), dev, Options{})
	require.Equal(t, 3, e.recorder.Len())

	for i := 0; i < 3; i++ {
		require.False(t, drawFrame(t, e))
		require.Equal(t, e.ImageCount(), e.recorder.Len())
	}
	require.Equal(t, 3, e.Recreations())
	require.Equal(t, []int{3, 4, 2}, dev.allocations)
	require.Equal(t, 2, e.ImageCount())
	require.True(t, drawFrame(t, e))
}

func TestRecreationChainsSwapchains(t *testing.T) {
	dev := newFakeDevice()
	dev.acquires = []result{staleResult, staleResult}
	e := newTestEngine(t, newFakeWindow(), dev, Options{})
	first := e.swap

	require.False(t, drawFrame(t, e))
	require.True(t, first.Retired())
	require.False(t, e.swap.Retired())
	require.Same(t, dev.swapchains[0], dev.swapchains[1].old)
	require.True(t, dev.swapchains[0].destroyed)

	require.False(t, drawFrame(t, e))
	require.Same(t, dev.swapchains[1], dev.swapchains[2].old)
	require.True(t, dev.swapchains[1].destroyed)
	require.False(t, dev.swapchains[2].destroyed)
	require.Equal(t, 2, dev.waitIdles)
}

func TestInvalidationListeners(t *testing.T) {
	dev := newFakeDevice()
	dev.imageCounts = []int{3, 2}
	dev.acquires = []result{staleResult, staleResult}
	win := newFakeWindow(Extent{800, 600}, Extent{400, 300})
	e := newTestEngine(t, win, dev, Options{})

	var got []Invalidation
	e.OnInvalidate(func(inv Invalidation) error {
		got = append(got, inv)
		return nil
	})
	require.False(t, drawFrame(t, e))
	require.Len(t, got, 1)
	require.Equal(t, Extent{400, 300}, got[0].Extent)
	require.Equal(t, 2, got[0].ImageCount)
	require.Same(t, e.RenderPass(), got[0].RenderPass)

	boom := errors.New("pipeline rebuild failed")
	e.OnInvalidate(func(Invalidation) error { return boom })
	_, err := e.BeginFrame()
	require.ErrorIs(t, err, boom)
}

func TestRenderPassUsesCurrentExtent(t *testing.T) {
	color := [4]float32{0.1, 0.2, 0.3, 1}
	e := newTestEngine(t, newFakeWindow(), newFakeDevice(), Options{ClearColor: color})

	cmd, err := e.BeginFrame()
	require.NoError(t, err)
	require.Same(t, cmd, e.CurrentCommandBuffer())
	e.BeginRenderPass(cmd)
	e.EndRenderPass(cmd)

	fc := cmd.(*fakeCmd)
	require.Equal(t, []string{"reset", "begin", "beginRenderPass", "setViewport", "setScissor", "endRenderPass"}, fc.calls)
	require.Equal(t, color, fc.begin.Clear.Color)
	require.Equal(t, float32(1), fc.begin.Clear.Depth)
	require.Same(t, e.RenderPass(), fc.begin.RenderPass)
	require.Equal(t, Viewport{Width: 800, Height: 600, MaxDepth: 1}, fc.viewport)
	require.Equal(t, Rect{Extent: Extent{800, 600}}, fc.scissor)
	require.NoError(t, e.EndFrame())
	require.Equal(t, "end", fc.calls[len(fc.calls)-1])
}

func TestSubmitErrorClosesFrame(t *testing.T) {
	dev := newFakeDevice()
	e := newTestEngine(t, newFakeWindow(), dev, Options{})
	cmd, err := e.BeginFrame()
	require.NoError(t, err)
	require.NotNil(t, cmd)

	dev.failSubmit = errors.New("device lost")
	err = e.EndFrame()
	require.Error(t, err)
	require.Contains(t, err.Error(), "device lost")
	require.False(t, e.FrameInProgress())
	require.Equal(t, 0, e.Recreations())
}

func TestEngineDestroy(t *testing.T) {
	dev := newFakeDevice()
	e := newTestEngine(t, newFakeWindow(), dev, Options{})
	require.True(t, drawFrame(t, e))

	swap := e.swap
	require.NoError(t, e.Destroy())
	require.True(t, swap.Retired())
	require.Equal(t, 3, dev.frees)
	require.Equal(t, 1, dev.waitIdles)
	for _, f := range dev.fences {
		require.True(t, f.destroyed)
	}
}
