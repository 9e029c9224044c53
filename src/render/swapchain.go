package render

import (
	"github.com/pkg/errors"
)

type SwapImageSetOptions struct {
	Extent Extent
	// FramesInFlight is the number of sync slots, independent of the image
	// count. Zero means DefaultFramesInFlight.
	FramesInFlight int
	// Depth adds a depth attachment per image.
	Depth       bool
	PresentMode PresentMode
	// ImageCount is a request; the device decides. Zero lets it choose.
	ImageCount int
}

// SwapImageSet owns the presentable images of one swapchain generation,
// the render pass and framebuffers that target them, and the per-slot
// sync objects. A set is never resized: recreation builds a new set from
// its predecessor, which is retired in the process.
type SwapImageSet struct {
	dev  Device
	opts SwapImageSetOptions

	swapchain    Swapchain
	renderPass   RenderPass
	depth        []DepthTarget
	framebuffers []Framebuffer
	syncs        []*SyncSet

	// imagesInFlight[i] is the InFlight fence of the slot that last
	// submitted work targeting image i.
	imagesInFlight []Fence

	extent      Extent
	colorFormat Format
	depthFormat Format
	imageCount  int

	retired bool
}

// NewSwapImageSet builds a set sized to opts.Extent. When predecessor is
// non-nil its swapchain is handed to the device for reuse and the
// predecessor is retired once the new set is complete; it must not be used
// afterwards except for its format and extent accessors.
func NewSwapImageSet(dev Device, opts SwapImageSetOptions, predecessor *SwapImageSet) (*SwapImageSet, error) {
	if opts.Extent.IsZero() {
		return nil, errors.Wrapf(ErrZeroExtent, "extent %v", opts.Extent)
	}
	if opts.FramesInFlight <= 0 {
		opts.FramesInFlight = DefaultFramesInFlight
	}
	if predecessor != nil {
		assertf(!predecessor.retired, "NewSwapImageSet", "predecessor has already been retired")
	}

	s := &SwapImageSet{dev: dev, opts: opts}
	if err := s.init(predecessor); err != nil {
		s.release()
		return nil, err
	}
	if predecessor != nil {
		predecessor.release()
	}
	return s, nil
}

func (s *SwapImageSet) init(predecessor *SwapImageSet) error {
	var old Swapchain
	if predecessor != nil {
		old = predecessor.swapchain
	}

	var err error
	s.swapchain, err = s.dev.NewSwapchain(SwapchainOptions{
		Extent:      s.opts.Extent,
		ImageCount:  s.opts.ImageCount,
		PresentMode: s.opts.PresentMode,
		Old:         old,
	})
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	s.extent = s.swapchain.Extent()
	s.colorFormat = s.swapchain.Format()
	s.imageCount = s.swapchain.ImageCount()
	assertf(s.imageCount > 0, "NewSwapImageSet", "device created a swapchain without images")

	if s.opts.Depth {
		if s.depthFormat, err = s.dev.DepthFormat(); err != nil {
			return errors.Wrap(err, "select depth format")
		}
	}

	s.renderPass, err = s.dev.NewRenderPass(RenderPassOptions{
		ColorFormat: s.colorFormat,
		DepthFormat: s.depthFormat,
	})
	if err != nil {
		return errors.Wrap(err, "create render pass")
	}

	for i := 0; i < s.imageCount; i++ {
		var depth DepthTarget
		if s.opts.Depth {
			depth, err = s.dev.NewDepthTarget(s.extent, s.depthFormat)
			if err != nil {
				return errors.Wrapf(err, "create depth target %d", i)
			}
			s.depth = append(s.depth, depth)
		}
		var fb Framebuffer
		fb, err = s.dev.NewFramebuffer(FramebufferOptions{
			RenderPass: s.renderPass,
			Swapchain:  s.swapchain,
			Image:      i,
			Depth:      depth,
			Extent:     s.extent,
		})
		if err != nil {
			return errors.Wrapf(err, "create framebuffer %d", i)
		}
		s.framebuffers = append(s.framebuffers, fb)
	}

	if s.syncs, err = newSyncSets(s.dev, s.opts.FramesInFlight); err != nil {
		return err
	}
	s.imagesInFlight = make([]Fence, s.imageCount)
	return nil
}

// AcquireNext waits until the slot's previous submission has completed and
// requests the next image, raising the slot's ImageAcquired semaphore when
// it is writable. Work still pending on the returned image from another slot
// is waited for too, so its command buffer may be reset. A stale result is
// not an error: the caller must recreate.
func (s *SwapImageSet) AcquireNext(slot int) (imageIndex int, stale bool, err error) {
	s.checkLive("AcquireNext")
	s.checkSlot("AcquireNext", slot)

	sync := s.syncs[slot]
	if err := sync.InFlight.Wait(); err != nil {
		return 0, false, errors.Wrapf(err, "wait for frame slot %d", slot)
	}
	imageIndex, stale, err = s.swapchain.Acquire(sync.ImageAcquired)
	if err != nil {
		return 0, false, errors.Wrap(err, "acquire next image")
	}
	if stale {
		return 0, true, nil
	}
	if imageIndex < 0 || imageIndex >= s.imageCount {
		return 0, false, errors.Errorf("acquire returned image %d of %d", imageIndex, s.imageCount)
	}
	if prev := s.imagesInFlight[imageIndex]; prev != nil && prev != sync.InFlight {
		if err := prev.Wait(); err != nil {
			return 0, false, errors.Wrapf(err, "wait for image %d", imageIndex)
		}
	}
	return imageIndex, false, nil
}

// Submit queues cmd for the slot and records the slot's fence against the
// image. imageIndex must come from AcquireNext on the same slot.
func (s *SwapImageSet) Submit(cmd CommandBuffer, slot, imageIndex int) error {
	s.checkLive("Submit")
	s.checkSlot("Submit", slot)
	s.checkImage("Submit", imageIndex)

	sync := s.syncs[slot]
	// The fence must be unsignaled when handed to the queue.
	if err := sync.InFlight.Reset(); err != nil {
		return errors.Wrapf(err, "reset fence of frame slot %d", slot)
	}
	err := s.dev.Submit(SubmitInfo{
		CommandBuffer: cmd,
		Wait:          sync.ImageAcquired,
		Signal:        sync.RenderFinished,
		Fence:         sync.InFlight,
	})
	if err != nil {
		return errors.Wrap(err, "submit frame")
	}
	s.imagesInFlight[imageIndex] = sync.InFlight
	return nil
}

// Present queues imageIndex for display after the slot's RenderFinished.
func (s *SwapImageSet) Present(slot, imageIndex int) (stale bool, err error) {
	s.checkLive("Present")
	s.checkSlot("Present", slot)
	s.checkImage("Present", imageIndex)

	stale, err = s.swapchain.Present(imageIndex, s.syncs[slot].RenderFinished)
	if err != nil {
		return false, errors.Wrapf(err, "present image %d", imageIndex)
	}
	return stale, nil
}

// CompareFormats reports whether both sets use the same colour and depth
// formats.
func (s *SwapImageSet) CompareFormats(other *SwapImageSet) bool {
	return s.colorFormat == other.colorFormat && s.depthFormat == other.depthFormat
}

func (s *SwapImageSet) ImageCount() int        { return s.imageCount }
func (s *SwapImageSet) Extent() Extent         { return s.extent }
func (s *SwapImageSet) ColorFormat() Format    { return s.colorFormat }
func (s *SwapImageSet) DepthFormat() Format    { return s.depthFormat }
func (s *SwapImageSet) FramesInFlight() int    { return s.opts.FramesInFlight }
func (s *SwapImageSet) AspectRatio() float32   { return s.extent.AspectRatio() }
func (s *SwapImageSet) RenderPass() RenderPass { return s.renderPass }

func (s *SwapImageSet) Framebuffer(imageIndex int) Framebuffer {
	s.checkImage("Framebuffer", imageIndex)
	return s.framebuffers[imageIndex]
}

func (s *SwapImageSet) SyncSet(slot int) *SyncSet {
	s.checkSlot("SyncSet", slot)
	return s.syncs[slot]
}

// Retired reports whether the set's resources have been released, either
// by Destroy or by a successor built from it.
func (s *SwapImageSet) Retired() bool {
	return s.retired
}

// Destroy releases every resource of the set. The device must be idle.
func (s *SwapImageSet) Destroy() {
	s.release()
}

func (s *SwapImageSet) release() {
	if s.retired {
		return
	}
	s.retired = true
	for _, sync := range s.syncs {
		sync.destroy()
	}
	s.syncs = nil
	s.imagesInFlight = nil
	for _, fb := range s.framebuffers {
		fb.Destroy()
	}
	s.framebuffers = nil
	for _, d := range s.depth {
		d.Destroy()
	}
	s.depth = nil
	if s.renderPass != nil {
		s.renderPass.Destroy()
		s.renderPass = nil
	}
	if s.swapchain != nil {
		s.swapchain.Destroy()
		s.swapchain = nil
	}
}

func (s *SwapImageSet) checkLive(op string) {
	assertf(!s.retired, op, "swap image set has been retired")
}

func (s *SwapImageSet) checkSlot(op string, slot int) {
	assertf(slot >= 0 && slot < len(s.syncs), op, "frame slot %d out of range [0,%d)", slot, len(s.syncs))
}

func (s *SwapImageSet) checkImage(op string, imageIndex int) {
	assertf(imageIndex >= 0 && imageIndex < s.imageCount, op, "image %d out of range [0,%d)", imageIndex, s.imageCount)
}
