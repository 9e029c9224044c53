package vkdevice

import (
	"math"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"swapline/src/render"
)

// Swapchain wraps a vk.Swapchain and one colour view per image.
type Swapchain struct {
	device      *Device
	VKSwapchain vk.Swapchain
	images      []vk.Image
	views       []vk.ImageView
	format      vk.Format
	extent      vk.Extent2D
}

var _ render.Swapchain = (*Swapchain)(nil)

type surfaceSupport struct {
	caps         vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

func querySurface(pd vk.PhysicalDevice, surface vk.Surface) (surfaceSupport, error) {
	var s surfaceSupport
	if err := NewError(vk.GetPhysicalDeviceSurfaceCapabilities(pd, surface, &s.caps)); err != nil {
		return s, errors.Wrap(err, "query surface capabilities")
	}
	s.caps.Deref()
	s.caps.CurrentExtent.Deref()
	s.caps.MinImageExtent.Deref()
	s.caps.MaxImageExtent.Deref()

	var count uint32
	if err := NewError(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &count, nil)); err != nil {
		return s, errors.Wrap(err, "count surface formats")
	}
	if count > 0 {
		s.formats = make([]vk.SurfaceFormat, count)
		if err := NewError(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &count, s.formats)); err != nil {
			return s, errors.Wrap(err, "query surface formats")
		}
		for i := range s.formats {
			s.formats[i].Deref()
		}
	}

	count = 0
	if err := NewError(vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &count, nil)); err != nil {
		return s, errors.Wrap(err, "count present modes")
	}
	if count > 0 {
		s.presentModes = make([]vk.PresentMode, count)
		if err := NewError(vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &count, s.presentModes)); err != nil {
			return s, errors.Wrap(err, "query present modes")
		}
	}
	return s, nil
}

// NewSwapchain creates a swapchain for the device's surface. opts.Old is
// passed as the old swapchain; the caller destroys it afterwards.
func (d *Device) NewSwapchain(opts render.SwapchainOptions) (render.Swapchain, error) {
	support, err := querySurface(d.VKPhysicalDevice, d.surface)
	if err != nil {
		return nil, err
	}
	if len(support.formats) == 0 || len(support.presentModes) == 0 {
		return nil, errors.New("surface reports no formats or present modes")
	}

	format := chooseSurfaceFormat(support.formats)
	mode := choosePresentMode(opts.PresentMode, support.presentModes)
	extent := chooseExtent(support.caps, extent2D(opts.Extent))
	imageCount := chooseImageCount(support.caps.MinImageCount, support.caps.MaxImageCount, opts.ImageCount)

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    imageCount,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     support.caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      mode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	if d.families.graphics != d.families.present {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{d.families.graphics, d.families.present}
	}
	if old, ok := opts.Old.(*Swapchain); ok && old != nil {
		createInfo.OldSwapchain = old.VKSwapchain
	}

	s := &Swapchain{device: d, format: format.Format, extent: extent}
	if err := NewError(vk.CreateSwapchain(d.VKDevice, &createInfo, nil, &s.VKSwapchain)); err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}
	if err := s.createViews(); err != nil {
		s.Destroy()
		return nil, err
	}
	d.log.Info("swapchain created",
		"extent", render.Extent{Width: extent.Width, Height: extent.Height}.String(),
		"images", len(s.images),
		"format", int32(format.Format),
		"presentMode", int32(mode))
	return s, nil
}

func (s *Swapchain) createViews() error {
	dev := s.device.VKDevice
	var count uint32
	if err := NewError(vk.GetSwapchainImages(dev, s.VKSwapchain, &count, nil)); err != nil {
		return errors.Wrap(err, "count swapchain images")
	}
	s.images = make([]vk.Image, count)
	if err := NewError(vk.GetSwapchainImages(dev, s.VKSwapchain, &count, s.images)); err != nil {
		return errors.Wrap(err, "get swapchain images")
	}
	for i, img := range s.images {
		view, err := createImageView(dev, img, s.format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			return errors.Wrapf(err, "swapchain image view %d", i)
		}
		s.views = append(s.views, view)
	}
	return nil
}

func (s *Swapchain) ImageCount() int      { return len(s.images) }
func (s *Swapchain) Format() render.Format { return render.Format(s.format) }

func (s *Swapchain) Extent() render.Extent {
	return render.Extent{Width: s.extent.Width, Height: s.extent.Height}
}

// Acquire treats a suboptimal image as usable; only out-of-date is stale.
func (s *Swapchain) Acquire(signal render.Semaphore) (int, bool, error) {
	var index uint32
	ret := vk.AcquireNextImage(s.device.VKDevice, s.VKSwapchain, vk.MaxUint64,
		signal.(*Semaphore).VKSemaphore, vk.NullFence, &index)
	stale, err := staleResult(ret, false)
	if err != nil || stale {
		return 0, stale, err
	}
	return int(index), false, nil
}

// Present reports both out-of-date and suboptimal as stale.
func (s *Swapchain) Present(imageIndex int, wait render.Semaphore) (bool, error) {
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait.(*Semaphore).VKSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.VKSwapchain},
		PImageIndices:      []uint32{uint32(imageIndex)},
	}
	return staleResult(vk.QueuePresent(s.device.presentQueue, &info), true)
}

func (s *Swapchain) view(i int) vk.ImageView {
	return s.views[i]
}

func (s *Swapchain) Destroy() {
	dev := s.device.VKDevice
	for _, v := range s.views {
		vk.DestroyImageView(dev, v, nil)
	}
	s.views = nil
	if s.VKSwapchain != vk.NullSwapchain {
		vk.DestroySwapchain(dev, s.VKSwapchain, nil)
		s.VKSwapchain = vk.NullSwapchain
	}
}

// chooseSurfaceFormat prefers 8-bit BGRA sRGB.
func chooseSurfaceFormat(available []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, f := range available {
		if f.Format == vk.FormatB8g8r8a8Srgb && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return available[0]
}

// choosePresentMode returns the requested mode when the surface supports
// it. Otherwise mailbox and immediate fall back to each other before FIFO,
// which every surface supports.
func choosePresentMode(want render.PresentMode, available []vk.PresentMode) vk.PresentMode {
	var order []vk.PresentMode
	switch want {
	case render.PresentMailbox:
		order = []vk.PresentMode{vk.PresentModeMailbox, vk.PresentModeImmediate}
	case render.PresentImmediate:
		order = []vk.PresentMode{vk.PresentModeImmediate, vk.PresentModeMailbox}
	}
	for _, m := range order {
		for _, a := range available {
			if a == m {
				return m
			}
		}
	}
	return vk.PresentModeFifo
}

// chooseExtent uses the surface's current extent unless the window system
// leaves it to the application, in which case want is clamped to the limits.
func chooseExtent(caps vk.SurfaceCapabilities, want vk.Extent2D) vk.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  clamp(want.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(want.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// chooseImageCount asks for one image more than the minimum unless a count
// is requested; max of zero means unbounded.
func chooseImageCount(min, max uint32, requested int) uint32 {
	n := min + 1
	if requested > 0 {
		n = uint32(requested)
	}
	if n < min {
		n = min
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
