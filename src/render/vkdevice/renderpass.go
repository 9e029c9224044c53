package vkdevice

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"swapline/src/render"
)

var depthCandidates = []vk.Format{
	vk.FormatD32Sfloat,
	vk.FormatD32SfloatS8Uint,
	vk.FormatD24UnormS8Uint,
}

type RenderPass struct {
	device       vk.Device
	VKRenderPass vk.RenderPass
	hasDepth     bool
}

var _ render.RenderPass = (*RenderPass)(nil)

// NewRenderPass builds a single-subpass pass that clears and stores one
// colour attachment for presentation, plus an optional depth attachment.
func (d *Device) NewRenderPass(opts render.RenderPassOptions) (render.RenderPass, error) {
	attachments := []vk.AttachmentDescription{{
		Format:         vk.Format(opts.ColorFormat),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
	}
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	hasDepth := opts.DepthFormat != render.FormatUndefined
	if hasDepth {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vk.Format(opts.DepthFormat),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		dependency.SrcStageMask |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
		dependency.DstStageMask |= vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
		dependency.DstAccessMask |= vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	rp := &RenderPass{device: d.VKDevice, hasDepth: hasDepth}
	if err := NewError(vk.CreateRenderPass(d.VKDevice, &info, nil, &rp.VKRenderPass)); err != nil {
		return nil, errors.Wrap(err, "create render pass")
	}
	return rp, nil
}

func (rp *RenderPass) Destroy() {
	vk.DestroyRenderPass(rp.device, rp.VKRenderPass, nil)
}

type Framebuffer struct {
	device        vk.Device
	VKFramebuffer vk.Framebuffer
}

var _ render.Framebuffer = (*Framebuffer)(nil)

func (d *Device) NewFramebuffer(opts render.FramebufferOptions) (render.Framebuffer, error) {
	views := []vk.ImageView{opts.Swapchain.(*Swapchain).view(opts.Image)}
	if opts.Depth != nil {
		views = append(views, opts.Depth.(*DepthTarget).view)
	}
	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      opts.RenderPass.(*RenderPass).VKRenderPass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           opts.Extent.Width,
		Height:          opts.Extent.Height,
		Layers:          1,
	}
	fb := &Framebuffer{device: d.VKDevice}
	if err := NewError(vk.CreateFramebuffer(d.VKDevice, &info, nil, &fb.VKFramebuffer)); err != nil {
		return nil, errors.Wrapf(err, "create framebuffer for image %d", opts.Image)
	}
	return fb, nil
}

func (fb *Framebuffer) Destroy() {
	vk.DestroyFramebuffer(fb.device, fb.VKFramebuffer, nil)
}

// DepthTarget is a device-local depth image with its memory and view.
type DepthTarget struct {
	device vk.Device
	format vk.Format
	image  vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
}

var _ render.DepthTarget = (*DepthTarget)(nil)

// DepthFormat returns the first candidate usable as an optimally tiled
// depth attachment.
func (d *Device) DepthFormat() (render.Format, error) {
	for _, f := range depthCandidates {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.VKPhysicalDevice, f, &props)
		props.Deref()
		if props.OptimalTilingFeatures&vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit) != 0 {
			return render.Format(f), nil
		}
	}
	return render.FormatUndefined, errors.New("no supported depth format")
}

func (d *Device) NewDepthTarget(extent render.Extent, format render.Format) (render.DepthTarget, error) {
	t := &DepthTarget{device: d.VKDevice, format: vk.Format(format)}
	info := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Extent:        vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        t.format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       vk.SampleCount1Bit,
	}
	if err := NewError(vk.CreateImage(d.VKDevice, &info, nil, &t.image)); err != nil {
		return nil, errors.Wrap(err, "create depth image")
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.VKDevice, t.image, &reqs)
	reqs.Deref()
	memory, err := d.allocate(reqs, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		t.Destroy()
		return nil, errors.Wrap(err, "depth image memory")
	}
	t.memory = memory
	if err := NewError(vk.BindImageMemory(d.VKDevice, t.image, t.memory, 0)); err != nil {
		t.Destroy()
		return nil, errors.Wrap(err, "bind depth image memory")
	}

	t.view, err = createImageView(d.VKDevice, t.image, t.format, vk.ImageAspectFlags(vk.ImageAspectDepthBit))
	if err != nil {
		t.Destroy()
		return nil, errors.Wrap(err, "depth image view")
	}
	return t, nil
}

func (t *DepthTarget) Format() render.Format { return render.Format(t.format) }

func (t *DepthTarget) Destroy() {
	if t.view != vk.NullImageView {
		vk.DestroyImageView(t.device, t.view, nil)
		t.view = vk.NullImageView
	}
	if t.image != vk.NullImage {
		vk.DestroyImage(t.device, t.image, nil)
		t.image = vk.NullImage
	}
	if t.memory != vk.NullDeviceMemory {
		vk.FreeMemory(t.device, t.memory, nil)
		t.memory = vk.NullDeviceMemory
	}
}

func createImageView(dev vk.Device, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if err := NewError(vk.CreateImageView(dev, &info, nil, &view)); err != nil {
		return vk.NullImageView, err
	}
	return view, nil
}

// allocate finds a memory type matching reqs and props and allocates
// reqs.Size bytes from it.
func (d *Device) allocate(reqs vk.MemoryRequirements, props vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.VKPhysicalDevice, &memProps)
	memProps.Deref()
	types := make([]vk.MemoryPropertyFlags, memProps.MemoryTypeCount)
	for i := range types {
		memProps.MemoryTypes[i].Deref()
		types[i] = memProps.MemoryTypes[i].PropertyFlags
	}

	index, ok := findMemoryType(reqs.MemoryTypeBits, types, props)
	if !ok {
		return vk.NullDeviceMemory, errors.Errorf("no memory type for filter %#x with properties %#x", reqs.MemoryTypeBits, uint32(props))
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: index,
	}
	var memory vk.DeviceMemory
	if err := NewError(vk.AllocateMemory(d.VKDevice, &info, nil, &memory)); err != nil {
		return vk.NullDeviceMemory, errors.Wrap(err, "allocate memory")
	}
	return memory, nil
}

// findMemoryType returns the first type allowed by typeFilter that has
// every flag in want.
func findMemoryType(typeFilter uint32, types []vk.MemoryPropertyFlags, want vk.MemoryPropertyFlags) (uint32, bool) {
	for i, flags := range types {
		if typeFilter&(1<<uint(i)) == 0 {
			continue
		}
		if flags&want == want {
			return uint32(i), true
		}
	}
	return 0, false
}
