package vkdevice

import (
	"log/slog"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"swapline/src/render"
)

var deviceExtensions = []string{"VK_KHR_swapchain"}

// Device is the render.Device implementation on a single logical Vulkan
// device with one graphics and one present queue.
type Device struct {
	instance *Instance
	surface  vk.Surface
	log      *slog.Logger

	Name             string
	VKPhysicalDevice vk.PhysicalDevice
	VKDevice         vk.Device

	families      queueFamilies
	graphicsQueue vk.Queue
	presentQueue  vk.Queue
	commandPool   vk.CommandPool
}

var _ render.Device = (*Device)(nil)

// New picks the most suitable GPU able to present to surface and opens a
// logical device on it.
func New(inst *Instance, surface vk.Surface, logger *slog.Logger) (*Device, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Device{instance: inst, surface: surface, log: logger}
	if err := d.pickPhysicalDevice(); err != nil {
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		return nil, err
	}
	if err := d.createCommandPool(); err != nil {
		vk.DestroyDevice(d.VKDevice, nil)
		return nil, err
	}
	d.log.Info("vulkan device ready",
		"gpu", d.Name,
		"graphicsFamily", d.families.graphics,
		"presentFamily", d.families.present)
	return d, nil
}

func (d *Device) pickPhysicalDevice() error {
	var count uint32
	if err := NewError(vk.EnumeratePhysicalDevices(d.instance.VKInstance, &count, nil)); err != nil {
		return errors.Wrap(err, "count physical devices")
	}
	if count == 0 {
		return errors.New("no GPU with Vulkan support")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := NewError(vk.EnumeratePhysicalDevices(d.instance.VKInstance, &count, devices)); err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}

	var best uint32
	for _, pd := range devices {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()
		name := vk.ToString(props.DeviceName[:])

		families, ok := findQueueFamilies(d.queueFamilySupport(pd))
		suitable := ok && d.supportsExtensions(pd, deviceExtensions) && d.canPresent(pd)
		score := deviceScore(props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu, suitable)
		d.log.Debug("physical device", "name", name, "score", score)
		if score > best {
			best = score
			d.VKPhysicalDevice = pd
			d.Name = name
			d.families = families
		}
	}
	if best == 0 {
		return errors.New("no GPU can render and present to the window surface")
	}
	return nil
}

func (d *Device) queueFamilySupport(pd vk.PhysicalDevice) []queueSupport {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, props)

	out := make([]queueSupport, count)
	for i, p := range props {
		p.Deref()
		var present vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), d.surface, &present)
		out[i] = queueSupport{
			graphics: p.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0,
			present:  present == vk.True,
		}
	}
	return out
}

func (d *Device) supportsExtensions(pd vk.PhysicalDevice, required []string) bool {
	var count uint32
	if IsError(vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil)) {
		return false
	}
	props := make([]vk.ExtensionProperties, count)
	if IsError(vk.EnumerateDeviceExtensionProperties(pd, "", &count, props)) {
		return false
	}
	names := make([]string, 0, count)
	for _, p := range props {
		p.Deref()
		names = append(names, vk.ToString(p.ExtensionName[:]))
	}
	for _, r := range required {
		if !contains(names, r) {
			return false
		}
	}
	return true
}

func (d *Device) canPresent(pd vk.PhysicalDevice) bool {
	support, err := querySurface(pd, d.surface)
	return err == nil && len(support.formats) > 0 && len(support.presentModes) > 0
}

func (d *Device) createLogicalDevice() error {
	unique := []uint32{d.families.graphics}
	if d.families.present != d.families.graphics {
		unique = append(unique, d.families.present)
	}
	queueInfos := make([]vk.DeviceQueueCreateInfo, 0, len(unique))
	for _, family := range unique {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}
	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: safeStrings(deviceExtensions),
	}
	if d.instance.debugEnabled {
		createInfo.EnabledLayerCount = 1
		createInfo.PpEnabledLayerNames = safeStrings([]string{validationLayer})
	}

	var device vk.Device
	if err := NewError(vk.CreateDevice(d.VKPhysicalDevice, &createInfo, nil, &device)); err != nil {
		return errors.Wrap(err, "create logical device")
	}
	d.VKDevice = device
	vk.GetDeviceQueue(device, d.families.graphics, 0, &d.graphicsQueue)
	vk.GetDeviceQueue(device, d.families.present, 0, &d.presentQueue)
	return nil
}

func (d *Device) createCommandPool() error {
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.families.graphics,
	}
	err := NewError(vk.CreateCommandPool(d.VKDevice, &poolInfo, nil, &d.commandPool))
	return errors.Wrap(err, "create command pool")
}

func (d *Device) WaitIdle() error {
	return errors.Wrap(NewError(vk.DeviceWaitIdle(d.VKDevice)), "device wait idle")
}

func (d *Device) AllocateCommandBuffers(n int) ([]render.CommandBuffer, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(n),
	}
	buffers := make([]vk.CommandBuffer, n)
	if err := NewError(vk.AllocateCommandBuffers(d.VKDevice, &allocInfo, buffers)); err != nil {
		return nil, err
	}
	out := make([]render.CommandBuffer, n)
	for i, b := range buffers {
		out[i] = &CommandBuffer{VKCommandBuffer: b}
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(buffers []render.CommandBuffer) {
	vkBuffers := make([]vk.CommandBuffer, len(buffers))
	for i, b := range buffers {
		vkBuffers[i] = b.(*CommandBuffer).VKCommandBuffer
	}
	vk.FreeCommandBuffers(d.VKDevice, d.commandPool, uint32(len(vkBuffers)), vkBuffers)
}

// Submit queues one command buffer on the graphics queue. It waits on
// info.Wait at the colour attachment output stage.
func (d *Device) Submit(info render.SubmitInfo) error {
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{info.Wait.(*Semaphore).VKSemaphore},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{info.CommandBuffer.(*CommandBuffer).VKCommandBuffer},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{info.Signal.(*Semaphore).VKSemaphore},
	}
	ret := vk.QueueSubmit(d.graphicsQueue, 1, []vk.SubmitInfo{submit}, info.Fence.(*Fence).VKFence)
	return errors.Wrap(NewError(ret), "queue submit")
}

// Destroy releases the command pool and the logical device. Every object
// created from the device must have been destroyed first.
func (d *Device) Destroy() {
	vk.DestroyCommandPool(d.VKDevice, d.commandPool, nil)
	vk.DestroyDevice(d.VKDevice, nil)
}

type queueSupport struct {
	graphics, present bool
}

type queueFamilies struct {
	graphics, present uint32
}

// findQueueFamilies prefers one family that does both graphics and present.
func findQueueFamilies(support []queueSupport) (queueFamilies, bool) {
	graphics, present := -1, -1
	for i, s := range support {
		if s.graphics && s.present {
			return queueFamilies{graphics: uint32(i), present: uint32(i)}, true
		}
		if s.graphics && graphics < 0 {
			graphics = i
		}
		if s.present && present < 0 {
			present = i
		}
	}
	if graphics < 0 || present < 0 {
		return queueFamilies{}, false
	}
	return queueFamilies{graphics: uint32(graphics), present: uint32(present)}, true
}

func deviceScore(discrete, suitable bool) uint32 {
	switch {
	case !suitable:
		return 0
	case discrete:
		return 1000
	default:
		return 1
	}
}
