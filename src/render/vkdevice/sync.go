package vkdevice

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"swapline/src/render"
)

type Semaphore struct {
	device      vk.Device
	VKSemaphore vk.Semaphore
}

func (d *Device) NewSemaphore() (render.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	s := &Semaphore{device: d.VKDevice}
	if err := NewError(vk.CreateSemaphore(d.VKDevice, &info, nil, &s.VKSemaphore)); err != nil {
		return nil, errors.Wrap(err, "create semaphore")
	}
	return s, nil
}

func (s *Semaphore) Destroy() {
	vk.DestroySemaphore(s.device, s.VKSemaphore, nil)
}

type Fence struct {
	device  vk.Device
	VKFence vk.Fence
}

func (d *Device) NewFence(signaled bool) (render.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	f := &Fence{device: d.VKDevice}
	if err := NewError(vk.CreateFence(d.VKDevice, &info, nil, &f.VKFence)); err != nil {
		return nil, errors.Wrap(err, "create fence")
	}
	return f, nil
}

// Wait blocks without timeout until the fence is signaled.
func (f *Fence) Wait() error {
	ret := vk.WaitForFences(f.device, 1, []vk.Fence{f.VKFence}, vk.True, vk.MaxUint64)
	return errors.Wrap(NewError(ret), "wait for fence")
}

func (f *Fence) Reset() error {
	return errors.Wrap(NewError(vk.ResetFences(f.device, 1, []vk.Fence{f.VKFence})), "reset fence")
}

func (f *Fence) Destroy() {
	vk.DestroyFence(f.device, f.VKFence, nil)
}
