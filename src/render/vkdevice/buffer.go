package vkdevice

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"swapline/src/render"
)

// MinModelVertices is the fewest vertices a triangle-list model may hold.
const MinModelVertices = 3

// Model is an immutable vertex buffer in host-visible, coherent memory.
type Model struct {
	device      vk.Device
	buffer      vk.Buffer
	memory      vk.DeviceMemory
	vertexCount uint32
}

// NewModel uploads data, which holds vertexCount tightly packed vertices.
func (d *Device) NewModel(data []byte, vertexCount int) (*Model, error) {
	if vertexCount < MinModelVertices {
		return nil, errors.Errorf("model needs at least %d vertices, got %d", MinModelVertices, vertexCount)
	}
	if len(data) == 0 || len(data)%vertexCount != 0 {
		return nil, errors.Errorf("%d bytes do not hold %d vertices", len(data), vertexCount)
	}

	m := &Model{device: d.VKDevice, vertexCount: uint32(vertexCount)}
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(len(data)),
		Usage:       vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit),
		SharingMode: vk.SharingModeExclusive,
	}
	if err := NewError(vk.CreateBuffer(d.VKDevice, &info, nil, &m.buffer)); err != nil {
		return nil, errors.Wrap(err, "create vertex buffer")
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.VKDevice, m.buffer, &reqs)
	reqs.Deref()
	memory, err := d.allocate(reqs, vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		m.Destroy()
		return nil, errors.Wrap(err, "vertex buffer memory")
	}
	m.memory = memory
	if err := NewError(vk.BindBufferMemory(d.VKDevice, m.buffer, m.memory, 0)); err != nil {
		m.Destroy()
		return nil, errors.Wrap(err, "bind vertex buffer memory")
	}

	var ptr unsafe.Pointer
	if err := NewError(vk.MapMemory(d.VKDevice, m.memory, 0, vk.DeviceSize(len(data)), 0, &ptr)); err != nil {
		m.Destroy()
		return nil, errors.Wrap(err, "map vertex buffer")
	}
	vk.Memcopy(ptr, data)
	vk.UnmapMemory(d.VKDevice, m.memory)
	return m, nil
}

func (m *Model) VertexCount() int { return int(m.vertexCount) }

func (m *Model) Bind(cmd render.CommandBuffer) {
	vk.CmdBindVertexBuffers(cmd.(*CommandBuffer).VK(), 0, 1, []vk.Buffer{m.buffer}, []vk.DeviceSize{0})
}

func (m *Model) Draw(cmd render.CommandBuffer) {
	vk.CmdDraw(cmd.(*CommandBuffer).VK(), m.vertexCount, 1, 0, 0)
}

func (m *Model) Destroy() {
	if m.buffer != vk.NullBuffer {
		vk.DestroyBuffer(m.device, m.buffer, nil)
		m.buffer = vk.NullBuffer
	}
	if m.memory != vk.NullDeviceMemory {
		vk.FreeMemory(m.device, m.memory, nil)
		m.memory = vk.NullDeviceMemory
	}
}
