package vkdevice

import (
	vk "github.com/vulkan-go/vulkan"

	"swapline/src/render"
)

// CommandBuffer is a primary command buffer from the device's pool. Drawing
// code records through VK with the native vk.Cmd* functions.
type CommandBuffer struct {
	VKCommandBuffer vk.CommandBuffer
}

var _ render.CommandBuffer = (*CommandBuffer)(nil)

func (c *CommandBuffer) VK() vk.CommandBuffer {
	return c.VKCommandBuffer
}

func (c *CommandBuffer) Begin() error {
	info := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	return NewError(vk.BeginCommandBuffer(c.VKCommandBuffer, &info))
}

func (c *CommandBuffer) End() error {
	return NewError(vk.EndCommandBuffer(c.VKCommandBuffer))
}

func (c *CommandBuffer) Reset() error {
	return NewError(vk.ResetCommandBuffer(c.VKCommandBuffer, 0))
}

func (c *CommandBuffer) BeginRenderPass(begin render.RenderPassBegin) {
	clearValues := []vk.ClearValue{vk.NewClearValue(begin.Clear.Color[:])}
	rp := begin.RenderPass.(*RenderPass)
	if rp.hasDepth {
		clearValues = append(clearValues, vk.NewClearDepthStencil(begin.Clear.Depth, begin.Clear.Stencil))
	}
	info := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      rp.VKRenderPass,
		Framebuffer:     begin.Framebuffer.(*Framebuffer).VKFramebuffer,
		RenderArea:      rect2D(begin.Area),
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(c.VKCommandBuffer, &info, vk.SubpassContentsInline)
}

func (c *CommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(c.VKCommandBuffer)
}

func (c *CommandBuffer) SetViewport(v render.Viewport) {
	vk.CmdSetViewport(c.VKCommandBuffer, 0, 1, []vk.Viewport{{
		X:        v.X,
		Y:        v.Y,
		Width:    v.Width,
		Height:   v.Height,
		MinDepth: v.MinDepth,
		MaxDepth: v.MaxDepth,
	}})
}

func (c *CommandBuffer) SetScissor(r render.Rect) {
	vk.CmdSetScissor(c.VKCommandBuffer, 0, 1, []vk.Rect2D{rect2D(r)})
}

func rect2D(r render.Rect) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: extent2D(r.Extent),
	}
}

func extent2D(e render.Extent) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}
