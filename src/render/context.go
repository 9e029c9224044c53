package render

// Window is the part of the windowing layer the engine consumes. Resize
// notifications are polled: the window raises a flag while pumping events
// and the engine clears it once it has handled the resize.
type Window interface {
	// Extent returns the current drawable size in pixels.
	Extent() Extent
	PollEvents()
	// WaitEvents blocks until at least one window event arrives.
	WaitEvents()
	WasResized() bool
	ClearResized()
}

type Semaphore interface {
	Destroy()
}

// Fence is a CPU-waitable completion signal for submitted GPU work.
type Fence interface {
	Wait() error
	Reset() error
	Destroy()
}

type RenderPass interface {
	Destroy()
}

type Framebuffer interface {
	Destroy()
}

// DepthTarget is a depth attachment sized to one swap image.
type DepthTarget interface {
	Format() Format
	Destroy()
}

// Swapchain is the device-level set of presentable images.
type Swapchain interface {
	ImageCount() int
	Format() Format
	Extent() Extent
	// Acquire requests the next writable image, raising signal when it
	// becomes available. stale reports that the swapchain no longer matches
	// its surface.
	Acquire(signal Semaphore) (imageIndex int, stale bool, err error)
	// Present queues imageIndex for display once wait is raised.
	Present(imageIndex int, wait Semaphore) (stale bool, err error)
	Destroy()
}

type SwapchainOptions struct {
	Extent      Extent
	ImageCount  int
	PresentMode PresentMode
	// Old is handed to the device so compatible resources can be reused.
	// The caller still owns it and destroys it afterwards.
	Old Swapchain
}

type RenderPassOptions struct {
	ColorFormat Format
	// DepthFormat is FormatUndefined when the pass has no depth attachment.
	DepthFormat Format
}

type FramebufferOptions struct {
	RenderPass RenderPass
	Swapchain  Swapchain
	Image      int
	Depth      DepthTarget
	Extent     Extent
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Area        Rect
	Clear       ClearValues
}

// CommandBuffer records GPU commands. Pipelines and drawables record into it
// through their own device-specific accessors.
type CommandBuffer interface {
	Begin() error
	End() error
	Reset() error
	BeginRenderPass(begin RenderPassBegin)
	EndRenderPass()
	SetViewport(v Viewport)
	SetScissor(r Rect)
}

type SubmitInfo struct {
	CommandBuffer CommandBuffer
	// Wait is waited on at the colour attachment output stage.
	Wait   Semaphore
	Signal Semaphore
	Fence  Fence
}

// CommandAllocator hands out primary command buffers by count.
type CommandAllocator interface {
	AllocateCommandBuffers(n int) ([]CommandBuffer, error)
	FreeCommandBuffers(buffers []CommandBuffer)
}

// Device is the capability provider the presentation core runs on.
type Device interface {
	CommandAllocator

	// WaitIdle blocks until the device has no outstanding work.
	WaitIdle() error
	NewSemaphore() (Semaphore, error)
	NewFence(signaled bool) (Fence, error)
	NewSwapchain(opts SwapchainOptions) (Swapchain, error)
	// DepthFormat returns the preferred supported depth attachment format.
	DepthFormat() (Format, error)
	NewRenderPass(opts RenderPassOptions) (RenderPass, error)
	NewDepthTarget(extent Extent, format Format) (DepthTarget, error)
	NewFramebuffer(opts FramebufferOptions) (Framebuffer, error)
	Submit(info SubmitInfo) error
}
