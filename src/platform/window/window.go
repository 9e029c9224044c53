// Package window is the GLFW desktop window the engine presents to.
//
// GLFW must be driven from the main OS thread: Init, New, the event pumps
// and Destroy all belong to the goroutine that locked it.
package window

import (
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"swapline/src/render"
)

// Init starts GLFW and points the Vulkan loader at GLFW's
// vkGetInstanceProcAddr. It panics if the loader fails to initialise.
func Init() error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "glfw init")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.New("glfw reports no Vulkan loader")
	}
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	render.OrPanic(errors.Wrap(vk.Init(), "vulkan init"), glfw.Terminate)
	return nil
}

func Terminate() {
	glfw.Terminate()
}

type Options struct {
	Title     string
	Width     int
	Height    int
	Resizable bool
}

// Window implements render.Window. The resize flag is raised from GLFW's
// framebuffer-size callback while events are pumped.
type Window struct {
	glfw    *glfw.Window
	resized bool
}

var _ render.Window = (*Window)(nil)

func New(opts Options) (*Window, error) {
	glfw.DefaultWindowHints()
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	if opts.Resizable {
		glfw.WindowHint(glfw.Resizable, glfw.True)
	} else {
		glfw.WindowHint(glfw.Resizable, glfw.False)
	}
	gw, err := glfw.CreateWindow(opts.Width, opts.Height, opts.Title, nil, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "create %dx%d window", opts.Width, opts.Height)
	}
	w := &Window{glfw: gw}
	gw.SetFramebufferSizeCallback(w.framebufferResized)
	return w, nil
}

func (w *Window) framebufferResized(_ *glfw.Window, width, height int) {
	w.resized = true
}

// Extent is the framebuffer size in pixels, zero while minimized.
func (w *Window) Extent() render.Extent {
	return extentFromSize(w.glfw.GetFramebufferSize())
}

func (w *Window) PollEvents() { glfw.PollEvents() }
func (w *Window) WaitEvents() { glfw.WaitEvents() }

func (w *Window) WasResized() bool { return w.resized }
func (w *Window) ClearResized()    { w.resized = false }

func (w *Window) ShouldClose() bool { return w.glfw.ShouldClose() }

// RequestClose makes the next ShouldClose report true.
func (w *Window) RequestClose() { w.glfw.SetShouldClose(true) }

// RequiredInstanceExtensions lists the instance extensions GLFW needs to
// create surfaces.
func (w *Window) RequiredInstanceExtensions() []string {
	return w.glfw.GetRequiredInstanceExtensions()
}

func (w *Window) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	ptr, err := w.glfw.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, errors.Wrap(err, "create window surface")
	}
	return vk.SurfaceFromPointer(ptr), nil
}

func (w *Window) Destroy() {
	w.glfw.Destroy()
}

func extentFromSize(width, height int) render.Extent {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return render.Extent{Width: uint32(width), Height: uint32(height)}
}
