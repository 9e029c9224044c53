// Package app wires the window, the Vulkan device, the presentation engine
// and the demo scene into the frame loop.
package app

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"swapline/src/config"
	"swapline/src/platform/window"
	"swapline/src/render"
	"swapline/src/render/vkdevice"
	"swapline/src/scene"
)

type frameEngine interface {
	BeginFrame() (render.CommandBuffer, error)
	BeginRenderPass(cmd render.CommandBuffer)
	EndRenderPass(cmd render.CommandBuffer)
	EndFrame() error
}

type eventSource interface {
	PollEvents()
	ShouldClose() bool
}

// loop is the frame loop without its GPU and window setup.
type loop struct {
	win    eventSource
	engine frameEngine
	stats  *Stats
	// prepare runs between frames, before acquire.
	prepare func() error
	draw    func(cmd render.CommandBuffer)
}

// run pumps frames until the window asks to close or ctx is done.
func (l *loop) run(ctx context.Context) error {
	for !l.win.ShouldClose() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		l.win.PollEvents()
		if l.prepare != nil {
			if err := l.prepare(); err != nil {
				return err
			}
		}
		if err := l.frame(); err != nil {
			return err
		}
	}
	return nil
}

func (l *loop) frame() error {
	l.stats.FrameStart()
	cmd, err := l.engine.BeginFrame()
	if err != nil {
		return errors.Wrap(err, "begin frame")
	}
	if cmd == nil {
		l.stats.FrameSkipped()
		return nil
	}
	l.engine.BeginRenderPass(cmd)
	l.draw(cmd)
	l.engine.EndRenderPass(cmd)
	if err := l.engine.EndFrame(); err != nil {
		return errors.Wrap(err, "end frame")
	}
	l.stats.FrameDone()
	return nil
}

// App owns every GPU and window resource of a run.
type App struct {
	cfg config.Config
	log *slog.Logger

	win     *window.Window
	inst    *vkdevice.Instance
	surface vk.Surface
	dev     *vkdevice.Device
	engine  *render.Engine
	model   *vkdevice.Model
	scene   *scene.Scene
	system  *RenderSystem
	stats   *Stats
	watcher *ShaderWatcher
}

func New(cfg config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, log: logger}
}

// Run opens the window and renders until it is closed or ctx is done. It
// must be called from the main OS thread.
func (a *App) Run(ctx context.Context) error {
	if err := window.Init(); err != nil {
		return err
	}
	defer window.Terminate()
	defer a.close()

	if err := a.init(); err != nil {
		return err
	}
	interval := a.cfg.Stats.Interval.Duration
	if !a.cfg.Stats.Enabled {
		interval = 0
	}
	a.stats = NewStats(a.log, interval)
	a.engine.OnInvalidate(func(render.Invalidation) error {
		a.stats.Recreated()
		return nil
	})

	l := &loop{
		win:     a.win,
		engine:  a.engine,
		stats:   a.stats,
		prepare: a.reloadShaders,
		draw: func(cmd render.CommandBuffer) {
			a.system.Draw(cmd, a.scene.Objects())
		},
	}
	err := l.run(ctx)
	a.log.Info("frame loop stopped",
		"frames", a.stats.TotalFrames(),
		"recreations", a.engine.Recreations())
	return err
}

func (a *App) init() error {
	w, err := window.New(window.Options{
		Title:     a.cfg.Window.Title,
		Width:     a.cfg.Window.Width,
		Height:    a.cfg.Window.Height,
		Resizable: a.cfg.Window.Resizable,
	})
	if err != nil {
		return err
	}
	a.win = w

	a.inst, err = vkdevice.NewInstance(vkdevice.InstanceOptions{
		AppName:    a.cfg.Window.Title,
		Extensions: w.RequiredInstanceExtensions(),
		Validation: a.cfg.Render.Validation,
		Logger:     a.log,
	})
	if err != nil {
		return err
	}
	a.surface, err = w.CreateSurface(a.inst.VKInstance)
	if err != nil {
		return err
	}
	a.dev, err = vkdevice.New(a.inst, a.surface, a.log)
	if err != nil {
		return err
	}

	a.engine, err = render.NewEngine(w, a.dev, render.Options{
		FramesInFlight: a.cfg.Render.FramesInFlight,
		Depth:          a.cfg.Render.Depth,
		PresentMode:    a.cfg.PresentMode(),
		ImageCount:     a.cfg.Render.ImageCount,
		ClearColor:     a.cfg.Render.ClearColor,
		Logger:         a.log,
	})
	if err != nil {
		return err
	}

	vertices := scene.DemoVertices(a.cfg.Render.SierpinskiDepth)
	a.model, err = a.dev.NewModel(scene.VertexBytes(vertices), len(vertices))
	if err != nil {
		return errors.Wrap(err, "demo model")
	}
	a.scene = scene.New()
	a.scene.AddDemo(a.model)

	a.system, err = NewRenderSystem(a.engine.RenderPass(), a.buildPipeline, a.log)
	if err != nil {
		return err
	}
	a.engine.OnInvalidate(a.system.Invalidate)

	if a.cfg.Shaders.Watch {
		a.watcher, err = WatchShaders([]string{a.cfg.Shaders.Vertex, a.cfg.Shaders.Fragment}, a.log)
		if err != nil {
			return err
		}
	}
	return nil
}

// buildPipeline reads the shaders from disk on every call so rebuilds pick
// up edits.
func (a *App) buildPipeline(rp render.RenderPass) (Pipeline, error) {
	vert, err := LoadShader(a.cfg.Shaders.Vertex)
	if err != nil {
		return nil, err
	}
	frag, err := LoadShader(a.cfg.Shaders.Fragment)
	if err != nil {
		return nil, err
	}
	p, err := a.dev.NewPipeline(vkdevice.PipelineOptions{
		RenderPass:   rp,
		VertexCode:   vert,
		FragmentCode: frag,
		Vertex: vkdevice.VertexLayout{
			Stride: scene.VertexStride,
			Attributes: []vkdevice.VertexAttribute{
				{Location: 0, Components: 2, Offset: scene.VertexPositionOffset},
				{Location: 1, Components: 3, Offset: scene.VertexColorOffset},
			},
		},
		PushConstantSize: scene.PushConstantsSize,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// reloadShaders rebuilds the pipeline after a shader change. A shader that
// fails to build is logged and the previous pipeline stays in use.
func (a *App) reloadShaders() error {
	if a.watcher != nil && a.watcher.Changed() {
		a.system.MarkDirty()
	}
	if !a.system.Dirty() {
		return nil
	}
	if err := a.dev.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait for device idle")
	}
	if err := a.system.Rebuild(); err != nil {
		a.log.Error("shader reload failed, keeping previous pipeline", "err", err)
		return nil
	}
	a.log.Info("shaders reloaded")
	return nil
}

// close releases in reverse order of creation whatever init managed to
// create.
func (a *App) close() {
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			a.log.Warn("close shader watcher", "err", err)
		}
	}
	if a.dev != nil {
		if err := a.dev.WaitIdle(); err != nil {
			a.log.Error("wait for device idle", "err", err)
		}
	}
	if a.system != nil {
		a.system.Destroy()
	}
	if a.model != nil {
		a.model.Destroy()
	}
	if a.engine != nil {
		if err := a.engine.Destroy(); err != nil {
			a.log.Error("destroy engine", "err", err)
		}
	}
	if a.dev != nil {
		a.dev.Destroy()
	}
	if a.surface != vk.NullSurface {
		vk.DestroySurface(a.inst.VKInstance, a.surface, nil)
	}
	if a.inst != nil {
		a.inst.Destroy()
	}
	if a.win != nil {
		a.win.Destroy()
	}
}
