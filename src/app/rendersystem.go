package app

import (
	"log/slog"

	"github.com/pkg/errors"

	"swapline/src/render"
	"swapline/src/scene"
)

// rotationStep is how far every object turns per drawn frame, in radians.
const rotationStep = 0.01

// Pipeline is a graphics pipeline the render system binds and feeds push
// constants to.
type Pipeline interface {
	Bind(cmd render.CommandBuffer)
	PushConstants(cmd render.CommandBuffer, data []byte)
	Destroy()
}

// PipelineBuilder compiles a pipeline against a render pass.
type PipelineBuilder func(rp render.RenderPass) (Pipeline, error)

// RenderSystem draws scene objects with one pipeline. The pipeline is
// rebuilt on swap invalidation and, when marked dirty, between frames.
type RenderSystem struct {
	build      PipelineBuilder
	renderPass render.RenderPass
	pipeline   Pipeline
	dirty      bool
	rebuilds   int
	log        *slog.Logger
}

func NewRenderSystem(rp render.RenderPass, build PipelineBuilder, logger *slog.Logger) (*RenderSystem, error) {
	r := &RenderSystem{build: build, renderPass: rp, log: logger}
	p, err := build(rp)
	if err != nil {
		return nil, errors.Wrap(err, "build pipeline")
	}
	r.pipeline = p
	return r, nil
}

// Invalidate rebuilds the pipeline against the new render pass. It is
// registered with render.Engine.OnInvalidate.
func (r *RenderSystem) Invalidate(inv render.Invalidation) error {
	r.renderPass = inv.RenderPass
	return r.Rebuild()
}

func (r *RenderSystem) MarkDirty()  { r.dirty = true }
func (r *RenderSystem) Dirty() bool { return r.dirty }
func (r *RenderSystem) Rebuilds() int {
	return r.rebuilds
}

// Rebuild replaces the pipeline. The GPU must not be using the current one.
// On failure the current pipeline is kept.
func (r *RenderSystem) Rebuild() error {
	r.dirty = false
	p, err := r.build(r.renderPass)
	if err != nil {
		return errors.Wrap(err, "rebuild pipeline")
	}
	if r.pipeline != nil {
		r.pipeline.Destroy()
	}
	r.pipeline = p
	r.rebuilds++
	r.log.Debug("pipeline rebuilt", "rebuilds", r.rebuilds)
	return nil
}

// Draw turns each object by rotationStep and records it. Objects without a
// model are skipped.
func (r *RenderSystem) Draw(cmd render.CommandBuffer, objects []*scene.GameObject) {
	r.pipeline.Bind(cmd)
	for _, o := range objects {
		if o.Model == nil {
			continue
		}
		o.Transform.Rotate(rotationStep)
		push := scene.NewPushConstants(o)
		r.pipeline.PushConstants(cmd, push.Bytes())
		o.Model.Bind(cmd)
		o.Model.Draw(cmd)
	}
}

func (r *RenderSystem) Destroy() {
	if r.pipeline != nil {
		r.pipeline.Destroy()
		r.pipeline = nil
	}
}
