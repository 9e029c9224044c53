package vkdevice

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"swapline/src/render"
)

// VertexAttribute is one float vector attribute of the single vertex binding.
type VertexAttribute struct {
	Location   uint32
	Components int
	Offset     uint32
}

type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

type PipelineOptions struct {
	RenderPass   render.RenderPass
	VertexCode   []byte
	FragmentCode []byte
	Vertex       VertexLayout
	// PushConstantSize is the size of the block visible to both stages.
	PushConstantSize uint32
}

// Pipeline is a graphics pipeline with its layout. Viewport and scissor are
// dynamic so the pipeline survives swapchain recreation as long as the
// render pass does.
type Pipeline struct {
	device     vk.Device
	layout     vk.PipelineLayout
	VKPipeline vk.Pipeline
	pushStages vk.ShaderStageFlags
}

func (d *Device) NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	attributes, err := attributeDescriptions(opts.Vertex.Attributes)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		device:     d.VKDevice,
		pushStages: vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
	}
	layoutInfo := vk.PipelineLayoutCreateInfo{SType: vk.StructureTypePipelineLayoutCreateInfo}
	if opts.PushConstantSize > 0 {
		layoutInfo.PushConstantRangeCount = 1
		layoutInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: p.pushStages,
			Offset:     0,
			Size:       opts.PushConstantSize,
		}}
	}
	if err := NewError(vk.CreatePipelineLayout(d.VKDevice, &layoutInfo, nil, &p.layout)); err != nil {
		return nil, errors.Wrap(err, "create pipeline layout")
	}

	vert, err := createShaderModule(d.VKDevice, opts.VertexCode)
	if err != nil {
		p.Destroy()
		return nil, errors.Wrap(err, "vertex shader")
	}
	defer vk.DestroyShaderModule(d.VKDevice, vert, nil)
	frag, err := createShaderModule(d.VKDevice, opts.FragmentCode)
	if err != nil {
		p.Destroy()
		return nil, errors.Wrap(err, "fragment shader")
	}
	defer vk.DestroyShaderModule(d.VKDevice, frag, nil)

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vert,
			PName:  safeString("main"),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: frag,
			PName:  safeString("main"),
		},
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                         vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount: 1,
		PVertexBindingDescriptions: []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    opts.Vertex.Stride,
			InputRate: vk.VertexInputRateVertex,
		}},
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		LineWidth:   1,
		CullMode:    vk.CullModeFlags(vk.CullModeNone),
		FrontFace:   vk.FrontFaceClockwise,
	}
	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1,
	}
	colorBlending := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments: []vk.PipelineColorBlendAttachmentState{{
			ColorWriteMask: vk.ColorComponentFlags(
				vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
			BlendEnable:         vk.False,
			SrcColorBlendFactor: vk.BlendFactorOne,
			DstColorBlendFactor: vk.BlendFactorZero,
			ColorBlendOp:        vk.BlendOpAdd,
			SrcAlphaBlendFactor: vk.BlendFactorOne,
			DstAlphaBlendFactor: vk.BlendFactorZero,
			AlphaBlendOp:        vk.BlendOpAdd,
		}},
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	rp := opts.RenderPass.(*RenderPass)
	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PColorBlendState:    &colorBlending,
		PDynamicState:       &dynamicState,
		Layout:              p.layout,
		RenderPass:          rp.VKRenderPass,
		BasePipelineIndex:   -1,
	}
	if rp.hasDepth {
		info.PDepthStencilState = &vk.PipelineDepthStencilStateCreateInfo{
			SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  vk.True,
			DepthWriteEnable: vk.True,
			DepthCompareOp:   vk.CompareOpLess,
			MinDepthBounds:   0,
			MaxDepthBounds:   1,
		}
	}

	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateGraphicsPipelines(d.VKDevice, vk.PipelineCache(vk.NullHandle), 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if err := NewError(ret); err != nil {
		p.Destroy()
		return nil, errors.Wrap(err, "create graphics pipeline")
	}
	p.VKPipeline = pipelines[0]
	return p, nil
}

func (p *Pipeline) Bind(cmd render.CommandBuffer) {
	vk.CmdBindPipeline(cmd.(*CommandBuffer).VK(), vk.PipelineBindPointGraphics, p.VKPipeline)
}

// PushConstants writes data at offset zero of the push constant block.
func (p *Pipeline) PushConstants(cmd render.CommandBuffer, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(cmd.(*CommandBuffer).VK(), p.layout, p.pushStages, 0, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (p *Pipeline) Destroy() {
	if p.VKPipeline != vk.NullPipeline {
		vk.DestroyPipeline(p.device, p.VKPipeline, nil)
		p.VKPipeline = vk.NullPipeline
	}
	if p.layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(p.device, p.layout, nil)
		p.layout = vk.NullPipelineLayout
	}
}

func createShaderModule(dev vk.Device, code []byte) (vk.ShaderModule, error) {
	words, err := repackUint32(code)
	if err != nil {
		return vk.NullShaderModule, err
	}
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}
	var module vk.ShaderModule
	if err := NewError(vk.CreateShaderModule(dev, &info, nil, &module)); err != nil {
		return vk.NullShaderModule, errors.Wrap(err, "create shader module")
	}
	return module, nil
}

// repackUint32 reinterprets SPIR-V bytes as host-order words.
func repackUint32(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Errorf("SPIR-V code size %d is not a positive multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	vk.Memcopy(unsafe.Pointer(&words[0]), code)
	return words, nil
}

func attributeDescriptions(attrs []VertexAttribute) ([]vk.VertexInputAttributeDescription, error) {
	out := make([]vk.VertexInputAttributeDescription, 0, len(attrs))
	for _, a := range attrs {
		format, err := attributeFormat(a.Components)
		if err != nil {
			return nil, errors.Wrapf(err, "vertex attribute at location %d", a.Location)
		}
		out = append(out, vk.VertexInputAttributeDescription{
			Binding:  0,
			Location: a.Location,
			Format:   format,
			Offset:   a.Offset,
		})
	}
	return out, nil
}

func attributeFormat(components int) (vk.Format, error) {
	switch components {
	case 1:
		return vk.FormatR32Sfloat, nil
	case 2:
		return vk.FormatR32g32Sfloat, nil
	case 3:
		return vk.FormatR32g32b32Sfloat, nil
	case 4:
		return vk.FormatR32g32b32a32Sfloat, nil
	}
	return vk.FormatUndefined, errors.Errorf("unsupported component count %d", components)
}
