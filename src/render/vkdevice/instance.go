package vkdevice

import (
	"log/slog"
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

type InstanceOptions struct {
	AppName string
	// Extensions are the instance extensions the window system needs.
	Extensions []string
	// Validation enables the Khronos validation layer and debug reporting.
	Validation bool
	Logger     *slog.Logger
}

// Instance is the Vulkan instance. vk.Init must have been called with a
// loader before it is created.
type Instance struct {
	VKInstance    vk.Instance
	debugCallback vk.DebugReportCallback
	debugEnabled  bool
	log           *slog.Logger
}

func NewInstance(opts InstanceOptions) (*Instance, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	extensions := append([]string(nil), opts.Extensions...)
	var layers []string
	if opts.Validation {
		supported, err := supportedLayers()
		if err != nil {
			return nil, err
		}
		if !contains(supported, validationLayer) {
			return nil, errors.Errorf("validation requested but %s is not installed", validationLayer)
		}
		layers = append(layers, validationLayer)
		extensions = append(extensions, "VK_EXT_debug_report")
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   safeString(opts.AppName),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        safeString("swapline"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 0, 0),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}

	inst := &Instance{log: opts.Logger}
	if err := NewError(vk.CreateInstance(&createInfo, nil, &inst.VKInstance)); err != nil {
		return nil, errors.Wrap(err, "create instance")
	}
	if err := vk.InitInstance(inst.VKInstance); err != nil {
		vk.DestroyInstance(inst.VKInstance, nil)
		return nil, errors.Wrap(err, "load instance functions")
	}
	if opts.Validation {
		if err := inst.installDebugCallback(); err != nil {
			inst.Destroy()
			return nil, err
		}
	}
	return inst, nil
}

func (i *Instance) installDebugCallback() error {
	ret := vk.CreateDebugReportCallback(i.VKInstance, &vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: i.debugReport,
	}, nil, &i.debugCallback)
	if err := NewError(ret); err != nil {
		return errors.Wrap(err, "create debug report callback")
	}
	i.debugEnabled = true
	return nil
}

func (i *Instance) debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		i.log.Error(pMessage, "layer", pLayerPrefix, "code", messageCode)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		i.log.Warn(pMessage, "layer", pLayerPrefix, "code", messageCode)
	default:
		i.log.Debug(pMessage, "layer", pLayerPrefix, "code", messageCode)
	}
	return vk.Bool32(vk.False)
}

func (i *Instance) Destroy() {
	if i.debugEnabled {
		vk.DestroyDebugReportCallback(i.VKInstance, i.debugCallback, nil)
	}
	vk.DestroyInstance(i.VKInstance, nil)
}

func supportedLayers() ([]string, error) {
	var count uint32
	if err := NewError(vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return nil, errors.Wrap(err, "count instance layers")
	}
	props := make([]vk.LayerProperties, count)
	if err := NewError(vk.EnumerateInstanceLayerProperties(&count, props)); err != nil {
		return nil, errors.Wrap(err, "enumerate instance layers")
	}
	names := make([]string, 0, count)
	for _, p := range props {
		p.Deref()
		names = append(names, vk.ToString(p.LayerName[:]))
	}
	return names, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// safeString null-terminates s for the C side.
func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + "\x00"
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}
