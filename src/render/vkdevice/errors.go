package vkdevice

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// NewError converts a non-success result into an error carrying the result
// code and a stack trace. It returns nil for vk.Success.
func NewError(ret vk.Result) error {
	if !IsError(ret) {
		return nil
	}
	return errors.Wrapf(vk.Error(ret), "vulkan error (%d)", int32(ret))
}

func IsError(ret vk.Result) bool {
	return ret != vk.Success
}

// staleResult classifies the result of an acquire or present. Out of date
// is stale; suboptimal is stale only when the caller asks for it, since an
// acquired suboptimal image can still be rendered and presented.
func staleResult(ret vk.Result, suboptimalIsStale bool) (bool, error) {
	switch ret {
	case vk.Success:
		return false, nil
	case vk.Suboptimal:
		return suboptimalIsStale, nil
	case vk.ErrorOutOfDate:
		return true, nil
	default:
		return false, NewError(ret)
	}
}
