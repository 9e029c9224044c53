package render

import (
	"github.com/pkg/errors"
)

// FrameRecorder owns one command buffer per swap image.
type FrameRecorder struct {
	alloc   CommandAllocator
	buffers []CommandBuffer
	open    []bool
}

func NewFrameRecorder(alloc CommandAllocator) *FrameRecorder {
	return &FrameRecorder{alloc: alloc}
}

// EnsureCapacity frees the current buffers and allocates exactly n new ones.
func (r *FrameRecorder) EnsureCapacity(n int) error {
	assertf(n > 0, "EnsureCapacity", "buffer count must be positive, got %d", n)
	for i, open := range r.open {
		assertf(!open, "EnsureCapacity", "command buffer %d is still recording", i)
	}
	r.Release()

	buffers, err := r.alloc.AllocateCommandBuffers(n)
	if err != nil {
		return errors.Wrapf(err, "allocate %d command buffers", n)
	}
	assertf(len(buffers) == n, "EnsureCapacity", "allocator returned %d command buffers, want %d", len(buffers), n)
	r.buffers = buffers
	r.open = make([]bool, n)
	return nil
}

// Begin resets buffer index and opens it for recording. The returned buffer
// is only valid until the matching End.
func (r *FrameRecorder) Begin(index int) (CommandBuffer, error) {
	r.checkIndex("Begin", index)
	assertf(!r.open[index], "Begin", "command buffer %d is already recording", index)

	cmd := r.buffers[index]
	if err := cmd.Reset(); err != nil {
		return nil, errors.Wrapf(err, "reset command buffer %d", index)
	}
	if err := cmd.Begin(); err != nil {
		return nil, errors.Wrapf(err, "begin command buffer %d", index)
	}
	r.open[index] = true
	return cmd, nil
}

// End closes recording of buffer index. The buffer counts as closed even
// when the device reports an error.
func (r *FrameRecorder) End(index int) error {
	r.checkIndex("End", index)
	assertf(r.open[index], "End", "command buffer %d is not recording", index)

	r.open[index] = false
	return errors.Wrapf(r.buffers[index].End(), "end command buffer %d", index)
}

func (r *FrameRecorder) Len() int {
	return len(r.buffers)
}

// Recording reports whether buffer index is open.
func (r *FrameRecorder) Recording(index int) bool {
	r.checkIndex("Recording", index)
	return r.open[index]
}

// Release returns every buffer to the allocator.
func (r *FrameRecorder) Release() {
	if len(r.buffers) > 0 {
		r.alloc.FreeCommandBuffers(r.buffers)
	}
	r.buffers = nil
	r.open = nil
}

func (r *FrameRecorder) checkIndex(op string, index int) {
	assertf(index >= 0 && index < len(r.buffers), op, "command buffer %d out of range [0,%d)", index, len(r.buffers))
}
