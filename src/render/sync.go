package render

import (
	"github.com/pkg/errors"
)

// SyncSet holds the synchronization objects of one frame-in-flight slot.
type SyncSet struct {
	// ImageAcquired is raised when the acquired image may be written.
	ImageAcquired Semaphore
	// RenderFinished is raised when the slot's submission has executed and
	// is waited on by present.
	RenderFinished Semaphore
	// InFlight is signaled when the GPU has finished the slot's submission.
	// It is created signaled so the first wait on a fresh slot returns.
	InFlight Fence
}

func newSyncSet(dev Device) (*SyncSet, error) {
	s := &SyncSet{}
	var err error
	if s.ImageAcquired, err = dev.NewSemaphore(); err != nil {
		return nil, errors.Wrap(err, "create image acquired semaphore")
	}
	if s.RenderFinished, err = dev.NewSemaphore(); err != nil {
		s.destroy()
		return nil, errors.Wrap(err, "create render finished semaphore")
	}
	if s.InFlight, err = dev.NewFence(true); err != nil {
		s.destroy()
		return nil, errors.Wrap(err, "create in-flight fence")
	}
	return s, nil
}

func newSyncSets(dev Device, n int) ([]*SyncSet, error) {
	sets := make([]*SyncSet, 0, n)
	for i := 0; i < n; i++ {
		s, err := newSyncSet(dev)
		if err != nil {
			for _, made := range sets {
				made.destroy()
			}
			return nil, errors.Wrapf(err, "frame slot %d", i)
		}
		sets = append(sets, s)
	}
	return sets, nil
}

func (s *SyncSet) destroy() {
	if s.ImageAcquired != nil {
		s.ImageAcquired.Destroy()
		s.ImageAcquired = nil
	}
	if s.RenderFinished != nil {
		s.RenderFinished.Destroy()
		s.RenderFinished = nil
	}
	if s.InFlight != nil {
		s.InFlight.Destroy()
		s.InFlight = nil
	}
}
