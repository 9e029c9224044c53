package app

import (
	"log/slog"
	"time"

	"github.com/loov/hrtime"
)

// Report summarises one statistics interval.
type Report struct {
	Frames      int
	Skipped     int
	Recreations int
	Elapsed     time.Duration
	MeanFrame   time.Duration
	FPS         float64
}

// Stats counts frames against the high resolution clock and logs a Report
// every interval. An interval of zero disables reporting.
type Stats struct {
	log      *slog.Logger
	interval time.Duration
	now      func() time.Duration

	windowStart time.Duration
	frameStart  time.Duration
	busy        time.Duration
	frames      int
	skipped     int
	recreations int

	totalFrames int
	last        Report
	reported    bool
}

func NewStats(logger *slog.Logger, interval time.Duration) *Stats {
	return newStats(logger, interval, hrtime.Now)
}

func newStats(logger *slog.Logger, interval time.Duration, now func() time.Duration) *Stats {
	s := &Stats{log: logger, interval: interval, now: now}
	s.windowStart = now()
	return s
}

func (s *Stats) FrameStart() {
	s.frameStart = s.now()
}

func (s *Stats) FrameDone() {
	s.frames++
	s.totalFrames++
	s.busy += s.now() - s.frameStart
	s.maybeReport()
}

// FrameSkipped counts a frame whose acquire found the swap images stale.
func (s *Stats) FrameSkipped() {
	s.skipped++
	s.maybeReport()
}

func (s *Stats) Recreated() {
	s.recreations++
}

func (s *Stats) TotalFrames() int { return s.totalFrames }

// Last returns the most recent report.
func (s *Stats) Last() (Report, bool) { return s.last, s.reported }

func (s *Stats) maybeReport() {
	if s.interval <= 0 {
		return
	}
	now := s.now()
	elapsed := now - s.windowStart
	if elapsed < s.interval {
		return
	}

	r := Report{
		Frames:      s.frames,
		Skipped:     s.skipped,
		Recreations: s.recreations,
		Elapsed:     elapsed,
		FPS:         float64(s.frames) / elapsed.Seconds(),
	}
	if s.frames > 0 {
		r.MeanFrame = s.busy / time.Duration(s.frames)
	}
	s.log.Info("frame stats",
		"fps", r.FPS,
		"meanFrame", r.MeanFrame,
		"frames", r.Frames,
		"skipped", r.Skipped,
		"recreations", r.Recreations)

	s.last, s.reported = r, true
	s.windowStart = now
	s.busy = 0
	s.frames, s.skipped, s.recreations = 0, 0, 0
}
