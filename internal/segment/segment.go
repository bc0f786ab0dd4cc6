// Package segment splits a recording into fixed-width windows and describes
// the per-window jobs and results exchanged with the worker pool.
package segment

import (
	"fmt"

	"gpnscribe/internal/errs"
)

// Window is the half-open interval [StartMS, EndMS) of a recording.
type Window struct {
	Index   int
	StartMS int64
	EndMS   int64
}

// Len is the window length in milliseconds.
func (w Window) Len() int64 { return w.EndMS - w.StartMS }

func (w Window) String() string {
	return fmt.Sprintf("#%d [%d,%d)", w.Index, w.StartMS, w.EndMS)
}

// Plan partitions [0, durationMS) into consecutive windows of windowMS.
// Only the last window may be shorter. A zero duration yields no windows.
func Plan(durationMS, windowMS int64) ([]Window, error) {
	if windowMS <= 0 {
		return nil, errs.Config("segment window must be positive (got %dms)", windowMS)
	}
	if durationMS < 0 {
		return nil, errs.New(errs.ErrDecode, "negative duration %dms", durationMS)
	}
	n := (durationMS + windowMS - 1) / windowMS
	windows := make([]Window, 0, n)
	for start := int64(0); start < durationMS; {
		end := min(start+windowMS, durationMS)
		windows = append(windows, Window{Index: len(windows), StartMS: start, EndMS: end})
		start = end
	}
	return windows, nil
}

// Job is one unit of work for the pool. It carries only descriptors.
type Job struct {
	Source   string
	Window   Window
	ClipPath string
}

// Result is produced exactly once per job.
type Result struct {
	Index int
	Text  string
	Err   error
}
