// Package orchestrator drives one transcription run over the input directory.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gpnscribe/internal/assemble"
	"gpnscribe/internal/codec"
	"gpnscribe/internal/engine"
	"gpnscribe/internal/errs"
	"gpnscribe/internal/inventory"
	"gpnscribe/internal/metrics"
	"gpnscribe/internal/output"
	"gpnscribe/internal/pool"
	"gpnscribe/internal/scratch"
	"gpnscribe/internal/segment"
	"gpnscribe/internal/vad"

	"github.com/sirupsen/logrus"
)

// State is the final state of one file's task.
type State int

const (
	Failed State = iota
	Skipped
	Completed
)

func (s State) String() string {
	switch s {
	case Skipped:
		return "skipped"
	case Completed:
		return "completed"
	}
	return "failed"
}

// TaskResult records what happened to one source.
type TaskResult struct {
	Source     inventory.Source
	OutputPath string
	State      State
	Err        error
	Segments   int
	Elapsed    time.Duration
}

// Summary aggregates the tasks of one run.
type Summary struct {
	RunID     string
	Tasks     []TaskResult
	Completed int
	Skipped   int
	Failed    int
}

func (s *Summary) add(t TaskResult) {
	s.Tasks = append(s.Tasks, t)
	switch t.State {
	case Completed:
		s.Completed++
	case Skipped:
		s.Skipped++
	default:
		s.Failed++
	}
}

// Err is non-nil when any task failed.
func (s Summary) Err() error {
	if s.Failed == 0 {
		return nil
	}
	var failures []error
	for _, t := range s.Tasks {
		if t.State == Failed {
			failures = append(failures, t.Err)
		}
	}
	return fmt.Errorf("%d of %d files failed: %w", s.Failed, len(s.Tasks), errors.Join(failures...))
}

// Options configure a run.
type Options struct {
	InputDir    string
	OutputDir   string
	Extensions  []string
	WindowMS    int64
	Format      string
	Overwrite   bool
	ScratchRoot string
	// VAD, when set, skips the engine for clips without speech.
	VAD *vad.Gate
	// Progress receives one "k of N - name" line per file.
	Progress io.Writer
}

// Scheduler executes the segment jobs of one file.
type Scheduler interface {
	SubmitAll(ctx context.Context, jobs []segment.Job, h pool.Handler) []segment.Result
}

type Orchestrator struct {
	opts      Options
	codec     codec.Codec
	extractor *codec.Extractor
	pool      Scheduler
	logger    *logrus.Logger
	metrics   *metrics.Metrics
}

func New(opts Options, c codec.Codec, p Scheduler, logger *logrus.Logger, m *metrics.Metrics) *Orchestrator {
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	return &Orchestrator{
		opts:      opts,
		codec:     c,
		extractor: codec.NewExtractor(c, opts.Format),
		pool:      p,
		logger:    logger,
		metrics:   m,
	}
}

// Run processes every source in inventory order. Startup failures are
// returned before any file is touched. Per-file failures are recorded in the
// summary and do not stop the run. Cancellation stops before the next file.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: scratch.NewRunID()}
	if o.opts.WindowMS <= 0 {
		return summary, errs.Config("segment window must be positive (got %dms)", o.opts.WindowMS)
	}
	sources, err := inventory.List(o.opts.InputDir, o.opts.Extensions, o.logger)
	if err != nil {
		return summary, err
	}
	if err := os.MkdirAll(o.opts.OutputDir, 0o755); err != nil {
		return summary, errs.Wrap(errs.ErrConfiguration, "create output directory "+o.opts.OutputDir, err)
	}

	o.metrics.RunStarted()
	runLog := o.logger.WithField("run_id", summary.RunID)
	runLog.Infof("run started: %d files in %s", len(sources), o.opts.InputDir)

	claimed := make(map[string]inventory.Source, len(sources))
	for k, src := range sources {
		if err := ctx.Err(); err != nil {
			runLog.Warnf("run cancelled after %d of %d files", k, len(sources))
			return summary, err
		}
		fmt.Fprintf(o.opts.Progress, "%d of %d - %s\n", k+1, len(sources), src.Name)
		var task TaskResult
		dest := output.PathFor(o.opts.OutputDir, src.Name)
		if first, ok := claimed[dest]; ok {
			task = o.collision(summary.RunID, first, src)
		} else {
			claimed[dest] = src
			task = o.process(ctx, summary.RunID, src)
		}
		summary.add(task)
		o.metrics.TaskFinished(task.State.String(), task.Elapsed)
	}

	runLog.Infof("run finished: %d completed, %d skipped, %d failed", summary.Completed, summary.Skipped, summary.Failed)
	return summary, ctx.Err()
}

func (o *Orchestrator) process(ctx context.Context, runID string, src inventory.Source) TaskResult {
	start := time.Now()
	task := TaskResult{Source: src, OutputPath: output.PathFor(o.opts.OutputDir, src.Name)}
	log := o.logger.WithFields(logrus.Fields{"run_id": runID, "file": src.Name})

	if output.Decide(task.OutputPath, o.opts.Overwrite) == output.Skip {
		task.State = Skipped
		log.Infof("transcript %s exists, skipping", task.OutputPath)
		return task
	}

	text, n, err := o.transcribe(ctx, runID, src, log)
	task.Segments = n
	if err == nil {
		err = output.Write(task.OutputPath, text)
	}
	task.Elapsed = time.Since(start)
	if err != nil {
		task.State = Failed
		task.Err = fmt.Errorf("%s: %w", src.Name, err)
		log.WithField("kind", errs.Kind(err)).Errorf("transcription failed: %v", err)
		return task
	}
	task.State = Completed
	log.Infof("wrote %s (%d segments, %s)", task.OutputPath, n, task.Elapsed.Round(time.Millisecond))
	return task
}

// collision fails a source whose transcript path is already owned by an
// earlier source in the same run, such as talk.wav after talk.mp3.
func (o *Orchestrator) collision(runID string, first, src inventory.Source) TaskResult {
	task := TaskResult{Source: src, OutputPath: output.PathFor(o.opts.OutputDir, src.Name), State: Failed}
	err := errs.Config("%s and %s share the stem %q and both map to %s", first.Name, src.Name, src.Stem(), task.OutputPath)
	task.Err = fmt.Errorf("%s: %w", src.Name, err)
	o.logger.WithFields(logrus.Fields{"run_id": runID, "file": src.Name, "kind": errs.Kind(err)}).
		Errorf("transcript path taken: %v", err)
	return task
}

func (o *Orchestrator) transcribe(ctx context.Context, runID string, src inventory.Source, log *logrus.Entry) (string, int, error) {
	h, err := o.codec.Load(ctx, src.Path)
	if err != nil {
		return "", 0, err
	}
	windows, err := segment.Plan(h.DurationMS, o.opts.WindowMS)
	if err != nil {
		return "", 0, err
	}
	if len(windows) == 0 {
		log.Info("zero-length audio, writing empty transcript")
		return "", 0, nil
	}

	dir, err := scratch.Acquire(o.opts.ScratchRoot, runID)
	if err != nil {
		return "", len(windows), err
	}
	log.Debugf("scratch directory %s", dir.Path())
	defer func() {
		if err := dir.Release(); err != nil {
			log.Warnf("scratch cleanup: %v", err)
		}
	}()

	jobs := make([]segment.Job, len(windows))
	for i, w := range windows {
		jobs[i] = segment.Job{Source: src.Path, Window: w, ClipPath: dir.SegmentPath(w.Index, o.opts.Format)}
	}
	log.Debugf("submitting %d segments of %dms", len(jobs), o.opts.WindowMS)

	results := o.pool.SubmitAll(ctx, jobs, o.handler(h, log))
	text, err := assemble.Collect(results, len(windows))
	return text, len(windows), err
}

func (o *Orchestrator) handler(h *codec.Handle, log *logrus.Entry) pool.Handler {
	return func(ctx context.Context, eng engine.Engine, job segment.Job) (string, error) {
		segLog := log.WithField("segment", job.Window.Index)
		if err := o.extractor.Extract(ctx, h, job.Window, job.ClipPath); err != nil {
			return "", err
		}
		if o.opts.VAD != nil {
			voiced, ratio, err := o.opts.VAD.Voiced(job.ClipPath)
			switch {
			case err != nil:
				segLog.Warnf("silence check failed, transcribing anyway: %v", err)
			case !voiced:
				segLog.Debugf("no speech detected (voiced ratio %.3f)", ratio)
				return "", pool.ErrSilent
			}
		}
		text, err := eng.Transcribe(ctx, job.ClipPath)
		if err != nil {
			if errors.Is(err, errs.ErrEngine) {
				return "", err
			}
			return "", errs.Wrap(errs.ErrEngine, fmt.Sprintf("transcribe segment %d", job.Window.Index), err)
		}
		segLog.Debugf("transcribed %s", job.Window)
		return text, nil
	}
}
