// Package pool runs segment jobs on a fixed set of workers, each owning one
// engine handle for its whole lifetime.
package pool

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gpnscribe/internal/engine"
	"gpnscribe/internal/errs"
	"gpnscribe/internal/metrics"
	"gpnscribe/internal/segment"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrSilent marks a job that finished without an engine call because its
// clip holds no speech. The job succeeds with empty text.
var ErrSilent = errors.New("no speech in clip")

// Handler executes one job with the worker's engine.
type Handler func(ctx context.Context, eng engine.Engine, job segment.Job) (string, error)

// WorkerFactory creates the engine handle owned by one worker.
type WorkerFactory interface {
	NewWorker() (engine.Engine, error)
}

// Pool is a bounded set of workers.
type Pool struct {
	engines []engine.Engine
	timeout time.Duration
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

type Option func(*Pool)

// WithTimeout bounds every job; zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) { p.timeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// New initializes size engines up front.
func New(size int, factory WorkerFactory, logger *logrus.Logger, opts ...Option) (*Pool, error) {
	if size < 1 {
		return nil, errs.Config("worker pool needs at least one worker (got %d)", size)
	}
	p := &Pool{logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < size; i++ {
		eng, err := factory.NewWorker()
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("start worker %d: %w", i, err)
		}
		p.engines = append(p.engines, eng)
	}
	logger.Debugf("worker pool ready with %d workers", size)
	return p, nil
}

// Size is the number of workers.
func (p *Pool) Size() int { return len(p.engines) }

// SubmitAll runs every job and returns one result per job in completion
// order. Jobs are dispatched by ascending index. Once ctx is done no further
// jobs start; jobs already running finish on a context detached from ctx.
func (p *Pool) SubmitAll(ctx context.Context, jobs []segment.Job, h Handler) []segment.Result {
	ordered := slices.Clone(jobs)
	slices.SortFunc(ordered, func(a, b segment.Job) int { return cmp.Compare(a.Window.Index, b.Window.Index) })

	queue := make(chan segment.Job)
	out := make(chan segment.Result, len(ordered))

	var g errgroup.Group
	for _, eng := range p.engines {
		eng := eng
		g.Go(func() error {
			for job := range queue {
				out <- p.execute(ctx, eng, job, h)
			}
			return nil
		})
	}

	dispatched := 0
dispatch:
	for _, job := range ordered {
		if ctx.Err() != nil {
			break
		}
		select {
		case queue <- job:
			dispatched++
		case <-ctx.Done():
			break dispatch
		}
	}
	close(queue)
	_ = g.Wait()
	close(out)

	results := make([]segment.Result, 0, len(ordered))
	for r := range out {
		results = append(results, r)
	}
	rest := ordered[dispatched:]
	for _, job := range rest {
		p.removeClip(job.ClipPath)
		results = append(results, segment.Result{
			Index: job.Window.Index,
			Err:   fmt.Errorf("segment %d not dispatched: %w", job.Window.Index, context.Cause(ctx)),
		})
	}
	p.metrics.SegmentsNotDispatched(len(rest))
	return results
}

func (p *Pool) execute(ctx context.Context, eng engine.Engine, job segment.Job, h Handler) (res segment.Result) {
	idx := job.Window.Index
	res.Index = idx

	callCtx := context.WithoutCancel(ctx)
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	p.metrics.SegmentStarted()
	outcome := metrics.SegmentOK
	defer func() {
		if r := recover(); r != nil {
			res.Text = ""
			res.Err = errs.New(errs.ErrEngine, "segment %d panicked: %v", idx, r)
		}
		if res.Err != nil {
			outcome = metrics.SegmentFailed
		}
		p.metrics.SegmentFinished(outcome, time.Since(start))
		p.removeClip(job.ClipPath)
	}()

	text, err := h(callCtx, eng, job)
	switch {
	case errors.Is(err, ErrSilent):
		outcome = metrics.SegmentSilent
	case err != nil && errors.Is(err, context.DeadlineExceeded) && callCtx.Err() != nil:
		res.Err = errs.Wrap(errs.ErrEngine, fmt.Sprintf("segment %d timed out after %s", idx, p.timeout), context.DeadlineExceeded)
	case err != nil:
		res.Err = err
	default:
		res.Text = text
	}
	return res
}

func (p *Pool) removeClip(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warnf("remove clip %s: %v", path, err)
	}
}

// Close releases every worker engine.
func (p *Pool) Close() error {
	var errList []error
	for _, eng := range p.engines {
		if err := eng.Close(); err != nil {
			errList = append(errList, err)
		}
	}
	p.engines = nil
	return errors.Join(errList...)
}
