package pool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gpnscribe/internal/engine"
	"gpnscribe/internal/errs"
	"gpnscribe/internal/logging"
	"gpnscribe/internal/metrics"
	"gpnscribe/internal/segment"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeEngine struct {
	id     int
	closed atomic.Bool
}

func (e *fakeEngine) Transcribe(ctx context.Context, clipPath string) (string, error) {
	return filepath.Base(clipPath), nil
}

func (e *fakeEngine) Close() error {
	e.closed.Store(true)
	return nil
}

type fakeFactory struct {
	mu      sync.Mutex
	engines []*fakeEngine
	failAt  int
}

func (f *fakeFactory) NewWorker() (engine.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && len(f.engines)+1 == f.failAt {
		return nil, errs.Config("model exploded")
	}
	e := &fakeEngine{id: len(f.engines)}
	f.engines = append(f.engines, e)
	return e, nil
}

func makeJobs(t *testing.T, n int) []segment.Job {
	t.Helper()
	dir := t.TempDir()
	jobs := make([]segment.Job, 0, n)
	for i := n - 1; i >= 0; i-- {
		clip := filepath.Join(dir, fmt.Sprintf("seg%05d.wav", i))
		if err := os.WriteFile(clip, []byte("clip"), 0o600); err != nil {
			t.Fatalf("write clip: %v", err)
		}
		jobs = append(jobs, segment.Job{
			Source:   "talk.wav",
			Window:   segment.Window{Index: i, StartMS: int64(i) * 1000, EndMS: int64(i+1) * 1000},
			ClipPath: clip,
		})
	}
	return jobs
}

func byIndex(results []segment.Result) []segment.Result {
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}

func TestNewCreatesOneEnginePerWorker(t *testing.T) {
	factory := &fakeFactory{}
	p, err := New(3, factory, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if p.Size() != 3 || len(factory.engines) != 3 {
		t.Fatalf("size=%d engines=%d", p.Size(), len(factory.engines))
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, e := range factory.engines {
		if !e.closed.Load() {
			t.Fatalf("engine %d not closed", e.id)
		}
	}
}

func TestNewRejectsZeroWorkers(t *testing.T) {
	if _, err := New(0, &fakeFactory{}, logging.NewTestLogger()); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNewClosesEnginesWhenWorkerFails(t *testing.T) {
	factory := &fakeFactory{failAt: 3}
	if _, err := New(4, factory, logging.NewTestLogger()); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected worker init error, got %v", err)
	}
	for _, e := range factory.engines {
		if !e.closed.Load() {
			t.Fatalf("engine %d leaked", e.id)
		}
	}
}

func TestSubmitAllBoundsConcurrency(t *testing.T) {
	const workers = 3
	p, err := New(workers, &fakeFactory{}, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer p.Close()

	var inFlight, peak atomic.Int32
	handler := func(ctx context.Context, eng engine.Engine, job segment.Job) (string, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return eng.Transcribe(ctx, job.ClipPath)
	}

	jobs := makeJobs(t, 20)
	results := byIndex(p.SubmitAll(context.Background(), jobs, handler))
	if len(results) != 20 {
		t.Fatalf("results=%d", len(results))
	}
	for i, r := range results {
		if r.Err != nil || r.Index != i || r.Text != fmt.Sprintf("seg%05d.wav", i) {
			t.Fatalf("result %d: %+v", i, r)
		}
	}
	if got := peak.Load(); got > workers || got < 1 {
		t.Fatalf("peak concurrency %d exceeds %d", got, workers)
	}
	for _, j := range jobs {
		if _, err := os.Stat(j.ClipPath); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("clip %s not removed", j.ClipPath)
		}
	}
}

func TestSubmitAllDispatchesInIndexOrder(t *testing.T) {
	p, err := New(1, &fakeFactory{}, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer p.Close()

	var mu sync.Mutex
	var seen []int
	handler := func(ctx context.Context, eng engine.Engine, job segment.Job) (string, error) {
		mu.Lock()
		seen = append(seen, job.Window.Index)
		mu.Unlock()
		return "", nil
	}
	p.SubmitAll(context.Background(), makeJobs(t, 6), handler)
	for i, idx := range seen {
		if idx != i {
			t.Fatalf("dispatch order %v", seen)
		}
	}
}

func TestSubmitAllIsolatesFailures(t *testing.T) {
	m := metrics.New()
	p, err := New(2, &fakeFactory{}, logging.NewTestLogger(), WithMetrics(m))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer p.Close()

	handler := func(ctx context.Context, eng engine.Engine, job segment.Job) (string, error) {
		switch job.Window.Index {
		case 1:
			return "", errs.New(errs.ErrEngine, "segment 1 failed")
		case 2:
			panic("engine crashed")
		case 3:
			return "", ErrSilent
		}
		return "ok", nil
	}
	results := byIndex(p.SubmitAll(context.Background(), makeJobs(t, 5), handler))
	if results[0].Text != "ok" || results[4].Text != "ok" {
		t.Fatalf("healthy segments affected: %+v", results)
	}
	if !errors.Is(results[1].Err, errs.ErrEngine) {
		t.Fatalf("segment 1 err=%v", results[1].Err)
	}
	if !errors.Is(results[2].Err, errs.ErrEngine) {
		t.Fatalf("panic not recovered as engine error: %v", results[2].Err)
	}
	if results[3].Err != nil || results[3].Text != "" {
		t.Fatalf("silent segment should succeed empty: %+v", results[3])
	}
	if got := testutil.ToFloat64(m.SegmentsCounter(metrics.SegmentFailed)); got != 2 {
		t.Fatalf("failed segments=%v", got)
	}
	if got := testutil.ToFloat64(m.SegmentsCounter(metrics.SegmentSilent)); got != 1 {
		t.Fatalf("silent segments=%v", got)
	}
}

func TestSubmitAllTimesOutSlowSegments(t *testing.T) {
	p, err := New(2, &fakeFactory{}, logging.NewTestLogger(), WithTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer p.Close()

	handler := func(ctx context.Context, eng engine.Engine, job segment.Job) (string, error) {
		if job.Window.Index == 0 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "fast", nil
	}
	results := byIndex(p.SubmitAll(context.Background(), makeJobs(t, 2), handler))
	if !errors.Is(results[0].Err, errs.ErrEngine) || !errors.Is(results[0].Err, context.DeadlineExceeded) {
		t.Fatalf("expected engine timeout, got %v", results[0].Err)
	}
	if results[1].Text != "fast" {
		t.Fatalf("fast segment=%+v", results[1])
	}
}

func TestSubmitAllStopsDispatchOnCancel(t *testing.T) {
	p, err := New(1, &fakeFactory{}, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	handler := func(callCtx context.Context, eng engine.Engine, job segment.Job) (string, error) {
		calls.Add(1)
		if job.Window.Index == 0 {
			cancel()
			time.Sleep(10 * time.Millisecond)
			if callCtx.Err() != nil {
				return "", errors.New("in-flight segment was interrupted")
			}
		}
		return "done", nil
	}

	jobs := makeJobs(t, 5)
	results := byIndex(p.SubmitAll(ctx, jobs, handler))
	if len(results) != 5 {
		t.Fatalf("every job needs a result: %d", len(results))
	}
	if results[0].Err != nil || results[0].Text != "done" {
		t.Fatalf("in-flight segment should complete: %+v", results[0])
	}
	notDispatched := 0
	for _, r := range results[1:] {
		if errors.Is(r.Err, context.Canceled) {
			notDispatched++
		}
	}
	if int(calls.Load())+notDispatched != 5 || notDispatched == 0 {
		t.Fatalf("calls=%d not dispatched=%d", calls.Load(), notDispatched)
	}
	for _, j := range jobs {
		if _, err := os.Stat(j.ClipPath); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("clip %s left behind", j.ClipPath)
		}
	}
}
