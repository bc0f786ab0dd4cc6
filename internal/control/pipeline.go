package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"gpnscribe/internal/codec"
	"gpnscribe/internal/config"
	"gpnscribe/internal/engine"
	"gpnscribe/internal/errs"
	"gpnscribe/internal/logging"
	"gpnscribe/internal/metrics"
	"gpnscribe/internal/orchestrator"
	"gpnscribe/internal/pool"
	"gpnscribe/internal/vad"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// runFlags are the overrides shared by run and watch.
type runFlags struct {
	profile     string
	workers     int
	overwrite   bool
	input       string
	output      string
	windowMS    int64
	timeoutSec  float64
	engine      string
	codec       string
	metricsAddr string
	logLevel    string
}

func (f *runFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.profile, "profile", "", "quality profile: "+strings.Join(config.Profiles, ", "))
	fl.IntVar(&f.workers, "workers", 0, "worker count (0 = three quarters of the CPUs)")
	fl.BoolVar(&f.overwrite, "overwrite", false, "re-transcribe files that already have a transcript")
	fl.StringVar(&f.input, "input", "", "input directory")
	fl.StringVar(&f.output, "output", "", "output directory")
	fl.Int64Var(&f.windowMS, "window", 0, "segment length in milliseconds")
	fl.Float64Var(&f.timeoutSec, "segment-timeout", 0, "per-segment timeout in seconds (0 disables)")
	fl.StringVar(&f.engine, "engine", "", "engine backend: whisper, exec, http")
	fl.StringVar(&f.codec, "codec", "", "codec backend: ffmpeg, wav")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "enable /metrics at address (e.g. 127.0.0.1:9318)")
	fl.StringVar(&f.logLevel, "log-level", "", "debug, info, warning, error, critical")
}

// apply copies the flags the user actually set onto cfg.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("profile") {
		cfg.Engine.Profile = strings.ToLower(f.profile)
	}
	if fl.Changed("workers") {
		cfg.Workers.Max = f.workers
	}
	if fl.Changed("overwrite") {
		cfg.Run.Overwrite = f.overwrite
	}
	if fl.Changed("input") {
		cfg.Paths.InputDir = f.input
	}
	if fl.Changed("output") {
		cfg.Paths.OutputDir = f.output
	}
	if fl.Changed("window") {
		cfg.Segment.WindowMS = f.windowMS
	}
	if fl.Changed("segment-timeout") {
		cfg.Workers.SegmentTimeoutSec = f.timeoutSec
	}
	if fl.Changed("engine") {
		cfg.Engine.Backend = f.engine
	}
	if fl.Changed("codec") {
		cfg.Codec.Backend = f.codec
	}
	if fl.Changed("metrics-addr") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = f.metricsAddr
	}
	if fl.Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
}

// loadRuntime loads config, applies overrides and configures logging.
func loadRuntime(cfgPath string, override func(*config.Config)) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if override != nil {
		override(cfg)
	}
	logger, err := logging.Configure(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openCodec(cfg *config.Config) (codec.Codec, error) {
	switch cfg.Codec.Backend {
	case "ffmpeg":
		return codec.NewFFmpeg(cfg.Codec.FFmpegPath, cfg.Codec.SampleRate)
	case "wav":
		return codec.NewWAV(), nil
	}
	return nil, errs.Config("unknown codec backend %q", cfg.Codec.Backend)
}

// pipeline bundles everything one run needs. Engines are initialized once
// and reused by every pass in watch mode.
type pipeline struct {
	cfg     *config.Config
	logger  *logrus.Logger
	metrics *metrics.Metrics
	backend engine.Backend
	pool    *pool.Pool
	orch    *orchestrator.Orchestrator
}

func newPipeline(cfg *config.Config, logger *logrus.Logger, progress io.Writer) (*pipeline, error) {
	numCPU := runtime.NumCPU()
	if err := config.Validate(cfg, numCPU); err != nil {
		return nil, err
	}
	c, err := openCodec(cfg)
	if err != nil {
		return nil, err
	}
	if ff, ok := c.(*codec.FFmpeg); ok {
		logger.Debugf("decoding with %s", ff.Binary())
	}
	var gate *vad.Gate
	if cfg.VAD.Enabled {
		if gate, err = vad.New(cfg.VAD.Aggressiveness, cfg.VAD.FrameMS, cfg.VAD.MinVoicedRatio); err != nil {
			return nil, err
		}
	}
	backend, err := engine.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	workers := config.Workers(cfg, numCPU)
	p, err := pool.New(workers, backend, logger, pool.WithTimeout(cfg.SegmentTimeout()), pool.WithMetrics(m))
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	logger.Infof("engine=%s profile=%s workers=%d window=%dms", backend.Name(), cfg.Engine.Profile, workers, cfg.Segment.WindowMS)

	orch := orchestrator.New(orchestrator.Options{
		InputDir:    cfg.InputPath(),
		OutputDir:   cfg.OutputPath(),
		Extensions:  cfg.Inventory.Extensions,
		WindowMS:    cfg.Segment.WindowMS,
		Format:      cfg.Segment.Format,
		Overwrite:   cfg.Run.Overwrite,
		ScratchRoot: cfg.ScratchPath(),
		VAD:         gate,
		Progress:    progress,
	}, c, p, logger, m)

	return &pipeline{cfg: cfg, logger: logger, metrics: m, backend: backend, pool: p, orch: orch}, nil
}

// serve runs fn, exposing metrics for as long as it runs when enabled.
func (p *pipeline) serve(ctx context.Context, fn func(context.Context) error) error {
	if !p.cfg.Metrics.Enabled {
		return fn(ctx)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var g errgroup.Group
	g.Go(func() error {
		if err := p.metrics.Serve(ctx, p.cfg.Metrics.Addr, p.logger); err != nil {
			p.logger.Warnf("metrics server: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return fn(ctx)
	})
	return g.Wait()
}

func (p *pipeline) Close() error {
	return errors.Join(p.pool.Close(), p.backend.Close())
}

// signalContext is cancelled on SIGINT or SIGTERM. Segments already handed
// to the engine still finish.
func signalContext(parent context.Context, logger *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case s := <-sigCh:
			logger.Infof("received signal %s, finishing in-flight segments", s)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func printSummary(out io.Writer, s orchestrator.Summary, elapsed time.Duration) {
	fmt.Fprintf(out, "run %s: %d completed, %d skipped, %d failed in %s\n",
		s.RunID, s.Completed, s.Skipped, s.Failed, elapsed.Round(time.Second))
	for _, t := range s.Tasks {
		if t.State == orchestrator.Failed {
			fmt.Fprintf(out, "  failed %s: %v\n", t.Source.Name, t.Err)
		}
	}
}
