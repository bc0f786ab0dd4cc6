package control

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gpnscribe/internal/config"
	"gpnscribe/internal/doctor"
	"gpnscribe/internal/orchestrator"
	"gpnscribe/internal/segment"
	"gpnscribe/internal/watch"

	"github.com/spf13/cobra"
)

// NewRunCmd transcribes the input directory once.
func NewRunCmd(cfgPath *string) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Transcribe every new file in the input directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(*cfgPath, func(cfg *config.Config) { flags.apply(cmd, cfg) })
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context(), logger)
			defer stop()

			p, err := newPipeline(cfg, logger, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer func() {
				if err := p.Close(); err != nil {
					logger.Warnf("close engines: %v", err)
				}
			}()

			start := time.Now()
			var summary orchestrator.Summary
			err = p.serve(ctx, func(ctx context.Context) error {
				var runErr error
				summary, runErr = p.orch.Run(ctx)
				return runErr
			})
			printSummary(cmd.OutOrStdout(), summary, time.Since(start))
			if err != nil {
				return err
			}
			return summary.Err()
		},
	}
	flags.bind(cmd)
	return cmd
}

// NewWatchCmd keeps transcribing as new audio arrives.
func NewWatchCmd(cfgPath *string) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Transcribe now, then again whenever new audio appears",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(*cfgPath, func(cfg *config.Config) { flags.apply(cmd, cfg) })
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context(), logger)
			defer stop()

			p, err := newPipeline(cfg, logger, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer func() {
				if err := p.Close(); err != nil {
					logger.Warnf("close engines: %v", err)
				}
			}()

			settle := time.Duration(cfg.Watch.SettleMS) * time.Millisecond
			w, err := watch.New(cfg.InputPath(), cfg.Inventory.Extensions, settle, func(ctx context.Context) (orchestrator.Summary, error) {
				start := time.Now()
				summary, err := p.orch.Run(ctx)
				printSummary(cmd.OutOrStdout(), summary, time.Since(start))
				return summary, err
			}, logger)
			if err != nil {
				return err
			}
			return p.serve(ctx, w.Start)
		},
	}
	flags.bind(cmd)
	return cmd
}

// NewPlanCmd prints the segment windows for one file without transcribing.
func NewPlanCmd(cfgPath *string) *cobra.Command {
	var windowMS int64
	var codecName string
	cmd := &cobra.Command{
		Use:   "plan <file>",
		Short: "Show how a file would be split into segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("window") {
				cfg.Segment.WindowMS = windowMS
			}
			if cmd.Flags().Changed("codec") {
				cfg.Codec.Backend = codecName
			}
			c, err := openCodec(cfg)
			if err != nil {
				return err
			}
			h, err := c.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			windows, err := segment.Plan(h.DurationMS, cfg.Segment.WindowMS)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s, %d segments of %dms\n", filepath.Base(args[0]), msString(h.DurationMS), len(windows), cfg.Segment.WindowMS)
			for _, w := range windows {
				fmt.Fprintf(out, "%5d  %s - %s\n", w.Index, msString(w.StartMS), msString(w.EndMS))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&windowMS, "window", 0, "segment length in milliseconds")
	cmd.Flags().StringVar(&codecName, "codec", "", "codec backend: ffmpeg, wav")
	return cmd
}

func msString(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := float64(d%time.Minute) / float64(time.Second)
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}

// NewConfigCmd groups config helpers.
func NewConfigCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			text, err := config.Describe(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", cfg.Paths.ConfigPath, text)
			return nil
		},
	})
	return cmd
}

// NewTailLogCmd tails the main log file (simple last N lines).
func NewTailLogCmd(cfgPath *string) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "tail-log",
		Short: "Show last log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			return tailFile(cmd.OutOrStdout(), cfg.Paths.LogPath, lines)
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines")
	return cmd
}

func tailFile(out io.Writer, path string, n int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			fmt.Fprintln(out, l)
		}
	}
	return nil
}

// NewDoctorCmd runs environment checks.
func NewDoctorCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check dependencies and config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			results := doctor.Run(cfg)
			for _, r := range results {
				status := "ok"
				if !r.Pass {
					status = "fail"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-4s %s\n", r.Name, status, r.Detail)
			}
			if doctor.Failed(results) {
				return fmt.Errorf("doctor found issues")
			}
			return nil
		},
	}
}
