package main

import (
	"fmt"
	"os"

	"gpnscribe/internal/control"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &cobra.Command{
		Use:   "gpnscribe",
		Short: "gpnscribe: bulk transcription of recorded talks",
		Long: `gpnscribe splits every recording in the input directory into fixed-length segments,
transcribes them in parallel with whisper.cpp (or an external command / HTTP API),
and writes one transcript per recording. Files that already have a transcript are skipped.

Key commands:
  run                       Transcribe the input directory once
  watch                     Keep transcribing as new audio arrives
  plan <file>               Show the segment windows for one file
  doctor|setup              Check deps / download the profile's model
  models list|download|set  Manage whisper.cpp models
  config show|tail-log      Effective config, log tail
  service install|uninstall|status   watch mode as a launchd/systemd user service

Notable flags/env:
  --profile tiny|base|small|medium|large
  --workers <n> --overwrite --metrics-addr <addr>
  Env overrides: DATA_DIRECTORY, TRANSCRIBER_MODEL, LOGLEVEL,
                 GPNSCRIBE_MAX_WORKERS, GPNSCRIBE_OVERWRITE, GPNSCRIBE_ENGINE`,
		Example: `  gpnscribe setup
  gpnscribe run --profile small --workers 4
  gpnscribe run --overwrite --engine exec
  gpnscribe watch --metrics-addr 127.0.0.1:9318
  gpnscribe plan data/audio/input/talk.mp3 --window 60000`,
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
		SilenceErrors:         true,
	}

	root.Version = version
	root.SetVersionTemplate("gpnscribe v{{.Version}}\n")

	cfgPath := root.PersistentFlags().StringP("config", "c", "", "Path to config file (TOML). Defaults to ~/.config/gpnscribe/config.toml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(control.NewRunCmd(cfgPath))
	root.AddCommand(control.NewWatchCmd(cfgPath))
	root.AddCommand(control.NewPlanCmd(cfgPath))
	root.AddCommand(control.NewDoctorCmd(cfgPath))
	root.AddCommand(control.NewSetupCmd(cfgPath))
	root.AddCommand(control.NewModelsCmd(cfgPath))
	root.AddCommand(control.NewConfigCmd(cfgPath))
	root.AddCommand(control.NewTailLogCmd(cfgPath))
	root.AddCommand(control.NewServiceCmd(cfgPath))

	applyColorHelp(root)

	return root.Execute()
}

func applyColorHelp(root *cobra.Command) {
	const (
		boldBlue = "\033[1;34m"
		green    = "\033[32m"
		bold     = "\033[1m"
		dim      = "\033[2m"
		reset    = "\033[0m"
	)
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != root {
			defaultHelp(cmd, args)
			return
		}
		out := cmd.OutOrStdout()
		write := func(format string, args ...any) { _, _ = fmt.Fprintf(out, format, args...) }
		writeln := func(line string) { _, _ = fmt.Fprintln(out, line) }

		write("%sgpnscribe%s bulk transcription of recorded talks %s(v%s)%s\n", boldBlue, reset, dim, version, reset)
		write("%sSegments each recording, transcribes segments in parallel, writes one transcript per file.%s\n\n", dim, reset)

		write("%sUsage%s\n", bold, reset)
		write("  gpnscribe [command] [flags]\n\n")

		write("%sKey commands%s\n", bold, reset)
		writeln("  run                         transcribe the input directory once")
		writeln("  watch                       run, then re-run when new audio appears")
		writeln("  plan <file>                 print segment windows for one file")
		writeln("  doctor                      check config/ffmpeg/model/engine")
		writeln("  setup                       create data dirs, download the profile's model")
		writeln("  models list|download|set    manage whisper.cpp models")
		writeln("  config show                 print the effective configuration")
		writeln("  tail-log                    show last log lines")
		writeln("  service install|uninstall|status   run watch mode as a user service")
		writeln("")

		write("%sNotable flags & env%s\n", bold, reset)
		writeln("  --profile <name>        tiny, base, small, medium, large")
		writeln("  --workers <n>           worker count (default: 3/4 of CPUs)")
		writeln("  --overwrite             re-transcribe files with existing transcripts")
		writeln("  --metrics-addr <addr>   enable /metrics (Prometheus)")
		writeln("  -c, --config <path>     config file (default ~/.config/gpnscribe/config.toml)")
		writeln("  Env: DATA_DIRECTORY=/srv/gpn, TRANSCRIBER_MODEL=small, LOGLEVEL=debug,")
		writeln("       GPNSCRIBE_MAX_WORKERS=4, GPNSCRIBE_ENGINE=exec, GPNSCRIBE_LOG_FORMAT=json")
		writeln("")

		write("%sExamples%s\n", bold, reset)
		writeln("  gpnscribe setup")
		writeln("  gpnscribe run --profile small --workers 4")
		writeln("  gpnscribe watch --metrics-addr 127.0.0.1:9318")
		writeln("  gpnscribe plan data/audio/input/talk.mp3 --window 60000")
		writeln("")

		write("%sCommands%s\n", bold, reset)
		for _, c := range cmd.Commands() {
			if c.Hidden {
				continue
			}
			write("  %s%-15s%s %s\n", green, c.Name(), reset, c.Short)
		}
	})
}
