package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"gpnscribe/internal/config"
	"gpnscribe/internal/errs"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// execBackend runs an external transcriber once per clip and reads the
// transcript from its stdout.
type execBackend struct {
	command string
	args    []string
	env     map[string]string
	vars    map[string]string
	logger  *logrus.Logger
}

func newExecBackend(cfg *config.Config, logger *logrus.Logger) (Backend, error) {
	command := os.ExpandEnv(strings.TrimSpace(cfg.Engine.Command))
	if command == "" {
		return nil, errs.Config("engine.command is not set")
	}
	resolved, err := exec.LookPath(command)
	if err != nil {
		return nil, errs.Config("engine.command %q not runnable: %v", command, err)
	}
	args, err := ParseArgs(cfg.Engine.Args)
	if err != nil {
		return nil, errs.Config("engine.args: %v", err)
	}
	if !slices.ContainsFunc(args, func(a string) bool { return strings.Contains(a, "{input}") }) {
		args = append(args, "{input}")
	}
	return &execBackend{
		command: resolved,
		args:    args,
		env:     cfg.Engine.Env,
		vars: map[string]string{
			"{model}":    cfg.ModelFile(),
			"{language}": cfg.Engine.Language,
			"{profile}":  cfg.Engine.Profile,
		},
		logger: logger,
	}, nil
}

func (b *execBackend) Name() string { return "exec" }

func (b *execBackend) NewWorker() (Engine, error) { return &execEngine{b: b}, nil }

func (b *execBackend) Close() error { return nil }

type execEngine struct {
	b *execBackend
}

func (e *execEngine) Transcribe(ctx context.Context, clipPath string) (string, error) {
	args := make([]string, len(e.b.args))
	for i, a := range e.b.args {
		a = strings.ReplaceAll(a, "{input}", clipPath)
		for k, v := range e.b.vars {
			a = strings.ReplaceAll(a, k, v)
		}
		args[i] = a
	}

	cmd := exec.CommandContext(ctx, e.b.command, args...)
	cmd.WaitDelay = time.Second
	cmd.Env = os.Environ()
	for k, v := range e.b.env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = append(cmd.Env, fmt.Sprintf("GPNSCRIBE_CLIP=%s", clipPath))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s failed: %w: %s", e.b.command, err, msg)
		}
		return "", fmt.Errorf("%s failed: %w", e.b.command, err)
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		e.b.logger.Debugf("engine stderr: %s", msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (e *execEngine) Close() error { return nil }

// ParseArgs splits engine.args with shell quoting rules.
func ParseArgs(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	return shlex.Split(raw)
}
