package control

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gpnscribe/internal/config"

	"github.com/spf13/cobra"
)

const modelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// modelURL resolves a profile name or ggml file name to its download URL and
// file name.
func modelURL(name string) (url, file string, err error) {
	if f, ok := config.ModelFiles[strings.ToLower(name)]; ok {
		return modelBaseURL + f, f, nil
	}
	for _, f := range config.ModelFiles {
		if f == name {
			return modelBaseURL + f, f, nil
		}
	}
	return "", "", fmt.Errorf("unknown model %q; run models list", name)
}

// NewModelsCmd wires up the models subcommands (list/download/set).
func NewModelsCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List/download/set whisper models",
	}
	cmd.AddCommand(newModelsListCmd(cfgPath))
	cmd.AddCommand(newModelsDownloadCmd(cfgPath))
	cmd.AddCommand(newModelsSetCmd(cfgPath))
	return cmd
}

func newModelsListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List profiles, their models, and which are present locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			listModels(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func listModels(out io.Writer, cfg *config.Config) {
	modelDir := os.ExpandEnv(cfg.Paths.ModelDir)
	for _, profile := range config.Profiles {
		file := config.ModelFiles[profile]
		marks := []string{}
		if _, err := os.Stat(filepath.Join(modelDir, file)); err == nil {
			marks = append(marks, "downloaded")
		}
		if profile == cfg.Engine.Profile {
			marks = append(marks, "active")
		}
		suffix := ""
		if len(marks) > 0 {
			suffix = " (" + strings.Join(marks, ", ") + ")"
		}
		fmt.Fprintf(out, "- %-7s %s%s\n", profile, file, suffix)
	}
}

func newModelsDownloadCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "download <profile|model>",
		Short: "Download a model from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			url, file, err := modelURL(args[0])
			if err != nil {
				return err
			}
			dest := filepath.Join(os.ExpandEnv(cfg.Paths.ModelDir), file)
			fmt.Fprintf(cmd.OutOrStdout(), "downloading %s -> %s\n", file, dest)
			return download(cmd.Context(), url, dest)
		},
	}
}

func newModelsSetCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set <profile|model-path>",
		Short: "Select the profile, or pin engine.model_path to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			val := args[0]
			if _, ok := config.ModelFiles[strings.ToLower(val)]; ok {
				cfg.Engine.Profile = strings.ToLower(val)
				cfg.Engine.ModelPath = ""
			} else {
				// if short name, resolve in the model dir
				if !strings.Contains(val, "/") {
					val = filepath.Join(cfg.Paths.ModelDir, val)
				}
				cfg.Engine.ModelPath = val
			}
			if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "profile %s, model %s\n", cfg.Engine.Profile, cfg.ModelFile())
			return nil
		},
	}
}

// download fetches url into dest via a .part file so an interrupted download
// never looks complete.
func download(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}
	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}
