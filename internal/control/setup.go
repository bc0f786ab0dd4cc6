package control

import (
	"fmt"
	"os"

	"gpnscribe/internal/config"

	"github.com/spf13/cobra"
)

// NewSetupCmd downloads the model for the configured profile if missing.
func NewSetupCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create data directories and download the profile's model if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, dir := range []string{cfg.InputPath(), cfg.OutputPath()} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
				fmt.Fprintln(out, "directory ready:", dir)
			}
			modelPath := cfg.ModelFile()
			if _, err := os.Stat(modelPath); err == nil {
				fmt.Fprintln(out, "model already present at", modelPath)
				return nil
			}
			if cfg.Engine.ModelPath != "" {
				return fmt.Errorf("engine.model_path %s does not exist", modelPath)
			}
			url, _, err := modelURL(cfg.Engine.Profile)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "downloading model to %s\n", modelPath)
			if err := download(cmd.Context(), url, modelPath); err != nil {
				return err
			}
			fmt.Fprintln(out, "model download complete")
			return nil
		},
	}
}
