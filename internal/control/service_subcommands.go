package control

import (
	"fmt"
	"os"
	"strings"

	"gpnscribe/internal/config"
	"gpnscribe/internal/service"

	"github.com/spf13/cobra"
)

// NewServiceCmd manages the watch-mode background service.
func NewServiceCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install watch mode as a user service (launchd/systemd)",
	}
	cmd.AddCommand(newServiceInstallCmd(cfgPath))
	cmd.AddCommand(newServiceUninstallCmd())
	cmd.AddCommand(newServiceStatusCmd())
	return cmd
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		parts := strings.SplitN(p, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("bad env %q, want KEY=VAL", p)
		}
		env[parts[0]] = parts[1]
	}
	return env, nil
}

func newServiceInstallCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Write the user service unit for gpnscribe watch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return err
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			envPairs, _ := cmd.Flags().GetStringArray("env")
			env, err := parseEnvPairs(envPairs)
			if err != nil {
				return err
			}
			kind := service.Native()
			path, err := service.Install(kind, home, service.Params{
				Label:  service.Label,
				Binary: exe,
				Config: cfg.Paths.ConfigPath,
				Log:    cfg.Paths.LogPath,
				Env:    env,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s unit written: %s\n", kind, path)
			if kind == service.Launchd {
				fmt.Fprintln(out, "Load:   launchctl load -w", path)
				fmt.Fprintf(out, "Stop:   launchctl bootout gui/$(id -u)/%s\n", service.Label)
			} else {
				fmt.Fprintf(out, "Enable: systemctl --user daemon-reload && systemctl --user enable --now %s\n", service.Label)
				fmt.Fprintf(out, "Stop:   systemctl --user stop %s\n", service.Label)
			}
			return nil
		},
	}
	cmd.Flags().StringArray("env", nil, "Env to set in the service unit (KEY=VAL)")
	return cmd
}

func newServiceUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the user service unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			path, err := service.Uninstall(service.Native(), home, service.Label)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s (if present); stop the running service manually\n", path)
			return nil
		},
	}
}

func newServiceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the service unit path and whether it exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			path, ok := service.Status(service.Native(), home, service.Label)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "unit: %s\n", path)
			if ok {
				fmt.Fprintln(out, "status: present")
			} else {
				fmt.Fprintln(out, "status: missing (install via: gpnscribe service install)")
			}
			return nil
		},
	}
}
