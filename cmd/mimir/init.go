package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/flemzord/mimir/pkg/app"
)

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("output")
			force, _ := cmd.Flags().GetBool("force")
			defaults, _ := cmd.Flags().GetBool("yes")

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			opts := defaultInitOptions()
			if !defaults {
				if err := initForm(&opts).Run(); err != nil {
					if errors.Is(err, huh.ErrUserAborted) {
						return errors.New("init aborted")
					}
					return err
				}
			}

			raw, err := app.RenderConfig(opts)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				return err
			}
			if err := os.WriteFile(path, raw, 0o600); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nRun `mimir start -c %s` to start.\n", path, path)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "mimir.yaml", "Where to write the configuration")
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	cmd.Flags().BoolP("yes", "y", false, "Accept the defaults without prompting")
	return cmd
}

func defaultInitOptions() app.InitOptions {
	return app.InitOptions{
		Bind:      "127.0.0.1:4000",
		Storage:   app.StorageSQLite,
		MCP:       true,
		Metrics:   true,
		LogFormat: "text",
	}
}

func initForm(opts *app.InitOptions) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("HTTP bind address").
				Value(&opts.Bind).
				Validate(validateBind),
			huh.NewSelect[string]().
				Title("Knowledge storage").
				Options(
					huh.NewOption("SQLite (persistent)", app.StorageSQLite),
					huh.NewOption("In memory", app.StorageMemory),
				).
				Value(&opts.Storage),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Redis address for shared history").
				Description("Leave empty to keep history in the knowledge store.").
				Value(&opts.RedisAddr).
				Validate(validateOptionalAddr),
			huh.NewInput().
				Title("OTLP traces endpoint").
				Description("Leave empty to disable tracing.").
				Value(&opts.TracingEndpoint),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the MCP endpoint?").
				Value(&opts.MCP),
			huh.NewConfirm().
				Title("Expose Prometheus metrics?").
				Value(&opts.Metrics),
			huh.NewSelect[string]().
				Title("Log format").
				Options(huh.NewOptions("text", "json")...).
				Value(&opts.LogFormat),
		),
	)
}

func validateBind(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("expected host:port: %w", err)
	}
	return nil
}

func validateOptionalAddr(addr string) error {
	if addr == "" {
		return nil
	}
	return validateBind(addr)
}
