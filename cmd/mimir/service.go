package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/mimir/pkg/app"
)

const runAction = "run"

// program adapts app.Run to the service manager's start/stop callbacks.
type program struct {
	params app.RunParams
	logger service.Logger
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		if err := app.Run(ctx, p.params); err != nil {
			if p.logger != nil {
				_ = p.logger.Error(err)
			}
			// Nothing is left running; let the service manager restart us.
			os.Exit(1)
		}
		p.done <- nil
	}()
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

func serviceCmd() *cobra.Command {
	actions := append(service.ControlAction[:], runAction)
	return &cobra.Command{
		Use:       "service <" + strings.Join(actions, "|") + ">",
		Short:     "Manage mimir as a system service",
		ValidArgs: actions,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			if cfgPath == "" {
				resolved, err := app.ResolveConfigPath()
				if err != nil {
					return err
				}
				cfgPath = resolved
			}
			abs, err := filepath.Abs(cfgPath)
			if err != nil {
				return err
			}

			prg := &program{params: runParams(abs, "")}
			svc, err := service.New(prg, serviceConfig(abs))
			if err != nil {
				return fmt.Errorf("service: %w", err)
			}

			action := args[0]
			if action == runAction {
				prg.logger, err = svc.Logger(nil)
				if err != nil {
					return fmt.Errorf("service: logger: %w", err)
				}
				return svc.Run()
			}
			if !slices.Contains(service.ControlAction[:], action) {
				return fmt.Errorf("service: unknown action %q", action)
			}
			if err := service.Control(svc, action); err != nil {
				return fmt.Errorf("service %s: %w", action, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
			return nil
		},
	}
}

// serviceConfig describes the installed unit. The service manager invokes
// `mimir service run` with the absolute config path.
func serviceConfig(cfgPath string) *service.Config {
	return &service.Config{
		Name:        "mimir",
		DisplayName: "Mimir",
		Description: "Chat companion that learns facts from conversation.",
		Arguments:   []string{"service", runAction, "--config", cfgPath},
	}
}
