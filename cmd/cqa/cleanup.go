package main

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/bigredeye/cqa/internal/config"
	"github.com/bigredeye/cqa/internal/docker"
	lf "github.com/bigredeye/cqa/internal/logfield"
	zlog "github.com/bigredeye/cqa/pkg/log"
)

func makeCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "cleanup [ALL|STOPPED]",
		Short:     "Remove managed containers, networks and images",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(docker.ScopeAll), string(docker.ScopeStopped)},
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := string(docker.ScopeStopped)
			if len(args) == 1 {
				raw = args[0]
			}
			scope, err := docker.ParseScope(raw)
			if err != nil {
				return err
			}

			conf, err := config.ParseConfig(configPath)
			if err != nil {
				return err
			}
			logger := zlog.Init(zlog.Options{Development: conf.Log.Development, File: conf.Log.File})
			defer zlog.Sync()

			cli, err := docker.NewClient(conf.Docker.Host)
			if err != nil {
				return err
			}
			defer cli.Close()

			driver := docker.NewDriver(cli, conf.Docker.GatewayContainer, logger)
			return cleanup(cmd.Context(), driver, scope, conf.Builds.SourceDir, logger)
		},
	}
}

// cleanup removes the managed Docker resources of scope, and with ALL also the
// cloned sources.
func cleanup(ctx context.Context, driver *docker.Driver, scope docker.Scope, sourceDir string, logger *zap.Logger) error {
	logger.Info("Cleaning up", lf.Scope(string(scope)))
	err := driver.Cleanup(ctx, scope)

	if scope == docker.ScopeAll && strings.TrimSpace(sourceDir) != "" && sourceDir != "/" {
		if rmErr := os.RemoveAll(sourceDir); rmErr != nil {
			err = multierr.Append(err, errors.Wrap(rmErr, "Failed to remove sources"))
		} else {
			logger.Info("Removed sources", zap.String("path", sourceDir))
		}
	}
	return err
}
