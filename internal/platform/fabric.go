package platform

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bigredeye/cqa/internal/config"
	api_fetcher "github.com/bigredeye/cqa/internal/platform/api"
	"github.com/bigredeye/cqa/internal/platform/base"
	gitlab_fetcher "github.com/bigredeye/cqa/internal/platform/gitlab"
	static_fetcher "github.com/bigredeye/cqa/internal/platform/static"
)

// Runner is implemented by fetchers that refresh their data in background.
type Runner interface {
	Run(ctx context.Context)
}

func NewProjectsFetcher(conf *config.Config, logger *zap.Logger) (base.ProjectsFetcher, error) {
	logger = logger.Named("platform")

	switch conf.Platform.Mode {
	case config.StaticMode:
		fetcher, err := static_fetcher.NewFetcher(conf.Platform.Static.File, conf.Platform.Static.ReloadInterval, logger)
		if err != nil {
			return nil, errors.Wrap(err, "Failed to load project catalog")
		}
		return fetcher, nil
	case config.GitlabMode:
		fetcher, err := gitlab_fetcher.NewProjectsFetcher(conf.Platform.GitLab.BaseURL, conf.Platform.GitLab.Token, logger)
		if err != nil {
			return nil, err
		}
		return fetcher, nil
	case config.ApiMode:
		fetcher, err := api_fetcher.NewProjectsFetcher(conf.Platform.Api.BaseURL, conf.Platform.Api.Token, logger)
		if err != nil {
			return nil, err
		}
		return fetcher, nil
	default:
		return nil, errors.Wrap(errors.Errorf("Unknown platform mode: %s", conf.Platform.Mode), fmt.Sprintf("Failed to create projects fetcher for platform %s", conf.Platform.Mode))
	}
}
