package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dotcommander/actionlib/internal/actions"
	"github.com/dotcommander/actionlib/internal/codegen"
	"github.com/dotcommander/actionlib/internal/config"
	"github.com/dotcommander/actionlib/internal/settings"
	"github.com/dotcommander/actionlib/internal/storage"
	"github.com/dotcommander/actionlib/internal/yandex"
	apperrors "github.com/dotcommander/actionlib/pkg/actionlib/errors"
)

// app is the wired core shared by the commands of one invocation
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *yandex.Client
	settings *settings.Store
	actions  *actions.Store
	codegen  *codegen.Service

	// warnings collects recoverable load problems for the caller to show
	warnings []error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	fs := storage.NewFileSystem(cfg.Paths.DataDir)

	client := yandex.NewClient(
		yandex.WithEndpoints(cfg.API.TokenURL, cfg.API.CompletionURL),
		yandex.WithModel(cfg.API.ModelURI),
		yandex.WithTimeout(cfg.API.Timeout),
		yandex.WithRetry(cfg.API.MaxRetries),
		yandex.WithRateLimit(cfg.API.RateLimit.RequestsPerMinute, cfg.API.RateLimit.BurstSize),
		yandex.WithLogger(logger.With("component", "yandex_client")),
	)

	a := &app{
		cfg:    cfg,
		logger: logger,
		client: client,
		settings: settings.NewStore(fs, cfg.Paths.SettingsFile, client,
			settings.WithLogger(logger.With("component", "settings")),
			settings.WithRefreshTimeout(cfg.API.Timeout*time.Duration(cfg.API.MaxRetries+1))),
		actions: actions.NewStore(fs, cfg.Paths.ActionsFile,
			actions.WithLogger(logger.With("component", "actions"))),
	}

	if err := a.settings.Load(ctx); err != nil {
		if apperrors.IsCorrupt(err) {
			return nil, fmt.Errorf("%w (fix or remove the file to start over)", err)
		}
		return nil, err
	}

	if cfg.OAuthToken != "" && a.settings.Snapshot().OAuthToken == "" {
		if err := a.settings.SetOAuthToken(ctx, cfg.OAuthToken); err != nil {
			return nil, err
		}
		logger.Info("oauth token taken from environment")
	}

	if err := a.actions.Load(ctx); err != nil {
		if !apperrors.IsCorrupt(err) {
			return nil, err
		}
		a.warnings = append(a.warnings, err)
	}

	generator := codegen.NewGenerator(client, codegen.WithLogger(logger.With("component", "codegen")))
	a.codegen = codegen.NewService(generator, a.settings, a.actions)

	return a, nil
}

// app builds the core for a command after PersistentPreRunE has run
func (o *rootOptions) app(ctx context.Context) (*app, error) {
	if o.cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return newApp(ctx, o.cfg, o.logger)
}
