package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	qhttp "caserisk/http"
	"caserisk/labels"
	"caserisk/logging"
	"caserisk/ml"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assessment form and API.",
		Long: `Load the model artifact and start the HTTP server.

The artifact is loaded before the listener opens. A missing or unreadable
model or feature list is reported with its resolved path and the command
exits with status 1.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides http.port)")
	return cmd
}

func runServe(ctx context.Context, opts *globalOptions, port int) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Http.Port = port
	}

	logger, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	service, err := newService(cfg, logger)
	if err != nil {
		var artifactErr *ml.ArtifactError
		if errors.As(err, &artifactErr) {
			logger.Error("cannot load model artifact", zap.String("path", artifactErr.Path), zap.Error(err))
		}
		return err
	}
	artifact := service.Artifact()
	logger.Info("model artifact loaded",
		zap.String("kind", artifact.Kind()),
		zap.String("model", artifact.ModelPath()),
		zap.String("features", artifact.FeaturesPath()),
		zap.Int("schema_len", artifact.Schema().Len()),
		zap.Int("classes", artifact.Classes()))

	store, err := labels.NewStore(cfg.Labels.Language, cfg.Labels.Dir, logger)
	if err != nil {
		return err
	}
	warnStale(logger, store.Catalog(), artifact.Schema())

	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
		MaxBodyBytes:   cfg.Http.MaxBodyBytes,
	}, service, store, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		return store.Watch(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		return server.Stop(context.WithoutCancel(ctx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("exiting")
	return nil
}
