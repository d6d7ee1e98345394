package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/cppla/newspaper/newsletter"
	"github.com/cppla/newspaper/routes"
	"github.com/cppla/newspaper/utils"
)

const (
	mailWorkers   = 2
	mailQueueSize = 256
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		Long: `Run the web server on the configured port.

SIGTERM and SIGINT drain in-flight requests and queued newsletter mail
before exiting; SIGUSR2 restarts the binary without dropping the listener.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cfg, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = utils.Logger.Sync() }()

	dispatcher := newsletter.NewDispatcher(utils.NewSMTPMailer(cfg.SMTP), mailWorkers, mailQueueSize)
	dispatcher.Start()
	notifier := newsletter.NewNotifier(db, dispatcher, cfg.App.SiteURL, cfg.App.SiteName)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	var digestDone <-chan struct{}
	if cfg.Digest.Enabled {
		digestDone = notifier.StartDigest(ctx, cfg.Digest.Every())
		utils.Sugar.Infof("weekly digest enabled, every %s", cfg.Digest.Every())
	}

	srv := utils.NewServer(":"+cfg.App.Port, routes.SetupRouter(db, notifier))
	srv.OnShutdown(func(shutdownCtx context.Context) {
		cancel()
		if cfg.Digest.Enabled {
			<-digestDone
		}
		dispatcher.Stop(shutdownCtx)
		utils.CloseRedis()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.App.Port)
	return srv.ListenAndServe()
}
