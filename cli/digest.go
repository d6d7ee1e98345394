package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cppla/newspaper/newsletter"
	"github.com/cppla/newspaper/utils"
)

// NewDigestCommand creates the digest command, which sends the newsletter digest once.
func NewDigestCommand() *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Send the newsletter digest of recent posts now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := bootstrap()
			if err != nil {
				return err
			}
			if since <= 0 {
				since = cfg.Digest.Every()
			}

			dispatcher := newsletter.NewDispatcher(utils.NewSMTPMailer(cfg.SMTP), mailWorkers, mailQueueSize)
			dispatcher.Start()
			notifier := newsletter.NewNotifier(db, dispatcher, cfg.App.SiteURL, cfg.App.SiteName)

			queued, err := notifier.SendDigest(cmd.Context(), time.Now().Add(-since))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			dispatcher.Stop(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "digest sent to %d subscribers\n", queued)
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "cover posts created within this window (default: digest interval)")
	return cmd
}
