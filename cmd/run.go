package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inboxops/autotag/internal/inbox"
	"github.com/inboxops/autotag/internal/letters"
	"github.com/inboxops/autotag/internal/nomenclature"
	"github.com/inboxops/autotag/internal/pipeline"
)

var (
	runSnapshot string
	runOnce     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tagging pipeline over an inbox snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		snapshot := runSnapshot
		if snapshot == "" {
			snapshot = cfg.Inbox.SnapshotPath
		}
		replay, err := inbox.OpenReplay(snapshot)
		if err != nil {
			return err
		}

		builder, err := nomenclature.NewBuilder(cfg.Pipeline.Timezone)
		if err != nil {
			return err
		}

		prompter := newTerminalPrompter()
		resolver := letters.NewResolver(st, prompter)
		go prompter.Serve(ctx, resolver)

		p := pipeline.New(
			cfg.Pipeline,
			replay,
			replay,
			newDirectory(st),
			resolver,
			builder,
			st,
			newAlerter(),
		)

		zap.L().Info("pipeline starting",
			zap.String("snapshot", snapshot),
			zap.Bool("once", runOnce))

		if runOnce {
			if err := p.RunOnce(ctx); err != nil {
				return eris.Wrap(err, "pipeline pass")
			}
			return nil
		}
		if err := p.Run(ctx); err != nil && ctx.Err() == nil {
			return eris.Wrap(err, "pipeline run")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runSnapshot, "snapshot", "", "inbox snapshot file (default from config)")
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single batch pass and exit")
	rootCmd.AddCommand(runCmd)
}
