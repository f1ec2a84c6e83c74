package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"botrader/internal/engine"
)

// newRunCmd creates the run command, which starts the engine timers
// and blocks until interrupted.
func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trading engine",
		Long: `Start the scheduler timers: the entry/exit evaluation loop, the
statistics resync loop and the fast stop-loss/take-profit touch
monitor. Runs until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			scheduler := engine.NewScheduler(app.Engine, engine.SchedulerConfig{
				EvalInterval:  app.Config.Scheduler.EvalInterval,
				StatsInterval: app.Config.Scheduler.StatsInterval,
				TouchInterval: app.Config.Scheduler.TouchInterval,
			}, engine.RealClock{}, app.Logger)

			scheduler.Start(ctx)
			app.Logger.Info().Msg("engine running, press Ctrl+C to stop")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-sigCh:
				app.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
			case <-ctx.Done():
			}

			scheduler.Stop()
			app.Engine.Shutdown()
			return nil
		},
	}
	return cmd
}
