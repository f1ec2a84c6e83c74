package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newStatsCmd creates the stats command, which recomputes and prints
// a bot's performance snapshot.
func newStatsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <bot-id>",
		Short: "Recompute and print a bot's performance statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			botID := args[0]

			bot, err := app.Store.GetBot(cmd.Context(), botID)
			if err != nil {
				return err
			}

			stats, err := app.Engine.Stats().Recompute(cmd.Context(), botID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Bot:        %s (%s)\n", bot.Name, bot.Symbol)
			fmt.Fprintf(out, "Trades:     %d total, %d open, %d closed\n",
				stats.TotalTrades, stats.OpenTrades, stats.ClosedTrades)
			fmt.Fprintf(out, "Win rate:   %.2f%% (%d W / %d L)\n",
				stats.WinRate, stats.WinningTrades, stats.LosingTrades)
			fmt.Fprintf(out, "Realized:   %.2f\n", stats.RealizedPnL)
			fmt.Fprintf(out, "Unrealized: %.2f\n", stats.UnrealizedPnL)
			fmt.Fprintf(out, "Net:        %.2f\n", stats.NetProfit)
			fmt.Fprintf(out, "Avg win:    %.2f   Avg loss: %.2f\n", stats.AverageWin, stats.AverageLoss)
			fmt.Fprintf(out, "Largest:    +%.2f / -%.2f\n", stats.LargestWin, stats.LargestLoss)
			fmt.Fprintf(out, "PF:         %.2f   Sharpe: %.2f   MaxDD: %.2f%%\n",
				stats.ProfitFactor, stats.SharpeRatio, stats.MaxDrawdown)
			fmt.Fprintf(out, "Streaks:    max %dW / %dL, current %+d\n",
				stats.MaxConsecutiveWins, stats.MaxConsecutiveLosses, stats.CurrentStreak)
			return nil
		},
	}
	return cmd
}
