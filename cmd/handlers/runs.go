package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"postforge/internal/config"
	"postforge/internal/logger"
	"postforge/internal/store"
)

// NewRunsCmd creates the runs command
func NewRunsCmd() *cobra.Command {
	var limit int
	var reset, confirm bool

	cmd := &cobra.Command{
		Use:   "runs <niche>",
		Short: "Show recorded runs and task progress for a niche",
		Long: `Runs lists the generation runs recorded for a niche together with the
number of tasks per status. With --reset the stored plan and task records are
forgotten so the next --resume starts over; generated files are untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := store.NewStore(config.Get().App.DataDir)
			if err != nil {
				return fmt.Errorf("failed to open run ledger: %w", err)
			}
			defer func() {
				if err := ledger.Close(); err != nil {
					logger.Error("Failed to close run ledger", err)
				}
			}()

			if reset {
				return runReset(ledger, args[0], confirm)
			}
			return runList(ledger, args[0], limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")
	cmd.Flags().BoolVar(&reset, "reset", false, "Forget the stored plan and task records")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Skip confirmation prompt")
	return cmd
}

func runList(ledger *store.Store, niche string, limit int) error {
	runs, err := ledger.ListRuns(niche, limit)
	if err != nil {
		return err
	}
	counts, err := ledger.TaskCounts(niche)
	if err != nil {
		return err
	}

	fmt.Printf("📊 Runs for %q\n", niche)
	fmt.Println("==================")
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %-9s  %s  posts=%d skipped=%d  text=%s images=%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status, r.ID[:8],
			r.Posts, r.Skipped, r.Backend, r.ImageBackend)
		if r.Error != "" {
			fmt.Printf("    ❌ %s\n", r.Error)
		}
	}

	fmt.Printf("\n📝 Tasks: %d done, %d skipped, %d failed\n",
		counts[store.TaskDone], counts[store.TaskSkipped], counts[store.TaskFailed])
	return nil
}

func runReset(ledger *store.Store, niche string, confirm bool) error {
	if !confirm {
		fmt.Printf("⚠️  This will forget the plan and task records for %q. Continue? [y/N]: ", niche)
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" && response != "yes" {
			fmt.Println("Reset cancelled")
			return nil
		}
	}

	if err := ledger.ClearNiche(niche); err != nil {
		return err
	}
	fmt.Println("✅ Records cleared")
	return nil
}
