package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"postforge/internal/config"
	"postforge/internal/linkgraph"
	"postforge/internal/logger"
	"postforge/internal/pipeline"
)

// NewLinkCmd creates the link command
func NewLinkCmd() *cobra.Command {
	var policy string
	var seed int64
	var alwaysEnd bool

	cmd := &cobra.Command{
		Use:   "link <niche-dir>",
		Short: "Rebuild the link graph of an existing niche directory",
		Long: `Link reloads every post under <niche-dir>/content/posts and rewrites its
related-reading blocks and cluster navigation. Running it twice leaves the
files unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := pipeline.LinkOptions(config.Get())
			if policy != "" {
				opts.Policy = linkgraph.Policy(policy)
			}
			if cmd.Flags().Changed("seed") {
				opts.Seed = seed
			}
			if cmd.Flags().Changed("always-end-block") {
				opts.AlwaysEndBlock = alwaysEnd
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			logger.Info("Building link graph", "dir", args[0], "policy", string(opts.Policy))
			result, err := linkgraph.New(opts).Build(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("🔗 %d documents: %d linked, %d unchanged, %d skipped\n",
				result.Documents, result.Linked, result.Unchanged, result.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&policy, "policy", "", "Related-post ranking: similarity or random")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for the random policy")
	cmd.Flags().BoolVar(&alwaysEnd, "always-end-block", false, "Append the end block even when the early block is present")
	return cmd
}
