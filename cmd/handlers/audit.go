package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"postforge/internal/audit"
)

// NewAuditCmd creates the audit command
func NewAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <niche-dir>",
		Short: "Check the link graph and images of a niche directory",
		Long: `Audit renders each post, extracts its links and reports dangling links,
cross-cluster links, self links, duplicated link blocks and missing images.
It exits non-zero when any issue is found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := audit.Run(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("🔍 %d documents, %d links, %d images\n", report.Documents, report.Links, report.Images)
			if report.Skipped > 0 {
				fmt.Printf("⚠️  %d documents could not be read\n", report.Skipped)
			}
			if report.OK() {
				fmt.Println("✅ No issues found")
				return nil
			}

			for _, issue := range report.Issues {
				fmt.Printf("   • [%s] %s: %s\n", issue.Kind, issue.Slug, issue.Detail)
			}
			return fmt.Errorf("%d issues found", len(report.Issues))
		},
	}
}
