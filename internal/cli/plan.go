package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what sync would do without running git",
	Long: `Resolve each repository's sync strategy and whether it would be cloned or
fetched, and print the result as a table. Nothing is written to disk.

Exit codes:
	0 = every repository can be synced as planned
	2 = at least one repository is blocked (invalid labels, non-git directory)
	3 = fatal error (invalid descriptor file)`,
	Example: `  reposync plan -f repos.yaml
  reposync plan -f repos.yaml --labels sparse`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg.Targeting.DryRun = true
		os.Exit(runSync(cmd))
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	addTargetingFlags(planCmd)
}
