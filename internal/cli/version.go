package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"reposync/internal/flags"
	"reposync/internal/vcs"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information and the git binary sync would use",
	Run: func(cmd *cobra.Command, args []string) {
		version, commit, date := BuildInfo()
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "reposync %s\ncommit: %s\nbuilt:  %s\n", version, commit, date)
		fmt.Fprintf(w, "go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)

		gitVersion, err := vcs.NewGit(vcs.WithBinary(cfg.Runtime.GitBinary)).Version(cmd.Context())
		if err != nil {
			gitVersion = "unavailable (" + err.Error() + ")"
		}
		fmt.Fprintf(w, "git:    %s\n", gitVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().StringVar(&cfg.Runtime.GitBinary, flags.FlagGit, cfg.Runtime.GitBinary, "git executable to report")
}
