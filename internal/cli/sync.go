package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"immowatch/internal/app"
)

func newSyncCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [name...]",
		Short: "Push tracked files to the remote repository",
		Long: `Push the named tracked files (journal, watch, report, opportunities,
agencies) to the remote repository. Without arguments every tracked file
is pushed. Unchanged files are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(o, func(a *app.App) error {
				tracked := a.Store().Tracked()
				names := args
				if len(names) == 0 {
					names = tracked
				}
				for _, n := range names {
					if !slices.Contains(tracked, n) {
						return fmt.Errorf("%s is not a tracked file", n)
					}
				}
				for _, n := range names {
					a.Store().Push(cmd.Context(), n)
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", n, a.Store().FileName(n))
				}
				return nil
			})
		},
	}
}
