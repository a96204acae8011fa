package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"immowatch/internal/app"
	"immowatch/internal/tasks"
)

func newRunCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run <task>",
		Short: "Run one task or group now and exit",
		Long: `Run one task or group in the foreground. The run is journaled and
recorded in the run history like a scheduled one.

Tasks: ` + strings.Join(tasks.Names(), ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: tasks.Names(),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(tasks.Names(), args[0]) {
				return fmt.Errorf("%w: %s (want one of %s)", tasks.ErrUnknownTask, args[0], strings.Join(tasks.Names(), ", "))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(o, func(a *app.App) error {
				if err := a.RunTask(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s done\n", args[0])
				return nil
			})
		},
	}
}
