// Package cli implements the immowatch commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"immowatch/internal/app"
	"immowatch/internal/config"
)

// Version is set at build time with -ldflags "-X immowatch/internal/cli.Version=...".
var Version = "0.1.0"

type options struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "immowatch",
		Short: "Real-estate monitoring agent",
		Long: `immowatch watches property portals for a set of localities, keeps an
activity journal and sends a daily HTML report by email.

Without a subcommand it runs the agent (same as "immowatch serve").`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(o.envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, o)
		},
	}
	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", "./immowatch.yaml", "path to the config file (yaml or json)")
	root.PersistentFlags().StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded before the config")

	// Subcommands (alphabetical)
	root.AddCommand(newRunCmd(o))
	root.AddCommand(newScrapeCmd(o))
	root.AddCommand(newServeCmd(o))
	root.AddCommand(newSyncCmd(o))
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

// withApp builds the app for a one-shot command and closes it afterwards.
func withApp(o *options, fn func(a *app.App) error) error {
	a, err := app.New(o.configPath)
	if err != nil {
		return err
	}
	runErr := fn(a)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Stop(ctx, app.StopCLI); err != nil && runErr == nil {
		fmt.Fprintln(os.Stderr, "shutdown:", err)
	}
	return runErr
}
