package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"immowatch/internal/app"
	"immowatch/internal/scraper"
)

func newScrapeCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Drive portal scraping jobs on the hosted scraper",
	}
	portals := []string{scraper.PortalLeboncoin, scraper.PortalSeloger, scraper.PortalBienici}

	cmd.AddCommand(&cobra.Command{
		Use:       "start <portal> [zone]",
		Short:     "Start a job for one portal and zone (default vergt)",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: portals,
		RunE: func(cmd *cobra.Command, args []string) error {
			zone := scraper.ZoneVergt
			if len(args) == 2 {
				z, err := scraper.ZoneByKey(args[1])
				if err != nil {
					return err
				}
				zone = z
			}
			spec, err := scraper.BuildJob(args[0], zone)
			if err != nil {
				return err
			}
			return withScraper(o, func(c *scraper.Client) error {
				run, err := c.Start(cmd.Context(), spec)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "started %s for %s: run %s\n", run.Actor, zone.Key, run.ID)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "sweep <portal>",
		Short:     "Start a job for every built-in zone",
		Args:      cobra.ExactArgs(1),
		ValidArgs: portals,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScraper(o, func(c *scraper.Client) error {
				res, err := c.Sweep(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the state of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScraper(o, func(c *scraper.Client) error {
				st, err := c.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), st)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "results <run-id>",
		Short: "Print the listings collected by a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withScraper(o, func(c *scraper.Client) error {
				items, err := c.Results(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), scraper.FormatListings(items))
				return nil
			})
		},
	})
	return cmd
}

func withScraper(o *options, fn func(c *scraper.Client) error) error {
	return withApp(o, func(a *app.App) error {
		c := a.Scraper()
		if !c.Enabled() {
			return scraper.ErrNotConfigured
		}
		return fn(c)
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
