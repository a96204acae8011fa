package tasks

import (
	"context"

	"github.com/dustin/go-humanize"

	logx "immowatch/pkg/logx"
)

// AnalyzeMarket returns locality -> average price per m2 and trend from
// the configured market table. Nothing is persisted.
func (c *Catalog) AnalyzeMarket(ctx context.Context) map[string]MarketStat {
	c.Record(ctx, "market analysis")
	out := make(map[string]MarketStat, len(c.cfg.Market))
	for _, m := range c.cfg.Market {
		out[m.Locality] = m
	}
	c.log.Debug("market analyzed", logx.Int("localities", len(out)))
	return out
}

// formatEuro renders whole euros the French way: "1 850 €".
func formatEuro(v int) string {
	return humanize.FormatInteger("# ###.", v) + " €"
}
