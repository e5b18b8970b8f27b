package engine

import (
	"context"

	"github.com/quartzmem/quartz/internal/tier"
)

// RebalanceSweep reassigns live entries across storage tiers and
// enforces tier capacity. No-op without an attached tier policy.
// Persistent entries sit outside the tier system and are untouched.
func (e *Engine) RebalanceSweep(ctx context.Context) tier.Report {
	if e.tiers == nil {
		return tier.Report{}
	}

	entries := e.snapshot(ctx)
	report := e.tiers.Rebalance(entries)

	if e.mets != nil {
		for _, t := range tier.Tiers {
			e.mets.TierSize.WithLabelValues(t.String()).Set(float64(report.Distribution[t]))
		}
	}
	if report.Demotions > 0 {
		e.log.Info().
			Int("demotions", report.Demotions).
			Int64("footprint_bytes", report.FootprintBytes).
			Msg("tier rebalance")
	}
	return report
}
