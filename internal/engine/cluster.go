package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/quartzmem/quartz/internal/fingerprint"
	"github.com/quartzmem/quartz/internal/store"
)

// resonanceBucket groups entries whose resonance rounds to the same
// centi-step. Bucketing keeps clustering linear in the entry count —
// no pairwise resonance graph is ever materialized.
func resonanceBucket(resonance float64) int {
	return int(resonance * 100)
}

// ClusterSweep buckets live entries by resonance and promotes every
// bucket of at least MinClusterSize members whose average importance
// clears the crystallization threshold. Promotion is additive: members
// are neither moved nor mutated. A bucket whose membership is unchanged
// since its last promotion is skipped, so stable clusters produce one
// crystal, not one per sweep. Returns the number of cluster crystals
// created.
func (e *Engine) ClusterSweep(ctx context.Context) int {
	entries := e.snapshot(ctx)

	buckets := make(map[int][]*store.Entry)
	for _, entry := range entries {
		b := resonanceBucket(entry.Resonance)
		buckets[b] = append(buckets[b], entry)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	created := 0
	for bucket, members := range buckets {
		if len(members) < e.cfg.MinClusterSize {
			continue
		}

		total := 0.0
		for _, m := range members {
			total += m.Importance
		}
		avg := total / float64(len(members))
		if avg <= e.cfg.CrystallizationThreshold {
			continue
		}

		fps := make([]string, len(members))
		for i, m := range members {
			fps[i] = m.Fingerprint
		}
		sort.Strings(fps)
		sig := fingerprint.Sum([]byte(strings.Join(fps, "\n")))
		if e.clusterSigs[bucket] == sig {
			continue
		}

		crystal := &store.Crystal{
			MemberFingerprints: fps,
			Pattern:            averagePattern(members),
			StabilityScore:     avg,
			CreatedAt:          time.Now(),
		}
		if err := e.crystals.Add(ctx, crystal); err != nil {
			e.log.Warn().Err(err).Int("bucket", bucket).Msg("cluster: promotion failed, skipping")
			continue
		}
		e.clusterSigs[bucket] = sig
		created++
		if e.mets != nil {
			e.mets.Crystals.Inc()
		}
		e.log.Info().
			Int("bucket", bucket).
			Int("members", len(members)).
			Float64("stability", avg).
			Msg("cluster promoted to crystal")
	}
	return created
}

// averagePattern is the member-wise mean of the cluster's patterns,
// recorded as the cluster crystal's pattern snapshot.
func averagePattern(members []*store.Entry) fingerprint.Pattern {
	var avg fingerprint.Pattern
	n := float64(len(members))
	for _, m := range members {
		for i, pt := range m.Pattern {
			avg[i].Angle += pt.Angle / n
			avg[i].Radius += pt.Radius / n
			avg[i].Intensity += pt.Intensity / n
		}
	}
	return avg
}
