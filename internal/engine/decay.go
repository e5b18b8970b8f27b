package engine

import (
	"context"
	"math"
	"time"
)

// DecaySweep runs one pass over a snapshot of live entries,
// accumulating decay on everything non-persistent and reclaiming
// entries past the reclamation threshold. Returns the number
// reclaimed. Idempotent for persistent entries: their decay is frozen
// and they are never touched. Entries inserted mid-sweep are picked up
// next cycle. Per-entry backend failures are logged and skipped.
func (e *Engine) DecaySweep(ctx context.Context) int {
	entries := e.snapshot(ctx)
	now := time.Now()
	reclaimed := 0

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, entry := range entries {
		if entry.Persistent {
			continue
		}
		if _, live := e.index[entry.Fingerprint]; !live {
			// Reclaimed by an earlier iteration race; skip.
			continue
		}

		age := now.Sub(entry.LastAccessedAt).Seconds()
		if age < 0 {
			age = 0
		}
		entry.Decay = math.Min(1, entry.Decay+age*e.cfg.DecayRate)

		if entry.Decay > e.cfg.ReclamationThreshold {
			if err := e.adapter.Delete(ctx, entry.PartitionID, entry.Fingerprint); err != nil {
				e.log.Warn().Err(err).Str("fingerprint", entry.Fingerprint).Msg("decay: delete failed, skipping")
				continue
			}
			if p, err := e.registry.Get(entry.PartitionID); err == nil {
				p.AddLoad(-1)
			}
			delete(e.index, entry.Fingerprint)
			e.cache.Remove(entry.Fingerprint)
			if e.tiers != nil {
				e.tiers.Forget(entry.Fingerprint)
			}
			reclaimed++
			continue
		}

		if err := e.adapter.Put(ctx, entry.PartitionID, entry); err != nil {
			e.log.Warn().Err(err).Str("fingerprint", entry.Fingerprint).Msg("decay: write-back failed, skipping")
			continue
		}
		e.cache.Add(entry.Fingerprint, *entry)
	}

	if e.mets != nil {
		e.mets.Entries.Set(float64(len(e.index)))
		e.mets.Reclaimed.Add(float64(reclaimed))
	}
	if reclaimed > 0 {
		e.log.Info().Int("reclaimed", reclaimed).Msg("decay sweep")
	}
	return reclaimed
}
