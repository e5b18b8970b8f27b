package engine

import (
	"context"
	"fmt"

	"github.com/quartzmem/quartz/internal/partition"
)

// Restore rebuilds in-memory state from a durable backend after a
// restart: adopt persisted partitions into the registry, rebuild the
// fingerprint index, derive partition loads from the entries actually
// stored, and reload crystals. Call before Start, on a fresh engine.
//
// recs must be in creation order (store.ListPartitions guarantees it).
func (e *Engine) Restore(ctx context.Context, recs []partition.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rec := range recs {
		e.registry.Adopt(rec)
	}

	for _, p := range e.registry.All() {
		entries, err := e.adapter.List(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("restore partition %s: %w", p.ID, err)
		}
		for _, entry := range entries {
			e.index[entry.Fingerprint] = p.ID
		}
		if n := len(entries); n > 0 {
			p.AddLoad(n)
		}
	}

	if err := e.crystals.Load(ctx); err != nil {
		return err
	}

	if e.mets != nil {
		e.mets.Entries.Set(float64(len(e.index)))
		e.mets.Partitions.Set(float64(e.registry.Count()))
	}

	e.log.Info().
		Int("partitions", e.registry.Count()).
		Int("entries", len(e.index)).
		Int("crystals", e.crystals.Count()).
		Msg("state restored")
	return nil
}
