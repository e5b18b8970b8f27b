package engine

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/quartzmem/quartz/internal/partition"
	"github.com/quartzmem/quartz/internal/store"
)

func TestRestoreRebuildsState(t *testing.T) {
	ctx := context.Background()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	registry := partition.NewRegistry(4, 1.0)
	registry.SetOnCreate(func(rec partition.Record) {
		if err := db.SavePartition(ctx, rec); err != nil {
			t.Errorf("SavePartition: %v", err)
		}
	})
	eng, err := New(registry, db, DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var fps []string
	for _, content := range []string{"first", "second"} {
		res, err := eng.Store(ctx, []byte(content), dull, "surface", "")
		if err != nil {
			t.Fatalf("Store %q: %v", content, err)
		}
		fps = append(fps, res.Fingerprint)
	}
	if _, err := eng.Store(ctx, []byte("unforgettable"), QualityVector{1, 1, 1, 1}, "surface", ""); err != nil {
		t.Fatalf("Store crystal source: %v", err)
	}

	// Fresh process: new registry, new engine, same database.
	registry2 := partition.NewRegistry(4, 1.0)
	eng2, err := New(registry2, db, DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	recs, err := db.ListPartitions(ctx)
	if err != nil {
		t.Fatalf("ListPartitions: %v", err)
	}
	if err := eng2.Restore(ctx, recs); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if got := eng2.EntryCount(); got != 3 {
		t.Errorf("entries after restore = %d, want 3", got)
	}
	if registry2.Count() != registry.Count() {
		t.Errorf("partitions after restore = %d, want %d", registry2.Count(), registry.Count())
	}

	got, err := eng2.Retrieve(ctx, fps[0])
	if err != nil {
		t.Fatalf("Retrieve after restore: %v", err)
	}
	if got == nil || string(got.Payload) != "first" {
		t.Errorf("restored payload = %+v", got)
	}

	var load int
	for _, p := range registry2.All() {
		load += p.Load()
	}
	if load != 3 {
		t.Errorf("total load after restore = %d, want 3", load)
	}

	if n := eng2.Crystals().Count(); n != 1 {
		t.Errorf("crystals after restore = %d, want 1", n)
	}
}
