package store

import (
	"context"
	"testing"
	"time"

	"github.com/quartzmem/quartz/internal/fingerprint"
	"github.com/quartzmem/quartz/internal/partition"
)

// testDB is a helper that creates an in-memory SQLite DB for testing.
func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// adapters returns each Adapter implementation under a name, so the
// same conformance tests run against both backends.
func adapters(t *testing.T) map[string]Adapter {
	t.Helper()
	return map[string]Adapter{
		"memory": NewMemory(),
		"sqlite": testDB(t),
	}
}

func testEntry(content string) *Entry {
	fp, res, pattern := fingerprint.Encode([]byte(content))
	now := time.Now()
	return &Entry{
		Fingerprint:    fp,
		Payload:        []byte(content),
		PartitionID:    "p1",
		Resonance:      res,
		Pattern:        pattern,
		Importance:     0.5,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			entry := testEntry("hello")
			if err := a.Put(ctx, "p1", entry); err != nil {
				t.Fatalf("Put: %v", err)
			}

			got, err := a.Get(ctx, "p1", entry.Fingerprint)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got == nil {
				t.Fatal("Get returned nil for stored entry")
			}
			if string(got.Payload) != "hello" {
				t.Errorf("payload = %q, want %q", got.Payload, "hello")
			}
			if got.Resonance != entry.Resonance {
				t.Errorf("resonance = %f, want %f", got.Resonance, entry.Resonance)
			}
			if got.Pattern != entry.Pattern {
				t.Error("pattern did not survive the round trip")
			}
		})
	}
}

func TestGetAbsent(t *testing.T) {
	ctx := context.Background()
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			got, err := a.Get(ctx, "p1", "no-such-fingerprint")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != nil {
				t.Error("expected nil for absent fingerprint")
			}
		})
	}
}

func TestGetWrongPartition(t *testing.T) {
	ctx := context.Background()
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			entry := testEntry("scoped")
			a.Put(ctx, "p1", entry)

			got, err := a.Get(ctx, "p2", entry.Fingerprint)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != nil {
				t.Error("entry leaked across partition scope")
			}
		})
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			entry := testEntry("doomed")
			a.Put(ctx, "p1", entry)

			if err := a.Delete(ctx, "p1", entry.Fingerprint); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			got, _ := a.Get(ctx, "p1", entry.Fingerprint)
			if got != nil {
				t.Error("entry still present after delete")
			}

			// Deleting again is a no-op
			if err := a.Delete(ctx, "p1", entry.Fingerprint); err != nil {
				t.Errorf("second Delete: %v", err)
			}
		})
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			a.Put(ctx, "p1", testEntry("one"))
			a.Put(ctx, "p1", testEntry("two"))
			a.Put(ctx, "p2", testEntry("elsewhere"))

			entries, err := a.List(ctx, "p1")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(entries) != 2 {
				t.Errorf("len = %d, want 2", len(entries))
			}
		})
	}
}

func TestPutUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			entry := testEntry("mutable")
			a.Put(ctx, "p1", entry)

			entry.Decay = 0.4
			entry.AccessCount = 3
			if err := a.Put(ctx, "p1", entry); err != nil {
				t.Fatalf("Put update: %v", err)
			}

			got, _ := a.Get(ctx, "p1", entry.Fingerprint)
			if got.Decay != 0.4 {
				t.Errorf("decay = %f, want 0.4", got.Decay)
			}
			if got.AccessCount != 3 {
				t.Errorf("access_count = %d, want 3", got.AccessCount)
			}

			entries, _ := a.List(ctx, "p1")
			if len(entries) != 1 {
				t.Errorf("len = %d, want 1 — update must not duplicate", len(entries))
			}
		})
	}
}

func TestCrystalPersistence(t *testing.T) {
	ctx := context.Background()
	for name, a := range adapters(t) {
		p, ok := a.(CrystalPersister)
		if !ok {
			t.Fatalf("%s adapter does not persist crystals", name)
		}
		t.Run(name, func(t *testing.T) {
			_, _, pattern := fingerprint.Encode([]byte("crystal"))
			c := &Crystal{
				ID:                "c-1",
				SourceFingerprint: "abc123",
				Pattern:           pattern,
				StabilityScore:    0.95,
				CreatedAt:         time.Now(),
			}
			if err := p.SaveCrystal(ctx, c); err != nil {
				t.Fatalf("SaveCrystal: %v", err)
			}

			cluster := &Crystal{
				ID:                 "c-2",
				MemberFingerprints: []string{"f1", "f2", "f3"},
				Pattern:            pattern,
				StabilityScore:     0.92,
				CreatedAt:          time.Now().Add(time.Millisecond),
			}
			if err := p.SaveCrystal(ctx, cluster); err != nil {
				t.Fatalf("SaveCrystal cluster: %v", err)
			}

			crystals, err := p.ListCrystals(ctx)
			if err != nil {
				t.Fatalf("ListCrystals: %v", err)
			}
			if len(crystals) != 2 {
				t.Fatalf("len = %d, want 2", len(crystals))
			}

			var found *Crystal
			for _, got := range crystals {
				if got.ID == "c-2" {
					found = got
				}
			}
			if found == nil {
				t.Fatal("cluster crystal missing")
			}
			if len(found.MemberFingerprints) != 3 {
				t.Errorf("members = %d, want 3", len(found.MemberFingerprints))
			}
			if found.StabilityScore != 0.92 {
				t.Errorf("stability = %f, want 0.92", found.StabilityScore)
			}
		})
	}
}

func TestPartitionRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	registry := partition.NewRegistry(4, 1.0)
	first := registry.Create("memory", "surface")
	second := registry.Create("memory", "surface")

	for _, p := range []*partition.Partition{first, second} {
		if err := db.SavePartition(ctx, p.Record()); err != nil {
			t.Fatalf("SavePartition: %v", err)
		}
	}
	// Saving again must not duplicate.
	if err := db.SavePartition(ctx, first.Record()); err != nil {
		t.Fatalf("SavePartition repeat: %v", err)
	}

	recs, err := db.ListPartitions(ctx)
	if err != nil {
		t.Fatalf("ListPartitions: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("partitions = %d, want 2", len(recs))
	}
	if recs[0].ID != first.ID || recs[1].ID != second.ID {
		t.Error("partitions not in creation order")
	}
	if recs[0].Capacity != first.Capacity {
		t.Errorf("capacity = %f, want %f", recs[0].Capacity, first.Capacity)
	}
	if len(recs[0].Position) != len(first.Position) {
		t.Fatalf("position dims = %d, want %d", len(recs[0].Position), len(first.Position))
	}
	for i, v := range recs[0].Position {
		if v != first.Position[i] {
			t.Errorf("position[%d] = %f, want %f", i, v, first.Position[i])
		}
	}
}

func TestSchemaVersion(t *testing.T) {
	db := testDB(t)
	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("schema version = %d, want %d", v, len(migrations))
	}
}
