package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/quartzmem/quartz/internal/fingerprint"
	"github.com/quartzmem/quartz/internal/partition"
	"github.com/quartzmem/quartz/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *partition.Registry, *store.Memory) {
	t.Helper()
	registry := partition.NewRegistry(4, 1.0)
	adapter := store.NewMemory()
	e, err := New(registry, adapter, DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, registry, adapter
}

// dull is a quality vector well below the crystallization threshold.
var dull = QualityVector{0.5, 0.5, 0.5, 0.5}

func TestStoreAndRetrieve(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Store(ctx, []byte("remember me"), dull, "surface", "")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if res.Fingerprint == "" || res.PartitionID == "" {
		t.Fatal("incomplete store result")
	}

	got, err := e.Retrieve(ctx, res.Fingerprint)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got == nil {
		t.Fatal("Retrieve returned nil for stored entry")
	}
	if string(got.Payload) != "remember me" {
		t.Errorf("payload = %q, want %q", got.Payload, "remember me")
	}
	if got.AccessCount != 1 {
		t.Errorf("access count = %d, want 1", got.AccessCount)
	}
}

func TestRetrieveUnknown(t *testing.T) {
	e, _, _ := newTestEngine(t)

	got, err := e.Retrieve(context.Background(), "no-such-fingerprint")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got != nil {
		t.Error("expected nil for unknown fingerprint")
	}
}

func TestStoreIncrementsLoad(t *testing.T) {
	e, registry, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Store(ctx, []byte("load check"), dull, "surface", "")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	p, err := registry.Get(res.PartitionID)
	if err != nil {
		t.Fatalf("Get partition: %v", err)
	}
	if p.Load() != 1 {
		t.Errorf("load = %d, want 1", p.Load())
	}
}

func TestStoreRejectsInvalidQuality(t *testing.T) {
	e, _, _ := newTestEngine(t)

	for _, q := range []QualityVector{
		{1.5, 0, 0, 0},
		{0, -0.1, 0, 0},
		{0, 0, 0, 2},
	} {
		_, err := e.Store(context.Background(), []byte("x"), q, "surface", "")
		if !errors.Is(err, ErrInvalidQuality) {
			t.Errorf("Store(%v) err = %v, want ErrInvalidQuality", q, err)
		}
	}
}

func TestImportanceBounds(t *testing.T) {
	if got := (QualityVector{1, 1, 1, 1}).Importance(); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("importance of all-ones = %f, want 1.0", got)
	}
	if got := (QualityVector{0, 0, 0, 0}).Importance(); got != 0 {
		t.Errorf("importance of all-zeros = %f, want 0", got)
	}
}

func TestImportanceWeighting(t *testing.T) {
	q := QualityVector{0.95, 0.9, 0.92, 0.88}
	want := (fingerprint.Phi*0.95 + 0.9 + 0.92 + 0.88) / (3 + fingerprint.Phi)
	if got := q.Importance(); math.Abs(got-want) > 1e-9 {
		t.Errorf("importance = %f, want %f", got, want)
	}
	if q.Importance() <= 0.9 {
		t.Error("high-quality vector should clear the crystallization threshold")
	}
}

func TestCrystallizationOnStore(t *testing.T) {
	e, _, adapter := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Store(ctx, []byte("hello"), QualityVector{0.95, 0.9, 0.92, 0.88}, "surface", "")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !res.Persistent {
		t.Error("expected entry to be crystallized")
	}

	if e.Crystals().Count() != 1 {
		t.Fatalf("crystals = %d, want exactly 1", e.Crystals().Count())
	}
	c := e.Crystals().All()[0]
	if c.SourceFingerprint != res.Fingerprint {
		t.Errorf("crystal source = %s, want %s", c.SourceFingerprint, res.Fingerprint)
	}
	if c.StabilityScore != res.Importance {
		t.Errorf("stability = %f, want %f", c.StabilityScore, res.Importance)
	}

	entry, _ := adapter.Get(ctx, res.PartitionID, res.Fingerprint)
	if !entry.Persistent {
		t.Error("stored entry not marked persistent")
	}

	// Crystals write through to the persister.
	persisted, err := adapter.ListCrystals(ctx)
	if err != nil {
		t.Fatalf("ListCrystals: %v", err)
	}
	if len(persisted) != 1 {
		t.Errorf("persisted crystals = %d, want 1", len(persisted))
	}
}

func TestLowImportanceDoesNotCrystallize(t *testing.T) {
	e, _, _ := newTestEngine(t)

	res, err := e.Store(context.Background(), []byte("mundane"), dull, "surface", "")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if res.Persistent {
		t.Error("mid-importance entry should not crystallize")
	}
	if e.Crystals().Count() != 0 {
		t.Errorf("crystals = %d, want 0", e.Crystals().Count())
	}
}

func TestRestoreSameContentIsRefresh(t *testing.T) {
	e, registry, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Store(ctx, []byte("idempotent"), dull, "surface", "")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	second, err := e.Store(ctx, []byte("idempotent"), dull, "surface", "")
	if err != nil {
		t.Fatalf("second Store: %v", err)
	}

	if second.Fingerprint != first.Fingerprint || second.PartitionID != first.PartitionID {
		t.Error("re-store changed identity or placement")
	}
	if e.EntryCount() != 1 {
		t.Errorf("entries = %d, want 1", e.EntryCount())
	}
	p, _ := registry.Get(first.PartitionID)
	if p.Load() != 1 {
		t.Errorf("load = %d, want 1 — re-store must not double count", p.Load())
	}
}

func TestStoreWithUnknownHint(t *testing.T) {
	e, _, _ := newTestEngine(t)

	_, err := e.Store(context.Background(), []byte("x"), dull, "surface", "bogus-id")
	if !errors.Is(err, partition.ErrPartitionNotFound) {
		t.Errorf("err = %v, want ErrPartitionNotFound", err)
	}
}

// backdate rewrites an entry's last access time so decay math sees it
// as idle.
func backdate(t *testing.T, e *Engine, adapter *store.Memory, fp string, idle time.Duration) {
	t.Helper()
	ctx := context.Background()
	e.mu.RLock()
	pid := e.index[fp]
	e.mu.RUnlock()

	entry, err := adapter.Get(ctx, pid, fp)
	if err != nil || entry == nil {
		t.Fatalf("backdate: entry %s not found", fp)
	}
	entry.LastAccessedAt = time.Now().Add(-idle)
	if err := adapter.Put(ctx, pid, entry); err != nil {
		t.Fatalf("backdate: %v", err)
	}
	e.cache.Remove(fp)
}

func TestDecayMonotonic(t *testing.T) {
	e, _, adapter := newTestEngine(t)
	e.cfg.DecayRate = 0.0001 // slow enough that two sweeps won't reclaim
	ctx := context.Background()

	res, _ := e.Store(ctx, []byte("fading"), dull, "surface", "")
	backdate(t, e, adapter, res.Fingerprint, 30*time.Minute)

	e.DecaySweep(ctx)
	entry, _ := adapter.Get(ctx, res.PartitionID, res.Fingerprint)
	first := entry.Decay
	if first <= 0 {
		t.Fatalf("decay = %f after sweep, want > 0", first)
	}

	e.DecaySweep(ctx)
	entry, _ = adapter.Get(ctx, res.PartitionID, res.Fingerprint)
	if entry.Decay < first {
		t.Errorf("decay decreased across sweeps: %f → %f", first, entry.Decay)
	}
}

func TestRetrieveResetsDecay(t *testing.T) {
	e, _, adapter := newTestEngine(t)
	e.cfg.DecayRate = 0.0001
	ctx := context.Background()

	res, _ := e.Store(ctx, []byte("touched"), dull, "surface", "")
	backdate(t, e, adapter, res.Fingerprint, 30*time.Minute)
	e.DecaySweep(ctx)

	if _, err := e.Retrieve(ctx, res.Fingerprint); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	entry, _ := adapter.Get(ctx, res.PartitionID, res.Fingerprint)
	if entry.Decay != 0 {
		t.Errorf("decay = %f after retrieve, want 0", entry.Decay)
	}
}

func TestDecayReclaims(t *testing.T) {
	e, registry, adapter := newTestEngine(t)
	ctx := context.Background()

	res, _ := e.Store(ctx, []byte("forgettable"), dull, "surface", "")
	backdate(t, e, adapter, res.Fingerprint, 2000*time.Second) // decay += 2.0 at default rate

	reclaimed := e.DecaySweep(ctx)
	if reclaimed != 1 {
		t.Fatalf("reclaimed = %d, want 1", reclaimed)
	}

	p, _ := registry.Get(res.PartitionID)
	if p.Load() != 0 {
		t.Errorf("load = %d, want 0 after reclaim", p.Load())
	}

	// Reclaimed fingerprints never reappear.
	for i := 0; i < 3; i++ {
		got, err := e.Retrieve(ctx, res.Fingerprint)
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if got != nil {
			t.Fatal("reclaimed entry reappeared")
		}
	}
}

func TestPersistentExemptFromDecay(t *testing.T) {
	e, _, adapter := newTestEngine(t)
	ctx := context.Background()

	res, _ := e.Store(ctx, []byte("precious"), QualityVector{1, 1, 1, 1}, "surface", "")
	if !res.Persistent {
		t.Fatal("expected crystallized entry")
	}
	backdate(t, e, adapter, res.Fingerprint, 24*time.Hour)

	for i := 0; i < 5; i++ {
		if reclaimed := e.DecaySweep(ctx); reclaimed != 0 {
			t.Fatalf("sweep %d reclaimed a persistent entry", i)
		}
	}

	entry, _ := adapter.Get(ctx, res.PartitionID, res.Fingerprint)
	if entry.Decay != 0 {
		t.Errorf("persistent decay = %f, want frozen at 0", entry.Decay)
	}
}

func TestStartStop(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.cfg.DecayInterval = time.Millisecond
	e.cfg.ClusterInterval = time.Millisecond

	e.Start()
	time.Sleep(10 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		e.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
