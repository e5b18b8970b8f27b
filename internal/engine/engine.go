package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/quartzmem/quartz/internal/fingerprint"
	"github.com/quartzmem/quartz/internal/metrics"
	"github.com/quartzmem/quartz/internal/partition"
	"github.com/quartzmem/quartz/internal/store"
	"github.com/quartzmem/quartz/internal/tier"
)

// Config holds the retention engine's thresholds and sweep intervals.
type Config struct {
	// CrystallizationThreshold: importance above this promotes an entry
	// to a crystal at store time and freezes its decay.
	CrystallizationThreshold float64

	// ReclamationThreshold: decay above this reclaims a non-persistent
	// entry during a sweep.
	ReclamationThreshold float64

	// DecayRate is decay accumulated per second since last access, per
	// sweep tick.
	DecayRate float64

	DecayInterval     time.Duration
	ClusterInterval   time.Duration
	RebalanceInterval time.Duration

	// MinClusterSize is the smallest resonance bucket the clusterer
	// will promote.
	MinClusterSize int

	// ContentType is the partition group used for ingested entries.
	ContentType string

	// CacheSize bounds the read-through entry cache.
	CacheSize int
}

// DefaultConfig returns the standard engine tuning.
func DefaultConfig() Config {
	return Config{
		CrystallizationThreshold: 0.9,
		ReclamationThreshold:     0.95,
		DecayRate:                0.001,
		DecayInterval:            5 * time.Second,
		ClusterInterval:          10 * time.Second,
		RebalanceInterval:        30 * time.Second,
		MinClusterSize:           3,
		ContentType:              "memory",
		CacheSize:                1024,
	}
}

// StoreResult is the outcome of an ingestion.
type StoreResult struct {
	Fingerprint string
	PartitionID string
	Importance  float64
	Persistent  bool
}

// RetrieveResult is a successful retrieval.
type RetrieveResult struct {
	Payload     []byte
	AccessCount int
}

// Engine owns the memory lifecycle: placement on ingest, importance
// scoring and promotion, access bookkeeping, and the background decay,
// cluster, and rebalance sweeps.
type Engine struct {
	cfg      Config
	registry *partition.Registry
	adapter  store.Adapter
	crystals *CrystalStore
	log      zerolog.Logger

	tiers *tier.Policy
	mets  *metrics.Set

	cache *lru.Cache[string, store.Entry]

	// mu guards the fingerprint index and serializes entry mutation
	// against the sweeps. A single lock is deliberate: the store runs at
	// thousands of entries, not millions.
	mu    sync.RWMutex
	index map[string]string // fingerprint → partition id

	// clusterSigs remembers which bucket memberships have already been
	// promoted, keyed by resonance bucket.
	clusterSigs map[int][32]byte

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New creates an Engine over the given registry and storage adapter.
func New(registry *partition.Registry, adapter store.Adapter, cfg Config, log zerolog.Logger) (*Engine, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultConfig().CacheSize
	}
	cache, err := lru.New[string, store.Entry](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("init entry cache: %w", err)
	}

	var persister store.CrystalPersister
	if p, ok := adapter.(store.CrystalPersister); ok {
		persister = p
	}

	return &Engine{
		cfg:         cfg,
		registry:    registry,
		adapter:     adapter,
		crystals:    NewCrystalStore(persister),
		log:         log,
		cache:       cache,
		index:       make(map[string]string),
		clusterSigs: make(map[int][32]byte),
		stopCh:      make(chan struct{}),
	}, nil
}

// SetTierPolicy attaches a tiering policy. Without one, the rebalance
// sweep is skipped.
func (e *Engine) SetTierPolicy(p *tier.Policy) {
	e.tiers = p
}

// SetMetrics attaches a metrics set.
func (e *Engine) SetMetrics(m *metrics.Set) {
	e.mets = m
}

// Crystals exposes the engine-owned crystal store.
func (e *Engine) Crystals() *CrystalStore {
	return e.crystals
}

// TierPolicy returns the attached tiering policy, or nil.
func (e *Engine) TierPolicy() *tier.Policy {
	return e.tiers
}

// EntryCount returns the number of live entries.
func (e *Engine) EntryCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.index)
}

// Store ingests content: fingerprint it, place it on the best spiral
// partition, score it, and promote it if the score clears the
// crystallization threshold.
//
// partitionHint names the reference partition for placement; when
// empty, the most recently created partition of the ingestion group is
// used (the group is bootstrapped on first use). Re-storing identical
// content refreshes the existing entry instead of double-counting it.
func (e *Engine) Store(ctx context.Context, content []byte, quality QualityVector, depthTag, partitionHint string) (*StoreResult, error) {
	if err := quality.Validate(); err != nil {
		return nil, err
	}

	fp, resonance, pattern := fingerprint.Encode(content)

	e.mu.Lock()
	defer e.mu.Unlock()

	if pid, ok := e.index[fp]; ok {
		return e.touchExisting(ctx, pid, fp)
	}

	reference, err := e.resolveReference(depthTag, partitionHint)
	if err != nil {
		return nil, err
	}

	target, err := e.registry.SelectOptimalSpiral(e.cfg.ContentType, depthTag, len(content), reference.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	importance := quality.Importance()
	entry := &store.Entry{
		Fingerprint:    fp,
		Payload:        content,
		PartitionID:    target.ID,
		Resonance:      resonance,
		Pattern:        pattern,
		Importance:     importance,
		Persistent:     importance > e.cfg.CrystallizationThreshold,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	if err := e.adapter.Put(ctx, target.ID, entry); err != nil {
		return nil, fmt.Errorf("store entry: %w", err)
	}
	target.AddLoad(1)
	e.index[fp] = target.ID
	e.cache.Add(fp, *entry)

	if e.mets != nil {
		e.mets.Entries.Set(float64(len(e.index)))
		e.mets.Partitions.Set(float64(e.registry.Count()))
	}

	if entry.Persistent {
		crystal := &store.Crystal{
			SourceFingerprint: fp,
			Pattern:           pattern,
			StabilityScore:    importance,
			CreatedAt:         now,
		}
		if err := e.crystals.Add(ctx, crystal); err != nil {
			return nil, err
		}
		if e.mets != nil {
			e.mets.Crystals.Inc()
		}
		e.log.Info().
			Str("event", "memory-crystallized").
			Str("fingerprint", fp).
			Float64("importance", importance).
			Msg("entry promoted to crystal")
	}

	e.log.Debug().
		Str("fingerprint", fp).
		Str("partition", target.ID).
		Float64("importance", importance).
		Msg("entry stored")

	return &StoreResult{
		Fingerprint: fp,
		PartitionID: target.ID,
		Importance:  importance,
		Persistent:  entry.Persistent,
	}, nil
}

// touchExisting refreshes an already-stored fingerprint. Called with
// e.mu held.
func (e *Engine) touchExisting(ctx context.Context, pid, fp string) (*StoreResult, error) {
	entry, err := e.adapter.Get(ctx, pid, fp)
	if err != nil {
		return nil, fmt.Errorf("refresh entry: %w", err)
	}
	if entry == nil {
		// Index said it exists but the backend disagrees; trust the
		// backend and drop the stale index row.
		delete(e.index, fp)
		e.cache.Remove(fp)
		return nil, fmt.Errorf("refresh entry %s: index out of sync with backend", fp)
	}

	entry.Decay = 0
	entry.LastAccessedAt = time.Now()
	entry.AccessCount++
	if err := e.adapter.Put(ctx, pid, entry); err != nil {
		return nil, fmt.Errorf("refresh entry: %w", err)
	}
	e.cache.Add(fp, *entry)

	return &StoreResult{
		Fingerprint: fp,
		PartitionID: pid,
		Importance:  entry.Importance,
		Persistent:  entry.Persistent,
	}, nil
}

// resolveReference picks the placement reference partition. Called with
// e.mu held.
func (e *Engine) resolveReference(depthTag, partitionHint string) (*partition.Partition, error) {
	if partitionHint != "" {
		return e.registry.Get(partitionHint)
	}
	if p := e.registry.Newest(e.cfg.ContentType, depthTag); p != nil {
		return p, nil
	}
	// First entry for this group — bootstrap its first partition.
	return e.registry.Create(e.cfg.ContentType, depthTag), nil
}

// Retrieve returns an entry's payload by fingerprint. A hit resets the
// entry's decay and bumps its access count. Returns (nil, nil) for
// unknown fingerprints — reclaimed entries are indistinguishable from
// never-stored ones.
func (e *Engine) Retrieve(ctx context.Context, fp string) (*RetrieveResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pid, ok := e.index[fp]
	if !ok {
		return nil, nil
	}

	entry, cached := e.cacheGet(fp)
	if !cached {
		var err error
		entry, err = e.adapter.Get(ctx, pid, fp)
		if err != nil {
			return nil, fmt.Errorf("retrieve %s: %w", fp, err)
		}
		if entry == nil {
			delete(e.index, fp)
			return nil, nil
		}
	}

	entry.Decay = 0
	entry.LastAccessedAt = time.Now()
	entry.AccessCount++
	if err := e.adapter.Put(ctx, pid, entry); err != nil {
		return nil, fmt.Errorf("record access %s: %w", fp, err)
	}
	e.cache.Add(fp, *entry)

	return &RetrieveResult{
		Payload:     entry.Payload,
		AccessCount: entry.AccessCount,
	}, nil
}

func (e *Engine) cacheGet(fp string) (*store.Entry, bool) {
	cached, ok := e.cache.Get(fp)
	if !ok {
		return nil, false
	}
	cp := cached
	return &cp, true
}

// Start launches the background sweeps. Idempotent per engine; call
// Stop to shut them down.
func (e *Engine) Start() {
	if e.started {
		return
	}
	e.started = true

	e.startSweep(e.cfg.DecayInterval, func(ctx context.Context) {
		e.DecaySweep(ctx)
	})
	e.startSweep(e.cfg.ClusterInterval, func(ctx context.Context) {
		e.ClusterSweep(ctx)
	})
	if e.tiers != nil {
		e.startSweep(e.cfg.RebalanceInterval, func(ctx context.Context) {
			e.RebalanceSweep(ctx)
		})
	}
}

func (e *Engine) startSweep(interval time.Duration, sweep func(context.Context)) {
	if interval <= 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sweep(context.Background())
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the background sweeps, letting any in-flight sweep
// finish. Safe to call once.
func (e *Engine) Stop() {
	if !e.started {
		return
	}
	close(e.stopCh)
	e.wg.Wait()
}

// snapshot returns all live entries, listed partition by partition.
// Per-partition listing failures are logged and skipped so one bad
// partition cannot abort a whole sweep.
func (e *Engine) snapshot(ctx context.Context) []*store.Entry {
	var entries []*store.Entry
	for _, p := range e.registry.All() {
		list, err := e.adapter.List(ctx, p.ID)
		if err != nil {
			e.log.Warn().Err(err).Str("partition", p.ID).Msg("sweep: list failed, skipping partition")
			continue
		}
		entries = append(entries, list...)
	}
	return entries
}
