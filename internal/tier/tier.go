// Package tier assigns entries to storage classes by access recency and
// importance, and rebalances under capacity pressure. Crystallized
// (persistent) entries live outside the tier system entirely.
package tier

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/quartzmem/quartz/internal/store"
)

// Tier is a storage class. Colder tiers trade access latency for
// (estimated) footprint.
type Tier int

const (
	Active Tier = iota
	Warm
	Cold
	Archived
)

func (t Tier) String() string {
	switch t {
	case Active:
		return "active"
	case Warm:
		return "warm"
	case Cold:
		return "cold"
	case Archived:
		return "archived"
	default:
		return "unknown"
	}
}

// Tiers lists all tiers hottest-first.
var Tiers = []Tier{Active, Warm, Cold, Archived}

// Config controls tier assignment windows and per-tier capacity.
type Config struct {
	// Recency windows. An entry accessed within ActiveWindow is active,
	// within WarmWindow warm, within ColdWindow cold, otherwise archived.
	ActiveWindow time.Duration
	WarmWindow   time.Duration
	ColdWindow   time.Duration

	// ImportanceBoost promotes entries at or above this importance one
	// tier hotter than recency alone would place them.
	ImportanceBoost float64

	// Capacity ceilings enforced by Rebalance. Zero means unlimited.
	MaxActive int
	MaxWarm   int
	MaxCold   int
}

// DefaultConfig returns the standard windows and capacities.
func DefaultConfig() Config {
	return Config{
		ActiveWindow:    time.Minute,
		WarmWindow:      10 * time.Minute,
		ColdWindow:      time.Hour,
		ImportanceBoost: 0.8,
		MaxActive:       1000,
		MaxWarm:         5000,
		MaxCold:         20000,
	}
}

// Report summarizes a rebalance pass.
type Report struct {
	Distribution map[Tier]int
	Demotions    int
	// FootprintBytes estimates total storage after tiering: raw payload
	// size for active/warm, zstd-compressed size for cold/archived.
	FootprintBytes int64
}

// Policy tracks tier assignments. Owned by its caller; safe for
// concurrent use.
type Policy struct {
	cfg Config

	mu          sync.Mutex
	assignments map[string]Tier

	enc *zstd.Encoder
}

// NewPolicy creates a Policy with the given config.
func NewPolicy(cfg Config) (*Policy, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	return &Policy{
		cfg:         cfg,
		assignments: make(map[string]Tier),
		enc:         enc,
	}, nil
}

// Assign returns the tier an entry belongs to by recency and
// importance. The second return is false for persistent entries, which
// are not tiered.
func (p *Policy) Assign(e *store.Entry) (Tier, bool) {
	if e.Persistent {
		return Active, false
	}
	t := p.assignByRecency(time.Since(e.LastAccessedAt))
	if e.Importance >= p.cfg.ImportanceBoost && t > Active {
		t--
	}
	return t, true
}

func (p *Policy) assignByRecency(idle time.Duration) Tier {
	switch {
	case idle < p.cfg.ActiveWindow:
		return Active
	case idle < p.cfg.WarmWindow:
		return Warm
	case idle < p.cfg.ColdWindow:
		return Cold
	default:
		return Archived
	}
}

// Rebalance assigns every entry a tier, then enforces per-tier capacity
// by demoting the least-recently-accessed overflow one tier colder,
// cascading active→warm→cold→archived. Persistent entries are skipped.
func (p *Policy) Rebalance(entries []*store.Entry) Report {
	p.mu.Lock()
	defer p.mu.Unlock()

	byTier := make(map[Tier][]*store.Entry)
	for _, e := range entries {
		t, ok := p.Assign(e)
		if !ok {
			delete(p.assignments, e.Fingerprint)
			continue
		}
		byTier[t] = append(byTier[t], e)
	}

	demotions := 0
	limits := map[Tier]int{Active: p.cfg.MaxActive, Warm: p.cfg.MaxWarm, Cold: p.cfg.MaxCold}
	for _, t := range []Tier{Active, Warm, Cold} {
		limit := limits[t]
		if limit <= 0 || len(byTier[t]) <= limit {
			continue
		}
		// Oldest access first — those overflow to the colder tier.
		sort.Slice(byTier[t], func(i, j int) bool {
			return byTier[t][i].LastAccessedAt.Before(byTier[t][j].LastAccessedAt)
		})
		excess := len(byTier[t]) - limit
		overflow := byTier[t][:excess]
		byTier[t] = byTier[t][excess:]
		byTier[t+1] = append(overflow, byTier[t+1]...)
		demotions += len(overflow)
	}

	report := Report{
		Distribution: make(map[Tier]int, len(Tiers)),
		Demotions:    demotions,
	}
	for _, t := range Tiers {
		report.Distribution[t] = len(byTier[t])
		for _, e := range byTier[t] {
			p.assignments[e.Fingerprint] = t
			report.FootprintBytes += p.footprint(e.Payload, t)
		}
	}
	return report
}

// TierOf returns the last assigned tier for a fingerprint.
func (p *Policy) TierOf(fp string) (Tier, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.assignments[fp]
	return t, ok
}

// Forget drops an entry's assignment after reclamation.
func (p *Policy) Forget(fp string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.assignments, fp)
}

// Distribution returns the current entry count per tier.
func (p *Policy) Distribution() map[Tier]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	dist := make(map[Tier]int, len(Tiers))
	for _, t := range p.assignments {
		dist[t]++
	}
	return dist
}

// footprint estimates stored bytes for a payload at a tier. Cold and
// archived payloads are measured compressed — real zstd output, not a
// guessed ratio.
func (p *Policy) footprint(payload []byte, t Tier) int64 {
	if t < Cold || len(payload) == 0 {
		return int64(len(payload))
	}
	return int64(len(p.enc.EncodeAll(payload, nil)))
}
