package store

import (
	"context"
	"time"

	"github.com/quartzmem/quartz/internal/fingerprint"
)

// Entry is a stored memory: content plus the lifecycle state that
// drives decay, reclamation, and promotion.
type Entry struct {
	Fingerprint    string
	Payload        []byte
	PartitionID    string
	Resonance      float64
	Pattern        fingerprint.Pattern
	Importance     float64
	Persistent     bool
	Decay          float64
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int
}

// Crystal is a promoted entry or entry-cluster. Immutable once created;
// never decays. Exactly one of SourceFingerprint or MemberFingerprints
// is set, depending on whether promotion was single-entry or cluster.
type Crystal struct {
	ID                 string
	SourceFingerprint  string
	MemberFingerprints []string
	Pattern            fingerprint.Pattern
	StabilityScore     float64
	CreatedAt          time.Time
}

// Adapter is the pluggable partition-scoped key/value backend. No
// algorithm lives behind it: callers own placement, scoring, and
// lifecycle. Get returns (nil, nil) for an absent fingerprint —
// reclaimed and never-stored entries are indistinguishable.
type Adapter interface {
	Put(ctx context.Context, partitionID string, entry *Entry) error
	Get(ctx context.Context, partitionID, fp string) (*Entry, error)
	Delete(ctx context.Context, partitionID, fp string) error
	List(ctx context.Context, partitionID string) ([]*Entry, error)
}

// CrystalPersister is implemented by adapters that can durably record
// crystals. The engine's crystal store writes through it when present.
type CrystalPersister interface {
	SaveCrystal(ctx context.Context, c *Crystal) error
	ListCrystals(ctx context.Context) ([]*Crystal, error)
}
