package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/quartzmem/quartz/internal/fingerprint"
)

// patternBlob is the CBOR wire form of a pattern. Fixed schema keeps
// the blob compact and versionable without touching the table.
type patternBlob struct {
	Angles      []float64 `cbor:"1,keyasint"`
	Radii       []float64 `cbor:"2,keyasint"`
	Intensities []float64 `cbor:"3,keyasint"`
}

func encodePattern(p fingerprint.Pattern) ([]byte, error) {
	blob := patternBlob{
		Angles:      make([]float64, len(p)),
		Radii:       make([]float64, len(p)),
		Intensities: make([]float64, len(p)),
	}
	for i, pt := range p {
		blob.Angles[i] = pt.Angle
		blob.Radii[i] = pt.Radius
		blob.Intensities[i] = pt.Intensity
	}
	return cbor.Marshal(blob)
}

func decodePattern(data []byte) (fingerprint.Pattern, error) {
	var p fingerprint.Pattern
	if len(data) == 0 {
		return p, nil
	}
	var blob patternBlob
	if err := cbor.Unmarshal(data, &blob); err != nil {
		return p, fmt.Errorf("decode pattern: %w", err)
	}
	for i := range p {
		if i < len(blob.Angles) {
			p[i].Angle = blob.Angles[i]
		}
		if i < len(blob.Radii) {
			p[i].Radius = blob.Radii[i]
		}
		if i < len(blob.Intensities) {
			p[i].Intensity = blob.Intensities[i]
		}
	}
	return p, nil
}

// Put inserts or replaces an entry. Implements Adapter.
func (db *DB) Put(ctx context.Context, partitionID string, entry *Entry) error {
	pattern, err := encodePattern(entry.Pattern)
	if err != nil {
		return fmt.Errorf("encode pattern: %w", err)
	}

	persistent := 0
	if entry.Persistent {
		persistent = 1
	}

	_, err = db.ExecContext(ctx, `
		INSERT OR REPLACE INTO entries (fingerprint, partition_id, payload, resonance, pattern,
			importance, persistent, decay, created_at, last_accessed_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.Fingerprint, partitionID, entry.Payload, entry.Resonance, pattern,
		entry.Importance, persistent, entry.Decay,
		entry.CreatedAt.UnixMilli(), entry.LastAccessedAt.UnixMilli(), entry.AccessCount)
	if err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return nil
}

// Get returns the entry with the given fingerprint from a partition, or
// (nil, nil) if absent. Implements Adapter.
func (db *DB) Get(ctx context.Context, partitionID, fp string) (*Entry, error) {
	row := db.QueryRowContext(ctx, `
		SELECT fingerprint, partition_id, payload, resonance, pattern,
			importance, persistent, decay, created_at, last_accessed_at, access_count
		FROM entries WHERE partition_id = ? AND fingerprint = ?
	`, partitionID, fp)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// Delete removes an entry. Deleting an absent fingerprint is a no-op.
// Implements Adapter.
func (db *DB) Delete(ctx context.Context, partitionID, fp string) error {
	_, err := db.ExecContext(ctx,
		"DELETE FROM entries WHERE partition_id = ? AND fingerprint = ?", partitionID, fp)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// List returns all entries of a partition. Implements Adapter.
func (db *DB) List(ctx context.Context, partitionID string) ([]*Entry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT fingerprint, partition_id, payload, resonance, pattern,
			importance, persistent, decay, created_at, last_accessed_at, access_count
		FROM entries WHERE partition_id = ?
	`, partitionID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountEntries returns the total number of stored entries.
func (db *DB) CountEntries(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count)
	return count, err
}

// PartitionLoad returns the number of entries stored in one partition.
func (db *DB) PartitionLoad(ctx context.Context, partitionID string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entries WHERE partition_id = ?", partitionID).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var pattern []byte
	var persistent int
	var createdAt, lastAccessedAt int64

	err := row.Scan(&e.Fingerprint, &e.PartitionID, &e.Payload, &e.Resonance, &pattern,
		&e.Importance, &persistent, &e.Decay, &createdAt, &lastAccessedAt, &e.AccessCount)
	if err != nil {
		return nil, err
	}

	e.Pattern, err = decodePattern(pattern)
	if err != nil {
		return nil, err
	}
	e.Persistent = persistent != 0
	e.CreatedAt = time.UnixMilli(createdAt)
	e.LastAccessedAt = time.UnixMilli(lastAccessedAt)
	return &e, nil
}
