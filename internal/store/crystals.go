package store

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// SaveCrystal records a crystal. Crystals are append-only; an existing
// id is never overwritten. Implements CrystalPersister.
func (db *DB) SaveCrystal(ctx context.Context, c *Crystal) error {
	pattern, err := encodePattern(c.Pattern)
	if err != nil {
		return fmt.Errorf("encode pattern: %w", err)
	}

	var members []byte
	if len(c.MemberFingerprints) > 0 {
		members, err = cbor.Marshal(c.MemberFingerprints)
		if err != nil {
			return fmt.Errorf("encode members: %w", err)
		}
	}

	_, err = db.ExecContext(ctx, `
		INSERT OR IGNORE INTO crystals (id, source_fingerprint, member_fingerprints,
			pattern, stability_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.SourceFingerprint, members, pattern, c.StabilityScore, c.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save crystal: %w", err)
	}
	return nil
}

// ListCrystals returns all crystals, newest first. Implements
// CrystalPersister.
func (db *DB) ListCrystals(ctx context.Context) ([]*Crystal, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, source_fingerprint, member_fingerprints, pattern, stability_score, created_at
		FROM crystals ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list crystals: %w", err)
	}
	defer rows.Close()

	var crystals []*Crystal
	for rows.Next() {
		var c Crystal
		var members, pattern []byte
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.SourceFingerprint, &members, &pattern,
			&c.StabilityScore, &createdAt); err != nil {
			return nil, fmt.Errorf("scan crystal: %w", err)
		}
		if len(members) > 0 {
			if err := cbor.Unmarshal(members, &c.MemberFingerprints); err != nil {
				return nil, fmt.Errorf("decode members: %w", err)
			}
		}
		c.Pattern, err = decodePattern(pattern)
		if err != nil {
			return nil, err
		}
		c.CreatedAt = time.UnixMilli(createdAt)
		crystals = append(crystals, &c)
	}
	return crystals, rows.Err()
}

// CountCrystals returns the total number of crystals.
func (db *DB) CountCrystals(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM crystals").Scan(&count)
	return count, err
}
