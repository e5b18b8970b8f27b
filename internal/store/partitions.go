package store

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/quartzmem/quartz/internal/partition"
)

// SavePartition records a partition. Partitions are immutable once
// created, so an existing id is left untouched.
func (db *DB) SavePartition(ctx context.Context, rec partition.Record) error {
	position, err := cbor.Marshal(rec.Position)
	if err != nil {
		return fmt.Errorf("encode position: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT OR IGNORE INTO partitions (id, content_type, depth_tag, position, capacity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.ContentType, rec.DepthTag, position, rec.Capacity, rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save partition: %w", err)
	}
	return nil
}

// ListPartitions returns all partitions in creation order, which is the
// order Registry.Adopt requires. rowid preserves insertion order even
// when siblings share a created_at millisecond.
func (db *DB) ListPartitions(ctx context.Context) ([]partition.Record, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, content_type, depth_tag, position, capacity, created_at
		FROM partitions ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var recs []partition.Record
	for rows.Next() {
		var rec partition.Record
		var position []byte
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.ContentType, &rec.DepthTag,
			&position, &rec.Capacity, &createdAt); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		if err := cbor.Unmarshal(position, &rec.Position); err != nil {
			return nil, fmt.Errorf("decode position: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
