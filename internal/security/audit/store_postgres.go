// Copyright (c) 2026 Pressdeck. All rights reserved.

package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pressdeck/pressdeck/pkg/pagination"
)

// PostgresStore implements [Store] on the security.auditlog table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of the audit [Store].
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

/*
Insert appends one entry to security.auditlog.

Parameters:
  - ctx: context.Context
  - entry: *Entry

Returns:
  - error: Persistence failures
*/
func (store *PostgresStore) Insert(ctx context.Context, entry *Entry) error {
	const query = `
		INSERT INTO security.auditlog (
			id, actorid, action, category, targettype, targetid, ipaddress, useragent, detail, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	detail, err := marshalDetail(entry.Detail)
	if err != nil {
		return fmt.Errorf("audit_store_marshal_detail_failed: %w", err)
	}

	_, err = store.pool.Exec(ctx, query,
		entry.ID,
		entry.ActorID,
		entry.Action,
		entry.Category,
		entry.TargetType,
		entry.TargetID,
		entry.IPAddress,
		entry.UserAgent,
		detail,
		entry.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("audit_store_insert_failed: %w", err)
	}

	return nil
}

/*
List returns a newest-first page of entries with the total count.

Description: When category is empty, all categories are included.

Parameters:
  - ctx: context.Context
  - category: Category filter ("" for all)
  - params: pagination.Params

Returns:
  - []*Entry: Hydrated entries
  - int: Total matching rows
  - error: Retrieval failures
*/
func (store *PostgresStore) List(ctx context.Context, category Category, params pagination.Params) ([]*Entry, int, error) {
	const countQuery = `
		SELECT COUNT(*) FROM security.auditlog
		WHERE ($1 = '' OR category = $1)`

	var total int
	if err := store.pool.QueryRow(ctx, countQuery, string(category)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("audit_store_count_failed: %w", err)
	}

	const listQuery = `
		SELECT id, actorid, action, category, targettype, targetid, ipaddress, useragent, detail, createdat
		FROM security.auditlog
		WHERE ($1 = '' OR category = $1)
		ORDER BY createdat DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := store.pool.Query(ctx, listQuery, string(category), params.Limit, params.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("audit_store_list_failed: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0, params.Limit)
	for rows.Next() {
		entry := &Entry{}
		var detail []byte

		err := rows.Scan(
			&entry.ID,
			&entry.ActorID,
			&entry.Action,
			&entry.Category,
			&entry.TargetType,
			&entry.TargetID,
			&entry.IPAddress,
			&entry.UserAgent,
			&detail,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("audit_store_scan_failed: %w", err)
		}

		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &entry.Detail); err != nil {
				return nil, 0, fmt.Errorf("audit_store_unmarshal_detail_failed: %w", err)
			}
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("audit_store_rows_failed: %w", err)
	}

	return entries, total, nil
}

// marshalDetail serializes the free-form detail map for the JSONB column.
func marshalDetail(detail map[string]any) ([]byte, error) {
	if len(detail) == 0 {
		return nil, nil
	}
	return json.Marshal(detail)
}
