package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
	"github.com/zelyonkin/dashkeep/internal/pkg/instrument"
	"github.com/zelyonkin/dashkeep/internal/vault/entity"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type DB struct {
	conn *pgxpool.Pool
	ins  instrument.Instrumentation
}

func NewDB(conn *pgxpool.Pool, ins instrument.Instrumentation) *DB {
	return &DB{conn: conn, ins: ins}
}

func (s *DB) mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return goerror.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return goerror.ErrConflict
	}

	return err
}

func (s *DB) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("vault.outbound.db").Start(ctx, name)
}

func (s *DB) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) && !errors.Is(err, goerror.ErrConflict) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

const createItemSQL = `
INSERT INTO vault_items
	(id, identity_id, kind, name, payload, iv, tag, storage_key, content_type, size, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

func (s *DB) CreateItem(ctx context.Context, item entity.Item) (err error) {
	ctx, span := s.startSpan(ctx, "CreateItem")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, createItemSQL,
		item.ID, item.IdentityID, item.Kind, item.Name,
		item.Payload, item.IV, item.Tag, item.StorageKey,
		item.ContentType, item.Size, item.CreatedAt, item.UpdatedAt)
	err = s.mapError(err)
	return err
}

const getItemSQL = `
SELECT id, identity_id, kind, name, payload, iv, tag, storage_key, content_type, size, created_at, updated_at
FROM vault_items
WHERE id = $1 AND identity_id = $2`

func (s *DB) GetItem(ctx context.Context, id, identityID int64) (_ *entity.Item, err error) {
	ctx, span := s.startSpan(ctx, "GetItem")
	defer func() { s.endSpan(span, err) }()

	var item entity.Item
	err = s.conn.QueryRow(ctx, getItemSQL, id, identityID).Scan(
		&item.ID, &item.IdentityID, &item.Kind, &item.Name,
		&item.Payload, &item.IV, &item.Tag, &item.StorageKey,
		&item.ContentType, &item.Size, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}

	return &item, nil
}

const getItemListSQL = `
SELECT id, kind, name, content_type, size, updated_at,
       COUNT(*) OVER () AS total
FROM vault_items
WHERE identity_id = $1
ORDER BY updated_at DESC, id DESC
LIMIT $2 OFFSET $3`

func (s *DB) GetItemList(ctx context.Context, identityID int64, page, size int32) (_ []entity.ItemInfo, _ int64, err error) {
	ctx, span := s.startSpan(ctx, "GetItemList")
	defer func() { s.endSpan(span, err) }()

	offset := (page - 1) * size
	rows, err := s.conn.Query(ctx, getItemListSQL, identityID, size, offset)
	if err != nil {
		return nil, 0, s.mapError(err)
	}
	defer rows.Close()

	var (
		items []entity.ItemInfo
		total int64
	)
	for rows.Next() {
		var item entity.ItemInfo
		if err = rows.Scan(&item.ID, &item.Kind, &item.Name,
			&item.ContentType, &item.Size, &item.UpdatedAt, &total); err != nil {
			return nil, 0, s.mapError(err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, s.mapError(err)
	}

	return items, total, nil
}

const replaceItemEnvelopeSQL = `
UPDATE vault_items
SET name = $3, payload = $4, iv = $5, tag = $6, size = $7, updated_at = $8
WHERE id = $1 AND identity_id = $2`

func (s *DB) ReplaceItemEnvelope(ctx context.Context, item entity.Item) (err error) {
	ctx, span := s.startSpan(ctx, "ReplaceItemEnvelope")
	defer func() { s.endSpan(span, err) }()

	tag, err := s.conn.Exec(ctx, replaceItemEnvelopeSQL,
		item.ID, item.IdentityID, item.Name,
		item.Payload, item.IV, item.Tag, item.Size, item.UpdatedAt)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	if tag.RowsAffected() == 0 {
		err = goerror.ErrNotFound
		return err
	}

	return nil
}

const deleteItemSQL = `
DELETE FROM vault_items
WHERE id = $1 AND identity_id = $2`

func (s *DB) DeleteItem(ctx context.Context, id, identityID int64) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteItem")
	defer func() { s.endSpan(span, err) }()

	tag, err := s.conn.Exec(ctx, deleteItemSQL, id, identityID)
	if err != nil {
		err = s.mapError(err)
		return err
	}
	if tag.RowsAffected() == 0 {
		err = goerror.ErrNotFound
		return err
	}

	return nil
}
