package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
	"github.com/zelyonkin/dashkeep/internal/pkg/instrument"
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
	return s.ins.Tracer("audit.outbound.db").Start(ctx, name)
}

func (s *DB) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) && !errors.Is(err, goerror.ErrConflict) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

const createEventSQL = `
INSERT INTO audit_events (id, identity_id, action, origin, user_agent, detail, occurred_at)
VALUES ($1, NULLIF($2, 0::BIGINT), $3, $4, $5, $6, $7)`

func (s *DB) CreateEvent(ctx context.Context, e entity.Event) (err error) {
	ctx, span := s.startSpan(ctx, "CreateEvent")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, createEventSQL,
		e.ID, e.IdentityID, e.Action.String(), e.Origin, e.UserAgent, e.Detail, e.OccurredAt)
	err = s.mapError(err)
	return err
}

const getEventListSQL = `
SELECT id, COALESCE(identity_id, 0), action, origin, user_agent, detail, occurred_at,
       COUNT(*) OVER () AS total
FROM audit_events
WHERE ($1::BIGINT = 0 OR identity_id = $1)
  AND ($2::TEXT = '' OR action = $2)
  AND ($3::TIMESTAMPTZ IS NULL OR occurred_at >= $3)
  AND ($4::TIMESTAMPTZ IS NULL OR occurred_at <= $4)
ORDER BY occurred_at DESC, id DESC
LIMIT $5 OFFSET $6`

func (s *DB) GetEventList(ctx context.Context, filter entity.QueryFilter) (_ []entity.Event, _ int64, err error) {
	ctx, span := s.startSpan(ctx, "GetEventList")
	defer func() { s.endSpan(span, err) }()

	offset := (filter.Page - 1) * filter.Size
	rows, err := s.conn.Query(ctx, getEventListSQL,
		filter.IdentityID, filter.Action.String(),
		nullableTime(filter.From), nullableTime(filter.To),
		filter.Size, offset)
	if err != nil {
		return nil, 0, s.mapError(err)
	}
	defer rows.Close()

	var (
		events []entity.Event
		total  int64
	)
	for rows.Next() {
		var e entity.Event
		if err = rows.Scan(&e.ID, &e.IdentityID, &e.Action, &e.Origin,
			&e.UserAgent, &e.Detail, &e.OccurredAt, &total); err != nil {
			return nil, 0, s.mapError(err)
		}
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, s.mapError(err)
	}

	return events, total, nil
}

const getEventExportSQL = `
SELECT id, COALESCE(identity_id, 0), action, origin, user_agent, detail, occurred_at
FROM audit_events
WHERE ($1::BIGINT = 0 OR identity_id = $1)
  AND ($2::TIMESTAMPTZ IS NULL OR occurred_at >= $2)
  AND ($3::TIMESTAMPTZ IS NULL OR occurred_at <= $3)
ORDER BY occurred_at DESC, id DESC
LIMIT $4`

func (s *DB) GetEventExport(ctx context.Context, filter entity.ExportFilter, limit int32) (_ []entity.Event, err error) {
	ctx, span := s.startSpan(ctx, "GetEventExport")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.conn.Query(ctx, getEventExportSQL,
		filter.IdentityID, nullableTime(filter.From), nullableTime(filter.To), limit)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	var events []entity.Event
	for rows.Next() {
		var e entity.Event
		if err = rows.Scan(&e.ID, &e.IdentityID, &e.Action, &e.Origin,
			&e.UserAgent, &e.Detail, &e.OccurredAt); err != nil {
			return nil, s.mapError(err)
		}
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, s.mapError(err)
	}

	return events, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
