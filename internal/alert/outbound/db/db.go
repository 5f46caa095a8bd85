package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
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

func (s *DB) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("alert.outbound.db").Start(ctx, name)
}

func (s *DB) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

const getIdentityEmailSQL = `
SELECT email
FROM identities
WHERE id = $1`

func (s *DB) GetIdentityEmail(ctx context.Context, identityID int64) (_ string, err error) {
	ctx, span := s.startSpan(ctx, "GetIdentityEmail")
	defer func() { s.endSpan(span, err) }()

	var email string
	err = s.conn.QueryRow(ctx, getIdentityEmailSQL, identityID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		err = goerror.ErrNotFound
		return "", err
	}
	if err != nil {
		return "", err
	}

	return email, nil
}
