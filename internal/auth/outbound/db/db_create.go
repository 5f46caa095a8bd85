package db

import (
	"context"

	"github.com/zelyonkin/dashkeep/internal/auth/entity"
)

const createChallengeSQL = `
INSERT INTO auth_challenges (id, identity_id, token, purpose, expires_at, metadata)
VALUES ($1, $2, $3, $4, $5, $6)`

func (s *DB) CreateChallenge(ctx context.Context, in entity.Challenge) (err error) {
	ctx, span := s.startSpan(ctx, "CreateChallenge")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, createChallengeSQL,
		in.ID, in.IdentityID, in.Token, in.Purpose, in.ExpiresAt, in.Metadata)
	err = s.mapError(err)
	return err
}

const createRefreshTokenSQL = `
INSERT INTO refresh_tokens (id, identity_id, token, expires_at)
VALUES ($1, $2, $3, $4)`

func (s *DB) CreateRefreshToken(ctx context.Context, in entity.RefreshToken) (err error) {
	ctx, span := s.startSpan(ctx, "CreateRefreshToken")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, createRefreshTokenSQL,
		in.ID, in.IdentityID, in.Token, in.ExpiresAt)
	err = s.mapError(err)
	return err
}
