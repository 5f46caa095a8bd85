package db

import (
	"context"

	"github.com/zelyonkin/dashkeep/internal/auth/entity"
)

const updateIdentityCredentialSQL = `
UPDATE identity_credentials SET password = $2, updated_at = now()
WHERE identity_id = $1`

func (s *DB) UpdateIdentityCredential(ctx context.Context, identityID int64, hash string) (err error) {
	ctx, span := s.startSpan(ctx, "UpdateIdentityCredential")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, updateIdentityCredentialSQL, identityID, hash)
	err = s.mapError(err)
	return err
}

const updateTOTPLastUsedAtSQL = `
UPDATE totp_factors SET last_used_at = now()
WHERE id = $1 AND identity_id = $2`

func (s *DB) UpdateTOTPLastUsedAt(ctx context.Context, factorID, identityID int64) (err error) {
	ctx, span := s.startSpan(ctx, "UpdateTOTPLastUsedAt")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, updateTOTPLastUsedAtSQL, factorID, identityID)
	err = s.mapError(err)
	return err
}

// consumeBackupCodeSQL is conditional on used = false so a code can only be
// spent by one caller even under concurrent attempts.
const consumeBackupCodeSQL = `
UPDATE backup_codes SET used = TRUE, used_at = now()
WHERE id = $1 AND identity_id = $2 AND NOT used`

func (s *DB) ConsumeBackupCode(ctx context.Context, codeID, identityID int64) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "ConsumeBackupCode")
	defer func() { s.endSpan(span, err) }()

	tag, err := s.conn.Exec(ctx, consumeBackupCodeSQL, codeID, identityID)
	if err != nil {
		return false, s.mapError(err)
	}

	return tag.RowsAffected() == 1, nil
}

const revokeRefreshTokenSQL = `
UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`

func (s *DB) RevokeRefreshToken(ctx context.Context, token string) (err error) {
	ctx, span := s.startSpan(ctx, "RevokeRefreshToken")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, revokeRefreshTokenSQL, token)
	err = s.mapError(err)
	return err
}

const revokeAllRefreshTokenSQL = `
UPDATE refresh_tokens SET revoked = TRUE WHERE identity_id = $1 AND NOT revoked`

func (s *DB) RevokeAllRefreshToken(ctx context.Context, identityID int64) (err error) {
	ctx, span := s.startSpan(ctx, "RevokeAllRefreshToken")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, revokeAllRefreshTokenSQL, identityID)
	err = s.mapError(err)
	return err
}

const deletePendingTOTPChallengesSQL = `
DELETE FROM auth_challenges WHERE identity_id = $1 AND purpose = $2`

func (s *DB) DeletePendingTOTPChallenges(ctx context.Context, identityID int64) (err error) {
	ctx, span := s.startSpan(ctx, "DeletePendingTOTPChallenges")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, deletePendingTOTPChallengesSQL,
		identityID, entity.ChallengePurposeMFASetupConfirm)
	err = s.mapError(err)
	return err
}
