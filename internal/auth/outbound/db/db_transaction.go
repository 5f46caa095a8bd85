package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/zelyonkin/dashkeep/internal/auth/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
)

const insertTOTPFactorSQL = `
INSERT INTO totp_factors (id, identity_id, secret, key_version, verified)
VALUES ($1, $2, $3, $4, $5)`

const insertBackupCodeSQL = `
INSERT INTO backup_codes (id, identity_id, code_hash)
VALUES ($1, $2, $3)`

// NewTOTPFactor promotes an enrollment: the factor row, its backup codes
// and the consumed confirm challenge commit atomically.
func (s *DB) NewTOTPFactor(ctx context.Context, factor entity.TOTPFactor, codes []entity.BackupCode, challengeID int64) (err error) {
	ctx, span := s.startSpan(ctx, "NewTOTPFactor")
	defer func() { s.endSpan(span, err) }()

	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			slog.ErrorContext(ctx, "failed to rollback", "error", rErr)
		}
	}()

	if _, err = tx.Exec(ctx, insertTOTPFactorSQL,
		factor.ID, factor.IdentityID, factor.Secret, factor.KeyVersion, factor.Verified); err != nil {
		return s.mapError(err)
	}

	for _, bc := range codes {
		if _, err = tx.Exec(ctx, insertBackupCodeSQL, bc.ID, bc.IdentityID, bc.CodeHash); err != nil {
			return s.mapError(err)
		}
	}

	if _, err = tx.Exec(ctx, deleteChallengeSQL, challengeID); err != nil {
		return s.mapError(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return s.mapError(err)
	}

	return nil
}

// NewRefreshToken persists a refresh token and consumes the login challenge
// that authorized it in one transaction.
func (s *DB) NewRefreshToken(ctx context.Context, rt entity.RefreshToken, challengeID int64) (err error) {
	ctx, span := s.startSpan(ctx, "NewRefreshToken")
	defer func() { s.endSpan(span, err) }()

	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			slog.ErrorContext(ctx, "failed to rollback", "error", rErr)
		}
	}()

	if _, err = tx.Exec(ctx, createRefreshTokenSQL,
		rt.ID, rt.IdentityID, rt.Token, rt.ExpiresAt); err != nil {
		return s.mapError(err)
	}

	if _, err = tx.Exec(ctx, deleteChallengeSQL, challengeID); err != nil {
		return s.mapError(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return s.mapError(err)
	}

	return nil
}

const deleteTOTPFactorsSQL = `DELETE FROM totp_factors WHERE identity_id = $1`
const deleteBackupCodesSQL = `DELETE FROM backup_codes WHERE identity_id = $1`

// RemoveTOTPEnrollment drops the factor, every backup code and any pending
// enrollment challenge for the identity.
func (s *DB) RemoveTOTPEnrollment(ctx context.Context, identityID int64) (err error) {
	ctx, span := s.startSpan(ctx, "RemoveTOTPEnrollment")
	defer func() { s.endSpan(span, err) }()

	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			slog.ErrorContext(ctx, "failed to rollback", "error", rErr)
		}
	}()

	if _, err = tx.Exec(ctx, deleteTOTPFactorsSQL, identityID); err != nil {
		return s.mapError(err)
	}

	if _, err = tx.Exec(ctx, deleteBackupCodesSQL, identityID); err != nil {
		return s.mapError(err)
	}

	if _, err = tx.Exec(ctx, deletePendingTOTPChallengesSQL,
		identityID, entity.ChallengePurposeMFASetupConfirm); err != nil {
		return s.mapError(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return s.mapError(err)
	}

	return nil
}

const revokeForRotationSQL = `
UPDATE refresh_tokens SET revoked = TRUE, replaced_by_token_id = $3
WHERE id = $1 AND identity_id = $2 AND NOT revoked`

// RotateRefreshToken atomically revokes the old token, links it to its
// replacement and inserts the new one. Returns goerror.ErrNotFound when the
// old token was already rotated by a concurrent request.
func (s *DB) RotateRefreshToken(ctx context.Context, ro entity.RotateRefreshToken) (err error) {
	ctx, span := s.startSpan(ctx, "RotateRefreshToken")
	defer func() { s.endSpan(span, err) }()

	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			slog.ErrorContext(ctx, "failed to rollback", "error", rErr)
		}
	}()

	if _, err = tx.Exec(ctx, createRefreshTokenSQL,
		ro.NewID, ro.IdentityID, ro.NewToken, ro.NewExpiresAt); err != nil {
		return s.mapError(err)
	}

	tag, err := tx.Exec(ctx, revokeForRotationSQL, ro.OldID, ro.IdentityID, ro.NewID)
	if err != nil {
		return s.mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return goerror.ErrNotFound
	}

	if err = tx.Commit(ctx); err != nil {
		return s.mapError(err)
	}

	return nil
}
