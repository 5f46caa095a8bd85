package db

import (
	"context"

	"github.com/zelyonkin/dashkeep/internal/auth/entity"
)

const getIdentityLoginInfoSQL = `
SELECT i.id, i.email, i.display_name, i.role, i.status, c.password,
       EXISTS (
           SELECT 1 FROM totp_factors f
           WHERE f.identity_id = i.id AND f.verified
       ) AS has_totp
FROM identities i
JOIN identity_credentials c ON c.identity_id = i.id
WHERE lower(i.email) = lower($1)`

func (s *DB) GetIdentityLoginInfo(ctx context.Context, email string) (_ *entity.IdentityLoginInfo, err error) {
	ctx, span := s.startSpan(ctx, "GetIdentityLoginInfo")
	defer func() { s.endSpan(span, err) }()

	var info entity.IdentityLoginInfo
	err = s.conn.QueryRow(ctx, getIdentityLoginInfoSQL, email).Scan(
		&info.ID, &info.Email, &info.DisplayName, &info.Role, &info.Status,
		&info.Password, &info.HasTOTP)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &info, nil
}

const getIdentityCredentialInfoSQL = `
SELECT i.id, i.email, i.role, i.status, c.password
FROM identities i
JOIN identity_credentials c ON c.identity_id = i.id
WHERE i.id = $1`

func (s *DB) GetIdentityCredentialInfo(ctx context.Context, id int64) (_ *entity.IdentityCredentialInfo, err error) {
	ctx, span := s.startSpan(ctx, "GetIdentityCredentialInfo")
	defer func() { s.endSpan(span, err) }()

	var info entity.IdentityCredentialInfo
	err = s.conn.QueryRow(ctx, getIdentityCredentialInfoSQL, id).Scan(
		&info.ID, &info.Email, &info.Role, &info.Status, &info.Password)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &info, nil
}

const getChallengeIdentitySQL = `
SELECT ch.id, ch.purpose, ch.expires_at, ch.metadata,
       i.id, i.email, i.role, i.status
FROM auth_challenges ch
JOIN identities i ON i.id = ch.identity_id
WHERE ch.token = $1 AND ch.purpose = $2 AND ch.expires_at > now()`

func (s *DB) GetChallengeIdentityByTokenPurpose(ctx context.Context, token string, p entity.ChallengePurpose) (_ *entity.ChallengeIdentity, err error) {
	ctx, span := s.startSpan(ctx, "GetChallengeIdentityByTokenPurpose")
	defer func() { s.endSpan(span, err) }()

	var cu entity.ChallengeIdentity
	err = s.conn.QueryRow(ctx, getChallengeIdentitySQL, token, p).Scan(
		&cu.ChallengeID, &cu.ChallengePurpose, &cu.ChallengeExpires, &cu.ChallengeMetadata,
		&cu.IdentityID, &cu.IdentityEmail, &cu.IdentityRole, &cu.IdentityStatus)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &cu, nil
}

const getPendingTOTPChallengeSQL = `
SELECT ch.id, ch.purpose, ch.expires_at, ch.metadata,
       i.id, i.email, i.role, i.status
FROM auth_challenges ch
JOIN identities i ON i.id = ch.identity_id
WHERE ch.identity_id = $1 AND ch.purpose = $2 AND ch.expires_at > now()
ORDER BY ch.expires_at DESC
LIMIT 1`

func (s *DB) GetPendingTOTPChallenge(ctx context.Context, identityID int64) (_ *entity.ChallengeIdentity, err error) {
	ctx, span := s.startSpan(ctx, "GetPendingTOTPChallenge")
	defer func() { s.endSpan(span, err) }()

	var cu entity.ChallengeIdentity
	err = s.conn.QueryRow(ctx, getPendingTOTPChallengeSQL, identityID, entity.ChallengePurposeMFASetupConfirm).Scan(
		&cu.ChallengeID, &cu.ChallengePurpose, &cu.ChallengeExpires, &cu.ChallengeMetadata,
		&cu.IdentityID, &cu.IdentityEmail, &cu.IdentityRole, &cu.IdentityStatus)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &cu, nil
}

const getTOTPFactorSQL = `
SELECT id, identity_id, secret, key_version, verified, last_used_at
FROM totp_factors
WHERE identity_id = $1 AND verified`

func (s *DB) GetTOTPFactor(ctx context.Context, identityID int64) (_ *entity.TOTPFactor, err error) {
	ctx, span := s.startSpan(ctx, "GetTOTPFactor")
	defer func() { s.endSpan(span, err) }()

	var f entity.TOTPFactor
	err = s.conn.QueryRow(ctx, getTOTPFactorSQL, identityID).Scan(
		&f.ID, &f.IdentityID, &f.Secret, &f.KeyVersion, &f.Verified, &f.LastUsedAt)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &f, nil
}

const getBackupCodesSQL = `
SELECT id, identity_id, code_hash
FROM backup_codes
WHERE identity_id = $1 AND NOT used
ORDER BY id`

func (s *DB) GetBackupCodes(ctx context.Context, identityID int64) (_ []entity.BackupCode, err error) {
	ctx, span := s.startSpan(ctx, "GetBackupCodes")
	defer func() { s.endSpan(span, err) }()

	rows, err := s.conn.Query(ctx, getBackupCodesSQL, identityID)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	var codes []entity.BackupCode
	for rows.Next() {
		var bc entity.BackupCode
		if err = rows.Scan(&bc.ID, &bc.IdentityID, &bc.CodeHash); err != nil {
			return nil, s.mapError(err)
		}
		codes = append(codes, bc)
	}
	if err = rows.Err(); err != nil {
		return nil, s.mapError(err)
	}

	return codes, nil
}

const countUnusedBackupCodesSQL = `
SELECT COUNT(*) FROM backup_codes WHERE identity_id = $1 AND NOT used`

func (s *DB) CountUnusedBackupCodes(ctx context.Context, identityID int64) (_ int64, err error) {
	ctx, span := s.startSpan(ctx, "CountUnusedBackupCodes")
	defer func() { s.endSpan(span, err) }()

	var n int64
	if err = s.conn.QueryRow(ctx, countUnusedBackupCodesSQL, identityID).Scan(&n); err != nil {
		return 0, s.mapError(err)
	}

	return n, nil
}

const getIdentityRefreshTokenSQL = `
SELECT i.id, i.email, i.role, i.status,
       rt.id, rt.token, rt.revoked, rt.replaced_by_token_id, rt.expires_at
FROM refresh_tokens rt
JOIN identities i ON i.id = rt.identity_id
WHERE rt.token = $1`

func (s *DB) GetIdentityRefreshToken(ctx context.Context, token string) (_ *entity.IdentityRefreshToken, err error) {
	ctx, span := s.startSpan(ctx, "GetIdentityRefreshToken")
	defer func() { s.endSpan(span, err) }()

	var rt entity.IdentityRefreshToken
	err = s.conn.QueryRow(ctx, getIdentityRefreshTokenSQL, token).Scan(
		&rt.IdentityID, &rt.IdentityEmail, &rt.IdentityRole, &rt.IdentityStatus,
		&rt.RefreshID, &rt.RefreshToken, &rt.RefreshRevoked, &rt.RefreshReplacedByTokenID,
		&rt.RefreshExpiresAt)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &rt, nil
}
