package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"

	auditentity "github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/auth/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
	"github.com/zelyonkin/dashkeep/internal/pkg/mfa"
)

type TOTPConfirmInput struct {
	ChallengeToken string `validate:"required"`
	Code           string `validate:"required,len=6,numeric"`
	Origin         string
	UserAgent      string
}

type TOTPConfirmOutput struct {
	// RecoveryCodes are returned exactly once; only their hashes persist.
	RecoveryCodes []string
}

// TOTPConfirm promotes a Pending enrollment to Active: the submitted code
// proves the authenticator holds the secret, the factor row is created and
// a fresh set of single-use backup codes is issued.
func (s *Usecase) TOTPConfirm(ctx context.Context, in TOTPConfirmInput) (*TOTPConfirmOutput, error) {
	ctx, span := s.startSpan(ctx, "TOTPConfirm")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	clm, err := s.authenticatedIdentity(ctx)
	if err != nil {
		return nil, err
	}

	cTokenHash, err := s.hmac.Hash(in.ChallengeToken)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash challenge token", "error", err)
		return nil, goerror.NewServer(err)
	}

	cu, err := s.repoDB.GetChallengeIdentityByTokenPurpose(ctx, string(cTokenHash), entity.ChallengePurposeMFASetupConfirm)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "enrollment challenge not found", "identity_id", clm.UserID)
		return nil, goerror.NewBusiness("invalid challenge session", goerror.CodeUnauthorized)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get challenge identity", "error", err)
		return nil, goerror.NewServer(err)
	}

	if cu.IdentityID != clm.UserID {
		slog.WarnContext(ctx, "challenge identity mismatch", "identity_id", clm.UserID, "challenge_identity_id", cu.IdentityID)
		return nil, goerror.NewBusiness("invalid challenge session", goerror.CodeUnauthorized)
	}

	if err := s.ensureIdentityStatusAllowed(ctx, cu.IdentityID, cu.IdentityStatus); err != nil {
		return nil, err
	}

	state, err := s.enrollmentState(ctx, cu.IdentityID)
	if err != nil {
		return nil, err
	}
	if state == entity.EnrollmentActive {
		return nil, goerror.NewBusiness("two-factor authentication is already configured", goerror.CodeConflict)
	}

	secretCiphertext, keyVersion, err := s.decodePendingSecret(ctx, cu)
	if err != nil {
		return nil, err
	}

	secretBytes, err := s.mfaEncryptor.Decrypt(secretCiphertext, mfa.Scope{
		UserID:  cu.IdentityID,
		Purpose: mfa.PurposeOTPSeed,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to decrypt totp secret", "identity_id", cu.IdentityID, "challenge_id", cu.ChallengeID, "error", err)
		return nil, goerror.NewServer(err)
	}

	if !s.totp.Validate(in.Code, string(secretBytes), s.clock.Now()) {
		slog.WarnContext(ctx, "invalid totp code", "identity_id", cu.IdentityID, "challenge_id", cu.ChallengeID)
		return nil, goerror.NewBusiness("invalid code session", goerror.CodeUnauthorized)
	}

	recoveryCodes, hashedCodes, err := s.generateBackupCodes(ctx, cu.IdentityID)
	if err != nil {
		return nil, err
	}

	factor := entity.TOTPFactor{
		ID:         s.uid.Generate(),
		IdentityID: cu.IdentityID,
		Secret:     secretCiphertext,
		KeyVersion: keyVersion,
		Verified:   true,
	}

	if err := s.repoDB.NewTOTPFactor(ctx, factor, hashedCodes, cu.ChallengeID); err != nil {
		slog.ErrorContext(ctx, "failed to repo new totp factor", "identity_id", cu.IdentityID, "challenge_id", cu.ChallengeID, "error", err)
		return nil, goerror.NewServer(err)
	}

	s.audit.Record(ctx, auditentity.Record{
		IdentityID: cu.IdentityID,
		Action:     auditentity.ActionTwoFactorEnabled,
		Origin:     in.Origin,
		UserAgent:  in.UserAgent,
		Detail:     map[string]any{"backup_codes": len(recoveryCodes)},
	})

	return &TOTPConfirmOutput{RecoveryCodes: recoveryCodes}, nil
}

func (s *Usecase) decodePendingSecret(ctx context.Context, cu *entity.ChallengeIdentity) ([]byte, int16, error) {
	secretEncoded := cu.ChallengeMetadata.GetString("secret")
	if secretEncoded == "" {
		slog.WarnContext(ctx, "challenge missing totp secret", "identity_id", cu.IdentityID, "challenge_id", cu.ChallengeID)
		return nil, 0, goerror.NewBusiness("invalid challenge session", goerror.CodeUnauthorized)
	}

	secretCiphertext, err := base64.StdEncoding.DecodeString(secretEncoded)
	if err != nil {
		slog.WarnContext(ctx, "challenge totp secret decode failed", "identity_id", cu.IdentityID, "challenge_id", cu.ChallengeID, "error", err)
		return nil, 0, goerror.NewBusiness("invalid challenge session", goerror.CodeUnauthorized)
	}

	keyVersion := cu.ChallengeMetadata.GetInt("key_version")
	if keyVersion == 0 {
		keyVersion = 1
	}

	return secretCiphertext, int16(keyVersion), nil
}

func (s *Usecase) generateBackupCodes(ctx context.Context, identityID int64) ([]string, []entity.BackupCode, error) {
	recoveryCodes, err := s.mfaRecoveryCode.Generate()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate backup codes", "identity_id", identityID, "error", err)
		return nil, nil, goerror.NewServer(err)
	}

	hashed := make([]entity.BackupCode, 0, len(recoveryCodes))
	for _, code := range recoveryCodes {
		h, err := s.argon2id.Hash(code)
		if err != nil {
			slog.ErrorContext(ctx, "failed to hash backup code", "identity_id", identityID, "error", err)
			return nil, nil, goerror.NewServer(err)
		}

		hashed = append(hashed, entity.BackupCode{
			ID:         s.uid.Generate(),
			IdentityID: identityID,
			CodeHash:   string(h),
		})
	}

	return recoveryCodes, hashed, nil
}
