package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	auditentity "github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/auth/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
	"github.com/zelyonkin/dashkeep/internal/pkg/mfa"
)

type Login2FAInput struct {
	ChallengeToken string `validate:"required"`
	Code           string `validate:"required,min=6,max=16"`
	Origin         string
	UserAgent      string
}

type Login2FAOutput struct {
	State        entity.LoginState
	AccessToken  string
	RefreshToken string
}

// Login2FA completes an AWAITING_SECOND_FACTOR login. The code is checked
// against the TOTP factor first; on mismatch it falls back to the unused
// backup codes, each of which is consumed on use.
func (s *Usecase) Login2FA(ctx context.Context, in Login2FAInput) (*Login2FAOutput, error) {
	ctx, span := s.startSpan(ctx, "Login2FA")
	defer span.End()

	in.Code = strings.TrimSpace(in.Code)

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	if err := s.ensureOriginAllowed(ctx, in.Origin); err != nil {
		return nil, err
	}

	cu, err := s.loadLoginChallenge(ctx, in.ChallengeToken)
	if err != nil {
		return nil, err
	}

	if err := s.ensureIdentityStatusAllowed(ctx, cu.IdentityID, cu.IdentityStatus); err != nil {
		return nil, err
	}

	method, err := s.verifySecondFactor(ctx, cu.IdentityID, in.Code)
	if err != nil {
		return nil, s.failSecondFactor(ctx, cu.IdentityID, in, err)
	}

	s.guard.Reset(in.Origin)

	acToken, refToken, err := s.issueSessionTokens(ctx, cu.IdentityID, cu.IdentityEmail, cu.IdentityRole, cu.ChallengeID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, auditentity.Record{
		IdentityID: cu.IdentityID,
		Action:     auditentity.ActionLogin,
		Origin:     in.Origin,
		UserAgent:  in.UserAgent,
		Detail:     loginDetail(true, method, false),
	})

	return &Login2FAOutput{
		State:        entity.LoginStateAuthenticated,
		AccessToken:  acToken,
		RefreshToken: refToken,
	}, nil
}

// errSecondFactorMismatch marks a clean code mismatch, as opposed to an
// infrastructure failure.
var errSecondFactorMismatch = errors.New("second factor code mismatch")

func (s *Usecase) loadLoginChallenge(ctx context.Context, token string) (*entity.ChallengeIdentity, error) {
	cTokenHash, err := s.hmac.Hash(token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash challenge token", "error", err)
		return nil, goerror.NewServer(err)
	}

	cu, err := s.repoDB.GetChallengeIdentityByTokenPurpose(ctx, string(cTokenHash), entity.ChallengePurposeMFALogin)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "login challenge not found")
		return nil, goerror.NewBusiness("invalid challenge session or code", goerror.CodeUnauthorized)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get challenge identity", "error", err)
		return nil, goerror.NewServer(err)
	}

	return cu, nil
}

// verifySecondFactor returns the method that matched ("totp" or
// "backup_code"), errSecondFactorMismatch on a clean mismatch, or a wrapped
// server error.
func (s *Usecase) verifySecondFactor(ctx context.Context, identityID int64, code string) (string, error) {
	if isTOTPCode(code) {
		ok, err := s.verifyTOTPCode(ctx, identityID, code)
		if err != nil {
			return "", err
		}
		if ok {
			return "totp", nil
		}
	}

	ok, err := s.consumeBackupCode(ctx, identityID, code)
	if err != nil {
		return "", err
	}
	if ok {
		return "backup_code", nil
	}

	return "", errSecondFactorMismatch
}

func (s *Usecase) failSecondFactor(ctx context.Context, identityID int64, in Login2FAInput, cause error) error {
	if !errors.Is(cause, errSecondFactorMismatch) {
		return cause
	}

	s.guard.RecordFailure(in.Origin)

	s.audit.Record(ctx, auditentity.Record{
		IdentityID: identityID,
		Action:     auditentity.ActionTwoFactorFailed,
		Origin:     in.Origin,
		UserAgent:  in.UserAgent,
	})

	slog.WarnContext(ctx, "second factor code mismatch", "identity_id", identityID)
	return goerror.NewBusiness("invalid challenge session or code", goerror.CodeUnauthorized)
}

func isTOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}

	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}

	return true
}

func (s *Usecase) verifyTOTPCode(ctx context.Context, identityID int64, code string) (bool, error) {
	factor, err := s.repoDB.GetTOTPFactor(ctx, identityID)
	if errors.Is(err, goerror.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get totp factor", "identity_id", identityID, "error", err)
		return false, goerror.NewServer(err)
	}

	secretBytes, err := s.mfaEncryptor.Decrypt(factor.Secret, mfa.Scope{
		UserID:  identityID,
		Purpose: mfa.PurposeOTPSeed,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to decrypt totp secret", "identity_id", identityID, "mfa_id", factor.ID, "error", err)
		return false, goerror.NewServer(err)
	}

	if !s.totp.Validate(code, string(secretBytes), s.clock.Now()) {
		return false, nil
	}

	if err := s.repoDB.UpdateTOTPLastUsedAt(ctx, factor.ID, identityID); err != nil {
		slog.ErrorContext(ctx, "failed to update totp last_used_at", "identity_id", identityID, "mfa_id", factor.ID, "error", err)
		return false, goerror.NewServer(err)
	}

	return true, nil
}

// consumeBackupCode matches code against the unused backup codes and marks
// the match used in a single conditional update, so a code can never be
// spent twice.
func (s *Usecase) consumeBackupCode(ctx context.Context, identityID int64, code string) (bool, error) {
	codes, err := s.repoDB.GetBackupCodes(ctx, identityID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get backup codes", "identity_id", identityID, "error", err)
		return false, goerror.NewServer(err)
	}

	var match *entity.BackupCode
	for i := range codes {
		if s.argon2id.Verify(codes[i].CodeHash, code) {
			match = &codes[i]
			break
		}
	}

	if match == nil {
		return false, nil
	}

	consumed, err := s.repoDB.ConsumeBackupCode(ctx, match.ID, identityID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to consume backup code", "identity_id", identityID, "error", err)
		return false, goerror.NewServer(err)
	}
	if !consumed {
		slog.WarnContext(ctx, "backup code already used", "identity_id", identityID)
		return false, nil
	}

	return true, nil
}
