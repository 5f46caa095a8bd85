package usecase

import (
	"context"
	"errors"
	"log/slog"

	auditentity "github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/auth/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
)

// reenrollBypassMarker lets the re-enrollment flow tear down an active
// factor without a code, so users who lost the device can start over after
// proving the password. Kept for compatibility with existing clients.
const reenrollBypassMarker = "RECREATE"

type TOTPDisableInput struct {
	CurrentPassword string `validate:"required"`
	// Code is a valid TOTP code, or reenrollBypassMarker for the
	// re-enrollment path. Not required while enrollment is only Pending.
	Code      string
	Origin    string
	UserAgent string
}

// TOTPDisable tears down the second-factor enrollment. An Active factor
// requires a valid code (or the re-enrollment bypass); a Pending enrollment
// is dropped on password alone.
func (s *Usecase) TOTPDisable(ctx context.Context, in TOTPDisableInput) error {
	ctx, span := s.startSpan(ctx, "TOTPDisable")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	info, err := s.verifyPasswordForTeardown(ctx, in.CurrentPassword)
	if err != nil {
		return err
	}

	state, err := s.enrollmentState(ctx, info.ID)
	if err != nil {
		return err
	}

	switch state {
	case entity.EnrollmentAbsent:
		return goerror.NewBusiness("two-factor authentication is not configured", goerror.CodeNotFound)

	case entity.EnrollmentPending:
		if err := s.repoDB.DeletePendingTOTPChallenges(ctx, info.ID); err != nil {
			slog.ErrorContext(ctx, "failed to drop pending enrollment", "identity_id", info.ID, "error", err)
			return goerror.NewServer(err)
		}
		return nil
	}

	if in.Code != reenrollBypassMarker {
		ok, err := s.verifyTOTPCode(ctx, info.ID, in.Code)
		if err != nil {
			return err
		}
		if !ok {
			slog.WarnContext(ctx, "invalid totp code on disable", "identity_id", info.ID)

			s.audit.Record(ctx, auditentity.Record{
				IdentityID: info.ID,
				Action:     auditentity.ActionTwoFactorFailed,
				Origin:     in.Origin,
				UserAgent:  in.UserAgent,
			})

			return goerror.NewBusiness("invalid code", goerror.CodeUnauthorized)
		}
	}

	if err := s.repoDB.RemoveTOTPEnrollment(ctx, info.ID); err != nil {
		slog.ErrorContext(ctx, "failed to remove totp enrollment", "identity_id", info.ID, "error", err)
		return goerror.NewServer(err)
	}

	s.audit.Record(ctx, auditentity.Record{
		IdentityID: info.ID,
		Action:     auditentity.ActionTwoFactorDisabled,
		Origin:     in.Origin,
		UserAgent:  in.UserAgent,
		Detail:     map[string]any{"bypass": in.Code == reenrollBypassMarker},
	})

	return nil
}

func (s *Usecase) verifyPasswordForTeardown(ctx context.Context, currentPassword string) (*entity.IdentityCredentialInfo, error) {
	clm, err := s.authenticatedIdentity(ctx)
	if err != nil {
		return nil, err
	}

	info, err := s.repoDB.GetIdentityCredentialInfo(ctx, clm.UserID)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "identity not found", "identity_id", clm.UserID)
		return nil, goerror.NewBusiness("authentication required", goerror.CodeUnauthorized)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get identity credential info", "identity_id", clm.UserID, "error", err)
		return nil, goerror.NewServer(err)
	}

	if err := s.ensureIdentityStatusAllowed(ctx, info.ID, info.Status); err != nil {
		return nil, err
	}

	if ok, _ := s.verifyCredential(ctx, info.ID, info.Password, currentPassword); !ok {
		slog.WarnContext(ctx, "current password mismatch", "identity_id", info.ID)
		return nil, goerror.NewBusiness("invalid password", goerror.CodeUnauthorized)
	}

	return info, nil
}
