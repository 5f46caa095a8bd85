package usecase

import (
	"context"
	"log/slog"

	auditentity "github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/auth/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
)

type TOTPDeleteInput struct {
	CurrentPassword string `validate:"required"`
	Origin          string
	UserAgent       string
}

// TOTPDelete irreversibly removes the whole enrollment, backup codes
// included, on password alone. Always audited.
func (s *Usecase) TOTPDelete(ctx context.Context, in TOTPDeleteInput) error {
	ctx, span := s.startSpan(ctx, "TOTPDelete")
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
	if state == entity.EnrollmentAbsent {
		return goerror.NewBusiness("two-factor authentication is not configured", goerror.CodeNotFound)
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
		Detail:     map[string]any{"mode": "delete"},
	})

	return nil
}
