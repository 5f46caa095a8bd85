package usecase

import (
	"context"
	"errors"
	"log/slog"

	auditentity "github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
)

type PasswordChangeInput struct {
	CurrentPassword string `validate:"required"`
	NewPassword     string `validate:"required,min=8,max=128"`
	Origin          string
	UserAgent       string
}

// PasswordChange replaces the caller's password after re-verifying the
// current one. Legacy raw credentials are accepted and upgraded in the same
// pass.
func (s *Usecase) PasswordChange(ctx context.Context, in PasswordChangeInput) error {
	ctx, span := s.startSpan(ctx, "PasswordChange")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	clm, err := s.authenticatedIdentity(ctx)
	if err != nil {
		return err
	}

	info, err := s.repoDB.GetIdentityCredentialInfo(ctx, clm.UserID)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "identity not found", "identity_id", clm.UserID)
		return goerror.NewBusiness("authentication required", goerror.CodeUnauthorized)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get identity credential info", "identity_id", clm.UserID, "error", err)
		return goerror.NewServer(err)
	}

	if err := s.ensureIdentityStatusAllowed(ctx, info.ID, info.Status); err != nil {
		return err
	}

	if ok, _ := s.verifyCredential(ctx, info.ID, info.Password, in.CurrentPassword); !ok {
		slog.WarnContext(ctx, "current password mismatch", "identity_id", info.ID)

		s.audit.Record(ctx, auditentity.Record{
			IdentityID: info.ID,
			Action:     auditentity.ActionPasswordChangeFailed,
			Origin:     in.Origin,
			UserAgent:  in.UserAgent,
		})

		return goerror.NewBusiness("invalid password", goerror.CodeUnauthorized)
	}

	newHash, err := s.bcrypt.Hash(in.NewPassword)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash new password", "identity_id", info.ID, "error", err)
		return goerror.NewServer(err)
	}

	if err := s.repoDB.UpdateIdentityCredential(ctx, info.ID, string(newHash)); err != nil {
		slog.ErrorContext(ctx, "failed to update identity credential", "identity_id", info.ID, "error", err)
		return goerror.NewServer(err)
	}

	s.audit.Record(ctx, auditentity.Record{
		IdentityID: info.ID,
		Action:     auditentity.ActionPasswordChange,
		Origin:     in.Origin,
		UserAgent:  in.UserAgent,
	})

	return nil
}
