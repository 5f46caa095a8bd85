package usecase

import (
	"context"
	"log/slog"

	"github.com/zelyonkin/dashkeep/internal/auth/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
)

type TOTPStatusOutput struct {
	State                entity.EnrollmentState
	BackupCodesRemaining int64
}

// TOTPStatus reports the caller's second-factor enrollment state and, when
// Active, how many backup codes remain unused.
func (s *Usecase) TOTPStatus(ctx context.Context) (*TOTPStatusOutput, error) {
	ctx, span := s.startSpan(ctx, "TOTPStatus")
	defer span.End()

	clm, err := s.authenticatedIdentity(ctx)
	if err != nil {
		return nil, err
	}

	state, err := s.enrollmentState(ctx, clm.UserID)
	if err != nil {
		return nil, err
	}

	out := &TOTPStatusOutput{State: state}

	if state == entity.EnrollmentActive {
		remaining, err := s.repoDB.CountUnusedBackupCodes(ctx, clm.UserID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count unused backup codes", "identity_id", clm.UserID, "error", err)
			return nil, goerror.NewServer(err)
		}
		out.BackupCodesRemaining = remaining
	}

	return out, nil
}
