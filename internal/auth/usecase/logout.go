package usecase

import (
	"context"
	"log/slog"

	auditentity "github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
)

type LogoutInput struct {
	RefreshToken string
	Origin       string
	UserAgent    string
}

// Logout revokes the presented refresh token. A malformed token is ignored:
// the access token simply expires.
func (s *Usecase) Logout(ctx context.Context, in LogoutInput) error {
	ctx, span := s.startSpan(ctx, "Logout")
	defer span.End()

	clm, err := s.authenticatedIdentity(ctx)
	if err != nil {
		return err
	}

	if len(in.RefreshToken) == 64 {
		tokenHash, err := s.hmac.Hash(in.RefreshToken)
		if err != nil {
			slog.ErrorContext(ctx, "failed to hash refresh token", "error", err)
			return goerror.NewServer(err)
		}

		if err := s.repoDB.RevokeRefreshToken(ctx, string(tokenHash)); err != nil {
			slog.ErrorContext(ctx, "failed to repo revoke refresh token", "error", err)
			return goerror.NewServer(err)
		}
	}

	s.audit.Record(ctx, auditentity.Record{
		IdentityID: clm.UserID,
		Action:     auditentity.ActionLogout,
		Origin:     in.Origin,
		UserAgent:  in.UserAgent,
	})

	return nil
}
