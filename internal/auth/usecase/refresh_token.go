package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/zelyonkin/dashkeep/internal/auth/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
)

type RefreshTokenInput struct {
	RefreshToken string `validate:"required"`
}

type RefreshTokenOutput struct {
	AccessToken  string
	RefreshToken string
}

func (s *Usecase) RefreshToken(ctx context.Context, in RefreshTokenInput) (*RefreshTokenOutput, error) {
	ctx, span := s.startSpan(ctx, "RefreshToken")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	oldRefreshTokenHash, err := s.hmac.Hash(in.RefreshToken)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash old refresh token", "error", err)
		return nil, goerror.NewServer(err)
	}

	rt, err := s.repoDB.GetIdentityRefreshToken(ctx, string(oldRefreshTokenHash))
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "refresh token not found")
		return nil, goerror.NewBusiness("invalid or expired refresh token", goerror.CodeUnauthorized)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get identity refresh token", "error", err)
		return nil, goerror.NewServer(err)
	}

	// Reuse detection for rotated tokens: presenting an already-replaced
	// token implies theft, so every session for the identity is revoked.
	if rt.RefreshRevoked {
		if rt.RefreshReplacedByTokenID != nil {
			if err := s.repoDB.RevokeAllRefreshToken(ctx, rt.IdentityID); err != nil {
				slog.ErrorContext(ctx, "failed to repo revoke all refresh token", "identity_id", rt.IdentityID, "error", err)
			}

			slog.WarnContext(ctx, "SECURITY: refresh token reuse detected", "identity_id", rt.IdentityID)
			return nil, goerror.NewBusiness("token reuse detected, please log in again", goerror.CodeForbidden)
		}

		slog.WarnContext(ctx, "refresh token is revoked", "refresh_token_id", rt.RefreshID)
		return nil, goerror.NewBusiness("invalid or expired refresh token", goerror.CodeUnauthorized)
	}

	if s.clock.Now().After(rt.RefreshExpiresAt) {
		slog.WarnContext(ctx, "refresh token is expired")
		return nil, goerror.NewBusiness("invalid or expired refresh token", goerror.CodeUnauthorized)
	}

	if err := s.ensureIdentityStatusAllowed(ctx, rt.IdentityID, rt.IdentityStatus); err != nil {
		return nil, err
	}

	newRefreshToken := s.oid.Generate()
	newRefreshTokenHash, err := s.hmac.Hash(newRefreshToken)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash new refresh token", "error", err)
		return nil, goerror.NewServer(err)
	}

	acToken, err := s.jwt.Generate(rt.IdentityID, rt.IdentityEmail, rt.IdentityRole)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate access jwt token", "identity_id", rt.IdentityID, "error", err)
		return nil, goerror.NewServer(err)
	}

	err = s.repoDB.RotateRefreshToken(ctx, entity.RotateRefreshToken{
		NewID:        s.uid.Generate(),
		OldID:        rt.RefreshID,
		IdentityID:   rt.IdentityID,
		NewToken:     string(newRefreshTokenHash),
		NewExpiresAt: s.clock.Now().Add(s.cfg.GetDay("modules.auth.refresh_token_ttl_days")),
	})
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "refresh token already rotated or revoked", "refresh_token_id", rt.RefreshID)
		return nil, goerror.NewBusiness("invalid or expired refresh token", goerror.CodeUnauthorized)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo rotate refresh token", "error", err)
		return nil, goerror.NewServer(err)
	}

	return &RefreshTokenOutput{
		AccessToken:  acToken,
		RefreshToken: newRefreshToken,
	}, nil
}
