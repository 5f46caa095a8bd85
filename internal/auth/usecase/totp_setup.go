package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"

	"github.com/zelyonkin/dashkeep/internal/auth/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
	"github.com/zelyonkin/dashkeep/internal/pkg/mfa"
	"github.com/zelyonkin/dashkeep/internal/pkg/valueobject"
)

// qrImageSize is the pixel size of the generated enrollment QR code.
const qrImageSize = 256

type TOTPSetupInput struct {
	CurrentPassword string `validate:"required"`
	Origin          string
	UserAgent       string
}

type TOTPSetupOutput struct {
	ChallengeToken string
	Key            string
	URI            string
	QRImage        string // data URL with a PNG of the otpauth URI
}

// TOTPSetup starts a second-factor enrollment. The generated secret stays
// Pending, held encrypted inside a confirm challenge, until TOTPConfirm
// proves the authenticator was provisioned.
func (s *Usecase) TOTPSetup(ctx context.Context, in TOTPSetupInput) (*TOTPSetupOutput, error) {
	ctx, span := s.startSpan(ctx, "TOTPSetup")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

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

	if ok, _ := s.verifyCredential(ctx, info.ID, info.Password, in.CurrentPassword); !ok {
		slog.WarnContext(ctx, "current password mismatch", "identity_id", info.ID)
		return nil, goerror.NewBusiness("invalid password", goerror.CodeUnauthorized)
	}

	state, err := s.enrollmentState(ctx, info.ID)
	if err != nil {
		return nil, err
	}
	if state == entity.EnrollmentActive {
		return nil, goerror.NewBusiness("two-factor authentication is already configured", goerror.CodeConflict)
	}

	// restarting a Pending enrollment replaces the previous secret
	if state == entity.EnrollmentPending {
		if err := s.repoDB.DeletePendingTOTPChallenges(ctx, info.ID); err != nil {
			slog.ErrorContext(ctx, "failed to drop pending enrollment", "identity_id", info.ID, "error", err)
			return nil, goerror.NewServer(err)
		}
	}

	secret, uri, err := s.totp.Generate(info.Email)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate totp secret", "identity_id", info.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	qrImage, err := s.totp.Image(uri, qrImageSize)
	if err != nil {
		slog.ErrorContext(ctx, "failed to render totp qr image", "identity_id", info.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	encryptedSecret, err := s.mfaEncryptor.Encrypt([]byte(secret), mfa.Scope{
		UserID:  info.ID,
		Purpose: mfa.PurposeOTPSeed,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to encrypt totp secret", "identity_id", info.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	cToken := s.oid.Generate()
	cTokenHash, err := s.hmac.Hash(cToken)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash challenge token", "error", err)
		return nil, goerror.NewServer(err)
	}

	challenge := entity.Challenge{
		ID:         s.uid.Generate(),
		IdentityID: info.ID,
		Token:      string(cTokenHash),
		Purpose:    entity.ChallengePurposeMFASetupConfirm,
		ExpiresAt:  s.clock.Now().Add(s.cfg.GetMinute("modules.auth.mfa_setup_confirm_ttl_minutes")),
		Metadata: valueobject.JSONMap{
			"secret":      base64.StdEncoding.EncodeToString(encryptedSecret),
			"key_version": 1,
		},
	}

	if err := s.repoDB.CreateChallenge(ctx, challenge); err != nil {
		slog.ErrorContext(ctx, "failed to create enrollment challenge", "identity_id", info.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	return &TOTPSetupOutput{
		ChallengeToken: cToken,
		Key:            secret,
		URI:            uri,
		QRImage:        qrImage,
	}, nil
}

// enrollmentState resolves the explicit second-factor lifecycle state.
func (s *Usecase) enrollmentState(ctx context.Context, identityID int64) (entity.EnrollmentState, error) {
	_, err := s.repoDB.GetTOTPFactor(ctx, identityID)
	if err == nil {
		return entity.EnrollmentActive, nil
	}
	if !errors.Is(err, goerror.ErrNotFound) {
		slog.ErrorContext(ctx, "failed to repo get totp factor", "identity_id", identityID, "error", err)
		return entity.EnrollmentAbsent, goerror.NewServer(err)
	}

	_, err = s.repoDB.GetPendingTOTPChallenge(ctx, identityID)
	if err == nil {
		return entity.EnrollmentPending, nil
	}
	if !errors.Is(err, goerror.ErrNotFound) {
		slog.ErrorContext(ctx, "failed to repo get pending totp challenge", "identity_id", identityID, "error", err)
		return entity.EnrollmentAbsent, goerror.NewServer(err)
	}

	return entity.EnrollmentAbsent, nil
}
