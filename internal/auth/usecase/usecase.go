package usecase

import (
	"context"
	"crypto/subtle"
	"log/slog"

	auditentity "github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/auth/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/bruteforce"
	"github.com/zelyonkin/dashkeep/internal/pkg/clock"
	"github.com/zelyonkin/dashkeep/internal/pkg/config"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
	"github.com/zelyonkin/dashkeep/internal/pkg/hash"
	"github.com/zelyonkin/dashkeep/internal/pkg/instrument"
	"github.com/zelyonkin/dashkeep/internal/pkg/jwt"
	"github.com/zelyonkin/dashkeep/internal/pkg/mfa"
	"github.com/zelyonkin/dashkeep/internal/pkg/otp"
	"github.com/zelyonkin/dashkeep/internal/pkg/uid"
	"github.com/zelyonkin/dashkeep/internal/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

type repoDB interface {
	GetIdentityLoginInfo(ctx context.Context, email string) (*entity.IdentityLoginInfo, error)
	GetIdentityCredentialInfo(ctx context.Context, id int64) (*entity.IdentityCredentialInfo, error)
	UpdateIdentityCredential(ctx context.Context, identityID int64, hash string) error

	CreateChallenge(ctx context.Context, in entity.Challenge) error
	DeleteChallenge(ctx context.Context, id int64) error
	GetChallengeIdentityByTokenPurpose(ctx context.Context, token string, p entity.ChallengePurpose) (*entity.ChallengeIdentity, error)
	GetPendingTOTPChallenge(ctx context.Context, identityID int64) (*entity.ChallengeIdentity, error)
	DeletePendingTOTPChallenges(ctx context.Context, identityID int64) error

	GetTOTPFactor(ctx context.Context, identityID int64) (*entity.TOTPFactor, error)
	NewTOTPFactor(ctx context.Context, factor entity.TOTPFactor, codes []entity.BackupCode, challengeID int64) error
	RemoveTOTPEnrollment(ctx context.Context, identityID int64) error
	UpdateTOTPLastUsedAt(ctx context.Context, factorID, identityID int64) error

	GetBackupCodes(ctx context.Context, identityID int64) ([]entity.BackupCode, error)
	CountUnusedBackupCodes(ctx context.Context, identityID int64) (int64, error)
	ConsumeBackupCode(ctx context.Context, codeID, identityID int64) (bool, error)

	CreateRefreshToken(ctx context.Context, in entity.RefreshToken) error
	NewRefreshToken(ctx context.Context, rt entity.RefreshToken, challengeID int64) error
	GetIdentityRefreshToken(ctx context.Context, token string) (*entity.IdentityRefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string) error
	RevokeAllRefreshToken(ctx context.Context, identityID int64) error
	RotateRefreshToken(ctx context.Context, ro entity.RotateRefreshToken) error
}

// auditor records security events. Implementations must never fail the caller.
type auditor interface {
	Record(ctx context.Context, rec auditentity.Record)
}

// guard throttles failed sign-in attempts per origin.
type guard interface {
	Allow(origin string) bruteforce.Decision
	RecordFailure(origin string)
	Reset(origin string)
}

type Usecase struct {
	repoDB          repoDB
	audit           auditor
	guard           guard
	validator       validator.Validator
	cfg             config.Config
	hmac            hash.Hash
	bcrypt          hash.Hash
	argon2id        hash.Hash
	mfaEncryptor    mfa.Encryptor
	mfaRecoveryCode mfa.RecoveryCodeGenerator
	uid             uid.NumberID
	oid             uid.StringID
	totp            otp.OTP
	clock           clock.Clocker
	jwt             jwt.JWT
	ins             instrument.Instrumentation
}

type Dependency struct {
	RepoDB          repoDB
	Audit           auditor
	Guard           guard
	Validator       validator.Validator
	Config          config.Config
	HMAC            hash.Hash
	Bcrypt          hash.Hash
	Argon2ID        hash.Hash
	MFAEncryptor    mfa.Encryptor
	MFARecoveryCode mfa.RecoveryCodeGenerator
	UID             uid.NumberID
	OID             uid.StringID
	Totp            otp.OTP
	Clock           clock.Clocker
	JWT             jwt.JWT
	Instrument      instrument.Instrumentation
}

func New(dep Dependency) *Usecase {
	return &Usecase{
		repoDB:          dep.RepoDB,
		audit:           dep.Audit,
		guard:           dep.Guard,
		validator:       dep.Validator,
		cfg:             dep.Config,
		hmac:            dep.HMAC,
		bcrypt:          dep.Bcrypt,
		argon2id:        dep.Argon2ID,
		mfaEncryptor:    dep.MFAEncryptor,
		mfaRecoveryCode: dep.MFARecoveryCode,
		uid:             dep.UID,
		oid:             dep.OID,
		totp:            dep.Totp,
		clock:           dep.Clock,
		jwt:             dep.JWT,
		ins:             dep.Instrument,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("auth.usecase").Start(ctx, name)
}

func (s *Usecase) ensureIdentityStatusAllowed(ctx context.Context, identityID int64, status entity.IdentityStatus) error {
	switch status {
	case entity.IdentityStatusActive:
		return nil

	case entity.IdentityStatusDisabled:
		slog.WarnContext(ctx, "identity is disabled", "identity_id", identityID)
		return goerror.NewBusiness("account is disabled", goerror.CodeForbidden)

	default:
		slog.WarnContext(ctx, "identity status is unrecognized", "identity_id", identityID)
		return goerror.NewBusiness("account status is unrecognized", goerror.CodeForbidden)
	}
}

// verifyCredential compares a plaintext password against the stored value,
// upgrading legacy raw passwords to bcrypt on first successful match.
// migrated is true when an upgrade was persisted.
func (s *Usecase) verifyCredential(ctx context.Context, identityID int64, stored, plaintext string) (ok, migrated bool) {
	cred := entity.ParseCredential(stored)

	switch cred.Kind {
	case entity.CredentialHashed:
		return s.bcrypt.Verify(cred.Value, plaintext), false

	case entity.CredentialLegacy:
		if subtle.ConstantTimeCompare([]byte(cred.Value), []byte(plaintext)) != 1 {
			return false, false
		}

		rehashed, err := s.bcrypt.Hash(plaintext)
		if err != nil {
			slog.ErrorContext(ctx, "failed to rehash legacy credential", "identity_id", identityID, "error", err)
			return true, false
		}

		if err := s.repoDB.UpdateIdentityCredential(ctx, identityID, string(rehashed)); err != nil {
			// the login itself is valid; the upgrade retries on the next one
			slog.WarnContext(ctx, "failed to persist rehashed credential", "identity_id", identityID, "error", err)
			return true, false
		}

		return true, true

	default:
		slog.WarnContext(ctx, "stored credential is empty", "identity_id", identityID)
		return false, false
	}
}

func (s *Usecase) authenticatedIdentity(ctx context.Context) (*jwt.Claims, error) {
	clm := jwt.GetAuth(ctx)
	if clm == nil {
		return nil, goerror.NewBusiness("authentication required", goerror.CodeUnauthorized)
	}
	return clm, nil
}
