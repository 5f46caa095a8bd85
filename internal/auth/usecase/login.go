package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	auditentity "github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/auth/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
)

type LoginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
	// Origin is the client network origin, keyed by the brute-force guard.
	Origin    string
	UserAgent string
}

type LoginOutput struct {
	State          entity.LoginState
	ChallengeToken string
	//
	AccessToken  string
	RefreshToken string
}

// Login runs the credential phase of the sign-in flow. When a second factor
// is enrolled it stops at AWAITING_SECOND_FACTOR and hands back a challenge
// token for Login2FA; otherwise it authenticates and issues tokens.
func (s *Usecase) Login(ctx context.Context, in LoginInput) (*LoginOutput, error) {
	ctx, span := s.startSpan(ctx, "Login")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	if err := s.ensureOriginAllowed(ctx, in.Origin); err != nil {
		return nil, err
	}

	email := strings.TrimSpace(in.Email)
	info, err := s.repoDB.GetIdentityLoginInfo(ctx, email)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "identity not found", "email", email)
		return nil, s.failLogin(ctx, 0, in)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get identity login info", "email", email, "error", err)
		return nil, goerror.NewServer(err)
	}

	if err := s.ensureIdentityStatusAllowed(ctx, info.ID, info.Status); err != nil {
		return nil, err
	}

	ok, migrated := s.verifyCredential(ctx, info.ID, info.Password, in.Password)
	if !ok {
		slog.WarnContext(ctx, "credential mismatch", "identity_id", info.ID)
		return nil, s.failLogin(ctx, info.ID, in)
	}

	if info.HasTOTP {
		cToken, err := s.issueLoginChallenge(ctx, info.ID)
		if err != nil {
			return nil, err
		}

		return &LoginOutput{
			State:          entity.LoginStateAwaitingSecondFactor,
			ChallengeToken: cToken,
		}, nil
	}

	s.guard.Reset(in.Origin)

	acToken, refToken, err := s.issueSessionTokens(ctx, info.ID, info.Email, info.Role, 0)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, auditentity.Record{
		IdentityID: info.ID,
		Action:     auditentity.ActionLogin,
		Origin:     in.Origin,
		UserAgent:  in.UserAgent,
		Detail:     loginDetail(false, "", migrated),
	})

	return &LoginOutput{
		State:        entity.LoginStateAuthenticated,
		AccessToken:  acToken,
		RefreshToken: refToken,
	}, nil
}

// ensureOriginAllowed short-circuits a locked-out origin. The rejection is
// never recorded as another failure.
func (s *Usecase) ensureOriginAllowed(ctx context.Context, origin string) error {
	decision := s.guard.Allow(origin)
	if decision.Allowed {
		return nil
	}

	secs := int64(math.Ceil(decision.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}

	slog.WarnContext(ctx, "origin is locked out", "origin", origin, "retry_after_seconds", secs)
	return goerror.NewBusiness(
		fmt.Sprintf("too many failed attempts, try again in %d seconds", secs),
		goerror.CodeTooManyRequest,
	)
}

// failLogin records the failure against the guard and the audit trail and
// returns the generic credential error. identityID zero means the account
// was never resolved.
func (s *Usecase) failLogin(ctx context.Context, identityID int64, in LoginInput) error {
	s.guard.RecordFailure(in.Origin)

	s.audit.Record(ctx, auditentity.Record{
		IdentityID: identityID,
		Action:     auditentity.ActionLoginFailed,
		Origin:     in.Origin,
		UserAgent:  in.UserAgent,
		Detail:     map[string]any{"email": strings.TrimSpace(in.Email)},
	})

	if !s.guard.Allow(in.Origin).Allowed {
		s.audit.Record(ctx, auditentity.Record{
			IdentityID: identityID,
			Action:     auditentity.ActionSuspiciousActivity,
			Origin:     in.Origin,
			UserAgent:  in.UserAgent,
			Detail:     map[string]any{"reason": "login lockout triggered"},
		})
	}

	return goerror.NewBusiness("invalid email or password", goerror.CodeUnauthorized)
}

func (s *Usecase) issueLoginChallenge(ctx context.Context, identityID int64) (string, error) {
	cToken := s.oid.Generate()

	cTokenHash, err := s.hmac.Hash(cToken)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash challenge token", "error", err)
		return "", goerror.NewServer(err)
	}

	if err := s.repoDB.CreateChallenge(ctx, entity.Challenge{
		ID:         s.uid.Generate(),
		IdentityID: identityID,
		Token:      string(cTokenHash),
		Purpose:    entity.ChallengePurposeMFALogin,
		ExpiresAt:  s.clock.Now().Add(s.cfg.GetMinute("modules.auth.mfa_login_ttl_minutes")),
	}); err != nil {
		slog.ErrorContext(ctx, "failed to repo create challenge", "identity_id", identityID, "error", err)
		return "", goerror.NewServer(err)
	}

	return cToken, nil
}

// issueSessionTokens creates the JWT access token and a persisted refresh
// token. A non-zero challengeID consumes the login challenge in the same
// transaction.
func (s *Usecase) issueSessionTokens(ctx context.Context, identityID int64, email, role string, challengeID int64) (string, string, error) {
	acToken, err := s.jwt.Generate(identityID, email, role)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate access jwt token", "identity_id", identityID, "error", err)
		return "", "", goerror.NewServer(err)
	}

	refToken := s.oid.Generate()
	refTokenHash, err := s.hmac.Hash(refToken)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash refresh token", "identity_id", identityID, "error", err)
		return "", "", goerror.NewServer(err)
	}

	rt := entity.RefreshToken{
		ID:         s.uid.Generate(),
		IdentityID: identityID,
		Token:      string(refTokenHash),
		ExpiresAt:  s.clock.Now().Add(s.cfg.GetDay("modules.auth.refresh_token_ttl_days")),
	}

	if challengeID != 0 {
		err = s.repoDB.NewRefreshToken(ctx, rt, challengeID)
	} else {
		err = s.repoDB.CreateRefreshToken(ctx, rt)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo create refresh token", "identity_id", identityID, "error", err)
		return "", "", goerror.NewServer(err)
	}

	return acToken, refToken, nil
}

func loginDetail(mfaUsed bool, method string, migrated bool) map[string]any {
	detail := map[string]any{"mfa": mfaUsed}
	if method != "" {
		detail["method"] = method
	}
	if migrated {
		detail["password_migrated"] = true
	}
	return detail
}
