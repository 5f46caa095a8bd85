package usecase

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
	"github.com/zelyonkin/dashkeep/internal/pkg/mail"
)

//nolint:gochecknoglobals // global for fast reuse
var alertSubjects = map[entity.Action]string{
	entity.ActionSuspiciousActivity: "Suspicious sign-in activity on your account",
	entity.ActionTwoFactorEnabled:   "Two-factor authentication was enabled",
	entity.ActionTwoFactorDisabled:  "Two-factor authentication was disabled",
	entity.ActionPasswordChange:     "Your password was changed",
}

type ConsumeSecurityEventInput struct {
	IdentityID int64  `validate:"required,gt=0"`
	Action     string `validate:"required"`
	Origin     string
	OccurredAt time.Time
}

// ConsumeSecurityEvent mails the account owner about security-relevant
// changes. Events that are not alert-worthy are dropped silently; a missing
// identity is not an error, the event may concern a deleted account.
func (s *Usecase) ConsumeSecurityEvent(ctx context.Context, in ConsumeSecurityEventInput) error {
	ctx, span := s.startSpan(ctx, "ConsumeSecurityEvent")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		slog.ErrorContext(ctx, "Validation failed", "error", err)
		return nil
	}

	subject, ok := alertSubjects[entity.Action(in.Action)]
	if !ok {
		return nil
	}

	email, err := s.repoDB.GetIdentityEmail(ctx, in.IdentityID)
	if errors.Is(err, goerror.ErrNotFound) {
		slog.WarnContext(ctx, "identity for security alert not found", "identity_id", in.IdentityID)
		return nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get identity email", "identity_id", in.IdentityID, "error", err)
		return err
	}

	occurred := in.OccurredAt
	if occurred.IsZero() {
		occurred = s.clock.Now()
	}

	body := fmt.Sprintf(
		"<p>%s.</p><p>Origin: %s<br>Time: %s</p><p>If this was not you, change your password immediately.</p>",
		html.EscapeString(subject),
		html.EscapeString(in.Origin),
		occurred.UTC().Format(time.RFC1123),
	)

	if err := s.repoMail.Send(ctx, mail.Message{
		To:       []string{email},
		Subject:  subject,
		HTMLBody: body,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to send security alert email", "identity_id", in.IdentityID, "action", in.Action, "error", err)
		return err
	}

	return nil
}
