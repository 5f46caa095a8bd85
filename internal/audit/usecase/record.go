package usecase

import (
	"context"
	"log/slog"

	"github.com/zelyonkin/dashkeep/internal/audit/entity"
)

// Record appends one event to the audit log. It never returns an error:
// losing an audit row must not fail the operation that produced it, so
// persistence and publishing run detached and failures become warnings.
func (s *Usecase) Record(ctx context.Context, rec entity.Record) {
	ctx, span := s.startSpan(ctx, "Record")
	defer span.End()

	if !rec.Action.IsKnown() {
		slog.WarnContext(ctx, "dropping audit event with unknown action", "action", rec.Action.String())
		return
	}

	e := entity.Event{
		ID:         s.uid.Generate(),
		IdentityID: rec.IdentityID,
		Action:     rec.Action,
		Origin:     rec.Origin,
		UserAgent:  rec.UserAgent,
		Detail:     rec.Detail,
		OccurredAt: s.clock.Now(),
	}

	// detach from the request lifetime, keep correlation/trace values
	s.goroutine.Go(context.WithoutCancel(ctx), func(ctx context.Context) error {
		if err := s.repoDB.CreateEvent(ctx, e); err != nil {
			slog.WarnContext(ctx, "failed to persist audit event",
				"action", e.Action.String(), "identity_id", e.IdentityID, "error", err)
		}

		if err := s.repoMessaging.PublishSecurityEvent(ctx, e); err != nil {
			slog.WarnContext(ctx, "failed to publish security event",
				"action", e.Action.String(), "identity_id", e.IdentityID, "error", err)
		}

		return nil
	})
}
