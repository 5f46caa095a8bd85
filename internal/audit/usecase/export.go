package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
)

// exportRowCap bounds a single export regardless of the requested range.
const exportRowCap = 10_000

type ExportInput struct {
	IdentityID int64
	From       time.Time
	To         time.Time
}

type ExportOutput struct {
	Events    []entity.Event
	Truncated bool
}

// Export returns the full matching event set, newest first, capped at
// exportRowCap rows. Truncated is set when the cap was hit.
func (s *Usecase) Export(ctx context.Context, in ExportInput) (*ExportOutput, error) {
	ctx, span := s.startSpan(ctx, "Export")
	defer span.End()

	clm, err := s.authenticatedAndAuthorized(ctx, "audit", "export")
	if err != nil {
		return nil, err
	}

	// fetch one extra row to detect truncation
	events, err := s.repoDB.GetEventExport(ctx, entity.ExportFilter{
		IdentityID: in.IdentityID,
		From:       in.From,
		To:         in.To,
	}, exportRowCap+1)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get audit event export", "error", err)
		return nil, goerror.NewServer(err)
	}

	truncated := false
	if len(events) > exportRowCap {
		events = events[:exportRowCap]
		truncated = true
	}

	s.Record(ctx, entity.Record{
		IdentityID: clm.UserID,
		Action:     entity.ActionExportData,
		Detail:     map[string]any{"rows": len(events), "truncated": truncated},
	})

	return &ExportOutput{Events: events, Truncated: truncated}, nil
}
