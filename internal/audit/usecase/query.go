package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
)

type QueryInput struct {
	IdentityID int64
	Action     string
	From       time.Time
	To         time.Time
	Page       int32 `validate:"min=0"`
	Size       int32 `validate:"min=0,max=100"`
}

type QueryOutput struct {
	Events []entity.Event
	Total  int64
	Page   int32
	Size   int32
}

// Query lists audit events newest first.
func (s *Usecase) Query(ctx context.Context, in QueryInput) (*QueryOutput, error) {
	ctx, span := s.startSpan(ctx, "Query")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	if _, err := s.authenticatedAndAuthorized(ctx, "audit", "read"); err != nil {
		return nil, err
	}

	filter := entity.QueryFilter{
		IdentityID: in.IdentityID,
		Action:     entity.Action(in.Action),
		From:       in.From,
		To:         in.To,
		Page:       in.Page,
		Size:       in.Size,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Size < 1 {
		filter.Size = 20
	}

	if filter.Action != "" && !filter.Action.IsKnown() {
		return nil, goerror.NewInvalidFormat("unknown audit action")
	}

	events, total, err := s.repoDB.GetEventList(ctx, filter)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get audit event list", "error", err)
		return nil, goerror.NewServer(err)
	}

	return &QueryOutput{
		Events: events,
		Total:  total,
		Page:   filter.Page,
		Size:   filter.Size,
	}, nil
}
