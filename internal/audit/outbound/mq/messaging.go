package mq

import (
	"context"
	"encoding/json"

	"github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/instrument"
	"github.com/zelyonkin/dashkeep/internal/pkg/messaging"
	"github.com/zelyonkin/dashkeep/internal/shared/event"
	"go.opentelemetry.io/otel/codes"
)

const keyOfCorrelationID string = "cID"

type Messaging struct {
	client messaging.Messaging
	ins    instrument.Instrumentation
}

func NewMessaging(client messaging.Messaging, ins instrument.Instrumentation) *Messaging {
	return &Messaging{client: client, ins: ins}
}

func (m *Messaging) PublishSecurityEvent(ctx context.Context, e entity.Event) error {
	ctx, span := m.ins.Tracer("audit.outbound.mq").Start(ctx, "PublishSecurityEvent")
	defer span.End()

	body, err := json.Marshal(event.SecurityEventMessage{
		ID:         e.ID,
		IdentityID: e.IdentityID,
		Action:     e.Action.String(),
		Origin:     e.Origin,
		UserAgent:  e.UserAgent,
		Detail:     e.Detail,
		OccurredAt: e.OccurredAt,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	cID := instrument.GetCorrelationID(ctx)
	if _, err := m.client.Publish(ctx, event.SecurityEventsDestination, messaging.OutgoingMessage{
		Body:    body,
		Key:     []byte(e.Action.String()),
		Headers: []messaging.Header{{Key: keyOfCorrelationID, Value: []byte(cID)}},
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}
