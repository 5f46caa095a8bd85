package inbound

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/zelyonkin/dashkeep/internal/alert/usecase"
	"github.com/zelyonkin/dashkeep/internal/pkg/instrument"
	"github.com/zelyonkin/dashkeep/internal/pkg/messaging"
	"github.com/zelyonkin/dashkeep/internal/pkg/uid"
	"github.com/zelyonkin/dashkeep/internal/shared/event"
)

const keyOfCorrelationID string = "cID"

type MQHandler struct {
	uc   uc
	uuid uid.StringID
	ins  instrument.Instrumentation
}

func (h *MQHandler) ensureCorrelationID(ctx context.Context, headers []messaging.Header) context.Context {
	for i := range headers {
		if headers[i].Key == keyOfCorrelationID {
			return instrument.SetCorrelationID(ctx, string(headers[i].Value))
		}
	}
	return instrument.SetCorrelationID(ctx, h.uuid.Generate())
}

func (h *MQHandler) SecurityEventAlert(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg.Headers())

	ctx, span := h.ins.Tracer("alert.inbound.mq").Start(ctx, "SecurityEventAlert")
	defer span.End()

	body := msg.Body()

	var payload event.SecurityEventMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of security event", "msg_body", string(body), "error", err)
		return nil
	}

	if err := h.uc.ConsumeSecurityEvent(ctx, usecase.ConsumeSecurityEventInput{
		IdentityID: payload.IdentityID,
		Action:     payload.Action,
		Origin:     payload.Origin,
		OccurredAt: payload.OccurredAt,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to consume security event", "msg_body", string(body), "error", err)
		return err
	}

	return nil
}
