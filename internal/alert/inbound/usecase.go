package inbound

import (
	"context"

	"github.com/zelyonkin/dashkeep/internal/alert/usecase"
)

type uc interface {
	ConsumeSecurityEvent(ctx context.Context, in usecase.ConsumeSecurityEventInput) error
}
