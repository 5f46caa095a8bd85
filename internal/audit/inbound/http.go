package inbound

import (
	"context"

	"github.com/zelyonkin/dashkeep/internal/audit/usecase"
	"github.com/zelyonkin/dashkeep/internal/pkg/router"
)

type uc interface {
	Query(ctx context.Context, in usecase.QueryInput) (*usecase.QueryOutput, error)
	Export(ctx context.Context, in usecase.ExportInput) (*usecase.ExportOutput, error)
}

func RegisterHTTPEndpoint(r *router.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	// Audit trail (need authenticated & authorization)
	r.GET("/api/v1/audit/events", end.Query)
	r.GET("/api/v1/audit/events/export", end.Export)
}
