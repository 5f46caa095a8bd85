package inbound

import (
	"github.com/zelyonkin/dashkeep/internal/audit/usecase"
	"github.com/zelyonkin/dashkeep/internal/pkg/router"
)

// HTTPEndpoint exposes HTTP handlers for the audit trail.
type HTTPEndpoint struct {
	uc uc
}

// Query lists audit events, newest first.
// @Summary List audit events
// @Description Returns a paginated audit trail filtered by identity, action and time range.
// @Tags Audit
// @Produce json
// @Param identity_id query string false "Filter by identity ID"
// @Param action query string false "Filter by action kind"
// @Param from query string false "Range start (RFC3339)"
// @Param to query string false "Range end (RFC3339)"
// @Param page query int false "Page number, starts at 1"
// @Param size query int false "Page size, max 100"
// @Success 200 {object} router.successResponse{data=QueryResponse} "Audit events"
// @Failure 401 {object} router.errorResponse "Authentication required"
// @Failure 403 {object} router.errorResponse "Not allowed"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/audit/events [get]
func (h *HTTPEndpoint) Query(r *router.Request) (any, error) {
	identityID, err := queryIdentityID(r)
	if err != nil {
		return nil, err
	}

	from, err := r.GetQueryDate("from", timeFormat)
	if err != nil {
		return nil, err
	}
	to, err := r.GetQueryDate("to", timeFormat)
	if err != nil {
		return nil, err
	}

	page, err := r.GetQueryInt32("page")
	if err != nil {
		return nil, err
	}
	size, err := r.GetQueryInt32("size")
	if err != nil {
		return nil, err
	}

	resp, err := h.uc.Query(r.Context(), usecase.QueryInput{
		IdentityID: identityID,
		Action:     r.GetQuery("action"),
		From:       from,
		To:         to,
		Page:       page,
		Size:       size,
	})
	if err != nil {
		return nil, err
	}

	return QueryResponse{
		Events: toEventItems(resp.Events),
		total:  resp.Total,
		page:   resp.Page,
		size:   resp.Size,
	}, nil
}

// Export returns the full matching audit event set.
// @Summary Export audit events
// @Description Returns up to 10000 audit events for offline analysis.
// @Tags Audit
// @Produce json
// @Param identity_id query string false "Filter by identity ID"
// @Param from query string false "Range start (RFC3339)"
// @Param to query string false "Range end (RFC3339)"
// @Success 200 {object} router.successResponse{data=ExportResponse} "Audit export"
// @Failure 401 {object} router.errorResponse "Authentication required"
// @Failure 403 {object} router.errorResponse "Not allowed"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/audit/events/export [get]
func (h *HTTPEndpoint) Export(r *router.Request) (any, error) {
	identityID, err := queryIdentityID(r)
	if err != nil {
		return nil, err
	}

	from, err := r.GetQueryDate("from", timeFormat)
	if err != nil {
		return nil, err
	}
	to, err := r.GetQueryDate("to", timeFormat)
	if err != nil {
		return nil, err
	}

	resp, err := h.uc.Export(r.Context(), usecase.ExportInput{
		IdentityID: identityID,
		From:       from,
		To:         to,
	})
	if err != nil {
		return nil, err
	}

	return ExportResponse{
		Events:    toEventItems(resp.Events),
		Truncated: resp.Truncated,
	}, nil
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

func queryIdentityID(r *router.Request) (int64, error) {
	return r.GetQueryInt64("identity_id")
}
