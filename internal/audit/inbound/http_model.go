package inbound

import (
	"time"

	"github.com/zelyonkin/dashkeep/internal/audit/entity"
)

type EventItem struct {
	ID         int64          `json:"id,string"`
	IdentityID int64          `json:"identity_id,string,omitempty"`
	Action     string         `json:"action"`
	Origin     string         `json:"origin,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func toEventItems(events []entity.Event) []EventItem {
	items := make([]EventItem, 0, len(events))
	for _, e := range events {
		items = append(items, EventItem{
			ID:         e.ID,
			IdentityID: e.IdentityID,
			Action:     e.Action.String(),
			Origin:     e.Origin,
			UserAgent:  e.UserAgent,
			Detail:     e.Detail,
			OccurredAt: e.OccurredAt,
		})
	}
	return items
}

type QueryResponse struct {
	Events []EventItem `json:"events"`
	total  int64
	page   int32
	size   int32
}

func (r QueryResponse) Meta() map[string]any {
	return map[string]any{
		"total": r.total,
		"page":  r.page,
		"size":  r.size,
	}
}

type ExportResponse struct {
	Events    []EventItem `json:"events"`
	Truncated bool        `json:"truncated"`
}
