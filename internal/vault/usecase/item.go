package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	auditentity "github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
	"github.com/zelyonkin/dashkeep/internal/vault/entity"
)

type ItemListInput struct {
	Page int32 `validate:"min=0"`
	Size int32 `validate:"min=0,max=100"`
}

type ItemListOutput struct {
	Items []ItemListItem
	Total int64
	Page  int32
	Size  int32
}

type ItemListItem struct {
	ID          int64
	Kind        string
	Name        string
	ContentType string
	Size        int64
	UpdatedAt   time.Time
}

// ItemList returns item metadata only; no envelope is ever opened here.
func (s *Usecase) ItemList(ctx context.Context, in ItemListInput) (*ItemListOutput, error) {
	ctx, span := s.startSpan(ctx, "ItemList")
	defer span.End()

	clm, err := s.authenticatedIdentity(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	if in.Page < 1 {
		in.Page = 1
	}
	if in.Size < 1 {
		in.Size = 20
	}

	rows, total, err := s.repoDB.GetItemList(ctx, clm.UserID, in.Page, in.Size)
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get vault item list", "error", err)
		return nil, goerror.NewServer(err)
	}

	items := make([]ItemListItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, ItemListItem{
			ID:          row.ID,
			Kind:        row.Kind.String(),
			Name:        row.Name,
			ContentType: row.ContentType,
			Size:        row.Size,
			UpdatedAt:   row.UpdatedAt,
		})
	}

	return &ItemListOutput{
		Items: items,
		Total: total,
		Page:  in.Page,
		Size:  in.Size,
	}, nil
}

type ItemDeleteInput struct {
	ID        int64 `validate:"required"`
	Origin    string
	UserAgent string
}

func (s *Usecase) ItemDelete(ctx context.Context, in ItemDeleteInput) error {
	ctx, span := s.startSpan(ctx, "ItemDelete")
	defer span.End()

	clm, err := s.authenticatedIdentity(ctx)
	if err != nil {
		return err
	}

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	item, err := s.getOwnedItem(ctx, in.ID, clm.UserID)
	if err != nil {
		return err
	}

	if item.Kind == entity.ItemKindFile && item.StorageKey != "" {
		bucket := strings.TrimSpace(s.cfg.GetString("vault.file_bucket"))
		if err := s.storage.DeleteObject(ctx, bucket, item.StorageKey); err != nil {
			// the ciphertext is useless without the row's envelope params
			slog.WarnContext(ctx, "failed to delete vault blob", "item_id", item.ID, "error", err)
		}
	}

	if err := s.repoDB.DeleteItem(ctx, item.ID, clm.UserID); err != nil {
		slog.ErrorContext(ctx, "failed to repo delete vault item", "item_id", item.ID, "error", err)
		return goerror.NewServer(err)
	}

	action := auditentity.ActionVaultAccess
	detail := map[string]any{"op": "delete", "kind": item.Kind.String(), "item_id": item.ID}
	if item.Kind == entity.ItemKindFile {
		action = auditentity.ActionFileDelete
		detail = map[string]any{"item_id": item.ID, "name": item.Name}
	}
	s.recordAccess(ctx, clm.UserID, action, in.Origin, in.UserAgent, detail)

	return nil
}
