package usecase

import (
	"context"
	"log/slog"
	"time"

	auditentity "github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
	"github.com/zelyonkin/dashkeep/internal/pkg/vaultcrypt"
	"github.com/zelyonkin/dashkeep/internal/vault/entity"
)

type NoteCreateInput struct {
	Name      string `validate:"required,max=255"`
	Content   string `validate:"required"`
	Origin    string
	UserAgent string
}

type NoteCreateOutput struct {
	ID int64
}

func (s *Usecase) NoteCreate(ctx context.Context, in NoteCreateInput) (*NoteCreateOutput, error) {
	ctx, span := s.startSpan(ctx, "NoteCreate")
	defer span.End()

	clm, err := s.authenticatedIdentity(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	env, err := s.cipher.EncryptString(in.Content)
	if err != nil {
		slog.ErrorContext(ctx, "failed to seal vault note", "error", err)
		return nil, goerror.NewServer(err)
	}

	now := s.clock.Now()
	item := entity.Item{
		ID:         s.uid.Generate(),
		IdentityID: clm.UserID,
		Kind:       entity.ItemKindNote,
		Name:       in.Name,
		Payload:    env.Payload,
		IV:         env.IV,
		Tag:        env.Tag,
		Size:       int64(len(in.Content)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repoDB.CreateItem(ctx, item); err != nil {
		slog.ErrorContext(ctx, "failed to repo create vault note", "error", err)
		return nil, goerror.NewServer(err)
	}

	s.recordAccess(ctx, clm.UserID, auditentity.ActionVaultAccess, in.Origin, in.UserAgent, map[string]any{
		"op":      "create",
		"kind":    entity.ItemKindNote.String(),
		"item_id": item.ID,
	})

	return &NoteCreateOutput{ID: item.ID}, nil
}

type NoteGetInput struct {
	ID        int64 `validate:"required"`
	Origin    string
	UserAgent string
}

type NoteGetOutput struct {
	ID        int64
	Name      string
	Content   string
	UpdatedAt time.Time
}

func (s *Usecase) NoteGet(ctx context.Context, in NoteGetInput) (*NoteGetOutput, error) {
	ctx, span := s.startSpan(ctx, "NoteGet")
	defer span.End()

	clm, err := s.authenticatedIdentity(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	item, err := s.getOwnedItem(ctx, in.ID, clm.UserID)
	if err != nil {
		return nil, err
	}
	if item.Kind != entity.ItemKindNote {
		return nil, goerror.NewBusiness("vault item not found", goerror.CodeNotFound)
	}

	content, err := s.cipher.DecryptString(vaultcrypt.StringEnvelope{
		Payload: item.Payload,
		IV:      item.IV,
		Tag:     item.Tag,
	})
	if err != nil {
		return nil, openError(ctx, item.ID, err)
	}

	s.recordAccess(ctx, clm.UserID, auditentity.ActionVaultAccess, in.Origin, in.UserAgent, map[string]any{
		"op":      "read",
		"kind":    entity.ItemKindNote.String(),
		"item_id": item.ID,
	})

	return &NoteGetOutput{
		ID:        item.ID,
		Name:      item.Name,
		Content:   content,
		UpdatedAt: item.UpdatedAt,
	}, nil
}

type NoteUpdateInput struct {
	ID        int64  `validate:"required"`
	Name      string `validate:"required,max=255"`
	Content   string `validate:"required"`
	Origin    string
	UserAgent string
}

func (s *Usecase) NoteUpdate(ctx context.Context, in NoteUpdateInput) error {
	ctx, span := s.startSpan(ctx, "NoteUpdate")
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
	if item.Kind != entity.ItemKindNote {
		return goerror.NewBusiness("vault item not found", goerror.CodeNotFound)
	}

	// a fresh envelope replaces the old one wholesale
	env, err := s.cipher.EncryptString(in.Content)
	if err != nil {
		slog.ErrorContext(ctx, "failed to seal vault note", "item_id", item.ID, "error", err)
		return goerror.NewServer(err)
	}

	item.Name = in.Name
	item.Payload = env.Payload
	item.IV = env.IV
	item.Tag = env.Tag
	item.Size = int64(len(in.Content))
	item.UpdatedAt = s.clock.Now()

	if err := s.repoDB.ReplaceItemEnvelope(ctx, *item); err != nil {
		slog.ErrorContext(ctx, "failed to repo replace vault note", "item_id", item.ID, "error", err)
		return goerror.NewServer(err)
	}

	s.recordAccess(ctx, clm.UserID, auditentity.ActionVaultAccess, in.Origin, in.UserAgent, map[string]any{
		"op":      "update",
		"kind":    entity.ItemKindNote.String(),
		"item_id": item.ID,
	})

	return nil
}
