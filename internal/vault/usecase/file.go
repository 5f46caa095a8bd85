package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	auditentity "github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
	"github.com/zelyonkin/dashkeep/internal/pkg/storage"
	"github.com/zelyonkin/dashkeep/internal/pkg/vaultcrypt"
	"github.com/zelyonkin/dashkeep/internal/vault/entity"
)

type FileUploadInput struct {
	Name        string `validate:"required,max=255"`
	ContentType string
	File        io.Reader
	Origin      string
	UserAgent   string
}

type FileUploadOutput struct {
	ID int64
}

func (s *Usecase) FileUpload(ctx context.Context, in FileUploadInput) (*FileUploadOutput, error) {
	ctx, span := s.startSpan(ctx, "FileUpload")
	defer span.End()

	clm, err := s.authenticatedIdentity(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}
	if in.File == nil {
		return nil, goerror.NewInvalidInput(nil, "file", "file is required")
	}

	maxSize := s.cfg.GetInt64("vault.file_max_size_bytes")
	plain, err := io.ReadAll(io.LimitReader(in.File, maxSize+1))
	if err != nil {
		slog.ErrorContext(ctx, "failed to read vault upload", "error", err)
		return nil, goerror.NewServer(err)
	}
	if int64(len(plain)) > maxSize {
		return nil, goerror.NewInvalidInput(nil, "file", "file exceeds max size")
	}

	env, err := s.cipher.EncryptBytes(plain)
	if err != nil {
		slog.ErrorContext(ctx, "failed to seal vault file", "error", err)
		return nil, goerror.NewServer(err)
	}

	bucket := strings.TrimSpace(s.cfg.GetString("vault.file_bucket"))
	key := fmt.Sprintf("%d/%s", clm.UserID, s.uuid.Generate())

	// only the sealed bytes ever leave the process
	_, err = s.storage.PutObject(ctx, bucket, key, bytes.NewReader(env.Ciphertext), storage.PutOptions{
		Size:        int64(len(env.Ciphertext)),
		ContentType: "application/octet-stream",
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to upload vault blob", "error", err)
		return nil, goerror.NewServer(err)
	}

	now := s.clock.Now()
	item := entity.Item{
		ID:          s.uid.Generate(),
		IdentityID:  clm.UserID,
		Kind:        entity.ItemKindFile,
		Name:        in.Name,
		IV:          base64.StdEncoding.EncodeToString(env.IV),
		Tag:         base64.StdEncoding.EncodeToString(env.Tag),
		StorageKey:  key,
		ContentType: in.ContentType,
		Size:        int64(len(plain)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repoDB.CreateItem(ctx, item); err != nil {
		slog.ErrorContext(ctx, "failed to repo create vault file", "error", err)

		if dErr := s.storage.DeleteObject(ctx, bucket, key); dErr != nil {
			slog.WarnContext(ctx, "failed to delete orphaned vault blob", "key", key, "error", dErr)
		}
		return nil, goerror.NewServer(err)
	}

	s.recordAccess(ctx, clm.UserID, auditentity.ActionFileUpload, in.Origin, in.UserAgent, map[string]any{
		"item_id": item.ID,
		"name":    item.Name,
		"size":    item.Size,
	})

	return &FileUploadOutput{ID: item.ID}, nil
}

type FileDownloadInput struct {
	ID        int64 `validate:"required"`
	Origin    string
	UserAgent string
}

type FileDownloadOutput struct {
	ID          int64
	Name        string
	ContentType string
	Content     []byte
	UpdatedAt   time.Time
}

func (s *Usecase) FileDownload(ctx context.Context, in FileDownloadInput) (*FileDownloadOutput, error) {
	ctx, span := s.startSpan(ctx, "FileDownload")
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
	if item.Kind != entity.ItemKindFile {
		return nil, goerror.NewBusiness("vault item not found", goerror.CodeNotFound)
	}

	bucket := strings.TrimSpace(s.cfg.GetString("vault.file_bucket"))
	obj, _, err := s.storage.GetObject(ctx, bucket, item.StorageKey, storage.GetOptions{})
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch vault blob", "item_id", item.ID, "error", err)
		return nil, goerror.NewServer(err)
	}
	defer func() {
		if cErr := obj.Close(); cErr != nil {
			slog.WarnContext(ctx, "failed to close vault blob reader", "item_id", item.ID, "error", cErr)
		}
	}()

	ciphertext, err := io.ReadAll(obj)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read vault blob", "item_id", item.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	iv, err := base64.StdEncoding.DecodeString(item.IV)
	if err != nil {
		return nil, openError(ctx, item.ID, vaultcrypt.ErrMalformedEnvelope)
	}
	tag, err := base64.StdEncoding.DecodeString(item.Tag)
	if err != nil {
		return nil, openError(ctx, item.ID, vaultcrypt.ErrMalformedEnvelope)
	}

	plain, err := s.cipher.DecryptBytes(vaultcrypt.Envelope{Ciphertext: ciphertext, IV: iv, Tag: tag})
	if err != nil {
		return nil, openError(ctx, item.ID, err)
	}

	s.recordAccess(ctx, clm.UserID, auditentity.ActionVaultAccess, in.Origin, in.UserAgent, map[string]any{
		"op":      "read",
		"kind":    entity.ItemKindFile.String(),
		"item_id": item.ID,
	})

	return &FileDownloadOutput{
		ID:          item.ID,
		Name:        item.Name,
		ContentType: item.ContentType,
		Content:     plain,
		UpdatedAt:   item.UpdatedAt,
	}, nil
}
