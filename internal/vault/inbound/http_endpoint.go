package inbound

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
	"github.com/zelyonkin/dashkeep/internal/pkg/router"
	"github.com/zelyonkin/dashkeep/internal/vault/usecase"
)

// HTTPEndpoint exposes HTTP handlers for the encrypted vault.
type HTTPEndpoint struct {
	uc uc
}

// ItemList lists the current user's vault items.
// @Summary List vault items
// @Description Returns metadata for the user's vault items. Secret material is never included.
// @Tags Vault
// @Security BearerAuth
// @Produce json
// @Param size query int false "Pagination size"
// @Param page query int false "Pagination page"
// @Success 200 {object} router.successResponse{data=ItemListResponse} "Item list"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/vault/items [get]
func (h *HTTPEndpoint) ItemList(r *router.Request) (any, error) {
	size, err := r.GetQueryInt32("size")
	if err != nil {
		return nil, err
	}

	page, err := r.GetQueryInt32("page")
	if err != nil {
		return nil, err
	}

	resp, err := h.uc.ItemList(r.Context(), usecase.ItemListInput{
		Page: page,
		Size: size,
	})
	if err != nil {
		return nil, err
	}

	items := make([]ItemResponse, 0, len(resp.Items))
	for _, item := range resp.Items {
		items = append(items, ItemResponse{
			ID:          item.ID,
			Kind:        item.Kind,
			Name:        item.Name,
			ContentType: item.ContentType,
			Size:        item.Size,
			UpdatedAt:   item.UpdatedAt,
		})
	}

	return ItemListResponse{
		total: resp.Total,
		page:  resp.Page,
		size:  resp.Size,
		Items: items,
	}, nil
}

// ItemDelete removes a vault item and, for files, its stored blob.
// @Summary Delete vault item
// @Tags Vault
// @Security BearerAuth
// @Param id path int true "Item ID"
// @Success 204 "No Content"
// @Failure 400 {object} router.errorResponse "Invalid path parameter"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 404 {object} router.errorResponse "Item not found"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/vault/items/{id} [delete]
func (h *HTTPEndpoint) ItemDelete(r *router.Request) (any, error) {
	id, err := r.GetParamInt64("id")
	if err != nil {
		return nil, err
	}

	return nil, h.uc.ItemDelete(r.Context(), usecase.ItemDeleteInput{
		ID:        id,
		Origin:    r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
}

// NoteCreate stores an encrypted text secret.
// @Summary Create vault note
// @Description Encrypts the note content and stores only the sealed envelope.
// @Tags Vault
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body NoteCreateRequest true "Note payload"
// @Success 200 {object} router.successResponse{data=NoteCreateResponse} "Created note"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/vault/notes [post]
func (h *HTTPEndpoint) NoteCreate(r *router.Request) (any, error) {
	var req NoteCreateRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	resp, err := h.uc.NoteCreate(r.Context(), usecase.NoteCreateInput{
		Name:      req.Name,
		Content:   req.Content,
		Origin:    r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		return nil, err
	}

	return NoteCreateResponse{ID: resp.ID}, nil
}

// NoteGet decrypts and returns one note.
// @Summary Get vault note
// @Description Opens the note's envelope and returns the plaintext. A tampered envelope is reported as unopenable.
// @Tags Vault
// @Security BearerAuth
// @Produce json
// @Param id path int true "Note ID"
// @Success 200 {object} router.successResponse{data=NoteResponse} "Decrypted note"
// @Failure 400 {object} router.errorResponse "Cannot open note"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 404 {object} router.errorResponse "Note not found"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/vault/notes/{id} [get]
func (h *HTTPEndpoint) NoteGet(r *router.Request) (any, error) {
	id, err := r.GetParamInt64("id")
	if err != nil {
		return nil, err
	}

	resp, err := h.uc.NoteGet(r.Context(), usecase.NoteGetInput{
		ID:        id,
		Origin:    r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		return nil, err
	}

	return NoteResponse{
		ID:        resp.ID,
		Name:      resp.Name,
		Content:   resp.Content,
		UpdatedAt: resp.UpdatedAt,
	}, nil
}

// NoteUpdate replaces a note's envelope with a freshly sealed one.
// @Summary Update vault note
// @Tags Vault
// @Security BearerAuth
// @Accept json
// @Param id path int true "Note ID"
// @Param request body NoteUpdateRequest true "Note payload"
// @Success 204 "No Content"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 404 {object} router.errorResponse "Note not found"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/vault/notes/{id} [put]
func (h *HTTPEndpoint) NoteUpdate(r *router.Request) (any, error) {
	id, err := r.GetParamInt64("id")
	if err != nil {
		return nil, err
	}

	var req NoteUpdateRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	return nil, h.uc.NoteUpdate(r.Context(), usecase.NoteUpdateInput{
		ID:        id,
		Name:      req.Name,
		Content:   req.Content,
		Origin:    r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
}

// FileUpload encrypts and stores a file blob.
// @Summary Upload vault file
// @Description Encrypts the uploaded file and stores only the sealed blob in object storage.
// @Tags Vault
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param name query string true "Display name"
// @Param file formData file true "File content"
// @Success 200 {object} router.successResponse{data=FileUploadResponse} "Created file"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/vault/files [post]
func (h *HTTPEndpoint) FileUpload(r *router.Request) (any, error) {
	ctx := r.Context()

	file, err := r.StreamSingleFile("file")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.ErrorContext(ctx, "failed to close file", "error", err)
		}
	}()

	head := make([]byte, 512)
	n, err := file.Read(head)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, goerror.NewInvalidFormat()
	}

	resp, err := h.uc.FileUpload(ctx, usecase.FileUploadInput{
		Name:        r.GetQuery("name"),
		ContentType: http.DetectContentType(head[:n]),
		File:        io.MultiReader(bytes.NewReader(head[:n]), file),
		Origin:      r.RemoteAddr,
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		return nil, err
	}

	return FileUploadResponse{ID: resp.ID}, nil
}

// FileDownload decrypts and returns one file.
// @Summary Download vault file
// @Description Fetches the sealed blob, opens it and returns the plaintext base64 encoded.
// @Tags Vault
// @Security BearerAuth
// @Produce json
// @Param id path int true "File ID"
// @Success 200 {object} router.successResponse{data=FileResponse} "Decrypted file"
// @Failure 400 {object} router.errorResponse "Cannot open file"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 404 {object} router.errorResponse "File not found"
// @Failure 500 {object} router.errorResponse "Internal server error"
// @Router /api/v1/vault/files/{id} [get]
func (h *HTTPEndpoint) FileDownload(r *router.Request) (any, error) {
	id, err := r.GetParamInt64("id")
	if err != nil {
		return nil, err
	}

	resp, err := h.uc.FileDownload(r.Context(), usecase.FileDownloadInput{
		ID:        id,
		Origin:    r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		return nil, err
	}

	return FileResponse{
		ID:          resp.ID,
		Name:        resp.Name,
		ContentType: resp.ContentType,
		Content:     resp.Content,
		UpdatedAt:   resp.UpdatedAt,
	}, nil
}
