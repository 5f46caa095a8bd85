package inbound

import (
	"context"

	"github.com/zelyonkin/dashkeep/internal/pkg/router"
	"github.com/zelyonkin/dashkeep/internal/vault/usecase"
)

type uc interface {
	ItemList(ctx context.Context, in usecase.ItemListInput) (*usecase.ItemListOutput, error)
	ItemDelete(ctx context.Context, in usecase.ItemDeleteInput) error

	NoteCreate(ctx context.Context, in usecase.NoteCreateInput) (*usecase.NoteCreateOutput, error)
	NoteGet(ctx context.Context, in usecase.NoteGetInput) (*usecase.NoteGetOutput, error)
	NoteUpdate(ctx context.Context, in usecase.NoteUpdateInput) error

	FileUpload(ctx context.Context, in usecase.FileUploadInput) (*usecase.FileUploadOutput, error)
	FileDownload(ctx context.Context, in usecase.FileDownloadInput) (*usecase.FileDownloadOutput, error)
}

func RegisterHTTPEndpoint(r *router.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	r.GET("/api/v1/vault/items", end.ItemList)
	r.DELETE("/api/v1/vault/items/:id", end.ItemDelete)

	r.POST("/api/v1/vault/notes", end.NoteCreate)
	r.GET("/api/v1/vault/notes/:id", end.NoteGet)
	r.PUT("/api/v1/vault/notes/:id", end.NoteUpdate)

	r.POST("/api/v1/vault/files", end.FileUpload)
	r.GET("/api/v1/vault/files/:id", end.FileDownload)
}
