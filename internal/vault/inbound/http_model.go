package inbound

import "time"

type ItemResponse struct {
	ID          int64     `json:"id,string"`
	Kind        string    `json:"kind"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ItemListResponse struct {
	Items []ItemResponse `json:"items"`
	total int64
	page  int32
	size  int32
}

func (r ItemListResponse) Meta() map[string]any {
	return map[string]any{
		"total": r.total,
		"page":  r.page,
		"size":  r.size,
	}
}

type NoteCreateRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type NoteCreateResponse struct {
	ID int64 `json:"id,string"`
}

type NoteUpdateRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type NoteResponse struct {
	ID        int64     `json:"id,string"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

type FileUploadResponse struct {
	ID int64 `json:"id,string"`
}

type FileResponse struct {
	ID          int64     `json:"id,string"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Content     []byte    `json:"content"` // base64 by encoding/json
	UpdatedAt   time.Time `json:"updated_at"`
}
