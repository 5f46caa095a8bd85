package entity

import "time"

// ItemKind distinguishes how an item's ciphertext is stored.
type ItemKind int16

const (
	ItemKindUnknown ItemKind = 0

	// ItemKindNote mean the ciphertext lives in the database row.
	ItemKindNote ItemKind = 1

	// ItemKindFile mean the ciphertext lives in object storage and the
	// row only carries the envelope parameters and the object key.
	ItemKindFile ItemKind = 2
)

func (k ItemKind) String() string {
	switch k {
	case ItemKindNote:
		return "note"
	case ItemKindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Item is one vault entry. Payload, IV and Tag are base64 encoded; on
// edit the whole envelope is replaced, never patched.
type Item struct {
	ID          int64
	IdentityID  int64
	Kind        ItemKind
	Name        string
	Payload     string // ciphertext for notes, empty for files
	IV          string
	Tag         string
	StorageKey  string // object key for files, empty for notes
	ContentType string
	Size        int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemInfo is a listing row without any secret material.
type ItemInfo struct {
	ID          int64
	Kind        ItemKind
	Name        string
	ContentType string
	Size        int64
	UpdatedAt   time.Time
}
