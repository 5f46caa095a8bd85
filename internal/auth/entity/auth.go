package entity

import (
	"time"

	"github.com/zelyonkin/dashkeep/internal/pkg/hash"
	"github.com/zelyonkin/dashkeep/internal/pkg/valueobject"
)

// CredentialKind tags how a stored credential must be compared.
type CredentialKind int16

const (
	// CredentialUnknown mean the stored value is empty or unusable.
	CredentialUnknown CredentialKind = 0

	// CredentialHashed mean the stored value is a bcrypt hash.
	CredentialHashed CredentialKind = 1

	// CredentialLegacy mean the stored value is a raw pre-migration password.
	// Verification upgrades it to bcrypt on first successful login.
	CredentialLegacy CredentialKind = 2
)

// Credential is a stored password resolved to an explicit variant at load,
// so callers never re-guess the format downstream.
type Credential struct {
	Kind  CredentialKind
	Value string
}

// ParseCredential classifies a stored password value.
func ParseCredential(stored string) Credential {
	if stored == "" {
		return Credential{Kind: CredentialUnknown}
	}
	if hash.IsBcrypt(stored) {
		return Credential{Kind: CredentialHashed, Value: stored}
	}
	return Credential{Kind: CredentialLegacy, Value: stored}
}

type Identity struct {
	ID          int64
	Email       string
	DisplayName string
	Role        string
	Status      IdentityStatus
}

type TOTPFactor struct {
	ID         int64
	IdentityID int64
	Secret     []byte // encrypted at rest
	KeyVersion int16
	Verified   bool
	LastUsedAt *time.Time
}

type BackupCode struct {
	ID         int64
	IdentityID int64
	CodeHash   string
}

type Challenge struct {
	ID         int64
	IdentityID int64
	Token      string
	Purpose    ChallengePurpose
	ExpiresAt  time.Time
	Metadata   valueobject.JSONMap
}

type RefreshToken struct {
	ID         int64
	IdentityID int64
	Token      string
	ExpiresAt  time.Time
}

// ---- //

type IdentityLoginInfo struct {
	ID          int64
	Email       string
	DisplayName string
	Role        string
	Status      IdentityStatus
	Password    string
	HasTOTP     bool
}

type IdentityCredentialInfo struct {
	ID       int64
	Email    string
	Role     string
	Status   IdentityStatus
	Password string
}

type ChallengeIdentity struct {
	ChallengeID       int64
	ChallengePurpose  ChallengePurpose
	ChallengeExpires  time.Time
	ChallengeMetadata valueobject.JSONMap
	IdentityID        int64
	IdentityEmail     string
	IdentityRole      string
	IdentityStatus    IdentityStatus
}

type IdentityRefreshToken struct {
	IdentityID               int64
	IdentityEmail            string
	IdentityRole             string
	IdentityStatus           IdentityStatus
	RefreshID                int64
	RefreshToken             string
	RefreshRevoked           bool
	RefreshReplacedByTokenID *int64
	RefreshExpiresAt         time.Time
}

type RotateRefreshToken struct {
	NewID        int64
	OldID        int64
	IdentityID   int64
	NewToken     string
	NewExpiresAt time.Time
}
