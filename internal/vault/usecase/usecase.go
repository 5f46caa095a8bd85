package usecase

import (
	"context"
	"errors"
	"log/slog"

	auditentity "github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/clock"
	"github.com/zelyonkin/dashkeep/internal/pkg/config"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
	"github.com/zelyonkin/dashkeep/internal/pkg/instrument"
	"github.com/zelyonkin/dashkeep/internal/pkg/jwt"
	"github.com/zelyonkin/dashkeep/internal/pkg/storage"
	"github.com/zelyonkin/dashkeep/internal/pkg/uid"
	"github.com/zelyonkin/dashkeep/internal/pkg/validator"
	"github.com/zelyonkin/dashkeep/internal/pkg/vaultcrypt"
	"github.com/zelyonkin/dashkeep/internal/vault/entity"
	"go.opentelemetry.io/otel/trace"
)

type repoDB interface {
	CreateItem(ctx context.Context, item entity.Item) error
	GetItem(ctx context.Context, id, identityID int64) (*entity.Item, error)
	GetItemList(ctx context.Context, identityID int64, page, size int32) ([]entity.ItemInfo, int64, error)
	ReplaceItemEnvelope(ctx context.Context, item entity.Item) error
	DeleteItem(ctx context.Context, id, identityID int64) error
}

// auditor records security events. Implementations must never fail the caller.
type auditor interface {
	Record(ctx context.Context, rec auditentity.Record)
}

type Usecase struct {
	repoDB    repoDB
	audit     auditor
	cipher    *vaultcrypt.Cipher
	storage   storage.Storage
	validator validator.Validator
	cfg       config.Config
	uid       uid.NumberID
	uuid      uid.StringID
	clock     clock.Clocker
	ins       instrument.Instrumentation
}

type Dependency struct {
	RepoDB     repoDB
	Audit      auditor
	Cipher     *vaultcrypt.Cipher
	Storage    storage.Storage
	Validator  validator.Validator
	Config     config.Config
	UID        uid.NumberID
	UUID       uid.StringID
	Clock      clock.Clocker
	Instrument instrument.Instrumentation
}

func New(dep Dependency) *Usecase {
	return &Usecase{
		repoDB:    dep.RepoDB,
		audit:     dep.Audit,
		cipher:    dep.Cipher,
		storage:   dep.Storage,
		validator: dep.Validator,
		cfg:       dep.Config,
		uid:       dep.UID,
		uuid:      dep.UUID,
		clock:     dep.Clock,
		ins:       dep.Instrument,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("vault.usecase").Start(ctx, name)
}

func (s *Usecase) authenticatedIdentity(ctx context.Context) (*jwt.Claims, error) {
	clm := jwt.GetAuth(ctx)
	if clm == nil {
		return nil, goerror.NewBusiness("authentication required", goerror.CodeUnauthorized)
	}
	return clm, nil
}

// getOwnedItem loads an item scoped to the caller. A row owned by someone
// else is indistinguishable from a missing one.
func (s *Usecase) getOwnedItem(ctx context.Context, id, identityID int64) (*entity.Item, error) {
	item, err := s.repoDB.GetItem(ctx, id, identityID)
	if errors.Is(err, goerror.ErrNotFound) {
		return nil, goerror.NewBusiness("vault item not found", goerror.CodeNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to repo get vault item", "item_id", id, "error", err)
		return nil, goerror.NewServer(err)
	}
	return item, nil
}

// openError maps cipher failures: tampered envelopes read as unopenable,
// never as server faults.
func openError(ctx context.Context, itemID int64, err error) error {
	if errors.Is(err, vaultcrypt.ErrIntegrity) || errors.Is(err, vaultcrypt.ErrMalformedEnvelope) {
		slog.WarnContext(ctx, "vault envelope failed integrity check", "item_id", itemID)
		return goerror.NewBusiness("cannot open vault item", goerror.CodeInvalidFormat)
	}

	slog.ErrorContext(ctx, "failed to open vault envelope", "item_id", itemID, "error", err)
	return goerror.NewServer(err)
}

func (s *Usecase) recordAccess(ctx context.Context, identityID int64, action auditentity.Action, origin, userAgent string, detail map[string]any) {
	s.audit.Record(ctx, auditentity.Record{
		IdentityID: identityID,
		Action:     action,
		Origin:     origin,
		UserAgent:  userAgent,
		Detail:     detail,
	})
}
