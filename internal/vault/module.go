package vault

import (
	"github.com/jackc/pgx/v5/pgxpool"
	audituc "github.com/zelyonkin/dashkeep/internal/audit/usecase"
	"github.com/zelyonkin/dashkeep/internal/pkg/clock"
	"github.com/zelyonkin/dashkeep/internal/pkg/config"
	"github.com/zelyonkin/dashkeep/internal/pkg/instrument"
	"github.com/zelyonkin/dashkeep/internal/pkg/router"
	"github.com/zelyonkin/dashkeep/internal/pkg/storage"
	"github.com/zelyonkin/dashkeep/internal/pkg/uid"
	"github.com/zelyonkin/dashkeep/internal/pkg/validator"
	"github.com/zelyonkin/dashkeep/internal/pkg/vaultcrypt"
	"github.com/zelyonkin/dashkeep/internal/vault/inbound"
	"github.com/zelyonkin/dashkeep/internal/vault/outbound/db"
	"github.com/zelyonkin/dashkeep/internal/vault/usecase"
)

type Dependency struct {
	DBConn     *pgxpool.Pool              `validate:"required"`
	Audit      *audituc.Usecase           `validate:"required"`
	Cipher     *vaultcrypt.Cipher         `validate:"required"`
	Storage    storage.Storage            `validate:"required"`
	Router     *router.Router             `validate:"required"`
	Config     config.Config              `validate:"required"`
	Instrument instrument.Instrumentation `validate:"required"`
	UID        uid.NumberID               `validate:"required"`
	UUID       uid.StringID               `validate:"required"`
	Clock      clock.Clocker              `validate:"required"`
	Validator  validator.Validator        `validate:"required"`
}

func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	dbVault := db.NewDB(dep.DBConn, dep.Instrument)

	uc := usecase.New(usecase.Dependency{
		RepoDB:     dbVault,
		Audit:      dep.Audit,
		Cipher:     dep.Cipher,
		Storage:    dep.Storage,
		Validator:  dep.Validator,
		Config:     dep.Config,
		UID:        dep.UID,
		UUID:       dep.UUID,
		Clock:      dep.Clock,
		Instrument: dep.Instrument,
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc)

	return nil
}
