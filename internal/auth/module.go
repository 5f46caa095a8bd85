package auth

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zelyonkin/dashkeep/internal/auth/inbound"
	"github.com/zelyonkin/dashkeep/internal/auth/outbound/db"
	"github.com/zelyonkin/dashkeep/internal/auth/usecase"
	audituc "github.com/zelyonkin/dashkeep/internal/audit/usecase"
	"github.com/zelyonkin/dashkeep/internal/pkg/bruteforce"
	"github.com/zelyonkin/dashkeep/internal/pkg/clock"
	"github.com/zelyonkin/dashkeep/internal/pkg/config"
	"github.com/zelyonkin/dashkeep/internal/pkg/hash"
	"github.com/zelyonkin/dashkeep/internal/pkg/instrument"
	"github.com/zelyonkin/dashkeep/internal/pkg/jwt"
	"github.com/zelyonkin/dashkeep/internal/pkg/mfa"
	"github.com/zelyonkin/dashkeep/internal/pkg/otp"
	"github.com/zelyonkin/dashkeep/internal/pkg/router"
	"github.com/zelyonkin/dashkeep/internal/pkg/uid"
	"github.com/zelyonkin/dashkeep/internal/pkg/validator"
)

type Dependency struct {
	DBConn          *pgxpool.Pool              `validate:"required"`
	Audit           *audituc.Usecase           `validate:"required"`
	Guard           *bruteforce.Guard          `validate:"required"`
	Router          *router.Router             `validate:"required"`
	Config          config.Config              `validate:"required"`
	Instrument      instrument.Instrumentation `validate:"required"`
	UID             uid.NumberID               `validate:"required"`
	OID             uid.StringID               `validate:"required"`
	HMAC            hash.Hash                  `validate:"required"`
	Bcrypt          hash.Hash                  `validate:"required"`
	Argon2ID        hash.Hash                  `validate:"required"`
	MFAEncryptor    mfa.Encryptor              `validate:"required"`
	MFARecoveryCode mfa.RecoveryCodeGenerator  `validate:"required"`
	Clock           clock.Clocker              `validate:"required"`
	Totp            otp.OTP                    `validate:"required"`
	Validator       validator.Validator        `validate:"required"`
	JWT             jwt.JWT                    `validate:"required"`
}

func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	dbAuth := db.NewDB(dep.DBConn, dep.Instrument)

	uc := usecase.New(usecase.Dependency{
		RepoDB:          dbAuth,
		Audit:           dep.Audit,
		Guard:           dep.Guard,
		Validator:       dep.Validator,
		Config:          dep.Config,
		HMAC:            dep.HMAC,
		Bcrypt:          dep.Bcrypt,
		Argon2ID:        dep.Argon2ID,
		MFAEncryptor:    dep.MFAEncryptor,
		MFARecoveryCode: dep.MFARecoveryCode,
		UID:             dep.UID,
		OID:             dep.OID,
		Totp:            dep.Totp,
		Clock:           dep.Clock,
		JWT:             dep.JWT,
		Instrument:      dep.Instrument,
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc)

	return nil
}
