package app

import (
	"log/slog"
	"os"

	"github.com/zelyonkin/dashkeep/internal/alert"
	"github.com/zelyonkin/dashkeep/internal/audit"
	"github.com/zelyonkin/dashkeep/internal/auth"
	"github.com/zelyonkin/dashkeep/internal/vault"
)

func (a *App) initModules() {
	auditUC, err := audit.New(audit.Dependency{
		DBConn:     a.dbConn,
		Goroutine:  a.goroutine,
		Enforcer:   a.casbin,
		Router:     a.router,
		Messaging:  a.messaging,
		Config:     a.config,
		Instrument: a.ins,
		UID:        a.uid,
		Clock:      a.clock,
		Validator:  a.validator,
	})
	if err != nil {
		slog.Error("failed to init module audit", "error", err)
		os.Exit(1)
	}

	if err := auth.New(auth.Dependency{
		DBConn:          a.dbConn,
		Audit:           auditUC,
		Guard:           a.guard,
		Router:          a.router,
		Config:          a.config,
		Instrument:      a.ins,
		UID:             a.uid,
		OID:             a.oid,
		HMAC:            a.hmac,
		Bcrypt:          a.bcrypt,
		Argon2ID:        a.argon2id,
		MFAEncryptor:    a.mfaEncryptor,
		MFARecoveryCode: a.mfaRecoveryCode,
		Clock:           a.clock,
		Totp:            a.totp,
		Validator:       a.validator,
		JWT:             a.jwt,
	}); err != nil {
		slog.Error("failed to init module auth", "error", err)
		os.Exit(1)
	}

	if err := vault.New(vault.Dependency{
		DBConn:     a.dbConn,
		Audit:      auditUC,
		Cipher:     a.vaultCipher,
		Storage:    a.storage,
		Router:     a.router,
		Config:     a.config,
		Instrument: a.ins,
		UID:        a.uid,
		UUID:       a.uuid,
		Clock:      a.clock,
		Validator:  a.validator,
	}); err != nil {
		slog.Error("failed to init module vault", "error", err)
		os.Exit(1)
	}

	if a.config.GetBool("modules.alert.enabled") {
		if err := alert.New(alert.Dependency{
			Ctx:        a.ctx,
			DBConn:     a.dbConn,
			Messaging:  a.messaging,
			Mail:       a.mail,
			Goroutine:  a.goroutine,
			Config:     a.config,
			Instrument: a.ins,
			UUID:       a.uuid,
			Clock:      a.clock,
			Validator:  a.validator,
		}); err != nil {
			slog.Error("failed to init module alert", "error", err)
			os.Exit(1)
		}
	}
}
