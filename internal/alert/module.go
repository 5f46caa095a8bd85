package alert

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zelyonkin/dashkeep/internal/alert/inbound"
	"github.com/zelyonkin/dashkeep/internal/alert/outbound/db"
	"github.com/zelyonkin/dashkeep/internal/alert/outbound/email"
	"github.com/zelyonkin/dashkeep/internal/alert/usecase"
	"github.com/zelyonkin/dashkeep/internal/pkg/clock"
	"github.com/zelyonkin/dashkeep/internal/pkg/config"
	"github.com/zelyonkin/dashkeep/internal/pkg/goroutine"
	"github.com/zelyonkin/dashkeep/internal/pkg/instrument"
	"github.com/zelyonkin/dashkeep/internal/pkg/mail"
	"github.com/zelyonkin/dashkeep/internal/pkg/messaging"
	"github.com/zelyonkin/dashkeep/internal/pkg/uid"
	"github.com/zelyonkin/dashkeep/internal/pkg/validator"
)

type Dependency struct {
	Ctx        context.Context
	DBConn     *pgxpool.Pool              `validate:"required"`
	Messaging  messaging.Messaging        `validate:"required"`
	Mail       mail.Mail                  `validate:"required"`
	Goroutine  *goroutine.Manager         `validate:"required"`
	Config     config.Config              `validate:"required"`
	Instrument instrument.Instrumentation `validate:"required"`
	UUID       uid.StringID               `validate:"required"`
	Clock      clock.Clocker              `validate:"required"`
	Validator  validator.Validator        `validate:"required"`
}

func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	dbAlert := db.NewDB(dep.DBConn, dep.Instrument)
	repoMail := email.New(dep.Mail, dep.Instrument)

	uc := usecase.New(usecase.Dependency{
		RepoDB:     dbAlert,
		RepoMail:   repoMail,
		Validator:  dep.Validator,
		Config:     dep.Config,
		Clock:      dep.Clock,
		Instrument: dep.Instrument,
	})

	if dep.Ctx != nil {
		inbound.RegisterMQConsumer(dep.Ctx, dep.Config, dep.Goroutine, dep.Messaging, dep.UUID, uc, dep.Instrument)
	}

	return nil
}
