package usecase

import (
	"context"

	"github.com/zelyonkin/dashkeep/internal/pkg/clock"
	"github.com/zelyonkin/dashkeep/internal/pkg/config"
	"github.com/zelyonkin/dashkeep/internal/pkg/instrument"
	"github.com/zelyonkin/dashkeep/internal/pkg/mail"
	"github.com/zelyonkin/dashkeep/internal/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

type repoDB interface {
	GetIdentityEmail(ctx context.Context, identityID int64) (string, error)
}

type repoMail interface {
	Send(ctx context.Context, msg mail.Message) error
}

type Usecase struct {
	repoDB    repoDB
	repoMail  repoMail
	validator validator.Validator
	cfg       config.Config
	clock     clock.Clocker
	ins       instrument.Instrumentation
}

type Dependency struct {
	RepoDB     repoDB
	RepoMail   repoMail
	Validator  validator.Validator
	Config     config.Config
	Clock      clock.Clocker
	Instrument instrument.Instrumentation
}

func New(dep Dependency) *Usecase {
	return &Usecase{
		repoDB:    dep.RepoDB,
		repoMail:  dep.RepoMail,
		validator: dep.Validator,
		cfg:       dep.Config,
		clock:     dep.Clock,
		ins:       dep.Instrument,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("alert.usecase").Start(ctx, name)
}
