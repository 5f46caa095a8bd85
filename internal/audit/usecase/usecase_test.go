package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/config"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
	"github.com/zelyonkin/dashkeep/internal/pkg/goroutine"
	"github.com/zelyonkin/dashkeep/internal/pkg/instrument"
	"github.com/zelyonkin/dashkeep/internal/pkg/jwt"
	"github.com/zelyonkin/dashkeep/internal/pkg/validator"
)

type fakeRepo struct {
	createEventFn    func(e entity.Event) error
	getEventListFn   func(filter entity.QueryFilter) ([]entity.Event, int64, error)
	getEventExportFn func(filter entity.ExportFilter, limit int32) ([]entity.Event, error)

	created chan entity.Event
}

func (f *fakeRepo) CreateEvent(_ context.Context, e entity.Event) error {
	var err error
	if f.createEventFn != nil {
		err = f.createEventFn(e)
	}
	if f.created != nil {
		f.created <- e
	}
	return err
}

func (f *fakeRepo) GetEventList(_ context.Context, filter entity.QueryFilter) ([]entity.Event, int64, error) {
	if f.getEventListFn == nil {
		return nil, 0, nil
	}
	return f.getEventListFn(filter)
}

func (f *fakeRepo) GetEventExport(_ context.Context, filter entity.ExportFilter, limit int32) ([]entity.Event, error) {
	if f.getEventExportFn == nil {
		return nil, nil
	}
	return f.getEventExportFn(filter, limit)
}

type fakeMessaging struct {
	publishFn func(e entity.Event) error
	published chan entity.Event
}

func (f *fakeMessaging) PublishSecurityEvent(_ context.Context, e entity.Event) error {
	var err error
	if f.publishFn != nil {
		err = f.publishFn(e)
	}
	if f.published != nil {
		f.published <- e
	}
	return err
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

type seqNumberID struct {
	next int64
}

func (s *seqNumberID) Generate() int64 {
	s.next++
	return s.next
}

type fakeConfig struct {
	config.Config
}

const testModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

func newTestUsecase(t *testing.T, repo *fakeRepo, msg *fakeMessaging) *Usecase {
	t.Helper()

	v10, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}

	m, err := model.NewModelFromString(testModel)
	if err != nil {
		t.Fatalf("failed to build casbin model: %v", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		t.Fatalf("failed to build casbin enforcer: %v", err)
	}
	if _, err := enforcer.AddPolicy("admin", "audit", "read"); err != nil {
		t.Fatalf("failed to add policy: %v", err)
	}
	if _, err := enforcer.AddPolicy("admin", "audit", "export"); err != nil {
		t.Fatalf("failed to add policy: %v", err)
	}

	return New(Dependency{
		RepoDB:        repo,
		RepoMessaging: msg,
		Validator:     v10,
		Config:        fakeConfig{},
		UID:           &seqNumberID{},
		Clock:         &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		Instrument:    instrument.NewNoop(),
		Enforcer:      enforcer,
		Goroutine:     goroutine.NewManager(10),
	})
}

func adminCtx() context.Context {
	return jwt.SetAuth(context.Background(), jwt.Claims{
		UserID:    1,
		UserEmail: "root@example.com",
		UserRole:  "admin",
	})
}

func awaitEvent(t *testing.T, ch chan entity.Event) entity.Event {
	t.Helper()

	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the detached audit write")
		return entity.Event{}
	}
}

// ---------------------------------------------------------------------
// Record
// ---------------------------------------------------------------------

func TestRecord(t *testing.T) {
	t.Run("persists and publishes the event", func(t *testing.T) {
		repo := &fakeRepo{created: make(chan entity.Event, 1)}
		msg := &fakeMessaging{published: make(chan entity.Event, 1)}
		uc := newTestUsecase(t, repo, msg)

		uc.Record(context.Background(), entity.Record{
			IdentityID: 7,
			Action:     entity.ActionLogin,
			Origin:     "203.0.113.10",
			UserAgent:  "curl/8.0",
			Detail:     map[string]any{"mfa": false},
		})

		stored := awaitEvent(t, repo.created)
		if stored.ID == 0 {
			t.Fatalf("event was not assigned an id")
		}
		if stored.IdentityID != 7 || stored.Action != entity.ActionLogin {
			t.Fatalf("unexpected event %+v", stored)
		}
		if stored.OccurredAt.IsZero() {
			t.Fatalf("event was not timestamped")
		}

		published := awaitEvent(t, msg.published)
		if published.ID != stored.ID {
			t.Fatalf("published a different event: %d vs %d", published.ID, stored.ID)
		}
	})

	t.Run("unknown action is dropped", func(t *testing.T) {
		repo := &fakeRepo{created: make(chan entity.Event, 1)}
		msg := &fakeMessaging{published: make(chan entity.Event, 1)}
		uc := newTestUsecase(t, repo, msg)

		uc.Record(context.Background(), entity.Record{
			IdentityID: 7,
			Action:     entity.Action("made_up"),
		})

		select {
		case e := <-repo.created:
			t.Fatalf("unknown action was persisted: %+v", e)
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("a failed write never reaches the caller", func(t *testing.T) {
		repo := &fakeRepo{created: make(chan entity.Event, 1)}
		msg := &fakeMessaging{published: make(chan entity.Event, 1)}
		repo.createEventFn = func(entity.Event) error {
			return errors.New("connection refused")
		}
		uc := newTestUsecase(t, repo, msg)

		// Record has no error return; the write failure must not panic and
		// must not stop the publish.
		uc.Record(context.Background(), entity.Record{
			IdentityID: 7,
			Action:     entity.ActionLogout,
		})

		awaitEvent(t, repo.created)
		awaitEvent(t, msg.published)
	})

	t.Run("outlives a canceled request context", func(t *testing.T) {
		repo := &fakeRepo{created: make(chan entity.Event, 1)}
		msg := &fakeMessaging{published: make(chan entity.Event, 1)}
		uc := newTestUsecase(t, repo, msg)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		uc.Record(ctx, entity.Record{
			IdentityID: 7,
			Action:     entity.ActionLogin,
		})

		awaitEvent(t, repo.created)
	})
}

// ---------------------------------------------------------------------
// Query
// ---------------------------------------------------------------------

func TestQuery(t *testing.T) {
	t.Run("applies paging defaults", func(t *testing.T) {
		repo := &fakeRepo{}
		uc := newTestUsecase(t, repo, &fakeMessaging{})

		var got entity.QueryFilter
		repo.getEventListFn = func(filter entity.QueryFilter) ([]entity.Event, int64, error) {
			got = filter
			return []entity.Event{{ID: 2}, {ID: 1}}, 2, nil
		}

		out, err := uc.Query(adminCtx(), QueryInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got.Page != 1 || got.Size != 20 {
			t.Fatalf("expected defaults page=1 size=20, got page=%d size=%d", got.Page, got.Size)
		}
		if out.Total != 2 || len(out.Events) != 2 {
			t.Fatalf("unexpected output %+v", out)
		}
	})

	t.Run("passes filters through", func(t *testing.T) {
		repo := &fakeRepo{}
		uc := newTestUsecase(t, repo, &fakeMessaging{})

		from := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

		var got entity.QueryFilter
		repo.getEventListFn = func(filter entity.QueryFilter) ([]entity.Event, int64, error) {
			got = filter
			return nil, 0, nil
		}

		if _, err := uc.Query(adminCtx(), QueryInput{
			IdentityID: 7,
			Action:     "login_failed",
			From:       from,
			To:         to,
			Page:       3,
			Size:       50,
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got.IdentityID != 7 || got.Action != entity.ActionLoginFailed {
			t.Fatalf("filter not passed through: %+v", got)
		}
		if !got.From.Equal(from) || !got.To.Equal(to) {
			t.Fatalf("time range not passed through: %+v", got)
		}
	})

	t.Run("unknown action filter is rejected", func(t *testing.T) {
		uc := newTestUsecase(t, &fakeRepo{}, &fakeMessaging{})

		_, err := uc.Query(adminCtx(), QueryInput{Action: "made_up"})
		assertCode(t, err, goerror.CodeInvalidFormat)
	})

	t.Run("unauthenticated caller is rejected", func(t *testing.T) {
		uc := newTestUsecase(t, &fakeRepo{}, &fakeMessaging{})

		_, err := uc.Query(context.Background(), QueryInput{})
		assertCode(t, err, goerror.CodeUnauthorized)
	})

	t.Run("role without the audit grant is rejected", func(t *testing.T) {
		uc := newTestUsecase(t, &fakeRepo{}, &fakeMessaging{})

		ctx := jwt.SetAuth(context.Background(), jwt.Claims{UserID: 7, UserRole: "user"})
		_, err := uc.Query(ctx, QueryInput{})
		assertCode(t, err, goerror.CodeForbidden)
	})
}

// ---------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------

func TestExport(t *testing.T) {
	t.Run("under the cap returns everything", func(t *testing.T) {
		repo := &fakeRepo{created: make(chan entity.Event, 1)}
		uc := newTestUsecase(t, repo, &fakeMessaging{published: make(chan entity.Event, 1)})

		var gotLimit int32
		repo.getEventExportFn = func(_ entity.ExportFilter, limit int32) ([]entity.Event, error) {
			gotLimit = limit
			return []entity.Event{{ID: 3}, {ID: 2}, {ID: 1}}, nil
		}

		out, err := uc.Export(adminCtx(), ExportInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if gotLimit != exportRowCap+1 {
			t.Fatalf("expected the repo to fetch cap+1 rows, got %d", gotLimit)
		}
		if out.Truncated {
			t.Fatalf("export under the cap must not be truncated")
		}
		if len(out.Events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(out.Events))
		}
	})

	t.Run("over the cap truncates", func(t *testing.T) {
		repo := &fakeRepo{created: make(chan entity.Event, 1)}
		uc := newTestUsecase(t, repo, &fakeMessaging{published: make(chan entity.Event, 1)})

		repo.getEventExportFn = func(_ entity.ExportFilter, limit int32) ([]entity.Event, error) {
			events := make([]entity.Event, limit)
			for i := range events {
				events[i] = entity.Event{ID: int64(len(events) - i)}
			}
			return events, nil
		}

		out, err := uc.Export(adminCtx(), ExportInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !out.Truncated {
			t.Fatalf("expected the export to be flagged truncated")
		}
		if len(out.Events) != exportRowCap {
			t.Fatalf("expected %d events, got %d", exportRowCap, len(out.Events))
		}
	})

	t.Run("the export itself is audited", func(t *testing.T) {
		repo := &fakeRepo{created: make(chan entity.Event, 1)}
		uc := newTestUsecase(t, repo, &fakeMessaging{published: make(chan entity.Event, 1)})

		repo.getEventExportFn = func(entity.ExportFilter, int32) ([]entity.Event, error) {
			return nil, nil
		}

		if _, err := uc.Export(adminCtx(), ExportInput{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		stored := awaitEvent(t, repo.created)
		if stored.Action != entity.ActionExportData {
			t.Fatalf("expected an export_data record, got %s", stored.Action)
		}
		if stored.IdentityID != 1 {
			t.Fatalf("export must be attributed to the caller, got identity %d", stored.IdentityID)
		}
	})

	t.Run("unauthorized caller is rejected", func(t *testing.T) {
		uc := newTestUsecase(t, &fakeRepo{}, &fakeMessaging{})

		ctx := jwt.SetAuth(context.Background(), jwt.Claims{UserID: 7, UserRole: "user"})
		_, err := uc.Export(ctx, ExportInput{})
		assertCode(t, err, goerror.CodeForbidden)
	})
}

func assertCode(t *testing.T, err error, code goerror.Code) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected an error with code %s, got nil", code)
	}

	var ge *goerror.Error
	if !errors.As(err, &ge) {
		t.Fatalf("expected *goerror.Error, got %T: %v", err, err)
	}
	if ge.Code() != code {
		t.Fatalf("expected code %s, got %s (%v)", code, ge.Code(), err)
	}
}
