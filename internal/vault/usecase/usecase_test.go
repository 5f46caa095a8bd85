package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	auditentity "github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/config"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
	"github.com/zelyonkin/dashkeep/internal/pkg/instrument"
	"github.com/zelyonkin/dashkeep/internal/pkg/jwt"
	"github.com/zelyonkin/dashkeep/internal/pkg/storage"
	"github.com/zelyonkin/dashkeep/internal/pkg/validator"
	"github.com/zelyonkin/dashkeep/internal/pkg/vaultcrypt"
	"github.com/zelyonkin/dashkeep/internal/vault/entity"
)

// ---------------------------------------------------------------------
// test doubles
// ---------------------------------------------------------------------

// memRepo keeps items in a map so create/read/replace/delete compose.
type memRepo struct {
	mu    sync.Mutex
	items map[int64]entity.Item

	createErr error
	deleteErr error
}

func newMemRepo() *memRepo {
	return &memRepo{items: map[int64]entity.Item{}}
}

func (m *memRepo) CreateItem(_ context.Context, item entity.Item) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
	return nil
}

func (m *memRepo) GetItem(_ context.Context, id, identityID int64) (*entity.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok || item.IdentityID != identityID {
		return nil, goerror.ErrNotFound
	}
	out := item
	return &out, nil
}

func (m *memRepo) GetItemList(_ context.Context, identityID int64, page, size int32) ([]entity.ItemInfo, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []entity.ItemInfo
	for _, item := range m.items {
		if item.IdentityID != identityID {
			continue
		}
		rows = append(rows, entity.ItemInfo{
			ID:          item.ID,
			Kind:        item.Kind,
			Name:        item.Name,
			ContentType: item.ContentType,
			Size:        item.Size,
			UpdatedAt:   item.UpdatedAt,
		})
	}
	return rows, int64(len(rows)), nil
}

func (m *memRepo) ReplaceItemEnvelope(_ context.Context, item entity.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[item.ID]; !ok {
		return goerror.ErrNotFound
	}
	m.items[item.ID] = item
	return nil
}

func (m *memRepo) DeleteItem(_ context.Context, id, identityID int64) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok || item.IdentityID != identityID {
		return goerror.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

// tamper mutates the stored payload of one item.
func (m *memRepo) tamper(id int64, fn func(item *entity.Item)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.items[id]
	fn(&item)
	m.items[id] = item
}

// memStorage is an in-memory object store.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte

	putErr    error
	deleteErr error
	deleted   []string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (m *memStorage) Close() error { return nil }

func (m *memStorage) PutObject(_ context.Context, bucket, key string, r io.Reader, _ storage.PutOptions) (storage.ObjectInfo, error) {
	if m.putErr != nil {
		return storage.ObjectInfo{}, m.putErr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = data
	return storage.ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(data))}, nil
}

func (m *memStorage) GetObject(_ context.Context, bucket, key string, _ storage.GetOptions) (io.ReadCloser, storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ObjectInfo{}, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), storage.ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(data))}, nil
}

func (m *memStorage) StatObject(_ context.Context, bucket, key string) (storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return storage.ObjectInfo{}, errors.New("object not found")
	}
	return storage.ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(data))}, nil
}

func (m *memStorage) DeleteObject(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleted = append(m.deleted, bucket+"/"+key)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, bucket+"/"+key)
	return nil
}

func (m *memStorage) ListObjects(_ context.Context, _, _ string, _ storage.ListOptions) ([]storage.ObjectInfo, error) {
	return nil, nil
}

func (m *memStorage) PresignGet(_ context.Context, _, _ string, _ time.Duration) (string, error) {
	return "", storage.ErrMissingSigner
}

func (m *memStorage) PresignPut(_ context.Context, _, _ string, _ storage.PutOptions, _ time.Duration) (string, error) {
	return "", storage.ErrMissingSigner
}

// tamperObject flips one byte of a stored blob.
func (m *memStorage) tamperObject() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, data := range m.objects {
		if len(data) > 0 {
			data[0] ^= 0xFF
			m.objects[key] = data
		}
	}
}

type recorderAudit struct {
	mu      sync.Mutex
	records []auditentity.Record
}

func (r *recorderAudit) Record(_ context.Context, rec auditentity.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recorderAudit) byAction(action auditentity.Action) []auditentity.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []auditentity.Record
	for _, rec := range r.records {
		if rec.Action == action {
			out = append(out, rec)
		}
	}
	return out
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

type seqStringID struct {
	next int
}

func (s *seqStringID) Generate() string {
	s.next++
	return fmt.Sprintf("blob-%04d", s.next)
}

type fakeConfig struct {
	config.Config
}

func (fakeConfig) GetString(string) string { return "vault-test" }

func (fakeConfig) GetInt64(string) int64 { return 1 << 20 }

// smallCapConfig caps uploads at 16 bytes.
type smallCapConfig struct {
	fakeConfig
}

func (smallCapConfig) GetInt64(string) int64 { return 16 }

// ---------------------------------------------------------------------
// harness
// ---------------------------------------------------------------------

type testKit struct {
	uc      *Usecase
	repo    *memRepo
	storage *memStorage
	audit   *recorderAudit
}

func newTestKit(t *testing.T, cfg config.Config) *testKit {
	t.Helper()

	v10, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}

	cipher, err := vaultcrypt.New("test-master-secret", "test-master-salt")
	if err != nil {
		t.Fatalf("failed to build cipher: %v", err)
	}

	kit := &testKit{
		repo:    newMemRepo(),
		storage: newMemStorage(),
		audit:   &recorderAudit{},
	}

	kit.uc = New(Dependency{
		RepoDB:     kit.repo,
		Audit:      kit.audit,
		Cipher:     cipher,
		Storage:    kit.storage,
		Validator:  v10,
		Config:     cfg,
		UID:        &seqNumberID{},
		UUID:       &seqStringID{},
		Clock:      &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		Instrument: instrument.NewNoop(),
	})

	return kit
}

func authedCtx(identityID int64) context.Context {
	return jwt.SetAuth(context.Background(), jwt.Claims{
		UserID:    identityID,
		UserEmail: "ada@example.com",
		UserRole:  "user",
	})
}

func assertCode(t *testing.T, err error, code goerror.Code) *goerror.Error {
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
	return ge
}

// ---------------------------------------------------------------------
// notes
// ---------------------------------------------------------------------

func TestNoteRoundTrip(t *testing.T) {
	kit := newTestKit(t, fakeConfig{})
	ctx := authedCtx(7)

	created, err := kit.uc.NoteCreate(ctx, NoteCreateInput{
		Name:    "wifi password",
		Content: "correct horse battery staple",
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	stored, _ := kit.repo.GetItem(ctx, created.ID, 7)
	if strings.Contains(stored.Payload, "correct horse") {
		t.Fatalf("note content stored in plaintext")
	}
	if stored.IV == "" || stored.Tag == "" {
		t.Fatalf("envelope parameters missing: %+v", stored)
	}
	if stored.Size != int64(len("correct horse battery staple")) {
		t.Fatalf("size records the plaintext length, got %d", stored.Size)
	}

	got, err := kit.uc.NoteGet(ctx, NoteGetInput{ID: created.ID})
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if got.Content != "correct horse battery staple" {
		t.Fatalf("round trip mismatch: %q", got.Content)
	}
	if got.Name != "wifi password" {
		t.Fatalf("unexpected name %q", got.Name)
	}

	recs := kit.audit.byAction(auditentity.ActionVaultAccess)
	if len(recs) != 2 {
		t.Fatalf("expected create+read audit records, got %d", len(recs))
	}
}

func TestNoteUpdateReplacesEnvelope(t *testing.T) {
	kit := newTestKit(t, fakeConfig{})
	ctx := authedCtx(7)

	created, err := kit.uc.NoteCreate(ctx, NoteCreateInput{Name: "draft", Content: "v1"})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	before, _ := kit.repo.GetItem(ctx, created.ID, 7)

	if err := kit.uc.NoteUpdate(ctx, NoteUpdateInput{
		ID:      created.ID,
		Name:    "final",
		Content: "v2",
	}); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}

	after, _ := kit.repo.GetItem(ctx, created.ID, 7)
	if after.IV == before.IV {
		t.Fatalf("update must mint a fresh envelope, IV reused")
	}

	got, err := kit.uc.NoteGet(ctx, NoteGetInput{ID: created.ID})
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if got.Content != "v2" || got.Name != "final" {
		t.Fatalf("update not visible: %+v", got)
	}
}

func TestNoteTamperDetected(t *testing.T) {
	kit := newTestKit(t, fakeConfig{})
	ctx := authedCtx(7)

	created, err := kit.uc.NoteCreate(ctx, NoteCreateInput{Name: "note", Content: "secret"})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	t.Run("payload flipped", func(t *testing.T) {
		kit.repo.tamper(created.ID, func(item *entity.Item) {
			b := []byte(item.Payload)
			b[0] ^= 0x01
			item.Payload = string(b)
		})

		_, err := kit.uc.NoteGet(ctx, NoteGetInput{ID: created.ID})
		assertCode(t, err, goerror.CodeInvalidFormat)
	})

	t.Run("malformed envelope", func(t *testing.T) {
		kit.repo.tamper(created.ID, func(item *entity.Item) {
			item.IV = "not base64!!"
		})

		_, err := kit.uc.NoteGet(ctx, NoteGetInput{ID: created.ID})
		assertCode(t, err, goerror.CodeInvalidFormat)
	})
}

func TestNoteOwnershipScoping(t *testing.T) {
	kit := newTestKit(t, fakeConfig{})

	created, err := kit.uc.NoteCreate(authedCtx(7), NoteCreateInput{Name: "mine", Content: "secret"})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	// another identity sees the same error as a missing row
	_, err = kit.uc.NoteGet(authedCtx(8), NoteGetInput{ID: created.ID})
	geOther := assertCode(t, err, goerror.CodeNotFound)

	_, err = kit.uc.NoteGet(authedCtx(7), NoteGetInput{ID: 999})
	geMissing := assertCode(t, err, goerror.CodeNotFound)

	if geOther.Msg() != geMissing.Msg() {
		t.Fatalf("foreign and missing items must be indistinguishable: %q vs %q", geOther.Msg(), geMissing.Msg())
	}
}

func TestNoteUnauthenticated(t *testing.T) {
	kit := newTestKit(t, fakeConfig{})

	_, err := kit.uc.NoteCreate(context.Background(), NoteCreateInput{Name: "x", Content: "y"})
	assertCode(t, err, goerror.CodeUnauthorized)
}

// ---------------------------------------------------------------------
// files
// ---------------------------------------------------------------------

func TestFileRoundTrip(t *testing.T) {
	kit := newTestKit(t, fakeConfig{})
	ctx := authedCtx(7)
	payload := []byte("%PDF-1.7 pretend this is a scan")

	created, err := kit.uc.FileUpload(ctx, FileUploadInput{
		Name:        "passport.pdf",
		ContentType: "application/pdf",
		File:        bytes.NewReader(payload),
	})
	if err != nil {
		t.Fatalf("unexpected upload error: %v", err)
	}

	// the blob at rest is ciphertext
	kit.storage.mu.Lock()
	if len(kit.storage.objects) != 1 {
		kit.storage.mu.Unlock()
		t.Fatalf("expected exactly 1 stored blob, got %d", len(kit.storage.objects))
	}
	for _, blob := range kit.storage.objects {
		if bytes.Contains(blob, payload) {
			kit.storage.mu.Unlock()
			t.Fatalf("file stored in plaintext")
		}
	}
	kit.storage.mu.Unlock()

	got, err := kit.uc.FileDownload(ctx, FileDownloadInput{ID: created.ID})
	if err != nil {
		t.Fatalf("unexpected download error: %v", err)
	}
	if !bytes.Equal(got.Content, payload) {
		t.Fatalf("round trip mismatch")
	}
	if got.ContentType != "application/pdf" || got.Name != "passport.pdf" {
		t.Fatalf("metadata mismatch: %+v", got)
	}

	if recs := kit.audit.byAction(auditentity.ActionFileUpload); len(recs) != 1 {
		t.Fatalf("expected a file upload audit record, got %d", len(recs))
	}
}

func TestFileUploadSizeCap(t *testing.T) {
	kit := newTestKit(t, smallCapConfig{})
	ctx := authedCtx(7)

	_, err := kit.uc.FileUpload(ctx, FileUploadInput{
		Name: "big.bin",
		File: bytes.NewReader(make([]byte, 17)),
	})
	assertCode(t, err, goerror.CodeInvalidInput)

	if len(kit.storage.objects) != 0 {
		t.Fatalf("oversized upload must not reach storage")
	}
}

func TestFileUploadRollbackOnInsertFailure(t *testing.T) {
	kit := newTestKit(t, fakeConfig{})
	kit.repo.createErr = errors.New("deadlock detected")
	ctx := authedCtx(7)

	_, err := kit.uc.FileUpload(ctx, FileUploadInput{
		Name: "doc.txt",
		File: strings.NewReader("hello"),
	})
	if err == nil {
		t.Fatalf("expected the upload to fail")
	}

	if len(kit.storage.deleted) != 1 {
		t.Fatalf("orphaned blob was not cleaned up, deletes: %v", kit.storage.deleted)
	}
	if len(kit.storage.objects) != 0 {
		t.Fatalf("orphaned blob still present")
	}
}

func TestFileTamperDetected(t *testing.T) {
	kit := newTestKit(t, fakeConfig{})
	ctx := authedCtx(7)

	created, err := kit.uc.FileUpload(ctx, FileUploadInput{
		Name: "doc.txt",
		File: strings.NewReader("attack at dawn"),
	})
	if err != nil {
		t.Fatalf("unexpected upload error: %v", err)
	}

	kit.storage.tamperObject()

	_, err = kit.uc.FileDownload(ctx, FileDownloadInput{ID: created.ID})
	assertCode(t, err, goerror.CodeInvalidFormat)
}

// ---------------------------------------------------------------------
// listing and deletion
// ---------------------------------------------------------------------

func TestItemList(t *testing.T) {
	kit := newTestKit(t, fakeConfig{})
	ctx := authedCtx(7)

	if _, err := kit.uc.NoteCreate(ctx, NoteCreateInput{Name: "note", Content: "secret"}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if _, err := kit.uc.FileUpload(ctx, FileUploadInput{
		Name: "doc.txt",
		File: strings.NewReader("hello"),
	}); err != nil {
		t.Fatalf("unexpected upload error: %v", err)
	}
	if _, err := kit.uc.NoteCreate(authedCtx(8), NoteCreateInput{Name: "other", Content: "x"}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	out, err := kit.uc.ItemList(ctx, ItemListInput{})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}

	if out.Total != 2 || len(out.Items) != 2 {
		t.Fatalf("expected the caller's 2 items, got total=%d len=%d", out.Total, len(out.Items))
	}
	if out.Page != 1 || out.Size != 20 {
		t.Fatalf("expected paging defaults, got page=%d size=%d", out.Page, out.Size)
	}
	for _, item := range out.Items {
		if item.Kind != "note" && item.Kind != "file" {
			t.Fatalf("unexpected kind %q", item.Kind)
		}
	}
}

func TestItemDelete(t *testing.T) {
	t.Run("file delete removes the blob and the row", func(t *testing.T) {
		kit := newTestKit(t, fakeConfig{})
		ctx := authedCtx(7)

		created, err := kit.uc.FileUpload(ctx, FileUploadInput{
			Name: "doc.txt",
			File: strings.NewReader("hello"),
		})
		if err != nil {
			t.Fatalf("unexpected upload error: %v", err)
		}

		if err := kit.uc.ItemDelete(ctx, ItemDeleteInput{ID: created.ID}); err != nil {
			t.Fatalf("unexpected delete error: %v", err)
		}

		if len(kit.storage.objects) != 0 {
			t.Fatalf("blob survived the delete")
		}
		if _, err := kit.repo.GetItem(ctx, created.ID, 7); !errors.Is(err, goerror.ErrNotFound) {
			t.Fatalf("row survived the delete")
		}
		if recs := kit.audit.byAction(auditentity.ActionFileDelete); len(recs) != 1 {
			t.Fatalf("expected a file delete audit record, got %d", len(recs))
		}
	})

	t.Run("blob delete failure does not block the row delete", func(t *testing.T) {
		kit := newTestKit(t, fakeConfig{})
		ctx := authedCtx(7)

		created, err := kit.uc.FileUpload(ctx, FileUploadInput{
			Name: "doc.txt",
			File: strings.NewReader("hello"),
		})
		if err != nil {
			t.Fatalf("unexpected upload error: %v", err)
		}

		kit.storage.deleteErr = errors.New("bucket unavailable")

		if err := kit.uc.ItemDelete(ctx, ItemDeleteInput{ID: created.ID}); err != nil {
			t.Fatalf("delete must succeed despite the blob error: %v", err)
		}
		if _, err := kit.repo.GetItem(ctx, created.ID, 7); !errors.Is(err, goerror.ErrNotFound) {
			t.Fatalf("row survived the delete")
		}
	})

	t.Run("note delete never touches storage", func(t *testing.T) {
		kit := newTestKit(t, fakeConfig{})
		ctx := authedCtx(7)

		created, err := kit.uc.NoteCreate(ctx, NoteCreateInput{Name: "note", Content: "secret"})
		if err != nil {
			t.Fatalf("unexpected create error: %v", err)
		}

		if err := kit.uc.ItemDelete(ctx, ItemDeleteInput{ID: created.ID}); err != nil {
			t.Fatalf("unexpected delete error: %v", err)
		}

		if len(kit.storage.deleted) != 0 {
			t.Fatalf("note delete must not call storage, got %v", kit.storage.deleted)
		}
		if recs := kit.audit.byAction(auditentity.ActionVaultAccess); len(recs) != 2 {
			t.Fatalf("expected create+delete audit records, got %d", len(recs))
		}
	})
}
