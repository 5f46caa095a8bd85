package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	libotp "github.com/pquerna/otp"
	auditentity "github.com/zelyonkin/dashkeep/internal/audit/entity"
	"github.com/zelyonkin/dashkeep/internal/auth/entity"
	"github.com/zelyonkin/dashkeep/internal/pkg/bruteforce"
	"github.com/zelyonkin/dashkeep/internal/pkg/config"
	"github.com/zelyonkin/dashkeep/internal/pkg/goerror"
	"github.com/zelyonkin/dashkeep/internal/pkg/hash"
	"github.com/zelyonkin/dashkeep/internal/pkg/instrument"
	"github.com/zelyonkin/dashkeep/internal/pkg/jwt"
	"github.com/zelyonkin/dashkeep/internal/pkg/mfa"
	"github.com/zelyonkin/dashkeep/internal/pkg/otp"
	"github.com/zelyonkin/dashkeep/internal/pkg/uid"
	"github.com/zelyonkin/dashkeep/internal/pkg/validator"
)

// ---------------------------------------------------------------------
// test doubles
// ---------------------------------------------------------------------

// fakeRepo implements repoDB with per-method hooks. Unset lookups return
// goerror.ErrNotFound; unset mutations succeed.
type fakeRepo struct {
	getIdentityLoginInfoFn      func(email string) (*entity.IdentityLoginInfo, error)
	getIdentityCredentialInfoFn func(id int64) (*entity.IdentityCredentialInfo, error)
	updateIdentityCredentialFn  func(identityID int64, hashed string) error

	createChallengeFn                     func(in entity.Challenge) error
	getChallengeIdentityByTokenPurposeFn  func(token string, p entity.ChallengePurpose) (*entity.ChallengeIdentity, error)
	getPendingTOTPChallengeFn             func(identityID int64) (*entity.ChallengeIdentity, error)

	getTOTPFactorFn        func(identityID int64) (*entity.TOTPFactor, error)
	newTOTPFactorFn        func(factor entity.TOTPFactor, codes []entity.BackupCode, challengeID int64) error
	updateTOTPLastUsedAtFn func(factorID, identityID int64) error

	getBackupCodesFn   func(identityID int64) ([]entity.BackupCode, error)
	consumeBackupCodeFn func(codeID, identityID int64) (bool, error)

	createdRefreshTokens []entity.RefreshToken
	removedEnrollments   []int64
	deletedChallenges    []int64
}

func (f *fakeRepo) GetIdentityLoginInfo(_ context.Context, email string) (*entity.IdentityLoginInfo, error) {
	if f.getIdentityLoginInfoFn == nil {
		return nil, goerror.ErrNotFound
	}
	return f.getIdentityLoginInfoFn(email)
}

func (f *fakeRepo) GetIdentityCredentialInfo(_ context.Context, id int64) (*entity.IdentityCredentialInfo, error) {
	if f.getIdentityCredentialInfoFn == nil {
		return nil, goerror.ErrNotFound
	}
	return f.getIdentityCredentialInfoFn(id)
}

func (f *fakeRepo) UpdateIdentityCredential(_ context.Context, identityID int64, hashed string) error {
	if f.updateIdentityCredentialFn == nil {
		return nil
	}
	return f.updateIdentityCredentialFn(identityID, hashed)
}

func (f *fakeRepo) CreateChallenge(_ context.Context, in entity.Challenge) error {
	if f.createChallengeFn == nil {
		return nil
	}
	return f.createChallengeFn(in)
}

func (f *fakeRepo) DeleteChallenge(_ context.Context, id int64) error {
	f.deletedChallenges = append(f.deletedChallenges, id)
	return nil
}

func (f *fakeRepo) GetChallengeIdentityByTokenPurpose(_ context.Context, token string, p entity.ChallengePurpose) (*entity.ChallengeIdentity, error) {
	if f.getChallengeIdentityByTokenPurposeFn == nil {
		return nil, goerror.ErrNotFound
	}
	return f.getChallengeIdentityByTokenPurposeFn(token, p)
}

func (f *fakeRepo) GetPendingTOTPChallenge(_ context.Context, identityID int64) (*entity.ChallengeIdentity, error) {
	if f.getPendingTOTPChallengeFn == nil {
		return nil, goerror.ErrNotFound
	}
	return f.getPendingTOTPChallengeFn(identityID)
}

func (f *fakeRepo) DeletePendingTOTPChallenges(_ context.Context, _ int64) error { return nil }

func (f *fakeRepo) GetTOTPFactor(_ context.Context, identityID int64) (*entity.TOTPFactor, error) {
	if f.getTOTPFactorFn == nil {
		return nil, goerror.ErrNotFound
	}
	return f.getTOTPFactorFn(identityID)
}

func (f *fakeRepo) NewTOTPFactor(_ context.Context, factor entity.TOTPFactor, codes []entity.BackupCode, challengeID int64) error {
	if f.newTOTPFactorFn == nil {
		return nil
	}
	return f.newTOTPFactorFn(factor, codes, challengeID)
}

func (f *fakeRepo) RemoveTOTPEnrollment(_ context.Context, identityID int64) error {
	f.removedEnrollments = append(f.removedEnrollments, identityID)
	return nil
}

func (f *fakeRepo) UpdateTOTPLastUsedAt(_ context.Context, factorID, identityID int64) error {
	if f.updateTOTPLastUsedAtFn == nil {
		return nil
	}
	return f.updateTOTPLastUsedAtFn(factorID, identityID)
}

func (f *fakeRepo) GetBackupCodes(_ context.Context, identityID int64) ([]entity.BackupCode, error) {
	if f.getBackupCodesFn == nil {
		return nil, nil
	}
	return f.getBackupCodesFn(identityID)
}

func (f *fakeRepo) CountUnusedBackupCodes(_ context.Context, _ int64) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) ConsumeBackupCode(_ context.Context, codeID, identityID int64) (bool, error) {
	if f.consumeBackupCodeFn == nil {
		return true, nil
	}
	return f.consumeBackupCodeFn(codeID, identityID)
}

func (f *fakeRepo) CreateRefreshToken(_ context.Context, in entity.RefreshToken) error {
	f.createdRefreshTokens = append(f.createdRefreshTokens, in)
	return nil
}

func (f *fakeRepo) NewRefreshToken(_ context.Context, rt entity.RefreshToken, _ int64) error {
	f.createdRefreshTokens = append(f.createdRefreshTokens, rt)
	return nil
}

func (f *fakeRepo) GetIdentityRefreshToken(_ context.Context, _ string) (*entity.IdentityRefreshToken, error) {
	return nil, goerror.ErrNotFound
}

func (f *fakeRepo) RevokeRefreshToken(_ context.Context, _ string) error { return nil }

func (f *fakeRepo) RevokeAllRefreshToken(_ context.Context, _ int64) error { return nil }

func (f *fakeRepo) RotateRefreshToken(_ context.Context, _ entity.RotateRefreshToken) error {
	return nil
}

// recorderAudit collects every record so tests can assert on the trail.
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
	return fmt.Sprintf("token-%04d", s.next)
}

// fakeConfig overrides only the keys the usecase reads.
type fakeConfig struct {
	config.Config
}

func (fakeConfig) GetMinute(string) time.Duration { return 5 * time.Minute }

func (fakeConfig) GetDay(string) time.Duration { return 30 * 24 * time.Hour }

// ---------------------------------------------------------------------
// harness
// ---------------------------------------------------------------------

type testKit struct {
	uc        *Usecase
	repo      *fakeRepo
	audit     *recorderAudit
	clock     *fakeClock
	guard     *bruteforce.Guard
	hmac      hash.Hash
	bcrypt    hash.Hash
	argon2id  hash.Hash
	encryptor mfa.Encryptor
	totp      otp.OTP
}

func newTestKit(t *testing.T, repo *fakeRepo) *testKit {
	t.Helper()

	v10, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}

	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	uuid := uid.NewUUID()

	tokener, err := jwt.NewHS512(jwt.Config{
		Secret:     []byte("test-secret-test-secret-test-secret-test-secret-test-secret-1234"),
		Issuer:     "dashkeep-test",
		Audiences:  []string{"dashkeep-test"},
		TTLMinutes: 15 * time.Minute,
		Clock:      clk,
		UUID:       uuid,
	})
	if err != nil {
		t.Fatalf("failed to build jwt: %v", err)
	}

	kit := &testKit{
		repo:      repo,
		audit:     &recorderAudit{},
		clock:     clk,
		guard:     bruteforce.NewGuard(bruteforce.NewMemoryStore(), clk, bruteforce.Config{}),
		hmac:      hash.NewHMACSHA256("test-hmac"),
		bcrypt:    hash.NewBcrypt(4, "test-pepper"),
		argon2id:  hash.NewArgon2id("test-pepper"),
		encryptor: mfa.NewAESGCMEncryptor(mfa.StaticKeyProvider{KeyBytes: []byte("0123456789abcdef0123456789abcdef")}),
		totp:      otp.NewTOTP("Dashkeep Test", 30, 2, libotp.DigitsSix),
	}

	kit.uc = New(Dependency{
		RepoDB:          repo,
		Audit:           kit.audit,
		Guard:           kit.guard,
		Validator:       v10,
		Config:          fakeConfig{},
		HMAC:            kit.hmac,
		Bcrypt:          kit.bcrypt,
		Argon2ID:        kit.argon2id,
		MFAEncryptor:    kit.encryptor,
		MFARecoveryCode: mfa.NewRecoveryCode(),
		UID:             &seqNumberID{},
		OID:             &seqStringID{},
		Totp:            kit.totp,
		Clock:           clk,
		JWT:             tokener,
		Instrument:      instrument.NewNoop(),
	})

	return kit
}

func (k *testKit) mustHash(t *testing.T, h hash.Hash, plaintext string) string {
	t.Helper()

	out, err := h.Hash(plaintext)
	if err != nil {
		t.Fatalf("failed to hash %q: %v", plaintext, err)
	}
	return string(out)
}

func assertBusinessCode(t *testing.T, err error, code goerror.Code) *goerror.Error {
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
// Login
// ---------------------------------------------------------------------

func TestLogin(t *testing.T) {
	const origin = "203.0.113.10"

	t.Run("password only authenticates and issues tokens", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)

		repo.getIdentityLoginInfoFn = func(email string) (*entity.IdentityLoginInfo, error) {
			return &entity.IdentityLoginInfo{
				ID:       7,
				Email:    email,
				Role:     "user",
				Status:   entity.IdentityStatusActive,
				Password: kit.mustHash(t, kit.bcrypt, "correct horse"),
			}, nil
		}

		out, err := kit.uc.Login(context.Background(), LoginInput{
			Email:    "ada@example.com",
			Password: "correct horse",
			Origin:   origin,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if out.State != entity.LoginStateAuthenticated {
			t.Fatalf("expected AUTHENTICATED, got %s", out.State)
		}
		if out.AccessToken == "" || out.RefreshToken == "" {
			t.Fatalf("expected both tokens, got access=%q refresh=%q", out.AccessToken, out.RefreshToken)
		}
		if len(repo.createdRefreshTokens) != 1 {
			t.Fatalf("expected 1 persisted refresh token, got %d", len(repo.createdRefreshTokens))
		}
		if got := kit.audit.byAction(auditentity.ActionLogin); len(got) != 1 {
			t.Fatalf("expected 1 login audit record, got %d", len(got))
		}
	})

	t.Run("legacy plaintext upgrades to bcrypt on success", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)

		repo.getIdentityLoginInfoFn = func(email string) (*entity.IdentityLoginInfo, error) {
			return &entity.IdentityLoginInfo{
				ID:       7,
				Email:    email,
				Role:     "user",
				Status:   entity.IdentityStatusActive,
				Password: "hunter2",
			}, nil
		}

		var persisted string
		repo.updateIdentityCredentialFn = func(identityID int64, hashed string) error {
			if identityID != 7 {
				t.Fatalf("credential upgraded for wrong identity %d", identityID)
			}
			persisted = hashed
			return nil
		}

		out, err := kit.uc.Login(context.Background(), LoginInput{
			Email:    "ada@example.com",
			Password: "hunter2",
			Origin:   origin,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.State != entity.LoginStateAuthenticated {
			t.Fatalf("expected AUTHENTICATED, got %s", out.State)
		}

		if persisted == "" {
			t.Fatalf("legacy credential was not upgraded")
		}
		if !hash.IsBcrypt(persisted) {
			t.Fatalf("upgraded credential is not a bcrypt hash: %q", persisted)
		}
		if !kit.bcrypt.Verify(persisted, "hunter2") {
			t.Fatalf("upgraded hash does not verify the original password")
		}

		recs := kit.audit.byAction(auditentity.ActionLogin)
		if len(recs) != 1 || recs[0].Detail["password_migrated"] != true {
			t.Fatalf("expected login audit detail to flag the migration, got %+v", recs)
		}
	})

	t.Run("legacy plaintext with wrong password fails", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)

		repo.getIdentityLoginInfoFn = func(email string) (*entity.IdentityLoginInfo, error) {
			return &entity.IdentityLoginInfo{
				ID:       7,
				Email:    email,
				Status:   entity.IdentityStatusActive,
				Password: "hunter2",
			}, nil
		}
		repo.updateIdentityCredentialFn = func(int64, string) error {
			t.Fatalf("credential must not be upgraded on a failed match")
			return nil
		}

		_, err := kit.uc.Login(context.Background(), LoginInput{
			Email:    "ada@example.com",
			Password: "HUNTER2",
			Origin:   origin,
		})
		assertBusinessCode(t, err, goerror.CodeUnauthorized)
	})

	t.Run("unknown email and wrong password return the same message", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)

		_, errUnknown := kit.uc.Login(context.Background(), LoginInput{
			Email:    "nobody@example.com",
			Password: "whatever",
			Origin:   origin,
		})
		ge := assertBusinessCode(t, errUnknown, goerror.CodeUnauthorized)

		repo.getIdentityLoginInfoFn = func(email string) (*entity.IdentityLoginInfo, error) {
			return &entity.IdentityLoginInfo{
				ID:       7,
				Email:    email,
				Status:   entity.IdentityStatusActive,
				Password: kit.mustHash(t, kit.bcrypt, "right"),
			}, nil
		}

		_, errWrong := kit.uc.Login(context.Background(), LoginInput{
			Email:    "ada@example.com",
			Password: "wrong",
			Origin:   origin,
		})
		ge2 := assertBusinessCode(t, errWrong, goerror.CodeUnauthorized)

		if ge.Msg() != ge2.Msg() {
			t.Fatalf("credential errors must not reveal which field failed: %q vs %q", ge.Msg(), ge2.Msg())
		}
	})

	t.Run("disabled account is rejected", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)

		repo.getIdentityLoginInfoFn = func(email string) (*entity.IdentityLoginInfo, error) {
			return &entity.IdentityLoginInfo{
				ID:       7,
				Email:    email,
				Status:   entity.IdentityStatusDisabled,
				Password: kit.mustHash(t, kit.bcrypt, "correct horse"),
			}, nil
		}

		_, err := kit.uc.Login(context.Background(), LoginInput{
			Email:    "ada@example.com",
			Password: "correct horse",
			Origin:   origin,
		})
		assertBusinessCode(t, err, goerror.CodeForbidden)
	})

	t.Run("enrolled second factor stops at the challenge", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)

		repo.getIdentityLoginInfoFn = func(email string) (*entity.IdentityLoginInfo, error) {
			return &entity.IdentityLoginInfo{
				ID:       7,
				Email:    email,
				Status:   entity.IdentityStatusActive,
				Password: kit.mustHash(t, kit.bcrypt, "correct horse"),
				HasTOTP:  true,
			}, nil
		}

		var stored entity.Challenge
		repo.createChallengeFn = func(in entity.Challenge) error {
			stored = in
			return nil
		}

		out, err := kit.uc.Login(context.Background(), LoginInput{
			Email:    "ada@example.com",
			Password: "correct horse",
			Origin:   origin,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if out.State != entity.LoginStateAwaitingSecondFactor {
			t.Fatalf("expected AWAITING_SECOND_FACTOR, got %s", out.State)
		}
		if out.ChallengeToken == "" {
			t.Fatalf("expected a challenge token")
		}
		if out.AccessToken != "" || out.RefreshToken != "" {
			t.Fatalf("session tokens must not be issued before the second factor")
		}

		if stored.Purpose != entity.ChallengePurposeMFALogin {
			t.Fatalf("expected MFA login challenge purpose, got %d", stored.Purpose)
		}
		if stored.Token == out.ChallengeToken {
			t.Fatalf("challenge token must be stored hashed")
		}
		if len(repo.createdRefreshTokens) != 0 {
			t.Fatalf("refresh token persisted before the second factor")
		}
	})
}

func TestLoginLockout(t *testing.T) {
	const origin = "203.0.113.99"

	newIdentity := func(kit *testKit) func(string) (*entity.IdentityLoginInfo, error) {
		stored := kit.mustHash(t, kit.bcrypt, "correct horse")
		return func(email string) (*entity.IdentityLoginInfo, error) {
			return &entity.IdentityLoginInfo{
				ID:       7,
				Email:    email,
				Status:   entity.IdentityStatusActive,
				Password: stored,
			}, nil
		}
	}

	fail := func(t *testing.T, kit *testKit, n int) {
		t.Helper()
		for i := 0; i < n; i++ {
			_, err := kit.uc.Login(context.Background(), LoginInput{
				Email:    "ada@example.com",
				Password: "wrong",
				Origin:   origin,
			})
			assertBusinessCode(t, err, goerror.CodeUnauthorized)
		}
	}

	t.Run("one under the threshold still allows the correct password", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)
		repo.getIdentityLoginInfoFn = newIdentity(kit)

		fail(t, kit, 4)

		out, err := kit.uc.Login(context.Background(), LoginInput{
			Email:    "ada@example.com",
			Password: "correct horse",
			Origin:   origin,
		})
		if err != nil {
			t.Fatalf("unexpected error at threshold-1: %v", err)
		}
		if out.State != entity.LoginStateAuthenticated {
			t.Fatalf("expected AUTHENTICATED, got %s", out.State)
		}
	})

	t.Run("threshold locks out even the correct password", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)
		repo.getIdentityLoginInfoFn = newIdentity(kit)

		fail(t, kit, 5)

		_, err := kit.uc.Login(context.Background(), LoginInput{
			Email:    "ada@example.com",
			Password: "correct horse",
			Origin:   origin,
		})
		ge := assertBusinessCode(t, err, goerror.CodeTooManyRequest)
		if !strings.Contains(ge.Msg(), "try again in") {
			t.Fatalf("lockout message should carry retry-after, got %q", ge.Msg())
		}
	})

	t.Run("rejected attempts during lockout are not counted again", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)
		repo.getIdentityLoginInfoFn = newIdentity(kit)

		fail(t, kit, 5)

		for i := 0; i < 3; i++ {
			_, err := kit.uc.Login(context.Background(), LoginInput{
				Email:    "ada@example.com",
				Password: "wrong",
				Origin:   origin,
			})
			assertBusinessCode(t, err, goerror.CodeTooManyRequest)
		}

		if got := kit.audit.byAction(auditentity.ActionLoginFailed); len(got) != 5 {
			t.Fatalf("blocked attempts must not add failures, got %d records", len(got))
		}
	})

	t.Run("triggering the lockout records suspicious activity", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)
		repo.getIdentityLoginInfoFn = newIdentity(kit)

		fail(t, kit, 5)

		if got := kit.audit.byAction(auditentity.ActionSuspiciousActivity); len(got) != 1 {
			t.Fatalf("expected exactly 1 suspicious-activity record, got %d", len(got))
		}
	})

	t.Run("successful login resets the counter", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)
		repo.getIdentityLoginInfoFn = newIdentity(kit)

		fail(t, kit, 4)

		if _, err := kit.uc.Login(context.Background(), LoginInput{
			Email:    "ada@example.com",
			Password: "correct horse",
			Origin:   origin,
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// the full failure budget is available again
		fail(t, kit, 4)

		if _, err := kit.uc.Login(context.Background(), LoginInput{
			Email:    "ada@example.com",
			Password: "correct horse",
			Origin:   origin,
		}); err != nil {
			t.Fatalf("counter was not reset on success: %v", err)
		}
	})
}

// ---------------------------------------------------------------------
// Login2FA
// ---------------------------------------------------------------------

// enrollTOTP seeds the fake repo with an active TOTP factor for identity 7
// and returns the plaintext seed so tests can mint valid codes.
func enrollTOTP(t *testing.T, kit *testKit) string {
	t.Helper()

	secret, _, err := kit.totp.Generate("ada@example.com")
	if err != nil {
		t.Fatalf("failed to generate totp secret: %v", err)
	}

	ciphertext, err := kit.encryptor.Encrypt([]byte(secret), mfa.Scope{
		UserID:  7,
		Purpose: mfa.PurposeOTPSeed,
	})
	if err != nil {
		t.Fatalf("failed to encrypt totp secret: %v", err)
	}

	kit.repo.getTOTPFactorFn = func(identityID int64) (*entity.TOTPFactor, error) {
		if identityID != 7 {
			return nil, goerror.ErrNotFound
		}
		return &entity.TOTPFactor{
			ID:         42,
			IdentityID: 7,
			Secret:     ciphertext,
			KeyVersion: 1,
			Verified:   true,
		}, nil
	}

	return secret
}

func loginChallenge(kit *testKit, token string) {
	hashed, _ := kit.hmac.Hash(token)

	kit.repo.getChallengeIdentityByTokenPurposeFn = func(got string, p entity.ChallengePurpose) (*entity.ChallengeIdentity, error) {
		if got != string(hashed) || p != entity.ChallengePurposeMFALogin {
			return nil, goerror.ErrNotFound
		}
		return &entity.ChallengeIdentity{
			ChallengeID:      99,
			ChallengePurpose: entity.ChallengePurposeMFALogin,
			IdentityID:       7,
			IdentityEmail:    "ada@example.com",
			IdentityRole:     "user",
			IdentityStatus:   entity.IdentityStatusActive,
		}, nil
	}
}

func TestLogin2FA(t *testing.T) {
	const origin = "203.0.113.10"

	t.Run("valid totp code authenticates", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)
		secret := enrollTOTP(t, kit)
		loginChallenge(kit, "challenge-token")

		var lastUsedFactor int64
		repo.updateTOTPLastUsedAtFn = func(factorID, identityID int64) error {
			lastUsedFactor = factorID
			return nil
		}

		code, err := kit.totp.GenerateCode(secret, kit.clock.Now())
		if err != nil {
			t.Fatalf("failed to generate code: %v", err)
		}

		out, err := kit.uc.Login2FA(context.Background(), Login2FAInput{
			ChallengeToken: "challenge-token",
			Code:           code,
			Origin:         origin,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if out.State != entity.LoginStateAuthenticated {
			t.Fatalf("expected AUTHENTICATED, got %s", out.State)
		}
		if out.AccessToken == "" || out.RefreshToken == "" {
			t.Fatalf("expected both tokens")
		}
		if lastUsedFactor != 42 {
			t.Fatalf("expected last_used_at update on factor 42, got %d", lastUsedFactor)
		}

		recs := kit.audit.byAction(auditentity.ActionLogin)
		if len(recs) != 1 || recs[0].Detail["method"] != "totp" {
			t.Fatalf("expected a totp login audit record, got %+v", recs)
		}
	})

	t.Run("code within clock skew still verifies", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)
		secret := enrollTOTP(t, kit)
		loginChallenge(kit, "challenge-token")

		// two steps behind the server clock, inside skew=2
		code, err := kit.totp.GenerateCode(secret, kit.clock.Now().Add(-60*time.Second))
		if err != nil {
			t.Fatalf("failed to generate code: %v", err)
		}

		out, err := kit.uc.Login2FA(context.Background(), Login2FAInput{
			ChallengeToken: "challenge-token",
			Code:           code,
			Origin:         origin,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.State != entity.LoginStateAuthenticated {
			t.Fatalf("expected AUTHENTICATED, got %s", out.State)
		}
	})

	t.Run("backup code matches and is consumed", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)
		enrollTOTP(t, kit)
		loginChallenge(kit, "challenge-token")

		repo.getBackupCodesFn = func(int64) ([]entity.BackupCode, error) {
			return []entity.BackupCode{
				{ID: 1, IdentityID: 7, CodeHash: kit.mustHash(t, kit.argon2id, "AAAA-BBBB")},
				{ID: 2, IdentityID: 7, CodeHash: kit.mustHash(t, kit.argon2id, "CCCC-DDDD")},
			}, nil
		}

		var consumedID int64
		repo.consumeBackupCodeFn = func(codeID, identityID int64) (bool, error) {
			consumedID = codeID
			return true, nil
		}

		out, err := kit.uc.Login2FA(context.Background(), Login2FAInput{
			ChallengeToken: "challenge-token",
			Code:           "CCCC-DDDD",
			Origin:         origin,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.State != entity.LoginStateAuthenticated {
			t.Fatalf("expected AUTHENTICATED, got %s", out.State)
		}
		if consumedID != 2 {
			t.Fatalf("expected backup code 2 consumed, got %d", consumedID)
		}

		recs := kit.audit.byAction(auditentity.ActionLogin)
		if len(recs) != 1 || recs[0].Detail["method"] != "backup_code" {
			t.Fatalf("expected a backup_code login audit record, got %+v", recs)
		}
	})

	t.Run("a spent backup code is rejected", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)
		enrollTOTP(t, kit)
		loginChallenge(kit, "challenge-token")

		repo.getBackupCodesFn = func(int64) ([]entity.BackupCode, error) {
			return []entity.BackupCode{
				{ID: 1, IdentityID: 7, CodeHash: kit.mustHash(t, kit.argon2id, "AAAA-BBBB")},
			}, nil
		}
		// the conditional update loses the race: someone already spent it
		repo.consumeBackupCodeFn = func(int64, int64) (bool, error) {
			return false, nil
		}

		_, err := kit.uc.Login2FA(context.Background(), Login2FAInput{
			ChallengeToken: "challenge-token",
			Code:           "AAAA-BBBB",
			Origin:         origin,
		})
		assertBusinessCode(t, err, goerror.CodeUnauthorized)

		if got := kit.audit.byAction(auditentity.ActionTwoFactorFailed); len(got) != 1 {
			t.Fatalf("expected a two-factor failure record, got %d", len(got))
		}
	})

	t.Run("wrong code counts toward the lockout", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)
		enrollTOTP(t, kit)
		loginChallenge(kit, "challenge-token")

		for i := 0; i < 5; i++ {
			_, err := kit.uc.Login2FA(context.Background(), Login2FAInput{
				ChallengeToken: "challenge-token",
				Code:           "000000",
				Origin:         origin,
			})
			assertBusinessCode(t, err, goerror.CodeUnauthorized)
		}

		_, err := kit.uc.Login2FA(context.Background(), Login2FAInput{
			ChallengeToken: "challenge-token",
			Code:           "000000",
			Origin:         origin,
		})
		assertBusinessCode(t, err, goerror.CodeTooManyRequest)
	})

	t.Run("unknown challenge token is rejected", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)

		_, err := kit.uc.Login2FA(context.Background(), Login2FAInput{
			ChallengeToken: "never-issued",
			Code:           "123456",
			Origin:         origin,
		})
		assertBusinessCode(t, err, goerror.CodeUnauthorized)
	})
}

// ---------------------------------------------------------------------
// TOTPConfirm
// ---------------------------------------------------------------------

func authedCtx(identityID int64) context.Context {
	return jwt.SetAuth(context.Background(), jwt.Claims{
		UserID:    identityID,
		UserEmail: "ada@example.com",
		UserRole:  "user",
	})
}

func setupChallenge(t *testing.T, kit *testKit, token string) string {
	t.Helper()

	secret, _, err := kit.totp.Generate("ada@example.com")
	if err != nil {
		t.Fatalf("failed to generate totp secret: %v", err)
	}

	ciphertext, err := kit.encryptor.Encrypt([]byte(secret), mfa.Scope{
		UserID:  7,
		Purpose: mfa.PurposeOTPSeed,
	})
	if err != nil {
		t.Fatalf("failed to encrypt totp secret: %v", err)
	}

	hashed, _ := kit.hmac.Hash(token)
	kit.repo.getChallengeIdentityByTokenPurposeFn = func(got string, p entity.ChallengePurpose) (*entity.ChallengeIdentity, error) {
		if got != string(hashed) || p != entity.ChallengePurposeMFASetupConfirm {
			return nil, goerror.ErrNotFound
		}
		return &entity.ChallengeIdentity{
			ChallengeID:      55,
			ChallengePurpose: entity.ChallengePurposeMFASetupConfirm,
			ChallengeMetadata: map[string]any{
				"secret":      base64.StdEncoding.EncodeToString(ciphertext),
				"key_version": 1,
			},
			IdentityID:     7,
			IdentityEmail:  "ada@example.com",
			IdentityRole:   "user",
			IdentityStatus: entity.IdentityStatusActive,
		}, nil
	}

	return secret
}

func TestTOTPConfirm(t *testing.T) {
	t.Run("valid code activates the factor and issues backup codes", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)
		secret := setupChallenge(t, kit, "setup-token")

		var gotFactor entity.TOTPFactor
		var gotCodes []entity.BackupCode
		var gotChallengeID int64
		repo.newTOTPFactorFn = func(factor entity.TOTPFactor, codes []entity.BackupCode, challengeID int64) error {
			gotFactor = factor
			gotCodes = codes
			gotChallengeID = challengeID
			return nil
		}

		code, err := kit.totp.GenerateCode(secret, kit.clock.Now())
		if err != nil {
			t.Fatalf("failed to generate code: %v", err)
		}

		out, err := kit.uc.TOTPConfirm(authedCtx(7), TOTPConfirmInput{
			ChallengeToken: "setup-token",
			Code:           code,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(out.RecoveryCodes) != 10 {
			t.Fatalf("expected 10 recovery codes, got %d", len(out.RecoveryCodes))
		}
		seen := map[string]struct{}{}
		for _, c := range out.RecoveryCodes {
			if _, dup := seen[c]; dup {
				t.Fatalf("duplicate recovery code %q", c)
			}
			seen[c] = struct{}{}
		}

		if !gotFactor.Verified || gotFactor.IdentityID != 7 {
			t.Fatalf("unexpected factor %+v", gotFactor)
		}
		if gotChallengeID != 55 {
			t.Fatalf("expected the setup challenge to be consumed, got id %d", gotChallengeID)
		}

		// only hashes persist, and each one matches a returned code
		if len(gotCodes) != len(out.RecoveryCodes) {
			t.Fatalf("expected %d hashed codes, got %d", len(out.RecoveryCodes), len(gotCodes))
		}
		for i, hashed := range gotCodes {
			if hashed.CodeHash == out.RecoveryCodes[i] {
				t.Fatalf("recovery code %d stored in plaintext", i)
			}
			if !kit.argon2id.Verify(hashed.CodeHash, out.RecoveryCodes[i]) {
				t.Fatalf("hash %d does not verify its code", i)
			}
		}

		if got := kit.audit.byAction(auditentity.ActionTwoFactorEnabled); len(got) != 1 {
			t.Fatalf("expected a two-factor-enabled audit record, got %d", len(got))
		}
	})

	t.Run("wrong code is rejected and nothing persists", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)
		setupChallenge(t, kit, "setup-token")

		repo.newTOTPFactorFn = func(entity.TOTPFactor, []entity.BackupCode, int64) error {
			t.Fatalf("factor must not be created on a wrong code")
			return nil
		}

		_, err := kit.uc.TOTPConfirm(authedCtx(7), TOTPConfirmInput{
			ChallengeToken: "setup-token",
			Code:           "000000",
		})
		assertBusinessCode(t, err, goerror.CodeUnauthorized)
	})

	t.Run("already active enrollment conflicts", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)
		secret := setupChallenge(t, kit, "setup-token")
		enrollTOTP(t, kit)

		code, err := kit.totp.GenerateCode(secret, kit.clock.Now())
		if err != nil {
			t.Fatalf("failed to generate code: %v", err)
		}

		_, err = kit.uc.TOTPConfirm(authedCtx(7), TOTPConfirmInput{
			ChallengeToken: "setup-token",
			Code:           code,
		})
		assertBusinessCode(t, err, goerror.CodeConflict)
	})

	t.Run("challenge owned by another identity is rejected", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)
		secret := setupChallenge(t, kit, "setup-token")

		code, err := kit.totp.GenerateCode(secret, kit.clock.Now())
		if err != nil {
			t.Fatalf("failed to generate code: %v", err)
		}

		_, err = kit.uc.TOTPConfirm(authedCtx(8), TOTPConfirmInput{
			ChallengeToken: "setup-token",
			Code:           code,
		})
		assertBusinessCode(t, err, goerror.CodeUnauthorized)
	})

	t.Run("unauthenticated context is rejected", func(t *testing.T) {
		repo := &fakeRepo{}
		kit := newTestKit(t, repo)

		_, err := kit.uc.TOTPConfirm(context.Background(), TOTPConfirmInput{
			ChallengeToken: "setup-token",
			Code:           "123456",
		})
		assertBusinessCode(t, err, goerror.CodeUnauthorized)
	})
}
