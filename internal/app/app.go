package app

import (
	"context"
	"net/http"

	"github.com/casbin/casbin/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/zelyonkin/dashkeep/internal/pkg/bruteforce"
	"github.com/zelyonkin/dashkeep/internal/pkg/clock"
	"github.com/zelyonkin/dashkeep/internal/pkg/config"
	"github.com/zelyonkin/dashkeep/internal/pkg/goroutine"
	"github.com/zelyonkin/dashkeep/internal/pkg/hash"
	"github.com/zelyonkin/dashkeep/internal/pkg/instrument"
	"github.com/zelyonkin/dashkeep/internal/pkg/jwt"
	"github.com/zelyonkin/dashkeep/internal/pkg/mail"
	"github.com/zelyonkin/dashkeep/internal/pkg/messaging"
	"github.com/zelyonkin/dashkeep/internal/pkg/mfa"
	"github.com/zelyonkin/dashkeep/internal/pkg/otp"
	"github.com/zelyonkin/dashkeep/internal/pkg/ratelimit"
	"github.com/zelyonkin/dashkeep/internal/pkg/router"
	"github.com/zelyonkin/dashkeep/internal/pkg/storage"
	"github.com/zelyonkin/dashkeep/internal/pkg/uid"
	"github.com/zelyonkin/dashkeep/internal/pkg/validator"
	"github.com/zelyonkin/dashkeep/internal/pkg/vaultcrypt"
)

// App wires dependencies and manages service lifecycle.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	// configuration
	config config.Config
	ins    instrument.Instrumentation

	// libraries
	goroutine       *goroutine.Manager
	validator       validator.Validator
	clock           clock.Clocker
	hmac            hash.Hash
	argon2id        hash.Hash
	bcrypt          hash.Hash
	uid             uid.NumberID
	oid             uid.StringID
	uuid            uid.StringID
	totp            otp.OTP
	jwt             jwt.JWT
	mfaEncryptor    mfa.Encryptor
	mfaRecoveryCode mfa.RecoveryCodeGenerator
	vaultCipher     *vaultcrypt.Cipher
	guard           *bruteforce.Guard
	limiter         ratelimit.Limiter

	// resources
	dbConn    *pgxpool.Pool
	cacheConn *redis.Client
	mail      mail.Mail
	messaging messaging.Messaging
	storage   storage.Storage
	casbin    *casbin.Enforcer

	// server
	router     *router.Router
	httpServer *http.Server

	//
	closers []struct {
		name string
		fn   func(context.Context) error
	}
}

// New initializes the application with default wiring and returns an App instance.
func New() *App {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		ctx:    ctx,
		cancel: cancel,
	}

	app.initConfig()
	app.initInstrument()
	app.initLibraries()
	app.initJWT()
	app.initVaultCipher()
	app.initDatabase()
	app.initCache()
	app.initMail()
	app.initStorage()
	app.initMessaging()
	app.initCasbin()
	app.initGuard()
	app.initRateLimit()
	app.initHTTPServer()
	app.initModules()
	app.initClosers()

	return app
}
