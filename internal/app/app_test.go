package app

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"adjusterhub/internal/model"
	"adjusterhub/internal/ratelimit"
	"adjusterhub/internal/repository"
	"adjusterhub/internal/security"
)

type testEnv struct {
	db       *gorm.DB
	users    *repository.UserRepository
	firms    *repository.FirmRepository
	sessions *repository.SessionRepository
	claims   *repository.ClaimRepository
	events   *repository.SecurityEventRepository
	limiter  *ratelimit.MemoryLimiter
	totp     *security.TOTP

	auth     *AuthService
	notifier *NotificationService
	claimSvc *ClaimService
	earnings *EarningService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(model.All()...))

	log := zap.NewNop()
	env := &testEnv{
		db:       db,
		users:    repository.NewUserRepository(db),
		firms:    repository.NewFirmRepository(db),
		sessions: repository.NewSessionRepository(db),
		claims:   repository.NewClaimRepository(db),
		events:   repository.NewSecurityEventRepository(db),
		limiter:  ratelimit.NewMemoryLimiter(10, time.Minute),
		totp:     security.NewTOTP("AdjusterHub"),
	}
	auditor := NewAuditor(env.events, nil, log)
	env.auth = NewAuthService(env.users, env.firms, env.sessions,
		security.NewTokenIssuer("test-secret", "adjusterhub"), env.totp, env.limiter, auditor,
		AuthSettings{SessionTTL: time.Hour, PasswordMinLength: 8, MaxFailedLogins: 3, LockoutDuration: 15 * time.Minute},
		log,
	)
	env.notifier = NewNotificationService(repository.NewNotificationRepository(db), log)
	earningRepo := repository.NewEarningRepository(db)
	env.claimSvc = NewClaimService(env.claims, env.users, env.notifier, log)
	env.earnings = NewEarningService(earningRepo, repository.NewPayoutRepository(db), env.notifier, 5000)
	return env
}

func (e *testEnv) createUser(t *testing.T, email, role string, firmID *uint) *model.User {
	t.Helper()
	hash, err := security.HashPassword("correct-horse", 8)
	require.NoError(t, err)
	u := &model.User{Name: email, Email: email, PasswordHash: hash, Role: role, FirmID: firmID}
	require.NoError(t, e.users.Create(u))
	return u
}

func (e *testEnv) createFirm(t *testing.T, code string) *model.Firm {
	t.Helper()
	f := &model.Firm{Name: code + " Claims", Code: code}
	require.NoError(t, e.firms.Create(f))
	return f
}

func principalFor(u *model.User) Principal {
	p := Principal{UserID: u.ID, Role: u.Role}
	if u.FirmID != nil {
		p.FirmID = *u.FirmID
	}
	return p
}

func (e *testEnv) eventTypes(t *testing.T) []string {
	t.Helper()
	events, err := e.events.List(repository.SecurityEventFilter{Limit: 100})
	require.NoError(t, err)
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}
