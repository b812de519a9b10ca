package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"adjusterhub/internal/cache"
	"adjusterhub/internal/metrics"
	"adjusterhub/internal/model"
	"adjusterhub/internal/pkg/textutil"
	"adjusterhub/internal/ratelimit"
	"adjusterhub/internal/repository"
	"adjusterhub/internal/security"
)

const principalCacheTTL = 30 * time.Second

type AuthSettings struct {
	SessionTTL        time.Duration
	PasswordMinLength int
	MaxFailedLogins   int
	LockoutDuration   time.Duration
}

type AuthService struct {
	userRepo    *repository.UserRepository
	firmRepo    *repository.FirmRepository
	sessionRepo *repository.SessionRepository
	tokens      *security.TokenIssuer
	totp        *security.TOTP
	limiter     ratelimit.Limiter
	auditor     *Auditor
	principals  *cache.TTLCache[Principal]
	settings    AuthSettings
	log         *zap.Logger
	now         func() time.Time
}

// Principal is the authenticated caller resolved from a session token.
type Principal struct {
	UserID    uint
	Role      string
	FirmID    uint
	SessionID string
	ExpiresAt time.Time
}

func (p Principal) HasRole(roles ...string) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// ClientInfo identifies the connection an auth request came from.
type ClientInfo struct {
	IP        string
	UserAgent string
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
	FirmCode string
	FirmName string
	Client   ClientInfo
}

type LoginInput struct {
	Email         string
	Password      string
	TwoFactorCode string
	Client        ClientInfo
}

type LoginResult struct {
	RequiresTwoFactor bool        `json:"requires_two_factor,omitempty"`
	Token             string      `json:"token,omitempty"`
	SessionID         string      `json:"-"`
	ExpiresAt         *time.Time  `json:"expires_at,omitempty"`
	User              *model.User `json:"user,omitempty"`
}

func NewAuthService(
	userRepo *repository.UserRepository,
	firmRepo *repository.FirmRepository,
	sessionRepo *repository.SessionRepository,
	tokens *security.TokenIssuer,
	totp *security.TOTP,
	limiter ratelimit.Limiter,
	auditor *Auditor,
	settings AuthSettings,
	log *zap.Logger,
) *AuthService {
	if settings.PasswordMinLength <= 0 {
		settings.PasswordMinLength = 8
	}
	if settings.MaxFailedLogins <= 0 {
		settings.MaxFailedLogins = 5
	}
	return &AuthService{
		userRepo:    userRepo,
		firmRepo:    firmRepo,
		sessionRepo: sessionRepo,
		tokens:      tokens,
		totp:        totp,
		limiter:     limiter,
		auditor:     auditor,
		principals:  cache.NewTTLCache[Principal](principalCacheTTL),
		settings:    settings,
		log:         log,
		now:         time.Now,
	}
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*LoginResult, error) {
	name := strings.TrimSpace(input.Name)
	email := normalizeEmail(input.Email)
	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = model.RoleAdjuster
	}
	if name == "" || email == "" || (role != model.RoleAdjuster && role != model.RoleFirm) {
		return nil, ErrInvalidInput
	}

	hash, err := security.HashPassword(input.Password, s.settings.PasswordMinLength)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) {
			return nil, ErrWeakPassword
		}
		return nil, err
	}

	existing, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailExists
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if role == model.RoleFirm {
		firm, err := s.resolveFirm(input.FirmCode, input.FirmName, email)
		if err != nil {
			return nil, err
		}
		user.FirmID = &firm.ID
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, model.SecurityEvent{
		Type:      EventRegistered,
		UserID:    &user.ID,
		Email:     email,
		IPAddress: input.Client.IP,
		UserAgent: input.Client.UserAgent,
	})
	return s.startSession(ctx, user, input.Client)
}

func (s *AuthService) resolveFirm(code, name, contactEmail string) (*model.Firm, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrFirmRequired
	}
	firm, err := s.firmRepo.GetByCode(code)
	if err != nil {
		return nil, err
	}
	if firm != nil {
		return firm, nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrFirmRequired
	}
	firm = &model.Firm{Name: name, Code: code, ContactEmail: contactEmail}
	if err := s.firmRepo.Create(firm); err != nil {
		return nil, err
	}
	return firm, nil
}

// Login runs the rate-limited, audited credential check. A 2FA-enabled account
// without a code gets a challenge result and no session.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, ErrInvalidInput
	}
	base := model.SecurityEvent{
		Email:     email,
		IPAddress: input.Client.IP,
		UserAgent: input.Client.UserAgent,
	}

	if err := s.checkLoginLimits(ctx, email, input.Client.IP, base); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.loginFailed(ctx, base, "unknown email")
		return nil, ErrInvalidCredentials
	}
	base.UserID = &user.ID

	now := s.now()
	if user.IsLocked(now) {
		ev := base
		ev.Type = EventLoginLocked
		ev.Severity = model.SeverityWarning
		s.auditor.Record(ctx, ev)
		metrics.RecordLogin("locked")
		return nil, ErrAccountLocked
	}

	if err := security.ComparePassword(user.PasswordHash, input.Password); err != nil {
		if err := s.registerFailure(ctx, user, base, now); err != nil {
			return nil, err
		}
		s.loginFailed(ctx, base, "bad password")
		return nil, ErrInvalidCredentials
	}

	if user.TwoFactorEnabled {
		code := strings.TrimSpace(input.TwoFactorCode)
		if code == "" {
			ev := base
			ev.Type = EventTwoFactorChallenge
			s.auditor.Record(ctx, ev)
			metrics.RecordLogin("two_factor_challenge")
			return &LoginResult{RequiresTwoFactor: true}, nil
		}
		ok, err := s.consumeCode(user, code, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			if err := s.registerFailure(ctx, user, base, now); err != nil {
				return nil, err
			}
			ev := base
			ev.Type = EventTwoFactorFailed
			ev.Severity = model.SeverityWarning
			s.auditor.Record(ctx, ev)
			metrics.RecordLogin("two_factor_failed")
			return nil, ErrInvalidTwoFactor
		}
	}

	if err := s.userRepo.RecordSuccessfulLogin(user.ID, now); err != nil {
		return nil, err
	}
	user.FailedLogins = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	if err := s.limiter.Reset(ctx, loginEmailKey(email)); err != nil {
		s.log.Warn("reset login limiter failed", zap.String("email", email), zap.Error(err))
	}

	result, err := s.startSession(ctx, user, input.Client)
	if err != nil {
		return nil, err
	}
	ev := base
	ev.Type = EventLoginSuccess
	s.auditor.Record(ctx, ev)
	metrics.RecordLogin("success")
	return result, nil
}

// checkLoginLimits consults the per-IP and per-email windows. Limiter outages fail open
// so a Redis incident does not lock every user out.
func (s *AuthService) checkLoginLimits(ctx context.Context, email, ip string, base model.SecurityEvent) error {
	keys := []string{loginEmailKey(email)}
	if ip != "" {
		keys = append([]string{"login:ip:" + ip}, keys...)
	}
	for _, key := range keys {
		decision, err := s.limiter.Allow(ctx, key)
		if err != nil {
			s.log.Warn("login limiter unavailable", zap.String("key", key), zap.Error(err))
			continue
		}
		if !decision.Allowed {
			ev := base
			ev.Type = EventLoginRateLimited
			ev.Severity = model.SeverityWarning
			ev.Details = key
			s.auditor.Record(ctx, ev)
			metrics.RecordLogin("rate_limited")
			return &RateLimitError{Wait: decision.RetryAfter}
		}
	}
	return nil
}

func (s *AuthService) registerFailure(ctx context.Context, user *model.User, base model.SecurityEvent, now time.Time) error {
	failed := user.FailedLogins + 1
	var lockUntil *time.Time
	if failed >= s.settings.MaxFailedLogins {
		until := now.Add(s.settings.LockoutDuration)
		lockUntil = &until
		failed = 0
	}
	if err := s.userRepo.RecordFailedLogin(user.ID, failed, lockUntil); err != nil {
		return err
	}
	user.FailedLogins = failed
	if lockUntil != nil {
		user.LockedUntil = lockUntil
		ev := base
		ev.Type = EventAccountLocked
		ev.Severity = model.SeverityCritical
		ev.Details = "locked until " + lockUntil.UTC().Format(time.RFC3339)
		s.auditor.Record(ctx, ev)
	}
	return nil
}

func (s *AuthService) loginFailed(ctx context.Context, base model.SecurityEvent, reason string) {
	ev := base
	ev.Type = EventLoginFailed
	ev.Severity = model.SeverityWarning
	ev.Details = reason
	s.auditor.Record(ctx, ev)
	metrics.RecordLogin("failed")
}

func (s *AuthService) startSession(ctx context.Context, user *model.User, client ClientInfo) (*LoginResult, error) {
	now := s.now()
	session := &model.Session{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		IPAddress:  client.IP,
		UserAgent:  textutil.Truncate(client.UserAgent, 512),
		ExpiresAt:  now.Add(s.settings.SessionTTL),
		LastSeenAt: now,
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	token, err := s.tokens.Issue(user.ID, user.Role, session.ID, session.ExpiresAt)
	if err != nil {
		return nil, err
	}
	s.principals.Set(session.ID, principalOf(user, session))
	return &LoginResult{
		Token:     token,
		SessionID: session.ID,
		ExpiresAt: &session.ExpiresAt,
		User:      user,
	}, nil
}

// Authenticate resolves a token to a live session. Session rows are cached briefly so
// every request does not hit the database.
func (s *AuthService) Authenticate(ctx context.Context, rawToken string) (*Principal, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, ErrSessionInvalid
	}
	claims, err := s.tokens.Parse(rawToken)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrSessionInvalid
	}
	now := s.now()

	if p, ok := s.principals.Get(claims.SessionID); ok {
		if p.UserID != userID || !p.ExpiresAt.After(now) {
			return nil, ErrSessionInvalid
		}
		return &p, nil
	}

	session, err := s.sessionRepo.GetByID(claims.SessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.UserID != userID || !session.Active(now) {
		return nil, ErrSessionInvalid
	}
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrSessionInvalid
	}
	if err := s.sessionRepo.Touch(session.ID, now); err != nil {
		s.log.Warn("touch session failed", zap.String("session_id", session.ID), zap.Error(err))
	}
	p := principalOf(user, session)
	s.principals.Set(session.ID, p)
	return &p, nil
}

func (s *AuthService) Logout(ctx context.Context, p Principal, client ClientInfo) error {
	if _, err := s.sessionRepo.Revoke(p.SessionID, p.UserID, s.now()); err != nil {
		return err
	}
	s.principals.Delete(p.SessionID)
	s.auditor.Record(ctx, model.SecurityEvent{
		Type:      EventLogout,
		UserID:    &p.UserID,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
	})
	return nil
}

func (s *AuthService) Me(userID uint) (*model.User, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *AuthService) ListSessions(userID uint) ([]model.Session, error) {
	return s.sessionRepo.ListActiveByUserID(userID, s.now())
}

func (s *AuthService) RevokeSession(ctx context.Context, userID uint, sessionID string, client ClientInfo) error {
	ok, err := s.sessionRepo.Revoke(sessionID, userID, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	s.principals.Delete(sessionID)
	s.auditor.Record(ctx, model.SecurityEvent{
		Type:      EventSessionRevoked,
		UserID:    &userID,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
		Details:   sessionID,
	})
	return nil
}

// SetupTwoFactor stores a fresh, unconfirmed secret and returns its otpauth URL.
func (s *AuthService) SetupTwoFactor(userID uint) (*security.TOTPSecret, error) {
	user, err := s.Me(userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorEnabled
	}
	secret, err := s.totp.GenerateSecret(user.Email)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.UpdateTwoFactor(user.ID, secret.Secret, false); err != nil {
		return nil, err
	}
	return secret, nil
}

func (s *AuthService) EnableTwoFactor(ctx context.Context, userID uint, code string, client ClientInfo) error {
	user, err := s.Me(userID)
	if err != nil {
		return err
	}
	if user.TwoFactorEnabled {
		return ErrTwoFactorEnabled
	}
	if user.TOTPSecret == "" {
		return ErrTwoFactorNotSetup
	}
	ok, err := s.consumeCode(user, strings.TrimSpace(code), s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTwoFactor
	}
	if err := s.userRepo.UpdateTwoFactor(user.ID, user.TOTPSecret, true); err != nil {
		return err
	}
	s.auditor.Record(ctx, model.SecurityEvent{
		Type:      EventTwoFactorEnabled,
		UserID:    &user.ID,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
	})
	return nil
}

func (s *AuthService) DisableTwoFactor(ctx context.Context, userID uint, password, code string, client ClientInfo) error {
	user, err := s.Me(userID)
	if err != nil {
		return err
	}
	if err := security.ComparePassword(user.PasswordHash, password); err != nil {
		return ErrInvalidCredentials
	}
	if user.TwoFactorEnabled {
		ok, err := s.consumeCode(user, strings.TrimSpace(code), s.now())
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidTwoFactor
		}
	}
	if err := s.userRepo.UpdateTwoFactor(user.ID, "", false); err != nil {
		return err
	}
	s.auditor.Record(ctx, model.SecurityEvent{
		Type:      EventTwoFactorDisabled,
		UserID:    &user.ID,
		Severity:  model.SeverityWarning,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
	})
	return nil
}

// consumeCode accepts a TOTP code at most once. The conditional update also settles two
// logins racing with the same code.
func (s *AuthService) consumeCode(user *model.User, code string, now time.Time) (bool, error) {
	step, ok := s.totp.Verify(code, user.TOTPSecret, now, user.TOTPLastStep)
	if !ok {
		return false, nil
	}
	ok, err := s.userRepo.ConsumeTOTPStep(user.ID, step)
	if err != nil {
		return false, err
	}
	if ok {
		user.TOTPLastStep = step
	}
	return ok, nil
}

func (s *AuthService) PurgeExpiredSessions() (int64, error) {
	return s.sessionRepo.DeleteExpired(s.now())
}

func (s *AuthService) SweepCache() int {
	return s.principals.Sweep()
}

func principalOf(user *model.User, session *model.Session) Principal {
	p := Principal{
		UserID:    user.ID,
		Role:      user.Role,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	}
	if user.FirmID != nil {
		p.FirmID = *user.FirmID
	}
	return p
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func loginEmailKey(email string) string {
	return "login:email:" + email
}
