package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/secure-events/backend/config"
	"github.com/secure-events/backend/internal/models"
	"github.com/secure-events/backend/pkg/utils"
)

// SessionIssuer mints sessions once both factors have been verified.
// Implemented by sessions.Store.
type SessionIssuer interface {
	Issue(ctx context.Context, accountID uuid.UUID, role models.Role) (string, *models.Session, error)
}

var totpCodeRe = regexp.MustCompile(`^[0-9]{6}$`)

// Service implements registration and the two-step login protocol:
// Unauthenticated -> PendingAuth(handle) -> Authenticated(session).
type Service struct {
	accounts AccountRepository
	pending  PendingStore
	lockout  LockoutStore
	replay   ReplayStore
	cfg      config.AuthConfig
	logger   *zap.Logger

	now func() time.Time // injectable clock
}

// NewService creates the credential verifier service.
func NewService(accounts AccountRepository, pending PendingStore, lockout LockoutStore, replay ReplayStore, cfg config.AuthConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		accounts: accounts,
		pending:  pending,
		lockout:  lockout,
		replay:   replay,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// dummyHash soaks up a bcrypt comparison when the username is unknown, so
// the two InvalidCredentials paths cost roughly the same.
var dummyHash, _ = utils.HashPassword("timing-equalizer-0!A")

// RegisterResult is the outcome of account creation: the account plus its
// one-time enrollment material.
type RegisterResult struct {
	Account         *models.Account
	TOTPSecret      string
	ProvisioningURI string
}

// Register creates an account with a fresh 160-bit TOTP secret and returns
// the otpauth provisioning URI for authenticator enrollment.
func (s *Service) Register(ctx context.Context, username, email, password string, role models.Role) (*RegisterResult, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if err := utils.ValidatePasswordStrength(password); err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	secret, uri, err := GenerateTOTPSecret(s.cfg.Issuer, email)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.Create(ctx, &models.Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		TOTPSecret:   secret,
	})
	if err != nil {
		return nil, err
	}
	return &RegisterResult{Account: account, TOTPSecret: secret, ProvisioningURI: uri}, nil
}

// VerifyPassword is login step 1. On success it issues a short-lived pending
// handle, never a session. Unknown user and wrong password produce the same
// ErrInvalidCredentials.
func (s *Service) VerifyPassword(ctx context.Context, username, password string) (*models.PendingAuth, error) {
	account, err := s.accounts.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			utils.CheckPassword(password, dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	locked, err := s.lockout.Locked(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, ErrAccountLocked
	}

	if !utils.CheckPassword(password, account.PasswordHash) {
		if nowLocked, ferr := s.lockout.RecordFailure(ctx, account.ID); ferr != nil {
			s.logger.Error("record password failure", zap.Error(ferr))
		} else if nowLocked {
			s.logger.Warn("account locked after repeated failures", zap.String("account_id", account.ID.String()))
		}
		return nil, ErrInvalidCredentials
	}

	handle, err := NewPendingHandle()
	if err != nil {
		return nil, err
	}
	pending := &models.PendingAuth{
		Handle:    handle,
		AccountID: account.ID,
		Username:  account.Username,
		ExpiresAt: s.now().Add(s.cfg.PendingTTL),
	}
	if err := s.pending.Put(ctx, pending, s.cfg.PendingTTL); err != nil {
		return nil, err
	}
	return pending, nil
}

// VerifyTOTP is login step 2: it consumes the pending handle and the matched
// RFC 6238 counter, then mints a session. A numerically correct code is
// rejected when its counter was already consumed (replay) or the account is
// locked.
func (s *Service) VerifyTOTP(ctx context.Context, issuer SessionIssuer, handle, code string) (string, *models.Session, *models.Account, error) {
	pending, err := s.pending.Get(ctx, handle)
	if err != nil {
		return "", nil, nil, err
	}
	if s.now().After(pending.ExpiresAt) {
		_ = s.pending.Delete(ctx, handle)
		return "", nil, nil, ErrPendingExpired
	}

	account, err := s.accounts.GetByID(ctx, pending.AccountID)
	if err != nil {
		return "", nil, nil, err
	}

	locked, err := s.lockout.Locked(ctx, account.ID)
	if err != nil {
		return "", nil, nil, err
	}
	if locked {
		return "", nil, nil, ErrAccountLocked
	}

	if !totpCodeRe.MatchString(code) {
		return "", nil, nil, s.totpFailure(ctx, account)
	}
	counter, ok := matchTOTPCode(account.TOTPSecret, code, s.now())
	if !ok {
		return "", nil, nil, s.totpFailure(ctx, account)
	}
	consumed, err := s.replay.ConsumeCounter(ctx, account.ID, counter)
	if err != nil {
		return "", nil, nil, err
	}
	if !consumed {
		return "", nil, nil, s.totpFailure(ctx, account)
	}

	if err := s.lockout.Reset(ctx, account.ID); err != nil {
		s.logger.Error("reset failure counter", zap.Error(err))
	}
	_ = s.pending.Delete(ctx, handle)

	token, session, err := issuer.Issue(ctx, account.ID, account.Role)
	if err != nil {
		return "", nil, nil, err
	}
	return token, session, account, nil
}

// totpFailure records a failed second-factor attempt and returns the
// caller-visible error: AccountLocked when the attempt tipped the account
// over the threshold, InvalidCode otherwise.
func (s *Service) totpFailure(ctx context.Context, account *models.Account) error {
	nowLocked, err := s.lockout.RecordFailure(ctx, account.ID)
	if err != nil {
		s.logger.Error("record totp failure", zap.Error(err))
		return ErrInvalidCode
	}
	if nowLocked {
		s.logger.Warn("account locked after repeated failures", zap.String("account_id", account.ID.String()))
		return ErrAccountLocked
	}
	return ErrInvalidCode
}

// ListAccounts returns all accounts for admin auditing.
func (s *Service) ListAccounts(ctx context.Context) ([]models.AccountPublic, error) {
	return s.accounts.List(ctx)
}
