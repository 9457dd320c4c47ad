// Package otp issues and verifies one-time passwords for mobile numbers and
// exchanges a verified code for a signed token.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"village-assist/internal/sms"
)

var (
	ErrInvalidMobile = errors.New("invalid mobile number")
	ErrRateLimited   = errors.New("too many otp attempts")
	ErrExpired       = errors.New("otp expired or not requested")
	ErrInvalid       = errors.New("invalid otp")
	ErrInvalidToken  = errors.New("invalid token")
)

// CodeStore keeps pending codes and per-number issue counters.
type CodeStore interface {
	Save(ctx context.Context, mobile, code string, ttl time.Duration) error
	// Get returns ErrExpired when no code is pending.
	Get(ctx context.Context, mobile string) (string, error)
	Delete(ctx context.Context, mobile string) error
	// Hit increments the counter for key in the current window and returns
	// the new count.
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Failed verifications are counted under their own key so they do not use up
// the issue allowance.
const verifyKeyPrefix = "verify:"

// DefaultMaxVerifyAttempts wrong codes discard the pending code.
const DefaultMaxVerifyAttempts = 5

type Config struct {
	Length       int
	TTL          time.Duration
	MaxPerWindow int
	Window       time.Duration
	// MaxVerifyAttempts wrong codes within TTL discard the pending code.
	MaxVerifyAttempts int
	Secret       []byte
	TokenTTL     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Length <= 0 {
		c.Length = 4
	}
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.MaxPerWindow <= 0 {
		c.MaxPerWindow = 3
	}
	if c.Window <= 0 {
		c.Window = 10 * time.Minute
	}
	if c.MaxVerifyAttempts <= 0 {
		c.MaxVerifyAttempts = DefaultMaxVerifyAttempts
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 24 * time.Hour
	}
	return c
}

type Service struct {
	cfg    Config
	store  CodeStore
	sender sms.Sender
	log    *slog.Logger
	now    func() time.Time
}

func NewService(cfg Config, store CodeStore, sender sms.Sender, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:    cfg.withDefaults(),
		store:  store,
		sender: sender,
		log:    log.With("component", "otp"),
		now:    time.Now,
	}
}

var mobileRe = regexp.MustCompile(`^[0-9]{10}$`)

// NormalizeMobile strips separators and an Indian country prefix and checks
// that exactly ten digits remain.
func NormalizeMobile(mobile string) (string, error) {
	m := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(mobile))
	m = strings.TrimPrefix(m, "+91")
	if len(m) == 12 && strings.HasPrefix(m, "91") {
		m = m[2:]
	}
	if !mobileRe.MatchString(m) {
		return "", ErrInvalidMobile
	}
	return m, nil
}

// Issue generates, stores and sends a code. SMS delivery failures are logged
// and not returned, so the caller's response does not reveal gateway state.
func (s *Service) Issue(ctx context.Context, mobile string) error {
	m, err := NormalizeMobile(mobile)
	if err != nil {
		return err
	}

	count, err := s.store.Hit(ctx, m, s.cfg.Window)
	if err != nil {
		s.log.Warn("otp rate limiter unavailable", "mobile", sms.Mask(m), "err", err)
	} else if count > int64(s.cfg.MaxPerWindow) {
		return ErrRateLimited
	}

	code, err := generateCode(s.cfg.Length)
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	if err := s.store.Save(ctx, m, code, s.cfg.TTL); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	if err := s.sender.SendOTP(ctx, m, code); err != nil {
		s.log.Error("otp sms failed", "mobile", sms.Mask(m), "err", err)
	}
	return nil
}

// Verify checks code and, on success, consumes it and returns a signed token
// whose subject is the mobile number. After MaxVerifyAttempts wrong codes the
// pending code is discarded and ErrRateLimited is returned.
func (s *Service) Verify(ctx context.Context, mobile, code string) (string, error) {
	m, err := NormalizeMobile(mobile)
	if err != nil {
		return "", err
	}
	want, err := s.store.Get(ctx, m)
	if err != nil {
		return "", err
	}
	code = strings.TrimSpace(code)
	if subtle.ConstantTimeCompare([]byte(want), []byte(code)) != 1 {
		return "", s.failedAttempt(ctx, m)
	}
	if err := s.store.Delete(ctx, m); err != nil {
		s.log.Warn("failed to delete used otp", "mobile", sms.Mask(m), "err", err)
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   m,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (s *Service) failedAttempt(ctx context.Context, m string) error {
	fails, err := s.store.Hit(ctx, verifyKeyPrefix+m, s.cfg.TTL)
	if err != nil {
		// Without a counter the code cannot be guarded, so it is dropped.
		s.log.Warn("otp attempt counter unavailable", "mobile", sms.Mask(m), "err", err)
		fails = int64(s.cfg.MaxVerifyAttempts)
	}
	if fails < int64(s.cfg.MaxVerifyAttempts) {
		return ErrInvalid
	}
	if err := s.store.Delete(ctx, m); err != nil {
		s.log.Error("failed to discard guessed otp", "mobile", sms.Mask(m), "err", err)
	}
	s.log.Warn("otp discarded after failed attempts", "mobile", sms.Mask(m), "attempts", fails)
	return ErrRateLimited
}

// ParseToken validates a token issued by Verify and returns its mobile number.
func (s *Service) ParseToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.cfg.Secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func generateCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
