package code

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"

	"edutrack/internal/metrics"
	"edutrack/internal/session"
)

// DefaultAlphabet leaves out glyphs that are easy to misread (0/O, 1/I/L).
const DefaultAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	DefaultLength     = 6
	DefaultMaxRetries = 8
)

var (
	ErrInvalidCode = errors.New("invalid attendance code")
	ErrExpired     = fmt.Errorf("%w: expired", ErrInvalidCode)
	ErrMismatch    = fmt.Errorf("%w: mismatch", ErrInvalidCode)

	// ErrIssuanceExhausted means every generated candidate collided with an
	// unexpired code. It is an operational fault, not a user error.
	ErrIssuanceExhausted = errors.New("code issuance exhausted")

	ErrSessionEnded = errors.New("session has ended")
	ErrNoCode       = errors.New("no current code")
)

// Reason returns "expired" or "mismatch" for validation failures.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrMismatch):
		return "mismatch"
	default:
		return ""
	}
}

// Code is the attendance code of one session.
type Code struct {
	SessionID string    `json:"session_id"`
	Value     string    `json:"code"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the code is no longer valid at now.
func (c Code) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Store keeps reserved code values and the current-code pointer per session.
type Store interface {
	// Reserve claims c.Value until c.ExpiresAt. It returns false when another
	// unexpired code already holds the value.
	Reserve(ctx context.Context, c Code) (bool, error)
	// SetCurrent replaces the session's current code in one step.
	SetCurrent(ctx context.Context, c Code) error
	// Current returns ErrNoCode when the session never had a code.
	Current(ctx context.Context, sessionID string) (Code, error)
}

// Locker is implemented by stores shared between app instances. TryLock
// claims the right to issue for one session until ttl passes or release runs.
type Locker interface {
	TryLock(ctx context.Context, sessionID string, ttl time.Duration) (release func(), ok bool, err error)
}

const (
	lockTTL      = 5 * time.Second
	lockPoll     = 20 * time.Millisecond
	lockAttempts = 100
)

// Config controls code generation.
type Config struct {
	Length     int
	Alphabet   string
	MaxRetries int
}

// Issuer generates and validates attendance codes.
type Issuer struct {
	store      Store
	length     int
	alphabet   string
	maxRetries int
	generate   func(length int, alphabet string) (string, error)
	log        zerolog.Logger

	mu sync.Mutex
}

// NewIssuer creates an issuer; zero config values take the defaults.
func NewIssuer(store Store, cfg Config, log zerolog.Logger) *Issuer {
	if cfg.Length <= 0 {
		cfg.Length = DefaultLength
	}
	cfg.Alphabet = strings.ToUpper(cfg.Alphabet)
	if len(cfg.Alphabet) < 2 {
		cfg.Alphabet = DefaultAlphabet
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &Issuer{
		store:      store,
		length:     cfg.Length,
		alphabet:   cfg.Alphabet,
		maxRetries: cfg.MaxRetries,
		generate:   randomCode,
		log:        log.With().Str("component", "code").Logger(),
	}
}

// Issue generates a fresh code for s and makes it the current one. The code
// expires at the session end. Previous codes stop validating as soon as the
// new pointer is stored.
func (i *Issuer) Issue(ctx context.Context, s session.Session, now time.Time) (Code, error) {
	if !now.Before(s.End) {
		return Code{}, fmt.Errorf("%w: %s", ErrSessionEnded, s.ID)
	}
	for attempt := 1; attempt <= i.maxRetries; attempt++ {
		value, err := i.generate(i.length, i.alphabet)
		if err != nil {
			return Code{}, fmt.Errorf("generate code: %w", err)
		}
		c := Code{SessionID: s.ID, Value: value, IssuedAt: now, ExpiresAt: s.End}
		ok, err := i.store.Reserve(ctx, c)
		if err != nil {
			return Code{}, fmt.Errorf("reserve code: %w", err)
		}
		if !ok {
			i.log.Debug().Str("session_id", s.ID).Int("attempt", attempt).Msg("code collision")
			continue
		}
		if err := i.store.SetCurrent(ctx, c); err != nil {
			return Code{}, fmt.Errorf("store current code: %w", err)
		}
		metrics.CodesIssued.Inc()
		i.log.Info().Str("session_id", s.ID).Time("expires_at", c.ExpiresAt).Msg("code issued")
		return c, nil
	}
	i.log.Error().Str("session_id", s.ID).Int("attempts", i.maxRetries).Msg("code issuance exhausted")
	return Code{}, fmt.Errorf("%w after %d attempts", ErrIssuanceExhausted, i.maxRetries)
}

// Validate checks submitted against the session's current code. A value
// that is not the current one is a mismatch even if it was valid before.
func (i *Issuer) Validate(ctx context.Context, s session.Session, submitted string, now time.Time) error {
	cur, err := i.store.Current(ctx, s.ID)
	if err != nil && !errors.Is(err, ErrNoCode) {
		return err
	}
	got := normalize(submitted)
	switch {
	case err != nil || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(cur.Value)) != 1:
		metrics.CodeValidations.WithLabelValues("mismatch").Inc()
		return ErrMismatch
	case cur.Expired(now):
		metrics.CodeValidations.WithLabelValues("expired").Inc()
		return ErrExpired
	}
	metrics.CodeValidations.WithLabelValues("ok").Inc()
	return nil
}

// Current returns the session's current code, expired or not.
func (i *Issuer) Current(ctx context.Context, s session.Session) (Code, error) {
	return i.store.Current(ctx, s.ID)
}

// Ensure returns the current code when it is still valid at now, and issues
// a new one otherwise. Stores shared between processes also implement Locker,
// and only the instance holding the session lock may issue; the others wait
// for its pointer to appear.
func (i *Issuer) Ensure(ctx context.Context, s session.Session, now time.Time) (Code, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if cur, ok, err := i.valid(ctx, s, now); ok || err != nil {
		return cur, err
	}
	locker, shared := i.store.(Locker)
	if !shared {
		return i.Issue(ctx, s, now)
	}
	for attempt := 0; attempt < lockAttempts; attempt++ {
		release, held, err := locker.TryLock(ctx, s.ID, lockTTL)
		if err != nil {
			return Code{}, fmt.Errorf("lock session %s: %w", s.ID, err)
		}
		if held {
			defer release()
			if cur, ok, err := i.valid(ctx, s, now); ok || err != nil {
				return cur, err
			}
			return i.Issue(ctx, s, now)
		}
		select {
		case <-ctx.Done():
			return Code{}, ctx.Err()
		case <-time.After(lockPoll):
		}
		if cur, ok, err := i.valid(ctx, s, now); ok || err != nil {
			return cur, err
		}
	}
	i.log.Warn().Str("session_id", s.ID).Msg("issuing lock not released, issuing anyway")
	return i.Issue(ctx, s, now)
}

// valid returns the current code when one exists and is unexpired at now.
func (i *Issuer) valid(ctx context.Context, s session.Session, now time.Time) (Code, bool, error) {
	cur, err := i.store.Current(ctx, s.ID)
	switch {
	case err == nil && !cur.Expired(now):
		return cur, true, nil
	case err != nil && !errors.Is(err, ErrNoCode):
		return Code{}, false, err
	}
	return Code{}, false, nil
}

// QR renders the code value as a PNG.
func QR(c Code, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(c.Value, qrcode.Medium, size)
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func randomCode(length int, alphabet string) (string, error) {
	size := big.NewInt(int64(len(alphabet)))
	var b strings.Builder
	b.Grow(length)
	for n := 0; n < length; n++ {
		idx, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return b.String(), nil
}
