package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTP policy: 6 digits, 30-second step, current step ±3 (±90 seconds)
// to absorb clock drift on both ends of a radio link.
const (
	codePeriod = 30
	codeSkew   = 3
	codeDigits = otp.DigitsSix

	// replayTTL is how long a successfully used code is remembered.
	// Matches the validity window, after which the code is dead anyway.
	replayTTL = codePeriod * codeSkew * time.Second
)

// Caller-facing responses. Deliberately uniform: an unknown callsign and
// a wrong code produce the same message so the channel leaks nothing
// about which identities exist.
const (
	MsgAuthOK      = "Authentication successful."
	MsgInvalid     = "Invalid callsign or code."
	MsgRateLimited = "Too many failed attempts. Try again later."
	MsgReplay      = "Code already used. Wait for next code."
)

// decoySecret is a well-formed base32 secret used to burn an
// equivalent-cost verification for unknown identities, keeping their
// timing class identical to known-identity failures.
const decoySecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

// SecretSource resolves an identity to its shared TOTP secret.
// Implementations are read-only to this package.
type SecretSource interface {
	Secret(identity string) (string, bool)
}

// Authenticator verifies time-based one-time codes, gated by a
// RateLimiter and protected against code replay.
type Authenticator struct {
	secrets SecretSource
	limiter *RateLimiter

	mu   sync.Mutex
	used map[string]map[string]time.Time // identity -> code -> expiry
	now  func() time.Time
}

// NewAuthenticator creates an authenticator over the given secret
// source and rate limiter.
func NewAuthenticator(secrets SecretSource, limiter *RateLimiter) *Authenticator {
	return &Authenticator{
		secrets: secrets,
		limiter: limiter,
		used:    make(map[string]map[string]time.Time),
		now:     time.Now,
	}
}

// Verify checks a one-time code for an identity. The returned message
// is safe to send to the caller verbatim.
func (a *Authenticator) Verify(identity, code string) (bool, string) {
	identity = strings.ToUpper(strings.TrimSpace(identity))

	if a.limiter.IsLocked(identity) {
		return false, MsgRateLimited
	}

	secret, known := a.secrets.Secret(identity)
	if !known {
		// Same work and same message as a wrong code for a real identity.
		a.validate(code, decoySecret)
		a.limiter.RecordFailure(identity)
		return false, MsgInvalid
	}

	if a.isReplay(identity, code) {
		return false, MsgReplay
	}

	if !a.validate(code, secret) {
		a.limiter.RecordFailure(identity)
		return false, MsgInvalid
	}

	a.consume(identity, code)
	a.limiter.RecordSuccess(identity)
	return true, MsgAuthOK
}

func (a *Authenticator) validate(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, a.now().UTC(), totp.ValidateOpts{
		Period:    codePeriod,
		Skew:      codeSkew,
		Digits:    codeDigits,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// isReplay reports whether the code was already used inside its
// validity window. Expired entries are purged on the way through.
func (a *Authenticator) isReplay(identity, code string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	codes := a.used[identity]
	for c, expiry := range codes {
		if !expiry.After(now) {
			delete(codes, c)
		}
	}
	if len(codes) == 0 {
		delete(a.used, identity)
		return false
	}
	_, seen := codes[code]
	return seen
}

func (a *Authenticator) consume(identity, code string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.used[identity] == nil {
		a.used[identity] = make(map[string]time.Time)
	}
	a.used[identity][code] = a.now().Add(replayTTL)
}
