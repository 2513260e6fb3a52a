// Package signature authenticates inbound chat-platform webhooks.
//
// The platform signs every delivery with HMAC-SHA256 over the base string
// "v0:<timestamp>:<raw body>" and sends the result as "v0=<hex>" alongside
// the unix timestamp it used. A request is accepted only when the signature
// matches and the timestamp is within the replay window.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"
)

const (
	// TimestampHeader carries the unix seconds the platform signed with.
	TimestampHeader = "X-Platform-Request-Timestamp"
	// SignatureHeader carries the "v0=<hex>" signature.
	SignatureHeader = "X-Platform-Signature"

	// DefaultTolerance is the replay window on either side of now.
	DefaultTolerance = 300 * time.Second

	version = "v0"
)

var (
	ErrNoSecret         = errors.New("signature: no signing secret configured")
	ErrMissingHeader    = errors.New("signature: missing timestamp or signature")
	ErrInvalidTimestamp = errors.New("signature: invalid timestamp")
	ErrStale            = errors.New("signature: timestamp outside replay window")
	ErrMismatch         = errors.New("signature: mismatch")
)

// Option configures a Verifier.
type Option func(*Verifier)

// WithTolerance overrides the replay window.
func WithTolerance(d time.Duration) Option {
	return func(v *Verifier) {
		v.tolerance = d
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// Verifier checks request signatures against a shared secret.
// It holds no per-request state and is safe for concurrent use.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// New creates a Verifier for the given shared secret.
func New(secret string, opts ...Option) *Verifier {
	v := &Verifier{
		secret:    []byte(secret),
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Sign returns the "v0=<hex>" signature for timestamp and body.
func (v *Verifier) Sign(timestamp string, body []byte) string {
	return version + "=" + hex.EncodeToString(v.mac(timestamp, body))
}

// SignNow stamps body with the current time and returns the timestamp header
// value together with its signature.
func (v *Verifier) SignNow(body []byte) (timestamp, sig string) {
	timestamp = strconv.FormatInt(v.now().Unix(), 10)
	return timestamp, v.Sign(timestamp, body)
}

// Check reports why a request fails verification, or nil if it passes.
// The error is meant for server-side logs only; callers must not echo it.
func (v *Verifier) Check(timestamp, sig string, body []byte) error {
	if len(v.secret) == 0 {
		return ErrNoSecret
	}
	if timestamp == "" || sig == "" {
		return ErrMissingHeader
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}

	// Compare in whole seconds; time.Duration saturates for far-off timestamps.
	now, tol := v.now().Unix(), int64(v.tolerance/time.Second)
	if ts < now-tol || ts > now+tol {
		return ErrStale
	}

	expected := v.Sign(timestamp, body)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
		return ErrMismatch
	}
	return nil
}

// Verify reports whether the request is authentic and fresh.
func (v *Verifier) Verify(timestamp, sig string, body []byte) bool {
	return v.Check(timestamp, sig, body) == nil
}

// VerifyRequest reads the signature headers from h and verifies body.
func (v *Verifier) VerifyRequest(h http.Header, body []byte) bool {
	return v.Verify(h.Get(TimestampHeader), h.Get(SignatureHeader), body)
}

func (v *Verifier) mac(timestamp string, body []byte) []byte {
	m := hmac.New(sha256.New, v.secret)
	m.Write([]byte(version + ":" + timestamp + ":"))
	m.Write(body)
	return m.Sum(nil)
}
