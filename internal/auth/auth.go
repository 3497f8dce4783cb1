package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
)

// Request signing headers
const (
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

// DefaultMaxSkew bounds how far a request timestamp may drift from server time
const DefaultMaxSkew = 60 * time.Second

// Errors are returned to clients verbatim
var (
	ErrMissingHeaders = errors.New("missing auth headers")
	ErrStaleTimestamp = errors.New("stale timestamp")
	ErrBadSignature   = errors.New("bad signature")
)

// signatureHexLen is the hex length of an HMAC-SHA256 digest
const signatureHexLen = sha256.Size * 2

// Verifier checks request signatures against a shared secret
type Verifier struct {
	secret  []byte
	maxSkew time.Duration
	clock   clock.Clock
}

// NewVerifier creates a verifier. A zero maxSkew uses DefaultMaxSkew.
func NewVerifier(secret string, maxSkew time.Duration, clk clock.Clock) *Verifier {
	if maxSkew == 0 {
		maxSkew = DefaultMaxSkew
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Verifier{
		secret:  []byte(secret),
		maxSkew: maxSkew,
		clock:   clk,
	}
}

// Verify validates the timestamp and signature headers of a request.
// path must be the raw request path including its query string.
func (v *Verifier) Verify(method, path string, body []byte, timestamp, signature string) error {
	if timestamp == "" || signature == "" {
		return ErrMissingHeaders
	}

	// Any finite number is accepted; clients normally send whole seconds
	ts, err := strconv.ParseFloat(timestamp, 64)
	if err != nil || math.IsNaN(ts) || math.IsInf(ts, 0) {
		return ErrStaleTimestamp
	}
	now := float64(v.clock.Now().UnixNano()) / float64(time.Second)
	if math.Abs(now-ts) > v.maxSkew.Seconds() {
		return ErrStaleTimestamp
	}

	// Shape check first so the decode below cannot fail part way
	if !isHexDigest(signature) {
		return ErrBadSignature
	}
	given, err := hex.DecodeString(signature)
	if err != nil {
		return ErrBadSignature
	}

	expected := compute(v.secret, timestamp, method, path, body)
	if !hmac.Equal(given, expected) {
		return ErrBadSignature
	}
	return nil
}

// Sign returns the lowercase hex signature for a request
func Sign(secret []byte, timestamp, method, path string, body []byte) string {
	return hex.EncodeToString(compute(secret, timestamp, method, path, body))
}

// Timestamp formats t as the X-Timestamp header value
func Timestamp(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func compute(secret []byte, timestamp, method, path string, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(body)
	return mac.Sum(nil)
}

// isHexDigest reports whether s is exactly one hex-encoded SHA-256 digest
func isHexDigest(s string) bool {
	if len(s) != signatureHexLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
