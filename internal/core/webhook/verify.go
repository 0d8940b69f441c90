package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Standard Webhooks header names.
const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"

	secretPrefix     = "whsec_"
	signatureVersion = "v1"

	// DefaultTolerance bounds the accepted clock skew of webhook-timestamp.
	DefaultTolerance = 5 * time.Minute
)

var (
	ErrMissingHeaders   = errors.New("missing webhook signature headers")
	ErrInvalidTimestamp = errors.New("invalid webhook timestamp")
	ErrTimestampTooOld  = errors.New("webhook timestamp too old")
	ErrTimestampTooNew  = errors.New("webhook timestamp too new")
	ErrInvalidSignature = errors.New("no matching webhook signature")
	ErrInvalidSecret    = errors.New("invalid webhook secret")
)

// Verifier checks Standard Webhooks signatures: HMAC-SHA256 over
// "id.timestamp.body" keyed with the decoded secret.
type Verifier struct {
	key       []byte
	tolerance time.Duration
	clock     func() time.Time
}

// NewVerifier decodes a base64 secret with an optional "whsec_" prefix.
func NewVerifier(secret string, tolerance time.Duration, clock func() time.Time) (*Verifier, error) {
	secret = strings.TrimPrefix(strings.TrimSpace(secret), secretPrefix)
	if secret == "" {
		return nil, ErrInvalidSecret
	}
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if clock == nil {
		clock = time.Now
	}
	return &Verifier{key: key, tolerance: tolerance, clock: clock}, nil
}

// Verify authenticates body against the webhook headers.
func (v *Verifier) Verify(body []byte, headers http.Header) error {
	id := strings.TrimSpace(headers.Get(HeaderID))
	timestamp := strings.TrimSpace(headers.Get(HeaderTimestamp))
	signatures := strings.TrimSpace(headers.Get(HeaderSignature))
	if id == "" || timestamp == "" || signatures == "" {
		return ErrMissingHeaders
	}

	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	sent := time.Unix(seconds, 0)
	now := v.clock()
	if now.Sub(sent) > v.tolerance {
		return ErrTimestampTooOld
	}
	if sent.Sub(now) > v.tolerance {
		return ErrTimestampTooNew
	}

	expected := v.sign(id, timestamp, body)
	for _, candidate := range strings.Fields(signatures) {
		version, value, ok := strings.Cut(candidate, ",")
		if !ok || version != signatureVersion {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign returns the header value a sender would attach for the given
// delivery, in "v1,<base64>" form.
func (v *Verifier) Sign(id string, sentAt time.Time, body []byte) string {
	digest := v.sign(id, strconv.FormatInt(sentAt.Unix(), 10), body)
	return signatureVersion + "," + base64.StdEncoding.EncodeToString(digest)
}

func (v *Verifier) sign(id, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(id))
	mac.Write([]byte{'.'})
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return mac.Sum(nil)
}
