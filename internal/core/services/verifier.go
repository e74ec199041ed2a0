package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/nexus/internal/core/domain"
)

// DefaultReplayWindow is how far a request timestamp may drift from now.
const DefaultReplayWindow = 5 * time.Minute

const signatureVersion = "v0"

// Verifier authenticates signed Slack requests.
type Verifier struct {
	secret []byte
	window time.Duration
	now    func() time.Time
}

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	SigningSecret string
	Window        time.Duration // default: 5m
	Now           func() time.Time
}

// NewVerifier creates a webhook verifier.
func NewVerifier(cfg VerifierConfig) *Verifier {
	window := cfg.Window
	if window <= 0 {
		window = DefaultReplayWindow
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Verifier{secret: []byte(cfg.SigningSecret), window: window, now: now}
}

// Window returns the replay window, which also bounds delivery dedup.
func (v *Verifier) Window() time.Duration {
	return v.window
}

// Verify checks the timestamp against the replay window, then the signature.
// A stale request is rejected as a replay whether or not its signature is valid.
func (v *Verifier) Verify(body []byte, signature, timestamp string) error {
	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return &domain.RejectionError{Reason: domain.RejectionMalformed, Detail: "missing or invalid timestamp"}
	}

	age := v.now().Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > v.window {
		return &domain.RejectionError{Reason: domain.RejectionReplay, Detail: "timestamp outside window"}
	}

	if len(v.secret) == 0 {
		return &domain.RejectionError{Reason: domain.RejectionSignature, Detail: "signing secret not configured"}
	}
	if !strings.HasPrefix(signature, signatureVersion+"=") {
		return &domain.RejectionError{Reason: domain.RejectionSignature, Detail: "missing signature"}
	}

	expected := Sign(v.secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return &domain.RejectionError{Reason: domain.RejectionSignature}
	}
	return nil
}

// Sign returns the signature header value for body sent at timestamp.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(signatureVersion + ":" + timestamp + ":"))
	mac.Write(body)
	return signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}
