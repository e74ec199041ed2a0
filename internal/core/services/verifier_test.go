package services

import (
	"strconv"
	"testing"
	"time"

	"github.com/custodia-labs/nexus/internal/core/domain"
)

const testSigningSecret = "8f742231b10e8888abcd99yyyzzz85a5"

func TestVerifier_Verify(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	v := NewVerifier(VerifierConfig{SigningSecret: testSigningSecret, Now: fixedClock(now)})
	body := []byte("command=%2Fnexus&text=retention")

	fresh := strconv.FormatInt(now.Unix(), 10)
	stale := strconv.FormatInt(now.Add(-6*time.Minute).Unix(), 10)
	future := strconv.FormatInt(now.Add(6*time.Minute).Unix(), 10)
	edge := strconv.FormatInt(now.Add(-5*time.Minute).Unix(), 10)

	tests := []struct {
		name      string
		body      []byte
		signature string
		timestamp string
		want      domain.RejectionReason
	}{
		{"valid", body, Sign([]byte(testSigningSecret), fresh, body), fresh, ""},
		{"at window edge", body, Sign([]byte(testSigningSecret), edge, body), edge, ""},
		{"tampered body", []byte("command=%2Fnexus&text=other"), Sign([]byte(testSigningSecret), fresh, body), fresh, domain.RejectionSignature},
		{"wrong secret", body, Sign([]byte("other-secret"), fresh, body), fresh, domain.RejectionSignature},
		{"missing signature", body, "", fresh, domain.RejectionSignature},
		{"wrong version", body, "v1=" + Sign([]byte(testSigningSecret), fresh, body)[3:], fresh, domain.RejectionSignature},
		{"stale with valid signature", body, Sign([]byte(testSigningSecret), stale, body), stale, domain.RejectionReplay},
		{"future timestamp", body, Sign([]byte(testSigningSecret), future, body), future, domain.RejectionReplay},
		{"stale with bad signature", body, "v0=deadbeef", stale, domain.RejectionReplay},
		{"missing timestamp", body, Sign([]byte(testSigningSecret), fresh, body), "", domain.RejectionMalformed},
		{"non-numeric timestamp", body, "v0=abc", "yesterday", domain.RejectionMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.body, tt.signature, tt.timestamp)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("expected valid request, got %v", err)
				}
				return
			}
			reason, ok := domain.IsRejection(err)
			if !ok {
				t.Fatalf("expected RejectionError, got %v", err)
			}
			if reason != tt.want {
				t.Errorf("expected reason %s, got %s", tt.want, reason)
			}
		})
	}
}

func TestVerifier_EmptySecretRejectsEverything(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	v := NewVerifier(VerifierConfig{Now: fixedClock(now)})
	ts := strconv.FormatInt(now.Unix(), 10)
	body := []byte("{}")

	err := v.Verify(body, Sign(nil, ts, body), ts)
	if reason, ok := domain.IsRejection(err); !ok || reason != domain.RejectionSignature {
		t.Errorf("expected signature rejection, got %v", err)
	}
}

func TestVerifier_DefaultWindow(t *testing.T) {
	v := NewVerifier(VerifierConfig{SigningSecret: "s"})
	if v.Window() != DefaultReplayWindow {
		t.Errorf("expected %v, got %v", DefaultReplayWindow, v.Window())
	}
}

func TestSign_KnownVector(t *testing.T) {
	// Example request from the Slack request signing documentation.
	body := []byte("token=xyzz0WbapA4vBCDEFasx0q6G&team_id=T1DC2JH3J&team_domain=testteamnow&channel_id=G8PSS9T3V&channel_name=foobar&user_id=U2CERLKJA&user_name=roadrunner&command=%2Fwebhook-collect&text=&response_url=https%3A%2F%2Fhooks.slack.com%2Fcommands%2FT1DC2JH3J%2F397700885554%2F96rGlfmibIGlgcZRskXaIFfN&trigger_id=398738663015.47445629121.803a0bc887a14d10d2c447fce8b6703c")
	got := Sign([]byte(testSigningSecret), "1531420618", body)
	want := "v0=a2114d57b48eac39b9ad189dd8316235a7b4a8d21a10bd27519666489c69b503"
	if got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
}
