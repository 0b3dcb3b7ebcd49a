package sessiontoken

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueVerify(t *testing.T) {
	issuer := New("secret", time.Hour)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	token := issuer.Issue(now)
	if err := issuer.Verify(token, now); err != nil {
		t.Errorf("fresh token rejected: %v", err)
	}
	if err := issuer.Verify(token, now.Add(59*time.Minute)); err != nil {
		t.Errorf("token rejected before expiry: %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	issuer := New("secret", time.Hour)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	token := issuer.Issue(now)
	if err := issuer.Verify(token, now.Add(61*time.Minute)); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify after expiry = %v, want ErrExpiredToken", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	issuer := New("secret", time.Hour)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	token := issuer.Issue(now)

	expiry, mac, _ := strings.Cut(token, ".")

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"no separator", "justonestring"},
		{"garbage", "not.atoken"},
		{"extended expiry", "9999999999." + mac},
		{"flipped mac byte", expiry + "." + flipHexDigit(mac)},
		{"non-numeric expiry", "soon." + mac},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := issuer.Verify(tt.token, now); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify(%q) = %v, want ErrInvalidToken", tt.token, err)
			}
		})
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	token := New("secret-a", time.Hour).Issue(now)

	if err := New("secret-b", time.Hour).Verify(token, now); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("token signed with a different secret verified: %v", err)
	}
}

func TestTTL(t *testing.T) {
	if got := New("s", 12*time.Hour).TTL(); got != 12*time.Hour {
		t.Errorf("TTL() = %v, want 12h", got)
	}
}

func flipHexDigit(s string) string {
	b := []byte(s)
	if b[0] == 'a' {
		b[0] = 'b'
	} else {
		b[0] = 'a'
	}
	return string(b)
}
