package usertoken

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"docvault/pkg/domain"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestCodec(t *testing.T, opts Options) *Codec {
	t.Helper()
	if opts.Secret == nil {
		opts.Secret = testSecret
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	c := newTestCodec(t, Options{})
	token, err := c.Issue("u-1", domain.RoleManager)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	claims, err := c.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.UserID != "u-1" {
		t.Fatalf("UserID = %q, want u-1", claims.UserID)
	}
	if claims.Role != domain.RoleManager {
		t.Fatalf("Role = %q, want manager", claims.Role)
	}
	if claims.SessionID == "" {
		t.Fatalf("SessionID should be populated from jti")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuing := newTestCodec(t, Options{TTL: time.Millisecond, Leeway: time.Nanosecond})
	token, err := issuing.Issue("u-1", domain.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := issuing.Verify(token); err == nil {
		t.Fatalf("Verify() should reject an expired token")
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	issuing := newTestCodec(t, Options{Audience: "other-api"})
	verifying := newTestCodec(t, Options{})
	token, err := issuing.Issue("u-1", domain.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := verifying.Verify(token); err == nil {
		t.Fatalf("Verify() should reject a token for another audience")
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	c := newTestCodec(t, Options{})
	token, err := c.Issue("u-1", domain.RoleUser)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, err := c.Verify(tampered); err == nil {
		t.Fatalf("Verify() should reject a tampered token")
	}
}

func TestNewRequiresStrongSecret(t *testing.T) {
	if _, err := New(Options{Secret: []byte("short")}); err == nil {
		t.Fatalf("New() should reject short secrets")
	}
}

func TestBearerToken(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/", nil)
	if _, ok := BearerToken(r); ok {
		t.Fatalf("BearerToken() should fail without header")
	}
	r.Header.Set("Authorization", "Bearer  abc.def.ghi ")
	token, ok := BearerToken(r)
	if !ok || strings.TrimSpace(token) != "abc.def.ghi" {
		t.Fatalf("BearerToken() = %q, %v", token, ok)
	}
}
