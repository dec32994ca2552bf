package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestTokens_RoundTrip(t *testing.T) {
	tokens, err := NewTokens("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	id := uuid.New()

	tok, err := tokens.Issue(id)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := tokens.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	got, err := claims.SessionID()
	if err != nil || got != id {
		t.Errorf("SessionID = %v, %v; want %v", got, err, id)
	}
}

func TestTokens_Rejects(t *testing.T) {
	tokens, _ := NewTokens("test-secret", time.Minute)
	other, _ := NewTokens("other-secret", time.Minute)

	foreign, _ := other.Issue(uuid.New())

	expiredIssuer, _ := NewTokens("test-secret", time.Minute)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _ := expiredIssuer.Issue(uuid.New())

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: uuid.NewString(),
		Issuer:  issuer,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	badSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "not-a-uuid",
		Issuer:  issuer,
	}).SignedString([]byte("test-secret"))

	tests := map[string]string{
		"garbage":     "abc.def.ghi",
		"wrong key":   foreign,
		"expired":     expired,
		"alg none":    none,
		"bad subject": badSubject,
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := tokens.Verify(tok); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestNewTokens_RandomSecret(t *testing.T) {
	a, _ := NewTokens("", time.Hour)
	b, _ := NewTokens("", time.Hour)

	tok, _ := a.Issue(uuid.New())
	if _, err := a.Verify(tok); err != nil {
		t.Fatalf("own token rejected: %v", err)
	}
	if _, err := b.Verify(tok); err == nil {
		t.Error("token verified under a different random secret")
	}
}

func TestJWTMiddleware(t *testing.T) {
	tokens, _ := NewTokens("test-secret", time.Hour)
	id := uuid.New()
	tok, _ := tokens.Issue(id)

	var seen uuid.UUID
	h := NewJWTMiddleware(tokens).Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context()).SessionID()
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + tok, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + tok, http.StatusUnauthorized},
		{"tampered", "Bearer " + tok + "x", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	if seen != id {
		t.Errorf("claims in context = %v, want %v", seen, id)
	}
}
