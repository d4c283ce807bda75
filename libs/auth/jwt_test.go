package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHS256RoundTrip(t *testing.T) {
	now := time.Now()
	claims := NewClaims("user-1", "student", "Ada", now, time.Hour)
	secret := "test-secret"

	token, err := SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, secret, now)
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Sub != claims.Sub || parsed.Role != claims.Role || parsed.Name != claims.Name {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret", now); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
	if _, err := ParseAndVerifyHS256(token, secret, now.Add(2*time.Hour)); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseRejectsTokenWithoutExpiry(t *testing.T) {
	secret := "test-secret"
	token, err := SignHS256(Claims{Sub: "user-1", Role: "student", Iat: time.Now().Unix()}, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, secret, time.Now()); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for token without exp, got %v", err)
	}
}

func TestSignRequiresSecret(t *testing.T) {
	if _, err := SignHS256(Claims{Sub: "x"}, ""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestRequireAuth(t *testing.T) {
	secret := "test-secret"
	token, err := SignHS256(NewClaims("tutor-1", "tutor", "", time.Now(), time.Hour), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	var seen string
	next := func(w http.ResponseWriter, r *http.Request) {
		c, ok := ClaimsFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		seen = c.Sub
		w.WriteHeader(http.StatusOK)
	}

	tests := []struct {
		name   string
		roles  []string
		header string
		want   int
	}{
		{name: "missing header", want: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong role", roles: []string{"student"}, header: "Bearer " + token, want: http.StatusForbidden},
		{name: "ok", roles: []string{"tutor"}, header: "Bearer " + token, want: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := RequireAuth(secret, tc.roles...)(next)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rw := httptest.NewRecorder()
			h(rw, req)
			if rw.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rw.Code)
			}
		})
	}
	if seen != "tutor-1" {
		t.Fatalf("expected claims on context, got %q", seen)
	}
}
