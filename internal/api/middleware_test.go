/**
 * @description
 * Tests for the Clerk JWT middleware and the internal API key guard. The JWT
 * tests run against a local JWKS endpoint serving a freshly generated key.
 */
package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func jwksFor(t *testing.T, kid string, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()
	body := fmt.Sprintf(`{"keys":[{"kid":%q,"kty":"RSA","alg":"RS256","n":%q,"e":%q}]}`,
		kid,
		base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestClerkAuthMiddlewareAcceptsSignedToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	srv := jwksFor(t, "kid_1", key)

	var gotUser string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = GetClerkUserID(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, key, "kid_1", "user_42"))
	rec := httptest.NewRecorder()
	ClerkAuthMiddleware(srv.URL)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if gotUser != "user_42" {
		t.Errorf("user from context = %q, want user_42", gotUser)
	}
}

func TestClerkAuthMiddlewareRejectsForeignKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	foreign, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	srv := jwksFor(t, "kid_1", key)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler ran despite a token signed by the wrong key")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, foreign, "kid_1", "user_42"))
	rec := httptest.NewRecorder()
	ClerkAuthMiddleware(srv.URL)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestClerkAuthMiddlewareRejectsMalformedRequests(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler ran without a valid token")
	})
	mw := ClerkAuthMiddleware("http://127.0.0.1:0/jwks")(next)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Token abc"},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", tc.name, rec.Code)
		}
	}
}

func TestGetClerkUserIDMissing(t *testing.T) {
	if _, ok := GetClerkUserID(context.Background()); ok {
		t.Error("expected no user ID on an empty context")
	}
}

func TestInternalKeyMiddleware(t *testing.T) {
	ran := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ran = true
	})
	mw := InternalKeyMiddleware("internal-key")(next)

	req := httptest.NewRequest(http.MethodGet, "/internal/sweeps", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/internal/sweeps", nil)
	req.Header.Set("X-Internal-API-Key", "wrong")
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/internal/sweeps", nil)
	req.Header.Set("X-Internal-API-Key", "internal-key")
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !ran {
		t.Errorf("correct key: status = %d, ran = %v, want 200 and handler run", rec.Code, ran)
	}
}

func TestInternalKeyMiddlewareDisabledWithoutKey(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler ran with the internal surface disabled")
	})
	mw := InternalKeyMiddleware("")(next)

	req := httptest.NewRequest(http.MethodGet, "/internal/sweeps", nil)
	req.Header.Set("X-Internal-API-Key", "anything")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
