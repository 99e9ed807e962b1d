package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type stubDirectory struct {
	active map[string]bool
}

func (s stubDirectory) SubjectActive(_ context.Context, subjectID string) (bool, error) {
	return s.active[subjectID], nil
}

func newTestVerifier(t *testing.T, secret []byte, active map[string]bool) *Verifier {
	t.Helper()
	verifier, err := NewVerifier(secret, stubDirectory{active: active})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return verifier
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	secret := []byte("test-secret")
	verifier := newTestVerifier(t, secret, map[string]bool{"user-1": true})
	mw := NewMiddleware(verifier, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ResponderForbiddenStatusPost(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "user-1", "responder")
	verifier := newTestVerifier(t, secret, map[string]bool{"user-1": true})
	mw := NewMiddleware(verifier, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/incidents/inc-1/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_RevokedSubjectRejected(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "user-gone", "admin")
	verifier := newTestVerifier(t, secret, map[string]bool{})
	mw := NewMiddleware(verifier, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_AdminAllowed(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "admin-1", "admin")
	verifier := newTestVerifier(t, secret, map[string]bool{"admin-1": true})
	mw := NewMiddleware(verifier, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SubjectFromContext(r.Context()) != "admin-1" {
			t.Errorf("missing subject in context")
		}
		if RoleFromContext(r.Context()) != RoleAdmin {
			t.Errorf("missing role in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/incidents/inc-1/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func mustToken(t *testing.T, secret []byte, subject, role string) string {
	t.Helper()
	claims := Claims{
		Role:  role,
		Email: subject + "@example.org",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
