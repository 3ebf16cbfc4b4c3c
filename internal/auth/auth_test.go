package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stockpit/market-engine/internal/auth"
)

func TestRegisterAndLogin(t *testing.T) {
	svc := auth.NewService("test-secret", time.Hour)

	if err := svc.Register("alice", "hunter2"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	token, err := svc.Login("alice", "hunter2")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty token")
	}
}

func TestRegister_DuplicateName(t *testing.T) {
	svc := auth.NewService("test-secret", time.Hour)

	if err := svc.Register("alice", "hunter2"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := svc.Register("alice", "other"); err != auth.ErrUserExists {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	svc := auth.NewService("test-secret", time.Hour)
	svc.Register("alice", "hunter2")

	if _, err := svc.Login("alice", "wrong"); err != auth.ErrInvalidCredentials {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login("nobody", "hunter2"); err != auth.ErrInvalidCredentials {
		t.Errorf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}
}

func middlewareProbe(svc *auth.Service) (http.Handler, *string) {
	var seen string
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.Owner(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &seen
}

func TestMiddleware_ValidToken(t *testing.T) {
	svc := auth.NewService("test-secret", time.Hour)
	svc.Register("alice", "hunter2")
	token, err := svc.Login("alice", "hunter2")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	handler, seen := middlewareProbe(svc)

	for _, header := range []string{token, "Bearer " + token} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("header %q: expected 200, got %d", header, rec.Code)
		}
		if *seen != "alice" {
			t.Fatalf("header %q: expected owner alice, got %q", header, *seen)
		}
	}
}

func TestMiddleware_MissingToken(t *testing.T) {
	svc := auth.NewService("test-secret", time.Hour)
	handler, _ := middlewareProbe(svc)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without token, got %d", rec.Code)
	}
}

func TestMiddleware_RejectsBadTokens(t *testing.T) {
	svc := auth.NewService("test-secret", time.Hour)
	svc.Register("alice", "hunter2")

	// A structurally valid token signed with a different secret.
	other := auth.NewService("other-secret", time.Hour)
	other.Register("alice", "hunter2")
	forged, err := other.Login("alice", "hunter2")
	if err != nil {
		t.Fatalf("login against other service failed: %v", err)
	}

	handler, _ := middlewareProbe(svc)

	for _, raw := range []string{"garbage", forged} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: expected 401, got %d", raw, rec.Code)
		}
	}
}

func TestMiddleware_ExpiredToken(t *testing.T) {
	svc := auth.NewService("test-secret", -time.Minute)
	svc.Register("alice", "hunter2")
	token, err := svc.Login("alice", "hunter2")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	handler, _ := middlewareProbe(svc)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rec.Code)
	}
}
