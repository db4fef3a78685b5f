package signer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/quartzvault/quartz/crypto"
	"github.com/quartzvault/quartz/errors"
	"github.com/quartzvault/quartz/quartztest/assert"
)

// signingService is a minimal in-memory stand-in for a remote signing
// service: one key, session bookkeeping, optional policy rejection.
type signingService struct {
	mu       sync.Mutex
	key      *crypto.PrivateKey
	sessions map[string]bool
	nextID   int
	reject   bool
	down     bool
}

func newSigningService(t *testing.T) *signingService {
	t.Helper()
	return &signingService{
		key:      crypto.GenPrivKey(),
		sessions: make(map[string]bool),
	}
}

func (s *signingService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.down {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		s.nextID++
		id := fmt.Sprintf("session-%d", s.nextID)
		s.sessions[id] = true
		json.NewEncoder(w).Encode(openSessionResponse{
			SessionID: id,
			PublicKey: []byte(s.key.PublicKey()),
		})
	})
	mux.HandleFunc("/v1/sessions/", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		rest := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
		if r.Method == "DELETE" {
			if !s.sessions[rest] {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(s.sessions, rest)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		id := strings.TrimSuffix(rest, "/sign")
		if !s.sessions[id] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if s.reject {
			http.Error(w, "policy violation", http.StatusForbidden)
			return
		}
		var req signRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sig, err := s.key.Sign(req.SigningBytes)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(signResponse{Signature: sig})
	})
	return mux
}

func TestRemoteLifecycle(t *testing.T) {
	ctx := context.Background()
	service := newSigningService(t)
	srv := httptest.NewServer(service.handler())
	defer srv.Close()

	backend, err := NewRemote(RemoteConfig{BaseURL: srv.URL})
	assert.Nil(t, err)

	pub, err := backend.Connect(ctx)
	assert.Nil(t, err)
	assert.Equal(t, service.key.PublicKey(), pub)

	if _, err := backend.Connect(ctx); !errors.ErrState.Is(err) {
		t.Fatalf("want ErrState on double connect, got %+v", err)
	}

	stx, err := backend.Sign(ctx, devTx("transfer"))
	assert.Nil(t, err)
	if !pub.Verify(stx.Transaction.SigningBytes(), stx.Signature) {
		t.Fatal("signature does not verify")
	}

	assert.Nil(t, backend.Disconnect())
	assert.Nil(t, backend.Disconnect())

	if _, err := backend.Sign(ctx, devTx("transfer")); !errors.ErrState.Is(err) {
		t.Fatalf("want ErrState after disconnect, got %+v", err)
	}

	// The service side session must be gone as well.
	if len(service.sessions) != 0 {
		t.Fatalf("leaked sessions: %v", service.sessions)
	}
}

func TestRemotePolicyRejection(t *testing.T) {
	ctx := context.Background()
	service := newSigningService(t)
	srv := httptest.NewServer(service.handler())
	defer srv.Close()

	backend, err := NewRemote(RemoteConfig{BaseURL: srv.URL})
	assert.Nil(t, err)
	_, err = backend.Connect(ctx)
	assert.Nil(t, err)
	defer backend.Disconnect()

	service.mu.Lock()
	service.reject = true
	service.mu.Unlock()

	_, err = backend.Sign(ctx, devTx("transfer"))
	assert.IsErr(t, errors.ErrSigning, err)
	if errors.IsTransient(err) {
		t.Fatal("a policy rejection must not be classified transient")
	}
}

func TestRemoteServiceUnavailable(t *testing.T) {
	ctx := context.Background()
	service := newSigningService(t)
	service.down = true
	srv := httptest.NewServer(service.handler())
	defer srv.Close()

	backend, err := NewRemote(RemoteConfig{BaseURL: srv.URL})
	assert.Nil(t, err)

	_, err = backend.Connect(ctx)
	if err == nil {
		t.Fatal("expected connect failure")
	}
	if !errors.IsTransient(err) {
		t.Fatalf("a 5xx must be classified transient, got %+v", err)
	}
}

func TestRemoteUnreachable(t *testing.T) {
	ctx := context.Background()

	backend, err := NewRemote(RemoteConfig{BaseURL: "http://127.0.0.1:1"})
	assert.Nil(t, err)

	_, err = backend.Connect(ctx)
	assert.IsErr(t, errors.ErrNetwork, err)
}

func TestRemoteRequiresBaseURL(t *testing.T) {
	if _, err := NewRemote(RemoteConfig{}); !errors.ErrEmpty.Is(err) {
		t.Fatalf("want ErrEmpty, got %+v", err)
	}
}
