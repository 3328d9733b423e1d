package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wrenlabs/concierge/backend/internal/store"
)

func newRedisStore(t *testing.T, handler http.HandlerFunc) (*store.RedisStore, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	s, err := store.NewRedisStore(store.RedisConfig{URL: ts.URL, Token: "secret-token"}, store.WithKeyPrefix("concierge:"))
	if err != nil {
		t.Fatalf("NewRedisStore err: %v", err)
	}
	return s, ts
}

func decodeCommand(t *testing.T, r *http.Request) []interface{} {
	t.Helper()
	var cmd []interface{}
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		t.Fatalf("decode command: %v", err)
	}
	return cmd
}

func TestRedisSetSendsExpiry(t *testing.T) {
	var got []interface{}
	var auth string
	s, _ := newRedisStore(t, func(w http.ResponseWriter, r *http.Request) {
		got = decodeCommand(t, r)
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"result":"OK"}`))
	})

	if err := s.Set(context.Background(), "session:abc", []byte(`{"id":"abc"}`), 24*time.Hour); err != nil {
		t.Fatalf("Set err: %v", err)
	}

	if auth != "Bearer secret-token" {
		t.Fatalf("unexpected auth header: %q", auth)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 command elements, got %v", got)
	}
	if got[0] != "SET" || got[1] != "concierge:session:abc" || got[2] != `{"id":"abc"}` {
		t.Fatalf("unexpected command: %v", got)
	}
	if got[3] != "EX" || got[4] != float64(86400) {
		t.Fatalf("unexpected expiry args: %v %v", got[3], got[4])
	}
}

func TestRedisSetWithoutTTLOmitsExpiry(t *testing.T) {
	var got []interface{}
	s, _ := newRedisStore(t, func(w http.ResponseWriter, r *http.Request) {
		got = decodeCommand(t, r)
		w.Write([]byte(`{"result":"OK"}`))
	})

	if err := s.Set(context.Background(), "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set err: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 command elements, got %v", got)
	}
}

func TestRedisGetDecodesStringResult(t *testing.T) {
	s, _ := newRedisStore(t, func(w http.ResponseWriter, r *http.Request) {
		cmd := decodeCommand(t, r)
		if cmd[0] != "GET" || cmd[1] != "concierge:session:abc" {
			t.Fatalf("unexpected command: %v", cmd)
		}
		w.Write([]byte(`{"result":"{\"id\":\"abc\"}"}`))
	})

	value, err := s.Get(context.Background(), "session:abc")
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if string(value) != `{"id":"abc"}` {
		t.Fatalf("unexpected value: %s", value)
	}
}

func TestRedisGetMissingKeyIsNotFound(t *testing.T) {
	s, _ := newRedisStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":null}`))
	})

	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisServerErrorIsUnavailable(t *testing.T) {
	s, _ := newRedisStore(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	if _, err := s.Get(context.Background(), "k"); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRedisUnreachableIsUnavailable(t *testing.T) {
	s, ts := newRedisStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"PONG"}`))
	})
	ts.Close()

	if err := s.Ping(context.Background()); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRedisCommandErrorIsNotUnavailable(t *testing.T) {
	s, _ := newRedisStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"ERR wrong number of arguments"}`))
	})

	err := s.Delete(context.Background(), "k")
	if err == nil {
		t.Fatal("expected command error")
	}
	if errors.Is(err, store.ErrUnavailable) || errors.Is(err, store.ErrNotFound) {
		t.Fatalf("command error must not map to sentinel errors, got %v", err)
	}
}

func TestNewRedisStoreRejectsBadConfig(t *testing.T) {
	if _, err := store.NewRedisStore(store.RedisConfig{URL: "", Token: "x"}); err == nil {
		t.Fatal("expected error for missing url")
	}
	if _, err := store.NewRedisStore(store.RedisConfig{URL: "https://example.test", Token: ""}); err == nil {
		t.Fatal("expected error for missing token")
	}
}
