package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/goodsin-backend/pkg/errors"
)

const scanPath = "/api/v1/deliveries/5b1b6a52-3c57-4b2f-9a52-8f1d2c0a1e11/scans"

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func TestRouteClassSelection(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   ttlClass
		ok     bool
	}{
		{"create delivery", http.MethodPost, "/api/v1/deliveries", ttlDefault, true},
		{"barcode scan", http.MethodPost, scanPath, ttlScan, true},
		{"case scan", http.MethodPost, "/api/v1/deliveries/d1/items/i1/case-scans", ttlScan, true},
		{"unit scan", http.MethodPost, "/api/v1/deliveries/d1/items/i1/unit-scans", ttlScan, true},
		{"complete", http.MethodPost, "/api/v1/deliveries/d1/complete", ttlCritical, true},
		{"cancel", http.MethodPost, "/api/v1/deliveries/d1/cancel", ttlCritical, true},
		{"adjust", http.MethodPatch, "/api/v1/deliveries/d1/items/i1/received", ttlDefault, true},
		{"list scans", http.MethodGet, scanPath, 0, false},
		{"extra segment", http.MethodPost, "/api/v1/deliveries/d1/scans/extra", 0, false},
		{"empty segment", http.MethodPost, "/api/v1/deliveries//scans", 0, false},
	}

	for _, tt := range tests {
		class, ok := routeClass(tt.method, tt.path)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && class != tt.want {
			t.Fatalf("%s: expected class=%v got %v", tt.name, tt.want, class)
		}
	}
}

func TestIdempotencyOptionsTTL(t *testing.T) {
	opts := IdempotencyOptions{ScanTTL: time.Hour}
	if got := opts.ttl(ttlScan); got != time.Hour {
		t.Fatalf("scan ttl = %s", got)
	}
	if got := (IdempotencyOptions{}).ttl(ttlScan); got != defaultIdempotencyTTL {
		t.Fatalf("default scan ttl = %s", got)
	}
	if got := opts.ttl(ttlCritical); got != criticalIdempotencyTTL {
		t.Fatalf("critical ttl = %s", got)
	}
}

func TestIdempotencyMiddlewareRequiresHeaderWhenConfigured(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, IdempotencyOptions{RequireKey: true}, nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, scanPath, strings.NewReader(`{"barcode":"1"}`))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyMiddlewarePassesThroughWithoutHeader(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, IdempotencyOptions{}, nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, scanPath, strings.NewReader(`{"barcode":"1"}`))
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected both requests to reach the handler, got %d", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("nothing should be stored without a key")
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, IdempotencyOptions{ScanTTL: time.Hour}, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	req := httptest.NewRequest(http.MethodPost, scanPath, strings.NewReader(`{"barcode":"1"}`))
	req.Header.Set("Idempotency-Key", "abc")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", resp.Code)
	}

	replay := httptest.NewRequest(http.MethodPost, scanPath, strings.NewReader(`{"barcode":"1"}`))
	replay.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, replay)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected replay status 201 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
	for _, ttl := range store.ttls {
		if ttl != time.Hour {
			t.Fatalf("expected scan ttl, got %s", ttl)
		}
	}
}

func TestIdempotencyMiddlewareScopesByScanner(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, IdempotencyOptions{}, nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	for _, scanner := range []string{"gun-1", "gun-2"} {
		req := httptest.NewRequest(http.MethodPost, scanPath, strings.NewReader(`{"barcode":"1"}`))
		req.Header.Set("Idempotency-Key", "same")
		req = req.WithContext(WithScannerID(req.Context(), scanner))
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected separate scopes per scanner, got %d calls", calls)
	}
}

func TestIdempotencyMiddlewareSkipsServerErrors(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, IdempotencyOptions{}, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	req := httptest.NewRequest(http.MethodPost, scanPath, strings.NewReader(`{}`))
	req.Header.Set("Idempotency-Key", "retry-me")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	if len(store.data) != 0 {
		t.Fatalf("server errors must not be stored")
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, IdempotencyOptions{}, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, scanPath, strings.NewReader(`{"barcode":"1"}`))
	req.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	replay := httptest.NewRequest(http.MethodPost, scanPath, strings.NewReader(`{"barcode":"2"}`))
	replay.Header.Set("Idempotency-Key", "xyz")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, replay)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, payload.Error.Code)
	}
}
