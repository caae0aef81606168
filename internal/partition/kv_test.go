package partition

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestKVServer(t *testing.T, rows ...string) *KVServer {
	t.Helper()

	raw := make([][]byte, len(rows))
	for i, r := range rows {
		raw[i] = []byte(r)
	}

	s := NewKVServer()
	env := Env{Partition: 2, Rows: NewSliceIterator(raw)}
	if err := s.Init(&env); err != nil {
		t.Fatalf("Failed to init server: %v", err)
	}
	return s
}

func TestKVServerInitLoadsRows(t *testing.T) {
	s := newTestKVServer(t, "alpha=1", "beta=2", "bare-key")

	value, err := s.store.Get("alpha")
	if err != nil || string(value) != "1" {
		t.Errorf("Expected alpha=1, got %q err=%v", value, err)
	}

	// A row without '=' becomes a key with an empty value.
	value, err = s.store.Get("bare-key")
	if err != nil {
		t.Fatalf("Expected bare key to be loaded: %v", err)
	}
	if len(value) != 0 {
		t.Errorf("Expected empty value for bare key, got %q", value)
	}

	if stats := s.store.Stats(); stats.Keys != 3 {
		t.Errorf("Expected 3 keys loaded, got %d", stats.Keys)
	}
}

func TestKVServerInitNilRows(t *testing.T) {
	s := NewKVServer()
	if err := s.Init(&Env{Partition: 0}); err != nil {
		t.Fatalf("Init with nil rows should succeed: %v", err)
	}
	if stats := s.store.Stats(); stats.Keys != 0 {
		t.Errorf("Expected empty store, got %+v", stats)
	}
}

func TestKVServerKeyHandler(t *testing.T) {
	s := newTestKVServer(t, "alpha=1")
	handler := s.Routes()["/store/"]

	t.Run("get existing key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/app/store/alpha", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if rec.Body.String() != "1" {
			t.Errorf("Expected value '1', got %q", rec.Body.String())
		}
	})

	t.Run("get missing key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/app/store/ghost", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
	})

	t.Run("put then get", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodPut, "/app/store/beta", strings.NewReader("2")))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("Expected 204, got %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/app/store/beta", nil))
		if rec.Body.String() != "2" {
			t.Errorf("Expected value '2', got %q", rec.Body.String())
		}
	})

	t.Run("delete", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodDelete, "/app/store/alpha", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("Expected 204, got %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/app/store/alpha", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404 after delete, got %d", rec.Code)
		}
	})

	t.Run("missing key segment", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/app/store/", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodPatch, "/app/store/alpha", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", rec.Code)
		}
	})
}

func TestKVServerListKeys(t *testing.T) {
	s := newTestKVServer(t, "a=1", "b=2")
	handler := s.Routes()["/store"]

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/app/store", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Keys  []string `json:"keys"`
		Count int      `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Count != 2 || len(resp.Keys) != 2 {
		t.Errorf("Unexpected key list: %+v", resp)
	}
}

func TestKVServerStats(t *testing.T) {
	s := newTestKVServer(t, "a=12345")
	handler := s.Routes()["/stats"]

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/app/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Partition int        `json:"partition"`
		Store     StoreStats `json:"store"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Partition != 2 {
		t.Errorf("Expected partition 2, got %d", resp.Partition)
	}
	if resp.Store.Keys != 1 || resp.Store.Bytes != 5 {
		t.Errorf("Unexpected stats: %+v", resp.Store)
	}
}

func TestKVServerResult(t *testing.T) {
	s := newTestKVServer(t, "a=1", "b=2")

	payload, ok := s.Result()
	if !ok {
		t.Fatal("Expected a result payload")
	}

	var result struct {
		Partition int `json:"partition"`
		Keys      int `json:"keys"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if result.Partition != 2 || result.Keys != 2 {
		t.Errorf("Unexpected result: %+v", result)
	}
}
