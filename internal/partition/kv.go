package partition

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
)

// KVServer is the built-in concrete partition server: it loads its
// partition's rows into an in-memory key/value store and serves them
// over the app routes. Rows are expected as "key=value" lines; a row
// without '=' becomes a key with an empty value.
//
// Routes (all under the /app prefix installed by Run):
//
//	GET    /app/store           list keys
//	GET    /app/store/{key}     fetch a value
//	PUT    /app/store/{key}     store a value
//	DELETE /app/store/{key}     remove a value
//	GET    /app/stats           store statistics
//
// On shutdown it reports its final store statistics as the result
// payload, so a capture-enabled session collects one stats record per
// partition.
type KVServer struct {
	partition int
	store     *MemoryStore
}

// NewKVServer creates an uninitialized KVServer; Run calls Init with
// the partition's rows before serving.
func NewKVServer() *KVServer {
	return &KVServer{}
}

// Init loads the partition rows into a fresh store. Runs once per
// instance launch; a relaunched partition rebuilds its state from its
// own iterator.
func (s *KVServer) Init(env *Env) error {
	s.partition = env.Partition
	s.store = NewMemoryStore()

	if env.Rows == nil {
		return nil
	}
	loaded := 0
	for {
		row, ok := env.Rows.Next()
		if !ok {
			break
		}
		key, value, _ := bytes.Cut(row, []byte{'='})
		s.store.Put(string(key), value)
		loaded++
	}
	log.Printf("partition[%d] loaded %d rows", env.Partition, loaded)
	return nil
}

// Routes installs the key/value handlers.
func (s *KVServer) Routes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"/store":  s.handleListKeys,
		"/store/": s.handleKey,
		"/stats":  s.handleStats,
	}
}

// Result reports final store statistics as the partition's payload.
func (s *KVServer) Result() ([]byte, bool) {
	payload, err := json.Marshal(struct {
		Partition int `json:"partition"`
		StoreStats
	}{Partition: s.partition, StoreStats: s.store.Stats()})
	if err != nil {
		return nil, false
	}
	return payload, true
}

func (s *KVServer) handleKey(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/app/store/")
	if key == "" {
		http.Error(w, "key required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		value, err := s.store.Get(key)
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				http.Error(w, "key not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		if _, err := w.Write(value); err != nil {
			log.Printf("partition[%d] write response: %v", s.partition, err)
		}
	case http.MethodPut:
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(r.Body); err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		s.store.Put(key, buf.Bytes())
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		s.store.Delete(key)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *KVServer) handleListKeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	keys := s.store.List()
	response := struct {
		Keys  []string `json:"keys"`
		Count int      `json:"count"`
	}{
		Keys:  keys,
		Count: len(keys),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func (s *KVServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := struct {
		Partition int        `json:"partition"`
		Store     StoreStats `json:"store"`
	}{
		Partition: s.partition,
		Store:     s.store.Stats(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}
