package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/quarryfs/quarry/pkg/api"
	"github.com/quarryfs/quarry/pkg/api/handlers"
	"github.com/quarryfs/quarry/pkg/backing"
	"github.com/quarryfs/quarry/pkg/engine"
	"github.com/quarryfs/quarry/pkg/index"
	"github.com/quarryfs/quarry/pkg/origin"
	"github.com/quarryfs/quarry/pkg/service"
)

const blockSize = 4096

// newRouter wires a router over a real service: file-backed manager in
// a temp dir, engine, in-memory index and origin.
func newRouter(t *testing.T) (http.Handler, *origin.Memory) {
	t.Helper()

	mgr, err := backing.New(backing.Config{
		Root:      t.TempDir(),
		BlockSize: blockSize,
		Readers:   2,
	})
	if err != nil {
		t.Fatalf("backing.New: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	eng, err := engine.New(engine.Config{BlockSize: blockSize, Workers: 2})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := eng.Close(ctx); err != nil {
			t.Errorf("engine.Close: %v", err)
		}
	})

	org := origin.NewMemory()
	svc, err := service.New(eng, mgr, index.NewMemory(), org)
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	return api.NewRouter(svc, nil), org
}

// do runs one request through the router and decodes the response
// envelope.
func do(t *testing.T, router http.Handler, method, target string) (*httptest.ResponseRecorder, handlers.Response) {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp handlers.Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode %s %s response: %v", method, target, err)
	}
	return w, resp
}

func seed(org *origin.Memory, key string, n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	org.Put(key, data)
	return data
}

func TestLiveness(t *testing.T) {
	router, _ := newRouter(t)

	w, resp := do(t, router, "GET", "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp.Status != "healthy" {
		t.Errorf("status field = %q, want healthy", resp.Status)
	}

	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data is %T, want map", resp.Data)
	}
	if data["service"] != "quarry" {
		t.Errorf("service = %v, want quarry", data["service"])
	}
}

func TestReadiness(t *testing.T) {
	router, _ := newRouter(t)

	w, resp := do(t, router, "GET", "/health/ready")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp.Status != "healthy" {
		t.Errorf("status field = %q, want healthy", resp.Status)
	}
}

func TestStats(t *testing.T) {
	router, _ := newRouter(t)

	w, resp := do(t, router, "GET", "/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data is %T, want map", resp.Data)
	}
	eng, ok := data["engine"].(map[string]interface{})
	if !ok {
		t.Fatalf("engine stats missing: %v", data)
	}
	if got := eng["block_size"].(float64); int64(got) != blockSize {
		t.Errorf("block_size = %v, want %d", got, blockSize)
	}
}

func TestStreamAdmitsObject(t *testing.T) {
	router, org := newRouter(t)
	want := seed(org, "docs/readme.md", 3*blockSize/2)

	req := httptest.NewRequest("GET", "/objects/docs/readme.md?stream=1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("Content-Length"); got != strconv.Itoa(len(want)) {
		t.Errorf("Content-Length = %s, want %d", got, len(want))
	}
	if !bytes.Equal(w.Body.Bytes(), want) {
		t.Fatalf("stream body mismatch: got %d bytes, want %d", w.Body.Len(), len(want))
	}

	// The stream admitted the object; the index entry is visible now.
	w2, resp := do(t, router, "GET", "/objects/docs/readme.md")
	if w2.Code != http.StatusOK {
		t.Fatalf("describe status = %d, want %d", w2.Code, http.StatusOK)
	}
	entry, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data is %T, want map", resp.Data)
	}
	if entry["key"] != "docs/readme.md" {
		t.Errorf("key = %v, want docs/readme.md", entry["key"])
	}
}

func TestStreamUnknownObject(t *testing.T) {
	router, _ := newRouter(t)

	w, resp := do(t, router, "GET", "/objects/nope?stream=1")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if resp.Status != "error" {
		t.Errorf("status field = %q, want error", resp.Status)
	}
}

func TestDescribeNotCached(t *testing.T) {
	router, org := newRouter(t)
	seed(org, "cold", blockSize)

	// Known at the origin but never read, so not in the index.
	w, _ := do(t, router, "GET", "/objects/cold")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestListObjects(t *testing.T) {
	router, org := newRouter(t)

	_, resp := do(t, router, "GET", "/objects")
	data := resp.Data.(map[string]interface{})
	if got := data["count"].(float64); got != 0 {
		t.Fatalf("count = %v, want 0", got)
	}

	seed(org, "a", blockSize)
	req := httptest.NewRequest("GET", "/objects/a?stream=1", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	_, resp = do(t, router, "GET", "/objects")
	data = resp.Data.(map[string]interface{})
	if got := data["count"].(float64); got != 1 {
		t.Fatalf("count = %v, want 1", got)
	}
}

func TestRemoveObject(t *testing.T) {
	router, org := newRouter(t)
	seed(org, "a", blockSize)
	req := httptest.NewRequest("GET", "/objects/a?stream=1", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	w, resp := do(t, router, "DELETE", "/objects/a")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	data := resp.Data.(map[string]interface{})
	if data["removed"] != "a" {
		t.Errorf("removed = %v, want a", data["removed"])
	}

	// A second delete finds nothing.
	w, _ = do(t, router, "DELETE", "/objects/a")
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestInvalidateObject(t *testing.T) {
	router, org := newRouter(t)
	seed(org, "a", 2*blockSize)
	req := httptest.NewRequest("GET", "/objects/a?stream=1", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	w, _ := do(t, router, "POST", "/objects/invalidate/a")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	// The entry survives with its cached blocks dropped.
	w, resp := do(t, router, "GET", "/objects/a")
	if w.Code != http.StatusOK {
		t.Fatalf("describe status = %d, want %d", w.Code, http.StatusOK)
	}
	entry := resp.Data.(map[string]interface{})
	if got := entry["blocks"].(float64); got != 0 {
		t.Errorf("blocks = %v, want 0", got)
	}
}

func TestMetricsRouteDisabled(t *testing.T) {
	router, _ := newRouter(t)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRootRedirect(t *testing.T) {
	router, _ := newRouter(t)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
	if got := w.Header().Get("Location"); got != "/health" {
		t.Errorf("Location = %s, want /health", got)
	}
}
