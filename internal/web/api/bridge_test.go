package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/heronvp/heron/internal/conf"
	"github.com/heronvp/heron/internal/core/bridge"
	"github.com/heronvp/heron/internal/core/relay"
	"github.com/ixugo/goddd/domain/uniqueid"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

// fakeBridgeStore 内存实现，覆盖网关路由测试
type fakeBridgeStore struct {
	mu    sync.Mutex
	items map[string]*bridge.Bridge
}

func newFakeBridgeStore() *fakeBridgeStore {
	return &fakeBridgeStore{items: make(map[string]*bridge.Bridge)}
}

func (f *fakeBridgeStore) Bridge() bridge.BridgeStorer { return f }

func (f *fakeBridgeStore) Get(_ context.Context, id string) (*bridge.Bridge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	v := *b
	return &v, nil
}

func (f *fakeBridgeStore) FindByPairCode(_ context.Context, code string) (*bridge.Bridge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.items {
		if b.PairCode != nil && *b.PairCode == code {
			v := *b
			return &v, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBridgeStore) Add(_ context.Context, b *bridge.Bridge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := *b
	f.items[b.ID] = &v
	return nil
}

func (f *fakeBridgeStore) Edit(_ context.Context, id string, changeFn func(*bridge.Bridge)) (*bridge.Bridge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	changeFn(b)
	v := *b
	return &v, nil
}

func (f *fakeBridgeStore) ConsumePairCode(_ context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.items {
		if b.PairCode != nil && *b.PairCode == code && !b.Paired {
			b.Paired = true
			b.PairCode = nil
			b.PairCodeExpiresAt = nil
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBridgeStore) Find(_ context.Context, items *[]*bridge.Bridge, _ orm.Pager, _ ...orm.QueryOption) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.items {
		v := *b
		*items = append(*items, &v)
	}
	return int64(len(f.items)), nil
}

func (f *fakeBridgeStore) Del(_ context.Context, id string) (*bridge.Bridge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	delete(f.items, id)
	return b, nil
}

func setupBridgeRouter(t *testing.T) (*gin.Engine, *fakeBridgeStore, *relay.Core) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newFakeBridgeStore()
	var uni uniqueid.Core
	core := bridge.NewCore(store, &conf.Bridge{BackendURL: "http://relay.example.com", PollIntervalMs: 3000}, uni)
	relayCore, err := relay.NewCore(&conf.Relay{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}

	r := gin.New()
	registerBridge(r, NewBridgeAPI(core, relayCore))
	return r, store, relayCore
}

func seedPairedBridge(store *fakeBridgeStore) *bridge.Bridge {
	b := &bridge.Bridge{ID: "BR1", Name: "garage", APIKey: "secret", Paired: true}
	_ = store.Add(context.Background(), b)
	return b
}

func TestRewriteManifest(t *testing.T) {
	raw := []byte("#EXTM3U\n" +
		"#EXT-X-TARGETDURATION:4\n" +
		"\n" +
		"seg-001.ts\n" +
		"https://cdn.example.com/seg-002.ts\n" +
		"../../etc/passwd\n" +
		"#EXT-X-ENDLIST")
	got := string(rewriteManifest("BR1", raw))

	lines := strings.Split(got, "\n")
	want := []string{
		"#EXTM3U",
		"#EXT-X-TARGETDURATION:4",
		"",
		"/bridge/BR1/stream/seg-001.ts",
		"https://cdn.example.com/seg-002.ts",
		"/bridge/BR1/stream/passwd",
		"#EXT-X-ENDLIST",
	}
	if len(lines) != len(want) {
		t.Fatalf("line count = %d, want %d\n%s", len(lines), len(want), got)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestPairEndpoint(t *testing.T) {
	r, store, _ := setupBridgeRouter(t)
	code := "ABC123"
	expires := orm.Time{Time: time.Now().Add(10 * time.Minute)}
	_ = store.Add(context.Background(), &bridge.Bridge{
		ID: "BR1", APIKey: "secret", PairCode: &code, PairCodeExpiresAt: &expires,
	})

	body := `{"pairCode":"ABC123","agentVersion":"1.0.0"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bridge/pair", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var out bridge.PairOutput
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.BridgeID != "BR1" || out.APIKey != "secret" {
		t.Errorf("unexpected pair output: %+v", out)
	}
	if out.UploadBaseURL != "http://relay.example.com/bridge/BR1" {
		t.Errorf("unexpected upload base url: %s", out.UploadBaseURL)
	}

	// 重放同码
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/bridge/pair", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("replay status = %d", w.Code)
	}
	var errOut map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &errOut); err != nil {
		t.Fatal(err)
	}
	if errOut["error"] != "invalid_pair_code" {
		t.Errorf("unexpected error body: %v", errOut)
	}
}

func TestPairEndpointBadBody(t *testing.T) {
	r, _, _ := setupBridgeRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bridge/pair", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "invalid_pair_code") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestUploadRequiresAPIKey(t *testing.T) {
	r, store, _ := setupBridgeRouter(t)
	seedPairedBridge(store)

	tests := []struct {
		name string
		key  string
	}{
		{"no key", ""},
		{"wrong key", "nope"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/bridge/BR1/upload-manifest", strings.NewReader("#EXTM3U\n"))
		if tt.key != "" {
			req.Header.Set("x-api-key", tt.key)
		}
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", tt.name, w.Code)
		}
		if !strings.Contains(w.Body.String(), "unauthorized") {
			t.Errorf("%s: unexpected body: %s", tt.name, w.Body.String())
		}
	}
}

func TestUploadThenPlayback(t *testing.T) {
	r, store, _ := setupBridgeRouter(t)
	seedPairedBridge(store)

	manifest := "#EXTM3U\n#EXT-X-TARGETDURATION:4\n#EXTINF:4.000,\nseg-001.ts\n"
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bridge/BR1/upload-manifest", strings.NewReader(manifest))
	req.Header.Set("x-api-key", "secret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"success":true`) {
		t.Fatalf("upload manifest: status = %d, body = %s", w.Code, w.Body.String())
	}

	// multipart 上传分片
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "seg-001.ts")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("segment-data"))
	mw.Close()

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/bridge/BR1/upload-segment", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("x-api-key", "secret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"file":"seg-001.ts"`) {
		t.Fatalf("upload segment: status = %d, body = %s", w.Code, w.Body.String())
	}

	// 播放列表改写后下发
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/bridge/BR1/stream/index.m3u8", nil)
	req.Header.Set("x-api-key", "secret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("playlist: status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/vnd.apple.mpegurl") {
		t.Errorf("playlist content type = %s", ct)
	}
	if !strings.Contains(w.Body.String(), "/bridge/BR1/stream/seg-001.ts") {
		t.Errorf("segment uri not rewritten:\n%s", w.Body.String())
	}

	// 分片下发
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/bridge/BR1/stream/seg-001.ts", nil)
	req.Header.Set("x-api-key", "secret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "segment-data" {
		t.Fatalf("segment: status = %d, body = %q", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "video/MP2T" {
		t.Errorf("segment content type = %s", ct)
	}

	// 流状态
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/bridge/BR1/stream/status", nil)
	req.Header.Set("x-api-key", "secret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status: status = %d", w.Code)
	}
	var status relay.StreamStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.SegmentCount != 1 {
		t.Errorf("segment count = %d, want 1", status.SegmentCount)
	}
}

func TestPlaylistMissing(t *testing.T) {
	r, store, _ := setupBridgeRouter(t)
	seedPairedBridge(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/bridge/BR1/stream/index.m3u8", nil)
	req.Header.Set("x-api-key", "secret")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "not_found") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestAgentConfig(t *testing.T) {
	r, store, _ := setupBridgeRouter(t)
	b := seedPairedBridge(store)
	_, _ = store.Edit(context.Background(), b.ID, func(v *bridge.Bridge) {
		v.RTSPURL = "rtsp://10.0.0.5/live"
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/bridge/BR1/config", nil)
	req.Header.Set("x-api-key", "secret")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out bridge.AgentConfigOutput
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.BridgeID != "BR1" || out.RTSPURL != "rtsp://10.0.0.5/live" || out.PollIntervalMs != 3000 {
		t.Errorf("unexpected agent config: %+v", out)
	}
}

func TestRelayRaw(t *testing.T) {
	r, _, relayCore := setupBridgeRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bridge/relay", strings.NewReader("raw-ts-data"))
	req.Header.Set("x-bridge-id", "BR1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.HasPrefix(w.Body.String(), "relay-ok") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}

	// 推送内容已落盘
	entries, err := os.ReadDir(filepath.Join(relayCore.Dir(), "raw", "BR1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 raw file, got %d", len(entries))
	}
	got, err := os.ReadFile(filepath.Join(relayCore.Dir(), "raw", "BR1", entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "raw-ts-data" {
		t.Errorf("raw content mismatch: %q", got)
	}
}

func TestRelayRawMissingHeader(t *testing.T) {
	r, _, _ := setupBridgeRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bridge/relay", strings.NewReader("data"))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
