package objstore

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordedPut struct {
	path string
	body string
	auth string
	hash string
}

type fakeBucket struct {
	mu   sync.Mutex
	puts []recordedPut
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.puts = append(b.puts, recordedPut{
		path: r.URL.Path,
		body: string(body),
		auth: r.Header.Get("Authorization"),
		hash: r.Header.Get("x-amz-content-sha256"),
	})
	b.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (b *fakeBucket) snapshot() []recordedPut {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]recordedPut, len(b.puts))
	copy(out, b.puts)
	return out
}

func TestMirrorUploadsRelativeToDataDir(t *testing.T) {
	bucket := &fakeBucket{}
	ts := httptest.NewServer(bucket)
	defer ts.Close()

	dataDir := t.TempDir()
	segDir := filepath.Join(dataDir, "runs", "realm_1", "ticks")
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	segPath := filepath.Join(segDir, "ticks-2026-03-01-09.jsonl.zst")
	content := []byte("sealed segment payload\n")
	if err := os.WriteFile(segPath, content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	client, err := New(ts.URL, "artifacts", "", "test-access", "test-secret")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	m := NewMirror(client, dataDir, "warband/dev", 1, 8, 10*time.Millisecond, nil)
	m.Enqueue(segPath)
	m.Close()

	puts := bucket.snapshot()
	if len(puts) != 1 {
		t.Fatalf("puts=%d want=1", len(puts))
	}
	wantPath := "/artifacts/warband/dev/runs/realm_1/ticks/ticks-2026-03-01-09.jsonl.zst"
	if puts[0].path != wantPath {
		t.Fatalf("path=%s want=%s", puts[0].path, wantPath)
	}
	if puts[0].body != string(content) {
		t.Fatalf("body mismatch: %q", puts[0].body)
	}
	sum := sha256.Sum256(content)
	if puts[0].hash != hex.EncodeToString(sum[:]) {
		t.Fatalf("payload hash mismatch: %s", puts[0].hash)
	}
	// Region defaults to "auto" and lands in the credential scope.
	if !strings.Contains(puts[0].auth, "AWS4-HMAC-SHA256 Credential=test-access/") ||
		!strings.Contains(puts[0].auth, "/auto/s3/aws4_request") {
		t.Fatalf("bad authorization: %s", puts[0].auth)
	}

	st := m.Stats()
	if st.UploadSuccessTotal != 1 || st.UploadFailTotal != 0 || st.DroppedTotal != 0 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestMirrorSkipsPathsOutsideDataDir(t *testing.T) {
	bucket := &fakeBucket{}
	ts := httptest.NewServer(bucket)
	defer ts.Close()

	dataDir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "stray.txt")
	if err := os.WriteFile(outside, []byte("nope"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	client, err := New(ts.URL, "artifacts", "", "k", "s")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	m := NewMirror(client, dataDir, "", 1, 8, 10*time.Millisecond, nil)
	m.Enqueue(outside)
	m.Close()

	if puts := bucket.snapshot(); len(puts) != 0 {
		t.Fatalf("uploaded outside data dir: %+v", puts)
	}
	st := m.Stats()
	if st.EnqueuedTotal != 1 || st.UploadSuccessTotal != 0 || st.UploadFailTotal != 0 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestMirrorDropsWhenSaturated(t *testing.T) {
	started := make(chan struct{}, 8)
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	dataDir := t.TempDir()
	files := make([]string, 5)
	for i := range files {
		files[i] = filepath.Join(dataDir, "seg"+string(rune('0'+i))+".zst")
		if err := os.WriteFile(files[i], []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	client, err := New(ts.URL, "artifacts", "", "k", "s")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	m := NewMirror(client, dataDir, "", 1, 1, time.Millisecond, nil)

	m.Enqueue(files[0])
	<-started // worker holds job 0 in flight, queue is empty
	m.Enqueue(files[1])
	m.Enqueue(files[2])
	m.Enqueue(files[3])
	m.Enqueue(files[4])
	close(release)
	m.Close()

	st := m.Stats()
	if st.EnqueuedTotal != 5 {
		t.Fatalf("enqueued=%d want=5", st.EnqueuedTotal)
	}
	if st.DroppedTotal != 3 || st.QueueSaturatedTotal != 3 {
		t.Fatalf("drops=%d saturated=%d want 3/3", st.DroppedTotal, st.QueueSaturatedTotal)
	}
	if st.UploadSuccessTotal != 2 {
		t.Fatalf("success=%d want=2", st.UploadSuccessTotal)
	}
}

func TestNormalizeObjectKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"runs/realm_1/a.zst", "runs/realm_1/a.zst"},
		{"/runs/realm_1/a.zst", "runs/realm_1/a.zst"},
		{`runs\realm_1\a.zst`, "runs/realm_1/a.zst"},
		{"a/./b//c", "a/b/c"},
		{"  spaced/key  ", "spaced/key"},
		{"", ""},
		{"..", ""},
	}
	for _, tc := range cases {
		if got := normalizeObjectKey(tc.in); got != tc.want {
			t.Fatalf("normalize(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := New("", "b", "", "k", "s"); err == nil {
		t.Fatal("missing endpoint accepted")
	}
	if _, err := New("store.example.com", "", "", "k", "s"); err == nil {
		t.Fatal("missing bucket accepted")
	}
	if _, err := New("store.example.com", "b", "", "", "s"); err == nil {
		t.Fatal("missing access key accepted")
	}
	c, err := New("store.example.com", "artifacts", "us-east-1", "k", "s")
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if c == nil {
		t.Fatal("nil client")
	}
}
