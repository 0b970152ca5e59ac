package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/3leaps/swissfetch/internal/fault"
)

func newTestServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var seen []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Path)
		if ua := r.Header.Get("User-Agent"); ua != "swissfetch/test" {
			t.Errorf("User-Agent got %q want %q", ua, "swissfetch/test")
		}
		switch r.URL.Path {
		case "/repos/emukidid/swiss-gc/releases":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[
				{"tag_name": "v0.6r1913", "draft": false, "prerelease": false, "created_at": "2024-06-01T00:00:00Z",
				 "assets": [{"name": "swiss_r1913.tar.xz", "browser_download_url": "http://x/a", "size": 10}]},
				{"tag_name": "v0.6r1900", "draft": true, "prerelease": false, "created_at": "2024-05-01T00:00:00Z"}
			]`))
		case "/repos/emukidid/swiss-gc/releases/latest":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"tag_name": "v0.6r1913", "assets": []}`))
		case "/repos/emukidid/swiss-gc/releases/tags/v0.6r1668":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"tag_name": "v0.6r1668"}`))
		case "/repos/emukidid/swiss-gc/releases/tags/slow":
			time.Sleep(300 * time.Millisecond)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"tag_name": "slow"}`))
		case "/assets/swiss.tar.xz":
			_, _ = w.Write([]byte("payload"))
		case "/assets/trickle":
			flusher, _ := w.(http.Flusher)
			for i := 0; i < 5; i++ {
				_, _ = w.Write([]byte(strings.Repeat("x", 1024)))
				if flusher != nil {
					flusher.Flush()
				}
				time.Sleep(100 * time.Millisecond)
			}
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message": "Not Found", "documentation_url": "https://docs.github.com"}`))
		}
	}))
	t.Cleanup(ts.Close)
	return ts, &seen
}

func newTestClient(ts *httptest.Server, timeout time.Duration) *Client {
	return NewClient(Options{APIBase: ts.URL + "/", UserAgent: UserAgent("swissfetch", "test"), Timeout: timeout})
}

func TestListDecodesReleases(t *testing.T) {
	ts, _ := newTestServer(t)
	c := newTestClient(ts, 0)

	rels, err := c.List(context.Background(), "emukidid/swiss-gc")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rels) != 2 {
		t.Fatalf("got %d releases want 2", len(rels))
	}
	first := rels[0]
	if first.TagName != "v0.6r1913" || !first.Official() || first.CreatedAt.Year() != 2024 {
		t.Errorf("unexpected first release: %+v", first)
	}
	if len(first.Assets) != 1 {
		t.Fatalf("got %d assets want 1", len(first.Assets))
	}
	if first.Assets[0].Name != "swiss_r1913.tar.xz" || first.Assets[0].BrowserDownloadUrl != "http://x/a" {
		t.Errorf("unexpected asset: %+v", first.Assets[0])
	}
	if rels[1].Official() {
		t.Errorf("draft release reported as official")
	}
}

func TestLatestAndByTag(t *testing.T) {
	ts, seen := newTestServer(t)
	c := newTestClient(ts, 0)

	rel, err := c.Latest(context.Background(), "emukidid/swiss-gc")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if rel.TagName != "v0.6r1913" {
		t.Errorf("Latest tag %q", rel.TagName)
	}

	rel, err = c.ByTag(context.Background(), "emukidid/swiss-gc", "v0.6r1668")
	if err != nil {
		t.Fatalf("ByTag: %v", err)
	}
	if rel.TagName != "v0.6r1668" {
		t.Errorf("ByTag tag %q", rel.TagName)
	}

	want := []string{
		"/repos/emukidid/swiss-gc/releases/latest",
		"/repos/emukidid/swiss-gc/releases/tags/v0.6r1668",
	}
	if diff := cmp.Diff(want, *seen); diff != "" {
		t.Errorf("request paths (-want +got):\n%s", diff)
	}
}

func TestErrorStatusIsNetworkFault(t *testing.T) {
	ts, _ := newTestServer(t)
	c := newTestClient(ts, 0)

	_, err := c.ByTag(context.Background(), "emukidid/swiss-gc", "v9.9r9999")
	if err == nil {
		t.Fatal("expected error")
	}
	if !fault.Is(err, fault.KindNetwork) {
		t.Errorf("kind %v want network", fault.KindOf(err))
	}
	msg := err.Error()
	if !strings.Contains(msg, "status 404") || !strings.Contains(msg, "Not Found") {
		t.Errorf("error %q lacks status or API message", msg)
	}
	if strings.Contains(msg, "documentation_url") {
		t.Errorf("error %q leaks raw body", msg)
	}
}

func TestAPITimeout(t *testing.T) {
	ts, _ := newTestServer(t)
	c := newTestClient(ts, 100*time.Millisecond)

	_, err := c.ByTag(context.Background(), "emukidid/swiss-gc", "slow")
	if err == nil {
		t.Fatal("expected timeout")
	}
	if !fault.Is(err, fault.KindNetwork) {
		t.Errorf("kind %v want network", fault.KindOf(err))
	}
}

func TestDownloadWritesFile(t *testing.T) {
	ts, _ := newTestServer(t)
	c := newTestClient(ts, 0)
	dest := filepath.Join(t.TempDir(), "nested", "swiss_r1913.tar.xz")

	if err := c.Download(context.Background(), ts.URL+"/assets/swiss.tar.xz", dest); err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Errorf("content %q", data)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Errorf("partial file left behind")
	}
}

func TestDownloadOutlivesAPITimeout(t *testing.T) {
	ts, _ := newTestServer(t)
	c := newTestClient(ts, 200*time.Millisecond)
	dest := filepath.Join(t.TempDir(), "slow.tar.xz")

	start := time.Now()
	if err := c.Download(context.Background(), ts.URL+"/assets/trickle", dest); err != nil {
		t.Fatalf("slow download failed after %s: %v", time.Since(start), err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 5*1024 {
		t.Errorf("size %d want %d", info.Size(), 5*1024)
	}
}

func TestDownloadHonorsContext(t *testing.T) {
	ts, _ := newTestServer(t)
	c := newTestClient(ts, 0)
	dest := filepath.Join(t.TempDir(), "cancelled.tar.xz")

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := c.Download(ctx, ts.URL+"/assets/trickle", dest); err == nil {
		t.Fatal("expected cancellation error")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("cancelled download left %s", dest)
	}
}

func TestDownloadFailureLeavesNothing(t *testing.T) {
	ts, _ := newTestServer(t)
	c := newTestClient(ts, 0)
	dest := filepath.Join(t.TempDir(), "missing.tar.xz")

	err := c.Download(context.Background(), ts.URL+"/assets/missing", dest)
	if err == nil {
		t.Fatal("expected error")
	}
	if !fault.Is(err, fault.KindNetwork) {
		t.Errorf("kind %v want network", fault.KindOf(err))
	}
	for _, p := range []string{dest, dest + ".part"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s left behind", p)
		}
	}
}

func TestAPIMessageFallbacks(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"message":"rate limited"}`, "rate limited"},
		{"  plain text \n", "plain text"},
		{"", "empty response"},
	}
	for _, tt := range tests {
		if got := apiMessage([]byte(tt.body)); got != tt.want {
			t.Errorf("apiMessage(%q) = %q want %q", tt.body, got, tt.want)
		}
	}
}
