// Package githubtest serves a fake GitHub releases API for tests.
package githubtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/3leaps/swissfetch/internal/model"
)

// Asset is a release asset with its download body.
type Asset struct {
	Name string
	Body []byte
}

// Release is a release served by the fake.
type Release struct {
	Tag        string
	Created    time.Time
	Draft      bool
	Prerelease bool
	Assets     []Asset
}

// Server is a fake api.github.com plus asset download host.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	repos    map[string][]Release
	requests []string
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{repos: map[string][]Release{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Add registers rel under repo ("owner/name"). List order is add order.
func (s *Server) Add(repo string, rel Release) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[repo] = append(s.repos[repo], rel)
}

// Requests returns the paths requested so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Downloads returns the asset download paths requested so far.
func (s *Server) Downloads() []string {
	var out []string
	for _, r := range s.Requests() {
		if strings.HasPrefix(r, "/download/") {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.URL.Path)
	s.mu.Unlock()

	switch {
	case strings.HasPrefix(r.URL.Path, "/repos/"):
		s.handleAPI(w, r)
	case strings.HasPrefix(r.URL.Path, "/download/"):
		s.handleDownload(w, r)
	default:
		notFound(w)
	}
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	// /repos/{owner}/{name}/releases[/latest | /tags/{tag}]
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/repos/"), "/", 4)
	if len(parts) < 3 || parts[2] != "releases" {
		notFound(w)
		return
	}
	repo := parts[0] + "/" + parts[1]
	rest := ""
	if len(parts) == 4 {
		rest = parts[3]
	}

	s.mu.Lock()
	rels := append([]Release(nil), s.repos[repo]...)
	s.mu.Unlock()

	switch {
	case rest == "":
		out := make([]model.Release, 0, len(rels))
		for _, rel := range rels {
			out = append(out, s.render(repo, rel))
		}
		writeJSON(w, out)
	case rest == "latest":
		var latest *Release
		for i := range rels {
			rel := &rels[i]
			if rel.Draft || rel.Prerelease {
				continue
			}
			if latest == nil || rel.Created.After(latest.Created) {
				latest = rel
			}
		}
		if latest == nil {
			notFound(w)
			return
		}
		writeJSON(w, s.render(repo, *latest))
	case strings.HasPrefix(rest, "tags/"):
		tag, _ := url.PathUnescape(strings.TrimPrefix(rest, "tags/"))
		for _, rel := range rels {
			if rel.Tag == tag {
				writeJSON(w, s.render(repo, rel))
				return
			}
		}
		notFound(w)
	default:
		notFound(w)
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	// /download/{owner}/{name}/{tag}/{asset}
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/download/"), "/", 4)
	if len(parts) != 4 {
		notFound(w)
		return
	}
	repo := parts[0] + "/" + parts[1]

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rel := range s.repos[repo] {
		if rel.Tag != parts[2] {
			continue
		}
		for _, a := range rel.Assets {
			if a.Name == parts[3] {
				w.Header().Set("Content-Type", "application/octet-stream")
				_, _ = w.Write(a.Body)
				return
			}
		}
	}
	notFound(w)
}

func (s *Server) render(repo string, rel Release) model.Release {
	out := model.Release{
		TagName:    rel.Tag,
		Draft:      rel.Draft,
		Prerelease: rel.Prerelease,
		CreatedAt:  rel.Created,
		Assets:     []model.Asset{},
	}
	for _, a := range rel.Assets {
		out.Assets = append(out.Assets, model.Asset{
			Name:               a.Name,
			BrowserDownloadUrl: s.URL + "/download/" + repo + "/" + rel.Tag + "/" + a.Name,
			Size:               int64(len(a.Body)),
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"message":"Not Found","documentation_url":"https://docs.github.com/rest"}`))
}
